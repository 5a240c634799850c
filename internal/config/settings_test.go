package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ytget/plastic-in-river/internal/annotation"
	"github.com/ytget/plastic-in-river/internal/dataset"
)

func newTestSettings() *Settings {
	return NewSettings(NewMemoryPreferences())
}

func TestNewSettings(t *testing.T) {
	prefs := NewMemoryPreferences()
	settings := NewSettings(prefs)

	if settings.prefs != prefs {
		t.Error("Settings preferences reference should match provided store")
	}
}

func TestDefaults(t *testing.T) {
	settings := newTestSettings()

	if got := settings.GetBaseURL(); got != dataset.DefaultBaseURL {
		t.Errorf("Expected default base URL %s, got %s", dataset.DefaultBaseURL, got)
	}
	if got := settings.GetVersion(); got != dataset.CurrentVersion {
		t.Errorf("Expected default version %s, got %s", dataset.CurrentVersion, got)
	}
	if got := settings.GetMaxParallelDownloads(); got != DefaultMaxParallel {
		t.Errorf("Expected default max parallel %d, got %d", DefaultMaxParallel, got)
	}
	if got := settings.GetRetries(); got != DefaultRetries {
		t.Errorf("Expected default retries %d, got %d", DefaultRetries, got)
	}
	if got := settings.GetPairing(); got != dataset.PairByPosition {
		t.Errorf("Expected default pairing position, got %s", got)
	}
	if got := settings.GetAnnotationMode(); got != annotation.Lenient {
		t.Errorf("Expected default annotation mode lenient, got %s", got)
	}
	if settings.GetForceDownload() {
		t.Error("Expected force download to be off by default")
	}
}

func TestCacheDirectory(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", filepath.Join(t.TempDir(), "xdg"))
	settings := newTestSettings()

	// Test default value
	dir := settings.GetCacheDir()
	if dir == "" {
		t.Error("Cache directory should not be empty")
	}

	// Test setting custom value
	customDir := "/custom/cache"
	settings.SetCacheDir(customDir)

	if got := settings.GetCacheDir(); got != customDir {
		t.Errorf("Expected cache directory %s, got %s", customDir, got)
	}
	if got := settings.GetCacheIndexPath(); got != filepath.Join(customDir, CacheIndexFile) {
		t.Errorf("Unexpected index path %s", got)
	}
}

func TestMaxParallelDownloads(t *testing.T) {
	settings := newTestSettings()

	// Test setting custom value
	settings.SetMaxParallelDownloads(5)

	retrievedMax := settings.GetMaxParallelDownloads()
	if retrievedMax != 5 {
		t.Errorf("Expected max parallel 5, got %d", retrievedMax)
	}

	// Test boundary values
	settings.SetMaxParallelDownloads(0) // Should be clamped to 1
	if settings.GetMaxParallelDownloads() != 1 {
		t.Error("Max parallel should be clamped to minimum 1")
	}

	settings.SetMaxParallelDownloads(15) // Should be clamped to 10
	if settings.GetMaxParallelDownloads() != 10 {
		t.Error("Max parallel should be clamped to maximum 10")
	}
}

func TestRetries(t *testing.T) {
	settings := newTestSettings()

	settings.SetRetries(0)
	if got := settings.GetRetries(); got != 0 {
		t.Errorf("Expected explicit 0 retries to stick, got %d", got)
	}

	settings.SetRetries(-2)
	if got := settings.GetRetries(); got != 0 {
		t.Errorf("Expected negative retries to clamp to 0, got %d", got)
	}
}

func TestVersion(t *testing.T) {
	settings := newTestSettings()

	if err := settings.SetVersion(dataset.LegacyVersion); err != nil {
		t.Fatalf("SetVersion failed: %v", err)
	}
	if got := settings.GetVersion(); got != dataset.LegacyVersion {
		t.Errorf("Expected version %s, got %s", dataset.LegacyVersion, got)
	}

	err := settings.SetVersion("latest")
	if !errors.Is(err, dataset.ErrInvalidVersion) {
		t.Errorf("Expected ErrInvalidVersion, got %v", err)
	}
	if got := settings.GetVersion(); got != dataset.LegacyVersion {
		t.Errorf("Invalid version should not be stored, got %s", got)
	}
}

func TestBuilderConfig(t *testing.T) {
	settings := newTestSettings()
	settings.SetBaseURL("file:///mirror/")
	settings.SetPairing(dataset.PairByStem)
	settings.SetAnnotationMode(annotation.Strict)

	cfg := settings.BuilderConfig()
	want := dataset.BuilderConfig{
		BaseURL:        "file:///mirror/",
		Version:        dataset.CurrentVersion,
		Pairing:        dataset.PairByStem,
		AnnotationMode: annotation.Strict,
	}
	if cfg != want {
		t.Errorf("BuilderConfig() = %+v, want %+v", cfg, want)
	}

	settings.SetBaseURL("")
	if got := settings.GetBaseURL(); got != dataset.DefaultBaseURL {
		t.Errorf("Expected empty base URL to restore default, got %s", got)
	}
}

func TestOptions(t *testing.T) {
	settings := newTestSettings()

	if got := settings.GetPairingOptions(); len(got) != 2 || got[0] != "position" || got[1] != "stem" {
		t.Errorf("Unexpected pairing options %v", got)
	}
	if got := settings.GetAnnotationModeOptions(); len(got) != 2 || got[0] != "lenient" || got[1] != "strict" {
		t.Errorf("Unexpected annotation mode options %v", got)
	}
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "yaml",
			file: "config.yaml",
			content: `base_url: https://mirror.example/pir/
version: 1.0.0
cache_dir: /data/pir
max_parallel_downloads: 4
retries: 0
pairing: stem
annotation_mode: strict
force_download: true
`,
		},
		{
			name: "toml",
			file: "config.toml",
			content: `base_url = "https://mirror.example/pir/"
version = "1.0.0"
cache_dir = "/data/pir"
max_parallel_downloads = 4
retries = 0
pairing = "stem"
annotation_mode = "strict"
force_download = true
`,
		},
		{
			name: "json",
			file: "config.json",
			content: `{
  "base_url": "https://mirror.example/pir/",
  "version": "1.0.0",
  "cache_dir": "/data/pir",
  "max_parallel_downloads": 4,
  "retries": 0,
  "pairing": "stem",
  "annotation_mode": "strict",
  "force_download": true
}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings, err := Load(writeConfig(t, tt.file, tt.content))
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}

			if got := settings.GetBaseURL(); got != "https://mirror.example/pir/" {
				t.Errorf("base_url = %s", got)
			}
			if got := settings.GetVersion(); got != "1.0.0" {
				t.Errorf("version = %s", got)
			}
			if got := settings.GetCacheDir(); got != "/data/pir" {
				t.Errorf("cache_dir = %s", got)
			}
			if got := settings.GetMaxParallelDownloads(); got != 4 {
				t.Errorf("max_parallel_downloads = %d", got)
			}
			if got := settings.GetRetries(); got != 0 {
				t.Errorf("retries = %d", got)
			}
			if got := settings.GetPairing(); got != dataset.PairByStem {
				t.Errorf("pairing = %s", got)
			}
			if got := settings.GetAnnotationMode(); got != annotation.Strict {
				t.Errorf("annotation_mode = %s", got)
			}
			if !settings.GetForceDownload() {
				t.Error("force_download = false")
			}
		})
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	settings, err := Load(writeConfig(t, "config.yml", "max_parallel_downloads: 50\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := settings.GetMaxParallelDownloads(); got != MaxParallel {
		t.Errorf("Expected clamp to %d, got %d", MaxParallel, got)
	}
	if got := settings.GetVersion(); got != dataset.CurrentVersion {
		t.Errorf("Expected default version, got %s", got)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{name: "unknown pairing", file: "c.yaml", content: "pairing: filename\n"},
		{name: "unknown mode", file: "c.yaml", content: "annotation_mode: relaxed\n"},
		{name: "bad version", file: "c.toml", content: "version = \"v2\"\n"},
		{name: "unknown key", file: "c.json", content: `{"splits": ["train"]}`},
		{name: "wrong type", file: "c.json", content: `{"retries": "two"}`},
		{name: "fractional int", file: "c.yaml", content: "retries: 1.5\n"},
		{name: "syntax", file: "c.yaml", content: "pairing: [\n"},
		{name: "extension", file: "c.ini", content: "pairing=stem\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.file, tt.content)); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected ErrNotExist, got %v", err)
	}
}

func TestApplyIsAtomic(t *testing.T) {
	settings := newTestSettings()
	err := settings.Apply(map[string]any{
		KeyMaxParallel: 7,
		KeyPairing:     "diagonal",
	})
	if err == nil {
		t.Fatal("Expected error for unknown pairing")
	}
	if got := settings.GetMaxParallelDownloads(); got != DefaultMaxParallel {
		t.Errorf("Expected no values stored after a failed Apply, got max parallel %d", got)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	settings, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}
	if got := settings.GetVersion(); got != dataset.CurrentVersion {
		t.Errorf("Expected defaults without a config file, got version %s", got)
	}

	t.Setenv(EnvConfigFile, writeConfig(t, "env.yaml", "version: 1.0.0\n"))
	settings, err = LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}
	if got := settings.GetVersion(); got != "1.0.0" {
		t.Errorf("Expected version from env file, got %s", got)
	}
}
