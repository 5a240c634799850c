package config

import (
	"path/filepath"

	"github.com/ytget/plastic-in-river/internal/annotation"
	"github.com/ytget/plastic-in-river/internal/dataset"
	"github.com/ytget/plastic-in-river/internal/platform"
)

// Settings keys, shared by the preference store and the config files
const (
	KeyBaseURL        = "base_url"
	KeyVersion        = "version"
	KeyCacheDir       = "cache_dir"
	KeyMaxParallel    = "max_parallel_downloads"
	KeyRetries        = "retries"
	KeyPairing        = "pairing"
	KeyAnnotationMode = "annotation_mode"
	KeyForceDownload  = "force_download"
)

// Default values
const (
	DefaultMaxParallel   = 3
	DefaultRetries       = 1
	DefaultForceDownload = false
	MinParallel          = 1
	MaxParallel          = 10
	CacheIndexFile       = "index.db"
)

// Settings manages application configuration
type Settings struct {
	prefs Preferences
}

// NewSettings creates a new settings manager over prefs
func NewSettings(prefs Preferences) *Settings {
	return &Settings{prefs: prefs}
}

// GetBaseURL returns the dataset bucket URL
func (s *Settings) GetBaseURL() string {
	baseURL := s.prefs.String(KeyBaseURL)
	if baseURL == "" {
		return dataset.DefaultBaseURL
	}
	return baseURL
}

// SetBaseURL sets the dataset bucket URL; an empty value restores the default
func (s *Settings) SetBaseURL(baseURL string) {
	if baseURL == "" {
		s.prefs.RemoveValue(KeyBaseURL)
		return
	}
	s.prefs.SetString(KeyBaseURL, baseURL)
}

// GetVersion returns the dataset release
func (s *Settings) GetVersion() string {
	version := s.prefs.String(KeyVersion)
	if version == "" {
		return dataset.CurrentVersion
	}
	return version
}

// SetVersion sets the dataset release after validating its form
func (s *Settings) SetVersion(version string) error {
	if err := dataset.ValidateVersion(version); err != nil {
		return err
	}
	s.prefs.SetString(KeyVersion, version)
	return nil
}

// GetCacheDir returns the configured cache directory
func (s *Settings) GetCacheDir() string {
	dir := s.prefs.String(KeyCacheDir)
	if dir == "" {
		// Use the per-user cache directory; on error this is under the temp dir
		defaultDir, _ := platform.GetCacheDir()
		s.SetCacheDir(defaultDir)
		return defaultDir
	}
	return dir
}

// SetCacheDir sets the cache directory
func (s *Settings) SetCacheDir(dir string) {
	s.prefs.SetString(KeyCacheDir, dir)
}

// GetCacheIndexPath returns the location of the sqlite cache index
func (s *Settings) GetCacheIndexPath() string {
	return filepath.Join(s.GetCacheDir(), CacheIndexFile)
}

// GetMaxParallelDownloads returns the maximum number of parallel downloads
func (s *Settings) GetMaxParallelDownloads() int {
	value := s.prefs.Int(KeyMaxParallel)
	if value <= 0 {
		s.SetMaxParallelDownloads(DefaultMaxParallel)
		return DefaultMaxParallel
	}
	return value
}

// SetMaxParallelDownloads sets the maximum number of parallel downloads
func (s *Settings) SetMaxParallelDownloads(count int) {
	if count < MinParallel {
		count = MinParallel
	}
	if count > MaxParallel {
		count = MaxParallel
	}
	s.prefs.SetInt(KeyMaxParallel, count)
}

// GetRetries returns how many extra attempts a failed download gets
func (s *Settings) GetRetries() int {
	return s.prefs.IntWithFallback(KeyRetries, DefaultRetries)
}

// SetRetries sets the retry count; negative values mean no retries
func (s *Settings) SetRetries(n int) {
	if n < 0 {
		n = 0
	}
	s.prefs.SetInt(KeyRetries, n)
}

// GetPairing returns how image and annotation entries are matched
func (s *Settings) GetPairing() dataset.Pairing {
	// Values are validated on Set
	p, _ := dataset.ParsePairing(s.prefs.String(KeyPairing))
	return p
}

// SetPairing sets the pairing mode
func (s *Settings) SetPairing(p dataset.Pairing) {
	s.prefs.SetString(KeyPairing, p.String())
}

// GetAnnotationMode returns the annotation parsing mode
func (s *Settings) GetAnnotationMode() annotation.Mode {
	m, _ := annotation.ParseMode(s.prefs.String(KeyAnnotationMode))
	return m
}

// SetAnnotationMode sets the annotation parsing mode
func (s *Settings) SetAnnotationMode(m annotation.Mode) {
	s.prefs.SetString(KeyAnnotationMode, m.String())
}

// GetForceDownload returns whether cached archives are ignored
func (s *Settings) GetForceDownload() bool {
	return s.prefs.BoolWithFallback(KeyForceDownload, DefaultForceDownload)
}

// SetForceDownload sets whether cached archives are ignored
func (s *Settings) SetForceDownload(force bool) {
	s.prefs.SetBool(KeyForceDownload, force)
}

// GetPairingOptions returns available pairing names
func (s *Settings) GetPairingOptions() []string {
	return []string{dataset.PairByPosition.String(), dataset.PairByStem.String()}
}

// GetAnnotationModeOptions returns available annotation mode names
func (s *Settings) GetAnnotationModeOptions() []string {
	return []string{annotation.Lenient.String(), annotation.Strict.String()}
}

// BuilderConfig returns the dataset builder configuration
func (s *Settings) BuilderConfig() dataset.BuilderConfig {
	return dataset.BuilderConfig{
		BaseURL:        s.GetBaseURL(),
		Version:        s.GetVersion(),
		Pairing:        s.GetPairing(),
		AnnotationMode: s.GetAnnotationMode(),
	}
}
