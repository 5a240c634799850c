package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/ytget/plastic-in-river/internal/annotation"
	"github.com/ytget/plastic-in-river/internal/dataset"
)

// EnvConfigFile names the environment variable holding the config file path
const EnvConfigFile = "PLASTIC_IN_RIVER_CONFIG"

// ErrUnsupportedFormat is returned for config files with an unknown extension
var ErrUnsupportedFormat = errors.New("unsupported config format")

// Load reads a .yaml/.yml, .toml or .json file into a new Settings.
// Keys not present in the file keep their defaults.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	values, err := decode(filepath.Ext(path), data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	settings := NewSettings(NewMemoryPreferences())
	if err := settings.Apply(values); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return settings, nil
}

// LoadFromEnv loads the file named by PLASTIC_IN_RIVER_CONFIG, or returns
// default settings when the variable is unset.
func LoadFromEnv() (*Settings, error) {
	path := os.Getenv(EnvConfigFile)
	if path == "" {
		return NewSettings(NewMemoryPreferences()), nil
	}
	return Load(path)
}

func decode(ext string, data []byte) (map[string]any, error) {
	values := make(map[string]any)
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &values); err != nil {
			return nil, err
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &values); err != nil {
			return nil, err
		}
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&values); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return values, nil
}

// Apply validates values and stores them. Unknown keys and unknown enum
// values are rejected; nothing is stored when an error is returned.
func (s *Settings) Apply(values map[string]any) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var setters []func()
	for _, key := range keys {
		set, err := s.setter(key, values[key])
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		setters = append(setters, set)
	}
	for _, set := range setters {
		set()
	}
	return nil
}

func (s *Settings) setter(key string, value any) (func(), error) {
	switch key {
	case KeyBaseURL:
		v, err := asString(value)
		if err != nil {
			return nil, err
		}
		return func() { s.SetBaseURL(v) }, nil
	case KeyVersion:
		v, err := asString(value)
		if err != nil {
			return nil, err
		}
		if err := dataset.ValidateVersion(v); err != nil {
			return nil, err
		}
		return func() { s.prefs.SetString(KeyVersion, v) }, nil
	case KeyCacheDir:
		v, err := asString(value)
		if err != nil {
			return nil, err
		}
		return func() { s.SetCacheDir(v) }, nil
	case KeyMaxParallel:
		v, err := asInt(value)
		if err != nil {
			return nil, err
		}
		return func() { s.SetMaxParallelDownloads(v) }, nil
	case KeyRetries:
		v, err := asInt(value)
		if err != nil {
			return nil, err
		}
		return func() { s.SetRetries(v) }, nil
	case KeyPairing:
		v, err := asString(value)
		if err != nil {
			return nil, err
		}
		p, err := dataset.ParsePairing(v)
		if err != nil {
			return nil, err
		}
		return func() { s.SetPairing(p) }, nil
	case KeyAnnotationMode:
		v, err := asString(value)
		if err != nil {
			return nil, err
		}
		m, err := annotation.ParseMode(v)
		if err != nil {
			return nil, err
		}
		return func() { s.SetAnnotationMode(m) }, nil
	case KeyForceDownload:
		v, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("expected a boolean, got %T", value)
		}
		return func() { s.SetForceDownload(v) }, nil
	}
	return nil, errors.New("unknown key")
}

func asString(value any) (string, error) {
	v, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("expected a string, got %T", value)
	}
	return v, nil
}

// asInt accepts the integer types produced by the yaml, toml and json decoders
func asInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("expected an integer, got %v", v)
		}
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("expected an integer, got %s", v)
		}
		return int(n), nil
	}
	return 0, fmt.Errorf("expected an integer, got %T", value)
}
