package file

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/prequery/prequery-preprocess/internal/core/domain"
)

// ConfigEnv overrides the location of the user configuration file.
const ConfigEnv = "PREQUERY_CONFIG"

// ConfigStore holds user-level defaults read from a TOML file.
// It is read-only; a missing file yields an empty configuration.
//
// Example:
//
//	typst = "/opt/typst/bin/typst"
//	history = true
//
//	[defaults]
//	concurrency = 4
//	retries = 5
//	timeout = "1m"
//	cache = "verify"
type ConfigStore struct {
	mu       sync.RWMutex
	filePath string
	data     map[string]any
}

// DefaultConfigPath returns $PREQUERY_CONFIG, or config.toml in the user config directory.
func DefaultConfigPath() (string, error) {
	if p := os.Getenv(ConfigEnv); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "prequery-preprocess", "config.toml"), nil
}

// NewConfigStore loads the configuration at path.
// If path is empty, DefaultConfigPath is used.
func NewConfigStore(path string) (*ConfigStore, error) {
	if path == "" {
		p, err := DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	s := &ConfigStore{
		filePath: path,
		data:     make(map[string]any),
	}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Get retrieves a configuration value by dot-notation key.
func (s *ConfigStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	val, ok := s.data[key]
	return val, ok
}

// GetString retrieves a string configuration value.
func (s *ConfigStore) GetString(key string) string {
	val, ok := s.Get(key)
	if !ok {
		return ""
	}
	str, _ := val.(string)
	return str
}

// GetBool retrieves a boolean configuration value.
func (s *ConfigStore) GetBool(key string) bool {
	val, ok := s.Get(key)
	if !ok {
		return false
	}
	b, _ := val.(bool)
	return b
}

// RunDefaults applies the [defaults] table on top of base.
// The table accepts the same keys as a job's run options.
func (s *ConfigStore) RunDefaults(base domain.RunOptions) (domain.RunOptions, error) {
	s.mu.RLock()
	opts := domain.Options{}
	for k, v := range s.data {
		if key, ok := strings.CutPrefix(k, "defaults."); ok {
			opts[key] = v
		}
	}
	s.mu.RUnlock()

	out, err := opts.RunOptions(base)
	if err != nil {
		return base, err
	}
	return out, nil
}

// Load reads configuration from the TOML file.
func (s *ConfigStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file, start empty
			s.data = make(map[string]any)
			return nil
		}
		return err
	}

	var loaded map[string]any
	if err := toml.Unmarshal(data, &loaded); err != nil {
		return err
	}

	// Flatten nested maps into dot-notation keys for easier access
	s.data = flattenMap(loaded, "")
	return nil
}

// flattenMap converts nested maps to dot-notation keys.
// E.g., {"a": {"b": 1}} becomes {"a.b": 1}.
func flattenMap(m map[string]any, prefix string) map[string]any {
	result := make(map[string]any)

	for key, value := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}

		if nested, ok := value.(map[string]any); ok {
			for k, v := range flattenMap(nested, fullKey) {
				result[k] = v
			}
		} else {
			result[fullKey] = value
		}
	}

	return result
}

// Path returns the configuration file path.
func (s *ConfigStore) Path() string {
	return s.filePath
}
