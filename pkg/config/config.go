package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/user"
	"path"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

const (
	configDir       string = "nview"
	configDirHidden string = ".nview"
	configFile      string = "config.yml"

	// DefaultTypeMatchCacheSize is the number of type descriptions whose
	// selected layout is remembered per process.
	DefaultTypeMatchCacheSize = 256
	// DefaultMaxStringLen is the number of characters printed for a string
	// by the terminal before it is truncated.
	DefaultMaxStringLen = 256
)

// Config is the content of config.yml.
type Config struct {
	// Commands aliases.
	Aliases map[string][]string `yaml:"aliases"`

	// MaxStringLen is the maximum string length that the print and cast
	// commands display.
	MaxStringLen *int `yaml:"max-string-len,omitempty"`

	// EnableVariableCaching controls whether the members computed by user
	// type adapters are cached between reads. When false every read walks
	// the debuggee memory again, which is useful when checking the
	// consistency of the cache.
	EnableVariableCaching *bool `yaml:"enable-variable-caching,omitempty"`

	// EnableUserCastedVariableCaching controls whether the result of
	// casting a variable to a user type is remembered until the next
	// metadata reload.
	EnableUserCastedVariableCaching *bool `yaml:"enable-user-casted-variable-caching,omitempty"`

	// TypeMatchCacheSize is the number of entries of the per process cache
	// mapping type descriptions to the layout selected for them.
	TypeMatchCacheSize int `yaml:"type-match-cache-size,omitempty"`

	// SymbolSearchPaths is the list of directories searched for the
	// executable named by a snapshot file.
	SymbolSearchPaths []string `yaml:"symbol-search-paths"`
}

// VariableCaching returns the effective value of EnableVariableCaching.
func (c *Config) VariableCaching() bool {
	if c == nil || c.EnableVariableCaching == nil {
		return true
	}
	return *c.EnableVariableCaching
}

// UserCastedVariableCaching returns the effective value of
// EnableUserCastedVariableCaching.
func (c *Config) UserCastedVariableCaching() bool {
	if c == nil || c.EnableUserCastedVariableCaching == nil {
		return true
	}
	return *c.EnableUserCastedVariableCaching
}

// TypeMatchCacheEntries returns the effective size of the type match cache.
func (c *Config) TypeMatchCacheEntries() int {
	if c == nil || c.TypeMatchCacheSize <= 0 {
		return DefaultTypeMatchCacheSize
	}
	return c.TypeMatchCacheSize
}

// StringLen returns the effective value of MaxStringLen.
func (c *Config) StringLen() int {
	if c == nil || c.MaxStringLen == nil {
		return DefaultMaxStringLen
	}
	return *c.MaxStringLen
}

// LoadConfig reads config.yml, writing the default one first when it does
// not exist. On error the returned Config is empty, never nil.
func LoadConfig() (*Config, error) {
	if err := createConfigPath(); err != nil {
		return &Config{}, fmt.Errorf("could not create config directory: %v", err)
	}
	file, err := GetConfigFilePath(configFile)
	if err != nil {
		return &Config{}, fmt.Errorf("unable to get config file path: %v", err)
	}

	data, err := os.ReadFile(file)
	if os.IsNotExist(err) {
		var buf bytes.Buffer
		writeDefaultConfig(&buf)
		if err := os.WriteFile(file, buf.Bytes(), 0o600); err != nil {
			return &Config{}, fmt.Errorf("error creating default config file: %v", err)
		}
		data, err = buf.Bytes(), nil
	}
	if err != nil {
		return &Config{}, fmt.Errorf("unable to read config data: %v", err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return &Config{}, fmt.Errorf("unable to decode config file: %v", err)
	}
	return &c, nil
}

// SaveConfig writes conf to config.yml, replacing its comments.
func SaveConfig(conf *Config) error {
	file, err := GetConfigFilePath(configFile)
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(conf)
	if err != nil {
		return err
	}
	return os.WriteFile(file, out, 0o600)
}

func writeDefaultConfig(w io.Writer) error {
	_, err := io.WriteString(w,
		`# Configuration file for nview.

# Every option is listed with its default value, commented out.

# Aliases are added to the builtin aliases of each command.
aliases:
  # cast: ["view"]

# Maximum number of characters printed for a string.
# max-string-len: 256

# Uncomment the following line to recompute user type members on every read.
# enable-variable-caching: false

# Uncomment the following line to cast variables to user types again on every read.
# enable-user-casted-variable-caching: false

# Number of type descriptions whose matching layout is remembered per process.
# type-match-cache-size: 256

# List of directories searched for the executables named by snapshot files.
symbol-search-paths: []
`)
	return err
}

// createConfigPath creates the directory holding config.yml and the
// history.
func createConfigPath() error {
	path, err := GetConfigFilePath("")
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0700)
}

// GetConfigFilePath returns the path of file in the configuration directory.
func GetConfigFilePath(file string) (string, error) {
	if configPath := os.Getenv("XDG_CONFIG_HOME"); configPath != "" {
		return filepath.Join(configPath, configDir, file), nil
	}

	userHomeDir := "."
	usr, err := user.Current()
	if err == nil {
		userHomeDir = usr.HomeDir
	}
	return path.Join(userHomeDir, configDirHidden, file), nil
}
