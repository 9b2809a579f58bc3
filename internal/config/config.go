// Package config holds prio's layered settings: defaults, then the YAML
// config file, then PRIO_* environment variables, then explicit Set calls
// (command-line flags).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment variable names: sync.max-retry is
// read from PRIO_SYNC_MAX_RETRY.
const EnvPrefix = "PRIO"

var (
	v        *viper.Viper
	filePath string
)

// Initialize loads configuration from the default config file location, or
// from $PRIO_CONFIG when set. A missing file is not an error.
func Initialize() error {
	path := os.Getenv(EnvPrefix + "_CONFIG")
	if path == "" {
		path = DefaultConfigPath()
	}
	return InitializeWithFile(path)
}

// InitializeWithFile loads configuration from path. A missing file is not an
// error; `prio config set` creates it.
func InitializeWithFile(path string) error {
	nv := viper.New()
	nv.SetConfigType("yaml")
	nv.SetEnvPrefix(EnvPrefix)
	nv.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	nv.AutomaticEnv()

	for _, k := range Keys {
		if k.Default != nil {
			nv.SetDefault(k.Name, k.Default)
		}
	}
	nv.SetDefault("db", DefaultDBPath())

	if path != "" {
		nv.SetConfigFile(path)
		if err := nv.ReadInConfig(); err != nil && !isMissingFile(err) {
			return fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	v = nv
	filePath = path
	return nil
}

func isMissingFile(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
}

// ResetForTesting drops all loaded state.
func ResetForTesting() {
	v = nil
	filePath = ""
	overrides = map[string]struct{}{}
}

// FilePath returns the config file in use, whether or not it exists yet.
func FilePath() string {
	return filePath
}

// DefaultConfigPath is $XDG_CONFIG_HOME/prio/config.yaml.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "prio", "config.yaml")
}

// DefaultDBPath is $XDG_DATA_HOME/prio/prio.db, falling back to
// ~/.local/share/prio/prio.db.
func DefaultDBPath() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "prio", "prio.db")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "prio.db"
	}
	return filepath.Join(home, ".local", "share", "prio", "prio.db")
}

// GetString retrieves a string configuration value
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt retrieves an integer configuration value
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration retrieves a duration configuration value
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// Set overrides a value for this process only, as flags do.
func Set(key string, value any) {
	if v != nil {
		v.Set(key, value)
	}
}

// Source names where the effective value of key came from: "flag", "env",
// "file" or "default".
func Source(key string) string {
	if v == nil {
		return "default"
	}
	if _, ok := overrides[key]; ok {
		return "flag"
	}
	env := EnvPrefix + "_" + strings.NewReplacer(".", "_", "-", "_").Replace(strings.ToUpper(key))
	if _, ok := os.LookupEnv(env); ok {
		return "env"
	}
	if v.InConfig(key) {
		return "file"
	}
	return "default"
}

// overrides records keys set through SetOverride so Source can report them.
var overrides = map[string]struct{}{}

// SetOverride is Set for values that came from command-line flags.
func SetOverride(key string, value any) {
	overrides[key] = struct{}{}
	Set(key, value)
}

// Setting is one resolved key for display.
type Setting struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Source string `json:"source"`
}

// Settings returns every known key with its effective value. Secrets are
// masked.
func Settings() []Setting {
	out := make([]Setting, 0, len(Keys))
	for _, name := range KeyNames() {
		val := GetString(name)
		if k := Lookup(name); k.Secret && val != "" {
			val = "********"
		}
		out = append(out, Setting{Key: name, Value: val, Source: Source(name)})
	}
	return out
}
