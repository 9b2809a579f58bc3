package config

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Key describes one configuration key.
type Key struct {
	Name        string // dotted key, e.g. "sync.interval"
	Description string
	Default     any    // nil means no default
	Secret      bool   // masked by `prio config list`
	Validate    func(string) error
}

// Keys lists every key prio understands.
var Keys = []Key{
	{Name: "db", Description: "SQLite database path", Default: ""},
	{Name: "backend", Description: "storage backend (sqlite or dolt)", Default: "sqlite", Validate: oneOf("sqlite", "dolt")},

	{Name: "dolt.host", Description: "Dolt sql-server host", Default: "127.0.0.1"},
	{Name: "dolt.port", Description: "Dolt sql-server port", Default: 3307, Validate: validatePort},
	{Name: "dolt.user", Description: "Dolt user", Default: "root"},
	{Name: "dolt.password", Description: "Dolt password", Default: "", Secret: true},
	{Name: "dolt.database", Description: "Dolt database name", Default: "prio"},

	{Name: "remote.url", Description: "task server base URL", Default: "", Validate: validateURL},
	{Name: "remote.token", Description: "bearer token for the task server", Default: "", Secret: true},
	{Name: "remote.token-file", Description: "file holding the bearer token", Default: ""},
	{Name: "remote.timeout", Description: "per-request timeout", Default: 10 * time.Second, Validate: validateDuration},

	{Name: "sync.interval", Description: "periodic sync interval (0 disables)", Default: 5 * time.Minute, Validate: validateDuration},
	{Name: "sync.max-retry", Description: "failed attempts before a change is given up", Default: 5, Validate: validatePositive},
	{Name: "sync.probe-interval", Description: "reachability probe interval while online", Default: 30 * time.Second, Validate: validateDuration},
	{Name: "sync.watch", Description: "sync when another process writes the database", Default: true, Validate: validateBool},
	{Name: "sync.debounce", Description: "quiet period before a file change triggers sync", Default: 2 * time.Second, Validate: validateDuration},

	{Name: "json", Description: "JSON output by default", Default: false, Validate: validateBool},
	{Name: "log.level", Description: "log level", Default: "info", Validate: validateLogLevel},
	{Name: "log.format", Description: "log format (text or json)", Default: "text", Validate: oneOf("text", "json")},
}

var keyMap map[string]*Key

func init() {
	keyMap = make(map[string]*Key, len(Keys))
	for i := range Keys {
		keyMap[Keys[i].Name] = &Keys[i]
	}
}

// Lookup returns the key description, or nil for an unknown key.
func Lookup(name string) *Key {
	return keyMap[name]
}

// KeyNames returns the known key names sorted.
func KeyNames() []string {
	names := make([]string, 0, len(Keys))
	for _, k := range Keys {
		names = append(names, k.Name)
	}
	sort.Strings(names)
	return names
}

// ValidateKey checks whether key is known and value acceptable for it.
func ValidateKey(name, value string) error {
	k := keyMap[name]
	if k == nil {
		return fmt.Errorf("unknown config key %q; valid keys: %s", name, strings.Join(KeyNames(), ", "))
	}
	if k.Validate != nil {
		if err := k.Validate(value); err != nil {
			return fmt.Errorf("invalid value for %s: %w", name, err)
		}
	}
	return nil
}

// Validation helpers

func oneOf(allowed ...string) func(string) error {
	return func(value string) error {
		for _, a := range allowed {
			if value == a {
				return nil
			}
		}
		return fmt.Errorf("must be one of: %s; got %q", strings.Join(allowed, ", "), value)
	}
}

func validatePort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be a number, got %q", value)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("must be between 1 and 65535, got %d", port)
	}
	return nil
}

func validatePositive(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be a number, got %q", value)
	}
	if n < 1 {
		return fmt.Errorf("must be at least 1, got %d", n)
	}
	return nil
}

func validateDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("must be a duration like 30s or 5m, got %q", value)
	}
	if d < 0 {
		return fmt.Errorf("must not be negative, got %s", value)
	}
	return nil
}

func validateLogLevel(value string) error {
	switch strings.ToLower(value) {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("must be one of: debug, info, warn, error; got %q", value)
	}
}

func validateBool(value string) error {
	switch strings.ToLower(value) {
	case "true", "false", "1", "0", "yes", "no":
		return nil
	default:
		return fmt.Errorf("must be true or false, got %q", value)
	}
}

func validateURL(value string) error {
	if value == "" {
		return nil
	}
	u, err := url.Parse(value)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("must be an http(s) URL, got %q", value)
	}
	return nil
}
