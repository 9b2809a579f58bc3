package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSetYamlConfigPreservesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	initial := `# prio settings
json: false
custom:
  untouched: 1
sync:
  interval: 1m # how often
`
	if err := os.WriteFile(path, []byte(initial), 0600); err != nil {
		t.Fatal(err)
	}

	if err := SetYamlConfig(path, "sync.interval", "10m"); err != nil {
		t.Fatalf("SetYamlConfig: %v", err)
	}
	if err := SetYamlConfig(path, "remote.url", "https://tasks.example.com"); err != nil {
		t.Fatalf("SetYamlConfig: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, want := range []string{"# prio settings", "untouched: 1", "interval: 10m", "url: https://tasks.example.com"} {
		if !strings.Contains(out, want) {
			t.Errorf("config missing %q:\n%s", want, out)
		}
	}

	got, ok, err := GetYamlConfig(path, "sync.interval")
	if err != nil || !ok || got != "10m" {
		t.Errorf("GetYamlConfig = %q, %v, %v", got, ok, err)
	}
}

func TestSetYamlConfigCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prio", "config.yaml")
	if err := SetYamlConfig(path, "json", "yes"); err != nil {
		t.Fatalf("SetYamlConfig: %v", err)
	}
	got, ok, err := GetYamlConfig(path, "json")
	if err != nil || !ok || got != "true" {
		t.Errorf("GetYamlConfig(json) = %q, %v, %v", got, ok, err)
	}
}

func TestSetYamlConfigKeepsStringsQuoted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := SetYamlConfig(path, "dolt.user", "yes"); err != nil {
		t.Fatal(err)
	}
	if err := InitializeWithFile(path); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(ResetForTesting)
	if got := GetString("dolt.user"); got != "yes" {
		t.Errorf("dolt.user = %q, want yes", got)
	}
}

func TestSetYamlConfigValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	tests := []struct {
		key, value string
	}{
		{"no.such.key", "x"},
		{"sync.interval", "soon"},
		{"sync.max-retry", "0"},
		{"backend", "postgres"},
		{"dolt.port", "70000"},
		{"remote.url", "ftp://x"},
		{"log.level", "loud"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if err := SetYamlConfig(path, tt.key, tt.value); err == nil {
				t.Errorf("SetYamlConfig(%q, %q) should fail", tt.key, tt.value)
			}
		})
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("rejected values must not create the file")
	}
}

func TestSetYamlConfigReloads(t *testing.T) {
	path := initTemp(t, "")
	if err := SetYamlConfig(path, "sync.debounce", "5s"); err != nil {
		t.Fatal(err)
	}
	if got := GetDuration("sync.debounce"); got != 5*time.Second {
		t.Errorf("sync.debounce = %v after set, want 5s", got)
	}
}

func TestUnsetYamlConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := SetYamlConfig(path, "sync.interval", "2m"); err != nil {
		t.Fatal(err)
	}
	if err := SetYamlConfig(path, "json", "true"); err != nil {
		t.Fatal(err)
	}
	if err := UnsetYamlConfig(path, "sync.interval"); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "sync") {
		t.Errorf("empty sync mapping should be removed:\n%s", data)
	}
	if _, ok, _ := GetYamlConfig(path, "json"); !ok {
		t.Error("json should remain")
	}
	if err := UnsetYamlConfig(path, "sync.interval"); err != nil {
		t.Errorf("unsetting a missing key: %v", err)
	}
	if err := UnsetYamlConfig(path, "bogus"); err == nil {
		t.Error("unknown key should fail")
	}
}
