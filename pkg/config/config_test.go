package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string `yaml:"name" toml:"name"`
	Port  int    `yaml:"port" toml:"port"`
	valid bool
}

func (s *sample) Validate() error {
	s.valid = true
	if s.Port < 0 {
		return errors.New("port must not be negative")
	}
	return nil
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_YAMLWithEnvExpansion(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "records")
	p := writeFile(t, "config.yaml", "name: ${SAMPLE_NAME}\nport: 9090\n")

	var s sample
	if err := Load(p, &s); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "records" || s.Port != 9090 || !s.valid {
		t.Errorf("got %+v", s)
	}
}

func TestLoad_TOML(t *testing.T) {
	p := writeFile(t, "config.toml", "name = \"toml\"\nport = 7070\n")

	var s sample
	if err := Load(p, &s); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "toml" || s.Port != 7070 {
		t.Errorf("got %+v", s)
	}
}

func TestLoad_ValidationError(t *testing.T) {
	p := writeFile(t, "config.yaml", "port: -1\n")

	var s sample
	err := Load(p, &s)
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Errorf("err = %v", err)
	}
}

func TestLoadWithDefaults_FallsBack(t *testing.T) {
	def := writeFile(t, "default.yaml", "name: fallback\n")

	var s sample
	if err := LoadWithDefaults(filepath.Join(t.TempDir(), "missing.yaml"), def, &s); err != nil {
		t.Fatalf("LoadWithDefaults: %v", err)
	}
	if s.Name != "fallback" {
		t.Errorf("got %+v", s)
	}
	if err := LoadWithDefaults(filepath.Join(t.TempDir(), "missing.yaml"), "", &s); err == nil {
		t.Error("expected error without a default file")
	}
}

func TestLoadOptional_MissingKeepsTarget(t *testing.T) {
	s := sample{Name: "preset", Port: 1}
	if err := LoadOptional(filepath.Join(t.TempDir(), "missing.yaml"), &s); err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if s.Name != "preset" || !s.valid {
		t.Errorf("got %+v", s)
	}
}
