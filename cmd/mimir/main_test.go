package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/flemzord/mimir/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := rootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	for _, want := range []string{"mimir dev", "chat.engine", "gateway.http", "memory.sqlite"} {
		if !strings.Contains(out, want) {
			t.Errorf("version output missing %q:\n%s", want, out)
		}
	}
}

func TestInit_DefaultsThenCheck(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "conf", "mimir.yaml")

	if _, err := execute(t, "init", "--yes", "--output", path); err != nil {
		t.Fatalf("init: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	cfg, err := config.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, ok := cfg.Modules["memory.sqlite"]; !ok {
		t.Errorf("default init should configure sqlite:\n%s", raw)
	}

	if _, err := execute(t, "init", "--yes", "--output", path); err == nil {
		t.Error("init should refuse to overwrite without --force")
	}
	if _, err := execute(t, "init", "--yes", "--force", "--output", path); err != nil {
		t.Errorf("init --force: %v", err)
	}
}

func TestConfigCheck(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "mimir.yaml")
	body := "version: \"1\"\ndata_dir: " + dir + "\nmodules:\n  gateway.http: {}\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "config", "check", path)
	if err != nil {
		t.Fatalf("config check: %v", err)
	}
	if !strings.Contains(out, "Configuration OK (2 modules)") {
		t.Errorf("output = %q", out)
	}

	if _, err := execute(t, "config", "check", filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestService_RejectsUnknownAction(t *testing.T) {
	t.Parallel()

	if _, err := execute(t, "service", "explode"); err == nil {
		t.Error("expected error for unknown service action")
	}
}

func TestServiceConfig(t *testing.T) {
	t.Parallel()

	cfg := serviceConfig("/etc/mimir/mimir.yaml")
	if cfg.Name != "mimir" {
		t.Errorf("Name = %q", cfg.Name)
	}
	want := []string{"service", "run", "--config", "/etc/mimir/mimir.yaml"}
	if strings.Join(cfg.Arguments, " ") != strings.Join(want, " ") {
		t.Errorf("Arguments = %v, want %v", cfg.Arguments, want)
	}
}

func TestValidateBind(t *testing.T) {
	t.Parallel()

	for addr, ok := range map[string]bool{
		"127.0.0.1:4000": true,
		":8080":          true,
		"localhost":      false,
	} {
		if err := validateBind(addr); (err == nil) != ok {
			t.Errorf("validateBind(%q) = %v", addr, err)
		}
	}
	if err := validateOptionalAddr(""); err != nil {
		t.Errorf("empty optional address: %v", err)
	}
}
