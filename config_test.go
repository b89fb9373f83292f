package main

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	tests := []struct {
		in, want string
	}{
		{"~/foo", filepath.Join(home, "foo")},
		{"~/Notes/work", filepath.Join(home, "Notes/work")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"~", "~"}, // no slash after ~, not expanded
	}
	for _, tt := range tests {
		got := expandHome(tt.in)
		if got != tt.want {
			t.Errorf("expandHome(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestContractHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	if got := contractHome(filepath.Join(home, "Notes")); got != "~/Notes" {
		t.Fatalf("contractHome = %q", got)
	}
	if got := contractHome("/elsewhere/Notes"); got != "/elsewhere/Notes" {
		t.Fatalf("contractHome = %q", got)
	}
}

func TestLoadConfigSetsInstalledAndExpandsHome(t *testing.T) {
	cfgRoot := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", cfgRoot)

	path, err := configPath()
	if err != nil {
		t.Fatalf("configPath: %v", err)
	}
	if err := saveConfig(path, config{
		NotesDir:  "~/notes",
		ExportDir: "~/out",
	}); err != nil {
		t.Fatalf("saveConfig: %v", err)
	}

	loaded := loadConfig()
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("UserHomeDir: %v", err)
	}
	if loaded.NotesDir != filepath.Join(home, "notes") {
		t.Fatalf("NotesDir = %q, want expanded home path", loaded.NotesDir)
	}
	if loaded.ExportDir != filepath.Join(home, "out") {
		t.Fatalf("ExportDir = %q, want expanded home path", loaded.ExportDir)
	}
	if loaded.Installed == "" {
		t.Fatal("Installed should be set when missing")
	}

	// Installed timestamp should be persisted to disk for future loads.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved config: %v", err)
	}
	var persisted config
	if err := json.Unmarshal(data, &persisted); err != nil {
		t.Fatalf("unmarshal persisted config: %v", err)
	}
	if persisted.Installed == "" {
		t.Fatal("persisted Installed should not be empty")
	}
}

func TestLoadConfigFillsDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	path, err := configPath()
	if err != nil {
		t.Fatal(err)
	}
	if err := saveConfig(path, config{NotesDir: "/tmp/notes", LogLevel: "loud"}); err != nil {
		t.Fatal(err)
	}

	loaded := loadConfig()
	if loaded.ManifestURL != defaultManifestURL {
		t.Errorf("ManifestURL = %q", loaded.ManifestURL)
	}
	if loaded.PackageID != defaultPackageID {
		t.Errorf("PackageID = %q", loaded.PackageID)
	}
	if loaded.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info for unknown level", loaded.LogLevel)
	}
	if loaded.NotesDir != "/tmp/notes" {
		t.Errorf("NotesDir = %q", loaded.NotesDir)
	}
}

func TestNormalizeKeepsValidLogLevel(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "warn", "error"} {
		if got := (config{LogLevel: lvl}).normalize().LogLevel; got != lvl {
			t.Errorf("normalize(%q) = %q", lvl, got)
		}
	}
}

func TestLoadConfigInvalidJSONFallsBackToDefaults(t *testing.T) {
	cfgRoot := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", cfgRoot)

	path, err := configPath()
	if err != nil {
		t.Fatalf("configPath: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(path, []byte("{invalid"), 0644); err != nil {
		t.Fatalf("write invalid config: %v", err)
	}

	loaded := loadConfig()
	def := newDefaultConfig()
	if loaded.NotesDir != def.NotesDir {
		t.Fatalf("NotesDir = %q, want default %q", loaded.NotesDir, def.NotesDir)
	}
	if loaded.ManifestURL != def.ManifestURL || loaded.PackageID != def.PackageID {
		t.Fatalf("loaded = %+v, want defaults", loaded)
	}

	// The corrupt file is left alone for the user to fix.
	data, _ := os.ReadFile(path)
	if string(data) != "{invalid" {
		t.Fatalf("corrupt config was overwritten: %q", data)
	}
}

func TestRunSetupKeepsDefaultsOnEmptyInput(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := filepath.Join(t.TempDir(), "notepad", "config.json")

	current := config{
		NotesDir:  filepath.Join(home, "Notes"),
		ExportDir: filepath.Join(home, "Documents"),
		LogLevel:  "info",
	}
	scanner := bufio.NewScanner(strings.NewReader("\n~/Exports\nwarn\n"))
	cfg := runSetup(path, current, scanner)

	if cfg.NotesDir != current.NotesDir {
		t.Errorf("NotesDir = %q, want %q", cfg.NotesDir, current.NotesDir)
	}
	if cfg.ExportDir != filepath.Join(home, "Exports") {
		t.Errorf("ExportDir = %q", cfg.ExportDir)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("setup did not save: %v", err)
	}
	var saved config
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatal(err)
	}
	if saved.ExportDir != cfg.ExportDir || saved.LogLevel != "warn" {
		t.Fatalf("saved = %+v", saved)
	}
}
