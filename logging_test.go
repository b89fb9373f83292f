package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewLoggerWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "notepad.log")
	log, err := newLogger("debug", path)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	log.Debug("note saved", zap.String("title", "Groceries"))
	log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := strings.TrimSpace(string(data))
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line is not JSON: %q", line)
	}
	if entry["msg"] != "note saved" || entry["title"] != "Groceries" || entry["level"] != "debug" {
		t.Fatalf("entry = %v", entry)
	}
}

func TestNewLoggerLevelFiltering(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
	}{
		{"debug", true},
		{"info", false},
		{"bogus", false}, // falls back to info
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "notepad.log")
			log, err := newLogger(tt.level, path)
			if err != nil {
				t.Fatal(err)
			}
			log.Debug("hidden?")
			log.Sync()
			data, _ := os.ReadFile(path)
			if got := strings.Contains(string(data), "hidden?"); got != tt.wantDebug {
				t.Fatalf("debug logged = %v, want %v", got, tt.wantDebug)
			}
		})
	}
}

func TestLogPathUnderCacheDir(t *testing.T) {
	cache := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", cache)
	path, err := logPath()
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(cache, "notepad", "notepad.log") {
		t.Fatalf("logPath = %s", path)
	}
}
