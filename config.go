package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap/zapcore"
)

// ─── Config ──────────────────────────────────────────────────────────────────

type config struct {
	NotesDir    string `json:"notes_dir"`              // one <title>.txt per note
	ExportDir   string `json:"export_dir,omitempty"`   // pre-filled in the export prompt
	ManifestURL string `json:"manifest_url,omitempty"` // update manifest; "" uses the default
	PackageID   string `json:"package_id,omitempty"`   // key looked up in the manifest
	LogLevel    string `json:"log_level,omitempty"`    // debug, info, warn, error
	Installed   string `json:"installed,omitempty"`    // RFC3339 timestamp of first setup
}

const defaultPackageID = "com.btcemais.notepad"

func defaultNotesDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "notes"
	}
	return filepath.Join(home, "Notes")
}

func defaultExportDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, "Documents")
}

func newDefaultConfig() config {
	return config{
		NotesDir:    defaultNotesDir(),
		ExportDir:   defaultExportDir(),
		ManifestURL: defaultManifestURL,
		PackageID:   defaultPackageID,
		LogLevel:    "info",
	}
}

func configPath() (string, error) {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine config directory: %w", err)
	}
	return filepath.Join(cfgDir, "notepad", "config.json"), nil
}

// expandHome expands a leading "~/" to the user's home directory.
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// contractHome replaces the user's home directory prefix with "~/" for display.
func contractHome(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if rel, ok := strings.CutPrefix(path, home+string(filepath.Separator)); ok {
		return "~/" + rel
	}
	return path
}

// normalize fills blanks with defaults and expands home-relative paths.
func (c config) normalize() config {
	def := newDefaultConfig()
	if c.NotesDir == "" {
		c.NotesDir = def.NotesDir
	}
	if c.ManifestURL == "" {
		c.ManifestURL = def.ManifestURL
	}
	if c.PackageID == "" {
		c.PackageID = def.PackageID
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil || c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	c.NotesDir = expandHome(c.NotesDir)
	c.ExportDir = expandHome(c.ExportDir)
	return c
}

// loadConfig reads the config file, running first-time setup when it does
// not exist. A corrupt file yields defaults and a warning.
func loadConfig() config {
	path, err := configPath()
	if err != nil {
		return newDefaultConfig()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return setupConfig(path)
		}
		return newDefaultConfig()
	}
	cfg := newDefaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: corrupt config (%v), using defaults. Run `notepad --setup` to fix.\n", err)
		return newDefaultConfig()
	}
	cfg = cfg.normalize()
	if cfg.Installed == "" {
		cfg.Installed = time.Now().Format(time.RFC3339)
		_ = saveConfig(path, cfg)
	}
	return cfg
}

// saveConfig writes through a temp file and rename, so a crash mid-write
// can't leave a truncated config that gets silently replaced with defaults.
func saveConfig(path string, cfg config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return writeFileAtomic(path, data, 0644, ".config-*.tmp")
}

func setupConfig(path string) config {
	scanner := bufio.NewScanner(os.Stdin)
	showWelcome()
	cfg := newDefaultConfig()
	cfg.Installed = time.Now().Format(time.RFC3339)
	return runSetup(path, cfg, scanner)
}

func showWelcome() {
	brand := lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	dim := lipgloss.NewStyle().Foreground(colorDim)
	key := lipgloss.NewStyle().Bold(true).Foreground(colorAccent)

	fmt.Println()
	fmt.Println("  " + brand.Render("notepad"))
	fmt.Println(dim.Render("  Plain-text notes, one file per note."))
	fmt.Println()
	fmt.Println("  " + key.Render("n") + dim.Render(" new note     ") + key.Render("enter") + dim.Render(" edit     ") + key.Render("x") + dim.Render(" export"))
	fmt.Println("  " + key.Render("K/J") + dim.Render(" reorder    ") + key.Render("#") + dim.Render(" delete       ") + key.Render("?") + dim.Render(" all keybindings"))
	fmt.Println()
}

func runSetup(path string, current config, scanner *bufio.Scanner) config {
	promptStyle := lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	dimStyle := lipgloss.NewStyle().Foreground(colorDim)
	if scanner == nil {
		scanner = bufio.NewScanner(os.Stdin)
	}

	fmt.Println(promptStyle.Render("  notepad setup"))
	fmt.Println(dimStyle.Render("  Press enter to keep the current value."))
	fmt.Println()

	prompt := func(label, defVal string) string {
		fmt.Printf("%s %s: ", promptStyle.Render(label), dimStyle.Render("["+defVal+"]"))
		if scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				return line
			}
		}
		return defVal
	}

	cfg := current

	fmt.Println(dimStyle.Render("  Directory holding one .txt file per note."))
	cfg.NotesDir = expandHome(prompt("Notes directory ", contractHome(current.NotesDir)))
	fmt.Println()

	fmt.Println(dimStyle.Render("  Default folder offered when exporting a note (x key)."))
	cfg.ExportDir = expandHome(prompt("Export directory", contractHome(current.ExportDir)))
	fmt.Println()

	fmt.Println(dimStyle.Render("  One of debug, info, warn, error."))
	cfg.LogLevel = prompt("Log level       ", current.LogLevel)
	fmt.Println()

	cfg = cfg.normalize()
	if err := saveConfig(path, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not save config: %v\n", err)
	} else {
		fmt.Printf("%s %s\n\n", dimStyle.Render("Saved to"), path)
	}
	return cfg
}
