package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Set with -ldflags "-X main.version=1.2.0 -X main.versionCode=12".
var (
	version     = ""
	versionCode = ""
)

func getVersion() string {
	if version != "" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

// updateCacheDir holds downloaded update packages until they are installed
// or discarded.
func updateCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "notepad-updates")
	}
	return filepath.Join(dir, "notepad", "updates")
}

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "--help" || os.Args[1] == "-h") {
		fmt.Println("notepad: plain-text notes in your terminal")
		fmt.Println()
		fmt.Println("Usage: notepad [flags]")
		fmt.Println()
		fmt.Println("Flags:")
		fmt.Println("  --help, -h    Show this help")
		fmt.Println("  --version     Print version")
		fmt.Println("  --setup       Re-run first-time configuration")
		return
	}

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		v := getVersion()
		if code := parseVersionCode(versionCode); code >= 0 {
			v = fmt.Sprintf("%s (%d)", v, code)
		}
		fmt.Println("notepad " + v)
		return
	}

	if len(os.Args) > 1 && strings.HasPrefix(os.Args[1], "-") && os.Args[1] != "--setup" {
		fmt.Fprintf(os.Stderr, "unknown flag: %s\nRun notepad --help for usage.\n", os.Args[1])
		os.Exit(1)
	}

	if len(os.Args) > 1 && os.Args[1] == "--setup" {
		path, err := configPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		current := newDefaultConfig()
		if _, err := os.Stat(path); err == nil {
			current = loadConfig()
		}
		runSetup(path, current, nil)
		return
	}

	cfg := loadConfig()
	log := openLogger(cfg.LogLevel)
	defer log.Sync()

	pp, err := prefsPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	store, err := newNoteStore(cfg.NotesDir, newPrefsStore(pp), log.Named("store"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	launcher := newSystemLauncher()
	installer := newUpdateInstaller(nil, updateCacheDir(), launcher, log.Named("installer"))
	a := app{
		cfg:         cfg,
		store:       store,
		exporter:    newExporter(store, log.Named("export")),
		checker:     newUpdateChecker(nil, cfg.ManifestURL, log.Named("update")),
		installer:   installer,
		launcher:    launcher,
		log:         log,
		versionName: getVersion(),
		versionCode: parseVersionCode(versionCode),
	}
	log.Info("starting", zap.String("version", a.versionName), zap.Int("version_code", a.versionCode), zap.String("notes_dir", cfg.NotesDir))

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not start file watcher: %v\n", err)
		log.Warn("file watcher", zap.Error(err))
		watcher = nil
	} else {
		defer watcher.Close()
		if err := watcher.Add(cfg.NotesDir); err != nil {
			log.Warn("watch notes dir", zap.Error(err))
		}
	}

	p := tea.NewProgram(newModel(a, watcher), tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, runErr := p.Run()

	// A package that was downloaded but never handed to the installer does
	// not outlive the session.
	if err := installer.discard(); err != nil {
		log.Warn("discard pending update", zap.Error(err))
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		os.Exit(1)
	}
}
