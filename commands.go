package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fsnotify/fsnotify"
)

// lastSelfWrite tracks when we last wrote to a note file ourselves.
// The file watcher checks this to skip events caused by our own writes.
var lastSelfWrite atomic.Int64

// ─── Commands ────────────────────────────────────────────────────────────────

// copyToClipboard writes text to the system clipboard and reports what was
// copied in the status bar.
func copyToClipboard(text, label string) tea.Cmd {
	return func() tea.Msg {
		if err := clipboard.WriteAll(text); err != nil {
			return errMsg{fmt.Errorf("clipboard: %w", err)}
		}
		return noticeMsg{text: "Copied " + label}
	}
}

// openLink hands a URL to the OS opener off the UI goroutine.
func openLink(l packageLauncher, url string) tea.Cmd {
	return func() tea.Msg {
		if err := l.launch(url); err != nil {
			return errMsg{fmt.Errorf("open %s: %w", url, err)}
		}
		return noticeMsg{text: "Opened " + url}
	}
}

// manualUpdateCmd is the user-initiated check; unlike the startup check it
// always answers, so the status bar can say "up to date".
func manualUpdateCmd(checker *updateChecker, packageID string, versionCode int) tea.Cmd {
	return func() tea.Msg {
		if checker == nil {
			return updateCheckedMsg{}
		}
		return updateCheckedMsg{latest: checker.checkForUpdate(context.Background(), packageID, versionCode)}
	}
}

// startDownload runs fetchPackage on its own goroutine. The done channel is
// written before progress is closed, so a closed progress channel means the
// result is ready.
func startDownload(ctx context.Context, client *http.Client, url, dest string, id int) tea.Cmd {
	return func() tea.Msg {
		progress := make(chan downloadProgress, 1)
		done := make(chan downloadResult, 1)
		go func() {
			done <- fetchPackage(ctx, client, url, dest, progress)
			close(progress)
		}()
		return downloadStartedMsg{id: id, progress: progress, done: done}
	}
}

// waitForDownload blocks until the next progress report or the final result.
func waitForDownload(id int, progress <-chan downloadProgress, done <-chan downloadResult) tea.Cmd {
	return func() tea.Msg {
		p, ok := <-progress
		if !ok {
			return downloadDoneMsg{id: id, result: <-done}
		}
		return downloadProgressMsg{id: id, progress: p}
	}
}

// watchDir watches the notes directory for .txt file changes.
// Sends a fileChangedMsg each time a write/create/remove/rename is detected,
// with a small debounce to coalesce rapid writes.
func watchDir(watcher *fsnotify.Watcher) tea.Cmd {
	return func() tea.Msg {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if !strings.HasSuffix(ev.Name, noteExt) {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
					changed := map[string]bool{filepath.Base(ev.Name): true}
					time.Sleep(100 * time.Millisecond)
				drain:
					for {
						select {
						case extra, ok := <-watcher.Events:
							if !ok {
								break drain
							}
							if strings.HasSuffix(extra.Name, noteExt) {
								changed[filepath.Base(extra.Name)] = true
							}
						default:
							break drain
						}
					}
					// Skip events caused by our own saves, renames and deletes
					if time.Since(time.UnixMilli(lastSelfWrite.Load())) < 500*time.Millisecond {
						continue
					}
					files := make([]string, 0, len(changed))
					for f := range changed {
						files = append(files, f)
					}
					return fileChangedMsg{files: files}
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
			}
		}
	}
}
