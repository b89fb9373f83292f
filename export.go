package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

var (
	// errExportCancelled is the normal outcome of dismissing the picker.
	errExportCancelled = errors.New("export cancelled")
	errExportFailed    = errors.New("export failed")
	errNoPendingExport = errors.New("no export in progress")
)

// exportDestination is a writable sink chosen by the user.
type exportDestination interface {
	open() (io.WriteCloser, error)
	String() string
}

// fileDestination writes to a path on the local filesystem. The parent
// directory must already exist.
type fileDestination struct {
	path string
}

func (d fileDestination) open() (io.WriteCloser, error) {
	return os.OpenFile(expandHome(d.path), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
}

func (d fileDestination) String() string {
	return d.path
}

// exporter copies a stored note to an outside destination in two steps:
// request records which note the picker is for, then resolve or cancel
// consumes that record. Content is read at resolve time so the export always
// reflects what is on disk.
type exporter struct {
	store   *noteStore
	log     *zap.Logger
	pending string // title awaiting a destination, "" when idle
}

func newExporter(store *noteStore, log *zap.Logger) *exporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &exporter{store: store, log: log}
}

// request starts an export of title and returns the suggested file name for
// the picker. It fails with errNotFound when the note does not exist. Any
// earlier pending request is dropped either way.
func (e *exporter) request(title string) (string, error) {
	e.pending = ""
	title, err := cleanTitle(title)
	if err != nil {
		return "", err
	}
	if _, err := e.store.read(title); err != nil {
		return "", err
	}
	e.pending = title
	return title + noteExt, nil
}

// pendingTitle reports the note waiting for a destination, if any.
func (e *exporter) pendingTitle() (string, bool) {
	return e.pending, e.pending != ""
}

// cancel drops the pending request and always returns errExportCancelled.
func (e *exporter) cancel() error {
	if e.pending != "" {
		e.log.Debug("export cancelled", zap.String("title", e.pending))
	}
	e.pending = ""
	return errExportCancelled
}

// resolve writes the pending note to dst. Pending state is cleared whatever
// the outcome.
func (e *exporter) resolve(dst exportDestination) error {
	title := e.pending
	e.pending = ""
	if title == "" {
		return errNoPendingExport
	}
	return e.exportTo(title, dst)
}

// exportTo writes the current content of title to dst, flushing and closing
// it. The stored note is only read.
func (e *exporter) exportTo(title string, dst exportDestination) error {
	content, err := e.store.read(title)
	if err != nil {
		return fmt.Errorf("%w: %w", errExportFailed, err)
	}
	w, err := dst.open()
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", errExportFailed, dst, err)
	}
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(content); err != nil {
		w.Close()
		return fmt.Errorf("%w: write %s: %w", errExportFailed, dst, err)
	}
	if err := bw.Flush(); err != nil {
		w.Close()
		return fmt.Errorf("%w: flush %s: %w", errExportFailed, dst, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", errExportFailed, dst, err)
	}
	e.log.Info("note exported", zap.String("title", title), zap.String("destination", dst.String()))
	return nil
}

// suggestedExportPath joins the configured export directory with name.
func suggestedExportPath(exportDir, name string) string {
	if exportDir == "" {
		return name
	}
	return filepath.Join(contractHome(exportDir), name)
}
