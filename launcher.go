package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// packageLauncher hands a file or link to whatever the OS uses to open it.
type packageLauncher interface {
	launch(target string) error
}

// launchFailure classifies why the OS refused to open a package.
type launchFailure int

const (
	launchNone      launchFailure = iota
	launchNoHandler               // no opener installed or no app registered
	launchDenied                  // permission refused
	launchDeclined                // opener ran and reported failure
	launchUnknown
)

func (f launchFailure) message() string {
	switch f {
	case launchNoHandler:
		return "No installer is available to open the update"
	case launchDenied:
		return "Permission denied while opening the update"
	case launchDeclined:
		return "The installer could not open the update package"
	case launchUnknown:
		return "Could not start the installer"
	default:
		return ""
	}
}

type launchError struct {
	code launchFailure
	err  error
}

func (e *launchError) Error() string {
	return fmt.Sprintf("%s: %v", e.code.message(), e.err)
}

func (e *launchError) Unwrap() error { return e.err }

// xdg-open exit status for "a required tool could not be found".
const xdgToolMissing = 3

func classifyLaunchError(err error) launchFailure {
	if err == nil {
		return launchNone
	}
	if errors.Is(err, exec.ErrNotFound) {
		return launchNoHandler
	}
	if errors.Is(err, os.ErrPermission) {
		return launchDenied
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.ExitCode() == xdgToolMissing {
			return launchNoHandler
		}
		return launchDeclined
	}
	return launchUnknown
}

// systemLauncher runs the platform opener and waits for it to report back.
type systemLauncher struct {
	goos string
	run  func(name string, args ...string) error
}

func newSystemLauncher() systemLauncher {
	return systemLauncher{
		goos: runtime.GOOS,
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
}

// openerCommand returns the opener invocation for target. Local paths are
// passed to xdg-open as file:// URIs, since some handlers reject bare paths.
func (l systemLauncher) openerCommand(target string) (string, []string) {
	switch l.goos {
	case "darwin":
		return "open", []string{target}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", target}
	default:
		return "xdg-open", []string{fileURI(target)}
	}
}

func (l systemLauncher) launch(target string) error {
	name, args := l.openerCommand(target)
	if err := l.run(name, args...); err != nil {
		return &launchError{code: classifyLaunchError(err), err: err}
	}
	return nil
}

// fileURI converts an absolute local path to a file:// URI and leaves
// anything that already has a scheme untouched.
func fileURI(target string) string {
	if strings.Contains(target, "://") || !filepath.IsAbs(target) {
		return target
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(target)}
	return u.String()
}
