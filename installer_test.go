package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type fakeLauncher struct {
	targets []string
	err     error
}

func (f *fakeLauncher) launch(target string) error {
	f.targets = append(f.targets, target)
	return f.err
}

const packageBody = "PK\x03\x04 fake package contents for tests"

func packageServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/notepad.apk", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(packageBody)))
		w.Write([]byte(packageBody))
	})
	mux.HandleFunc("/empty.apk", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "0")
	})
	mux.HandleFunc("/broken.apk", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// stallServer announces a large body, sends part of it, then hangs until the
// client goes away.
func stallServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(100<<10))
		w.Write(make([]byte, 20<<10))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)
	return srv
}

// waitForFile polls until path exists.
func waitForFile(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(path); err == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("%s never appeared", path)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func newTestInstaller(t *testing.T) (*updateInstaller, *fakeLauncher) {
	t.Helper()
	l := &fakeLauncher{}
	return newUpdateInstaller(nil, filepath.Join(t.TempDir(), "updates"), l, zaptest.NewLogger(t)), l
}

// download runs a full fetch synchronously and feeds the result back.
func download(t *testing.T, i *updateInstaller, url string) error {
	t.Helper()
	ctx, err := i.beginDownload(context.Background(), url)
	if err != nil {
		t.Fatalf("beginDownload: %v", err)
	}
	if i.state != stateDownloading {
		t.Fatalf("state = %s, want downloading", i.state)
	}
	return i.completeDownload(fetchPackage(ctx, i.client, url, i.partial, nil))
}

func dirEntries(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0
	}
	if err != nil {
		t.Fatal(err)
	}
	return len(entries)
}

func TestDownloadAndInstall(t *testing.T) {
	srv := packageServer(t)
	i, l := newTestInstaller(t)

	if err := download(t, i, srv.URL+"/notepad.apk"); err != nil {
		t.Fatalf("download: %v", err)
	}
	if i.state != stateDownloaded || i.pkg == nil {
		t.Fatalf("state = %s, pkg = %v", i.state, i.pkg)
	}
	data, err := os.ReadFile(i.pkg.localPath)
	if err != nil || string(data) != packageBody {
		t.Fatalf("package = %q, %v", data, err)
	}
	if !strings.HasSuffix(i.pkg.localPath, ".apk") {
		t.Fatalf("package path %s lost its extension", i.pkg.localPath)
	}

	cmd, err := i.install()
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if i.state != stateInstalling {
		t.Fatalf("state = %s, want installing", i.state)
	}
	msg := cmd().(installResultMsg)
	if err := i.finishInstall(msg.err); err != nil {
		t.Fatalf("finishInstall: %v", err)
	}
	if i.state != stateInstalled {
		t.Fatalf("state = %s, want installed", i.state)
	}
	if len(l.targets) != 1 || l.targets[0] != i.pkg.localPath {
		t.Fatalf("launched %v", l.targets)
	}

	// The installer owns the file now; discard must not delete it.
	if err := i.discard(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(i.pkg.localPath); err != nil {
		t.Fatalf("installed package removed: %v", err)
	}
}

func TestDownloadFailures(t *testing.T) {
	srv := packageServer(t)
	tests := []struct {
		name   string
		path   string
		reason failureReason
	}{
		{"server error", "/broken.apk", reasonDownloadError},
		{"empty file", "/empty.apk", reasonCorruptedFile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i, _ := newTestInstaller(t)
			if err := download(t, i, srv.URL+tt.path); err == nil {
				t.Fatal("expected error")
			}
			if i.state != stateFailed || i.reason != tt.reason {
				t.Fatalf("state = %s reason = %s, want failed/%s", i.state, i.reason, tt.reason)
			}
			if n := dirEntries(t, i.dir); n != 0 {
				t.Fatalf("%d files left in cache", n)
			}
			if i.failureText() == "" {
				t.Fatal("empty failure text")
			}
		})
	}
}

func TestRetryAfterFailure(t *testing.T) {
	srv := packageServer(t)
	i, _ := newTestInstaller(t)
	if err := download(t, i, srv.URL+"/broken.apk"); err == nil {
		t.Fatal("expected error")
	}

	ctx, err := i.retry(context.Background())
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if i.state != stateDownloading || i.reason != reasonNone {
		t.Fatalf("state = %s reason = %s", i.state, i.reason)
	}
	// Same url still fails, and the installer lands in Failed again.
	if err := i.completeDownload(fetchPackage(ctx, i.client, i.sourceURL, i.partial, nil)); err == nil {
		t.Fatal("expected error")
	}
	if i.state != stateFailed {
		t.Fatalf("state = %s", i.state)
	}
}

func TestInvalidTransitions(t *testing.T) {
	srv := packageServer(t)
	i, _ := newTestInstaller(t)

	if _, err := i.install(); !errors.Is(err, errInvalidTransition) {
		t.Fatalf("install from idle: %v", err)
	}
	if _, err := i.retry(context.Background()); !errors.Is(err, errInvalidTransition) {
		t.Fatalf("retry from idle: %v", err)
	}
	if err := i.finishInstall(nil); !errors.Is(err, errInvalidTransition) {
		t.Fatalf("finishInstall from idle: %v", err)
	}
	if _, err := i.beginDownload(context.Background(), ""); !errors.Is(err, errInvalidTransition) {
		t.Fatalf("empty url: %v", err)
	}

	if err := download(t, i, srv.URL+"/notepad.apk"); err != nil {
		t.Fatal(err)
	}
	if _, err := i.beginDownload(context.Background(), srv.URL+"/notepad.apk"); !errors.Is(err, errInvalidTransition) {
		t.Fatalf("download from downloaded: %v", err)
	}
	if i.state != stateDownloaded {
		t.Fatalf("rejected transition changed state to %s", i.state)
	}
}

func TestLateDownloadResultIsCleanedUp(t *testing.T) {
	srv := packageServer(t)
	i, _ := newTestInstaller(t)

	ctx, err := i.beginDownload(context.Background(), srv.URL+"/notepad.apk")
	if err != nil {
		t.Fatal(err)
	}
	dest := i.partial
	if err := i.discard(); err != nil {
		t.Fatal(err)
	}
	if i.state != stateIdle {
		t.Fatalf("state = %s", i.state)
	}
	res := fetchPackage(context.WithoutCancel(ctx), i.client, srv.URL+"/notepad.apk", dest, nil)
	if err := i.completeDownload(res); !errors.Is(err, errInvalidTransition) {
		t.Fatalf("late result: %v", err)
	}
	if n := dirEntries(t, i.dir); n != 0 {
		t.Fatalf("%d files left after late result", n)
	}
}

func TestDiscardRemovesPartialDownload(t *testing.T) {
	srv := stallServer(t)
	i, _ := newTestInstaller(t)

	ctx, err := i.beginDownload(context.Background(), srv.URL+"/big.apk")
	if err != nil {
		t.Fatal(err)
	}
	dest := i.partial
	done := make(chan downloadResult, 1)
	go func() { done <- fetchPackage(ctx, i.client, srv.URL+"/big.apk", dest, nil) }()
	waitForFile(t, dest)

	if err := i.discard(); err != nil {
		t.Fatal(err)
	}
	if n := dirEntries(t, i.dir); n != 0 {
		t.Fatalf("%d files left after discard", n)
	}

	var res downloadResult
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("fetch did not stop after discard")
	}
	if res.err == nil || res.pkg.localPath != "" {
		t.Fatalf("err = %v localPath = %q", res.err, res.pkg.localPath)
	}
	if n := dirEntries(t, i.dir); n != 0 {
		t.Fatalf("%d files left after fetch returned", n)
	}
}

func TestFetchPackageCancelledMidBody(t *testing.T) {
	srv := stallServer(t)
	dest := filepath.Join(t.TempDir(), "p.apk")
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan downloadProgress, 64)

	done := make(chan downloadResult, 1)
	go func() { done <- fetchPackage(ctx, http.DefaultClient, srv.URL+"/big.apk", dest, ch) }()
	// Wait for some bytes to land before cancelling.
	<-ch
	cancel()

	res := <-done
	if !errors.Is(res.err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", res.err)
	}
	if res.written == 0 {
		t.Fatal("expected a partial body before cancel")
	}
	if _, err := os.Stat(dest); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("partial file left behind: %v", err)
	}
}

func TestCompleteDownloadRejectsOtherFetch(t *testing.T) {
	srv := packageServer(t)
	i, _ := newTestInstaller(t)
	if _, err := i.beginDownload(context.Background(), srv.URL+"/notepad.apk"); err != nil {
		t.Fatal(err)
	}
	running := i.partial

	other := filepath.Join(i.dir, "update-other.apk")
	writeFile(t, other, packageBody)
	res := downloadResult{dest: other, pkg: pendingPackage{localPath: other, expectedSize: -1}}
	if err := i.completeDownload(res); !errors.Is(err, errInvalidTransition) {
		t.Fatalf("completeDownload = %v, want errInvalidTransition", err)
	}
	if i.state != stateDownloading || i.partial != running || i.cancel == nil {
		t.Fatalf("state = %s partial = %q", i.state, i.partial)
	}
	if _, err := os.Stat(other); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("other fetch's file kept: %v", err)
	}
	if err := i.discard(); err != nil {
		t.Fatal(err)
	}
}

func TestDiscardRemovesDownloadedPackage(t *testing.T) {
	srv := packageServer(t)
	i, _ := newTestInstaller(t)
	if err := download(t, i, srv.URL+"/notepad.apk"); err != nil {
		t.Fatal(err)
	}
	path := i.pkg.localPath
	if err := i.discard(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("package still present: %v", err)
	}
	if i.state != stateIdle || i.pkg != nil {
		t.Fatalf("state = %s pkg = %v", i.state, i.pkg)
	}
}

func TestInstallLaunchFailure(t *testing.T) {
	srv := packageServer(t)
	tests := []struct {
		name string
		err  error
		want launchFailure
	}{
		{"no handler", exec.ErrNotFound, launchNoHandler},
		{"denied", os.ErrPermission, launchDenied},
		{"classified", &launchError{code: launchDeclined, err: errors.New("exit status 1")}, launchDeclined},
		{"other", errors.New("weird"), launchUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i, l := newTestInstaller(t)
			l.err = tt.err
			if err := download(t, i, srv.URL+"/notepad.apk"); err != nil {
				t.Fatal(err)
			}
			cmd, err := i.install()
			if err != nil {
				t.Fatal(err)
			}
			if err := i.finishInstall(cmd().(installResultMsg).err); err == nil {
				t.Fatal("expected error")
			}
			if i.state != stateFailed || i.reason != reasonInstallLaunchFailed || i.launchCode != tt.want {
				t.Fatalf("state = %s reason = %s code = %d", i.state, i.reason, i.launchCode)
			}
			if i.failureText() != tt.want.message() {
				t.Fatalf("failureText = %q", i.failureText())
			}
		})
	}
}

func TestFetchPackageReportsProgress(t *testing.T) {
	srv := packageServer(t)
	ch := make(chan downloadProgress, 16)
	res := fetchPackage(context.Background(), http.DefaultClient, srv.URL+"/notepad.apk", filepath.Join(t.TempDir(), "p.apk"), ch)
	if res.err != nil {
		t.Fatal(res.err)
	}
	close(ch)
	var last downloadProgress
	for p := range ch {
		last = p
	}
	if last.percent() != 100 || res.written != int64(len(packageBody)) {
		t.Fatalf("last progress = %+v, written = %d", last, res.written)
	}
}

func TestFetchPackageCancelled(t *testing.T) {
	srv := packageServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dest := filepath.Join(t.TempDir(), "p.apk")
	res := fetchPackage(ctx, http.DefaultClient, srv.URL+"/notepad.apk", dest, nil)
	if res.err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if _, err := os.Stat(dest); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("package file left behind: %v", err)
	}
}

func TestDownloadProgressPercent(t *testing.T) {
	tests := []struct {
		p    downloadProgress
		want int
	}{
		{downloadProgress{written: 10, total: -1}, -1},
		{downloadProgress{written: 10, total: 0}, -1},
		{downloadProgress{written: 0, total: 10}, 0},
		{downloadProgress{written: 5, total: 10}, 50},
		{downloadProgress{written: 20, total: 10}, 100},
	}
	for _, tt := range tests {
		if got := tt.p.percent(); got != tt.want {
			t.Errorf("%+v.percent() = %d, want %d", tt.p, got, tt.want)
		}
	}
}

func TestVerifyPackage(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "full.apk")
	writeFile(t, full, "12345")
	empty := filepath.Join(dir, "empty.apk")
	writeFile(t, empty, "")

	tests := []struct {
		name    string
		pkg     pendingPackage
		wantErr bool
	}{
		{"complete", pendingPackage{localPath: full, expectedSize: 5}, false},
		{"unknown size", pendingPackage{localPath: full, expectedSize: -1}, false},
		{"short", pendingPackage{localPath: full, expectedSize: 10}, true},
		{"empty", pendingPackage{localPath: empty, expectedSize: -1}, true},
		{"missing", pendingPackage{localPath: filepath.Join(dir, "nope.apk")}, true},
		{"no path", pendingPackage{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := verifyPackage(tt.pkg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errCorruptedPackage) {
				t.Fatalf("err = %v, want errCorruptedPackage", err)
			}
		})
	}
}

func TestPackageFileName(t *testing.T) {
	tests := []struct {
		url     string
		wantExt string
	}{
		{"https://example.com/notepad-1.5.apk", ".apk"},
		{"https://example.com/notepad.dmg?sig=abc", ".dmg"},
		{"https://example.com/download", ".apk"},
	}
	for _, tt := range tests {
		got := packageFileName(tt.url)
		if !strings.HasPrefix(got, "update-") || filepath.Ext(got) != tt.wantExt {
			t.Errorf("packageFileName(%q) = %q", tt.url, got)
		}
	}
	if packageFileName("https://example.com/a.apk") == packageFileName("https://example.com/a.apk") {
		t.Error("package names must be unique")
	}
}

func TestStatusText(t *testing.T) {
	i, _ := newTestInstaller(t)
	if !strings.Contains(i.statusText(), "download") {
		t.Fatalf("idle status = %q", i.statusText())
	}
	i.state = stateDownloading
	i.setProgress(downloadProgress{written: 1, total: 4})
	if got := i.statusText(); got != "Downloading 25%" {
		t.Fatalf("downloading status = %q", got)
	}
}
