package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const (
	downloadConnectTimeout = 15 * time.Second
	downloadIdleTimeout    = 30 * time.Second
	downloadBufferSize     = 8 << 10
	defaultPackageExt      = ".apk"
)

var (
	errInvalidTransition = errors.New("invalid installer transition")
	errCorruptedPackage  = errors.New("downloaded package is corrupted")
	errDownloadStalled   = errors.New("download stalled")
)

type installState int

const (
	stateIdle installState = iota
	stateDownloading
	stateDownloaded
	stateInstalling
	stateInstalled
	stateFailed
)

func (s installState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateDownloading:
		return "downloading"
	case stateDownloaded:
		return "downloaded"
	case stateInstalling:
		return "installing"
	case stateInstalled:
		return "installed"
	case stateFailed:
		return "failed"
	default:
		return fmt.Sprintf("installState(%d)", int(s))
	}
}

type failureReason int

const (
	reasonNone failureReason = iota
	reasonDownloadError
	reasonCorruptedFile
	reasonInstallLaunchFailed
)

func (r failureReason) String() string {
	switch r {
	case reasonDownloadError:
		return "download_error"
	case reasonCorruptedFile:
		return "corrupted_file"
	case reasonInstallLaunchFailed:
		return "install_launch_failed"
	default:
		return "none"
	}
}

// pendingPackage is a downloaded update that has not been installed yet.
type pendingPackage struct {
	localPath    string
	sourceURL    string
	expectedSize int64 // -1 when the server sent no Content-Length
}

type downloadProgress struct {
	written int64
	total   int64
}

// percent is -1 when the total size is unknown.
func (p downloadProgress) percent() int {
	if p.total <= 0 {
		return -1
	}
	pct := int(p.written * 100 / p.total)
	if pct > 100 {
		pct = 100
	}
	return pct
}

type downloadResult struct {
	dest    string // path the fetch was asked to write, set even on failure
	pkg     pendingPackage
	written int64
	err     error
}

// idleReader cancels the download when no bytes arrive for the idle window.
type idleReader struct {
	r     io.Reader
	timer *time.Timer
	idle  time.Duration
}

func (r *idleReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.timer.Reset(r.idle)
	}
	return n, err
}

// progressWriter reports progress after every chunk. Sends never block; a
// slow UI sees fewer updates, not a slower download.
type progressWriter struct {
	w       io.Writer
	written int64
	total   int64
	last    int
	ch      chan<- downloadProgress
}

func (w *progressWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.written += int64(n)
	if w.ch != nil {
		prog := downloadProgress{written: w.written, total: w.total}
		if pct := prog.percent(); pct != w.last || pct < 0 {
			w.last = pct
			select {
			case w.ch <- prog:
			default:
			}
		}
	}
	return n, err
}

// packageFileName names the cache file with a ULID, keeping the extension
// of the remote file so the OS picks the right handler.
func packageFileName(rawURL string) string {
	ext := defaultPackageExt
	if u, err := url.Parse(rawURL); err == nil {
		if e := path.Ext(u.Path); e != "" && len(e) <= 8 {
			ext = e
		}
	}
	return "update-" + ulid.Make().String() + ext
}

// fetchPackage streams url into dest. It touches no installer state and is
// safe to run on any goroutine. Progress is optional. On failure the partial
// file is removed and pkg.localPath is left empty.
func fetchPackage(ctx context.Context, client *http.Client, rawURL, dest string, progress chan<- downloadProgress) (res downloadResult) {
	res = downloadResult{dest: dest, pkg: pendingPackage{sourceURL: rawURL, expectedSize: -1}}
	defer func() {
		if res.err != nil && res.pkg.localPath != "" {
			os.Remove(res.pkg.localPath)
			res.pkg.localPath = ""
		}
	}()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		res.err = err
		return res
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := client.Do(req)
	if err != nil {
		res.err = err
		return res
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		res.err = fmt.Errorf("download: %s", resp.Status)
		return res
	}
	res.pkg.expectedSize = resp.ContentLength

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		res.err = err
		return res
	}
	f, err := os.Create(dest)
	if err != nil {
		res.err = err
		return res
	}
	res.pkg.localPath = dest

	timer := time.AfterFunc(downloadIdleTimeout, func() { cancel(errDownloadStalled) })
	defer timer.Stop()

	src := &idleReader{r: resp.Body, timer: timer, idle: downloadIdleTimeout}
	dst := &progressWriter{w: f, total: res.pkg.expectedSize, last: -2, ch: progress}
	_, copyErr := io.CopyBuffer(dst, src, make([]byte, downloadBufferSize))
	res.written = dst.written
	closeErr := f.Close()

	switch {
	case copyErr != nil && ctx.Err() != nil:
		res.err = context.Cause(ctx)
	case copyErr != nil:
		res.err = copyErr
	case closeErr != nil:
		res.err = closeErr
	}
	return res
}

// verifyPackage checks the downloaded file against what the server announced.
func verifyPackage(pkg pendingPackage) error {
	if pkg.localPath == "" {
		return fmt.Errorf("%w: no file", errCorruptedPackage)
	}
	info, err := os.Stat(pkg.localPath)
	if err != nil {
		return fmt.Errorf("%w: %v", errCorruptedPackage, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: empty file", errCorruptedPackage)
	}
	if pkg.expectedSize > 0 && info.Size() < pkg.expectedSize {
		return fmt.Errorf("%w: %d of %d bytes", errCorruptedPackage, info.Size(), pkg.expectedSize)
	}
	return nil
}

// updateInstaller drives one update from download to hand-off. All methods
// run on the UI goroutine; only fetchPackage and the launch command run
// elsewhere, and their results come back through completeDownload and
// finishInstall.
type updateInstaller struct {
	client   *http.Client
	dir      string
	launcher packageLauncher
	log      *zap.Logger

	state      installState
	reason     failureReason
	launchCode launchFailure
	err        error
	sourceURL  string
	partial    string // file the running download writes, "" when none
	pkg        *pendingPackage
	progress   int
	cancel     context.CancelFunc
}

func newUpdateInstaller(client *http.Client, dir string, launcher packageLauncher, log *zap.Logger) *updateInstaller {
	if client == nil {
		client = newHTTPClient(downloadConnectTimeout, downloadIdleTimeout)
	}
	if launcher == nil {
		launcher = newSystemLauncher()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &updateInstaller{client: client, dir: dir, launcher: launcher, log: log, progress: -1}
}

func (i *updateInstaller) transitionErr(to installState) error {
	return fmt.Errorf("%w: %s -> %s", errInvalidTransition, i.state, to)
}

// beginDownload moves Idle or Failed to Downloading and returns the context
// the fetch must run under. discard cancels it.
func (i *updateInstaller) beginDownload(ctx context.Context, rawURL string) (context.Context, error) {
	if i.state != stateIdle && i.state != stateFailed {
		return nil, i.transitionErr(stateDownloading)
	}
	if rawURL == "" {
		return nil, fmt.Errorf("%w: no package url", errInvalidTransition)
	}
	i.removePackage()
	ctx, cancel := context.WithCancel(ctx)
	i.cancel = cancel
	i.state = stateDownloading
	i.reason = reasonNone
	i.launchCode = launchNone
	i.err = nil
	i.sourceURL = rawURL
	i.partial = filepath.Join(i.dir, packageFileName(rawURL))
	i.progress = -1
	i.log.Info("update download started", zap.String("url", rawURL))
	return ctx, nil
}

// retry restarts a failed update from its original url.
func (i *updateInstaller) retry(ctx context.Context) (context.Context, error) {
	if i.state != stateFailed {
		return nil, i.transitionErr(stateDownloading)
	}
	return i.beginDownload(ctx, i.sourceURL)
}

func (i *updateInstaller) setProgress(p downloadProgress) {
	if i.state == stateDownloading {
		i.progress = p.percent()
	}
}

// completeDownload records the fetch result. The returned error is the
// failure cause when the download failed or the file is unusable. A result
// for any fetch other than the running one only has its file removed.
func (i *updateInstaller) completeDownload(res downloadResult) error {
	if i.state != stateDownloading || res.dest != i.partial {
		if res.pkg.localPath != "" && res.pkg.localPath != i.partial {
			os.Remove(res.pkg.localPath)
		}
		return i.transitionErr(stateDownloaded)
	}
	i.stopDownload()
	i.partial = ""
	pkg := res.pkg
	if res.err != nil {
		if pkg.localPath != "" {
			os.Remove(pkg.localPath)
		}
		return i.fail(reasonDownloadError, res.err)
	}
	if err := verifyPackage(pkg); err != nil {
		if pkg.localPath != "" {
			os.Remove(pkg.localPath)
		}
		return i.fail(reasonCorruptedFile, err)
	}
	i.pkg = &pkg
	i.state = stateDownloaded
	i.progress = 100
	i.log.Info("update downloaded", zap.String("path", pkg.localPath), zap.Int64("bytes", res.written))
	return nil
}

// install moves Downloaded to Installing and returns the command that hands
// the package to the OS. Its installResultMsg goes to finishInstall.
func (i *updateInstaller) install() (tea.Cmd, error) {
	if i.state != stateDownloaded || i.pkg == nil {
		return nil, i.transitionErr(stateInstalling)
	}
	i.state = stateInstalling
	launcher, target := i.launcher, i.pkg.localPath
	return func() tea.Msg {
		return installResultMsg{err: launcher.launch(target)}
	}, nil
}

func (i *updateInstaller) finishInstall(err error) error {
	if i.state != stateInstalling {
		return i.transitionErr(stateInstalled)
	}
	if err != nil {
		code := classifyLaunchError(err)
		var le *launchError
		if errors.As(err, &le) {
			code = le.code
		}
		i.launchCode = code
		return i.fail(reasonInstallLaunchFailed, err)
	}
	i.state = stateInstalled
	i.log.Info("update handed to installer", zap.String("path", i.pkg.localPath))
	return nil
}

func (i *updateInstaller) fail(reason failureReason, err error) error {
	i.state = stateFailed
	i.reason = reason
	i.err = err
	i.log.Warn("update failed", zap.Stringer("reason", reason), zap.Error(err))
	return err
}

func (i *updateInstaller) stopDownload() {
	if i.cancel != nil {
		i.cancel()
		i.cancel = nil
	}
}

// removePartial deletes the file of a download that is still running. The
// fetch has been cancelled and will not complete it.
func (i *updateInstaller) removePartial() error {
	if i.partial == "" {
		return nil
	}
	p := i.partial
	i.partial = ""
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove partial download: %w", err)
	}
	i.log.Debug("partial download removed", zap.String("path", p))
	return nil
}

func (i *updateInstaller) removePackage() error {
	if i.pkg == nil {
		return nil
	}
	p := i.pkg.localPath
	i.pkg = nil
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove pending package: %w", err)
	}
	i.log.Debug("pending package removed", zap.String("path", p))
	return nil
}

// discard abandons the update. A package that was handed to the installer
// is kept; anything else is deleted and the installer returns to Idle.
func (i *updateInstaller) discard() error {
	i.stopDownload()
	if i.state == stateInstalled || i.state == stateInstalling {
		return nil
	}
	err := errors.Join(i.removePartial(), i.removePackage())
	i.state = stateIdle
	i.reason = reasonNone
	i.launchCode = launchNone
	i.err = nil
	i.progress = -1
	return err
}

// statusText is the one-line state shown in the update modal.
func (i *updateInstaller) statusText() string {
	switch i.state {
	case stateDownloading:
		if i.progress < 0 {
			return "Downloading…"
		}
		return fmt.Sprintf("Downloading %d%%", i.progress)
	case stateDownloaded:
		return "Download complete. Press enter to install."
	case stateInstalling:
		return "Opening installer…"
	case stateInstalled:
		return "Update handed to the installer."
	case stateFailed:
		return i.failureText() + ". Press r to retry."
	default:
		return "Press enter to download."
	}
}

func (i *updateInstaller) failureText() string {
	switch i.reason {
	case reasonDownloadError:
		if errors.Is(i.err, errDownloadStalled) {
			return "Download stalled"
		}
		return "Download failed"
	case reasonCorruptedFile:
		return "The downloaded file is damaged"
	case reasonInstallLaunchFailed:
		return i.launchCode.message()
	default:
		return "Update failed"
	}
}
