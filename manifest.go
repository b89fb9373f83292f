package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

const (
	defaultManifestURL     = "https://pagebroke.netlify.app/json/all_apps_versions.json"
	manifestConnectTimeout = 10 * time.Second
	manifestReadTimeout    = 10 * time.Second
	maxManifestBytes       = 1 << 20
)

// appVersion is one package's entry in the manifest.
type appVersion struct {
	LatestVersionCode int    `json:"latestVersionCode"`
	LatestVersionName string `json:"latestVersionName"`
	ReleaseNotes      string `json:"releaseNotes"`
	APKURL            string `json:"apkUrl"`
}

type updateManifest struct {
	Apps map[string]appVersion `json:"apps"`
}

// newHTTPClient builds a client whose dial and response-header waits are
// bounded separately. Body reads are bounded by the caller's context.
func newHTTPClient(connectTimeout, readTimeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: connectTimeout}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   connectTimeout,
			ResponseHeaderTimeout: readTimeout,
		},
	}
}

// updateChecker fetches the manifest and compares it to the running build.
// Every failure is logged and reported as "no update".
type updateChecker struct {
	client *http.Client
	url    string
	log    *zap.Logger
}

func newUpdateChecker(client *http.Client, url string, log *zap.Logger) *updateChecker {
	if client == nil {
		client = newHTTPClient(manifestConnectTimeout, manifestReadTimeout)
	}
	if url == "" {
		url = defaultManifestURL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &updateChecker{client: client, url: url, log: log}
}

func (c *updateChecker) fetchManifest(ctx context.Context) (*updateManifest, error) {
	ctx, cancel := context.WithTimeout(ctx, manifestConnectTimeout+manifestReadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("User-Agent", "notepad-update-check")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("manifest: %s", resp.Status)
	}

	var m updateManifest
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxManifestBytes)).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// checkForUpdate returns the manifest entry for packageID when it is strictly
// newer than versionCode, and nil otherwise, including on any failure.
func (c *updateChecker) checkForUpdate(ctx context.Context, packageID string, versionCode int) *appVersion {
	if versionCode < 0 || packageID == "" {
		c.log.Debug("update check skipped", zap.String("package", packageID), zap.Int("version_code", versionCode))
		return nil
	}
	m, err := c.fetchManifest(ctx)
	if err != nil {
		c.log.Warn("update check failed", zap.String("url", c.url), zap.Error(err))
		return nil
	}
	latest, ok := m.Apps[packageID]
	if !ok {
		known := make([]string, 0, len(m.Apps))
		for id := range m.Apps {
			known = append(known, id)
		}
		c.log.Debug("package missing from manifest", zap.String("package", packageID), zap.Strings("available", known))
		return nil
	}
	c.log.Debug("update check",
		zap.Int("latest", latest.LatestVersionCode),
		zap.Int("current", versionCode))
	if latest.LatestVersionCode <= versionCode {
		return nil
	}
	return &latest
}

// parseVersionCode reads the integer build number; -1 means unknown.
func parseVersionCode(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return -1
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// startupUpdateCmd runs the check off the UI goroutine and delivers only
// the optional result. Dev builds without a version code skip it.
func startupUpdateCmd(checker *updateChecker, packageID string, versionCode int) tea.Cmd {
	if checker == nil || versionCode < 0 {
		return nil
	}
	return func() tea.Msg {
		latest := checker.checkForUpdate(context.Background(), packageID, versionCode)
		if latest == nil {
			return nil
		}
		return updateAvailableMsg{version: *latest}
	}
}
