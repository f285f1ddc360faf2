package archive

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
	"strings"
	"sync"
	"time"

	"calibrator/internal/debug"
)

const (
	// DefaultStallTimeout aborts a download that delivers no bytes for this long.
	DefaultStallTimeout = 30 * time.Second

	// DefaultPrefix names temporary update files.
	DefaultPrefix = "CameraCalibrator"

	// MaxDownloadBytes caps a release asset (4 GB).
	MaxDownloadBytes int64 = 4 << 30

	chunkSize = 32 << 10
)

// ProgressFunc receives download progress as a fraction in [0,1].
type ProgressFunc func(fraction float64)

// Downloader streams release assets to local temporary files.
type Downloader struct {
	httpClient   *http.Client
	stallTimeout time.Duration
	tempDir      string
	prefix       string
	userAgent    string
	maxBytes     int64
}

// DownloadOption configures a Downloader.
type DownloadOption func(*Downloader)

// WithHTTPClient sets a custom HTTP client for downloads.
func WithHTTPClient(client *http.Client) DownloadOption {
	return func(d *Downloader) {
		d.httpClient = client
	}
}

// WithStallTimeout sets how long the stream may go without delivering bytes.
func WithStallTimeout(timeout time.Duration) DownloadOption {
	return func(d *Downloader) {
		if timeout > 0 {
			d.stallTimeout = timeout
		}
	}
}

// WithTempDir overrides the directory downloads are written to.
func WithTempDir(dir string) DownloadOption {
	return func(d *Downloader) {
		d.tempDir = dir
	}
}

// WithPrefix sets the file name prefix of downloaded archives.
func WithPrefix(prefix string) DownloadOption {
	return func(d *Downloader) {
		d.prefix = prefix
	}
}

// WithMaxBytes caps the accepted download size.
func WithMaxBytes(n int64) DownloadOption {
	return func(d *Downloader) {
		if n > 0 {
			d.maxBytes = n
		}
	}
}

// NewDownloader creates a Downloader with defaults suitable for release assets.
func NewDownloader(opts ...DownloadOption) *Downloader {
	d := &Downloader{
		httpClient: &http.Client{
			Timeout: 0, // bounded by the stall timer instead
		},
		stallTimeout: DefaultStallTimeout,
		tempDir:      os.TempDir(),
		prefix:       DefaultPrefix,
		userAgent:    "calibrator-updater",
		maxBytes:     MaxDownloadBytes,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// TempPath returns the file a download of rawURL by this process is written to.
// The name is keyed by process id so concurrent instances do not collide.
func (d *Downloader) TempPath(rawURL string) string {
	return filepath.Join(d.tempDir, fmt.Sprintf("%s_update_%d%s", d.prefix, os.Getpid(), archiveExt(rawURL)))
}

// Download streams rawURL to TempPath(rawURL) and returns that path.
// When the response carries a Content-Length, progress is called after
// every chunk; otherwise it is called once with 1.0 on completion.
// On failure the partial file is left for diagnostics and a *DownloadError
// is returned.
func (d *Downloader) Download(ctx context.Context, rawURL string, progress ProgressFunc) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stall := newStallTimer(d.stallTimeout, cancel)
	defer stall.stop()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return "", &DownloadError{URL: redactURL(rawURL), Err: err}
	}
	req.Header.Set("Accept", "application/octet-stream")
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", &DownloadError{URL: redactURL(rawURL), Err: stall.explain(err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &DownloadError{URL: redactURL(rawURL), Status: resp.StatusCode}
	}
	if resp.ContentLength > d.maxBytes {
		return "", &DownloadError{URL: redactURL(rawURL), Err: fmt.Errorf("asset is %d bytes, limit %d", resp.ContentLength, d.maxBytes)}
	}

	dest := d.TempPath(rawURL)
	written, err := d.writeFile(dest, resp, stall, progress)
	if err != nil {
		debug.Warn("download aborted", "url", redactURL(rawURL), "written", written, "path", dest, "err", err)
		return "", &DownloadError{URL: redactURL(rawURL), Path: dest, Err: stall.explain(err)}
	}

	if resp.ContentLength <= 0 && progress != nil {
		progress(1.0)
	}
	debug.Info("download complete", "path", dest, "bytes", written)
	return dest, nil
}

func (d *Downloader) writeFile(dest string, resp *http.Response, stall *stallTimer, progress ProgressFunc) (written int64, err error) {
	//nolint:gosec // G304: destination is computed from the temp dir and pid
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", dest, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", dest, cerr)
		}
	}()

	total := resp.ContentLength
	body := io.LimitReader(resp.Body, d.maxBytes+1)
	buf := make([]byte, chunkSize)
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			stall.reset()
			if _, werr := f.Write(buf[:n]); werr != nil {
				return written, fmt.Errorf("write %s: %w", dest, werr)
			}
			written += int64(n)
			if written > d.maxBytes {
				return written, fmt.Errorf("asset exceeds %d bytes", d.maxBytes)
			}
			if total > 0 && progress != nil {
				progress(clamp(float64(written) / float64(total)))
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return written, rerr
		}
	}
	if total > 0 && written != total {
		return written, fmt.Errorf("short body: got %d of %d bytes", written, total)
	}
	return written, nil
}

// stallTimer cancels the request when no bytes arrive within the timeout.
type stallTimer struct {
	mu      sync.Mutex
	timeout time.Duration
	timer   *time.Timer
	fired   bool
}

func newStallTimer(timeout time.Duration, cancel context.CancelFunc) *stallTimer {
	s := &stallTimer{timeout: timeout}
	s.timer = time.AfterFunc(timeout, func() {
		s.mu.Lock()
		s.fired = true
		s.mu.Unlock()
		cancel()
	})
	return s
}

func (s *stallTimer) reset() { s.timer.Reset(s.timeout) }

func (s *stallTimer) stop() { s.timer.Stop() }

func (s *stallTimer) explain(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fired {
		return fmt.Errorf("no data received for %s: %w", s.timeout, err)
	}
	return err
}

func clamp(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

// archiveExt returns the archive extension of the URL's file name.
func archiveExt(rawURL string) string {
	name := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		name = u.Path
	}
	name = strings.ToLower(path.Base(name))
	for _, ext := range []string{".tar.gz", ".tgz", ".zip"} {
		if strings.HasSuffix(name, ext) {
			return ext
		}
	}
	return ".zip"
}

// redactURL strips query parameters and fragments for safe inclusion in errors.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid-url>"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
