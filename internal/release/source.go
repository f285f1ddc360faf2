// Package release looks up the latest published release of the application
// on GitHub and decides whether it is an installable update.
package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"calibrator/internal/debug"
	apperrors "calibrator/internal/errors"
	"calibrator/internal/version"
)

// Default configuration values.
const (
	DefaultRepoOwner  = "aiigoradam"
	DefaultRepoName   = "camera-calibrator"
	DefaultBaseURL    = "https://api.github.com"
	DefaultProductID  = "CameraCalibrator"
	DefaultPackageExt = ".zip"
	DefaultTimeout    = 10 * time.Second

	// SignatureSuffix is appended to an asset name to find its minisign signature.
	SignatureSuffix = ".minisig"

	// maxJSONResponseBytes bounds the registry response (10 MB).
	maxJSONResponseBytes = 10 << 20
)

// Error variables for specific error conditions.
var (
	ErrNetworkFailure = errors.New("network request failed")
	ErrRateLimited    = errors.New("rate limited by GitHub API")
)

// Asset is a downloadable file attached to a release.
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

// githubRelease is the JSON wire format of the latest-release endpoint.
type githubRelease struct {
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	Body        string    `json:"body"`
	HTMLURL     string    `json:"html_url"`
	PublishedAt time.Time `json:"published_at"`
	Assets      []Asset   `json:"assets"`
}

// Source queries the release registry.
type Source struct {
	owner      string
	repo       string
	baseURL    string
	token      string
	userAgent  string
	productID  string
	packageExt string
	timeout    time.Duration
	httpClient *http.Client
}

// Option configures a Source.
type Option func(*Source)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Source) {
		s.httpClient = client
	}
}

// WithBaseURL overrides the API base URL, primarily for test servers.
func WithBaseURL(base string) Option {
	return func(s *Source) {
		s.baseURL = strings.TrimRight(base, "/")
	}
}

// WithToken sets a GitHub token sent with the metadata request.
func WithToken(token string) Option {
	return func(s *Source) {
		s.token = token
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(s *Source) {
		s.userAgent = ua
	}
}

// WithTimeout bounds the whole metadata request.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Source) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithProductID sets the substring an asset name must contain.
func WithProductID(id string) Option {
	return func(s *Source) {
		s.productID = id
	}
}

// WithPackageExt sets the suffix an asset name must end with.
func WithPackageExt(ext string) Option {
	return func(s *Source) {
		s.packageExt = ext
	}
}

// New creates a Source for the given repository.
func New(owner, repo string, opts ...Option) *Source {
	s := &Source{
		owner:      owner,
		repo:       repo,
		baseURL:    DefaultBaseURL,
		userAgent:  "calibrator-updater",
		productID:  DefaultProductID,
		packageExt: DefaultPackageExt,
		timeout:    DefaultTimeout,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchLatest looks up the latest release and compares it with currentVersion.
// It never returns an error: failures are reported as CheckFailed.
func (s *Source) FetchLatest(ctx context.Context, currentVersion string) Result {
	rel, err := s.fetchLatestRelease(ctx)
	if err != nil {
		debug.Warn("release lookup failed", "err", err)
		return CheckFailed{Current: currentVersion, Err: err}
	}
	if strings.TrimSpace(rel.TagName) == "" {
		return CheckFailed{Current: currentVersion, Err: apperrors.New(apperrors.CodeParse, "release has no tag", nil)}
	}

	info := ReleaseInfo{
		CurrentVersion: currentVersion,
		LatestTag:      rel.TagName,
		LatestVersion:  strings.TrimPrefix(strings.TrimSpace(rel.TagName), "v"),
		ReleaseNotes:   rel.Body,
		ReleaseURL:     rel.HTMLURL,
		PublishedAt:    rel.PublishedAt,
	}
	asset, sig := s.findAsset(rel.Assets)
	noUpdate := func(reason NoUpdateReason) Result {
		debug.Info("no update", "current", currentVersion, "latest", info.LatestVersion, "reason", reason)
		return NoUpdate{Current: currentVersion, Latest: info.LatestVersion, Reason: reason, Release: info}
	}

	newer, err := version.IsUpdateAvailable(currentVersion, info.LatestVersion)
	var amb *version.AmbiguousComparisonError
	switch {
	case errors.As(err, &amb):
		debug.Warn("ambiguous version comparison", "current", amb.Current, "latest", amb.Latest, "err", amb.Err)
		if !amb.TagsDiffer() {
			return noUpdate(ReasonAmbiguous)
		}
		if asset == nil {
			return noUpdate(ReasonNoAsset)
		}
		info.Ambiguous = true
	case err != nil:
		return CheckFailed{Current: currentVersion, Err: err}
	case !newer:
		return noUpdate(ReasonUpToDate)
	case asset == nil:
		return noUpdate(ReasonNoAsset)
	}

	info.Available = true
	info.AssetName = asset.Name
	info.DownloadURL = asset.BrowserDownloadURL
	if sig != nil {
		info.SignatureURL = sig.BrowserDownloadURL
	}
	if sums := findChecksums(rel.Assets); sums != nil {
		info.ChecksumURL = sums.BrowserDownloadURL
	}
	debug.Info("update available", "current", currentVersion, "latest", info.LatestVersion, "asset", asset.Name)
	return UpdateAvailable{Info: info}
}

// fetchLatestRelease fetches the latest release from the GitHub API.
func (s *Source) fetchLatestRelease(ctx context.Context) (*githubRelease, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/repos/%s/%s/releases/latest", s.baseURL, s.owner, s.repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeNetwork, "create request", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", s.userAgent)
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeNetwork, "fetch latest release",
			fmt.Errorf("%w: %v", ErrNetworkFailure, err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0" {
		return nil, apperrors.New(apperrors.CodeNetwork, "fetch latest release", ErrRateLimited)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperrors.New(apperrors.CodeNetwork, "fetch latest release",
			fmt.Errorf("%w: status %d", ErrNetworkFailure, resp.StatusCode))
	}

	var rel githubRelease
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONResponseBytes)).Decode(&rel); err != nil {
		return nil, apperrors.New(apperrors.CodeParse, "decode release response", err)
	}
	return &rel, nil
}

// findAsset returns the first asset whose name ends in the package extension
// and contains the product identifier, plus its signature asset if present.
// The first qualifying asset wins even when later ones also qualify.
func (s *Source) findAsset(assets []Asset) (*Asset, *Asset) {
	var pkg *Asset
	for i := range assets {
		name := assets[i].Name
		if strings.HasSuffix(name, s.packageExt) && strings.Contains(name, s.productID) {
			pkg = &assets[i]
			break
		}
	}
	if pkg == nil {
		return nil, nil
	}
	for i := range assets {
		if assets[i].Name == pkg.Name+SignatureSuffix {
			return pkg, &assets[i]
		}
	}
	return pkg, nil
}

// checksumNames are the checksum file names a release may publish.
var checksumNames = []string{"checksums.txt", "SHA256SUMS", "SHA256SUMS.txt"}

func findChecksums(assets []Asset) *Asset {
	for i := range assets {
		for _, name := range checksumNames {
			if strings.EqualFold(assets[i].Name, name) {
				return &assets[i]
			}
		}
	}
	return nil
}
