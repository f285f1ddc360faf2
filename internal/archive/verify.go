package archive

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedisct1/go-minisign"
)

// maxSidecarBytes bounds signature and checksum downloads (1 MB).
const maxSidecarBytes = 1 << 20

// LoadPublicKey accepts either a path to a minisign .pub file or the
// base64 key itself.
func LoadPublicKey(keyOrPath string) (minisign.PublicKey, error) {
	keyOrPath = strings.TrimSpace(keyOrPath)
	if info, err := os.Stat(keyOrPath); err == nil && !info.IsDir() {
		pk, err := minisign.NewPublicKeyFromFile(keyOrPath)
		if err != nil {
			return minisign.PublicKey{}, fmt.Errorf("read minisign pubkey: %w", err)
		}
		return pk, nil
	}
	pk, err := minisign.NewPublicKey(keyOrPath)
	if err != nil {
		return minisign.PublicKey{}, fmt.Errorf("decode minisign pubkey: %w", err)
	}
	return pk, nil
}

// VerifySignature checks archivePath against the detached minisign
// signature published at sigURL.
func (d *Downloader) VerifySignature(ctx context.Context, archivePath, sigURL string, pubKey minisign.PublicKey) error {
	if sigURL == "" {
		return &SignatureError{Archive: archivePath, Reason: "release publishes no signature"}
	}
	raw, err := d.fetchSidecar(ctx, sigURL)
	if err != nil {
		return &SignatureError{Archive: archivePath, Reason: "fetch signature", Err: err}
	}
	sig, err := minisign.DecodeSignature(string(raw))
	if err != nil {
		return &SignatureError{Archive: archivePath, Reason: "decode signature", Err: err}
	}

	//nolint:gosec // G304: archive path is the file we just downloaded
	content, err := os.ReadFile(archivePath)
	if err != nil {
		return &SignatureError{Archive: archivePath, Reason: "read archive", Err: err}
	}
	valid, err := pubKey.Verify(content, sig)
	if err != nil {
		return &SignatureError{Archive: archivePath, Reason: "verify", Err: err}
	}
	if !valid {
		return &SignatureError{Archive: archivePath, Reason: "signature does not match"}
	}
	return nil
}

// VerifyChecksumFromURL downloads a checksums file and checks archivePath
// against the entry for assetName.
func (d *Downloader) VerifyChecksumFromURL(ctx context.Context, archivePath, assetName, checksumURL string) error {
	raw, err := d.fetchSidecar(ctx, checksumURL)
	if err != nil {
		return &ChecksumError{Archive: archivePath, Err: err}
	}
	sums, err := ParseChecksumFile(strings.NewReader(string(raw)))
	if err != nil {
		return &ChecksumError{Archive: archivePath, Err: err}
	}
	expected, ok := sums[assetName]
	if !ok {
		return &ChecksumError{Archive: archivePath, Err: fmt.Errorf("no checksum listed for %s", assetName)}
	}
	return VerifyChecksum(archivePath, expected)
}

func (d *Downloader) fetchSidecar(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", redactURL(rawURL), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", redactURL(rawURL), resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxSidecarBytes))
}

// VerifyChecksum verifies a file against an expected SHA256 checksum.
func VerifyChecksum(path, expected string) error {
	//nolint:gosec // G304: Path comes from caller; this is intentional for checksum verification
	f, err := os.Open(path)
	if err != nil {
		return &ChecksumError{Archive: path, Err: fmt.Errorf("open file: %w", err)}
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return &ChecksumError{Archive: path, Err: fmt.Errorf("hash file: %w", err)}
	}

	actual := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(actual, expected) {
		return &ChecksumError{Archive: path, Expected: expected, Actual: actual}
	}
	return nil
}

// ParseChecksumFile parses "sha256  filename" lines into a filename to hash map.
func ParseChecksumFile(r io.Reader) (map[string]string, error) {
	checksums := make(map[string]string)
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		hash := fields[0]
		filename := filepath.Base(strings.TrimPrefix(fields[1], "*"))
		checksums[filename] = hash
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read checksums: %w", err)
	}
	return checksums, nil
}
