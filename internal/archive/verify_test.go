package archive

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/jedisct1/go-minisign"

	apperrors "calibrator/internal/errors"
)

func TestParseChecksumFile(t *testing.T) {
	input := `# release checksums
abc123  CameraCalibrator-2.0.0.zip
def456 *./dist/CameraCalibrator-2.0.0.tar.gz

malformed line here too
`
	sums, err := ParseChecksumFile(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseChecksumFile() error: %v", err)
	}
	if sums["CameraCalibrator-2.0.0.zip"] != "abc123" {
		t.Errorf("zip checksum = %q", sums["CameraCalibrator-2.0.0.zip"])
	}
	if sums["CameraCalibrator-2.0.0.tar.gz"] != "def456" {
		t.Errorf("tarball checksum = %q", sums["CameraCalibrator-2.0.0.tar.gz"])
	}
	if len(sums) != 2 {
		t.Errorf("len = %d, want 2", len(sums))
	}
}

func TestVerifyChecksumFromURL(t *testing.T) {
	dir := t.TempDir()
	archivePath := join(dir, "pkg.zip")
	content := []byte("package bytes")
	if err := os.WriteFile(archivePath, content, 0o644); err != nil {
		t.Fatal(err)
	}
	sum := sha256.Sum256(content)
	good := hex.EncodeToString(sum[:])

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/good.txt":
			_, _ = w.Write([]byte(good + "  CameraCalibrator.zip\n"))
		case "/bad.txt":
			_, _ = w.Write([]byte(strings.Repeat("0", 64) + "  CameraCalibrator.zip\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	d := NewDownloader(WithTempDir(dir))
	ctx := context.Background()

	if err := d.VerifyChecksumFromURL(ctx, archivePath, "CameraCalibrator.zip", server.URL+"/good.txt"); err != nil {
		t.Errorf("good checksum: %v", err)
	}
	err := d.VerifyChecksumFromURL(ctx, archivePath, "CameraCalibrator.zip", server.URL+"/bad.txt")
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("bad checksum error = %v, want ErrChecksumMismatch", err)
	}
	if !apperrors.IsCode(err, apperrors.CodeChecksum) {
		t.Errorf("bad checksum code = %q, want %q", apperrors.CodeOf(err), apperrors.CodeChecksum)
	}
	if err := d.VerifyChecksumFromURL(ctx, archivePath, "Other.zip", server.URL+"/good.txt"); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("unlisted asset error = %v, want ErrChecksumMismatch", err)
	}
	if err := d.VerifyChecksumFromURL(ctx, archivePath, "CameraCalibrator.zip", server.URL+"/missing"); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("missing file error = %v, want ErrChecksumMismatch", err)
	}
}

func TestLoadPublicKeyRejectsGarbage(t *testing.T) {
	if _, err := LoadPublicKey("not-a-key"); err == nil {
		t.Fatal("expected error for malformed key")
	}
}

func TestVerifySignatureFailures(t *testing.T) {
	dir := t.TempDir()
	archivePath := join(dir, "pkg.zip")
	if err := os.WriteFile(archivePath, []byte("package bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("untrusted comment: nope\nnot base64 at all\n"))
	}))
	defer server.Close()

	d := NewDownloader(WithTempDir(dir))
	var key minisign.PublicKey

	err := d.VerifySignature(context.Background(), archivePath, "", key)
	if !errors.Is(err, ErrSignature) {
		t.Errorf("no signature URL: error = %v, want ErrSignature", err)
	}
	if !apperrors.IsCode(err, apperrors.CodeSignature) {
		t.Errorf("no signature URL: code = %q, want %q", apperrors.CodeOf(err), apperrors.CodeSignature)
	}
	if err := d.VerifySignature(context.Background(), archivePath, server.URL+"/pkg.zip.minisig", key); !errors.Is(err, ErrSignature) {
		t.Errorf("malformed signature: error = %v, want ErrSignature", err)
	}
}

func TestVerifyChecksumCode(t *testing.T) {
	path := join(t.TempDir(), "pkg.zip")
	if err := os.WriteFile(path, []byte("package bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := VerifyChecksum(path, "00")
	var cerr *ChecksumError
	if !errors.As(err, &cerr) || cerr.Expected != "00" || cerr.Actual == "" {
		t.Fatalf("VerifyChecksum() error = %v, want *ChecksumError", err)
	}
	if got := apperrors.CodeOf(err); got != apperrors.CodeChecksum {
		t.Errorf("code = %q, want %q", got, apperrors.CodeChecksum)
	}
}

// minisignKey is an Ed25519 key pair encoded the way minisign writes it.
type minisignKey struct {
	id   [8]byte
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

func newMinisignKey(t *testing.T) minisignKey {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	k := minisignKey{priv: priv, pub: pub}
	if _, err := rand.Read(k.id[:]); err != nil {
		t.Fatal(err)
	}
	return k
}

func (k minisignKey) publicKey() string {
	bin := append([]byte("Ed"), k.id[:]...)
	return base64.StdEncoding.EncodeToString(append(bin, k.pub...))
}

func (k minisignKey) sign(content []byte) string {
	sig := ed25519.Sign(k.priv, content)
	trusted := "timestamp:1700000000\tfile:CameraCalibrator.zip"
	global := ed25519.Sign(k.priv, append(append([]byte{}, sig...), trusted...))

	line := append([]byte("Ed"), k.id[:]...)
	line = append(line, sig...)
	return "untrusted comment: signature from minisign secret key\n" +
		base64.StdEncoding.EncodeToString(line) + "\n" +
		"trusted comment: " + trusted + "\n" +
		base64.StdEncoding.EncodeToString(global) + "\n"
}

func TestVerifySignature(t *testing.T) {
	dir := t.TempDir()
	content := []byte("package bytes")
	archivePath := join(dir, "pkg.zip")
	if err := os.WriteFile(archivePath, content, 0o644); err != nil {
		t.Fatal(err)
	}
	tampered := join(dir, "tampered.zip")
	if err := os.WriteFile(tampered, []byte("package bytes, modified"), 0o644); err != nil {
		t.Fatal(err)
	}

	signer := newMinisignKey(t)
	stranger := newMinisignKey(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/pkg.zip.minisig":
			_, _ = w.Write([]byte(signer.sign(content)))
		case "/stranger.minisig":
			_, _ = w.Write([]byte(stranger.sign(content)))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	key, err := LoadPublicKey(signer.publicKey())
	if err != nil {
		t.Fatalf("LoadPublicKey() error: %v", err)
	}
	d := NewDownloader(WithTempDir(dir))
	ctx := context.Background()

	if err := d.VerifySignature(ctx, archivePath, server.URL+"/pkg.zip.minisig", key); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}

	tests := []struct {
		name    string
		archive string
		sigPath string
	}{
		{"tampered content", tampered, "/pkg.zip.minisig"},
		{"other key", archivePath, "/stranger.minisig"},
		{"missing signature file", archivePath, "/absent.minisig"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.VerifySignature(ctx, tt.archive, server.URL+tt.sigPath, key)
			if !errors.Is(err, ErrSignature) {
				t.Fatalf("error = %v, want ErrSignature", err)
			}
			if !apperrors.IsCode(err, apperrors.CodeSignature) {
				t.Errorf("code = %q, want %q", apperrors.CodeOf(err), apperrors.CodeSignature)
			}
		})
	}
}
