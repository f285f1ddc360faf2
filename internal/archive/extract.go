package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Limits applied while expanding an archive.
const (
	MaxEntries          = 100_000
	MaxEntryBytes int64 = 2 << 30
	MaxTotalBytes int64 = 8 << 30
)

// Extract expands archivePath into destDir, creating destDir if needed.
// Zip and gzip-compressed tar archives are recognized by extension.
// Entries escaping destDir, absolute names and archives beyond the size
// limits fail with *ExtractError; destDir must then be discarded.
func Extract(archivePath, destDir string) error {
	//nolint:gosec // G301: staging directory needs standard permissions
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return &ExtractError{Archive: archivePath, Err: fmt.Errorf("create %s: %w", destDir, err)}
	}

	x := &extractor{archive: archivePath, dest: destDir}
	name := strings.ToLower(archivePath)
	switch {
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return x.tarball()
	default:
		return x.zip()
	}
}

type extractor struct {
	archive string
	dest    string
	entries int
	total   int64
}

func (x *extractor) fail(entry string, err error) error {
	return &ExtractError{Archive: x.archive, Entry: entry, Err: err}
}

func (x *extractor) zip() error {
	zr, err := zip.OpenReader(x.archive)
	if err != nil {
		if zr != nil {
			_ = zr.Close()
		}
		return x.fail("", err)
	}
	defer func() { _ = zr.Close() }()

	for _, zf := range zr.File {
		target, err := x.admit(zf.Name, int64(zf.UncompressedSize64)) //nolint:gosec // G115: checked against limits in admit
		if err != nil {
			return err
		}
		mode := zf.Mode()
		switch {
		case mode.IsDir():
			if err := x.mkdir(zf.Name, target); err != nil {
				return err
			}
		case mode&fs.ModeSymlink != 0:
			rc, err := zf.Open()
			if err != nil {
				return x.fail(zf.Name, err)
			}
			link, err := io.ReadAll(io.LimitReader(rc, 4096))
			_ = rc.Close()
			if err != nil {
				return x.fail(zf.Name, err)
			}
			if err := x.symlink(zf.Name, target, string(link)); err != nil {
				return err
			}
		default:
			rc, err := zf.Open()
			if err != nil {
				return x.fail(zf.Name, err)
			}
			err = x.writeFile(zf.Name, target, rc, mode.Perm())
			_ = rc.Close()
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (x *extractor) tarball() error {
	//nolint:gosec // G304: archive path is the file we just downloaded
	f, err := os.Open(x.archive)
	if err != nil {
		return x.fail("", err)
	}
	defer func() { _ = f.Close() }()

	gzr, err := gzip.NewReader(f)
	if err != nil {
		return x.fail("", fmt.Errorf("create gzip reader: %w", err))
	}
	defer func() { _ = gzr.Close() }()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return x.fail("", fmt.Errorf("read tar: %w", err))
		}

		target, err := x.admit(header.Name, header.Size)
		if err != nil {
			return err
		}
		switch header.Typeflag {
		case tar.TypeDir:
			if err := x.mkdir(header.Name, target); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := x.writeFile(header.Name, target, tr, fs.FileMode(header.Mode).Perm()); err != nil { //nolint:gosec // G115: mode bits only
				return err
			}
		case tar.TypeSymlink:
			if err := x.symlink(header.Name, target, header.Linkname); err != nil {
				return err
			}
		default:
			return x.fail(header.Name, fmt.Errorf("unsupported entry type %q", header.Typeflag))
		}
	}
}

// admit validates an entry name and its declared size and returns the
// on-disk target path.
func (x *extractor) admit(name string, size int64) (string, error) {
	x.entries++
	if x.entries > MaxEntries {
		return "", x.fail(name, fmt.Errorf("more than %d entries", MaxEntries))
	}
	if size < 0 || size > MaxEntryBytes {
		return "", x.fail(name, fmt.Errorf("entry size %d exceeds %d bytes", size, MaxEntryBytes))
	}
	target, err := x.resolve(name)
	if err != nil {
		return "", x.fail(name, err)
	}
	if err := x.checkNoLinks(target); err != nil {
		return "", x.fail(name, err)
	}
	return target, nil
}

// checkNoLinks refuses targets whose path, below dest, already holds a
// symlink. Writing through an extracted link would land wherever the link
// points, which the name check alone cannot see.
func (x *extractor) checkNoLinks(target string) error {
	rel, err := filepath.Rel(x.dest, target)
	if err != nil {
		return err
	}
	if rel == "." {
		return nil
	}
	cur := x.dest
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		cur = filepath.Join(cur, part)
		info, err := os.Lstat(cur)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("path passes through symlink %s", filepath.ToSlash(mustRel(x.dest, cur)))
		}
	}
	return nil
}

func (x *extractor) resolve(name string) (string, error) {
	clean := strings.ReplaceAll(name, "\\", "/")
	if clean == "" || strings.HasPrefix(clean, "/") || filepath.IsAbs(clean) || filepath.VolumeName(clean) != "" {
		return "", fmt.Errorf("absolute or empty path")
	}
	for _, part := range strings.Split(clean, "/") {
		if part == ".." {
			return "", fmt.Errorf("path escapes destination")
		}
	}
	target := filepath.Join(x.dest, filepath.FromSlash(clean))
	if !within(x.dest, target) {
		return "", fmt.Errorf("path escapes destination")
	}
	return target, nil
}

func (x *extractor) mkdir(name, target string) error {
	//nolint:gosec // G301: extracted directories need standard permissions
	if err := os.MkdirAll(target, 0o755); err != nil {
		return x.fail(name, err)
	}
	return nil
}

func (x *extractor) writeFile(name, target string, r io.Reader, perm fs.FileMode) error {
	if err := x.mkdir(name, filepath.Dir(target)); err != nil {
		return err
	}
	if perm == 0 {
		perm = 0o644
	}
	//nolint:gosec // G304: target was validated to stay inside the staging directory
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm|0o600)
	if err != nil {
		return x.fail(name, err)
	}

	n, err := io.Copy(out, io.LimitReader(r, MaxEntryBytes+1))
	if cerr := out.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return x.fail(name, err)
	}
	if n > MaxEntryBytes {
		return x.fail(name, fmt.Errorf("entry exceeds %d bytes", MaxEntryBytes))
	}
	x.total += n
	if x.total > MaxTotalBytes {
		return x.fail(name, fmt.Errorf("archive expands beyond %d bytes", MaxTotalBytes))
	}
	return nil
}

func (x *extractor) symlink(name, target, link string) error {
	if link == "" || filepath.IsAbs(link) {
		return x.fail(name, fmt.Errorf("unsafe symlink target %q", link))
	}
	if err := x.checkLinkTarget(filepath.Dir(target), link); err != nil {
		return x.fail(name, err)
	}
	if err := x.mkdir(name, filepath.Dir(target)); err != nil {
		return err
	}
	if err := os.Symlink(link, target); err != nil {
		return x.fail(name, err)
	}
	return nil
}

// checkLinkTarget walks link from dir one element at a time. Every step
// must stay inside dest and must not pass through an existing symlink, so
// links cannot be chained to climb out of the staging directory.
func (x *extractor) checkLinkTarget(dir, link string) error {
	cur := dir
	for _, part := range strings.Split(strings.ReplaceAll(link, "\\", "/"), "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			cur = filepath.Dir(cur)
		default:
			cur = filepath.Join(cur, part)
		}
		if !within(x.dest, cur) {
			return fmt.Errorf("symlink %q escapes destination", link)
		}
		info, err := os.Lstat(cur)
		if err == nil && info.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("symlink %q passes through another symlink", link)
		}
	}
	return nil
}

func mustRel(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return rel
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
