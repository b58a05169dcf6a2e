package rotation

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Archive naming.
const (
	TimestampLayout   = "2006-01-02T15:04:05.000000"
	ArchiveExt        = ".logs"
	CompressedExt     = ".zst"
	maxNameCollisions = 1000
)

// Rotator applies a policy to one log file.
//
// Rotator holds no lock: the caller runs Check and Archive inside the same
// critical section that guards writes to the file.
type Rotator struct {
	policy   *Policy
	dir      string
	compress bool
	now      func() time.Time
	pid      int
}

// Option configures a Rotator.
type Option func(*Rotator)

// WithCompression stores archives zstd-compressed as <name>.logs.zst.
func WithCompression() Option {
	return func(r *Rotator) { r.compress = true }
}

// WithClock overrides the clock used for archive names.
func WithClock(now func() time.Time) Option {
	return func(r *Rotator) { r.now = now }
}

// NewRotator binds p to the file at logPath. A relative destination is
// resolved against the directory of logPath.
func NewRotator(p *Policy, logPath string, opts ...Option) *Rotator {
	dir := p.Destination
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(filepath.Dir(logPath), dir)
	}
	r := &Rotator{
		policy: p,
		dir:    filepath.Clean(dir),
		now:    time.Now,
		pid:    os.Getpid(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the rules the rotator applies.
func (r *Rotator) Policy() *Policy {
	return r.policy
}

// Dir returns the resolved archive directory.
func (r *Rotator) Dir() string {
	return r.dir
}

// Check reports whether any rule fires for st.
func (r *Rotator) Check(st FileState) bool {
	return r.policy.Fires(st)
}

// Archive moves the file at path into the archive directory, creating the
// directory on demand, and returns the archive path. The caller reopens
// path afterwards.
func (r *Rotator) Archive(path string) (string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	target, err := r.nextName()
	if err != nil {
		return "", err
	}
	if err := move(path, target); err != nil {
		return "", fmt.Errorf("move %s to %s: %w", path, target, err)
	}

	if r.compress {
		compressed, err := compressFile(target)
		if err != nil {
			// The uncompressed archive is still in place.
			slog.Warn("archive compression failed", "archive", target, "error", err)
			return target, nil
		}
		target = compressed
	}

	slog.Debug("log file rotated", "path", path, "archive", target)
	return target, nil
}

// nextName returns an unused <dir>/<timestamp>_<pid>.logs path.
func (r *Rotator) nextName() (string, error) {
	base := fmt.Sprintf("%s_%d", r.now().Format(TimestampLayout), r.pid)
	for i := 0; i < maxNameCollisions; i++ {
		name := base
		if i > 0 {
			name = fmt.Sprintf("%s.%d", base, i)
		}
		candidate := filepath.Join(r.dir, name+ArchiveExt)
		if !exists(candidate) && !exists(candidate+CompressedExt) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free archive name for %s in %s", base, r.dir)
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// move renames src to dst, falling back to copy and remove across devices.
func move(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) {
		return err
	}
	if cerr := copyFile(src, dst); cerr != nil {
		return errors.Join(err, cerr)
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// compressFile writes path+".zst" and removes path.
func compressFile(path string) (string, error) {
	in, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer in.Close()

	dst := path + CompressedExt
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", err
	}

	enc, err := zstd.NewWriter(out)
	if err != nil {
		out.Close()
		os.Remove(dst)
		return "", err
	}
	if _, err := io.Copy(enc, in); err != nil {
		enc.Close()
		out.Close()
		os.Remove(dst)
		return "", err
	}
	if err := enc.Close(); err != nil {
		out.Close()
		os.Remove(dst)
		return "", err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", err
	}

	in.Close()
	return dst, os.Remove(path)
}

// OpenArchive opens an archive for reading, decompressing .zst archives.
func OpenArchive(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, CompressedExt) {
		return f, nil
	}

	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &archiveReader{dec: dec, file: f}, nil
}

type archiveReader struct {
	dec  *zstd.Decoder
	file *os.File
}

func (a *archiveReader) Read(p []byte) (int, error) {
	return a.dec.Read(p)
}

func (a *archiveReader) Close() error {
	a.dec.Close()
	return a.file.Close()
}

// Archives lists the archives in dir, oldest name first.
func Archives(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(name, ArchiveExt) || strings.HasSuffix(name, ArchiveExt+CompressedExt) {
			out = append(out, filepath.Join(dir, name))
		}
	}
	return out, nil
}
