// Package source resolves source identities to original image bytes.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/ironsheep/imgresize/internal/errs"
)

// Loader returns the original bytes for a source identity.
type Loader interface {
	Load(ctx context.Context, identity string) ([]byte, error)
}

// FS serves sources from a directory tree. Identities are slash-separated
// paths relative to the root; lookups can never leave it, including through
// symlinks.
type FS struct {
	dir  string
	root *os.Root
	// maxBytes caps how much of one file is read; 0 means unlimited.
	maxBytes int64
}

// NewFS opens dir as a source root.
func NewFS(dir string, maxBytes int64) (*FS, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open source root %s: %w", dir, err)
	}
	return &FS{dir: dir, root: root, maxBytes: maxBytes}, nil
}

// Dir returns the directory the loader was opened on.
func (s *FS) Dir() string {
	return s.dir
}

// Clean normalizes an identity into a root-relative path. It returns false
// for identities that name the root itself.
func Clean(identity string) (string, bool) {
	p := path.Clean("/" + strings.TrimSpace(identity))
	p = strings.TrimPrefix(p, "/")
	if p == "" || p == "." {
		return "", false
	}
	return p, true
}

// Load reads the file behind identity. Missing files, directories and paths
// escaping the root all report errs.SourceNotFound.
func (s *FS) Load(ctx context.Context, identity string) ([]byte, error) {
	const op = "source.load"

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, ok := Clean(identity)
	if !ok {
		return nil, errs.NotFound(op, identity, nil)
	}

	f, err := s.root.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) || isEscape(err) {
			return nil, errs.NotFound(op, identity, err)
		}
		return nil, errs.E(errs.Internal, op, "open "+name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errs.E(errs.Internal, op, "stat "+name, err)
	}
	if !info.Mode().IsRegular() {
		return nil, errs.NotFound(op, identity, nil)
	}

	var r io.Reader = f
	if s.maxBytes > 0 {
		if info.Size() > s.maxBytes {
			return nil, errs.Validationf(op, "source %q is %d bytes, limit is %d", identity, info.Size(), s.maxBytes)
		}
		r = io.LimitReader(f, s.maxBytes)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.E(errs.Internal, op, "read "+name, err)
	}
	return data, nil
}

// Close releases the root directory handle.
func (s *FS) Close() error {
	return s.root.Close()
}

// isEscape reports whether err is os.Root refusing a path outside the root.
func isEscape(err error) bool {
	var pe *fs.PathError
	return errors.As(err, &pe) && pe.Err != nil && strings.Contains(pe.Err.Error(), "escapes")
}
