package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/garnizeh/jobboard/internal/apperr"
)

// LocalStager keeps blobs as files in a single directory.
type LocalStager struct {
	dir    string
	policy Policy
}

var _ Stager = (*LocalStager)(nil)

// NewLocalStager creates dir if needed and returns a stager rooted there.
func NewLocalStager(dir string, policy Policy) (*LocalStager, error) {
	if dir == "" {
		return nil, fmt.Errorf("blob: upload directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}

	return &LocalStager{dir: dir, policy: policy}, nil
}

// Dir returns the upload directory.
func (s *LocalStager) Dir() string {
	return s.dir
}

// Path resolves a handle to its file for static serving.
func (s *LocalStager) Path(handle string) (string, error) {
	if !ValidHandle(handle) {
		return "", ErrInvalidHandle
	}
	return filepath.Join(s.dir, handle), nil
}

// Stage writes the file with O_EXCL and fsyncs it before returning, so a
// returned handle always names complete, durable content.
func (s *LocalStager) Stage(ctx context.Context, body io.Reader, declaredType string, size int64) (string, error) {
	select {
	case <-ctx.Done():
		return "", apperr.Internal(ctx.Err(), "stage cancelled")
	default:
	}

	r, ext, err := s.policy.admit(body, declaredType, size)
	if err != nil {
		return "", err
	}

	handle := newHandle(ext)
	name := filepath.Join(s.dir, handle)
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", apperr.Internal(err, "create blob")
	}

	if _, err := copyLimited(f, r, s.policy.maxBytes()); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", apperr.Internal(err, "sync blob")
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", apperr.Internal(err, "close blob")
	}

	return handle, nil
}

func (s *LocalStager) Discard(ctx context.Context, handle string) error {
	name, err := s.Path(handle)
	if err != nil {
		return err
	}
	if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove blob %s: %w", handle, err)
	}
	return nil
}

func (s *LocalStager) Open(ctx context.Context, handle string) (io.ReadCloser, error) {
	name, err := s.Path(handle)
	if err != nil {
		return nil, apperr.NotFound("resume not found")
	}
	f, err := os.Open(name) // #nosec G304 - name is built from a validated handle
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.NotFound("resume not found")
		}
		return nil, apperr.Internal(err, "open blob")
	}
	return f, nil
}

// List returns the blobs in the directory, ignoring files that are not handles.
func (s *LocalStager) List(ctx context.Context) ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read upload directory: %w", err)
	}

	var out []Info
	for _, e := range entries {
		if e.IsDir() || !ValidHandle(e.Name()) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		out = append(out, Info{Handle: e.Name(), Size: fi.Size(), ModTime: fi.ModTime()})
	}

	return out, nil
}
