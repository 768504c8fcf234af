package fileops

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

const (
	dirPerm      = 0750
	filePerm     = 0640
	readOnlyPerm = 0440
)

func (s *Service) execute(req Request) (int64, error) {
	switch req.Op {
	case OpCopy:
		return s.copyFile(req.Src, req.Dst, filePerm)
	case OpCopyReadOnly:
		return s.copyFile(req.Src, req.Dst, readOnlyPerm)
	case OpLink:
		return s.link(req.Src, req.Dst)
	case OpMove:
		return s.move(req.Src, req.Dst)
	case OpDelete:
		return 0, remove(req.Src)
	default:
		return 0, fmt.Errorf("%w: op %d", ErrInvalidRequest, req.Op)
	}
}

// copyFile writes src to a temporary file next to dst, syncs it and
// renames it into place, so dst is either absent or complete.
func (s *Service) copyFile(src, dst string, perm os.FileMode) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), dirPerm); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	n, err := io.Copy(tmp, s.throttle(in))
	if err != nil {
		cleanup()
		return n, fmt.Errorf("copy %s: %w", src, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return n, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return n, err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return n, err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return n, err
	}
	return n, nil
}

func (s *Service) link(src, dst string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), dirPerm); err != nil {
		return 0, err
	}
	err := os.Link(src, dst)
	if errors.Is(err, syscall.EXDEV) {
		return s.copyFile(src, dst, readOnlyPerm)
	}
	return 0, err
}

func (s *Service) move(src, dst string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), dirPerm); err != nil {
		return 0, err
	}
	err := os.Rename(src, dst)
	if !errors.Is(err, syscall.EXDEV) {
		return 0, err
	}
	info, err := os.Stat(src)
	if err != nil {
		return 0, err
	}
	n, err := s.copyFile(src, dst, info.Mode().Perm())
	if err != nil {
		return n, err
	}
	return n, remove(src)
}

func remove(path string) error {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *Service) throttle(r io.Reader) io.Reader {
	if s.limiter == nil {
		return r
	}
	return &rateReader{r: r, s: s}
}

// rateReader waits on the service limiter for every chunk it returns.
type rateReader struct {
	r io.Reader
	s *Service
}

func (rr *rateReader) Read(p []byte) (int, error) {
	if len(p) > rr.s.burst {
		p = p[:rr.s.burst]
	}
	n, err := rr.r.Read(p)
	if n > 0 {
		if werr := rr.s.limiter.WaitN(context.Background(), n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
