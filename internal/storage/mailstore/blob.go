package mailstore

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"

	"github.com/yndnr/redolog-go/internal/core/domain"
	"github.com/yndnr/redolog-go/pkg/crypto/adaptive"
)

// Digest returns the content digest the store files blobs under.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// PutBlob stores size bytes from r. Content already stored under digest
// is not written again. An empty digest is computed from the content.
func (s *Store) PutBlob(ctx context.Context, digest string, r io.Reader, size int64) (domain.BlobRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if digest != "" {
		var ref domain.BlobRef
		err := s.getJSON(ctx, blobKey(digest), &ref, errBlobNotFound)
		if err == nil {
			return ref, nil
		}
		if !errors.Is(err, errBlobNotFound) {
			return domain.BlobRef{}, err
		}
	}

	volID, dir, err := s.blobTarget(ctx)
	if err != nil {
		return domain.BlobRef{}, err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return domain.BlobRef{}, domain.ErrStorageError.WithCause(err)
	}
	tmp, err := os.CreateTemp(dir, ".incoming-*")
	if err != nil {
		return domain.BlobRef{}, domain.ErrStorageError.WithCause(err)
	}
	defer os.Remove(tmp.Name())

	h := sha256.New()
	var n int64
	if s.cipher == nil {
		n, err = io.Copy(io.MultiWriter(tmp, h), io.LimitReader(r, size))
	} else {
		n, err = s.copySealed(tmp, io.TeeReader(io.LimitReader(r, size), h), h)
	}
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return domain.BlobRef{}, domain.ErrStorageError.WithCause(err)
	}
	if n != size {
		return domain.BlobRef{}, domain.ErrInvalidArgument.Detailf("blob is %d bytes, want %d", n, size)
	}
	sum := hex.EncodeToString(h.Sum(nil))
	if digest == "" {
		digest = sum
	} else if digest != sum {
		return domain.BlobRef{}, domain.ErrInvalidArgument.Detailf("blob digest %s does not match content %s", digest, sum)
	}

	path := blobPath(dir, digest)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return domain.BlobRef{}, domain.ErrStorageError.WithCause(err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return domain.BlobRef{}, domain.ErrStorageError.WithCause(err)
	}

	ref := domain.BlobRef{Volume: volID, Path: path, Digest: digest, Size: size}
	if err := s.putJSON(ctx, blobKey(digest), &ref); err != nil {
		return domain.BlobRef{}, err
	}
	return ref, nil
}

var errBlobNotFound = errors.New("mailstore: blob not found")

func (s *Store) blobTarget(ctx context.Context) (int16, string, error) {
	id, err := s.currentVolume(ctx, domain.VolumeTypePrimary)
	if err != nil {
		return 0, "", err
	}
	if id == 0 {
		if s.blobDir == "" {
			return 0, "", domain.ErrNoSuchVolume.WithDetails("no current primary volume")
		}
		return 0, s.blobDir, nil
	}
	v, err := s.GetVolume(ctx, id)
	if err != nil {
		return 0, "", err
	}
	return v.ID, v.Path, nil
}

func blobPath(dir, digest string) string {
	if len(digest) < 2 {
		return filepath.Join(dir, digest)
	}
	return filepath.Join(dir, digest[:2], digest)
}

// Sealed blobs are a sequence of chunks, each a 4-byte big-endian length
// followed by one sealed plaintext chunk of at most blobChunkSize bytes.
// Every chunk is bound to its index and to whether it is the last one; the
// last is also bound to the content digest, so a sealed file only opens in
// full under the name it was stored as and cannot be truncated at a chunk
// boundary.
const blobChunkSize = 64 << 10

func chunkAAD(index uint64, final bool, digest string) []byte {
	aad := binary.BigEndian.AppendUint64(make([]byte, 0, 9+len(digest)), index)
	if !final {
		return append(aad, 0)
	}
	return append(append(aad, 1), digest...)
}

// copySealed seals r into w one chunk at a time. h must already have seen
// every byte read from r, so its sum is the content digest once r is
// drained.
func (s *Store) copySealed(w io.Writer, r io.Reader, h hash.Hash) (int64, error) {
	var (
		n     int64
		index uint64
		cur   = make([]byte, blobChunkSize)
		next  = make([]byte, blobChunkSize)
	)
	curLen, err := io.ReadFull(r, cur)
	for {
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return n, err
		}
		final := err != nil
		var nextLen int
		if !final {
			// Read ahead to learn whether cur is the last chunk.
			nextLen, err = io.ReadFull(r, next)
			if err == io.EOF {
				final = true
			} else if err != nil && err != io.ErrUnexpectedEOF {
				return n, err
			}
		}
		aad := chunkAAD(index, final, "")
		if final {
			aad = chunkAAD(index, true, hex.EncodeToString(h.Sum(nil)))
		}
		sealed, serr := s.cipher.Seal(cur[:curLen], aad)
		if serr != nil {
			return n, serr
		}
		var hdr [4]byte
		binary.BigEndian.PutUint32(hdr[:], uint32(len(sealed)))
		if _, werr := w.Write(hdr[:]); werr != nil {
			return n, werr
		}
		if _, werr := w.Write(sealed); werr != nil {
			return n, werr
		}
		n += int64(curLen)
		if final {
			return n, nil
		}
		index++
		cur, next = next, cur
		curLen = nextLen
	}
}

// blobReader opens a sealed blob chunk by chunk. It keeps one sealed chunk
// read ahead so it knows which chunk is the last.
type blobReader struct {
	f      *os.File
	src    *bufio.Reader
	cipher adaptive.Cipher
	digest string
	max    int
	index  uint64
	next   []byte
	buf    []byte
	err    error
}

func (b *blobReader) Read(p []byte) (int, error) {
	for len(b.buf) == 0 {
		if b.err != nil {
			return 0, b.err
		}
		b.err = b.fill()
	}
	n := copy(p, b.buf)
	b.buf = b.buf[n:]
	return n, nil
}

func (b *blobReader) Close() error { return b.f.Close() }

// fill opens the read-ahead chunk. It returns io.EOF once the last chunk
// has been opened.
func (b *blobReader) fill() error {
	if b.next == nil {
		return domain.ErrStorageError.WithCause(fmt.Errorf("blob %s: %w", b.digest, io.ErrUnexpectedEOF))
	}
	cur := b.next
	next, err := b.readChunk()
	if err != nil && err != io.EOF {
		return domain.ErrStorageError.WithCause(fmt.Errorf("blob %s: %w", b.digest, err))
	}
	b.next = next
	final := next == nil
	data, err := b.cipher.Open(cur, chunkAAD(b.index, final, b.digest))
	if err != nil {
		return domain.ErrStorageError.WithCause(fmt.Errorf("blob %s chunk %d: %w", b.digest, b.index, err))
	}
	b.index++
	b.buf = data
	if final {
		return io.EOF
	}
	return nil
}

// readChunk returns the next sealed chunk, or nil and io.EOF at the end of
// the file.
func (b *blobReader) readChunk() ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(b.src, hdr[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if int64(n) > int64(b.max) {
		return nil, fmt.Errorf("sealed chunk of %d bytes exceeds %d", n, b.max)
	}
	chunk := make([]byte, n)
	if _, err := io.ReadFull(b.src, chunk); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return chunk, nil
}

// OpenBlob opens a stored blob. A sealed blob is opened as it is read; the
// first chunk is opened here so a damaged or misnamed small blob fails
// early.
func (s *Store) OpenBlob(ctx context.Context, ref domain.BlobRef) (io.ReadCloser, error) {
	f, err := os.Open(ref.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("blob %s: %w", ref.Digest, os.ErrNotExist)
		}
		return nil, domain.ErrStorageError.WithCause(err)
	}
	if s.cipher == nil {
		return f, nil
	}
	b := &blobReader{
		f:      f,
		src:    bufio.NewReaderSize(f, blobChunkSize+s.cipher.Overhead()+4),
		cipher: s.cipher,
		digest: ref.Digest,
		max:    blobChunkSize + s.cipher.Overhead(),
	}
	if b.next, err = b.readChunk(); err != nil && err != io.EOF {
		f.Close()
		return nil, domain.ErrStorageError.WithCause(fmt.Errorf("blob %s: %w", ref.Digest, err))
	}
	if b.err = b.fill(); b.err != nil && b.err != io.EOF {
		f.Close()
		return nil, b.err
	}
	return b, nil
}
