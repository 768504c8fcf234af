package adaptive

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the key length both ciphers take.
const KeySize = 32

// Type identifies a cipher.
type Type string

const (
	AESGCM   Type = "aes-gcm"
	ChaCha20 Type = "chacha20-poly1305"
)

// Tags written in front of sealed data.
const (
	tagAESGCM   byte = 1
	tagChaCha20 byte = 2
)

var (
	ErrKeySize     = errors.New("adaptive: key must be 32 bytes")
	ErrUnknownType = errors.New("adaptive: unknown cipher type")
	ErrShortInput  = errors.New("adaptive: sealed data too short")
	ErrOpen        = errors.New("adaptive: message authentication failed")
)

// Cipher seals and opens data. Implementations are safe for concurrent use.
type Cipher interface {
	Type() Type
	Seal(plaintext, aad []byte) ([]byte, error)
	Open(sealed, aad []byte) ([]byte, error)
	// Overhead is the number of bytes Seal adds.
	Overhead() int
}

// New returns the preferred cipher for this host.
func New(key []byte) (Cipher, error) {
	return NewWithType(key, Preferred())
}

// NewWithType returns a cipher of type t.
func NewWithType(key []byte, t Type) (Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	c := &aeadCipher{typ: t}
	var err error
	switch t {
	case AESGCM:
		c.seal, err = newAESGCM(key)
	case ChaCha20:
		c.seal, err = chacha20poly1305.New(key)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	if err != nil {
		return nil, err
	}
	// Open needs both so data sealed elsewhere stays readable.
	if c.aes, err = newAESGCM(key); err != nil {
		return nil, err
	}
	if c.chacha, err = chacha20poly1305.New(key); err != nil {
		return nil, err
	}
	return c, nil
}

// ParseType parses a cipher name. The empty string selects Preferred.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case "":
		return Preferred(), nil
	case AESGCM, ChaCha20:
		return Type(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
}

// Preferred returns AESGCM on architectures where Go's AES uses
// hardware instructions, ChaCha20 otherwise.
func Preferred() Type {
	switch runtime.GOARCH {
	case "amd64", "arm64", "s390x", "ppc64le":
		return AESGCM
	default:
		return ChaCha20
	}
}

// DeriveKey derives a KeySize key for purpose from a shared secret.
// Different purposes yield unrelated keys.
func DeriveKey(secret, purpose string) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("adaptive: empty secret")
	}
	key := make([]byte, KeySize)
	r := hkdf.New(sha256.New, []byte(secret), []byte("redolog-v1"), []byte(purpose))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("adaptive: derive key: %w", err)
	}
	return key, nil
}

func newAESGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

type aeadCipher struct {
	typ    Type
	seal   cipher.AEAD
	aes    cipher.AEAD
	chacha cipher.AEAD
}

func (c *aeadCipher) Type() Type { return c.typ }

func (c *aeadCipher) Overhead() int {
	return 1 + c.seal.NonceSize() + c.seal.Overhead()
}

func (c *aeadCipher) Seal(plaintext, aad []byte) ([]byte, error) {
	tag := tagAESGCM
	if c.typ == ChaCha20 {
		tag = tagChaCha20
	}
	ns := c.seal.NonceSize()
	out := make([]byte, 1+ns, 1+ns+len(plaintext)+c.seal.Overhead())
	out[0] = tag
	if _, err := rand.Read(out[1:]); err != nil {
		return nil, fmt.Errorf("adaptive: nonce: %w", err)
	}
	return c.seal.Seal(out, out[1:], plaintext, aad), nil
}

func (c *aeadCipher) Open(sealed, aad []byte) ([]byte, error) {
	if len(sealed) < 1 {
		return nil, ErrShortInput
	}
	var a cipher.AEAD
	switch sealed[0] {
	case tagAESGCM:
		a = c.aes
	case tagChaCha20:
		a = c.chacha
	default:
		return nil, fmt.Errorf("%w: tag %d", ErrUnknownType, sealed[0])
	}
	ns := a.NonceSize()
	if len(sealed) < 1+ns+a.Overhead() {
		return nil, ErrShortInput
	}
	pt, err := a.Open(nil, sealed[1:1+ns], sealed[1+ns:], aad)
	if err != nil {
		return nil, ErrOpen
	}
	return pt, nil
}
