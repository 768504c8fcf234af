package tlsroots

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNoCertsFound is returned when a PEM source holds no certificates.
var ErrNoCertsFound = errors.New("tlsroots: no certificates found")

// LoadPool returns the system roots plus the certificates in paths.
// A path may be a PEM file or a directory of .pem, .crt and .cer files.
func LoadPool(paths ...string) (*x509.CertPool, error) {
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	for _, p := range paths {
		if err := addPath(pool, p); err != nil {
			return nil, err
		}
	}
	return pool, nil
}

// ClientConfig returns a client TLS config trusting LoadPool(caPaths...).
func ClientConfig(caPaths ...string) (*tls.Config, error) {
	pool, err := LoadPool(caPaths...)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		RootCAs:    pool,
		MinVersion: tls.VersionTLS12,
	}, nil
}

func addPath(pool *x509.CertPool, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("tlsroots: %w", err)
	}
	if !info.IsDir() {
		return addFile(pool, path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("tlsroots: read dir %s: %w", path, err)
	}
	var added int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".pem", ".crt", ".cer":
			if err := addFile(pool, filepath.Join(path, e.Name())); err != nil {
				return err
			}
			added++
		}
	}
	if added == 0 {
		return fmt.Errorf("%w in %s", ErrNoCertsFound, path)
	}
	return nil
}

func addFile(pool *x509.CertPool, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("tlsroots: read %s: %w", path, err)
	}
	if err := addPEM(pool, data); err != nil {
		return fmt.Errorf("%w: %s", err, path)
	}
	return nil
}

func addPEM(pool *x509.CertPool, data []byte) error {
	var n int
	for len(data) > 0 {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return fmt.Errorf("tlsroots: parse certificate: %w", err)
		}
		pool.AddCert(cert)
		n++
	}
	if n == 0 {
		return ErrNoCertsFound
	}
	return nil
}
