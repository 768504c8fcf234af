package tlsroots

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/yndnr/redolog-go/internal/infra/confloader"
)

// KeyPair holds a server certificate loaded from a cert and key file.
type KeyPair struct {
	certFile string
	keyFile  string
	cert     atomic.Pointer[tls.Certificate]
	watcher  *confloader.Watcher
	logger   *slog.Logger
}

// LoadKeyPair loads the certificate in certFile and keyFile.
func LoadKeyPair(certFile, keyFile string, logger *slog.Logger) (*KeyPair, error) {
	if logger == nil {
		logger = slog.Default()
	}
	kp := &KeyPair{certFile: certFile, keyFile: keyFile, logger: logger}
	if err := kp.Reload(); err != nil {
		return nil, err
	}
	return kp, nil
}

// Reload reads both files again. On failure the previous certificate
// stays in use.
func (kp *KeyPair) Reload() error {
	cert, err := tls.LoadX509KeyPair(kp.certFile, kp.keyFile)
	if err != nil {
		return fmt.Errorf("tlsroots: load key pair: %w", err)
	}
	kp.cert.Store(&cert)
	return nil
}

// Watch reloads the certificate whenever either file changes.
func (kp *KeyPair) Watch() error {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(kp.logger))
	if err != nil {
		return fmt.Errorf("tlsroots: %w", err)
	}
	for _, f := range []string{kp.certFile, kp.keyFile} {
		if err := w.Watch(f); err != nil {
			w.Stop()
			return fmt.Errorf("tlsroots: watch %s: %w", f, err)
		}
	}
	// A renewal rewrites both files; the debounce usually folds them
	// into one reload, and a half-written pair just fails and waits.
	w.OnChange(func(string) {
		if err := kp.Reload(); err != nil {
			kp.logger.Warn("certificate reload failed", "cert_file", kp.certFile, "error", err)
			return
		}
		kp.logger.Info("certificate reloaded", "cert_file", kp.certFile)
	})
	kp.watcher = w
	w.StartAsync()
	return nil
}

// Stop stops watching. It is a no-op if Watch was never called.
func (kp *KeyPair) Stop() error {
	if kp.watcher == nil {
		return nil
	}
	return kp.watcher.Stop()
}

// Certificate returns the certificate currently served.
func (kp *KeyPair) Certificate() *tls.Certificate {
	return kp.cert.Load()
}

// GetCertificate implements tls.Config.GetCertificate.
func (kp *KeyPair) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return kp.cert.Load(), nil
}

// ServerConfig returns a server TLS config serving the current certificate.
func (kp *KeyPair) ServerConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: kp.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
}
