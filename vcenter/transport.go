package vcenter

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"
)

// TLSConfig configures how the broker verifies vCenter certificates.
type TLSConfig struct {
	// Insecure disables certificate verification.
	// Default: false
	Insecure bool

	// CABundle is a PEM file of additional trusted roots.
	CABundle string
}

// ClientConfig configures the shared HTTP client.
type ClientConfig struct {
	TLS TLSConfig

	// TLSHandshakeTimeout bounds the TLS handshake.
	// Default: 10s
	TLSHandshakeTimeout time.Duration

	// MaxIdleConnsPerHost bounds idle keep-alive connections per vCenter.
	// Default: 4
	MaxIdleConnsPerHost int
}

// NewHTTPClient builds the HTTP client sessions use. It sets no overall
// client timeout; per-call deadlines come from the caller's context.
func NewHTTPClient(cfg ClientConfig) (*http.Client, error) {
	if cfg.TLSHandshakeTimeout <= 0 {
		cfg.TLSHandshakeTimeout = 10 * time.Second
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 4
	}

	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}
	if cfg.TLS.Insecure {
		// #nosec G402 -- explicitly requested by operator configuration.
		tlsConfig.InsecureSkipVerify = true
	}

	if cfg.TLS.CABundle != "" {
		pem, err := os.ReadFile(cfg.TLS.CABundle)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate bundle: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("failed to parse CA certificate bundle")
		}
		tlsConfig.RootCAs = pool
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig
	transport.TLSHandshakeTimeout = cfg.TLSHandshakeTimeout
	transport.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost

	return &http.Client{Transport: transport}, nil
}
