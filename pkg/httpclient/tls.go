package httpclient

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// TLSConfig holds TLS configuration for outbound requests, for corporate
// networks with custom CA certificates or internal services with
// self-signed certificates.
type TLSConfig struct {
	// InsecureSkipVerify disables certificate verification. Dev/test only;
	// never set this in production.
	InsecureSkipVerify bool

	// CACertificate is a path to a PEM-encoded CA certificate to trust in
	// addition to the system pool.
	CACertificate string
}

// ConfigureTLS builds an http.Transport from config. A nil config returns a
// plain transport with no custom trust roots.
func ConfigureTLS(config *TLSConfig) (*http.Transport, error) {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{},
	}

	if config == nil {
		return transport, nil
	}

	if config.CACertificate != "" {
		caCert, err := os.ReadFile(config.CACertificate)
		if err != nil {
			return nil, fmt.Errorf("httpclient: read CA certificate %s: %w", config.CACertificate, err)
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("httpclient: parse CA certificate %s", config.CACertificate)
		}

		transport.TLSClientConfig.RootCAs = pool
	}

	if config.InsecureSkipVerify {
		transport.TLSClientConfig.InsecureSkipVerify = true
		slog.Warn("httpclient: TLS certificate verification disabled, not for production use")
	}

	return transport, nil
}

// WithTLSConfig applies TLSConfig to the Client's transport. Apply this
// after WithHTTPClient, or the custom transport it installs is discarded by
// a later WithHTTPClient call.
func WithTLSConfig(config *TLSConfig) Option {
	return func(c *Client) {
		if config == nil {
			return
		}

		transport, err := ConfigureTLS(config)
		if err != nil {
			slog.Warn("httpclient: failed to configure TLS, using default transport", "error", err)
			return
		}

		if c.client != nil {
			timeout := c.client.Timeout
			c.client.Transport = transport
			c.client.Timeout = timeout
		} else {
			c.client = &http.Client{
				Transport: transport,
				Timeout:   60 * time.Second,
			}
		}
	}
}
