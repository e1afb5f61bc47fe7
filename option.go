package go_applepay

import (
	"context"
	"crypto/x509"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/stremovskyy/recorder"

	"github.com/stremovskyy/go-applepay/internal/httpclient"
	"github.com/stremovskyy/go-applepay/log"
	"github.com/stremovskyy/go-applepay/merchant"
)

type Option func(*config) error

type config struct {
	displayName string

	source    merchant.Source
	sourceErr error
	provider  *merchant.Provider

	timeout     time.Duration
	rootCAs     *x509.CertPool
	dialContext func(ctx context.Context, network, addr string) (net.Conn, error)

	logger    log.Logger
	logBodies bool
	recorder  recorder.Recorder
}

func defaultConfig() config {
	return config{
		timeout: httpclient.DefaultTimeout,
		logger:  log.NewDefault(),
	}
}

// WithDisplayName sets the store name shown on the payment sheet.
func WithDisplayName(name string) Option {
	return func(cfg *config) error {
		name = strings.TrimSpace(name)
		if name == "" {
			return errors.New("display name is empty")
		}
		cfg.displayName = name
		return nil
	}
}

// WithMerchantOptions selects the certificate source from configuration.
//
// A configuration that names no usable source does not fail here: the error is
// returned by the first call that needs the certificate, so a server can still
// render its page with Apple Pay disabled.
func WithMerchantOptions(o merchant.Options) Option {
	return func(cfg *config) error {
		src, err := merchant.SourceFromOptions(o)
		if err != nil {
			cfg.source = merchant.FailedSource{Err: err}
			cfg.sourceErr = err
			return nil
		}
		cfg.source = src
		cfg.sourceErr = nil
		return nil
	}
}

// WithCertificateSource sets the certificate source directly.
func WithCertificateSource(src merchant.Source) Option {
	return func(cfg *config) error {
		if src == nil {
			return errors.New("certificate source is nil")
		}
		cfg.source = src
		cfg.sourceErr = nil
		return nil
	}
}

// WithCertificateProvider shares an existing provider, and its cached
// certificate, with the client. It takes precedence over any source.
func WithCertificateProvider(p *merchant.Provider) Option {
	return func(cfg *config) error {
		if p == nil {
			return errors.New("certificate provider is nil")
		}
		cfg.provider = p
		return nil
	}
}

// WithTimeout sets the gateway round trip timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(cfg *config) error {
		if timeout <= 0 {
			return errors.New("timeout must be > 0")
		}
		cfg.timeout = timeout
		return nil
	}
}

func WithLogger(logger log.Logger) Option {
	return func(cfg *config) error {
		if logger == nil {
			cfg.logger = log.NopLogger{}
			return nil
		}
		cfg.logger = logger
		return nil
	}
}

// WithLogHTTPBodies enables verbose request/response body logging for debugging.
//
// Disabled by default because merchant sessions are bearer material.
func WithLogHTTPBodies(enabled bool) Option {
	return func(cfg *config) error {
		cfg.logBodies = enabled
		return nil
	}
}

// WithRecorder attaches a recorder for gateway traffic.
func WithRecorder(r recorder.Recorder) Option {
	return func(cfg *config) error {
		cfg.recorder = r
		return nil
	}
}

// WithRootCAs replaces the system roots used to verify the gateway.
func WithRootCAs(pool *x509.CertPool) Option {
	return func(cfg *config) error {
		if pool == nil {
			return errors.New("root CA pool is nil")
		}
		cfg.rootCAs = pool
		return nil
	}
}

// WithDialContext overrides how gateway connections are dialed.
func WithDialContext(dial func(ctx context.Context, network, addr string) (net.Conn, error)) Option {
	return func(cfg *config) error {
		if dial == nil {
			return errors.New("dial function is nil")
		}
		cfg.dialContext = dial
		return nil
	}
}
