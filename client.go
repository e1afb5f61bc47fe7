package go_applepay

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/stremovskyy/recorder"

	"github.com/stremovskyy/go-applepay/internal/httpclient"
	"github.com/stremovskyy/go-applepay/internal/jsonutil"
	"github.com/stremovskyy/go-applepay/log"
	"github.com/stremovskyy/go-applepay/merchant"
	"github.com/stremovskyy/go-applepay/session"
)

// Client is the Apple Pay merchant validation client.
//
// It checks validation URLs against the gateway allow-list, builds the
// merchant session request and POSTs it over mutual TLS using the merchant
// identity certificate.
type Client struct {
	cfg config

	provider *merchant.Provider
	gateway  *httpclient.Client
}

func NewClient(opts ...Option) (ApplePay, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	provider := cfg.provider
	if provider == nil {
		src := cfg.source
		if src == nil {
			src = merchant.FailedSource{}
		}
		provider = merchant.NewProvider(src)
	}
	if cfg.sourceErr != nil {
		cfg.logger.Warnf("Merchant certificate is not configured, Apple Pay is disabled: %v", cfg.sourceErr)
	}

	c := &Client{cfg: cfg, provider: provider}
	httpClient := httpclient.NewMutualTLSClient(httpclient.TransportOptions{
		GetClientCertificate: c.clientCertificate,
		RootCAs:              cfg.rootCAs,
		DialContext:          cfg.dialContext,
		Timeout:              cfg.timeout,
	})
	c.gateway = httpclient.New(httpClient, cfg.logger, cfg.recorder, cfg.logBodies)
	return c, nil
}

// NewClientWithRecorder attaches rec before applying opts.
func NewClientWithRecorder(rec recorder.Recorder, opts ...Option) (ApplePay, error) {
	opts = append([]Option{WithRecorder(rec)}, opts...)
	return NewClient(opts...)
}

func (c *Client) DisplayName() string { return c.cfg.displayName }

func (c *Client) Provider() *merchant.Provider { return c.provider }

// MerchantIdentifier returns the identifier embedded in the merchant certificate.
//
// Resolution failures are logged and reported as "" so pages can hide the
// Apple Pay button instead of failing.
func (c *Client) MerchantIdentifier() string {
	if c == nil {
		return ""
	}
	id, err := c.provider.MerchantIdentifier()
	if err != nil {
		c.cfg.logger.Warnf("Failed to resolve merchant identifier: %v", err)
		return ""
	}
	return id
}

// SetLogLevel updates SDK log level when current logger supports it.
func (c *Client) SetLogLevel(level log.Level) {
	if c == nil || c.cfg.logger == nil {
		return
	}
	if l, ok := c.cfg.logger.(interface{ SetLevel(log.Level) }); ok {
		l.SetLevel(level)
	}
}

// ValidateMerchant obtains a merchant session for validationURL.
//
// initiativeContext is the host name the payment page is served from; a port
// is stripped. The URL is checked before the certificate is touched or any
// connection is made. The gateway response is returned unmodified.
func (c *Client) ValidateMerchant(ctx context.Context, validationURL string, initiativeContext string, runOpts ...RunOption) (json.RawMessage, error) {
	if c == nil || c.gateway == nil {
		return nil, errors.New("client is nil")
	}

	verr := &ValidationError{}
	u, err := ParseValidationURL(validationURL)
	if err != nil {
		var urlErr *ValidationError
		if !errors.As(err, &urlErr) {
			return nil, err
		}
		verr.Fields = append(verr.Fields, urlErr.Fields...)
	}
	if session.HostName(initiativeContext) == "" {
		verr.Add(initiativeContextField, "is required")
	}
	if verr.HasErrors() {
		return nil, verr
	}

	cert, err := c.provider.Certificate()
	if err != nil {
		return nil, err
	}

	req := session.NewRequest(cert.MerchantIdentifier(), c.cfg.displayName, initiativeContext)
	target := u.String()
	if shouldDryRun(runOpts, http.MethodPost, target, req) {
		return nil, nil
	}

	_, raw, err := c.gateway.DoJSON(ctx, http.MethodPost, target, req, nil)
	if err != nil {
		return nil, wrapGatewayError(err)
	}

	merchantSession, err := jsonutil.Verbatim(raw)
	if err != nil {
		return nil, fmt.Errorf("decode merchant session: %w", err)
	}
	return merchantSession, nil
}

// clientCertificate presents the merchant certificate during the gateway handshake.
func (c *Client) clientCertificate(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
	cert, err := c.provider.Certificate()
	if err != nil {
		return nil, err
	}
	return &cert.TLS, nil
}

func wrapGatewayError(err error) error {
	if err == nil {
		return nil
	}
	var hs *httpclient.HTTPStatusError
	if errors.As(err, &hs) {
		return &GatewayError{StatusCode: hs.StatusCode, Body: hs.Body}
	}
	return err
}
