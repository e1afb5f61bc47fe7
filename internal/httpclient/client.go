package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stremovskyy/recorder"

	"github.com/stremovskyy/go-applepay/consts"
	"github.com/stremovskyy/go-applepay/internal/jsonutil"
	"github.com/stremovskyy/go-applepay/log"
)

// DefaultTimeout bounds a whole gateway round trip.
const DefaultTimeout = 30 * time.Second

// TransportOptions configures the mutual TLS client used against the gateway.
type TransportOptions struct {
	// GetClientCertificate supplies the merchant certificate during the handshake.
	GetClientCertificate func(*tls.CertificateRequestInfo) (*tls.Certificate, error)
	// RootCAs overrides the system roots.
	RootCAs *x509.CertPool
	// DialContext overrides the dialer, e.g. to go through an egress proxy.
	DialContext func(ctx context.Context, network, addr string) (net.Conn, error)
	Timeout     time.Duration
}

// NewMutualTLSClient builds an *http.Client that presents a client certificate
// and refuses anything older than TLS 1.2.
func NewMutualTLSClient(o TransportOptions) *http.Client {
	dial := o.DialContext
	if dial == nil {
		dial = (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := &http.Transport{
		Proxy:       http.ProxyFromEnvironment,
		DialContext: dial,
		TLSClientConfig: &tls.Config{
			MinVersion:           tls.VersionTLS12,
			RootCAs:              o.RootCAs,
			GetClientCertificate: o.GetClientCertificate,
		},
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// Client is a small HTTP helper with JSON marshal/unmarshal and traffic recording.
// It is internal on purpose: the public API lives in the root package.
type Client struct {
	httpClient *http.Client
	logger     log.Logger
	logBodies  bool
	recorder   recorder.Recorder
}

// New creates an internal HTTP client.
func New(httpClient *http.Client, logger log.Logger, rec recorder.Recorder, logBodies bool) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if logger == nil {
		logger = log.NopLogger{}
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		logBodies:  logBodies,
		recorder:   rec,
	}
}

// DoJSON sends a single request to url and unmarshals the JSON response into out (if out != nil).
// It returns the http response and the raw response body. There are no retries: the
// gateway hands out one-shot sessions and the browser restarts validation on failure.
func (c *Client) DoJSON(ctx context.Context, method, url string, body any, out any) (*http.Response, []byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	requestID := nextRequestID()
	tags := map[string]string{"method": method, "url": url}

	bodyBytes, err := prepareBody(body)
	if err != nil {
		c.recordError(ctx, requestID, err, tags)
		return nil, nil, err
	}

	var reader io.Reader
	if bodyBytes != nil {
		reader = bytes.NewReader(bodyBytes)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		c.recordError(ctx, requestID, err, tags)
		return nil, nil, err
	}
	req.Header.Set(consts.HeaderAccept, consts.ContentTypeJSON)
	if bodyBytes != nil {
		req.Header.Set(consts.HeaderContentType, consts.ContentTypeJSON)
	}

	c.logger.Debugf("[ApplePay HTTP] request prepared: request_id=%s method=%s url=%s payload=%s", requestID, method, url, logBody(bodyBytes, c.logBodies))
	c.recordRequest(ctx, requestID, bodyBytes, tags)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Errorf("[ApplePay HTTP] request failed: request_id=%s method=%s url=%s err=%v", requestID, method, url, err)
		c.recordError(ctx, requestID, err, tags)
		return nil, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.recordError(ctx, requestID, err, tags)
		return resp, nil, err
	}
	c.recordResponse(ctx, requestID, raw, tags)

	c.logger.Debugf("[ApplePay HTTP] response received: request_id=%s method=%s url=%s status=%d response=%s", requestID, method, url, resp.StatusCode, logBody(raw, c.logBodies))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &HTTPStatusError{StatusCode: resp.StatusCode, Body: raw}
		c.logger.Errorf("[ApplePay HTTP] request failed: request_id=%s method=%s url=%s status=%d response=%s", requestID, method, url, resp.StatusCode, logBody(raw, c.logBodies))
		c.recordError(ctx, requestID, statusErr, tags)
		return resp, raw, statusErr
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			decErr := fmt.Errorf("decode json response: %w", err)
			c.recordError(ctx, requestID, decErr, tags)
			return resp, raw, decErr
		}
	}

	return resp, raw, nil
}

// HTTPStatusError indicates a non-2xx response.
type HTTPStatusError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "http status error"
	}
	if len(e.Body) == 0 {
		return fmt.Sprintf("unexpected status: %d", e.StatusCode)
	}
	// Limit in error string.
	b := e.Body
	if len(b) > 512 {
		b = b[:512]
	}
	return fmt.Sprintf("unexpected status: %d: %s", e.StatusCode, string(b))
}

func prepareBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	switch v := body.(type) {
	case []byte:
		out := make([]byte, len(v))
		copy(out, v)
		return out, nil
	case string:
		return []byte(v), nil
	default:
		b, err := jsonutil.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal json body: %w", err)
		}
		return b, nil
	}
}

func nextRequestID() string {
	return uuid.NewString()
}

func (c *Client) recordRequest(ctx context.Context, requestID string, body []byte, tags map[string]string) {
	if c == nil || c.recorder == nil {
		return
	}
	if err := c.recorder.RecordRequest(ctx, nil, requestID, body, tags); err != nil {
		c.logger.Warnf("[ApplePay HTTP] cannot record request: %v", err)
	}
}

func (c *Client) recordResponse(ctx context.Context, requestID string, body []byte, tags map[string]string) {
	if c == nil || c.recorder == nil {
		return
	}
	if err := c.recorder.RecordResponse(ctx, nil, requestID, body, tags); err != nil {
		c.logger.Warnf("[ApplePay HTTP] cannot record response: %v", err)
	}
}

func (c *Client) recordError(ctx context.Context, requestID string, err error, tags map[string]string) {
	if c == nil || c.recorder == nil || err == nil {
		return
	}
	if recErr := c.recorder.RecordError(ctx, nil, requestID, err, tags); recErr != nil {
		c.logger.Warnf("[ApplePay HTTP] cannot record error: %v", recErr)
	}
}

func logBody(b []byte, verbose bool) string {
	if !verbose {
		return fmt.Sprintf("size=%d bytes", len(b))
	}

	if pretty, ok := prettyJSONPreview(b); ok {
		return pretty
	}
	return previewBytes(b)
}

func prettyJSONPreview(b []byte) (string, bool) {
	if len(b) == 0 || !json.Valid(b) {
		return "", false
	}

	var out bytes.Buffer
	if err := json.Indent(&out, b, "", "  "); err != nil {
		return "", false
	}
	return truncate(out.String(), 4096), true
}

func previewBytes(b []byte) string {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return "<empty>"
	}
	if !utf8.ValidString(s) {
		return fmt.Sprintf("<binary size=%d bytes>", len(b))
	}
	return truncate(s, 4096)
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
