package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	go_applepay "github.com/stremovskyy/go-applepay"
	"github.com/stremovskyy/go-applepay/consts"
	"github.com/stremovskyy/go-applepay/internal/config"
	"github.com/stremovskyy/go-applepay/internal/testutil"
	"github.com/stremovskyy/go-applepay/log"
	"github.com/stremovskyy/go-applepay/merchant"
)

const (
	testMerchantID    = "merchant.com.example.applepayjs"
	testStoreName     = "Just Testing"
	testValidationURL = "https://apple-pay-gateway-cert.apple.com/paymentservices/startSession"
)

var merchantIDMeta = regexp.MustCompile(`<meta name="apple-pay-merchant-id" content="([^"]*)">`)

// fakeGateway records merchant session requests and answers with a fixed response.
type fakeGateway struct {
	*testutil.Gateway

	mu       sync.Mutex
	payloads []map[string]string
}

func newFakeGateway(t *testing.T, status int, response string) *fakeGateway {
	t.Helper()
	fg := &fakeGateway{}
	fg.Gateway = testutil.NewGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		_ = json.NewDecoder(r.Body).Decode(&payload)
		fg.mu.Lock()
		fg.payloads = append(fg.payloads, payload)
		fg.mu.Unlock()
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	return fg
}

func (fg *fakeGateway) lastPayload(t *testing.T) map[string]string {
	t.Helper()
	fg.mu.Lock()
	defer fg.mu.Unlock()
	if len(fg.payloads) == 0 {
		t.Fatalf("gateway received no payload")
	}
	return fg.payloads[len(fg.payloads)-1]
}

func defaultConfig() config.Config {
	var cfg config.Config
	cfg.Server.Addr = ":0"
	cfg.Server.Mode = "test"
	cfg.ApplePay.StoreName = testStoreName
	cfg.ApplePay.CountryCode = "GB"
	cfg.ApplePay.CurrencyCode = "GBP"
	return cfg
}

// recordingLogger keeps formatted warnings and errors.
type recordingLogger struct {
	log.NopLogger

	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) Warnf(format string, args ...any)  { l.add(format, args...) }
func (l *recordingLogger) Errorf(format string, args ...any) { l.add(format, args...) }

func (l *recordingLogger) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) contains(s string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

func newTestServer(t *testing.T, gw *fakeGateway, cfg config.Config, source merchant.Source) *Server {
	t.Helper()
	return newTestServerWithLogger(t, gw, cfg, source, log.NopLogger{})
}

func newTestServerWithLogger(t *testing.T, gw *fakeGateway, cfg config.Config, source merchant.Source, logger log.Logger) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	client, err := go_applepay.NewClient(
		go_applepay.WithDisplayName(cfg.ApplePay.StoreName),
		go_applepay.WithCertificateSource(source),
		go_applepay.WithRootCAs(gw.RootCAs),
		go_applepay.WithDialContext(gw.DialContext),
		go_applepay.WithTimeout(5*time.Second),
		go_applepay.WithLogger(log.NopLogger{}),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	srv, err := NewServer(client, cfg, logger)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv
}

func merchantSource(t *testing.T) merchant.Source {
	return merchant.StaticSource{Certificate: testutil.NewMerchantCertificate(t, testMerchantID)}
}

func brokenSource(t *testing.T) merchant.Source {
	_, err := merchant.SourceFromOptions(merchant.Options{})
	if err == nil {
		t.Fatalf("expected configuration error")
	}
	return merchant.FailedSource{Err: err}
}

func postValidate(srv *Server, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, ValidatePath, strings.NewReader(body))
	req.Host = "shop.example.com:5000"
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return resp["error"]
}

func TestIndexShowsMerchantIdentifier(t *testing.T) {
	gw := newFakeGateway(t, http.StatusOK, `{}`)
	srv := newTestServer(t, gw, defaultConfig(), merchantSource(t))

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	body := w.Body.String()
	m := merchantIDMeta.FindStringSubmatch(body)
	if m == nil || m[1] != testMerchantID {
		t.Fatalf("merchant id meta tag missing or wrong: %v", m)
	}
	if !strings.Contains(body, `<meta name="apple-pay-store-name" content="Just Testing">`) {
		t.Fatalf("store name meta tag missing")
	}
	if !strings.Contains(body, `id="apple-pay-button"`) {
		t.Fatalf("apple pay button missing")
	}
	if !strings.Contains(body, `<link rel="merchant-validation" href="/applepay/validate">`) {
		t.Fatalf("merchant validation link missing")
	}
}

func TestIndexHidesButtonWhenCertificateIsUnavailable(t *testing.T) {
	gw := newFakeGateway(t, http.StatusOK, `{}`)
	srv := newTestServer(t, gw, defaultConfig(), brokenSource(t))

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	m := merchantIDMeta.FindStringSubmatch(w.Body.String())
	if m == nil || m[1] != "" {
		t.Fatalf("expected empty merchant id meta tag, got %v", m)
	}
	if strings.Contains(w.Body.String(), `id="apple-pay-button"`) {
		t.Fatalf("apple pay button must be hidden without a merchant certificate")
	}
}

func TestValidateRelaysMerchantSession(t *testing.T) {
	const session = `{"epochTimestamp":1700000000000,"expiresAt":1700003600000,"merchantSessionIdentifier":"SSH-1","nonce":"n","merchantIdentifier":"ABC","domainName":"shop.example.com","displayName":"Just Testing","signature":"sig"}`
	gw := newFakeGateway(t, http.StatusOK, session)
	srv := newTestServer(t, gw, defaultConfig(), merchantSource(t))

	w := postValidate(srv, `{"validationUrl":"`+testValidationURL+`"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Body.String() != session {
		t.Fatalf("merchant session must be relayed verbatim, got %s", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("unexpected content type %q", ct)
	}

	payload := gw.lastPayload(t)
	if payload["initiative"] != "web" || payload["initiativeContext"] != "shop.example.com" {
		t.Fatalf("unexpected initiative fields: %+v", payload)
	}
	if payload["displayName"] != testStoreName {
		t.Fatalf("unexpected display name %q", payload["displayName"])
	}
}

func TestMerchantIdentifierRoundTrip(t *testing.T) {
	gw := newFakeGateway(t, http.StatusOK, `{}`)
	srv := newTestServer(t, gw, defaultConfig(), merchantSource(t))

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	m := merchantIDMeta.FindStringSubmatch(w.Body.String())
	if m == nil {
		t.Fatalf("merchant id meta tag missing")
	}

	w = postValidate(srv, `{"validationUrl":"`+testValidationURL+`"}`)
	if w.Code != http.StatusOK || w.Body.String() != "{}" {
		t.Fatalf("expected 200 with {}, got %d %q", w.Code, w.Body.String())
	}
	if got := gw.lastPayload(t)["merchantIdentifier"]; got != m[1] {
		t.Fatalf("page shows %q but gateway received %q", m[1], got)
	}
}

func TestValidateRejectsBadRequests(t *testing.T) {
	gw := newFakeGateway(t, http.StatusOK, `{}`)
	srv := newTestServer(t, gw, defaultConfig(), merchantSource(t))

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{name: "not json", body: `validationUrl=x`, message: errMissingValidationURL},
		{name: "missing url", body: `{}`, message: errMissingValidationURL},
		{name: "blank url", body: `{"validationUrl":"   "}`, message: errMissingValidationURL},
		{name: "relative url", body: `{"validationUrl":"/paymentservices/startSession"}`, message: errMissingValidationURL},
		{name: "unknown host", body: `{"validationUrl":"https://evil.example.com/paymentservices/startSession"}`, message: errDomainNotAllowed},
		{name: "http scheme", body: `{"validationUrl":"http://apple-pay-gateway.apple.com/paymentservices/startSession"}`, message: errDomainNotAllowed},
		{name: "wrong path", body: `{"validationUrl":"https://apple-pay-gateway.apple.com/admin"}`, message: errDomainNotAllowed},
		{name: "query", body: `{"validationUrl":"https://apple-pay-gateway.apple.com/paymentservices/startSession?a=b"}`, message: errDomainNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postValidate(srv, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", w.Code)
			}
			if msg := errorMessage(t, w); msg != tt.message {
				t.Fatalf("unexpected error %q", msg)
			}
		})
	}

	if hits := gw.Hits(); hits != 0 {
		t.Fatalf("rejected requests must not reach the gateway, got %d hits", hits)
	}
}

func TestValidateGatewayFailure(t *testing.T) {
	gw := newFakeGateway(t, http.StatusInternalServerError, `{"statusMessage":"Payment Services Exception merchantId=secret"}`)
	srv := newTestServer(t, gw, defaultConfig(), merchantSource(t))

	w := postValidate(srv, `{"validationUrl":"`+testValidationURL+`"}`)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", w.Code)
	}
	if msg := errorMessage(t, w); msg != errValidationFailed {
		t.Fatalf("unexpected error %q", msg)
	}
	if strings.Contains(w.Body.String(), "secret") {
		t.Fatalf("gateway details must not reach the browser: %s", w.Body.String())
	}
}

func TestValidateCertificateFailure(t *testing.T) {
	gw := newFakeGateway(t, http.StatusOK, `{}`)
	srv := newTestServer(t, gw, defaultConfig(), brokenSource(t))

	w := postValidate(srv, `{"validationUrl":"`+testValidationURL+`"}`)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", w.Code)
	}
	if msg := errorMessage(t, w); msg != errValidationFailed {
		t.Fatalf("unexpected error %q", msg)
	}
	if gw.Hits() != 0 {
		t.Fatalf("expected no gateway calls, got %d", gw.Hits())
	}
}

func TestDomainAssociationFile(t *testing.T) {
	gw := newFakeGateway(t, http.StatusOK, `{}`)

	t.Run("configured", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "apple-developer-merchantid-domain-association")
		if err := os.WriteFile(path, []byte("association-data"), 0o600); err != nil {
			t.Fatalf("write file: %v", err)
		}
		cfg := defaultConfig()
		cfg.Server.DomainAssociationFile = path
		srv := newTestServer(t, gw, cfg, merchantSource(t))

		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, consts.DomainAssociationPath, nil))
		if w.Code != http.StatusOK || w.Body.String() != "association-data" {
			t.Fatalf("unexpected response %d %q", w.Code, w.Body.String())
		}
	})

	t.Run("not configured", func(t *testing.T) {
		srv := newTestServer(t, gw, defaultConfig(), merchantSource(t))

		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, consts.DomainAssociationPath, nil))
		if w.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d", w.Code)
		}
	})
}

func TestStaticAssets(t *testing.T) {
	gw := newFakeGateway(t, http.StatusOK, `{}`)
	srv := newTestServer(t, gw, defaultConfig(), merchantSource(t))

	for _, path := range []string{"/static/site.js", "/static/site.css"} {
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK || w.Body.Len() == 0 {
			t.Fatalf("%s: unexpected response %d", path, w.Code)
		}
	}
}

func TestRequestIDHeader(t *testing.T) {
	gw := newFakeGateway(t, http.StatusOK, `{}`)
	srv := newTestServer(t, gw, defaultConfig(), merchantSource(t))

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if _, err := uuid.Parse(w.Header().Get(requestIDHeader)); err != nil {
		t.Fatalf("expected generated request id, got %q", w.Header().Get(requestIDHeader))
	}

	const incoming = "1b4e28ba-2fa1-41d2-883f-0016d3cca427"
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, incoming)
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got != incoming {
		t.Fatalf("expected incoming request id to be kept, got %q", got)
	}
}

func TestValidateLogsPeerAddressUnlessProxyIsTrusted(t *testing.T) {
	gw := newFakeGateway(t, http.StatusOK, `{}`)
	body := `{"validationUrl":"https://evil.example.com/paymentservices/startSession"}`

	tests := []struct {
		name    string
		proxies []string
		wantIP  string
		otherIP string
	}{
		{name: "no trusted proxies", wantIP: "203.0.113.9", otherIP: "198.51.100.7"},
		{name: "trusted proxy", proxies: []string{"203.0.113.0/24"}, wantIP: "198.51.100.7", otherIP: "203.0.113.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Server.TrustedProxies = tt.proxies
			logger := &recordingLogger{}
			srv := newTestServerWithLogger(t, gw, cfg, merchantSource(t), logger)

			req := httptest.NewRequest(http.MethodPost, ValidatePath, strings.NewReader(body))
			req.RemoteAddr = "203.0.113.9:4444"
			req.Header.Set("X-Forwarded-For", "198.51.100.7")
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", w.Code)
			}
			if !logger.contains("from " + tt.wantIP) {
				t.Fatalf("expected rejection logged from %s, got %v", tt.wantIP, logger.lines)
			}
			if logger.contains(tt.otherIP) {
				t.Fatalf("logged address %s must not appear: %v", tt.otherIP, logger.lines)
			}
		})
	}
}

func TestNewServerRejectsInvalidTrustedProxy(t *testing.T) {
	gw := newFakeGateway(t, http.StatusOK, `{}`)
	cfg := defaultConfig()
	cfg.Server.TrustedProxies = []string{"not-a-proxy"}

	client, err := go_applepay.NewClient(
		go_applepay.WithCertificateSource(merchantSource(t)),
		go_applepay.WithRootCAs(gw.RootCAs),
		go_applepay.WithDialContext(gw.DialContext),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := NewServer(client, cfg, log.NopLogger{}); err == nil {
		t.Fatalf("expected error for invalid trusted proxy")
	}
}

func TestValidateWithoutHostIsBadRequest(t *testing.T) {
	gw := newFakeGateway(t, http.StatusOK, `{}`)
	srv := newTestServer(t, gw, defaultConfig(), merchantSource(t))

	for _, host := range []string{"", ":5000"} {
		req := httptest.NewRequest(http.MethodPost, ValidatePath, strings.NewReader(`{"validationUrl":"`+testValidationURL+`"}`))
		req.Host = host
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("host %q: expected status 400, got %d", host, w.Code)
		}
		if msg := errorMessage(t, w); msg != errInvalidRequest {
			t.Fatalf("host %q: unexpected error %q", host, msg)
		}
	}
	if hits := gw.Hits(); hits != 0 {
		t.Fatalf("expected no gateway calls, got %d", hits)
	}
}

func TestPanicIsLoggedAndHidden(t *testing.T) {
	gw := newFakeGateway(t, http.StatusOK, `{}`)
	logger := &recordingLogger{}
	srv := newTestServerWithLogger(t, gw, defaultConfig(), merchantSource(t), logger)
	srv.router.GET("/boom", func(*gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", w.Code)
	}
	if msg := errorMessage(t, w); msg != errInternal {
		t.Fatalf("unexpected error %q", msg)
	}
	if strings.Contains(w.Body.String(), "kaboom") {
		t.Fatalf("panic value must not reach the client: %s", w.Body.String())
	}
	if !logger.contains("kaboom") {
		t.Fatalf("panic not logged: %v", logger.lines)
	}
}
