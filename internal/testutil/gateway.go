package testutil

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
)

// Gateway is a fake Apple Pay gateway speaking mutual TLS.
//
// Point a client at it with RootCAs and DialContext: every dial, whatever the
// requested host, lands on the fake server, while TLS still verifies the
// allowed gateway host names.
type Gateway struct {
	Server  *httptest.Server
	RootCAs *x509.CertPool

	hits atomic.Int32

	mu          sync.Mutex
	clientCerts []*x509.Certificate
	tlsVersions []uint16
}

// NewGateway starts a gateway that requires a client certificate and serves handler.
func NewGateway(t testing.TB, handler http.Handler) *Gateway {
	t.Helper()

	serverCert, leaf := newGatewayCertificate(t)
	g := &Gateway{RootCAs: x509.NewCertPool()}
	g.RootCAs.AddCert(leaf)

	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.hits.Add(1)
		if r.TLS != nil {
			g.mu.Lock()
			if len(r.TLS.PeerCertificates) > 0 {
				g.clientCerts = append(g.clientCerts, r.TLS.PeerCertificates[0])
			}
			g.tlsVersions = append(g.tlsVersions, r.TLS.Version)
			g.mu.Unlock()
		}
		handler.ServeHTTP(w, r)
	}))
	srv.TLS = &tls.Config{
		Certificates: []tls.Certificate{serverCert},
		ClientAuth:   tls.RequireAnyClientCert,
		MinVersion:   tls.VersionTLS12,
	}
	srv.StartTLS()
	t.Cleanup(srv.Close)

	g.Server = srv
	return g
}

// DialContext ignores addr and connects to the fake server.
func (g *Gateway) DialContext(ctx context.Context, network, _ string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, network, g.Server.Listener.Addr().String())
}

// Hits returns how many requests reached the gateway.
func (g *Gateway) Hits() int {
	return int(g.hits.Load())
}

// ClientCertificates returns the leaf certificates presented by clients.
func (g *Gateway) ClientCertificates() []*x509.Certificate {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*x509.Certificate(nil), g.clientCerts...)
}

// TLSVersions returns the negotiated TLS version of every request.
func (g *Gateway) TLSVersions() []uint16 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]uint16(nil), g.tlsVersions...)
}
