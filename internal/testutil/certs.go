// Package testutil holds certificate and fake gateway helpers shared by tests.
package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stremovskyy/go-applepay/consts"
)

var merchantIdentifierOID = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 6, 32}

// NewMerchantCertificate creates a self-signed client certificate carrying
// merchantID in the Apple merchant identifier extension. An empty merchantID
// omits the extension.
func NewMerchantCertificate(t testing.TB, merchantID string) tls.Certificate {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: serial(t),
		Subject:      pkix.Name{CommonName: "applepay.local"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	if merchantID != "" {
		value, err := asn1.MarshalWithParams(merchantID, "utf8")
		if err != nil {
			t.Fatalf("marshal merchant id: %v", err)
		}
		tmpl.ExtraExtensions = []pkix.Extension{{Id: merchantIdentifierOID, Value: value}}
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}
}

// EncodePEMBundle returns the certificate followed by its PKCS#8 key.
func EncodePEMBundle(t testing.TB, cert tls.Certificate) []byte {
	t.Helper()

	keyDER, err := x509.MarshalPKCS8PrivateKey(cert.PrivateKey)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	out := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Certificate[0]})
	out = append(out, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})...)
	return out
}

// WritePEMBundle writes cert into dir/name and returns the path.
func WritePEMBundle(t testing.TB, dir, name string, cert tls.Certificate) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, EncodePEMBundle(t, cert), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// newGatewayCertificate issues a self-signed server certificate valid for every allowed gateway host.
func newGatewayCertificate(t testing.TB) (tls.Certificate, *x509.Certificate) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          serial(t),
		Subject:               pkix.Name{CommonName: consts.CertificationGatewayHost},
		DNSNames:              append([]string(nil), consts.AllowedGatewayHosts...),
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create gateway certificate: %v", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse gateway certificate: %v", err)
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}, leaf
}

func serial(t testing.TB) *big.Int {
	n, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		t.Fatalf("serial: %v", err)
	}
	return n
}
