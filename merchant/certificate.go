package merchant

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/tls"
	"crypto/x509"
	"encoding/asn1"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/pkcs12"

	"github.com/stremovskyy/go-applepay/consts"
)

// merchantIdentifierOID is the ASN.1 object id of Apple's merchant identifier extension.
var merchantIdentifierOID = mustParseOID(consts.MerchantIdentifierOID)

const (
	formatPFX     = "pkcs12"
	formatPEM     = "pem"
	formatX509DER = "x509"
	formatUnknown = "unknown"
)

// Certificate is a merchant identity certificate with its private key.
type Certificate struct {
	TLS  tls.Certificate
	Leaf *x509.Certificate
}

// MerchantIdentifier returns the identifier embedded in the leaf certificate.
func (c *Certificate) MerchantIdentifier() string {
	if c == nil {
		return ""
	}
	return MerchantIdentifier(c.Leaf)
}

// Thumbprint returns the upper-case hex SHA-1 of the leaf certificate.
func (c *Certificate) Thumbprint() string {
	if c == nil || c.Leaf == nil {
		return ""
	}
	return Thumbprint(c.Leaf)
}

// MerchantIdentifier extracts the merchant identifier from cert.
//
// The extension value is an ASN.1 string; the two byte tag/length header is
// dropped and the rest decoded as ASCII. Missing extension yields "".
func MerchantIdentifier(cert *x509.Certificate) string {
	if cert == nil {
		return ""
	}
	for _, ext := range cert.Extensions {
		if !ext.Id.Equal(merchantIdentifierOID) {
			continue
		}
		if len(ext.Value) < 2 {
			return ""
		}
		return asciiString(ext.Value[2:])
	}
	return ""
}

// Thumbprint returns the SHA-1 fingerprint of cert in upper-case hex.
func Thumbprint(cert *x509.Certificate) string {
	sum := sha1.Sum(cert.Raw)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// NormalizeThumbprint strips separators and invisible characters that appear
// when a thumbprint is copied out of certificate tooling.
func NormalizeThumbprint(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'A' && r <= 'F':
			b.WriteRune(r)
		case r >= 'a' && r <= 'f':
			b.WriteRune(r - 'a' + 'A')
		}
	}
	return b.String()
}

// FromTLS validates an already parsed key pair and fills in its leaf.
func FromTLS(c tls.Certificate) (*Certificate, error) {
	if len(c.Certificate) == 0 {
		return nil, errors.New("certificate chain is empty")
	}
	if c.PrivateKey == nil {
		return nil, errors.New("certificate has no private key")
	}
	leaf := c.Leaf
	if leaf == nil {
		var err error
		leaf, err = x509.ParseCertificate(c.Certificate[0])
		if err != nil {
			return nil, errors.Wrap(err, "parse leaf certificate")
		}
		c.Leaf = leaf
	}
	return &Certificate{TLS: c, Leaf: leaf}, nil
}

// LoadPFXFile reads and decodes a PKCS#12 file.
func LoadPFXFile(path, password string) (*Certificate, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("certificate file name is empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read certificate file")
	}
	return parsePFX(raw, password)
}

func parsePFX(raw []byte, password string) (*Certificate, error) {
	blocks, err := pkcs12.ToPEM(raw, password)
	if err != nil {
		return nil, errors.Wrap(err, "decode pkcs12")
	}
	return fromPEMBlocks(blocks)
}

func parsePEMBundle(raw []byte) (*Certificate, error) {
	var blocks []*pem.Block
	for {
		var b *pem.Block
		b, raw = pem.Decode(raw)
		if b == nil {
			break
		}
		blocks = append(blocks, b)
	}
	if len(blocks) == 0 {
		return nil, errors.New("no PEM data found")
	}
	return fromPEMBlocks(blocks)
}

func fromPEMBlocks(blocks []*pem.Block) (*Certificate, error) {
	var (
		certs []*x509.Certificate
		key   crypto.PrivateKey
	)
	for _, b := range blocks {
		switch {
		case b.Type == "CERTIFICATE":
			c, err := x509.ParseCertificate(b.Bytes)
			if err != nil {
				return nil, errors.Wrap(err, "parse certificate")
			}
			certs = append(certs, c)
		case strings.HasSuffix(b.Type, "PRIVATE KEY") && key == nil:
			k, err := parsePrivateKey(b.Bytes)
			if err != nil {
				return nil, err
			}
			key = k
		}
	}
	if len(certs) == 0 {
		return nil, errors.New("no certificate found")
	}
	if key == nil {
		return nil, errors.New("no private key found")
	}

	// The leaf is the certificate matching the private key; the rest is chain.
	leafIdx := -1
	for i, c := range certs {
		if publicKeyMatches(c.PublicKey, key) {
			leafIdx = i
			break
		}
	}
	if leafIdx < 0 {
		return nil, errors.New("private key does not match any certificate")
	}

	leaf := certs[leafIdx]
	chain := [][]byte{leaf.Raw}
	for i, c := range certs {
		if i != leafIdx {
			chain = append(chain, c.Raw)
		}
	}
	return &Certificate{
		TLS:  tls.Certificate{Certificate: chain, PrivateKey: key, Leaf: leaf},
		Leaf: leaf,
	}, nil
}

func parsePrivateKey(der []byte) (crypto.PrivateKey, error) {
	if k, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return k, nil
	}
	if k, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		switch k := k.(type) {
		case *rsa.PrivateKey, *ecdsa.PrivateKey:
			return k, nil
		default:
			return nil, errors.Errorf("unsupported private key type %T", k)
		}
	}
	if k, err := x509.ParseECPrivateKey(der); err == nil {
		return k, nil
	}
	return nil, errors.New("failed to parse private key")
}

func publicKeyMatches(pub crypto.PublicKey, key crypto.PrivateKey) bool {
	signer, ok := key.(crypto.Signer)
	if !ok {
		return false
	}
	eq, ok := pub.(interface{ Equal(crypto.PublicKey) bool })
	return ok && eq.Equal(signer.Public())
}

// pfxEnvelope is the outer PFX structure from RFC 7292, enough to sniff the content type.
type pfxEnvelope struct {
	Version  int
	AuthSafe asn1.RawValue
	MacData  asn1.RawValue `asn1:"optional"`
}

func contentType(raw []byte) string {
	if block, _ := pem.Decode(raw); block != nil {
		return formatPEM
	}
	var env pfxEnvelope
	if rest, err := asn1.Unmarshal(raw, &env); err == nil && len(rest) == 0 && env.Version == 3 {
		return formatPFX
	}
	if _, err := x509.ParseCertificate(raw); err == nil {
		return formatX509DER
	}
	return formatUnknown
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, s)
	raw, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return raw, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(s); rawErr == nil {
		return raw, nil
	}
	return nil, err
}

func asciiString(b []byte) string {
	out := make([]byte, len(b))
	for i, c := range b {
		if c > 0x7f {
			c = '?'
		}
		out[i] = c
	}
	return string(out)
}

func mustParseOID(id string) asn1.ObjectIdentifier {
	parts := strings.Split(id, ".")
	oid := make(asn1.ObjectIdentifier, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			panic(errors.Wrapf(err, "error parsing OID %s", id))
		}
		oid[i] = n
	}
	return oid
}
