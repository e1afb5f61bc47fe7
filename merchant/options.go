package merchant

import (
	"crypto/tls"
	"strings"

	"github.com/pkg/errors"
)

// Options selects where the merchant identity certificate comes from.
//
// Precedence: inline base64 > certificate store > file.
type Options struct {
	UseCertificateStore           bool          `mapstructure:"use_certificate_store" yaml:"use_certificate_store"`
	MerchantCertificate           string        `mapstructure:"merchant_certificate" yaml:"merchant_certificate"`
	MerchantCertificateFileName   string        `mapstructure:"merchant_certificate_file_name" yaml:"merchant_certificate_file_name"`
	MerchantCertificatePassword   string        `mapstructure:"merchant_certificate_password" yaml:"merchant_certificate_password"`
	MerchantCertificateThumbprint string        `mapstructure:"merchant_certificate_thumbprint" yaml:"merchant_certificate_thumbprint"`
	CertificateStoreLocation      StoreLocation `mapstructure:"certificate_store_location" yaml:"certificate_store_location"`
	CertificateStorePath          string        `mapstructure:"certificate_store_path" yaml:"certificate_store_path"`
}

// Source is one of Base64Source, StoreSource, FileSource, StaticSource or FailedSource.
type Source interface {
	// Describe names the source for logs without exposing secrets.
	Describe() string
	load() (*Certificate, error)
}

// Base64Source holds a base64 encoded PKCS#12 blob.
type Base64Source struct {
	Data     string
	Password string
}

func (s Base64Source) Describe() string { return "inline base64" }

func (s Base64Source) load() (*Certificate, error) {
	raw, err := decodeBase64(s.Data)
	if err != nil {
		return nil, &ConfigurationError{Reason: "merchant certificate is not valid base64", Err: err}
	}
	if format := contentType(raw); format != formatPFX {
		return nil, &UnsupportedFormatError{Format: format}
	}
	cert, err := parsePFX(raw, s.Password)
	if err != nil {
		return nil, &ConfigurationError{Reason: "cannot decode inline merchant certificate", Err: err}
	}
	return cert, nil
}

// StoreSource looks a certificate up by thumbprint in a certificate store.
type StoreSource struct {
	Thumbprint string
	Location   StoreLocation
	// Path overrides the directory backing Location.
	Path string
	// Password opens PKCS#12 files kept in the store.
	Password string
}

func (s StoreSource) Describe() string {
	return "certificate store " + string(s.Location) + "/" + StoreNameMy
}

func (s StoreSource) load() (*Certificate, error) {
	store, err := OpenStore(s.Location, s.Path)
	if err != nil {
		return nil, err
	}
	store.Password = s.Password
	return store.FindByThumbprint(s.Thumbprint)
}

// FileSource reads a PKCS#12 file from disk.
type FileSource struct {
	Path     string
	Password string
}

func (s FileSource) Describe() string { return "file " + s.Path }

func (s FileSource) load() (*Certificate, error) {
	cert, err := LoadPFXFile(s.Path, s.Password)
	if err != nil {
		return nil, &CertificateLoadError{Path: s.Path, Err: err}
	}
	return cert, nil
}

// StaticSource wraps a certificate that was parsed elsewhere.
type StaticSource struct {
	Certificate tls.Certificate
}

func (s StaticSource) Describe() string { return "static certificate" }

func (s StaticSource) load() (*Certificate, error) {
	cert, err := FromTLS(s.Certificate)
	if err != nil {
		return nil, &ConfigurationError{Reason: "invalid static merchant certificate", Err: err}
	}
	return cert, nil
}

// FailedSource carries a configuration error until the certificate is first needed.
//
// It lets a server start with a broken configuration and degrade instead of
// refusing to boot.
type FailedSource struct {
	Err error
}

func (s FailedSource) Describe() string { return "unconfigured" }

func (s FailedSource) load() (*Certificate, error) {
	if s.Err == nil {
		return nil, &ConfigurationError{Reason: "no merchant certificate source is configured"}
	}
	return nil, s.Err
}

// SourceFromOptions picks exactly one source from o.
func SourceFromOptions(o Options) (Source, error) {
	switch {
	case strings.TrimSpace(o.MerchantCertificate) != "":
		return Base64Source{Data: o.MerchantCertificate, Password: o.MerchantCertificatePassword}, nil
	case o.UseCertificateStore:
		thumbprint := NormalizeThumbprint(o.MerchantCertificateThumbprint)
		if thumbprint == "" {
			return nil, &ConfigurationError{Reason: "certificate store is enabled but no thumbprint is configured"}
		}
		location, err := ParseStoreLocation(string(o.CertificateStoreLocation))
		if err != nil {
			return nil, &ConfigurationError{Reason: "invalid certificate store location", Err: err}
		}
		return StoreSource{
			Thumbprint: o.MerchantCertificateThumbprint,
			Location:   location,
			Path:       o.CertificateStorePath,
			Password:   o.MerchantCertificatePassword,
		}, nil
	case strings.TrimSpace(o.MerchantCertificateFileName) != "":
		return FileSource{Path: o.MerchantCertificateFileName, Password: o.MerchantCertificatePassword}, nil
	default:
		return nil, &ConfigurationError{Reason: "no merchant certificate source is configured"}
	}
}

// Resolve loads the certificate described by src.
func Resolve(src Source) (*Certificate, error) {
	if src == nil {
		return nil, &ConfigurationError{Reason: "certificate source is nil"}
	}
	cert, err := src.load()
	if err != nil {
		return nil, err
	}
	if cert == nil {
		return nil, errors.Errorf("%s returned no certificate", src.Describe())
	}
	return cert, nil
}
