package merchant

import (
	"fmt"

	"github.com/pkg/errors"
)

// ConfigurationError indicates that no usable certificate source is configured.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return "merchant certificate configuration: " + e.Reason
	}
	return fmt.Sprintf("merchant certificate configuration: %s: %v", e.Reason, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// CertificateNotFoundError is returned when a store holds no certificate with the thumbprint.
type CertificateNotFoundError struct {
	Thumbprint string
	Store      string
	Location   StoreLocation
	Path       string
}

func (e *CertificateNotFoundError) Error() string {
	return fmt.Sprintf("could not find merchant certificate with thumbprint %q from store %q in location %q (%s)",
		e.Thumbprint, e.Store, e.Location, e.Path)
}

// CertificateLoadError wraps a failure to read or decode a certificate file.
type CertificateLoadError struct {
	Path string
	Err  error
}

func (e *CertificateLoadError) Error() string {
	return fmt.Sprintf("failed to load merchant certificate file from %q: %v", e.Path, e.Err)
}

func (e *CertificateLoadError) Unwrap() error { return e.Err }

// UnsupportedFormatError is returned when inline certificate data is not PKCS#12.
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("the format of the encoded merchant certificate is not supported: %s", e.Format)
}

// IsCertificateError reports whether err came from certificate resolution.
func IsCertificateError(err error) bool {
	var (
		ce *ConfigurationError
		nf *CertificateNotFoundError
		le *CertificateLoadError
		uf *UnsupportedFormatError
	)
	return errors.As(err, &ce) || errors.As(err, &nf) || errors.As(err, &le) || errors.As(err, &uf)
}
