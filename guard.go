package go_applepay

import (
	"net/url"
	"path"
	"strings"

	"github.com/stremovskyy/go-applepay/consts"
)

const (
	validationURLField     = "validationUrl"
	initiativeContextField = "initiativeContext"
)

// IsAuthorizedValidationURL reports whether raw may be used as a merchant validation URL.
func IsAuthorizedValidationURL(raw string) bool {
	_, err := ParseValidationURL(raw)
	return err == nil
}

// ParseValidationURL parses raw and checks it against the gateway allow-list.
//
// The URL comes from the browser and is untrusted. Only https URLs on an
// Apple Pay gateway host, on the default port, below /paymentservices/ and
// without query, fragment or credentials are accepted. Failures are returned
// as *ValidationError.
func ParseValidationURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, invalidURL("is required")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, invalidURL("is not a valid URL")
	}
	if !u.IsAbs() || u.Opaque != "" {
		return nil, invalidURL("must be an absolute URL")
	}
	if u.Scheme != "https" {
		return nil, invalidURL("must use https")
	}
	if u.User != nil {
		return nil, invalidURL("must not carry credentials")
	}
	if p := u.Port(); p != "" && p != "443" {
		return nil, invalidURL("must use the default https port")
	}
	if !isAllowedGatewayHost(u.Hostname()) {
		return nil, invalidURL("host is not an Apple Pay gateway")
	}
	if u.RawQuery != "" || u.ForceQuery {
		return nil, invalidURL("must not have a query")
	}
	if u.Fragment != "" || strings.Contains(raw, "#") {
		return nil, invalidURL("must not have a fragment")
	}
	if !hasPaymentServicesPath(u.Path) {
		return nil, invalidURL("path must start with " + consts.PaymentServicesPathPrefix)
	}
	return u, nil
}

func isAllowedGatewayHost(host string) bool {
	for _, allowed := range consts.AllowedGatewayHosts {
		if strings.EqualFold(host, allowed) {
			return true
		}
	}
	return false
}

// hasPaymentServicesPath checks p after resolving dot segments.
func hasPaymentServicesPath(p string) bool {
	if !strings.HasPrefix(p, "/") {
		return false
	}
	cleaned := path.Clean(p)
	if strings.HasSuffix(p, "/") && cleaned != "/" {
		cleaned += "/"
	}
	return strings.HasPrefix(strings.ToLower(cleaned), consts.PaymentServicesPathPrefix)
}

func invalidURL(message string) *ValidationError {
	ve := &ValidationError{}
	ve.Add(validationURLField, message)
	return ve
}
