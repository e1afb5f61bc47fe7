package session

import (
	"net"
	"strings"

	"github.com/stremovskyy/go-applepay/consts"
)

// Request is the payload POSTed to the Apple Pay gateway to obtain a merchant session.
type Request struct {
	MerchantIdentifier string `json:"merchantIdentifier"`
	DisplayName        string `json:"displayName"`
	Initiative         string `json:"initiative"`
	InitiativeContext  string `json:"initiativeContext"`
}

// NewRequest builds a web-initiative request for the page served from host.
//
// host may carry a port (as in an HTTP Host header); only the host name is sent.
func NewRequest(merchantIdentifier, displayName, host string) *Request {
	return &Request{
		MerchantIdentifier: merchantIdentifier,
		DisplayName:        displayName,
		Initiative:         consts.InitiativeWeb,
		InitiativeContext:  HostName(host),
	}
}

// HostName strips any port and brackets from host.
func HostName(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
}
