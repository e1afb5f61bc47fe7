package go_applepay

import (
	"context"
	"encoding/json"

	"github.com/stremovskyy/go-applepay/log"
	"github.com/stremovskyy/go-applepay/merchant"
)

// ApplePay is the main SDK interface.
type ApplePay interface {
	// MerchantIdentifier returns the identifier from the merchant certificate,
	// or "" when the certificate cannot be resolved.
	MerchantIdentifier() string
	DisplayName() string
	Provider() *merchant.Provider

	ValidateMerchant(ctx context.Context, validationURL string, initiativeContext string, runOpts ...RunOption) (json.RawMessage, error)

	SetLogLevel(level log.Level)
}

var _ ApplePay = (*Client)(nil)
