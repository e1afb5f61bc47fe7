package merchant

import (
	"sync"
	"sync/atomic"
)

// Provider resolves the merchant certificate once and shares it.
//
// Concurrent first calls are serialised so a successful resolution happens
// exactly once and is kept for the life of the Provider. Failures are not
// cached: the next call tries the source again.
type Provider struct {
	source Source

	mu   sync.Mutex
	cert atomic.Pointer[Certificate]
}

func NewProvider(source Source) *Provider {
	return &Provider{source: source}
}

// NewProviderFromOptions builds the source from o first.
func NewProviderFromOptions(o Options) (*Provider, error) {
	src, err := SourceFromOptions(o)
	if err != nil {
		return nil, err
	}
	return NewProvider(src), nil
}

// Source returns the configured source.
func (p *Provider) Source() Source {
	if p == nil {
		return nil
	}
	return p.source
}

// Certificate returns the cached certificate, resolving it on first use.
func (p *Provider) Certificate() (*Certificate, error) {
	if p == nil {
		return nil, &ConfigurationError{Reason: "certificate provider is nil"}
	}
	if c := p.cert.Load(); c != nil {
		return c, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c := p.cert.Load(); c != nil {
		return c, nil
	}
	c, err := Resolve(p.source)
	if err != nil {
		return nil, err
	}
	p.cert.Store(c)
	return c, nil
}

// MerchantIdentifier resolves the certificate and extracts its identifier.
func (p *Provider) MerchantIdentifier() (string, error) {
	c, err := p.Certificate()
	if err != nil {
		return "", err
	}
	return c.MerchantIdentifier(), nil
}
