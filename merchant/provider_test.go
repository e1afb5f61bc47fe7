package merchant

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stremovskyy/go-applepay/internal/testutil"
)

type countingSource struct {
	calls atomic.Int32
	inner Source
	fail  atomic.Bool
}

func (s *countingSource) Describe() string { return "counting" }

func (s *countingSource) load() (*Certificate, error) {
	s.calls.Add(1)
	if s.fail.Load() {
		return nil, &ConfigurationError{Reason: "boom"}
	}
	return s.inner.load()
}

func TestProviderResolvesOnceUnderConcurrency(t *testing.T) {
	src := &countingSource{inner: StaticSource{Certificate: testutil.NewMerchantCertificate(t, "merchant.com.example.once")}}
	p := NewProvider(src)

	var wg sync.WaitGroup
	ids := make([]string, 16)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := p.MerchantIdentifier()
			if err != nil {
				t.Errorf("merchant identifier: %v", err)
				return
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()

	if calls := src.calls.Load(); calls != 1 {
		t.Fatalf("expected exactly one resolution, got %d", calls)
	}
	for _, id := range ids {
		if id != "merchant.com.example.once" {
			t.Fatalf("unexpected identifier %q", id)
		}
	}
}

func TestProviderDoesNotCacheFailures(t *testing.T) {
	src := &countingSource{inner: StaticSource{Certificate: testutil.NewMerchantCertificate(t, "merchant.com.example.retry")}}
	src.fail.Store(true)
	p := NewProvider(src)

	if _, err := p.Certificate(); err == nil {
		t.Fatalf("expected first resolution to fail")
	}

	src.fail.Store(false)
	cert, err := p.Certificate()
	if err != nil {
		t.Fatalf("second resolution: %v", err)
	}
	if cert.MerchantIdentifier() != "merchant.com.example.retry" {
		t.Fatalf("unexpected identifier %q", cert.MerchantIdentifier())
	}
	if calls := src.calls.Load(); calls != 2 {
		t.Fatalf("expected two resolutions, got %d", calls)
	}
}

func TestNewProviderFromOptions(t *testing.T) {
	if _, err := NewProviderFromOptions(Options{}); !errors.As(err, new(*ConfigurationError)) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}

	p, err := NewProviderFromOptions(Options{MerchantCertificateFileName: fixturePFX, MerchantCertificatePassword: fixturePassword})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	id, err := p.MerchantIdentifier()
	if err != nil {
		t.Fatalf("merchant identifier: %v", err)
	}
	if id != fixtureMerchantID {
		t.Fatalf("unexpected identifier %q", id)
	}
}

func TestNilProvider(t *testing.T) {
	var p *Provider
	if _, err := p.Certificate(); !IsCertificateError(err) {
		t.Fatalf("expected certificate error from nil provider, got %v", err)
	}
}
