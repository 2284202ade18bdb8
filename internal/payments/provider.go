package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Provider names accepted by the initiate endpoint.
const (
	ProviderCard   = "card"
	ProviderCrypto = "crypto"
	ProviderBank   = "bank"
)

// SourceSimulatedBank labels donations from the bank simulator, which
// confirms synchronously and therefore skips the pending phase.
const SourceSimulatedBank = "simulated_bank"

// BeginResult is the provider's answer when a payment is opened: the
// reference it will confirm with later, and where to send the donor.
type BeginResult struct {
	ExternalRef string
	RedirectURL string
}

// Provider represents a connector to an external payment processor. The
// processor confirms asynchronously through the confirmation webhook.
type Provider interface {
	Name() string
	Begin(ctx context.Context, tagCode string, amountCents int64) (BeginResult, error)
}

// SimulatedProvider stands in for a real processor connector. It hands out
// synthetic references and a hosted-checkout style redirect URL.
type SimulatedProvider struct {
	Label   string
	BaseURL string
}

// Name returns the provider label used in transaction records.
func (p SimulatedProvider) Name() string { return p.Label }

// Begin opens a simulated payment.
func (p SimulatedProvider) Begin(_ context.Context, tagCode string, _ int64) (BeginResult, error) {
	ref := fmt.Sprintf("%s_%s", p.Label, uuid.NewString())
	base := p.BaseURL
	if base == "" {
		base = "https://pay.example.com"
	}
	return BeginResult{
		ExternalRef: ref,
		RedirectURL: fmt.Sprintf("%s/%s/checkout/%s?tag=%s", base, p.Label, ref, tagCode),
	}, nil
}

// DefaultProviders returns the simulated card, crypto and bank connectors.
func DefaultProviders() map[string]Provider {
	return map[string]Provider{
		ProviderCard:   SimulatedProvider{Label: ProviderCard},
		ProviderCrypto: SimulatedProvider{Label: ProviderCrypto},
		ProviderBank:   SimulatedProvider{Label: ProviderBank},
	}
}
