package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/givetag/givetag/internal/ledger"
	"github.com/givetag/givetag/internal/metrics"
	"github.com/givetag/givetag/internal/notification"
	"github.com/givetag/givetag/internal/tag"
)

var (
	// ErrNotOwner indicates the caller's session does not cover the source tag.
	ErrNotOwner = errors.New("session does not cover source tag")

	// ErrUnknownProvider occurs when an initiate request names a provider with
	// no connector.
	ErrUnknownProvider = errors.New("unknown payment provider")
)

// Service orchestrates donations, transfers and provider confirmations over
// the ledger.
type Service struct {
	ledger     ledger.Ledger
	tags       *tag.Service
	notifier   notification.Notifier
	metrics    *metrics.Metrics
	providers  map[string]Provider
	pendingTTL time.Duration
	logger     *slog.Logger
}

// NewService constructs the payments service.
func NewService(ledgerBackend ledger.Ledger, tags *tag.Service, notifier notification.Notifier, m *metrics.Metrics, providers map[string]Provider, pendingTTL time.Duration, logger *slog.Logger) *Service {
	if providers == nil {
		providers = DefaultProviders()
	}
	return &Service{
		ledger:     ledgerBackend,
		tags:       tags,
		notifier:   notifier,
		metrics:    m,
		providers:  providers,
		pendingTTL: pendingTTL,
		logger:     logger,
	}
}

// DonateInput captures an already-confirmed donation.
type DonateInput struct {
	TagCode string
	Amount  int64
	Source  string
}

// Donate credits a tag for a payment source that confirms synchronously.
func (s *Service) Donate(ctx context.Context, input DonateInput) (ledger.DonationOutcome, error) {
	source := input.Source
	if source == "" {
		source = SourceSimulatedBank
	}

	outcome, err := s.ledger.Donate(ctx, input.TagCode, input.Amount, source)
	if err != nil {
		return ledger.DonationOutcome{}, err
	}

	s.recordDonation(ctx, outcome.Transaction)
	return outcome, nil
}

// TransferInput captures a tag-to-tag transfer. SessionTagCode is the subject
// of the caller's verified session.
type TransferInput struct {
	FromCode       string
	ToCode         string
	Amount         int64
	SessionTagCode string
}

// Transfer moves value between two tags after checking the caller's session
// covers the source tag.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (ledger.TransferOutcome, error) {
	if input.SessionTagCode != "" && input.SessionTagCode != ledger.NormalizeCode(input.FromCode) {
		return ledger.TransferOutcome{}, ErrNotOwner
	}

	outcome, err := s.ledger.Transfer(ctx, input.FromCode, input.ToCode, input.Amount)
	if err != nil {
		return ledger.TransferOutcome{}, err
	}

	if s.metrics != nil {
		s.metrics.TransfersTotal.Inc()
		s.metrics.TransferredCents.Add(float64(outcome.Transaction.Amount))
	}
	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindTransferReceived,
			TagCode:     outcome.Transaction.TagCode,
			AmountCents: outcome.Transaction.Amount,
			Body:        fmt.Sprintf("You received %d cents from %s", outcome.Transaction.Amount, outcome.Transaction.Source),
		})
	}

	return outcome, nil
}

// InitiateInput captures a donation that needs asynchronous provider
// confirmation.
type InitiateInput struct {
	TagCode  string
	Amount   int64
	Provider string
}

// InitiateOutcome is the pending transaction plus where to send the donor.
type InitiateOutcome struct {
	Transaction ledger.Transaction
	RedirectURL string
}

// InitiateDonation opens a payment with the named provider and records the
// pending transaction. No balance changes until the provider confirms.
func (s *Service) InitiateDonation(ctx context.Context, input InitiateInput) (InitiateOutcome, error) {
	provider, ok := s.providers[input.Provider]
	if !ok {
		return InitiateOutcome{}, ErrUnknownProvider
	}
	if input.Amount <= 0 {
		return InitiateOutcome{}, ledger.ErrInvalidAmount
	}

	// Fail before contacting the provider when the tag is unknown.
	if _, err := s.tags.Get(ctx, input.TagCode); err != nil {
		if errors.Is(err, tag.ErrNotFound) {
			return InitiateOutcome{}, ledger.ErrNotFound
		}
		return InitiateOutcome{}, err
	}

	begun, err := provider.Begin(ctx, ledger.NormalizeCode(input.TagCode), input.Amount)
	if err != nil {
		return InitiateOutcome{}, err
	}

	expiresAt := time.Now().Add(s.pendingTTL)
	tx, err := s.ledger.InitiatePending(ctx, input.TagCode, input.Amount, provider.Name(), begun.ExternalRef, expiresAt)
	if err != nil {
		return InitiateOutcome{}, err
	}

	return InitiateOutcome{Transaction: tx, RedirectURL: begun.RedirectURL}, nil
}

// HandleProviderConfirmation applies a provider's success signal to the
// matching pending transaction, exactly once. Redelivered confirmations return
// the already-completed transaction without touching balances.
func (s *Service) HandleProviderConfirmation(ctx context.Context, externalRef, tagCode string, amountCents int64) (ledger.ConfirmOutcome, error) {
	outcome, err := s.ledger.CompletePending(ctx, externalRef)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrUnknownPayment):
			s.count(metrics.ConfirmationUnknown)
			s.logger.Warn("confirmation for unknown payment", "external_ref", externalRef, "tag", tagCode)
		case errors.Is(err, ledger.ErrExpired):
			s.count(metrics.ConfirmationExpired)
			s.logger.Warn("confirmation for expired payment", "external_ref", externalRef, "tag", tagCode)
		}
		return ledger.ConfirmOutcome{}, err
	}

	// Cross-check the provider payload against the recorded intent. The
	// credit has been applied by reference; a mismatch is flagged for manual
	// reconciliation, replays are exempt since they carry no new effect.
	if !outcome.Replayed {
		if tagCode != "" && ledger.NormalizeCode(tagCode) != outcome.Transaction.TagCode ||
			amountCents != 0 && amountCents != outcome.Transaction.Amount {
			s.logger.Warn("confirmation payload mismatch",
				"external_ref", externalRef,
				"payload_tag", tagCode,
				"payload_amount", amountCents,
				"recorded_tag", outcome.Transaction.TagCode,
				"recorded_amount", outcome.Transaction.Amount,
			)
		}
	}

	if outcome.Replayed {
		s.count(metrics.ConfirmationReplayed)
		return outcome, nil
	}

	s.count(metrics.ConfirmationApplied)
	s.recordDonation(ctx, outcome.Transaction)
	return outcome, nil
}

func (s *Service) recordDonation(ctx context.Context, tx ledger.Transaction) {
	if s.metrics != nil {
		s.metrics.DonationsTotal.Inc()
		s.metrics.DonatedCents.Add(float64(tx.Amount))
	}
	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindDonationReceived,
			TagCode:     tx.TagCode,
			AmountCents: tx.Amount,
			Body:        fmt.Sprintf("You received a %d cent donation", tx.Amount),
		})
	}
}

func (s *Service) count(result string) {
	if s.metrics != nil {
		s.metrics.ConfirmationsTotal.WithLabelValues(result).Inc()
	}
}
