package authgate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/givetag/givetag/internal/ledger"
	"github.com/givetag/givetag/internal/logging"
	"github.com/givetag/givetag/internal/tag"
)

type scriptedVerifier struct {
	status VerificationStatus
	checks int
}

func (v *scriptedVerifier) Begin(_ context.Context, challengeID, _ string) (string, error) {
	return "https://verify.test/challenge/" + challengeID, nil
}

func (v *scriptedVerifier) Check(_ context.Context, _ string) (VerificationStatus, error) {
	v.checks++
	return v.status, nil
}

func newTestGate(t *testing.T, verifier Verifier) (*Service, *tag.Service) {
	t.Helper()
	tags := tag.NewMemoryRepository()
	tagSvc := tag.NewService(tags, ledger.NewInMemory())
	cfg := Config{
		SessionSecret: []byte("test-secret"),
		SessionTTL:    time.Hour,
		ChallengeTTL:  10 * time.Minute,
	}
	return NewService(cfg, tags, verifier, nil, logging.Discard()), tagSvc
}

func TestVerifyPINGrantsScopedSession(t *testing.T) {
	gate, tagSvc := newTestGate(t, nil)
	ctx := context.Background()

	if _, err := tagSvc.Create(ctx, tag.CreateInput{Code: "CT001", PIN: "4321"}); err != nil {
		t.Fatalf("create tag: %v", err)
	}

	session, err := gate.VerifyPIN(ctx, "ct001", "4321")
	if err != nil {
		t.Fatalf("verify pin: %v", err)
	}
	if session.TagCode != "CT001" {
		t.Fatalf("session subject %q, want CT001", session.TagCode)
	}
	if session.Method != MethodPIN {
		t.Fatalf("session method %q, want pin", session.Method)
	}

	if _, err := gate.Authorize(session.Token, "CT001"); err != nil {
		t.Fatalf("authorize own tag: %v", err)
	}
	// A session for tag A must never unlock tag B.
	if _, err := gate.Authorize(session.Token, "CT002"); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession for foreign tag, got %v", err)
	}
}

func TestVerifyPINFailsClosed(t *testing.T) {
	gate, tagSvc := newTestGate(t, nil)
	ctx := context.Background()

	if _, err := tagSvc.Create(ctx, tag.CreateInput{Code: "CT001", PIN: "4321"}); err != nil {
		t.Fatalf("create tag: %v", err)
	}
	if _, err := tagSvc.Create(ctx, tag.CreateInput{Code: "CT404"}); err != nil {
		t.Fatalf("create pinless tag: %v", err)
	}

	cases := map[string]struct{ code, pin string }{
		"wrong pin":   {"CT001", "9999"},
		"unknown tag": {"NOPE", "4321"},
		"no pin set":  {"CT404", "4321"},
	}
	for name, tc := range cases {
		if _, err := gate.VerifyPIN(ctx, tc.code, tc.pin); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%s: expected ErrInvalidCredentials, got %v", name, err)
		}
	}
}

func TestBeginChallengeRequiresEnrollment(t *testing.T) {
	gate, tagSvc := newTestGate(t, nil)
	ctx := context.Background()

	if _, err := tagSvc.Create(ctx, tag.CreateInput{Code: "CT001"}); err != nil {
		t.Fatalf("create tag: %v", err)
	}
	if _, err := gate.BeginChallenge(ctx, "CT001"); !errors.Is(err, ErrNotEnrolled) {
		t.Fatalf("expected ErrNotEnrolled, got %v", err)
	}
}

func TestBiometricVerifiedIssuesSessionOnce(t *testing.T) {
	verifier := &scriptedVerifier{status: VerificationVerified}
	gate, tagSvc := newTestGate(t, verifier)
	ctx := context.Background()

	if _, err := tagSvc.Create(ctx, tag.CreateInput{Code: "CT001", BiometricRef: "enroll-1"}); err != nil {
		t.Fatalf("create tag: %v", err)
	}

	ch, err := gate.BeginChallenge(ctx, "CT001")
	if err != nil {
		t.Fatalf("begin challenge: %v", err)
	}
	if ch.State != ChallengeIssued {
		t.Fatalf("challenge state %q, want issued", ch.State)
	}
	if ch.VerificationURL == "" {
		t.Fatal("missing verification url")
	}

	first, err := gate.CompleteChallenge(ctx, ch.ID)
	if err != nil {
		t.Fatalf("complete challenge: %v", err)
	}
	if first.Method != MethodBiometric || first.TagCode != "CT001" {
		t.Fatalf("unexpected session: %+v", first)
	}

	// Second completion replays the same session without consulting the
	// provider again.
	second, err := gate.CompleteChallenge(ctx, ch.ID)
	if err != nil {
		t.Fatalf("replay completion: %v", err)
	}
	if second.Token != first.Token {
		t.Fatal("replay minted a new session")
	}
	if verifier.checks != 1 {
		t.Fatalf("provider consulted %d times, want 1", verifier.checks)
	}
}

func TestBiometricPendingPollsBack(t *testing.T) {
	verifier := &scriptedVerifier{status: VerificationPending}
	gate, tagSvc := newTestGate(t, verifier)
	ctx := context.Background()

	tagSvc.Create(ctx, tag.CreateInput{Code: "CT001", BiometricRef: "enroll-1"})
	ch, _ := gate.BeginChallenge(ctx, "CT001")

	if _, err := gate.CompleteChallenge(ctx, ch.ID); !errors.Is(err, ErrChallengePending) {
		t.Fatalf("expected ErrChallengePending, got %v", err)
	}

	// The provider settles, the next poll succeeds.
	verifier.status = VerificationVerified
	if _, err := gate.CompleteChallenge(ctx, ch.ID); err != nil {
		t.Fatalf("complete after pending: %v", err)
	}
}

func TestBiometricRejectedIsTerminal(t *testing.T) {
	verifier := &scriptedVerifier{status: VerificationRejected}
	gate, tagSvc := newTestGate(t, verifier)
	ctx := context.Background()

	tagSvc.Create(ctx, tag.CreateInput{Code: "CT001", BiometricRef: "enroll-1"})
	ch, _ := gate.BeginChallenge(ctx, "CT001")

	if _, err := gate.CompleteChallenge(ctx, ch.ID); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}

	// Even if the provider would now verify, the verdict stands.
	verifier.status = VerificationVerified
	if _, err := gate.CompleteChallenge(ctx, ch.ID); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected after settle, got %v", err)
	}
	if verifier.checks != 1 {
		t.Fatalf("provider consulted %d times after terminal state, want 1", verifier.checks)
	}
}

func TestBiometricExpiredChallenge(t *testing.T) {
	verifier := &scriptedVerifier{status: VerificationVerified}
	gate, tagSvc := newTestGate(t, verifier)
	gate.cfg.ChallengeTTL = -time.Minute // already expired when issued
	ctx := context.Background()

	tagSvc.Create(ctx, tag.CreateInput{Code: "CT001", BiometricRef: "enroll-1"})
	ch, _ := gate.BeginChallenge(ctx, "CT001")

	if _, err := gate.CompleteChallenge(ctx, ch.ID); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired, got %v", err)
	}
}

func TestCompleteUnknownChallenge(t *testing.T) {
	gate, _ := newTestGate(t, nil)
	if _, err := gate.CompleteChallenge(context.Background(), "missing"); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound, got %v", err)
	}
}

func TestExpiredSessionRejected(t *testing.T) {
	gate, tagSvc := newTestGate(t, nil)
	gate.cfg.SessionTTL = -time.Minute
	ctx := context.Background()

	tagSvc.Create(ctx, tag.CreateInput{Code: "CT001", PIN: "4321"})
	session, err := gate.VerifyPIN(ctx, "CT001", "4321")
	if err != nil {
		t.Fatalf("verify pin: %v", err)
	}

	if _, err := gate.Authorize(session.Token, "CT001"); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession for expired session, got %v", err)
	}
}
