package authgate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/givetag/givetag/internal/ledger"
	"github.com/givetag/givetag/internal/tag"
)

var (
	// ErrInvalidCredentials is the single failure returned for every PIN
	// verification problem. Callers can not tell a wrong PIN from an unknown
	// tag, which prevents tag-code enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNotEnrolled occurs when a tag has no biometric enrollment reference.
	ErrNotEnrolled = errors.New("tag not enrolled for biometric verification")

	// ErrChallengePending indicates the provider has not reached a verdict yet.
	ErrChallengePending = errors.New("verification still pending")

	// ErrRejected indicates the provider denied the subject. Terminal.
	ErrRejected = errors.New("verification rejected")

	// ErrChallengeExpired occurs when a challenge is completed past its expiry.
	ErrChallengeExpired = errors.New("challenge expired")
)

// dummyPINHash keeps PIN verification work roughly constant when the tag does
// not exist or carries no PIN.
var dummyPINHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// Config carries the gate's signing and expiry settings.
type Config struct {
	SessionSecret []byte
	SessionTTL    time.Duration
	ChallengeTTL  time.Duration
}

// Service verifies callers before they may view or act on a tag.
type Service struct {
	cfg        Config
	tags       tag.Repository
	verifier   Verifier
	challenges ChallengeStore
	logger     *slog.Logger
}

// NewService builds the authentication gate.
func NewService(cfg Config, tags tag.Repository, verifier Verifier, challenges ChallengeStore, logger *slog.Logger) *Service {
	if verifier == nil {
		verifier = StaticVerifier{}
	}
	if challenges == nil {
		challenges = NewMemoryChallengeStore()
	}
	return &Service{cfg: cfg, tags: tags, verifier: verifier, challenges: challenges, logger: logger}
}

// VerifyPIN checks the PIN against the stored hash and issues a session on
// success. Every failure path performs a bcrypt comparison and collapses to
// ErrInvalidCredentials.
func (s *Service) VerifyPIN(ctx context.Context, code, pin string) (Session, error) {
	t, err := s.tags.Get(ctx, code)
	if err != nil || len(t.PINHash) == 0 {
		bcrypt.CompareHashAndPassword(dummyPINHash, []byte(pin)) // nolint:errcheck
		return Session{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(t.PINHash, []byte(pin)); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	return signSession(t.Code, MethodPIN, s.cfg.SessionSecret, s.cfg.SessionTTL)
}

// BeginChallenge opens a biometric handshake with the external provider for an
// enrolled tag.
func (s *Service) BeginChallenge(ctx context.Context, code string) (Challenge, error) {
	t, err := s.tags.Get(ctx, code)
	if err != nil {
		return Challenge{}, err
	}
	if t.BiometricRef == "" {
		return Challenge{}, ErrNotEnrolled
	}

	ch := Challenge{
		ID:        uuid.NewString(),
		TagCode:   t.Code,
		State:     ChallengeIssued,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(s.cfg.ChallengeTTL),
	}

	url, err := s.verifier.Begin(ctx, ch.ID, t.BiometricRef)
	if err != nil {
		return Challenge{}, err
	}
	ch.VerificationURL = url

	if err := s.challenges.Put(ctx, ch); err != nil {
		return Challenge{}, err
	}
	return ch, nil
}

// CompleteChallenge finalizes a challenge once the provider reports a verdict.
// A verified challenge issues its session exactly once; later calls replay the
// same session instead of minting a new one.
func (s *Service) CompleteChallenge(ctx context.Context, challengeID string) (Session, error) {
	ch, err := s.challenges.Get(ctx, challengeID)
	if err != nil {
		return Session{}, err
	}

	switch ch.State {
	case ChallengeVerified:
		session, err := ParseSession(ch.SessionToken, s.cfg.SessionSecret)
		if err != nil {
			return Session{}, err
		}
		return session, nil
	case ChallengeRejected:
		return Session{}, ErrRejected
	}

	if time.Now().After(ch.ExpiresAt) {
		return Session{}, ErrChallengeExpired
	}

	status, err := s.verifier.Check(ctx, ch.ID)
	if err != nil {
		return Session{}, err
	}

	switch status {
	case VerificationVerified:
		session, err := signSession(ch.TagCode, MethodBiometric, s.cfg.SessionSecret, s.cfg.SessionTTL)
		if err != nil {
			return Session{}, err
		}
		ch.State = ChallengeVerified
		ch.SessionToken = session.Token
		if err := s.challenges.Put(ctx, ch); err != nil {
			return Session{}, err
		}
		return session, nil
	case VerificationRejected:
		ch.State = ChallengeRejected
		if err := s.challenges.Put(ctx, ch); err != nil {
			return Session{}, err
		}
		s.logger.Info("biometric challenge rejected", "challenge_id", ch.ID, "tag", ch.TagCode)
		return Session{}, ErrRejected
	default:
		if ch.State != ChallengePending {
			ch.State = ChallengePending
			if err := s.challenges.Put(ctx, ch); err != nil {
				return Session{}, err
			}
		}
		return Session{}, ErrChallengePending
	}
}

// Authorize validates a presented session token and checks it covers the given
// tag code.
func (s *Service) Authorize(token, code string) (Session, error) {
	session, err := ParseSession(token, s.cfg.SessionSecret)
	if err != nil {
		return Session{}, err
	}
	if session.TagCode != ledger.NormalizeCode(code) {
		return Session{}, ErrInvalidSession
	}
	return session, nil
}
