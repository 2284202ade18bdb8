package authgate

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Biometric challenge states. Issued and Pending may still progress; Verified
// and Rejected are terminal.
const (
	ChallengeIssued   = "issued"
	ChallengePending  = "pending"
	ChallengeVerified = "verified"
	ChallengeRejected = "rejected"
)

// Challenge tracks one biometric verification handshake with the external
// provider. SessionToken is set exactly once, when the challenge reaches
// Verified, and replayed on later completion calls.
type Challenge struct {
	ID              string    `json:"id"`
	TagCode         string    `json:"tag_code"`
	State           string    `json:"state"`
	VerificationURL string    `json:"verification_url"`
	SessionToken    string    `json:"session_token,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// ErrChallengeNotFound occurs when a challenge identifier is unknown, which
// includes challenges evicted after expiry.
var ErrChallengeNotFound = errors.New("challenge not found")

// ChallengeStore persists in-flight challenges.
type ChallengeStore interface {
	Put(ctx context.Context, ch Challenge) error
	Get(ctx context.Context, id string) (Challenge, error)
}

type memoryChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]Challenge
}

// NewMemoryChallengeStore builds an in-memory challenge store for tests and
// dev mode.
func NewMemoryChallengeStore() ChallengeStore {
	return &memoryChallengeStore{challenges: make(map[string]Challenge)}
}

func (s *memoryChallengeStore) Put(_ context.Context, ch Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[ch.ID] = ch
	return nil
}

func (s *memoryChallengeStore) Get(_ context.Context, id string) (Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.challenges[id]
	if !ok {
		return Challenge{}, ErrChallengeNotFound
	}
	return ch, nil
}
