package authgate

import (
	"context"
	"fmt"
)

// VerificationStatus is the provider's answer for an in-flight challenge.
type VerificationStatus string

const (
	// VerificationPending means the subject has not finished the handshake.
	VerificationPending VerificationStatus = "pending"
	// VerificationVerified means the provider confirmed the subject's identity.
	VerificationVerified VerificationStatus = "verified"
	// VerificationRejected means the provider denied the subject.
	VerificationRejected VerificationStatus = "rejected"
)

// Verifier represents a connector to the external biometric verification
// provider.
type Verifier interface {
	Begin(ctx context.Context, challengeID, enrollmentRef string) (verificationURL string, err error)
	Check(ctx context.Context, challengeID string) (VerificationStatus, error)
}

// StaticVerifier simulates a provider that immediately verifies every
// challenge. Used in dev mode and as the default connector.
type StaticVerifier struct {
	BaseURL string
}

// Begin returns a synthetic verification URL for the challenge.
func (v StaticVerifier) Begin(_ context.Context, challengeID, _ string) (string, error) {
	base := v.BaseURL
	if base == "" {
		base = "https://verify.example.com"
	}
	return fmt.Sprintf("%s/challenge/%s", base, challengeID), nil
}

// Check reports every challenge as verified.
func (v StaticVerifier) Check(_ context.Context, _ string) (VerificationStatus, error) {
	return VerificationVerified, nil
}
