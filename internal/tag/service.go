package tag

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/givetag/givetag/internal/ledger"
)

// codeAlphabet avoids ambiguous characters since tag codes are read aloud and
// typed from printed cards.
const codeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const generatedCodeLength = 6

// Service exposes registry operations backed by the tag repository and the ledger.
type Service struct {
	repo   Repository
	ledger ledger.Ledger
}

// NewService builds a tag registry service.
func NewService(repo Repository, ledgerBackend ledger.Ledger) *Service {
	return &Service{repo: repo, ledger: ledgerBackend}
}

// CreateInput captures data required to issue a tag.
type CreateInput struct {
	Code            string
	DisplayName     string
	BeneficiaryType string
	OrgID           string
	PIN             string
	BiometricRef    string
}

// Create issues a tag and provisions its ledger account. The code may be
// supplied by the issuing organization or generated.
func (s *Service) Create(ctx context.Context, input CreateInput) (Tag, error) {
	code := ledger.NormalizeCode(input.Code)
	if code == "" {
		generated, err := generateCode()
		if err != nil {
			return Tag{}, err
		}
		code = generated
	}

	var pinHash []byte
	if input.PIN != "" {
		if len(input.PIN) < 4 {
			return Tag{}, errors.New("PIN must be at least 4 digits")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(input.PIN), bcrypt.DefaultCost)
		if err != nil {
			return Tag{}, err
		}
		pinHash = hash
	}

	t := Tag{
		Code:            code,
		WalletID:        uuid.NewString(),
		DisplayName:     input.DisplayName,
		BeneficiaryType: input.BeneficiaryType,
		OrgID:           input.OrgID,
		PINHash:         pinHash,
		BiometricRef:    input.BiometricRef,
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return Tag{}, err
	}

	// The account row references the tag, so it is provisioned after the
	// record exists.
	if err := s.ledger.EnsureAccount(ctx, t.Code); err != nil {
		return Tag{}, err
	}

	return t, nil
}

// Get retrieves the full tag record, credentials included. Reserved for
// in-process callers; HTTP responses go through Summary.
func (s *Service) Get(ctx context.Context, code string) (Tag, error) {
	return s.repo.Get(ctx, code)
}

// Summary returns the gated read view: metadata joined with the current
// ledger balance.
func (s *Service) Summary(ctx context.Context, code string) (Summary, error) {
	t, err := s.repo.Get(ctx, code)
	if err != nil {
		return Summary{}, err
	}
	balance, err := s.ledger.Balance(ctx, t.Code)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		Code:            t.Code,
		DisplayName:     t.DisplayName,
		BeneficiaryType: t.BeneficiaryType,
		Balance:         balance,
		AsOf:            time.Now().UTC(),
	}, nil
}

func generateCode() (string, error) {
	buf := make([]byte, generatedCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate tag code: %w", err)
	}
	code := make([]byte, generatedCodeLength)
	for i, b := range buf {
		code[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(code), nil
}
