package authgate

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// MethodPIN marks a session granted through PIN verification.
	MethodPIN = "pin"
	// MethodBiometric marks a session granted through the biometric handshake.
	MethodBiometric = "biometric"
)

// ErrInvalidSession occurs when a presented token fails signature, expiry or
// shape validation.
var ErrInvalidSession = errors.New("invalid session")

// Session grants read/transfer rights for exactly one tag until expiry. It is
// never valid for any other tag code.
type Session struct {
	Token     string    `json:"token"`
	TagCode   string    `json:"tag_code"`
	Method    string    `json:"method"`
	GrantedAt time.Time `json:"granted_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type sessionClaims struct {
	Method string `json:"method"`
	jwt.RegisteredClaims
}

func signSession(tagCode, method string, secret []byte, ttl time.Duration) (Session, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := sessionClaims{
		Method: method,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   tagCode,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, TagCode: tagCode, Method: method, GrantedAt: now, ExpiresAt: exp}, nil
}

// ParseSession validates a session token and returns the session it encodes.
// Expired or tampered tokens fail with ErrInvalidSession.
func ParseSession(token string, secret []byte) (Session, error) {
	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSession
		}
		return secret, nil
	})
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return Session{}, ErrInvalidSession
	}
	s := Session{Token: token, TagCode: claims.Subject, Method: claims.Method}
	if claims.IssuedAt != nil {
		s.GrantedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}
