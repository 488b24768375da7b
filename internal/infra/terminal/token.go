package terminal

import (
	"fmt"
	"time"

	"github.com/boddenberg/sitef-terminal-bfa-go/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// Token audiences. Intents flow adapter → bridge, returns flow bridge → adapter.
const (
	AudienceBridge  = "terminal-bridge"
	AudienceAdapter = "sitef-adapter"

	tokenIssuer = "sitef-adapter"
)

// Claims are carried by the bearer tokens exchanged with the bridge.
type Claims struct {
	AttemptID string `json:"attempt_id,omitempty"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 tokens with a secret shared with the bridge.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner creates a signer. A non-positive ttl defaults to one minute.
func NewSigner(secret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign issues a token for audience bound to attemptID.
func (s *Signer) Sign(audience, attemptID string) (string, error) {
	now := s.now()
	claims := Claims{
		AttemptID: attemptID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses tokenString and checks signature, expiry and audience.
func (s *Signer) Verify(tokenString, audience string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "Token inválido ou expirado"}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "Token inválido"}
	}
	return claims, nil
}
