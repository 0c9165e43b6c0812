// Package auth guards the sync endpoints: one configured account, checked by
// password (HTTP basic) or by a short-lived bearer token issued for it.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rohanthewiz/serr"
)

const (
	// DefaultTokenTTL is how long issued tokens remain valid.
	DefaultTokenTTL = 24 * time.Hour

	// Issuer identifies tokens minted by this application.
	Issuer = "litman"

	// MinSecretLength is the minimum acceptable length for the signing secret.
	MinSecretLength = 32
)

// TokenClaims extends the registered claims with the account name.
type TokenClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// TokenIssuer mints and validates HS256 tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	clock  func() time.Time
}

// NewTokenIssuer returns an issuer for secret. A zero ttl means
// DefaultTokenTTL; a nil clock means time.Now.
func NewTokenIssuer(secret string, ttl time.Duration, clock func() time.Time) (*TokenIssuer, error) {
	if len(secret) < MinSecretLength {
		return nil, serr.New("token secret must be at least 32 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, clock: clock}, nil
}

// Issue creates a signed token for username and returns it with its expiry.
func (ti *TokenIssuer) Issue(username string) (string, time.Time, error) {
	now := ti.clock()
	expires := now.Add(ti.ttl)

	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    Issuer,
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
		Username: username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.secret)
	if err != nil {
		return "", time.Time{}, serr.Wrap(err, "failed to sign token")
	}
	return signed, expires, nil
}

// Validate parses a token and returns its claims if the signature, issuer
// and validity window all check out.
func (ti *TokenIssuer) Validate(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, serr.New("unexpected signing method")
		}
		return ti.secret, nil
	},
		jwt.WithIssuer(Issuer),
		jwt.WithTimeFunc(ti.clock),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, serr.Wrap(err, "failed to parse token")
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, serr.New("invalid token claims")
	}
	return claims, nil
}
