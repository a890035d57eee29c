// Package auth issues and verifies session tokens and password verifiers.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

const DefaultTokenTTL = time.Hour

const issuer = "railbooking"

// Claims is the signed payload of a session token.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Authority issues HS256 tokens and verifies them without any server-side
// session state.
type Authority struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type AuthorityOption func(*Authority)

// WithClock overrides the time source used for issuing and verifying.
func WithClock(now func() time.Time) AuthorityOption {
	return func(a *Authority) {
		a.now = now
	}
}

func NewAuthority(secret string, ttl time.Duration, opts ...AuthorityOption) (*Authority, error) {
	if secret == "" {
		return nil, errors.New("auth: empty signing secret")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	a := &Authority{secret: []byte(secret), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Authority) TTL() time.Duration {
	return a.ttl
}

// Issue returns a token naming user that expires after the configured TTL.
func (a *Authority) Issue(user *domain.User) (string, error) {
	now := a.now()
	claims := Claims{
		Role: string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(ceilSecond(now.Add(a.ttl))),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ceilSecond rounds t up to a whole second. NumericDate drops fractions, and
// the expiry must not land before issue time plus TTL.
func ceilSecond(t time.Time) time.Time {
	if whole := t.Truncate(time.Second); whole.Before(t) {
		return whole.Add(time.Second)
	}
	return t
}

// Verify checks signature and expiry and returns the embedded user id.
// Resolving the id to a live user is left to the caller.
func (a *Authority) Verify(token string) (int64, error) {
	if token == "" {
		return 0, domain.ErrAuthMissing
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return 0, domain.ErrAuthExpired
	default:
		return 0, fmt.Errorf("%w: %v", domain.ErrAuthMalformed, err)
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad subject %q", domain.ErrAuthMalformed, claims.Subject)
	}
	return id, nil
}
