// Package auth verifies bearer tokens issued by the identity provider.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/example/studymates/internal/application"
)

// Claims are the token claims the service reads.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewVerifier builds a verifier. issuer is optional; when set the iss claim must match.
func NewVerifier(secret, issuer string, now func() time.Time) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	if now == nil {
		now = time.Now
	}
	return &Verifier{secret: []byte(secret), issuer: issuer, now: now}, nil
}

// Verify parses token and returns the principal it names. Any failure wraps
// application.ErrUnauthenticated.
func (v *Verifier) Verify(ctx context.Context, token string) (application.Principal, error) {
	if err := ctx.Err(); err != nil {
		return application.Principal{}, err
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return application.Principal{}, fmt.Errorf("%w: %v", application.ErrUnauthenticated, err)
	}
	if !parsed.Valid {
		return application.Principal{}, fmt.Errorf("%w: invalid token", application.ErrUnauthenticated)
	}

	now := v.now()
	if claims.ExpiresAt == nil || !claims.VerifyExpiresAt(now, true) {
		return application.Principal{}, fmt.Errorf("%w: token expired", application.ErrUnauthenticated)
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return application.Principal{}, fmt.Errorf("%w: unexpected issuer", application.ErrUnauthenticated)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return application.Principal{}, fmt.Errorf("%w: missing subject", application.ErrUnauthenticated)
	}

	return application.Principal{
		UserID: claims.Subject,
		Email:  strings.ToLower(strings.TrimSpace(claims.Email)),
	}, nil
}

// Issue signs a token for principal valid for ttl. It backs local development and tests.
func (v *Verifier) Issue(principal application.Principal, ttl time.Duration) (string, error) {
	now := v.now()
	claims := Claims{
		Email: principal.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.UserID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
