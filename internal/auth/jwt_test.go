package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/studymates/internal/application"
)

func TestVerifier(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	ctx := context.Background()

	verifier, err := NewVerifier("s3cret", "studymates-idp", clock)
	require.NoError(t, err)

	t.Run("accepts tokens it issued", func(t *testing.T) {
		token, err := verifier.Issue(application.Principal{UserID: "u1", Email: "Z1@UNSW.edu.au"}, time.Hour)
		require.NoError(t, err)

		principal, err := verifier.Verify(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "u1", principal.UserID)
		assert.Equal(t, "z1@unsw.edu.au", principal.Email)
	})

	t.Run("rejects expired tokens", func(t *testing.T) {
		token, err := verifier.Issue(application.Principal{UserID: "u1"}, -time.Minute)
		require.NoError(t, err)

		_, err = verifier.Verify(ctx, token)
		assert.True(t, errors.Is(err, application.ErrUnauthenticated), "got %v", err)
	})

	t.Run("rejects other secrets", func(t *testing.T) {
		other, err := NewVerifier("different", "studymates-idp", clock)
		require.NoError(t, err)
		token, err := other.Issue(application.Principal{UserID: "u1"}, time.Hour)
		require.NoError(t, err)

		_, err = verifier.Verify(ctx, token)
		assert.True(t, errors.Is(err, application.ErrUnauthenticated), "got %v", err)
	})

	t.Run("rejects other issuers", func(t *testing.T) {
		other, err := NewVerifier("s3cret", "elsewhere", clock)
		require.NoError(t, err)
		token, err := other.Issue(application.Principal{UserID: "u1"}, time.Hour)
		require.NoError(t, err)

		_, err = verifier.Verify(ctx, token)
		assert.True(t, errors.Is(err, application.ErrUnauthenticated), "got %v", err)
	})

	t.Run("rejects unsigned tokens", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = verifier.Verify(ctx, token)
		assert.True(t, errors.Is(err, application.ErrUnauthenticated), "got %v", err)
	})

	t.Run("rejects tokens without a subject", func(t *testing.T) {
		token, err := verifier.Issue(application.Principal{}, time.Hour)
		require.NoError(t, err)

		_, err = verifier.Verify(ctx, token)
		assert.True(t, errors.Is(err, application.ErrUnauthenticated), "got %v", err)
	})
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	_, err := NewVerifier("  ", "", nil)
	assert.Error(t, err)
}
