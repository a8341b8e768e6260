package auth

import (
	"testing"
	"time"

	"github.com/cuongbtq/agenthire/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer, err := NewTokenIssuer("s3cret", "agenthire", time.Hour)
	require.NoError(t, err)

	token, expiresAt, err := issuer.Issue("0xabc", true)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	actor, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, domain.Actor{Wallet: "0xabc", Admin: true}, actor)
}

func TestTokenIssuer_Rejects(t *testing.T) {
	issuer, err := NewTokenIssuer("s3cret", "agenthire", time.Hour)
	require.NoError(t, err)

	other, err := NewTokenIssuer("different", "agenthire", time.Hour)
	require.NoError(t, err)
	foreign, _, err := other.Issue("0xabc", false)
	require.NoError(t, err)

	wrongIssuer, err := NewTokenIssuer("s3cret", "someone-else", time.Hour)
	require.NoError(t, err)
	misissued, _, err := wrongIssuer.Issue("0xabc", false)
	require.NoError(t, err)

	expiredIssuer, err := NewTokenIssuer("s3cret", "agenthire", time.Minute)
	require.NoError(t, err)
	expiredIssuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, _, err := expiredIssuer.Issue("0xabc", false)
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "0xabc",
		Issuer:    "agenthire",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": foreign,
		"wrong issuer": misissued,
		"expired":      expired,
		"alg none":     unsigned,
	}

	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := issuer.Parse(token)
			assert.True(t, domain.IsAuthorization(err), "got %v", err)
		})
	}
}

func TestNewTokenIssuer_RequiresSecret(t *testing.T) {
	_, err := NewTokenIssuer("", "agenthire", time.Hour)
	assert.Error(t, err)
}
