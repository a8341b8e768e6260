package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cuongbtq/agenthire/internal/domain"
	"github.com/cuongbtq/agenthire/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestChallengeService(t *testing.T, verifier SignatureVerifier) (*ChallengeService, *TokenIssuer) {
	t.Helper()
	tokens, err := NewTokenIssuer("s3cret", "agenthire", time.Hour)
	require.NoError(t, err)
	svc := NewChallengeService(
		NewMemoryNonceStore(),
		verifier,
		tokens,
		time.Minute,
		[]string{"0xADMIN"},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return svc, tokens
}

func TestChallengeService_SignIn(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	verifier := mocks.NewMockSignatureVerifier(ctrl)
	svc, tokens := newTestChallengeService(t, verifier)

	challenge, err := svc.Issue(ctx, "0xABC")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", challenge.Wallet)
	assert.Contains(t, challenge.Message, challenge.Nonce)

	verifier.EXPECT().Verify(gomock.Any(), "0xabc", challenge.Message, "sig").Return(true, nil)

	session, err := svc.Verify(ctx, "0xAbc", "sig")
	require.NoError(t, err)
	assert.False(t, session.Admin)

	actor, err := tokens.Parse(session.Token)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", actor.Wallet)

	// The nonce is spent.
	_, err = svc.Verify(ctx, "0xabc", "sig")
	assert.True(t, domain.IsAuthorization(err))
}

func TestChallengeService_AdminWallet(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	verifier := mocks.NewMockSignatureVerifier(ctrl)
	svc, _ := newTestChallengeService(t, verifier)

	_, err := svc.Issue(ctx, "0xadmin")
	require.NoError(t, err)
	verifier.EXPECT().Verify(gomock.Any(), "0xadmin", gomock.Any(), "sig").Return(true, nil)

	session, err := svc.Verify(ctx, "0xadmin", "sig")
	require.NoError(t, err)
	assert.True(t, session.Admin)
}

func TestChallengeService_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("bad signature burns the challenge", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		verifier := mocks.NewMockSignatureVerifier(ctrl)
		svc, _ := newTestChallengeService(t, verifier)

		_, err := svc.Issue(ctx, "0xabc")
		require.NoError(t, err)
		verifier.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(false, nil)

		_, err = svc.Verify(ctx, "0xabc", "forged")
		assert.True(t, domain.IsAuthorization(err))

		_, err = svc.Verify(ctx, "0xabc", "real")
		assert.True(t, domain.IsAuthorization(err))
	})

	t.Run("verifier error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		verifier := mocks.NewMockSignatureVerifier(ctrl)
		svc, _ := newTestChallengeService(t, verifier)

		_, err := svc.Issue(ctx, "0xabc")
		require.NoError(t, err)
		cause := errors.New("verifier down")
		verifier.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(false, cause)

		_, err = svc.Verify(ctx, "0xabc", "sig")
		assert.True(t, domain.IsAuthorization(err))
		assert.ErrorIs(t, err, cause)
	})

	t.Run("no pending challenge", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		svc, _ := newTestChallengeService(t, mocks.NewMockSignatureVerifier(ctrl))

		_, err := svc.Verify(ctx, "0xabc", "sig")
		assert.True(t, domain.IsAuthorization(err))
	})

	t.Run("missing wallet", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		svc, _ := newTestChallengeService(t, mocks.NewMockSignatureVerifier(ctrl))

		_, err := svc.Issue(ctx, "  ")
		assert.Equal(t, domain.KindBadRequest, domain.KindOf(err))
	})
}
