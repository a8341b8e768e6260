package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/agenthire/internal/domain"
	"github.com/cuongbtq/agenthire/internal/metrics"
	"github.com/google/uuid"
)

// DefaultChallengeTTL is how long a sign-in challenge stays valid.
const DefaultChallengeTTL = 5 * time.Minute

// SignatureVerifier checks that signature is wallet's signature of message.
// The cryptography lives outside this service.
type SignatureVerifier interface {
	Verify(ctx context.Context, wallet, message, signature string) (bool, error)
}

// Challenge is what a wallet must sign to log in.
type Challenge struct {
	Wallet    string    `json:"wallet"`
	Nonce     string    `json:"nonce"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Session is the result of a successful sign-in.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Wallet    string    `json:"wallet"`
	Admin     bool      `json:"admin"`
}

// ChallengeService runs the challenge/response login.
type ChallengeService struct {
	nonces   NonceStore
	verifier SignatureVerifier
	tokens   *TokenIssuer
	admins   map[string]bool
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewChallengeService wires the login flow. adminWallets receive admin tokens.
func NewChallengeService(nonces NonceStore, verifier SignatureVerifier, tokens *TokenIssuer, ttl time.Duration, adminWallets []string, logger *slog.Logger) *ChallengeService {
	if ttl <= 0 {
		ttl = DefaultChallengeTTL
	}
	admins := make(map[string]bool, len(adminWallets))
	for _, w := range adminWallets {
		admins[NormalizeWallet(w)] = true
	}
	return &ChallengeService{
		nonces:   nonces,
		verifier: verifier,
		tokens:   tokens,
		admins:   admins,
		ttl:      ttl,
		now:      time.Now,
		logger:   logger,
	}
}

// NormalizeWallet lower-cases an address so lookups ignore checksum casing.
func NormalizeWallet(wallet string) string {
	return strings.ToLower(strings.TrimSpace(wallet))
}

// Issue creates a challenge for wallet, replacing any pending one.
func (s *ChallengeService) Issue(ctx context.Context, wallet string) (Challenge, error) {
	wallet = NormalizeWallet(wallet)
	if wallet == "" {
		return Challenge{}, domain.BadRequestf("wallet is required")
	}

	value := uuid.NewString()
	expiresAt := s.now().Add(s.ttl).UTC()
	message := fmt.Sprintf("Sign in to agenthire\nWallet: %s\nNonce: %s\nExpires: %s",
		wallet, value, expiresAt.Format(time.RFC3339))

	if err := s.nonces.Put(ctx, wallet, Nonce{Value: value, Message: message, ExpiresAt: expiresAt}); err != nil {
		return Challenge{}, fmt.Errorf("store nonce: %w", err)
	}

	metrics.ChallengesIssuedTotal.Inc()
	return Challenge{Wallet: wallet, Nonce: value, Message: message, ExpiresAt: expiresAt}, nil
}

// Verify consumes the wallet's pending challenge and, if signature matches,
// returns a session token. A challenge can be answered once, right or wrong.
func (s *ChallengeService) Verify(ctx context.Context, wallet, signature string) (Session, error) {
	wallet = NormalizeWallet(wallet)
	if wallet == "" || signature == "" {
		return Session{}, domain.BadRequestf("wallet and signature are required")
	}

	nonce, err := s.nonces.Take(ctx, wallet)
	if err != nil {
		if errors.Is(err, ErrNonceNotFound) {
			return Session{}, domain.Unauthorizedf("no pending challenge for wallet")
		}
		return Session{}, fmt.Errorf("load nonce: %w", err)
	}

	ok, err := s.verifier.Verify(ctx, wallet, nonce.Message, signature)
	if err != nil {
		return Session{}, domain.Wrap(err, domain.KindAuthorization, "signature verification failed")
	}
	if !ok {
		s.logger.Warn("Wallet signature rejected", slog.String("wallet", wallet))
		return Session{}, domain.Unauthorizedf("signature does not match challenge")
	}

	admin := s.admins[wallet]
	token, expiresAt, err := s.tokens.Issue(wallet, admin)
	if err != nil {
		return Session{}, err
	}

	s.logger.Info("Wallet signed in",
		slog.String("wallet", wallet),
		slog.Bool("admin", admin),
	)
	return Session{Token: token, ExpiresAt: expiresAt, Wallet: wallet, Admin: admin}, nil
}
