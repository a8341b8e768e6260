// Package auth signs wallets in with single-use challenges and issues bearer
// tokens for the API.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrNonceNotFound is returned for a missing, expired or already used nonce.
var ErrNonceNotFound = errors.New("nonce not found")

// Nonce is a pending challenge for one wallet.
type Nonce struct {
	Value     string    `json:"value"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the nonce is past its expiry at now.
func (n Nonce) Expired(now time.Time) bool {
	return !now.Before(n.ExpiresAt)
}

// NonceStore keeps pending challenges keyed by wallet. Take removes the entry,
// so a nonce can be consumed at most once.
type NonceStore interface {
	Put(ctx context.Context, key string, nonce Nonce) error
	Take(ctx context.Context, key string) (Nonce, error)
	Cleanup(ctx context.Context) (int, error)
}

// MemoryNonceStore is a TTL map for single-instance deployments. Expired
// entries are never returned and are removed by Cleanup.
type MemoryNonceStore struct {
	mu      sync.Mutex
	entries map[string]Nonce
	now     func() time.Time
}

// NewMemoryNonceStore creates an empty store.
func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{
		entries: make(map[string]Nonce),
		now:     time.Now,
	}
}

func (s *MemoryNonceStore) Put(_ context.Context, key string, nonce Nonce) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if nonce.Expired(s.now()) {
		return errors.New("nonce is already expired")
	}
	s.entries[key] = nonce
	return nil
}

func (s *MemoryNonceStore) Take(_ context.Context, key string) (Nonce, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nonce, ok := s.entries[key]
	if !ok {
		return Nonce{}, ErrNonceNotFound
	}
	delete(s.entries, key)
	if nonce.Expired(s.now()) {
		return Nonce{}, ErrNonceNotFound
	}
	return nonce, nil
}

// Cleanup removes expired entries and reports how many were dropped.
func (s *MemoryNonceStore) Cleanup(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, nonce := range s.entries {
		if nonce.Expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of stored entries, expired ones included.
func (s *MemoryNonceStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// RunJanitor calls Cleanup every interval until ctx is canceled.
func RunJanitor(ctx context.Context, store NonceStore, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.Cleanup(ctx)
			if err != nil {
				logger.Error("Nonce cleanup failed", slog.Any("error", err))
				continue
			}
			if removed > 0 {
				logger.Debug("Expired nonces removed", slog.Int("count", removed))
			}
		}
	}
}
