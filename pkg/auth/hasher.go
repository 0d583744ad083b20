package auth

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// MaxCredentialBytes is the longest plaintext bcrypt hashes without truncation
const MaxCredentialBytes = 72

// DefaultHashCost is used when no cost is configured
const DefaultHashCost = 10

// Hasher hashes and verifies passwords with bcrypt. Concurrent work is bounded
// so a burst of logins cannot monopolize every CPU.
type Hasher struct {
	cost  int
	slots *semaphore.Weighted
	dummy []byte
}

// NewHasher creates a hasher with the given bcrypt cost and concurrency.
// A concurrency of zero or less uses GOMAXPROCS.
func NewHasher(cost, concurrency int) (*Hasher, error) {
	if cost == 0 {
		cost = DefaultHashCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, Fatal(fmt.Sprintf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost), nil)
	}
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("gatehouse-timing-equalizer"), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}

	return &Hasher{
		cost:  cost,
		slots: semaphore.NewWeighted(int64(concurrency)),
		dummy: dummy,
	}, nil
}

// Cost returns the configured bcrypt cost
func (h *Hasher) Cost() int {
	return h.cost
}

// Hash returns a self-describing bcrypt hash of plaintext
func (h *Hasher) Hash(ctx context.Context, plaintext string) (string, error) {
	if len(plaintext) > MaxCredentialBytes {
		return "", ErrCredentialTooLong
	}
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return "", Transient("hashing unavailable", err)
	}
	defer h.slots.Release(1)

	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash credential: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether plaintext matches hash. It never errors on mismatch.
func (h *Hasher) Verify(ctx context.Context, plaintext, hash string) bool {
	if hash == "" || len(plaintext) > MaxCredentialBytes {
		return false
	}
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return false
	}
	defer h.slots.Release(1)

	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// VerifyDummy spends the same work as a real verification and always fails.
// Used when no account matches so response timing does not reveal it.
func (h *Hasher) VerifyDummy(ctx context.Context, plaintext string) bool {
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return false
	}
	defer h.slots.Release(1)

	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(plaintext))
	return false
}
