// Package attest defines the reward-attestation boundary. The
// simulation never talks to a chain directly: it asks a Service for
// pool balances and signed attestations, and a failing backend
// degrades to "no rewards available" instead of surfacing errors into
// gameplay.
package attest

import (
	"context"
	"regexp"
	"time"
)

var walletPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ValidWallet reports whether the address is a well-formed reward
// wallet (0x-prefixed, 40 hex digits).
func ValidWallet(wallet string) bool {
	return walletPattern.MatchString(wallet)
}

// Attestation is a signed statement that a wallet earned a reward
// amount in a finished run.
type Attestation struct {
	RunID     string    `json:"runId"`
	Wallet    string    `json:"wallet"`
	Amount    int64     `json:"amount"`
	IssuedAt  time.Time `json:"issuedAt"`
	Signature string    `json:"signature"`
}

// Service is the attestation backend.
type Service interface {
	// PoolBalance returns the reward pool currently available.
	PoolBalance(ctx context.Context) (int64, error)

	// GenerateAttestation signs a reward claim for the wallet.
	GenerateAttestation(ctx context.Context, runID, wallet string, amount int64) (*Attestation, error)

	// HasClaimed reports whether the wallet already claimed for the run.
	HasClaimed(ctx context.Context, runID, wallet string) (bool, error)

	// MarkClaimed records a completed claim.
	MarkClaimed(ctx context.Context, runID, wallet string) error
}

// SafeService wraps a Service with fail-closed defaults: a backend
// error reads as an empty pool and an already-claimed wallet, so no
// gameplay path ever double-issues a reward because the backend was
// down.
type SafeService struct {
	inner Service
}

// NewSafeService wraps the backend. A nil inner service behaves as a
// permanently empty pool.
func NewSafeService(inner Service) *SafeService {
	return &SafeService{inner: inner}
}

// PoolBalance returns the pool balance, or zero on any failure.
func (s *SafeService) PoolBalance(ctx context.Context) int64 {
	if s.inner == nil {
		return 0
	}
	balance, err := s.inner.PoolBalance(ctx)
	if err != nil || balance < 0 {
		return 0
	}
	return balance
}

// GenerateAttestation signs a claim, or returns nil when the backend
// fails or the wallet already claimed.
func (s *SafeService) GenerateAttestation(ctx context.Context, runID, wallet string, amount int64) *Attestation {
	if s.inner == nil || amount <= 0 {
		return nil
	}
	claimed, err := s.inner.HasClaimed(ctx, runID, wallet)
	if err != nil || claimed {
		return nil
	}
	att, err := s.inner.GenerateAttestation(ctx, runID, wallet, amount)
	if err != nil {
		return nil
	}
	if err := s.inner.MarkClaimed(ctx, runID, wallet); err != nil {
		// The attestation is already signed; losing the claim record
		// must not retract it. HasClaimed on the backend remains the
		// source of truth for the next attempt.
		return att
	}
	return att
}

// Eligible reports whether the wallet can still claim for the run.
// Any backend failure reads as ineligible.
func (s *SafeService) Eligible(ctx context.Context, runID, wallet string) bool {
	if s.inner == nil || wallet == "" {
		return false
	}
	claimed, err := s.inner.HasClaimed(ctx, runID, wallet)
	if err != nil {
		return false
	}
	return !claimed
}
