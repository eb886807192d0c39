// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package auction implements the Dutch auction registry: sell tokens
// are enabled against a single settlement token, kicked into hourly
// halving price windows, and filled by takers at the current quote.
package auction

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"github.com/luxfi/dax/pkg/ids"
)

var (
	ErrInvalidConfiguration = errors.New("invalid auction configuration")
	ErrInvalidToken         = errors.New("invalid token")
	ErrAlreadyEnabled       = errors.New("auction already enabled")
	ErrNotEnabled           = errors.New("auction not enabled")
	ErrTooSoon              = errors.New("cooldown has not elapsed")
	ErrNothingToKick        = errors.New("nothing to kick")
	ErrNotKicked            = errors.New("auction not kicked")
	ErrWindowExpired        = errors.New("auction window expired")
	ErrZeroNeeded           = errors.New("settlement amount rounds to zero")
	ErrBelowMinimum         = errors.New("price below configured minimum")
	ErrReentrantTake        = errors.New("auction record is busy")
	ErrSweepActive          = errors.New("token has a live auction window")
)

// Config is the registry-wide auction configuration shared by every
// sell token.
type Config struct {
	// Name identifies the deployment. It is folded into auction IDs
	// and doubles as the ledger account that holds kicked balances.
	Name string

	// WantToken is the settlement token every auction pays into.
	WantToken string

	// Receiver is the default proceeds destination, also used by
	// Sweep. Enable may override it per record.
	Receiver string

	// StartingPrice is the opening price of a full kicked lot, in
	// whole settlement tokens. The per-unit quote is derived from it
	// and the kicked amount.
	StartingPrice *uint256.Int

	// AuctionLength is the price window in seconds.
	AuctionLength uint64

	// AuctionCooldown spaces kicks when HasCooldown is set. It must
	// exceed AuctionLength so a window never overlaps the next kick.
	AuctionCooldown uint64

	HasCooldown     bool
	HasMinimumPrice bool

	// AllowEmptyTake turns takes against a sold-out window into
	// no-ops instead of ErrZeroNeeded failures.
	AllowEmptyTake bool
}

// Validate checks the configuration for internal consistency
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: empty registry name", ErrInvalidConfiguration)
	}
	if c.WantToken == "" {
		return fmt.Errorf("%w: empty settlement token", ErrInvalidConfiguration)
	}
	if c.Receiver == "" {
		return fmt.Errorf("%w: empty receiver", ErrInvalidConfiguration)
	}
	if c.StartingPrice == nil || c.StartingPrice.IsZero() {
		return fmt.Errorf("%w: zero starting price", ErrInvalidConfiguration)
	}
	if c.AuctionLength == 0 {
		return fmt.Errorf("%w: zero auction length", ErrInvalidConfiguration)
	}
	if c.HasCooldown && c.AuctionCooldown <= c.AuctionLength {
		return fmt.Errorf("%w: cooldown must exceed auction length", ErrInvalidConfiguration)
	}
	return nil
}

// cooldown returns the effective spacing between kicks. Without an
// explicit cooldown the window length itself spaces kicks.
func (c Config) cooldown() uint64 {
	if c.HasCooldown {
		return c.AuctionCooldown
	}
	return c.AuctionLength
}

// TokenRef pins one side of an auction pair with its WAD scaler.
type TokenRef struct {
	Address string
	Scaler  *uint256.Int
}

// Record is the full state of one sell-token auction.
type Record struct {
	ID       ids.ID
	From     TokenRef
	To       TokenRef
	Receiver string

	// KickedAt is the opening timestamp of the current window, zero
	// if the record was never kicked.
	KickedAt uint64

	// InitialAvailable is the lot size captured at the kick; the
	// price curve is anchored to it for the whole window.
	InitialAvailable *uint256.Int

	// CurrentAvailable is what is left to take. It only ever shrinks
	// within a window.
	CurrentAvailable *uint256.Int

	// MinimumPrice is the optional WAD quote floor, active only when
	// the registry runs with HasMinimumPrice.
	MinimumPrice *uint256.Int
}

func (r Record) clone() Record {
	out := r
	out.From.Scaler = cloneOrZero(r.From.Scaler)
	out.To.Scaler = cloneOrZero(r.To.Scaler)
	out.InitialAvailable = cloneOrZero(r.InitialAvailable)
	out.CurrentAvailable = cloneOrZero(r.CurrentAvailable)
	if r.MinimumPrice != nil {
		out.MinimumPrice = r.MinimumPrice.Clone()
	}
	return out
}

// Stats accumulates per-record settlement counters.
type Stats struct {
	Kicks         uint64
	Takes         uint64
	TotalSold     *uint256.Int
	TotalProceeds *uint256.Int
	LastKickAt    uint64
	LastTakeAt    uint64
}

func newStats() Stats {
	return Stats{
		TotalSold:     new(uint256.Int),
		TotalProceeds: new(uint256.Int),
	}
}

func (s Stats) clone() Stats {
	out := s
	out.TotalSold = cloneOrZero(s.TotalSold)
	out.TotalProceeds = cloneOrZero(s.TotalProceeds)
	return out
}

func cloneOrZero(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return x.Clone()
}

// Hook receives control around kicks and takes. Implementations decide
// what is kickable, stage inventory before a fill, and react after
// one. Hook calls run without registry locks held; a hook that calls
// back into the busy record gets ErrReentrantTake.
type Hook interface {
	// Kickable reports how much of the sell token a kick would open.
	Kickable(ctx context.Context, fromToken string) (*uint256.Int, error)

	// AuctionKicked runs at kick time and returns the lot to auction.
	AuctionKicked(ctx context.Context, fromToken string) (*uint256.Int, error)

	// PreTake runs before settlement transfers.
	PreTake(ctx context.Context, fromToken string, amountTaken *uint256.Int) error

	// PostTake runs after the record was decremented. A non-nil error
	// rolls back the transfers and the decrement.
	PostTake(ctx context.Context, toToken string, newAvailable *uint256.Int) error
}

// Persister stores record snapshots after every mutating operation.
type Persister interface {
	SaveAuction(rec Record, st Stats) error
	DeleteAuction(id ids.ID) error
}

// record pairs auction state with its lock. busy marks the span of an
// in-flight kick or take whose hooks and transfers run unlocked; gone
// marks a record removed by Disable so stragglers holding the pointer
// fail instead of mutating an orphan.
type record struct {
	mu   sync.RWMutex
	busy bool
	gone bool
	rec  Record
	st   Stats
}

func (rc *record) clearBusy() {
	rc.mu.Lock()
	rc.busy = false
	rc.mu.Unlock()
}
