// Package token defines the token collaborator surface the auction
// engine settles against, plus an in-process Ledger used by the
// sandbox daemon and the test suites.
package token

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/holiman/uint256"

	"github.com/luxfi/dax/pkg/fixedpoint"
	"github.com/luxfi/dax/pkg/log"
)

var (
	ErrUnknownAsset        = errors.New("unknown asset")
	ErrAssetExists         = errors.New("asset already registered")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount")
)

// Backend is what the auction engine needs from tokens: decimal
// lookups, balance reads, and transfers. An on-chain deployment backs
// it with token contracts; the sandbox daemon and tests back it with
// a Ledger.
type Backend interface {
	Decimals(ctx context.Context, token string) (uint8, error)
	BalanceOf(ctx context.Context, token, holder string) (*uint256.Int, error)
	Transfer(ctx context.Context, token, from, to string, amount *uint256.Int) error
}

// Ledger is an in-process multi-asset balance book.
type Ledger struct {
	mu     sync.RWMutex
	assets map[string]*asset
	log    log.Logger
}

type asset struct {
	decimals uint8
	balances map[string]*uint256.Int
}

// NewLedger creates an empty ledger
func NewLedger(logger log.Logger) *Ledger {
	return &Ledger{
		assets: make(map[string]*asset),
		log:    logger,
	}
}

// RegisterAsset adds a token with its decimal count
func (l *Ledger) RegisterAsset(token string, decimals uint8) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.assets[token]; exists {
		return ErrAssetExists
	}

	l.assets[token] = &asset{
		decimals: decimals,
		balances: make(map[string]*uint256.Int),
	}

	l.log.Debug("asset registered",
		"token", token,
		"decimals", decimals)

	return nil
}

// Assets returns the registered token addresses, sorted
func (l *Ledger) Assets() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, 0, len(l.assets))
	for token := range l.assets {
		out = append(out, token)
	}
	sort.Strings(out)
	return out
}

// Decimals implements Backend
func (l *Ledger) Decimals(ctx context.Context, token string) (uint8, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, ok := l.assets[token]
	if !ok {
		return 0, ErrUnknownAsset
	}
	return a.decimals, nil
}

// BalanceOf implements Backend. Unknown holders read as zero.
func (l *Ledger) BalanceOf(ctx context.Context, token, holder string) (*uint256.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, ok := l.assets[token]
	if !ok {
		return nil, ErrUnknownAsset
	}
	if bal, ok := a.balances[holder]; ok {
		return bal.Clone(), nil
	}
	return new(uint256.Int), nil
}

// Mint credits freshly created units to an account
func (l *Ledger) Mint(ctx context.Context, token, to string, amount *uint256.Int) error {
	if amount == nil {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.assets[token]
	if !ok {
		return ErrUnknownAsset
	}
	if err := a.credit(to, amount); err != nil {
		return err
	}

	l.log.Debug("minted",
		"token", token,
		"to", to,
		"amount", amount.Dec())

	return nil
}

// Burn removes units from an account
func (l *Ledger) Burn(ctx context.Context, token, from string, amount *uint256.Int) error {
	if amount == nil {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.assets[token]
	if !ok {
		return ErrUnknownAsset
	}
	if err := a.debit(from, amount); err != nil {
		return err
	}

	l.log.Debug("burned",
		"token", token,
		"from", from,
		"amount", amount.Dec())

	return nil
}

// Transfer implements Backend. Zero-amount transfers are no-ops.
func (l *Ledger) Transfer(ctx context.Context, token, from, to string, amount *uint256.Int) error {
	if amount == nil {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.assets[token]
	if !ok {
		return ErrUnknownAsset
	}
	if amount.IsZero() {
		return nil
	}
	if err := a.debit(from, amount); err != nil {
		return err
	}
	if err := a.credit(to, amount); err != nil {
		// Cannot happen after a successful debit; restore anyway.
		a.balances[from].Add(a.balances[from], amount)
		return err
	}

	l.log.Debug("transfer",
		"token", token,
		"from", from,
		"to", to,
		"amount", amount.Dec())

	return nil
}

func (a *asset) credit(account string, amount *uint256.Int) error {
	bal, ok := a.balances[account]
	if !ok {
		a.balances[account] = amount.Clone()
		return nil
	}
	sum, overflow := new(uint256.Int).AddOverflow(bal, amount)
	if overflow {
		return fixedpoint.ErrArithmeticOverflow
	}
	a.balances[account] = sum
	return nil
}

func (a *asset) debit(account string, amount *uint256.Int) error {
	bal, ok := a.balances[account]
	if !ok || bal.Lt(amount) {
		return ErrInsufficientBalance
	}
	bal.Sub(bal, amount)
	return nil
}
