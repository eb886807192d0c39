// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package auction

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/dax/pkg/events"
	"github.com/luxfi/dax/pkg/fixedpoint"
	"github.com/luxfi/dax/pkg/ids"
	"github.com/luxfi/dax/pkg/log"
	"github.com/luxfi/dax/pkg/scale"
	"github.com/luxfi/dax/pkg/token"
)

const (
	registryName = "dax-main"
	wantToken    = "0xusd"
	sellToken    = "0xabc"
	treasury     = "treasury"
	takerAcct    = "taker"

	t0        = uint64(1_700_000_000)
	dayWindow = uint64(86_400)
)

func testConfig() Config {
	return Config{
		Name:          registryName,
		WantToken:     wantToken,
		Receiver:      treasury,
		StartingPrice: uint256.NewInt(1_000_000),
		AuctionLength: dayWindow,
	}
}

// rawUnits converts whole tokens to a raw amount at the given decimals.
func rawUnits(units uint64, decimals uint8) *uint256.Int {
	base := uint256.NewInt(units)
	ten := uint256.NewInt(10)
	for i := uint8(0); i < decimals; i++ {
		base.Mul(base, ten)
	}
	return base
}

func wadUnits(units uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(units), fixedpoint.Wad)
}

// newTestRegistry builds a ledger-backed registry with the sell-token
// inventory minted to the registry account and the taker funded with
// plenty of settlement tokens.
func newTestRegistry(t *testing.T, cfg Config, sellDecimals, wantDecimals uint8, inventoryUnits uint64) (*Registry, *token.Ledger) {
	t.Helper()
	ctx := context.Background()

	ledger := token.NewLedger(log.NoLog)
	require.NoError(t, ledger.RegisterAsset(wantToken, wantDecimals))
	require.NoError(t, ledger.RegisterAsset(sellToken, sellDecimals))

	reg, err := New(cfg, ledger, log.NoLog)
	require.NoError(t, err)

	if inventoryUnits > 0 {
		require.NoError(t, ledger.Mint(ctx, sellToken, reg.Account(), rawUnits(inventoryUnits, sellDecimals)))
	}
	require.NoError(t, ledger.Mint(ctx, wantToken, takerAcct, rawUnits(10_000_000, wantDecimals)))

	return reg, ledger
}

func TestConfigValidate(t *testing.T) {
	require := require.New(t)

	require.NoError(testConfig().Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty name", func(c *Config) { c.Name = "" }},
		{"empty want token", func(c *Config) { c.WantToken = "" }},
		{"empty receiver", func(c *Config) { c.Receiver = "" }},
		{"nil starting price", func(c *Config) { c.StartingPrice = nil }},
		{"zero starting price", func(c *Config) { c.StartingPrice = new(uint256.Int) }},
		{"zero auction length", func(c *Config) { c.AuctionLength = 0 }},
		{"cooldown below length", func(c *Config) {
			c.HasCooldown = true
			c.AuctionCooldown = c.AuctionLength
		}},
	}
	for _, tc := range cases {
		cfg := testConfig()
		tc.mutate(&cfg)
		require.ErrorIs(cfg.Validate(), ErrInvalidConfiguration, tc.name)
	}

	// Without HasCooldown the cooldown field is ignored entirely.
	cfg := testConfig()
	cfg.AuctionCooldown = 1
	require.NoError(cfg.Validate())
}

func TestEnableDisable(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	reg, _ := newTestRegistry(t, testConfig(), 18, 18, 0)

	id, err := reg.Enable(ctx, sellToken, "")
	require.NoError(err)
	require.Equal(ids.AuctionID(registryName, sellToken, wantToken), id)

	rec, st, err := reg.GetAuction(sellToken)
	require.NoError(err)
	require.Equal(sellToken, rec.From.Address)
	require.Equal(wantToken, rec.To.Address)
	require.Equal(treasury, rec.Receiver)
	require.True(rec.From.Scaler.Eq(uint256.NewInt(1)))
	require.Zero(rec.KickedAt)
	require.True(rec.CurrentAvailable.IsZero())
	require.Zero(st.Kicks)

	_, err = reg.Enable(ctx, sellToken, "")
	require.ErrorIs(err, ErrAlreadyEnabled)

	// The settlement token can never be put up for auction.
	_, err = reg.Enable(ctx, wantToken, "")
	require.ErrorIs(err, ErrInvalidToken)
	_, err = reg.Enable(ctx, "", "")
	require.ErrorIs(err, ErrInvalidToken)

	require.NoError(reg.Disable(ctx, sellToken))
	_, _, err = reg.GetAuction(sellToken)
	require.ErrorIs(err, ErrNotEnabled)
	require.ErrorIs(reg.Disable(ctx, sellToken), ErrNotEnabled)

	// Re-enabling starts from a clean record with a fresh receiver.
	_, err = reg.Enable(ctx, sellToken, "ops")
	require.NoError(err)
	rec, _, err = reg.GetAuction(sellToken)
	require.NoError(err)
	require.Equal("ops", rec.Receiver)
}

func TestEnableRejectsUnsupportedDecimals(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	ledger := token.NewLedger(log.NoLog)
	require.NoError(ledger.RegisterAsset(wantToken, 18))
	require.NoError(ledger.RegisterAsset("0xweird", 19))

	reg, err := New(testConfig(), ledger, log.NoLog)
	require.NoError(err)

	_, err = reg.Enable(ctx, "0xweird", "")
	require.ErrorIs(err, scale.ErrUnsupportedDecimals)
}

func TestKickLifecycle(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	reg, ledger := newTestRegistry(t, testConfig(), 18, 18, 1000)
	_, err := reg.Enable(ctx, sellToken, "")
	require.NoError(err)

	// Never kicked: the whole balance is kickable right away.
	kickable, err := reg.Kickable(ctx, sellToken, t0)
	require.NoError(err)
	require.True(kickable.Eq(rawUnits(1000, 18)))

	available, err := reg.Kick(ctx, sellToken, t0)
	require.NoError(err)
	require.True(available.Eq(rawUnits(1000, 18)))

	rec, st, err := reg.GetAuction(sellToken)
	require.NoError(err)
	require.Equal(t0, rec.KickedAt)
	require.True(rec.InitialAvailable.Eq(available))
	require.True(rec.CurrentAvailable.Eq(available))
	require.Equal(uint64(1), st.Kicks)
	require.Equal(t0, st.LastKickAt)

	// Inside the cooldown the auction reports nothing to kick.
	kickable, err = reg.Kickable(ctx, sellToken, t0+dayWindow)
	require.NoError(err)
	require.True(kickable.IsZero())
	_, err = reg.Kick(ctx, sellToken, t0+dayWindow)
	require.ErrorIs(err, ErrTooSoon)

	// Once the window lapses a fresh kick opens over the remainder.
	_, err = reg.Kick(ctx, sellToken, t0+dayWindow+1)
	require.NoError(err)

	_, err = reg.Kick(ctx, "0xnope", t0)
	require.ErrorIs(err, ErrNotEnabled)

	// Draining the inventory leaves nothing to kick.
	require.NoError(ledger.Burn(ctx, sellToken, reg.Account(), rawUnits(1000, 18)))
	_, err = reg.Kick(ctx, sellToken, t0+10*dayWindow)
	require.ErrorIs(err, ErrNothingToKick)
}

func TestKickHonorsExplicitCooldown(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	cfg := testConfig()
	cfg.HasCooldown = true
	cfg.AuctionCooldown = 2 * dayWindow

	reg, _ := newTestRegistry(t, cfg, 18, 18, 1000)
	_, err := reg.Enable(ctx, sellToken, "")
	require.NoError(err)

	_, err = reg.Kick(ctx, sellToken, t0)
	require.NoError(err)

	// Past the window but still inside the cooldown.
	_, err = reg.Kick(ctx, sellToken, t0+dayWindow+1)
	require.ErrorIs(err, ErrTooSoon)
	_, err = reg.Kick(ctx, sellToken, t0+2*dayWindow)
	require.ErrorIs(err, ErrTooSoon)

	_, err = reg.Kick(ctx, sellToken, t0+2*dayWindow+1)
	require.NoError(err)
}

func TestPriceCurve(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	reg, _ := newTestRegistry(t, testConfig(), 18, 18, 1000)
	_, err := reg.Enable(ctx, sellToken, "")
	require.NoError(err)

	// Unkicked records quote zero.
	price, err := reg.Price(sellToken, t0)
	require.NoError(err)
	require.True(price.IsZero())

	_, err = reg.Kick(ctx, sellToken, t0)
	require.NoError(err)

	// 1,000,000 settlement tokens spread over 1000 sold units.
	price, err = reg.Price(sellToken, t0)
	require.NoError(err)
	require.True(price.Eq(wadUnits(1000)), "got %s", price.Dec())

	// Exactly half after one hour.
	price, err = reg.Price(sellToken, t0+3600)
	require.NoError(err)
	require.True(price.Eq(wadUnits(500)), "got %s", price.Dec())

	// The window end is inclusive; one second past it quotes zero.
	price, err = reg.Price(sellToken, t0+dayWindow)
	require.NoError(err)
	require.False(price.IsZero())
	price, err = reg.Price(sellToken, t0+dayWindow+1)
	require.NoError(err)
	require.True(price.IsZero())

	_, err = reg.Price("0xnope", t0)
	require.ErrorIs(err, ErrNotEnabled)
}

func TestAmountNeeded(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	reg, _ := newTestRegistry(t, testConfig(), 18, 18, 1000)
	_, err := reg.Enable(ctx, sellToken, "")
	require.NoError(err)
	_, err = reg.Kick(ctx, sellToken, t0)
	require.NoError(err)

	// 600 units at 1000 want each.
	needed, err := reg.AmountNeeded(sellToken, rawUnits(600, 18), t0)
	require.NoError(err)
	require.True(needed.Eq(rawUnits(600_000, 18)), "got %s", needed.Dec())

	// Halved an hour in.
	needed, err = reg.AmountNeeded(sellToken, rawUnits(600, 18), t0+3600)
	require.NoError(err)
	require.True(needed.Eq(rawUnits(300_000, 18)), "got %s", needed.Dec())

	// Nil and post-window quotes are zero.
	needed, err = reg.AmountNeeded(sellToken, nil, t0)
	require.NoError(err)
	require.True(needed.IsZero())
	needed, err = reg.AmountNeeded(sellToken, rawUnits(600, 18), t0+dayWindow+1)
	require.NoError(err)
	require.True(needed.IsZero())
}

func TestSetters(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	reg, _ := newTestRegistry(t, testConfig(), 18, 18, 1000)
	_, err := reg.Enable(ctx, sellToken, "")
	require.NoError(err)
	_, err = reg.Kick(ctx, sellToken, t0)
	require.NoError(err)

	require.ErrorIs(reg.SetStartingPrice(nil), ErrInvalidConfiguration)
	require.ErrorIs(reg.SetStartingPrice(new(uint256.Int)), ErrInvalidConfiguration)

	// Doubling the lot price doubles live quotes.
	require.NoError(reg.SetStartingPrice(uint256.NewInt(2_000_000)))
	price, err := reg.Price(sellToken, t0)
	require.NoError(err)
	require.True(price.Eq(wadUnits(2000)), "got %s", price.Dec())

	require.ErrorIs(reg.SetAuctionLength(0), ErrInvalidConfiguration)
	require.NoError(reg.SetAuctionLength(dayWindow/2))
	require.Equal(dayWindow/2, reg.Config().AuctionLength)

	// Cooldown setters only apply to cooldown-enabled registries.
	require.ErrorIs(reg.SetAuctionCooldown(dayWindow), ErrInvalidConfiguration)

	cfg := testConfig()
	cfg.HasCooldown = true
	cfg.AuctionCooldown = 2 * dayWindow
	cooled, _ := newTestRegistry(t, cfg, 18, 18, 0)
	require.ErrorIs(cooled.SetAuctionCooldown(dayWindow), ErrInvalidConfiguration)
	require.NoError(cooled.SetAuctionCooldown(3*dayWindow))
	require.ErrorIs(cooled.SetAuctionLength(3*dayWindow), ErrInvalidConfiguration)
	require.NoError(cooled.SetAuctionLength(dayWindow))
}

func TestSweep(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	reg, ledger := newTestRegistry(t, testConfig(), 18, 18, 1000)
	_, err := reg.Enable(ctx, sellToken, "")
	require.NoError(err)

	// A stray token that was never enabled sweeps freely.
	require.NoError(ledger.RegisterAsset("0xstray", 18))
	require.NoError(ledger.Mint(ctx, "0xstray", reg.Account(), rawUnits(7, 18)))

	swept, err := reg.Sweep(ctx, "0xstray", t0)
	require.NoError(err)
	require.True(swept.Eq(rawUnits(7, 18)))
	bal, err := ledger.BalanceOf(ctx, "0xstray", treasury)
	require.NoError(err)
	require.True(bal.Eq(rawUnits(7, 18)))

	// Sweeping an empty balance is a no-op.
	swept, err = reg.Sweep(ctx, "0xstray", t0)
	require.NoError(err)
	require.True(swept.IsZero())

	// An enabled token with a live window cannot be swept out from
	// under its takers.
	_, err = reg.Kick(ctx, sellToken, t0)
	require.NoError(err)
	_, err = reg.Sweep(ctx, sellToken, t0+100)
	require.ErrorIs(err, ErrSweepActive)

	swept, err = reg.Sweep(ctx, sellToken, t0+dayWindow+1)
	require.NoError(err)
	require.True(swept.Eq(rawUnits(1000, 18)))
}

func TestRestore(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	reg, ledger := newTestRegistry(t, testConfig(), 18, 18, 1000)
	_, err := reg.Enable(ctx, sellToken, "")
	require.NoError(err)
	_, err = reg.Kick(ctx, sellToken, t0)
	require.NoError(err)
	_, err = reg.Take(ctx, sellToken, rawUnits(600, 18), takerAcct, "", t0)
	require.NoError(err)

	rec, st, err := reg.GetAuction(sellToken)
	require.NoError(err)

	// A fresh registry over the same ledger picks the window back up.
	revived, err := New(testConfig(), ledger, log.NoLog)
	require.NoError(err)
	require.NoError(revived.Restore(rec, st))

	got, gotStats, err := revived.GetAuction(sellToken)
	require.NoError(err)
	require.Equal(rec.ID, got.ID)
	require.Equal(rec.KickedAt, got.KickedAt)
	require.True(got.CurrentAvailable.Eq(rec.CurrentAvailable))
	require.Equal(st.Takes, gotStats.Takes)
	require.True(gotStats.TotalProceeds.Eq(st.TotalProceeds))

	price, err := revived.Price(sellToken, t0+3600)
	require.NoError(err)
	require.True(price.Eq(wadUnits(500)))

	require.ErrorIs(revived.Restore(rec, st), ErrAlreadyEnabled)

	_, err = revived.Take(ctx, sellToken, rawUnits(400, 18), takerAcct, "", t0+3600)
	require.NoError(err)
}

func TestLifecycleEvents(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	reg, _ := newTestRegistry(t, testConfig(), 18, 18, 1000)
	stream := events.NewStream(16)
	defer stream.Close()
	reg.SetStream(stream)

	_, ch := stream.Subscribe()

	id, err := reg.Enable(ctx, sellToken, "")
	require.NoError(err)
	_, err = reg.Kick(ctx, sellToken, t0)
	require.NoError(err)
	_, err = reg.Take(ctx, sellToken, rawUnits(600, 18), takerAcct, "", t0)
	require.NoError(err)
	require.NoError(reg.Disable(ctx, sellToken))

	enabled := (<-ch).(*events.Enabled)
	require.Equal(id, enabled.Auction())
	require.Equal(sellToken, enabled.FromToken)
	require.Equal(wantToken, enabled.ToToken)

	kicked := (<-ch).(*events.Kicked)
	require.Equal(rawUnits(1000, 18).Dec(), kicked.Available)
	require.Equal(t0, kicked.Timestamp)

	taken := (<-ch).(*events.Taken)
	require.Equal(takerAcct, taken.Taker)
	require.Equal(rawUnits(600, 18).Dec(), taken.AmountTaken)
	require.Equal(rawUnits(600_000, 18).Dec(), taken.AmountPaid)
	require.Equal(rawUnits(400, 18).Dec(), taken.Remaining)

	disabled := (<-ch).(*events.Disabled)
	require.Equal(sellToken, disabled.FromToken)
}

type recordingPersister struct {
	saves   []Record
	deletes []ids.ID
}

func (p *recordingPersister) SaveAuction(rec Record, st Stats) error {
	p.saves = append(p.saves, rec)
	return nil
}

func (p *recordingPersister) DeleteAuction(id ids.ID) error {
	p.deletes = append(p.deletes, id)
	return nil
}

func TestPersisterSeesEveryMutation(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	reg, _ := newTestRegistry(t, testConfig(), 18, 18, 1000)
	store := &recordingPersister{}
	reg.SetPersister(store)

	id, err := reg.Enable(ctx, sellToken, "")
	require.NoError(err)
	_, err = reg.Kick(ctx, sellToken, t0)
	require.NoError(err)
	_, err = reg.Take(ctx, sellToken, rawUnits(600, 18), takerAcct, "", t0)
	require.NoError(err)
	require.NoError(reg.Disable(ctx, sellToken))

	require.Len(store.saves, 3)
	require.True(store.saves[0].CurrentAvailable.IsZero())
	require.True(store.saves[1].CurrentAvailable.Eq(rawUnits(1000, 18)))
	require.True(store.saves[2].CurrentAvailable.Eq(rawUnits(400, 18)))
	require.Equal([]ids.ID{id}, store.deletes)
}
