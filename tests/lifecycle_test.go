// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tests

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/dax/pkg/auction"
	"github.com/luxfi/dax/pkg/events"
	"github.com/luxfi/dax/pkg/log"
	"github.com/luxfi/dax/pkg/metric"
	"github.com/luxfi/dax/pkg/store"
	"github.com/luxfi/dax/pkg/token"
)

func units(n uint64, decimals uint8) *uint256.Int {
	z := uint256.NewInt(n)
	ten := uint256.NewInt(10)
	for i := uint8(0); i < decimals; i++ {
		z.Mul(z, ten)
	}
	return z
}

// TestFullLifecycle drives the engine end to end: fund, enable, kick,
// settle, persist, restore, sweep.
func TestFullLifecycle(t *testing.T) {
	logger := log.NoOp()
	ctx := context.Background()

	const (
		t0     = uint64(1_700_000_000)
		window = uint64(86_400)
	)

	// 1. Initialize core components
	t.Log("=== Phase 1: Initialize Components ===")

	ledger := token.NewLedger(logger)
	require.NotNil(t, ledger)

	st := store.NewMemory()
	require.NotNil(t, st)

	stream := events.NewStream(events.DefaultBuffer)
	_, feed := stream.Subscribe()

	metrics, err := metric.NewMetrics()
	require.NoError(t, err)

	require.NoError(t, ledger.RegisterAsset("0xusd", 18))
	require.NoError(t, ledger.RegisterAsset("0xabc", 18))
	require.NoError(t, ledger.RegisterAsset("0xbtc", 8))

	cfg := auction.Config{
		Name:          "dax-lifecycle",
		WantToken:     "0xusd",
		Receiver:      "treasury",
		StartingPrice: uint256.NewInt(1_000_000), // 1M want per full lot
		AuctionLength: window,
	}

	registry, err := auction.New(cfg, ledger, logger)
	require.NoError(t, err)

	registry.SetStream(stream)
	registry.SetPersister(st)
	registry.SetMetrics(metrics)

	// 2. Fund the ledger
	t.Log("=== Phase 2: Fund the Ledger ===")

	require.NoError(t, ledger.Mint(ctx, "0xabc", registry.Account(), units(1000, 18)))
	require.NoError(t, ledger.Mint(ctx, "0xbtc", registry.Account(), units(50, 8)))
	require.NoError(t, ledger.Mint(ctx, "0xusd", "taker-1", units(5_000_000, 18)))
	require.NoError(t, ledger.Mint(ctx, "0xusd", "taker-2", units(5_000_000, 18)))

	// 3. Enable auctions
	t.Log("=== Phase 3: Enable Auctions ===")

	idABC, err := registry.Enable(ctx, "0xabc", "")
	require.NoError(t, err)
	require.False(t, idABC.IsEmpty())

	_, err = registry.Enable(ctx, "0xbtc", "ops")
	require.NoError(t, err)
	require.Equal(t, 2, registry.Len())

	// 4. Kick the first auction and quote it
	t.Log("=== Phase 4: Kick and Quote ===")

	available, err := registry.Kick(ctx, "0xabc", t0)
	require.NoError(t, err)
	require.Equal(t, units(1000, 18), available)
	require.Equal(t, 1, registry.OpenWindows(t0))

	// 1M want over a 1000 unit lot opens at 1000 per unit.
	price, err := registry.Price("0xabc", t0)
	require.NoError(t, err)
	require.Equal(t, units(1000, 18), price)

	// One hour in, the quote has halved.
	halved, err := registry.Price("0xabc", t0+3600)
	require.NoError(t, err)
	require.Equal(t, units(500, 18), halved)

	needed, err := registry.AmountNeeded("0xabc", units(600, 18), t0)
	require.NoError(t, err)
	require.Equal(t, units(600_000, 18), needed)

	// 5. Settle takes from two takers
	t.Log("=== Phase 5: Settle Takes ===")

	taken, err := registry.Take(ctx, "0xabc", units(600, 18), "taker-1", "", t0)
	require.NoError(t, err)
	require.Equal(t, units(600, 18), taken)

	// Second taker asks for more than remains and gets the remainder.
	taken, err = registry.Take(ctx, "0xabc", units(1000, 18), "taker-2", "", t0)
	require.NoError(t, err)
	require.Equal(t, units(400, 18), taken)

	bal, err := ledger.BalanceOf(ctx, "0xabc", "taker-1")
	require.NoError(t, err)
	require.Equal(t, units(600, 18), bal)

	bal, err = ledger.BalanceOf(ctx, "0xusd", "taker-1")
	require.NoError(t, err)
	require.Equal(t, units(4_400_000, 18), bal)

	bal, err = ledger.BalanceOf(ctx, "0xabc", "taker-2")
	require.NoError(t, err)
	require.Equal(t, units(400, 18), bal)

	bal, err = ledger.BalanceOf(ctx, "0xusd", "treasury")
	require.NoError(t, err)
	require.Equal(t, units(1_000_000, 18), bal)

	rec, stats, err := registry.GetAuction("0xabc")
	require.NoError(t, err)
	require.True(t, rec.CurrentAvailable.IsZero())
	require.Equal(t, uint64(2), stats.Takes)
	require.Equal(t, units(1000, 18), stats.TotalSold)
	require.Equal(t, units(1_000_000, 18), stats.TotalProceeds)

	// 6. Drained and expired windows reject takes
	t.Log("=== Phase 6: Window Expiry ===")

	_, err = registry.Take(ctx, "0xabc", units(1, 18), "taker-1", "", t0)
	require.ErrorIs(t, err, auction.ErrZeroNeeded)

	_, err = registry.Kick(ctx, "0xbtc", t0)
	require.NoError(t, err)

	_, err = registry.Take(ctx, "0xbtc", units(10, 8), "taker-1", "", t0+window+1)
	require.ErrorIs(t, err, auction.ErrWindowExpired)

	expired, err := registry.Price("0xbtc", t0+window+1)
	require.NoError(t, err)
	require.True(t, expired.IsZero())

	// 7. Restore a fresh registry from the store
	t.Log("=== Phase 7: Persist and Restore ===")

	entries, err := st.LoadAuctions()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	restored, err := auction.New(cfg, ledger, logger)
	require.NoError(t, err)
	for _, e := range entries {
		require.NoError(t, restored.Restore(e.Record, e.Stats))
	}

	rec2, stats2, err := restored.GetAuction("0xabc")
	require.NoError(t, err)
	require.Equal(t, rec.ID, rec2.ID)
	require.Equal(t, t0, rec2.KickedAt)
	require.True(t, rec2.CurrentAvailable.IsZero())
	require.Equal(t, stats.Takes, stats2.Takes)

	// The restored registry quotes the same curve.
	price2, err := restored.Price("0xabc", t0+3600)
	require.NoError(t, err)
	require.Equal(t, halved, price2)

	// 8. Sweep strays and disable
	t.Log("=== Phase 8: Sweep and Disable ===")

	require.NoError(t, ledger.Mint(ctx, "0xabc", registry.Account(), units(100, 18)))

	swept, err := registry.Sweep(ctx, "0xabc", t0+window+1)
	require.NoError(t, err)
	require.Equal(t, units(100, 18), swept)

	bal, err = ledger.BalanceOf(ctx, "0xabc", "treasury")
	require.NoError(t, err)
	require.Equal(t, units(100, 18), bal)

	require.NoError(t, registry.Disable(ctx, "0xabc"))
	require.Equal(t, 1, registry.Len())

	entries, err = st.LoadAuctions()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "0xbtc", entries[0].Record.From.Address)

	// 9. The stream saw every lifecycle transition in order
	t.Log("=== Phase 9: Verify Event Stream ===")

	var kinds []events.Type
	for {
		select {
		case e := <-feed:
			kinds = append(kinds, e.Kind())
			continue
		default:
		}
		break
	}
	require.Equal(t, []events.Type{
		events.TypeEnabled,
		events.TypeEnabled,
		events.TypeKicked,
		events.TypeTaken,
		events.TypeTaken,
		events.TypeKicked,
		events.TypeSwept,
		events.TypeDisabled,
	}, kinds)
}
