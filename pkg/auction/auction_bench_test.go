// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package auction

import (
	"context"
	"testing"

	"github.com/luxfi/dax/pkg/log"
	"github.com/luxfi/dax/pkg/token"
)

func benchRegistry(b *testing.B) *Registry {
	b.Helper()
	ctx := context.Background()

	ledger := token.NewLedger(log.NoLog)
	if err := ledger.RegisterAsset(wantToken, 18); err != nil {
		b.Fatal(err)
	}
	if err := ledger.RegisterAsset(sellToken, 18); err != nil {
		b.Fatal(err)
	}

	reg, err := New(testConfig(), ledger, log.NoLog)
	if err != nil {
		b.Fatal(err)
	}

	// A lot deep enough that benchmark iterations never drain it, and
	// a taker funded far past the total cost.
	if err := ledger.Mint(ctx, sellToken, reg.Account(), rawUnits(1_000_000_000, 18)); err != nil {
		b.Fatal(err)
	}
	if err := ledger.Mint(ctx, wantToken, takerAcct, rawUnits(1_000_000_000_000, 18)); err != nil {
		b.Fatal(err)
	}

	if _, err := reg.Enable(ctx, sellToken, ""); err != nil {
		b.Fatal(err)
	}
	if _, err := reg.Kick(ctx, sellToken, t0); err != nil {
		b.Fatal(err)
	}
	return reg
}

func BenchmarkPrice(b *testing.B) {
	reg := benchRegistry(b)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := reg.Price(sellToken, t0+uint64(i%86_400)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAmountNeeded(b *testing.B) {
	reg := benchRegistry(b)
	ask := rawUnits(600, 18)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := reg.AmountNeeded(sellToken, ask, t0+uint64(i%86_400)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkTake(b *testing.B) {
	ctx := context.Background()
	reg := benchRegistry(b)
	ask := rawUnits(1, 18)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := reg.Take(ctx, sellToken, ask, takerAcct, "", t0); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkKickable(b *testing.B) {
	ctx := context.Background()
	reg := benchRegistry(b)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := reg.Kickable(ctx, sellToken, t0+2*dayWindow); err != nil {
			b.Fatal(err)
		}
	}
}
