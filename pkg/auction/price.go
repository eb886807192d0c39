// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package auction

import (
	"github.com/holiman/uint256"

	"github.com/luxfi/dax/pkg/decay"
	"github.com/luxfi/dax/pkg/fixedpoint"
	"github.com/luxfi/dax/pkg/scale"
)

// Price quotes the WAD unit price of a sell token at a timestamp.
// Zero means there is nothing to quote: never kicked, empty lot, or
// the window has closed.
func (r *Registry) Price(fromToken string, at uint64) (*uint256.Int, error) {
	rc, cfg, err := r.find(fromToken)
	if err != nil {
		return nil, err
	}

	rc.mu.RLock()
	gone := rc.gone
	kickedAt := rc.rec.KickedAt
	initial := cloneOrZero(rc.rec.InitialAvailable)
	fromScaler := rc.rec.From.Scaler
	rc.mu.RUnlock()
	if gone {
		return nil, ErrNotEnabled
	}

	return unitPriceAt(cfg, kickedAt, initial, fromScaler, at)
}

// AmountNeeded quotes the raw settlement amount a taker pays for the
// given raw sell amount at a timestamp.
func (r *Registry) AmountNeeded(fromToken string, amount *uint256.Int, at uint64) (*uint256.Int, error) {
	rc, cfg, err := r.find(fromToken)
	if err != nil {
		return nil, err
	}
	if amount == nil {
		return new(uint256.Int), nil
	}

	rc.mu.RLock()
	gone := rc.gone
	kickedAt := rc.rec.KickedAt
	initial := cloneOrZero(rc.rec.InitialAvailable)
	fromScaler := rc.rec.From.Scaler
	toScaler := rc.rec.To.Scaler
	rc.mu.RUnlock()
	if gone {
		return nil, ErrNotEnabled
	}

	unit, err := unitPriceAt(cfg, kickedAt, initial, fromScaler, at)
	if err != nil {
		return nil, err
	}
	return amountNeeded(amount, unit, fromScaler, toScaler)
}

// unitPriceAt anchors the decay curve to the kicked lot.
func unitPriceAt(cfg Config, kickedAt uint64, initial, fromScaler *uint256.Int, at uint64) (*uint256.Int, error) {
	start, err := startingUnitPrice(cfg.StartingPrice, initial, fromScaler)
	if err != nil {
		return nil, err
	}
	return decay.UnitPrice(kickedAt, cfg.AuctionLength, at, start)
}

// startingUnitPrice spreads the whole-lot starting price over the
// kicked amount: lots kick at StartingPrice settlement tokens no
// matter their size, so the per-unit quote scales inversely with it.
func startingUnitPrice(lotPrice, initialAvailable, fromScaler *uint256.Int) (*uint256.Int, error) {
	if initialAvailable == nil || initialAvailable.IsZero() {
		return new(uint256.Int), nil
	}
	availableWad, err := scale.ToWad(initialAvailable, fromScaler)
	if err != nil {
		return nil, err
	}
	lotWad, overflow := new(uint256.Int).MulOverflow(lotPrice, fixedpoint.Wad)
	if overflow {
		return nil, fixedpoint.ErrArithmeticOverflow
	}
	return fixedpoint.WadDiv(lotWad, availableWad)
}

// amountNeeded converts a raw sell amount into raw settlement tokens
// at a WAD unit price, truncating at the settlement token's precision.
func amountNeeded(amount, unitPrice, fromScaler, toScaler *uint256.Int) (*uint256.Int, error) {
	amountWad, err := scale.ToWad(amount, fromScaler)
	if err != nil {
		return nil, err
	}
	neededWad, err := fixedpoint.WadMul(amountWad, unitPrice)
	if err != nil {
		return nil, err
	}
	return scale.FromWad(neededWad, toScaler)
}
