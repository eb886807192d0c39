// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package decay computes the halving price curve for kicked auctions.
// The unit price halves once per hour, stepped per minute inside the
// hour, and is exact at every hour boundary because whole-hour decay
// is a plain right shift of RAY.
package decay

import (
	"github.com/holiman/uint256"

	"github.com/luxfi/dax/pkg/fixedpoint"
)

const (
	secondsPerHour   = 3600
	secondsPerMinute = 60

	// maxHalvings caps the hourly shift: RAY is below 2^90, so any
	// further shift is identically zero.
	maxHalvings = 90
)

// MinuteHalfLife is 0.5^(1/60) in RAY, the per-minute decay factor.
// Sixty applications land within truncation error of one halving.
var MinuteHalfLife = uint256.MustFromDecimal("988514020352896135356867505")

// UnitPrice returns the WAD price of one whole sell token at the given
// time. It is zero before the kick, after the window closes, and when
// the starting price itself is zero. The window end is inclusive:
// elapsed == windowLength still quotes.
func UnitPrice(kickedAt, windowLength, now uint64, startingUnitPrice *uint256.Int) (*uint256.Int, error) {
	if kickedAt == 0 || now < kickedAt || now-kickedAt > windowLength {
		return new(uint256.Int), nil
	}
	if startingUnitPrice == nil || startingUnitPrice.IsZero() {
		return new(uint256.Int), nil
	}

	elapsed := now - kickedAt
	hours := elapsed / secondsPerHour
	if hours >= maxHalvings {
		return new(uint256.Int), nil
	}

	hourFactor := new(uint256.Int).Rsh(fixedpoint.Ray, uint(hours))

	minutes := (elapsed % secondsPerHour) / secondsPerMinute
	minuteFactor, err := fixedpoint.RayPow(MinuteHalfLife, minutes)
	if err != nil {
		return nil, err
	}

	decayed, err := fixedpoint.RayMul(hourFactor, minuteFactor)
	if err != nil {
		return nil, err
	}

	return fixedpoint.WadMul(startingUnitPrice, fixedpoint.RayToWad(decayed))
}
