// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fixedpoint implements the WAD/RAY fixed-point arithmetic the
// auction engine prices with. WAD values carry 18 decimals, RAY values
// 27. All operations truncate toward zero and every product runs
// through a 512-bit intermediate, so precision is only lost at the
// final division.
package fixedpoint

import (
	"errors"

	"github.com/holiman/uint256"
)

var (
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
	ErrDivisionByZero     = errors.New("division by zero")
)

var (
	// Wad is one in 18-decimal fixed point.
	Wad = uint256.NewInt(1_000_000_000_000_000_000)

	// Ray is one in 27-decimal fixed point.
	Ray = uint256.MustFromDecimal("1000000000000000000000000000")

	// rayWad is the RAY/WAD scale gap.
	rayWad = uint256.NewInt(1_000_000_000)
)

// WadMul returns a*b/1e18, truncating toward zero.
func WadMul(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulDivOverflow(a, b, Wad)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return z, nil
}

// WadDiv returns a*1e18/b, truncating toward zero.
func WadDiv(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrDivisionByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(a, Wad, b)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return z, nil
}

// RayMul returns a*b/1e27, truncating toward zero.
func RayMul(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulDivOverflow(a, b, Ray)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return z, nil
}

// RayPow raises a RAY-scaled base to an integer power by repeated
// squaring. RayPow(x, 0) is Ray for any x.
func RayPow(base *uint256.Int, exp uint64) (*uint256.Int, error) {
	result := new(uint256.Int).Set(Ray)
	b := new(uint256.Int).Set(base)

	for exp > 0 {
		if exp&1 == 1 {
			r, err := RayMul(result, b)
			if err != nil {
				return nil, err
			}
			result = r
		}
		exp >>= 1
		if exp > 0 {
			sq, err := RayMul(b, b)
			if err != nil {
				return nil, err
			}
			b = sq
		}
	}
	return result, nil
}

// RayToWad drops a RAY value down to WAD scale, truncating.
func RayToWad(x *uint256.Int) *uint256.Int {
	return new(uint256.Int).Div(x, rayWad)
}

// Min returns a copy of the smaller of a and b.
func Min(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return a.Clone()
	}
	return b.Clone()
}
