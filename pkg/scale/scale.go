// Package scale normalizes raw token amounts across decimal
// conventions. Everything inside the engine is WAD (18 decimals); raw
// amounts cross this package on the way in and out.
package scale

import (
	"errors"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/luxfi/dax/pkg/fixedpoint"
)

var (
	ErrUnsupportedDecimals = errors.New("unsupported token decimals")
	ErrNegativeValue       = errors.New("negative value")
)

// MaxDecimals is the largest decimal count the engine accepts.
const MaxDecimals = 18

var pow10 = [MaxDecimals + 1]uint64{
	1,
	10,
	100,
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
	100_000_000_000,
	1_000_000_000_000,
	10_000_000_000_000,
	100_000_000_000_000,
	1_000_000_000_000_000,
	10_000_000_000_000_000,
	100_000_000_000_000_000,
	1_000_000_000_000_000_000,
}

// ScalerFor returns the multiplier that lifts a raw amount of a token
// with the given decimal count to WAD: 10^(18-decimals).
func ScalerFor(decimals uint8) (*uint256.Int, error) {
	if decimals > MaxDecimals {
		return nil, ErrUnsupportedDecimals
	}
	return uint256.NewInt(pow10[MaxDecimals-decimals]), nil
}

// ToWad lifts a raw token amount to 18-decimal precision.
func ToWad(raw, scaler *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(raw, scaler)
	if overflow {
		return nil, fixedpoint.ErrArithmeticOverflow
	}
	return z, nil
}

// FromWad drops an 18-decimal amount back to raw token precision,
// truncating any residue below the token's smallest unit.
func FromWad(wad, scaler *uint256.Int) (*uint256.Int, error) {
	if scaler.IsZero() {
		return nil, fixedpoint.ErrDivisionByZero
	}
	return new(uint256.Int).Div(wad, scaler), nil
}

// DecimalToWad converts a human-denominated quantity to WAD. Digits
// past the 18th decimal place truncate.
func DecimalToWad(d decimal.Decimal) (*uint256.Int, error) {
	if d.IsNegative() {
		return nil, ErrNegativeValue
	}
	scaled := d.Shift(MaxDecimals).Truncate(0)
	z, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fixedpoint.ErrArithmeticOverflow
	}
	return z, nil
}

// WadToDecimal renders a WAD amount as a human decimal.
func WadToDecimal(wad *uint256.Int) decimal.Decimal {
	return decimal.NewFromBigInt(wad.ToBig(), -MaxDecimals)
}

// DecimalToRaw converts a human-denominated quantity to a raw amount
// of a token with the given scaler.
func DecimalToRaw(d decimal.Decimal, scaler *uint256.Int) (*uint256.Int, error) {
	wad, err := DecimalToWad(d)
	if err != nil {
		return nil, err
	}
	return FromWad(wad, scaler)
}

// RawToDecimal renders a raw token amount as a human decimal.
func RawToDecimal(raw, scaler *uint256.Int) (decimal.Decimal, error) {
	wad, err := ToWad(raw, scaler)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return WadToDecimal(wad), nil
}
