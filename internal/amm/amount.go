package amm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// ParseAmount parses a base-10 token amount.
func ParseAmount(value string) (*uint256.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return new(uint256.Int), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", value)
	}
	if parsed.Sign() < 0 {
		return nil, fmt.Errorf("negative amount: %s", value)
	}
	out, overflow := uint256.FromBig(parsed)
	if overflow {
		return nil, fmt.Errorf("amount overflows uint256: %s", value)
	}
	return out, nil
}

// MustAmount parses a literal amount and panics on malformed input.
func MustAmount(value string) *uint256.Int {
	out, err := ParseAmount(value)
	if err != nil {
		panic(err)
	}
	return out
}

// FormatAmount renders an amount in base 10; nil renders as "0".
func FormatAmount(value *uint256.Int) string {
	if value == nil {
		return "0"
	}
	return value.ToBig().String()
}

// Zero reports whether value is nil or zero.
func Zero(value *uint256.Int) bool {
	return value == nil || value.IsZero()
}

// Clone returns a copy of value, treating nil as zero.
func Clone(value *uint256.Int) *uint256.Int {
	if value == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(value)
}

// MulDiv returns floor(x*y/d) computed at full precision.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if Zero(d) {
		return nil, fmt.Errorf("%w: division by zero", ErrInvalidInput)
	}
	num := new(big.Int).Mul(x.ToBig(), y.ToBig())
	num.Quo(num, d.ToBig())
	return narrow(num)
}

// SqrtMul returns floor(sqrt(x*y)) computed at full precision.
func SqrtMul(x, y *uint256.Int) (*uint256.Int, error) {
	prod := new(big.Int).Mul(x.ToBig(), y.ToBig())
	return narrow(prod.Sqrt(prod))
}

// Product returns x*y without truncation.
func Product(x, y *uint256.Int) *big.Int {
	return new(big.Int).Mul(x.ToBig(), y.ToBig())
}

// CheckedAdd returns x+y or an error if the sum overflows 256 bits.
func CheckedAdd(x, y *uint256.Int) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, fmt.Errorf("%w: amount overflow", ErrInvalidInput)
	}
	return sum, nil
}

func narrow(value *big.Int) (*uint256.Int, error) {
	out, overflow := uint256.FromBig(value)
	if overflow {
		return nil, fmt.Errorf("%w: amount overflow", ErrInvalidInput)
	}
	return out, nil
}
