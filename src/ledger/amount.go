package ledger

import (
	"fmt"
	"math/big"
	"strings"
)

// MaxPrecision is the largest number of decimal places an asset may have.
const MaxPrecision = 18

// Amount is a non-negative fixed-point decimal: Value / 10^Precision. Values
// are never mutated in place, every operation returns a new Amount.
type Amount struct {
	value     *big.Int
	precision uint8
}

// ZeroAmount returns 0 with the given precision.
func ZeroAmount(precision uint8) Amount {
	return Amount{value: new(big.Int), precision: precision}
}

// ParseAmount parses a decimal string such as "20.00". The precision is the
// number of digits after the point.
func ParseAmount(s string) (Amount, error) {
	if s == "" {
		return Amount{}, fmt.Errorf("empty amount")
	}

	intPart, fracPart := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i+1:]
		if fracPart == "" {
			return Amount{}, fmt.Errorf("amount %q has a trailing point", s)
		}
	}

	if intPart == "" {
		return Amount{}, fmt.Errorf("amount %q has no integer part", s)
	}

	if len(fracPart) > MaxPrecision {
		return Amount{}, fmt.Errorf("amount %q has more than %d decimals", s, MaxPrecision)
	}

	for _, c := range intPart + fracPart {
		if c < '0' || c > '9' {
			return Amount{}, fmt.Errorf("amount %q is not a non-negative decimal", s)
		}
	}

	v, ok := new(big.Int).SetString(intPart+fracPart, 10)
	if !ok {
		return Amount{}, fmt.Errorf("invalid amount %q", s)
	}

	return Amount{value: v, precision: uint8(len(fracPart))}, nil
}

// Precision ...
func (a Amount) Precision() uint8 {
	return a.precision
}

// Sign returns -1, 0 or +1.
func (a Amount) Sign() int {
	if a.value == nil {
		return 0
	}
	return a.value.Sign()
}

// Rescale returns the same quantity with a higher precision. Lowering the
// precision would lose digits and is an error.
func (a Amount) Rescale(precision uint8) (Amount, error) {
	if a.precision > precision {
		return Amount{}, fmt.Errorf("amount %s has more than %d decimals", a, precision)
	}
	v := new(big.Int).Set(a.big())
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(precision-a.precision)), nil)
	v.Mul(v, scale)
	return Amount{value: v, precision: precision}, nil
}

// Add returns a+b. Both must have the same precision.
func (a Amount) Add(b Amount) (Amount, error) {
	if a.precision != b.precision {
		return Amount{}, fmt.Errorf("precision mismatch: %d and %d", a.precision, b.precision)
	}
	return Amount{value: new(big.Int).Add(a.big(), b.big()), precision: a.precision}, nil
}

// Sub returns a-b and fails if the result would be negative.
func (a Amount) Sub(b Amount) (Amount, error) {
	if a.precision != b.precision {
		return Amount{}, fmt.Errorf("precision mismatch: %d and %d", a.precision, b.precision)
	}
	v := new(big.Int).Sub(a.big(), b.big())
	if v.Sign() < 0 {
		return Amount{}, fmt.Errorf("insufficient amount: %s < %s", a, b)
	}
	return Amount{value: v, precision: a.precision}, nil
}

// Cmp compares two amounts of the same precision.
func (a Amount) Cmp(b Amount) int {
	return a.big().Cmp(b.big())
}

func (a Amount) big() *big.Int {
	if a.value == nil {
		return new(big.Int)
	}
	return a.value
}

// String prints the amount with exactly Precision decimals.
func (a Amount) String() string {
	digits := a.big().String()
	if a.precision == 0 {
		return digits
	}
	p := int(a.precision)
	if len(digits) <= p {
		digits = strings.Repeat("0", p-len(digits)+1) + digits
	}
	return digits[:len(digits)-p] + "." + digits[len(digits)-p:]
}
