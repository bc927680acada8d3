// Package amount provides an arbitrary-precision unsigned integer amount in
// minor units. All money and voting-power values in the engine use this type;
// floating point is never involved.
package amount

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	// ErrNegative is returned when an arithmetic result would be negative.
	// Negative ledger amounts indicate corruption and are treated as fatal
	// by callers, with the single documented exception of the unstake clamp.
	ErrNegative = errors.New("amount: negative result")

	// ErrDivByZero is returned by MulDiv when the denominator is zero.
	ErrDivByZero = errors.New("amount: division by zero")

	// ErrInvalid is returned when parsing a malformed amount string.
	ErrInvalid = errors.New("amount: invalid value")
)

// Amount is an immutable non-negative arbitrary-precision integer.
// The zero value is usable and equal to Zero().
type Amount struct {
	i *big.Int
}

// Zero returns the zero amount.
func Zero() Amount {
	return Amount{}
}

// New creates an Amount from a uint64.
func New(v uint64) Amount {
	return Amount{i: new(big.Int).SetUint64(v)}
}

// Parse parses a base-10 unsigned integer string. Signs, fractions and
// whitespace are rejected.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("%w: empty string", ErrInvalid)
	}
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return Amount{}, fmt.Errorf("%w: signed value %q", ErrInvalid, s)
	}
	i, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	return Amount{i: i}, nil
}

// MustParse parses s and panics on error. Intended for constants and tests.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) val() *big.Int {
	if a.i == nil {
		return new(big.Int)
	}
	return a.i
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{i: new(big.Int).Add(a.val(), b.val())}
}

// Sub returns a - b, or ErrNegative if b > a.
func (a Amount) Sub(b Amount) (Amount, error) {
	r := new(big.Int).Sub(a.val(), b.val())
	if r.Sign() < 0 {
		return Amount{}, fmt.Errorf("%w: %s - %s", ErrNegative, a, b)
	}
	return Amount{i: r}, nil
}

// SubClamped returns max(a-b, 0) and whether clamping occurred. This is the
// documented unstake clamp; every other negative result must be an error.
func (a Amount) SubClamped(b Amount) (Amount, bool) {
	r := new(big.Int).Sub(a.val(), b.val())
	if r.Sign() < 0 {
		return Zero(), true
	}
	return Amount{i: r}, false
}

// MulDiv returns floor(a × num / den). The remainder is discarded; the caller
// owns the rounding-down policy.
func (a Amount) MulDiv(num, den Amount) (Amount, error) {
	if den.IsZero() {
		return Amount{}, ErrDivByZero
	}
	r := new(big.Int).Mul(a.val(), num.val())
	r.Quo(r, den.val())
	return Amount{i: r}, nil
}

// Cmp compares a and b, returning -1, 0 or 1.
func (a Amount) Cmp(b Amount) int {
	return a.val().Cmp(b.val())
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool {
	return a.val().Sign() == 0
}

// BigInt returns a copy of the underlying integer.
func (a Amount) BigInt() *big.Int {
	return new(big.Int).Set(a.val())
}

func (a Amount) String() string {
	return a.val().String()
}

// MarshalJSON encodes the amount as a JSON string to avoid precision loss
// in JavaScript consumers.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts a quoted or bare base-10 integer.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value implements driver.Valuer; amounts are stored as numeric(78,0).
func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

// Scan implements sql.Scanner for numeric columns.
func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = Zero()
		return nil
	case int64:
		if v < 0 {
			return fmt.Errorf("%w: %d", ErrNegative, v)
		}
		*a = New(uint64(v))
		return nil
	case string:
		parsed, err := Parse(v)
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	case []byte:
		parsed, err := Parse(string(v))
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	default:
		return fmt.Errorf("%w: unsupported scan type %T", ErrInvalid, src)
	}
}

// Sum returns the sum of all amounts.
func Sum(amounts ...Amount) Amount {
	total := new(big.Int)
	for _, a := range amounts {
		total.Add(total, a.val())
	}
	return Amount{i: total}
}
