// Package numeric decodes the compact numeric encodings found in fabric dumps
package numeric

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// maxExponent bounds decoded exponents; real dumps stay well below it
const maxExponent = 4096

var (
	ErrNegativeExponent = errors.New("negative BER exponent")
	ErrExponentRange    = errors.New("BER exponent out of range")
)

// BER is a bit error rate stored as mantissa × 10^-exponent.
// Keeping the pair avoids underflow for rates far below float64 range.
type BER struct {
	Mantissa uint64
	Exponent int
}

// NewBER validates a raw mantissa/exponent pair
func NewBER(mantissa uint64, exponent int64) (BER, error) {
	if exponent < 0 {
		return BER{}, fmt.Errorf("%w: %d", ErrNegativeExponent, exponent)
	}
	if exponent > maxExponent {
		return BER{}, fmt.Errorf("%w: %d", ErrExponentRange, exponent)
	}
	return BER{Mantissa: mantissa, Exponent: int(exponent)}, nil
}

// IsZero reports a rate of exactly zero
func (b BER) IsZero() bool {
	return b.Mantissa == 0
}

// Magnitude is the raw exponent: larger means a healthier link
func (b BER) Magnitude() int {
	return b.Exponent
}

// Log10 returns log10 of the rate, or -Inf for a zero rate
func (b BER) Log10() float64 {
	if b.IsZero() {
		return math.Inf(-1)
	}
	return math.Log10(float64(b.Mantissa)) - float64(b.Exponent)
}

// String renders scientific notation with a single leading digit,
// e.g. mantissa 15, exponent 254 -> "1.5e-253"
func (b BER) String() string {
	if b.IsZero() {
		return "0"
	}
	digits := strconv.FormatUint(b.Mantissa, 10)
	k := len(digits) - 1

	var sb strings.Builder
	sb.WriteByte(digits[0])
	if frac := strings.TrimRight(digits[1:], "0"); frac != "" {
		sb.WriteByte('.')
		sb.WriteString(frac)
	}
	sb.WriteByte('e')
	sb.WriteString(strconv.Itoa(k - b.Exponent))
	return sb.String()
}

// ParseBER parses the notation produced by String (and plain decimals)
// back into an exact mantissa/exponent pair.
func ParseBER(s string) (BER, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return BER{}, errors.New("empty BER")
	}

	coef, exp10 := s, 0
	if idx := strings.IndexAny(s, "eE"); idx >= 0 {
		coef = s[:idx]
		n, err := strconv.Atoi(s[idx+1:])
		if err != nil {
			return BER{}, fmt.Errorf("parse BER exponent %q: %w", s, err)
		}
		exp10 = n
	}

	intPart, fracPart, _ := strings.Cut(coef, ".")
	digits := strings.TrimLeft(intPart+fracPart, "0")
	exp10 -= len(fracPart)
	if digits == "" {
		return BER{}, nil
	}
	if exp10 > 0 {
		digits += strings.Repeat("0", exp10)
		exp10 = 0
	}

	m, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return BER{}, fmt.Errorf("parse BER mantissa %q: %w", s, err)
	}
	return NewBER(m, int64(-exp10))
}

// Compare orders two rates exactly: -1 if b < o, 0 if equal, +1 if b > o
func (b BER) Compare(o BER) int {
	hi := b.Exponent
	if o.Exponent > hi {
		hi = o.Exponent
	}
	// scale both to mantissa × 10^-hi
	x := scaled(b.Mantissa, hi-b.Exponent)
	y := scaled(o.Mantissa, hi-o.Exponent)
	return x.Cmp(y)
}

func scaled(m uint64, pow int) *big.Int {
	v := new(big.Int).SetUint64(m)
	if pow == 0 || m == 0 {
		return v
	}
	p := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(pow)), nil)
	return v.Mul(v, p)
}

// Rating is the health verdict for a BER reading
type Rating string

const (
	RatingHealthy  Rating = "healthy"
	RatingCritical Rating = "critical"
)

// Classify rates a BER reading. A magnitude below threshold is critical
// only when the port also reports at least minEvents error events;
// a magnitude equal to the threshold is healthy.
func Classify(b BER, errorEvents uint64, threshold int, minEvents uint64) Rating {
	if b.IsZero() {
		return RatingHealthy
	}
	if b.Magnitude() < threshold && errorEvents >= minEvents {
		return RatingCritical
	}
	return RatingHealthy
}

// Ordered reports whether raw >= effective >= symbol holds among the
// readings that are present.
func Ordered(raw, effective, symbol *BER) bool {
	chain := make([]BER, 0, 3)
	for _, b := range []*BER{raw, effective, symbol} {
		if b != nil {
			chain = append(chain, *b)
		}
	}
	for i := 1; i < len(chain); i++ {
		if chain[i-1].Compare(chain[i]) < 0 {
			return false
		}
	}
	return true
}
