package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Money represents a non-negative fixed-point amount with exactly two
// fractional digits, stored as an integer count of minor units (cents) to
// avoid floating-point drift in comparisons and arithmetic.
type Money int64

// MaxMoney is the largest representable amount: 10^12 - 0.01.
const MaxMoney Money = 1_000_000_000_000*100 - 1

// ParseMoney parses a decimal string such as "5000.00" or "5000" into Money.
// Rejects negative values, more than two fractional digits, and amounts
// exceeding MaxMoney.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("domain: empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("domain: amount must be non-negative: %q", s)
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	if hasFrac {
		if len(frac) > 2 {
			return 0, fmt.Errorf("domain: amount has more than two fractional digits: %q", s)
		}
		for len(frac) < 2 {
			frac += "0"
		}
	} else {
		frac = "00"
	}

	wholeUnits, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("domain: invalid amount %q: %w", s, err)
	}
	fracUnits, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("domain: invalid amount %q: %w", s, err)
	}

	m := Money(wholeUnits*100 + fracUnits)
	if m > MaxMoney {
		return 0, fmt.Errorf("domain: amount %q exceeds maximum", s)
	}
	return m, nil
}

// String renders Money as a decimal string with two fractional digits.
func (m Money) String() string {
	neg := ""
	v := int64(m)
	if v < 0 {
		neg = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", neg, v/100, v%100)
}

// MarshalJSON encodes Money as a JSON string, matching how the source
// credential formats amounts ("5000.00") rather than as a bare number.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON accepts either a JSON string or a bare JSON number.
func (m *Money) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m Money) Valid() bool {
	return m >= 0 && m <= MaxMoney
}
