// Package numfmt converts heterogeneous numeric and currency representations
// into canonical numbers or display strings. Upstream payloads mix native
// numbers with strings like "$1,234,567.89" and "1.234.567,89"; everything
// here is pure and deterministic.
package numfmt

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// ParseNumeric converts a raw value into a float64. It accepts native
// numbers as-is and strings containing digits plus comma/period separators in
// either thousands/decimal role. When both separators appear, the one
// occurring later in the string is the decimal separator; extra decimal
// occurrences after substitution are collapsed into the fraction rather than
// treated as a parse error. The second return is false when the value is not
// numeric.
func ParseNumeric(v any) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		return parseNumericString(n)
	default:
		return 0, false
	}
}

func parseNumericString(raw string) (float64, bool) {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9',
			r == '.', r == ',', r == '-', r == '+', r == 'e', r == 'E':
			b.WriteRune(r)
		}
	}
	s := b.String()
	if s == "" {
		return 0, false
	}

	if !strings.ContainsAny(s, ".,") {
		return parseFloat(s)
	}

	// The separator appearing later in the string is the decimal one.
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	decimal, thousands := ",", "."
	if lastDot > lastComma {
		decimal, thousands = ".", ","
	}

	s = strings.ReplaceAll(s, thousands, "")
	s = strings.Replace(s, decimal, ".", 1)

	// Extra occurrences of the decimal separator are collapsed into the
	// fraction: "1.234.567" parses as 1.234567.
	if parts := strings.Split(s, "."); len(parts) > 2 {
		s = parts[0] + "." + strings.Join(parts[1:], "")
	}

	return parseFloat(s)
}

func parseFloat(s string) (float64, bool) {
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// FormatMoney renders a raw value as "$" plus a thousands-grouped number with
// at most three fraction digits, or "-" when the value is not numeric.
// This is the display form for volume and market cap columns.
func FormatMoney(v any) string {
	n, ok := ParseNumeric(v)
	if !ok {
		return "-"
	}
	return "$" + groupedString(n, 3)
}

// FormatExactCurrency renders "$" plus the shortest exact decimal form of the
// value ("$0.01", not "$0.0100"), or "-" when not numeric.
func FormatExactCurrency(v any) string {
	n, ok := ParseNumeric(v)
	if !ok {
		return "-"
	}
	return "$" + strconv.FormatFloat(n, 'f', -1, 64)
}

// FormatCompactCurrency renders sub-unit magnitudes with fixed decimals
// (six below 0.01, four below 1) and everything else in compact K/M/B/T
// notation with one or two fraction digits depending on magnitude.
func FormatCompactCurrency(v any) string {
	n, ok := ParseNumeric(v)
	if !ok {
		return "-"
	}

	abs := math.Abs(n)
	if abs < 1 {
		digits := 4
		if abs < 0.01 {
			digits = 6
		}
		return "$" + strconv.FormatFloat(n, 'f', digits, 64)
	}

	maxFrac := 1
	if abs < 100 {
		maxFrac = 2
	}

	scaled, suffix := n, ""
	switch {
	case abs >= 1e12:
		scaled, suffix = n/1e12, "T"
	case abs >= 1e9:
		scaled, suffix = n/1e9, "B"
	case abs >= 1e6:
		scaled, suffix = n/1e6, "M"
	case abs >= 1e3:
		scaled, suffix = n/1e3, "K"
	}

	s := strconv.FormatFloat(scaled, 'f', maxFrac, 64)
	s = trimFraction(s)
	return "$" + s + suffix
}

// FormatPrice renders a price with tiered fixed decimals: six below 0.01,
// four below 1, two otherwise. Exact zero is "$0" and non-numeric input "-".
func FormatPrice(v any) string {
	n, ok := ParseNumeric(v)
	if !ok {
		return "-"
	}
	switch {
	case n == 0:
		return "$0"
	case n < 0.01:
		return "$" + strconv.FormatFloat(n, 'f', 6, 64)
	case n < 1:
		return "$" + strconv.FormatFloat(n, 'f', 4, 64)
	default:
		return "$" + strconv.FormatFloat(n, 'f', 2, 64)
	}
}

// FormatLocalTime renders a Unix-millisecond timestamp as a localized
// display string.
func FormatLocalTime(ms int64) string {
	return time.UnixMilli(ms).Local().Format("1/2/2006, 3:04:05 PM")
}

// groupedString formats n with comma-grouped integer digits and at most
// maxFrac fraction digits, trailing zeros trimmed.
func groupedString(n float64, maxFrac int) string {
	s := strconv.FormatFloat(n, 'f', maxFrac, 64)
	s = trimFraction(s)

	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	intPart, fracPart, hasFrac := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, d := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(fracPart)
	}
	return b.String()
}

// trimFraction drops trailing zeros and a dangling decimal point.
func trimFraction(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
