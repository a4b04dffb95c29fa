package format

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseScaled converts a captured number and its magnitude suffix into a
// value. Thousands separators are ignored; unknown suffixes scale by 1.
func (d *Descriptor) ParseScaled(value, suffix string) (float64, error) {
	return parseScaled(value, d.Scale(suffix))
}

func parseScaled(value string, scale float64) (float64, error) {
	clean := strings.ReplaceAll(strings.TrimSpace(value), ",", "")
	clean = strings.TrimPrefix(clean, "$")
	if clean == "" {
		return 0, fmt.Errorf("empty number")
	}
	n, err := decimal.NewFromString(clean)
	if err != nil {
		return 0, fmt.Errorf("parse number %q: %w", value, err)
	}
	return n.Mul(decimal.NewFromFloat(scale)).InexactFloat64(), nil
}

// ScaleAmount is ParseScaled against the default K/M/B table
func ScaleAmount(value, suffix string) (float64, error) {
	scale := 1.0
	if v, ok := DefaultSuffixes[strings.ToUpper(suffix)]; ok {
		scale = v
	}
	return parseScaled(value, scale)
}

// ParseAmount parses text like "$1.5M" or "250K" using the default suffixes
func ParseAmount(text string) (float64, error) {
	s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), "$"))
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	scale := 1.0
	last := strings.ToUpper(s[len(s)-1:])
	if v, ok := DefaultSuffixes[last]; ok {
		scale = v
		s = s[:len(s)-1]
	}
	return parseScaled(s, scale)
}

// FormatCompact renders a value with the largest fitting K/M/B suffix
func FormatCompact(v float64) string {
	d := decimal.NewFromFloat(v)
	abs := d.Abs()
	for _, s := range []struct {
		suffix string
		scale  float64
	}{{"B", 1e9}, {"M", 1e6}, {"K", 1e3}} {
		sc := decimal.NewFromFloat(s.scale)
		if abs.GreaterThanOrEqual(sc) {
			return d.Div(sc).Round(6).String() + s.suffix
		}
	}
	return d.Round(6).String()
}
