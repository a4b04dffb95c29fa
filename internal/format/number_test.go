package format

import (
	"testing"
)

func TestParseScaled(t *testing.T) {
	d := &Descriptor{Suffixes: DefaultSuffixes}

	tests := []struct {
		value, suffix string
		want          float64
	}{
		{"100", "K", 100_000},
		{"1.5", "M", 1_500_000},
		{"2", "B", 2_000_000_000},
		{"0.00001", "", 0.00001},
		{"1,250", "", 1250},
		{"3", "x", 3}, // unknown suffix scales by 1
		{"45", "k", 45_000},
	}
	for _, tt := range tests {
		got, err := d.ParseScaled(tt.value, tt.suffix)
		if err != nil {
			t.Errorf("%s%s: unexpected error %v", tt.value, tt.suffix, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s%s: expected %v, got %v", tt.value, tt.suffix, tt.want, got)
		}
	}

	if _, err := d.ParseScaled("abc", "K"); err == nil {
		t.Error("expected error for non-numeric value")
	}
}

func TestSuffixRoundTrip(t *testing.T) {
	for _, text := range []string{"100K", "1.5M", "2.25B", "750", "12.5K"} {
		v, err := ParseAmount(text)
		if err != nil {
			t.Fatalf("%s: %v", text, err)
		}
		if got := FormatCompact(v); got != text {
			t.Errorf("round trip %s: got %s (value %v)", text, got, v)
		}
	}

	v, _ := ParseAmount("$100K")
	if v != 100_000 {
		t.Errorf("expected 100000, got %v", v)
	}
}
