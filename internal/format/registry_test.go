package format

import (
	"testing"
)

func TestResolveFallsBackToStandard(t *testing.T) {
	r := NewRegistry()

	if d := r.Resolve(-100123); d.Name != Standard {
		t.Errorf("unassigned channel: expected %s, got %s", Standard, d.Name)
	}

	r.Assign(-100123, Compact)
	if d := r.Resolve(-100123); d.Name != Compact {
		t.Errorf("assigned channel: expected %s, got %s", Compact, d.Name)
	}

	// Assignment to an unknown layout uses the default
	r.Assign(-100999, "does-not-exist")
	if d := r.Resolve(-100999); d.Name != Standard {
		t.Errorf("unknown assignment: expected %s, got %s", Standard, d.Name)
	}

	// Unknown default still resolves
	r.SetDefault("missing")
	if d := r.Resolve(42); d == nil || d.Name != Standard {
		t.Errorf("unknown default: expected %s, got %v", Standard, d)
	}

	r.SetDefault(List)
	if d := r.Resolve(42); d.Name != List {
		t.Errorf("default: expected %s, got %s", List, d.Name)
	}
}

func TestCompileSpec(t *testing.T) {
	d, err := Compile(Spec{
		Name:       "pinger",
		Patterns:   map[string]string{"market_cap": `MCAP\s+([\d.]+)([KMB]?)`},
		OracleName: true,
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !d.OracleName {
		t.Error("expected oracle name flag")
	}
	rule, ok := d.Rule(FieldMarketCap)
	if !ok {
		t.Fatal("expected market cap rule")
	}
	v, suf, ok := rule.Match("MCAP 2.5M")
	if !ok || v != "2.5" || suf != "M" {
		t.Errorf("unexpected match: %q %q %v", v, suf, ok)
	}

	if _, err := Compile(Spec{Name: "bad", Patterns: map[string]string{"price": "("}}); err == nil {
		t.Error("expected error for invalid pattern")
	}
	if _, err := Compile(Spec{}); err == nil {
		t.Error("expected error for empty name")
	}
}

func TestBuiltinStandardRules(t *testing.T) {
	msg := `🚀 MOON CAT
Chain: Solana
Price: $0.00001
Market Cap: $100K
Liquidity: $50K
Volume 24h: $25K
Bundles: 5 (10%)
Snipers: 3 (5%)
Dev: 0%
Confidence: 85%
Contract: 7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU`

	d, _ := NewRegistry().Get(Standard)
	want := map[Field]string{
		FieldTokenName:  "MOON CAT",
		FieldChain:      "Solana",
		FieldPrice:      "0.00001",
		FieldMarketCap:  "100",
		FieldLiquidity:  "50",
		FieldVolume24h:  "25",
		FieldBundlesPct: "10",
		FieldSnipersPct: "5",
		FieldDevPct:     "0",
		FieldConfidence: "85",
		FieldAddress:    "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU",
	}
	for f, expected := range want {
		rule, ok := d.Rule(f)
		if !ok {
			t.Errorf("%s: no rule", f)
			continue
		}
		got, _, ok := rule.Match(msg)
		if !ok || got != expected {
			t.Errorf("%s: expected %q, got %q", f, expected, got)
		}
	}
}

func TestBuiltinCompactChain(t *testing.T) {
	msg := "💎 PEPE KING | SOL\n💵 $0.0002 | MC: $1.2M | LIQ: $80K\n📊 Vol: $300K | B: 12% | S: 4%\n🔒 Dev: 1% | Score: 77%\n📝 7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	d, _ := NewRegistry().Get(Compact)

	cases := map[Field]string{
		FieldTokenName:  "PEPE KING",
		FieldChain:      "SOL",
		FieldMarketCap:  "1.2",
		FieldSnipersPct: "4",
		FieldConfidence: "77",
	}
	for f, expected := range cases {
		rule, _ := d.Rule(f)
		got, _, ok := rule.Match(msg)
		if !ok || got != expected {
			t.Errorf("%s: expected %q, got %q", f, expected, got)
		}
	}
}
