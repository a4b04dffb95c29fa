package signal

import (
	"testing"
	"time"
)

func TestParseAlert(t *testing.T) {
	now := time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC)
	msg := `🔥 5x ALERT 🔥
$MCAT hit 5x in 2h 15m
Entry MC: $100K
Current MC: $480K
Current: 4.8x
Peak: 6.2x
` + validCA

	ev, ok := ParseAlert(msg, now)
	if !ok {
		t.Fatal("expected alert")
	}
	if ev.Multiplier != 5 || ev.GainMultiplier != 4.8 || ev.PeakMultiplier != 6.2 {
		t.Errorf("unexpected multipliers %+v", ev)
	}
	if ev.TokenName != "MCAT" {
		t.Errorf("expected MCAT, got %q", ev.TokenName)
	}
	if ev.Elapsed != "2h 15m" {
		t.Errorf("expected elapsed 2h 15m, got %q", ev.Elapsed)
	}
	if ev.Address != validCA {
		t.Errorf("unexpected address %q", ev.Address)
	}
	if ev.EntryMC != 100_000 || ev.CurrentMC != 480_000 {
		t.Errorf("unexpected market caps %v %v", ev.EntryMC, ev.CurrentMC)
	}
	if !ev.ObservedAt.Equal(now) {
		t.Errorf("unexpected observed time %v", ev.ObservedAt)
	}
}

func TestParseAlertDefaults(t *testing.T) {
	ev, ok := ParseAlert("Token: Rocket Dog\n3x ALERT", time.Now())
	if !ok {
		t.Fatal("expected alert")
	}
	if ev.PeakMultiplier != 3 || ev.GainMultiplier != 3 {
		t.Errorf("peak and gain should default to the multiplier, got %+v", ev)
	}
	if ev.TokenName != "Rocket Dog" {
		t.Errorf("unexpected name %q", ev.TokenName)
	}
	if ev.Address != "" || ev.EntryMC != 0 {
		t.Errorf("unexpected optional fields %+v", ev)
	}
}

func TestParseAlertRequiresMarker(t *testing.T) {
	for _, text := range []string{"", "5x pump incoming", "ALERT ALERT", "Market Cap: $1M"} {
		if _, ok := ParseAlert(text, time.Now()); ok {
			t.Errorf("%q: expected no alert", text)
		}
	}
}
