package signal

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"signal-tracker/internal/format"
)

var (
	alertTicker    = regexp.MustCompile(`\$([A-Za-z][A-Za-z0-9_]{0,19})\b`)
	alertTokenName = regexp.MustCompile(`(?im)^\W*Token:\s*([^\n|]+)`)
	alertElapsed   = regexp.MustCompile(`(?i)(?:\b(?:in|after)\s+|\btime:\s*)((?:\d+\s*[dhms]\s*)+)`)
	alertAddress   = regexp.MustCompile(`[A-Za-z0-9]{32,}`)
	alertEntryMC   = regexp.MustCompile(`(?i)Entry\s*MC:\s*\$?\s*([\d][\d,]*(?:\.\d+)?)\s*([KMB]?)\b`)
	alertCurrentMC = regexp.MustCompile(`(?i)Current\s*MC:\s*\$?\s*([\d][\d,]*(?:\.\d+)?)\s*([KMB]?)\b`)
	alertGain      = regexp.MustCompile(`(?i)\b(?:Current|Now|Gain):\s*(\d+(?:\.\d+)?)\s*x\b`)
	alertPeak      = regexp.MustCompile(`(?i)\bPeak:\s*(\d+(?:\.\d+)?)\s*x\b`)
)

// ParseAlert extracts an AlertEvent from text. ok is false when the text
// carries no "<n>x ALERT" marker.
func ParseAlert(text string, now time.Time) (ev *AlertEvent, ok bool) {
	defer func() {
		if recover() != nil {
			ev, ok = nil, false
		}
	}()

	m := alertMarker.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	mult, err := strconv.ParseFloat(m[1], 64)
	if err != nil || mult <= 0 {
		return nil, false
	}

	ev = &AlertEvent{
		Multiplier:     mult,
		GainMultiplier: mult,
		PeakMultiplier: mult,
		ObservedAt:     now,
	}

	if m := alertTokenName.FindStringSubmatch(text); m != nil {
		ev.TokenName = sanitizeName(m[1])
	} else if m := alertTicker.FindStringSubmatch(text); m != nil {
		ev.TokenName = m[1]
	}
	if m := alertElapsed.FindStringSubmatch(text); m != nil {
		ev.Elapsed = strings.Join(strings.Fields(m[1]), " ")
	}
	if m := alertAddress.FindString(text); m != "" {
		ev.Address = m
	}
	if m := alertEntryMC.FindStringSubmatch(text); m != nil {
		ev.EntryMC, _ = format.ScaleAmount(m[1], m[2])
	}
	if m := alertCurrentMC.FindStringSubmatch(text); m != nil {
		ev.CurrentMC, _ = format.ScaleAmount(m[1], m[2])
	}
	if m := alertGain.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			ev.GainMultiplier = v
		}
	}
	if m := alertPeak.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			ev.PeakMultiplier = v
		}
	}
	return ev, true
}
