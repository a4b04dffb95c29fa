package signal

import (
	"sort"
	"time"
)

// Gain returns the multiplier and percent change of mc against entry.
// Both are zero when entry is unknown.
func Gain(entry, mc float64) (multiplier, percent float64) {
	if entry <= 0 || mc <= 0 {
		return 0, 0
	}
	return mc / entry, (mc - entry) / entry * 100
}

// RaisePeak stores mc as the peak when it exceeds the current peak.
// The peak multiplier is derived from the peak market cap.
func (s *Signal) RaisePeak(mc float64) bool {
	if mc <= s.PeakMC {
		return false
	}
	s.PeakMC = mc
	if s.EntryMC > 0 {
		s.PeakMultiplier = mc / s.EntryMC
	}
	return true
}

// RaisePeakMultiplier is used when no market cap base is known
func (s *Signal) RaisePeakMultiplier(m float64) bool {
	if m <= s.PeakMultiplier {
		return false
	}
	s.PeakMultiplier = m
	return true
}

// AchieveThresholds stamps every configured threshold in
// (LastAlert, multiplier] and raises LastAlert to the highest of them.
// It returns the thresholds newly achieved, ascending.
func (s *Signal) AchieveThresholds(multiplier float64, thresholds []float64, at time.Time) []float64 {
	sorted := append([]float64(nil), thresholds...)
	sort.Float64s(sorted)

	var achieved []float64
	top := s.LastAlert
	for _, t := range sorted {
		if t > multiplier || t <= s.LastAlert {
			continue
		}
		top = t
		if _, ok := s.AlertTimes[t]; !ok {
			s.setAlertTime(t, at)
			achieved = append(achieved, t)
		}
	}
	s.LastAlert = top
	return achieved
}

// RaiseAlert lifts LastAlert to multiplier when greater. When multiplier is
// itself a configured threshold without a timestamp, that slot is stamped.
func (s *Signal) RaiseAlert(multiplier float64, thresholds []float64, at time.Time) (raised, stamped bool) {
	if multiplier <= s.LastAlert {
		return false, false
	}
	s.LastAlert = multiplier
	for _, t := range thresholds {
		if t != multiplier {
			continue
		}
		if _, ok := s.AlertTimes[t]; !ok {
			s.setAlertTime(t, at)
			stamped = true
		}
		break
	}
	return true, stamped
}

func (s *Signal) setAlertTime(t float64, at time.Time) {
	if s.AlertTimes == nil {
		s.AlertTimes = make(map[float64]time.Time)
	}
	s.AlertTimes[t] = at
}

// MarkMilestones records the first crossing of each pump milestone
// (cumulative gain percent). Recorded times are never replaced.
func (s *Signal) MarkMilestones(gainPct float64, milestones []int, at time.Time) []int {
	var crossed []int
	for _, m := range milestones {
		if gainPct < float64(m) {
			continue
		}
		if _, ok := s.PumpTimes[m]; ok {
			continue
		}
		if s.PumpTimes == nil {
			s.PumpTimes = make(map[int]time.Time)
		}
		s.PumpTimes[m] = at
		crossed = append(crossed, m)
	}
	return crossed
}

// RaiseATH records a new all-time high. Until one exists the entry market
// cap is the baseline.
func (s *Signal) RaiseATH(price, mc float64, at time.Time) bool {
	base := s.EntryMC
	if s.ATH != nil {
		base = s.ATH.MarketCap
	}
	if mc <= base {
		return false
	}
	_, pct := Gain(s.EntryMC, mc)
	s.ATH = &Sample{Price: price, MarketCap: mc, ChangePct: pct, At: at}
	return true
}

// FillInterval writes a checkpoint sample once. Filled slots are kept.
func (s *Signal) FillInterval(minute int, sample Sample) bool {
	if _, ok := s.Intervals[minute]; ok {
		return false
	}
	if s.Intervals == nil {
		s.Intervals = make(map[int]*Sample)
	}
	s.Intervals[minute] = &sample
	return true
}
