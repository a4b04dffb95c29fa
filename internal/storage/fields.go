package storage

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"signal-tracker/internal/signal"
)

// Field is the store-independent name of a Signal attribute
type Field string

const (
	FieldReceivedAt     Field = "received_at"
	FieldChannelID      Field = "channel_id"
	FieldChannelName    Field = "channel_name"
	FieldMessageID      Field = "message_id"
	FieldAddress        Field = "address"
	FieldTokenName      Field = "token_name"
	FieldChain          Field = "chain"
	FieldEntryPrice     Field = "entry_price"
	FieldEntryMC        Field = "entry_mc"
	FieldLiquidity      Field = "liquidity"
	FieldVolume24h      Field = "volume_24h"
	FieldBundlesPct     Field = "bundles_pct"
	FieldSnipersPct     Field = "snipers_pct"
	FieldDevPct         Field = "dev_pct"
	FieldConfidence     Field = "confidence"
	FieldPeakMC         Field = "peak_mc"
	FieldPeakMultiplier Field = "peak_multiplier"
	FieldLastAlert      Field = "last_alert"
	FieldLivePrice      Field = "live_price"
	FieldLiveMC         Field = "live_mc"
	FieldLiveGainPct    Field = "live_gain_pct"
	FieldLiveAt         Field = "live_at"
	FieldUpdateCount    Field = "update_count"
	FieldATHPrice       Field = "ath_price"
	FieldATHMC          Field = "ath_mc"
	FieldATHGainPct     Field = "ath_gain_pct"
	FieldATHAt          Field = "ath_at"
	FieldHistory        Field = "history"
	FieldStatus         Field = "status"
	FieldErrorLog       Field = "error_log"
	FieldDexURL         Field = "dex_url"
	FieldPumpURL        Field = "pump_url"
)

// FieldIntervalPrice names the price slot of a checkpoint
func FieldIntervalPrice(minute int) Field { return Field(fmt.Sprintf("price_%dm", minute)) }

// FieldIntervalMC names the market cap slot of a checkpoint
func FieldIntervalMC(minute int) Field { return Field(fmt.Sprintf("mc_%dm", minute)) }

// FieldIntervalChange names the percent change slot of a checkpoint
func FieldIntervalChange(minute int) Field { return Field(fmt.Sprintf("change_%dm", minute)) }

// FieldAlertTime names the timestamp slot of an alert threshold
func FieldAlertTime(multiplier float64) Field {
	return Field("alert_" + strconv.FormatFloat(multiplier, 'f', -1, 64) + "x_time")
}

// FieldPumpTime names the timestamp slot of a pump milestone
func FieldPumpTime(pct int) Field { return Field(fmt.Sprintf("pump_%d_time", pct)) }

// Kind is the value type of a field
type Kind int

const (
	KindString Kind = iota
	KindFloat
	KindInt
	KindTime
)

var scalarKinds = map[Field]Kind{
	FieldReceivedAt:     KindTime,
	FieldChannelID:      KindInt,
	FieldChannelName:    KindString,
	FieldMessageID:      KindInt,
	FieldAddress:        KindString,
	FieldTokenName:      KindString,
	FieldChain:          KindString,
	FieldEntryPrice:     KindFloat,
	FieldEntryMC:        KindFloat,
	FieldLiquidity:      KindFloat,
	FieldVolume24h:      KindFloat,
	FieldBundlesPct:     KindFloat,
	FieldSnipersPct:     KindFloat,
	FieldDevPct:         KindFloat,
	FieldConfidence:     KindFloat,
	FieldPeakMC:         KindFloat,
	FieldPeakMultiplier: KindFloat,
	FieldLastAlert:      KindFloat,
	FieldLivePrice:      KindFloat,
	FieldLiveMC:         KindFloat,
	FieldLiveGainPct:    KindFloat,
	FieldLiveAt:         KindTime,
	FieldUpdateCount:    KindInt,
	FieldATHPrice:       KindFloat,
	FieldATHMC:          KindFloat,
	FieldATHGainPct:     KindFloat,
	FieldATHAt:          KindTime,
	FieldHistory:        KindString,
	FieldStatus:         KindString,
	FieldErrorLog:       KindString,
	FieldDexURL:         KindString,
	FieldPumpURL:        KindString,
}

var (
	intervalField = regexp.MustCompile(`^(price|mc|change)_(\d+)m$`)
	alertField    = regexp.MustCompile(`^alert_(\d+(?:\.\d+)?)x_time$`)
	pumpField     = regexp.MustCompile(`^pump_(\d+)_time$`)
)

// slot describes a dynamic field
type slot struct {
	kind   string // interval, alert, pump
	part   string // price, mc, change for intervals
	minute int
	mult   float64
}

func parseSlot(f Field) (slot, bool) {
	if m := intervalField.FindStringSubmatch(string(f)); m != nil {
		n, _ := strconv.Atoi(m[2])
		return slot{kind: "interval", part: m[1], minute: n}, true
	}
	if m := alertField.FindStringSubmatch(string(f)); m != nil {
		v, _ := strconv.ParseFloat(m[1], 64)
		return slot{kind: "alert", mult: v}, true
	}
	if m := pumpField.FindStringSubmatch(string(f)); m != nil {
		n, _ := strconv.Atoi(m[1])
		return slot{kind: "pump", minute: n}, true
	}
	return slot{}, false
}

// IsSlot reports whether f is a write-once checkpoint or mark field
func IsSlot(f Field) bool {
	_, ok := parseSlot(f)
	return ok
}

// KindOf returns the value type of a field
func KindOf(f Field) (Kind, bool) {
	if k, ok := scalarKinds[f]; ok {
		return k, true
	}
	s, ok := parseSlot(f)
	if !ok {
		return 0, false
	}
	if s.kind == "interval" {
		return KindFloat, true
	}
	return KindTime, true
}

// Layout returns the ordered row layout for the configured checkpoints,
// alert thresholds and pump milestones
func Layout(checkpoints []int, thresholds []float64, milestones []int) []Field {
	fields := []Field{
		FieldReceivedAt, FieldChannelID, FieldChannelName, FieldMessageID,
		FieldAddress, FieldTokenName, FieldChain,
		FieldEntryPrice, FieldEntryMC, FieldLiquidity, FieldVolume24h,
		FieldBundlesPct, FieldSnipersPct, FieldDevPct, FieldConfidence,
	}
	for _, m := range checkpoints {
		fields = append(fields, FieldIntervalPrice(m), FieldIntervalMC(m), FieldIntervalChange(m))
	}
	fields = append(fields, FieldPeakMC, FieldPeakMultiplier)
	for _, t := range thresholds {
		fields = append(fields, FieldAlertTime(t))
	}
	fields = append(fields, FieldLastAlert,
		FieldLivePrice, FieldLiveMC, FieldLiveGainPct, FieldLiveAt, FieldUpdateCount)
	for _, p := range milestones {
		fields = append(fields, FieldPumpTime(p))
	}
	return append(fields,
		FieldATHPrice, FieldATHMC, FieldATHGainPct, FieldATHAt,
		FieldHistory, FieldStatus, FieldErrorLog, FieldDexURL, FieldPumpURL)
}

// Apply writes one named value into s
func Apply(s *signal.Signal, f Field, v any) error {
	kind, ok := KindOf(f)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, f)
	}

	var (
		fv  float64
		iv  int64
		sv  string
		tv  time.Time
		err error
	)
	switch kind {
	case KindFloat:
		fv, err = asFloat(v)
	case KindInt:
		iv, err = asInt(v)
	case KindTime:
		tv, err = asTime(v)
	default:
		sv, err = asString(v)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidInput, f, err)
	}

	if sl, ok := parseSlot(f); ok {
		applySlot(s, sl, fv, tv)
		return nil
	}

	switch f {
	case FieldReceivedAt:
		s.ReceivedAt = tv
	case FieldChannelID:
		s.ChannelID = iv
	case FieldChannelName:
		s.ChannelName = sv
	case FieldMessageID:
		s.MessageID = iv
	case FieldAddress:
		s.Address = sv
	case FieldTokenName:
		s.TokenName = sv
	case FieldChain:
		s.Chain = sv
	case FieldEntryPrice:
		s.EntryPrice = fv
	case FieldEntryMC:
		s.EntryMC = fv
	case FieldLiquidity:
		s.Liquidity = fv
	case FieldVolume24h:
		s.Volume24h = fv
	case FieldBundlesPct:
		s.BundlesPct = fv
	case FieldSnipersPct:
		s.SnipersPct = fv
	case FieldDevPct:
		s.DevPct = fv
	case FieldConfidence:
		s.Confidence = fv
	case FieldPeakMC:
		s.PeakMC = fv
	case FieldPeakMultiplier:
		s.PeakMultiplier = fv
	case FieldLastAlert:
		s.LastAlert = fv
	case FieldLivePrice:
		live(s).Price = fv
	case FieldLiveMC:
		live(s).MarketCap = fv
	case FieldLiveGainPct:
		live(s).ChangePct = fv
	case FieldLiveAt:
		live(s).At = tv
	case FieldUpdateCount:
		s.UpdateCount = int(iv)
	case FieldATHPrice:
		ath(s).Price = fv
	case FieldATHMC:
		ath(s).MarketCap = fv
	case FieldATHGainPct:
		ath(s).ChangePct = fv
	case FieldATHAt:
		ath(s).At = tv
	case FieldHistory:
		s.History = sv
	case FieldStatus:
		s.Status = signal.Status(sv)
	case FieldErrorLog:
		s.ErrorLog = sv
	case FieldDexURL:
		s.DexURL = sv
	case FieldPumpURL:
		s.PumpURL = sv
	}
	return nil
}

func applySlot(s *signal.Signal, sl slot, fv float64, tv time.Time) {
	switch sl.kind {
	case "interval":
		if s.Intervals == nil {
			s.Intervals = make(map[int]*signal.Sample)
		}
		smp, ok := s.Intervals[sl.minute]
		if !ok {
			smp = &signal.Sample{}
			s.Intervals[sl.minute] = smp
		}
		switch sl.part {
		case "price":
			smp.Price = fv
		case "mc":
			smp.MarketCap = fv
		case "change":
			smp.ChangePct = fv
		}
	case "alert":
		if s.AlertTimes == nil {
			s.AlertTimes = make(map[float64]time.Time)
		}
		s.AlertTimes[sl.mult] = tv
	case "pump":
		if s.PumpTimes == nil {
			s.PumpTimes = make(map[int]time.Time)
		}
		s.PumpTimes[sl.minute] = tv
	}
}

func live(s *signal.Signal) *signal.Sample {
	if s.Live == nil {
		s.Live = &signal.Sample{}
	}
	return s.Live
}

func ath(s *signal.Signal) *signal.Sample {
	if s.ATH == nil {
		s.ATH = &signal.Sample{}
	}
	return s.ATH
}

// Value reads one named value from s. Unset slots return nil.
func Value(s *signal.Signal, f Field) (any, error) {
	if sl, ok := parseSlot(f); ok {
		switch sl.kind {
		case "interval":
			smp, ok := s.Intervals[sl.minute]
			if !ok {
				return nil, nil
			}
			switch sl.part {
			case "price":
				return smp.Price, nil
			case "mc":
				return smp.MarketCap, nil
			default:
				return smp.ChangePct, nil
			}
		case "alert":
			if t, ok := s.AlertTimes[sl.mult]; ok {
				return t, nil
			}
		case "pump":
			if t, ok := s.PumpTimes[sl.minute]; ok {
				return t, nil
			}
		}
		return nil, nil
	}

	liveS := s.Live
	if liveS == nil {
		liveS = &signal.Sample{}
	}
	athS := s.ATH
	if athS == nil {
		athS = &signal.Sample{}
	}

	switch f {
	case FieldReceivedAt:
		return s.ReceivedAt, nil
	case FieldChannelID:
		return s.ChannelID, nil
	case FieldChannelName:
		return s.ChannelName, nil
	case FieldMessageID:
		return s.MessageID, nil
	case FieldAddress:
		return s.Address, nil
	case FieldTokenName:
		return s.TokenName, nil
	case FieldChain:
		return s.Chain, nil
	case FieldEntryPrice:
		return s.EntryPrice, nil
	case FieldEntryMC:
		return s.EntryMC, nil
	case FieldLiquidity:
		return s.Liquidity, nil
	case FieldVolume24h:
		return s.Volume24h, nil
	case FieldBundlesPct:
		return s.BundlesPct, nil
	case FieldSnipersPct:
		return s.SnipersPct, nil
	case FieldDevPct:
		return s.DevPct, nil
	case FieldConfidence:
		return s.Confidence, nil
	case FieldPeakMC:
		return s.PeakMC, nil
	case FieldPeakMultiplier:
		return s.PeakMultiplier, nil
	case FieldLastAlert:
		return s.LastAlert, nil
	case FieldLivePrice:
		return liveS.Price, nil
	case FieldLiveMC:
		return liveS.MarketCap, nil
	case FieldLiveGainPct:
		return liveS.ChangePct, nil
	case FieldLiveAt:
		return liveS.At, nil
	case FieldUpdateCount:
		return int64(s.UpdateCount), nil
	case FieldATHPrice:
		return athS.Price, nil
	case FieldATHMC:
		return athS.MarketCap, nil
	case FieldATHGainPct:
		return athS.ChangePct, nil
	case FieldATHAt:
		return athS.At, nil
	case FieldHistory:
		return s.History, nil
	case FieldStatus:
		return string(s.Status), nil
	case FieldErrorLog:
		return s.ErrorLog, nil
	case FieldDexURL:
		return s.DexURL, nil
	case FieldPumpURL:
		return s.PumpURL, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownField, f)
}

// Row returns every field of s in the given layout order
func Row(s *signal.Signal, layout []Field) map[Field]any {
	out := make(map[Field]any, len(layout))
	for _, f := range layout {
		if v, err := Value(s, f); err == nil && v != nil {
			out[f] = v
		}
	}
	return out
}

func asFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		return strconv.ParseFloat(x, 64)
	case nil:
		return 0, nil
	}
	return 0, fmt.Errorf("want number, got %T", v)
}

func asInt(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int64:
		return x, nil
	case float64:
		return int64(x), nil
	case string:
		return strconv.ParseInt(x, 10, 64)
	case nil:
		return 0, nil
	}
	return 0, fmt.Errorf("want integer, got %T", v)
}

func asString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case signal.Status:
		return string(x), nil
	case fmt.Stringer:
		return x.String(), nil
	case nil:
		return "", nil
	}
	return "", fmt.Errorf("want string, got %T", v)
}

func asTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case int64:
		return time.UnixMilli(x), nil
	case nil:
		return time.Time{}, nil
	}
	return time.Time{}, fmt.Errorf("want time, got %T", v)
}

// AppendLine is a Fields value that adds one line to a text field
// instead of replacing it. Stores append atomically.
type AppendLine string

// Monotonic reports whether f never decreases. Stores keep the larger of
// the stored and the written value.
func Monotonic(f Field) bool {
	switch f {
	case FieldPeakMC, FieldPeakMultiplier, FieldLastAlert:
		return true
	}
	return false
}

// JoinLines appends line to a newline separated text
func JoinLines(existing, line string) string {
	existing = strings.TrimRight(existing, "\n")
	if existing == "" {
		return line
	}
	return existing + "\n" + line
}

// Merge applies one update on top of the stored row s. Monotonic fields
// keep the larger value and AppendLine values extend the text; every
// other field is replaced as by Apply.
func Merge(s *signal.Signal, f Field, v any) error {
	if line, ok := v.(AppendLine); ok {
		if kind, _ := KindOf(f); kind != KindString || IsSlot(f) {
			return fmt.Errorf("%w: %s: append to non-text field", ErrInvalidInput, f)
		}
		cur, err := Value(s, f)
		if err != nil {
			return err
		}
		prev, _ := cur.(string)
		return Apply(s, f, JoinLines(prev, string(line)))
	}

	if Monotonic(f) {
		next, err := asFloat(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidInput, f, err)
		}
		cur, err := Value(s, f)
		if err != nil {
			return err
		}
		if prev, _ := cur.(float64); next <= prev {
			return nil
		}
	}
	return Apply(s, f, v)
}
