// Package correlation reconciles alert messages with stored signals.
package correlation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"signal-tracker/internal/signal"
	"signal-tracker/internal/storage"
)

// ErrNotFound means no stored Signal matches the alert
var ErrNotFound = errors.New("correlation: no matching signal")

// Result is the outcome of Correlate
type Result int

const (
	NotFound Result = iota
	Applied
)

func (r Result) String() string {
	if r == Applied {
		return "applied"
	}
	return "not_found"
}

// Target locates the Signal an alert refers to. ReplyTo is zero when the
// alert is not a reply; ChannelID is zero when the channel is unknown.
type Target struct {
	ChannelID int64
	ReplyTo   int64
}

// Engine applies AlertEvents to stored Signals
type Engine struct {
	store  storage.Store
	logger zerolog.Logger
	now    func() time.Time

	mu         sync.RWMutex
	thresholds []float64
}

// New creates an Engine
func New(store storage.Store, thresholds []float64, logger zerolog.Logger) *Engine {
	return &Engine{
		store:      store,
		logger:     logger.With().Str("component", "correlation").Logger(),
		now:        time.Now,
		thresholds: append([]float64(nil), thresholds...),
	}
}

// SetThresholds replaces the configured alert thresholds
func (e *Engine) SetThresholds(t []float64) {
	e.mu.Lock()
	e.thresholds = append([]float64(nil), t...)
	e.mu.Unlock()
}

func (e *Engine) currentThresholds() []float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.thresholds
}

// Correlate resolves the Signal by reply linkage first, then by address,
// and merges the alert into it. Peak and last alert only ever increase.
func (e *Engine) Correlate(ctx context.Context, target Target, ev *signal.AlertEvent) (Result, error) {
	if ev == nil {
		return NotFound, fmt.Errorf("%w: empty alert", ErrNotFound)
	}

	sig, via, err := e.resolve(ctx, target, ev)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			e.logger.Warn().
				Float64("multiplier", ev.Multiplier).
				Str("token", ev.TokenName).
				Int64("replyTo", target.ReplyTo).
				Msg("alert matches no tracked signal, discarded")
			return NotFound, fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		return NotFound, fmt.Errorf("resolve alert: %w", err)
	}

	at := ev.ObservedAt
	if at.IsZero() {
		at = e.now()
	}

	fields := storage.Fields{}
	e.mergePeak(sig, ev, fields)

	raised, stamped := sig.RaiseAlert(ev.Multiplier, e.currentThresholds(), at)
	if raised {
		fields[storage.FieldLastAlert] = sig.LastAlert
	}
	if stamped {
		fields[storage.FieldAlertTime(ev.Multiplier)] = at
	}

	// The store merges peak and last alert upwards and appends the line,
	// so a sweep writing the same row concurrently loses nothing.
	fields[storage.FieldHistory] = storage.AppendLine(historyLine(ev, at))

	if err := e.store.UpdateFields(ctx, sig.RowID, fields); err != nil {
		return NotFound, fmt.Errorf("write alert: %w", err)
	}

	e.logger.Info().
		Int64("row", sig.RowID).
		Str("token", sig.Label()).
		Str("via", via).
		Float64("multiplier", ev.Multiplier).
		Float64("peakX", sig.PeakMultiplier).
		Bool("raised", raised).
		Msg("alert correlated")
	return Applied, nil
}

func (e *Engine) resolve(ctx context.Context, target Target, ev *signal.AlertEvent) (*signal.Signal, string, error) {
	if target.ReplyTo != 0 {
		sig, err := e.store.FindByMessage(ctx, target.ChannelID, target.ReplyTo)
		if err == nil {
			return sig, "reply", nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, "", err
		}
	}
	if ev.Address != "" {
		sig, err := e.store.FindByAddress(ctx, ev.Address)
		if err == nil {
			return sig, "address", nil
		}
		return nil, "", err
	}
	return nil, "", storage.ErrNotFound
}

// mergePeak raises the stored peak from the alert. Peak market cap is
// canonical; the multiplier follows from it when the entry is known.
func (e *Engine) mergePeak(sig *signal.Signal, ev *signal.AlertEvent, fields storage.Fields) {
	mult := ev.Multiplier
	if ev.GainMultiplier > mult {
		mult = ev.GainMultiplier
	}
	if ev.PeakMultiplier > mult {
		mult = ev.PeakMultiplier
	}

	if sig.EntryMC > 0 {
		candidate := mult * sig.EntryMC
		if ev.CurrentMC > candidate {
			candidate = ev.CurrentMC
		}
		if sig.RaisePeak(candidate) {
			fields[storage.FieldPeakMC] = sig.PeakMC
			fields[storage.FieldPeakMultiplier] = sig.PeakMultiplier
		}
		return
	}

	if sig.RaisePeakMultiplier(mult) {
		fields[storage.FieldPeakMultiplier] = sig.PeakMultiplier
	}
	if ev.CurrentMC > 0 && sig.RaisePeak(ev.CurrentMC) {
		fields[storage.FieldPeakMC] = sig.PeakMC
	}
}

func historyLine(ev *signal.AlertEvent, at time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %gx alert", at.UTC().Format("2006-01-02 15:04:05"), ev.Multiplier)
	if ev.Elapsed != "" {
		fmt.Fprintf(&b, " in %s", ev.Elapsed)
	}
	if ev.PeakMultiplier > 0 {
		fmt.Fprintf(&b, ", peak %.2fx", ev.PeakMultiplier)
	}
	return b.String()
}
