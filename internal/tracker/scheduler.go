// Package tracker polls the oracle for every active Signal at a frequency
// that follows the Signal's age and momentum.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"signal-tracker/internal/oracle"
	"signal-tracker/internal/signal"
	"signal-tracker/internal/storage"
)

const (
	heartbeatInterval = 10 * time.Minute
	processTimeout    = 30 * time.Second
)

// SweepStats summarises one pass
type SweepStats struct {
	Listed  int
	Polled  int
	Gated   int
	Stopped int
	Failed  int
}

// Scheduler owns the per-Signal poll state. Sweep and Run must not be
// called concurrently.
type Scheduler struct {
	store   storage.Store
	oracle  signal.Oracle
	logger  zerolog.Logger
	metrics *Metrics

	mu     sync.RWMutex
	policy Policy

	lookupTimeout time.Duration
	now           func() time.Time

	// lastPoll is keyed by row id and only touched by the sweeping goroutine
	lastPoll map[int64]time.Time
}

// New creates a Scheduler
func New(store storage.Store, o signal.Oracle, policy Policy, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		store:         store,
		oracle:        o,
		logger:        logger.With().Str("component", "tracker").Logger(),
		metrics:       NewMetrics(),
		policy:        policy,
		lookupTimeout: 10 * time.Second,
		now:           time.Now,
		lastPoll:      make(map[int64]time.Time),
	}
}

// SetPolicy swaps the policy; the next Signal processed uses it
func (s *Scheduler) SetPolicy(p Policy) {
	s.mu.Lock()
	s.policy = p
	s.mu.Unlock()
	s.logger.Info().
		Dur("window", p.Window).
		Float64("hotGainPct", p.HotGainPct).
		Int("buckets", len(p.Buckets)).
		Msg("tracking policy updated")
}

// Policy returns the current policy
func (s *Scheduler) Policy() Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy
}

// SetLookupTimeout bounds each oracle call
func (s *Scheduler) SetLookupTimeout(d time.Duration) {
	if d > 0 {
		s.lookupTimeout = d
	}
}

// Metrics exposes latency and counters
func (s *Scheduler) Metrics() *Metrics {
	return s.metrics
}

// Run sweeps until ctx is cancelled. Listing failures back off
// exponentially; a heartbeat is logged every ten minutes.
func (s *Scheduler) Run(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Second
	b.MaxInterval = 5 * time.Minute
	b.MaxElapsedTime = 0

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	timer := time.NewTimer(0)
	defer timer.Stop()

	s.logger.Info().Msg("tracker started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("tracker stopped")
			return
		case <-heartbeat.C:
			s.heartbeat()
		case <-timer.C:
			wait := s.Policy().SweepInterval
			stats, err := s.Sweep(ctx)
			if err != nil {
				wait = b.NextBackOff()
				s.logger.Error().Err(err).Dur("retryIn", wait).Msg("sweep failed")
			} else {
				b.Reset()
				if stats.Polled > 0 || stats.Stopped > 0 || stats.Failed > 0 {
					s.logger.Debug().
						Int("listed", stats.Listed).
						Int("polled", stats.Polled).
						Int("gated", stats.Gated).
						Int("stopped", stats.Stopped).
						Int("failed", stats.Failed).
						Msg("sweep done")
				}
			}
			if wait <= 0 {
				wait = time.Second
			}
			timer.Reset(wait)
		}
	}
}

func (s *Scheduler) heartbeat() {
	sweeps, polls, failures, stopped, active := s.metrics.Stats()
	s.logger.Info().
		Int64("active", active).
		Int64("sweeps", sweeps).
		Int64("polls", polls).
		Int64("failures", failures).
		Int64("stopped", stopped).
		Int64("p50ms", s.metrics.P50()).
		Int64("p95ms", s.metrics.P95()).
		Int64("p99ms", s.metrics.P99()).
		Msg("💓 tracker heartbeat")
}

// Sweep makes one pass over the active Signals. A cancelled ctx stops the
// pass between Signals; the Signal in flight always completes.
func (s *Scheduler) Sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	start := time.Now()

	signals, err := s.store.ListActive(ctx)
	if err != nil {
		return stats, fmt.Errorf("list active: %w", err)
	}
	stats.Listed = len(signals)
	p := s.Policy()

	seen := make(map[int64]bool, len(signals))
	for i, sig := range signals {
		if ctx.Err() != nil {
			break
		}
		seen[sig.RowID] = true

		outcome := s.process(ctx, sig, p)
		switch outcome {
		case outcomePolled:
			stats.Polled++
		case outcomeGated:
			stats.Gated++
		case outcomeStopped:
			stats.Stopped++
		case outcomeFailed:
			stats.Failed++
		}

		if outcome != outcomeGated && p.Pacing > 0 && i < len(signals)-1 {
			select {
			case <-ctx.Done():
			case <-time.After(p.Pacing):
			}
		}
	}

	// Forget rows that left the active set
	if ctx.Err() == nil {
		for id := range s.lastPoll {
			if !seen[id] {
				delete(s.lastPoll, id)
			}
		}
	}

	s.metrics.RecordSweep(stats.Listed, time.Since(start).Seconds())
	return stats, nil
}

type outcome int

const (
	outcomeGated outcome = iota
	outcomePolled
	outcomeStopped
	outcomeFailed
)

// process handles one Signal. Errors and panics stay inside.
func (s *Scheduler) process(parent context.Context, sig *signal.Signal, p Policy) (out outcome) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), processTimeout)
	defer cancel()

	logger := s.logger.With().Int64("row", sig.RowID).Str("token", sig.Label()).Logger()
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("signal processing panicked")
			s.recordError(ctx, sig, fmt.Errorf("panic: %v", r))
			out = outcomeFailed
		}
	}()

	now := s.now()
	age := sig.Age(now)

	if age > p.Window {
		if err := s.transition(ctx, sig, signal.StatusStopped, ""); err != nil {
			logger.Error().Err(err).Msg("stop signal")
			return outcomeFailed
		}
		logger.Info().Dur("age", age).Msg("tracking window elapsed, stopped")
		return outcomeStopped
	}

	bucket := p.BucketFor(age, sig.GainPercent())
	fields := storage.Fields{}

	if last, ok := s.lastPoll[sig.RowID]; ok && now.Sub(last) < bucket.Period {
		// Reached checkpoints are filled even between polls
		if !signal.ValidAddress(sig.Address) || !s.pendingCheckpoint(sig, p, age) {
			return outcomeGated
		}
		q, err := s.lookup(ctx, sig.Address)
		if err != nil {
			logger.Debug().Err(err).Msg("checkpoint backfill lookup failed")
			return outcomeGated
		}
		s.fillCheckpoints(sig, p, age, q, now, fields)
		if err := s.store.UpdateFields(ctx, sig.RowID, fields); err != nil {
			logger.Error().Err(err).Msg("write checkpoints")
			return outcomeFailed
		}
		return outcomeGated
	}
	s.lastPoll[sig.RowID] = now

	if !signal.ValidAddress(sig.Address) {
		reason := fmt.Sprintf("%v: %q", signal.ErrInvalidAddress, sig.Address)
		if err := s.transition(ctx, sig, signal.StatusInvalidCA, reason); err != nil {
			logger.Error().Err(err).Msg("mark invalid address")
			return outcomeFailed
		}
		logger.Warn().Str("address", sig.Address).Msg("invalid contract address, tracking stopped")
		return outcomeStopped
	}

	q, err := s.lookup(ctx, sig.Address)
	if err != nil {
		firstAttempt := sig.UpdateCount == 0 && sig.Live == nil
		if oracle.IsNoData(err) && firstAttempt {
			if terr := s.transition(ctx, sig, signal.StatusNoPairs, err.Error()); terr != nil {
				logger.Error().Err(terr).Msg("mark no pairs")
				return outcomeFailed
			}
			logger.Warn().Err(err).Msg("no market data on first poll, tracking stopped")
			return outcomeStopped
		}
		logger.Warn().Err(err).Str("bucket", bucket.Name).Msg("poll failed, will retry")
		s.recordError(ctx, sig, err)
		return outcomeFailed
	}

	s.applySample(sig, p, q, now, fields, logger)
	s.fillCheckpoints(sig, p, age, q, now, fields)

	if err := s.store.UpdateFields(ctx, sig.RowID, fields); err != nil {
		logger.Error().Err(err).Msg("write sample")
		return outcomeFailed
	}
	logger.Debug().
		Str("bucket", bucket.Name).
		Float64("mc", q.MarketCap).
		Float64("peakX", sig.PeakMultiplier).
		Msg("sampled")
	return outcomePolled
}

func (s *Scheduler) lookup(ctx context.Context, address string) (*oracle.Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()

	start := time.Now()
	q, err := s.oracle.Lookup(ctx, address)
	result := "ok"
	switch {
	case err == nil && q == nil:
		err = oracle.ErrNotFound
		result = "no_data"
	case oracle.IsNoData(err):
		result = "no_data"
	case err != nil:
		result = "error"
		if !errors.Is(err, oracle.ErrTransient) {
			err = fmt.Errorf("%w: %v", oracle.ErrTransient, err)
		}
	}
	s.metrics.RecordLookup(time.Since(start).Milliseconds(), result)
	return q, err
}

// applySample folds a successful quote into sig and the pending write
func (s *Scheduler) applySample(sig *signal.Signal, p Policy, q *oracle.Quote, now time.Time, fields storage.Fields, logger zerolog.Logger) {
	mc := q.MarketCap

	// A Signal stored without entry values adopts its first sample
	if sig.EntryMC <= 0 && mc > 0 {
		sig.EntryMC = mc
		fields[storage.FieldEntryMC] = mc
		if sig.EntryPrice <= 0 {
			sig.EntryPrice = q.Price
			fields[storage.FieldEntryPrice] = q.Price
		}
	}

	_, gainPct := signal.Gain(sig.EntryMC, mc)
	sig.Live = &signal.Sample{Price: q.Price, MarketCap: mc, ChangePct: gainPct, At: now}
	sig.UpdateCount++
	fields[storage.FieldLivePrice] = q.Price
	fields[storage.FieldLiveMC] = mc
	fields[storage.FieldLiveGainPct] = gainPct
	fields[storage.FieldLiveAt] = now
	fields[storage.FieldUpdateCount] = sig.UpdateCount

	if sig.RaisePeak(mc) {
		fields[storage.FieldPeakMC] = sig.PeakMC
		fields[storage.FieldPeakMultiplier] = sig.PeakMultiplier

		before := sig.LastAlert
		achieved := sig.AchieveThresholds(sig.PeakMultiplier, p.Thresholds, now)
		for _, t := range achieved {
			fields[storage.FieldAlertTime(t)] = now
			logger.Info().Float64("threshold", t).Float64("peakX", sig.PeakMultiplier).Msg("🚀 threshold reached")
		}
		if sig.LastAlert > before {
			fields[storage.FieldLastAlert] = sig.LastAlert
		}
		s.metrics.RecordThresholds(len(achieved))
	}

	for _, m := range sig.MarkMilestones(gainPct, p.Milestones, now) {
		fields[storage.FieldPumpTime(m)] = now
		logger.Info().Int("milestone", m).Float64("gainPct", gainPct).Msg("pump milestone")
	}

	if sig.RaiseATH(q.Price, mc, now) {
		fields[storage.FieldATHPrice] = sig.ATH.Price
		fields[storage.FieldATHMC] = sig.ATH.MarketCap
		fields[storage.FieldATHGainPct] = sig.ATH.ChangePct
		fields[storage.FieldATHAt] = sig.ATH.At
	}
}

func (s *Scheduler) pendingCheckpoint(sig *signal.Signal, p Policy, age time.Duration) bool {
	for _, m := range p.Checkpoints {
		if _, ok := sig.Intervals[m]; !ok && age >= time.Duration(m)*time.Minute {
			return true
		}
	}
	return false
}

// fillCheckpoints writes every reached, empty checkpoint from q
func (s *Scheduler) fillCheckpoints(sig *signal.Signal, p Policy, age time.Duration, q *oracle.Quote, now time.Time, fields storage.Fields) {
	_, pct := signal.Gain(sig.EntryMC, q.MarketCap)
	for _, m := range p.Checkpoints {
		if age < time.Duration(m)*time.Minute {
			continue
		}
		if !sig.FillInterval(m, signal.Sample{Price: q.Price, MarketCap: q.MarketCap, ChangePct: pct, At: now}) {
			continue
		}
		fields[storage.FieldIntervalPrice(m)] = q.Price
		fields[storage.FieldIntervalMC(m)] = q.MarketCap
		fields[storage.FieldIntervalChange(m)] = pct
	}
}

func (s *Scheduler) transition(ctx context.Context, sig *signal.Signal, status signal.Status, reason string) error {
	fields := storage.Fields{storage.FieldStatus: status}
	if reason != "" {
		fields[storage.FieldErrorLog] = s.errorLine(reason)
	}
	if err := s.store.UpdateFields(ctx, sig.RowID, fields); err != nil {
		return err
	}
	sig.Status = status
	delete(s.lastPoll, sig.RowID)
	s.metrics.RecordTransition(string(status))
	return nil
}

func (s *Scheduler) recordError(ctx context.Context, sig *signal.Signal, err error) {
	line := s.errorLine(err.Error())
	if werr := s.store.UpdateFields(ctx, sig.RowID, storage.Fields{storage.FieldErrorLog: line}); werr != nil {
		s.logger.Error().Err(werr).Int64("row", sig.RowID).Msg("write error log")
	}
}

func (s *Scheduler) errorLine(msg string) string {
	return s.now().UTC().Format("2006-01-02 15:04:05") + " " + msg
}
