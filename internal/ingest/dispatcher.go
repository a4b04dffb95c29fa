// Package ingest turns inbound channel messages into stored signals and
// correlated alerts.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"signal-tracker/internal/correlation"
	"signal-tracker/internal/format"
	"signal-tracker/internal/signal"
	"signal-tracker/internal/storage"
)

var messagesMetric = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ingest_messages_total",
	Help: "Inbound messages by kind and outcome",
}, []string{"kind", "outcome"})

// Message is one inbound event from any transport
type Message struct {
	Text        string `json:"text"`
	ChannelID   int64  `json:"channel_id"`
	ChannelName string `json:"channel_name"`
	MessageID   int64  `json:"message_id"`
	ReplyTo     *int64 `json:"reply_to_message_id"`
	Timestamp   int64  `json:"timestamp,omitempty"` // unix seconds, optional

	ReceivedAt time.Time `json:"-"`
}

// Outcome describes what happened to a message
type Outcome string

const (
	OutcomeStored     Outcome = "stored"
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeRejected   Outcome = "rejected"
	OutcomeCorrelated Outcome = "correlated"
	OutcomeUnmatched  Outcome = "unmatched"
	OutcomeIgnored    Outcome = "ignored"
	OutcomeFailed     Outcome = "failed"
)

// Result is returned for every handled message
type Result struct {
	Kind    string  `json:"kind"`
	Outcome Outcome `json:"outcome"`
	RowID   int64   `json:"row_id,omitempty"`
	Token   string  `json:"token,omitempty"`
	Address string  `json:"address,omitempty"`
	Reason  string  `json:"reason,omitempty"`
}

// Parser extracts a Signal from text
type Parser interface {
	Parse(ctx context.Context, text string, d *format.Descriptor, meta signal.Meta) (*signal.Signal, error)
}

// Correlator applies an alert to a stored Signal
type Correlator interface {
	Correlate(ctx context.Context, target correlation.Target, ev *signal.AlertEvent) (correlation.Result, error)
}

// Dispatcher routes messages by kind. It is safe for concurrent use by
// several transports.
type Dispatcher struct {
	formats    *format.Registry
	parser     Parser
	correlator Correlator
	store      storage.Store
	logger     zerolog.Logger
	now        func() time.Time

	mu      sync.Mutex
	seen    map[messageKey]time.Time
	seenTTL time.Duration
}

type messageKey struct {
	channel int64
	message int64
}

// NewDispatcher creates a Dispatcher
func NewDispatcher(formats *format.Registry, parser Parser, correlator Correlator, store storage.Store, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		formats:    formats,
		parser:     parser,
		correlator: correlator,
		store:      store,
		logger:     logger.With().Str("component", "ingest").Logger(),
		now:        time.Now,
		seen:       make(map[messageKey]time.Time),
		seenTTL:    10 * time.Minute,
	}
}

// Handle processes one message. Failures are reported in the Result and
// logged; they never propagate to the transport.
func (d *Dispatcher) Handle(ctx context.Context, msg Message) (res Result) {
	claimed := false
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Interface("panic", r).Int64("msg", msg.MessageID).Msg("message handling panicked")
			res = Result{Kind: res.Kind, Outcome: OutcomeFailed, Reason: fmt.Sprint(r)}
		}
		// A failed message stays eligible for redelivery
		if claimed && res.Outcome == OutcomeFailed {
			d.forget(msg)
		}
		messagesMetric.WithLabelValues(res.Kind, string(res.Outcome)).Inc()
	}()

	text := strings.TrimSpace(msg.Text)
	kind := signal.Classify(text)
	res.Kind = kind.String()

	if kind == signal.KindUnknown {
		res.Outcome = OutcomeIgnored
		res.Reason = "no signal or alert markers"
		return res
	}
	if d.redelivered(msg) {
		d.logger.Debug().Int64("channel", msg.ChannelID).Int64("msg", msg.MessageID).Msg("message already handled")
		res.Outcome = OutcomeDuplicate
		res.Reason = "redelivered message"
		return res
	}
	claimed = true

	if msg.ReceivedAt.IsZero() {
		if msg.Timestamp > 0 {
			msg.ReceivedAt = time.Unix(msg.Timestamp, 0)
		} else {
			msg.ReceivedAt = d.now()
		}
	}

	if kind == signal.KindAlert {
		return d.handleAlert(ctx, msg, text, res)
	}
	return d.handleSignal(ctx, msg, text, res)
}

func (d *Dispatcher) handleSignal(ctx context.Context, msg Message, text string, res Result) Result {
	descriptor := d.formats.Resolve(msg.ChannelID)
	sig, err := d.parser.Parse(ctx, text, descriptor, signal.Meta{
		ChannelID:   msg.ChannelID,
		ChannelName: msg.ChannelName,
		MessageID:   msg.MessageID,
		ReceivedAt:  msg.ReceivedAt,
	})
	if err != nil {
		d.logger.Warn().Err(err).Str("format", descriptor.Name).Int64("msg", msg.MessageID).Msg("signal rejected")
		res.Outcome = OutcomeRejected
		res.Reason = err.Error()
		return res
	}
	res.Token = sig.TokenName
	res.Address = sig.Address

	id, err := d.store.Append(ctx, sig)
	switch {
	case errors.Is(err, storage.ErrDuplicateKey):
		d.logger.Info().Str("token", sig.Label()).Str("address", sig.Address).Msg("address already tracked")
		res.Outcome = OutcomeDuplicate
		res.Reason = "address already tracked"
		return res
	case err != nil:
		d.logger.Error().Err(err).Str("token", sig.Label()).Msg("store signal")
		res.Outcome = OutcomeFailed
		res.Reason = err.Error()
		return res
	}

	d.logger.Info().
		Int64("row", id).
		Str("token", sig.Label()).
		Str("chain", sig.Chain).
		Str("format", descriptor.Name).
		Float64("entryMC", sig.EntryMC).
		Msg("📡 signal stored")
	res.Outcome = OutcomeStored
	res.RowID = id
	return res
}

func (d *Dispatcher) handleAlert(ctx context.Context, msg Message, text string, res Result) Result {
	ev, ok := signal.ParseAlert(text, msg.ReceivedAt)
	if !ok {
		res.Outcome = OutcomeRejected
		res.Reason = "alert without multiplier"
		return res
	}
	res.Token = ev.TokenName
	res.Address = ev.Address

	target := correlation.Target{ChannelID: msg.ChannelID}
	if msg.ReplyTo != nil {
		target.ReplyTo = *msg.ReplyTo
	}

	outcome, err := d.correlator.Correlate(ctx, target, ev)
	switch {
	case errors.Is(err, correlation.ErrNotFound):
		res.Outcome = OutcomeUnmatched
		res.Reason = "no tracked signal"
	case err != nil:
		d.logger.Error().Err(err).Float64("multiplier", ev.Multiplier).Msg("correlate alert")
		res.Outcome = OutcomeFailed
		res.Reason = err.Error()
	case outcome == correlation.Applied:
		res.Outcome = OutcomeCorrelated
	default:
		res.Outcome = OutcomeUnmatched
	}
	return res
}

// redelivered claims (channel, message) pairs for a while. Concurrent
// deliveries of one message see it as claimed.
func (d *Dispatcher) redelivered(msg Message) bool {
	if msg.MessageID == 0 {
		return false
	}
	now := d.now()
	key := messageKey{channel: msg.ChannelID, message: msg.MessageID}

	d.mu.Lock()
	defer d.mu.Unlock()

	for k, at := range d.seen {
		if now.Sub(at) > d.seenTTL {
			delete(d.seen, k)
		}
	}
	if _, ok := d.seen[key]; ok {
		return true
	}
	d.seen[key] = now
	return false
}

func (d *Dispatcher) forget(msg Message) {
	if msg.MessageID == 0 {
		return
	}
	d.mu.Lock()
	delete(d.seen, messageKey{channel: msg.ChannelID, message: msg.MessageID})
	d.mu.Unlock()
}
