package signal

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrParse marks a message that could not be turned into a Signal
	ErrParse = errors.New("signal: parse failure")
	// ErrInvalidAddress marks an address that fails format or length checks
	ErrInvalidAddress = errors.New("signal: invalid address")
)

// Status is the tracking state of a Signal
type Status string

const (
	StatusActive    Status = "active"
	StatusStopped   Status = "stopped"
	StatusInvalidCA Status = "invalid_ca"
	StatusNoPairs   Status = "no_pairs"
)

// Terminal reports whether no further scheduling happens in this state
func (s Status) Terminal() bool {
	return s == StatusStopped || s == StatusInvalidCA || s == StatusNoPairs
}

// Sample is one market observation
type Sample struct {
	Price     float64
	MarketCap float64
	ChangePct float64
	At        time.Time
}

// Signal is a tracked token announcement
type Signal struct {
	RowID int64

	Address     string
	TokenName   string
	Chain       string
	ChannelID   int64
	ChannelName string
	MessageID   int64
	ReceivedAt  time.Time

	EntryPrice float64
	EntryMC    float64
	Liquidity  float64
	Volume24h  float64

	BundlesPct float64
	SnipersPct float64
	DevPct     float64
	Confidence float64

	// Intervals holds the write-once checkpoint samples keyed by minute
	Intervals map[int]*Sample

	PeakMC         float64
	PeakMultiplier float64
	AlertTimes     map[float64]time.Time
	LastAlert      float64

	Live        *Sample
	UpdateCount int
	PumpTimes   map[int]time.Time
	ATH         *Sample

	History  string
	Status   Status
	ErrorLog string

	DexURL  string
	PumpURL string
}

// Meta is transport metadata attached to an inbound message
type Meta struct {
	ChannelID   int64
	ChannelName string
	MessageID   int64
	ReceivedAt  time.Time
}

// New returns an empty active Signal for the given origin
func New(meta Meta) *Signal {
	at := meta.ReceivedAt
	if at.IsZero() {
		at = time.Now()
	}
	return &Signal{
		ChannelID:      meta.ChannelID,
		ChannelName:    meta.ChannelName,
		MessageID:      meta.MessageID,
		ReceivedAt:     at,
		Intervals:      make(map[int]*Sample),
		AlertTimes:     make(map[float64]time.Time),
		PumpTimes:      make(map[int]time.Time),
		PeakMultiplier: 1.0,
		Status:         StatusActive,
	}
}

// Clone returns a deep copy
func (s *Signal) Clone() *Signal {
	c := *s
	c.Intervals = make(map[int]*Sample, len(s.Intervals))
	for k, v := range s.Intervals {
		cp := *v
		c.Intervals[k] = &cp
	}
	c.AlertTimes = make(map[float64]time.Time, len(s.AlertTimes))
	for k, v := range s.AlertTimes {
		c.AlertTimes[k] = v
	}
	c.PumpTimes = make(map[int]time.Time, len(s.PumpTimes))
	for k, v := range s.PumpTimes {
		c.PumpTimes[k] = v
	}
	if s.Live != nil {
		live := *s.Live
		c.Live = &live
	}
	if s.ATH != nil {
		ath := *s.ATH
		c.ATH = &ath
	}
	return &c
}

// Age returns how long the Signal has been tracked at now
func (s *Signal) Age(now time.Time) time.Duration {
	return now.Sub(s.ReceivedAt)
}

// CurrentMC is the most recent known market cap
func (s *Signal) CurrentMC() float64 {
	if s.Live != nil && s.Live.MarketCap > 0 {
		return s.Live.MarketCap
	}
	return s.EntryMC
}

// GainPercent is the current gain relative to entry, 0 when unknown
func (s *Signal) GainPercent() float64 {
	_, pct := Gain(s.EntryMC, s.CurrentMC())
	return pct
}

// SetLinks fills the explorer links from address and chain
func (s *Signal) SetLinks() {
	if s.Address == "" {
		return
	}
	chain := strings.ToLower(s.Chain)
	if chain == "" || chain == "sol" {
		chain = "solana"
	}
	s.DexURL = fmt.Sprintf("https://dexscreener.com/%s/%s", chain, s.Address)
	if chain == "solana" {
		s.PumpURL = "https://pump.fun/" + s.Address
	}
}

// Label identifies the Signal in logs
func (s *Signal) Label() string {
	if s.TokenName != "" {
		return s.TokenName
	}
	if s.Address != "" {
		return truncate(s.Address, 8)
	}
	return fmt.Sprintf("row-%d", s.RowID)
}

// AlertEvent is a parsed out-of-band milestone message
type AlertEvent struct {
	Multiplier     float64
	TokenName      string
	Elapsed        string
	Address        string
	EntryMC        float64
	CurrentMC      float64
	GainMultiplier float64
	PeakMultiplier float64
	ObservedAt     time.Time
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
