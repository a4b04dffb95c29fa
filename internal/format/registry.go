package format

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Field names a semantic value extracted from a signal message
type Field string

const (
	FieldTokenName  Field = "token_name"
	FieldChain      Field = "chain"
	FieldPrice      Field = "price"
	FieldMarketCap  Field = "market_cap"
	FieldLiquidity  Field = "liquidity"
	FieldVolume24h  Field = "volume_24h"
	FieldBundlesPct Field = "bundles_pct"
	FieldSnipersPct Field = "snipers_pct"
	FieldDevPct     Field = "dev_pct"
	FieldConfidence Field = "confidence"
	FieldAddress    Field = "address"
)

// AllFields lists every field a descriptor may define, in extraction order
var AllFields = []Field{
	FieldTokenName, FieldChain, FieldPrice, FieldMarketCap, FieldLiquidity,
	FieldVolume24h, FieldBundlesPct, FieldSnipersPct, FieldDevPct,
	FieldConfidence, FieldAddress,
}

// Rule extracts one field. Group 1 holds the value; for scalable numbers
// group 2 (optional) holds the magnitude suffix.
type Rule struct {
	Pattern *regexp.Regexp
}

// Match returns the value and suffix captured by the rule
func (r Rule) Match(text string) (value, suffix string, ok bool) {
	if r.Pattern == nil {
		return "", "", false
	}
	m := r.Pattern.FindStringSubmatch(text)
	if m == nil || len(m) < 2 {
		return "", "", false
	}
	value = strings.TrimSpace(m[1])
	if len(m) > 2 {
		suffix = strings.TrimSpace(m[2])
	}
	return value, suffix, value != ""
}

// Descriptor is an immutable named message layout
type Descriptor struct {
	Name     string
	Rules    map[Field]Rule
	Suffixes map[string]float64

	// OracleName marks layouts whose embedded token name is unreliable;
	// the oracle's name wins when available.
	OracleName bool
}

// Rule returns the extraction rule for a field
func (d *Descriptor) Rule(f Field) (Rule, bool) {
	r, ok := d.Rules[f]
	return r, ok
}

// Scale returns the multiplier for a magnitude suffix (1 when unknown)
func (d *Descriptor) Scale(suffix string) float64 {
	if suffix == "" {
		return 1
	}
	table := d.Suffixes
	if table == nil {
		table = DefaultSuffixes
	}
	if v, ok := table[strings.ToUpper(suffix)]; ok {
		return v
	}
	return 1
}

// DefaultSuffixes is the K/M/B magnitude table
var DefaultSuffixes = map[string]float64{
	"K": 1e3,
	"M": 1e6,
	"B": 1e9,
}

// Spec is the data-only form of a descriptor, as read from configuration
type Spec struct {
	Name       string            `mapstructure:"name"`
	Patterns   map[string]string `mapstructure:"patterns"`
	OracleName bool              `mapstructure:"oracle_name"`
}

// Compile turns a data-only spec into a descriptor
func Compile(s Spec) (*Descriptor, error) {
	if s.Name == "" {
		return nil, fmt.Errorf("format: empty name")
	}
	d := &Descriptor{
		Name:       s.Name,
		Rules:      make(map[Field]Rule, len(s.Patterns)),
		Suffixes:   DefaultSuffixes,
		OracleName: s.OracleName,
	}
	for k, p := range s.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("format %s: field %s: %w", s.Name, k, err)
		}
		d.Rules[Field(k)] = Rule{Pattern: re}
	}
	return d, nil
}

// Registry maps channels to message layouts
type Registry struct {
	mu          sync.RWMutex
	formats     map[string]*Descriptor
	channels    map[int64]string
	defaultName string
}

// NewRegistry creates a registry seeded with the built-in layouts
func NewRegistry() *Registry {
	r := &Registry{
		formats:     make(map[string]*Descriptor),
		channels:    make(map[int64]string),
		defaultName: Standard,
	}
	for _, d := range Builtin() {
		r.formats[d.Name] = d
	}
	return r
}

// Register adds or replaces a named layout
func (r *Registry) Register(d *Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.formats[d.Name] = d
}

// Assign binds a channel to a named layout
func (r *Registry) Assign(channelID int64, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[channelID] = name
}

// SetAssignments replaces every channel binding
func (r *Registry) SetAssignments(channels map[int64]string) {
	next := make(map[int64]string, len(channels))
	for id, name := range channels {
		next[id] = name
	}
	r.mu.Lock()
	r.channels = next
	r.mu.Unlock()
}

// SetDefault changes the layout used for unassigned channels
func (r *Registry) SetDefault(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultName = name
}

// Get returns a layout by name
func (r *Registry) Get(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.formats[name]
	return d, ok
}

// Names returns the registered layout names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.formats))
	for n := range r.formats {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the layout for a channel. It never fails: unknown
// assignments fall back to the default, and an unknown default falls
// back to the standard layout.
func (r *Registry) Resolve(channelID int64) *Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name, ok := r.channels[channelID]; ok {
		if d, ok := r.formats[name]; ok {
			return d
		}
	}
	if d, ok := r.formats[r.defaultName]; ok {
		return d
	}
	return r.formats[Standard]
}
