package signal

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"signal-tracker/internal/format"
	"signal-tracker/internal/oracle"
)

// Oracle resolves live market data for an address
type Oracle interface {
	Lookup(ctx context.Context, address string) (*oracle.Quote, error)
}

// structural keywords mark metric lines that never carry the token name
var structuralKeywords = []string{
	"contract", "chain", "price", "market", "liquidity", "volume",
	"bundles", "snipers", "dex", "confidence",
}

// Parser turns signal messages into Signal records
type Parser struct {
	oracle        Oracle
	logger        zerolog.Logger
	lookupTimeout time.Duration
}

// NewParser creates a parser. oracle may be nil to disable backfill.
func NewParser(o Oracle, logger zerolog.Logger, lookupTimeout time.Duration) *Parser {
	if lookupTimeout <= 0 {
		lookupTimeout = 10 * time.Second
	}
	return &Parser{
		oracle:        o,
		logger:        logger.With().Str("component", "parser").Logger(),
		lookupTimeout: lookupTimeout,
	}
}

// Parse extracts a Signal from text using the layout d.
// Failures are returned as ErrParse and never panic.
func (p *Parser) Parse(ctx context.Context, text string, d *format.Descriptor, meta Meta) (sig *Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			sig = nil
			err = fmt.Errorf("%w: %v", ErrParse, r)
		}
	}()

	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty message", ErrParse)
	}
	if d == nil {
		return nil, fmt.Errorf("%w: no format", ErrParse)
	}

	s := New(meta)
	p.extract(s, text, d)

	if s.TokenName == "" || strings.EqualFold(s.TokenName, "sponsored") {
		s.TokenName = fallbackName(text)
	}

	if s.Address != "" && !ValidAddress(s.Address) {
		p.logger.Debug().Str("address", s.Address).Msg("discarding short address")
		s.Address = ""
	}
	if s.Address == "" && s.TokenName == "" && s.EntryMC == 0 {
		return nil, fmt.Errorf("%w: no recognizable fields", ErrParse)
	}

	if s.Chain == "" && s.Address != "" && IsSolanaKey(s.Address) {
		s.Chain = "solana"
	}

	if s.Address != "" && (s.EntryPrice == 0 || s.EntryMC == 0 || d.OracleName) {
		p.backfill(ctx, s, d)
	}

	s.PeakMC = s.EntryMC
	s.PeakMultiplier = 1.0
	s.Status = StatusActive
	s.SetLinks()
	return s, nil
}

func (p *Parser) extract(s *Signal, text string, d *format.Descriptor) {
	for _, f := range format.AllFields {
		rule, ok := d.Rule(f)
		if !ok {
			continue
		}
		value, suffix, ok := rule.Match(text)
		if !ok {
			continue
		}

		switch f {
		case format.FieldTokenName:
			s.TokenName = sanitizeName(value)
		case format.FieldChain:
			s.Chain = value
		case format.FieldAddress:
			s.Address = value
		default:
			n, err := d.ParseScaled(value, suffix)
			if err != nil {
				p.logger.Debug().Err(err).Str("field", string(f)).Msg("unparseable number")
				continue
			}
			setNumber(s, f, n)
		}
	}
}

func setNumber(s *Signal, f format.Field, n float64) {
	switch f {
	case format.FieldPrice:
		s.EntryPrice = n
	case format.FieldMarketCap:
		s.EntryMC = n
	case format.FieldLiquidity:
		s.Liquidity = n
	case format.FieldVolume24h:
		s.Volume24h = n
	case format.FieldBundlesPct:
		s.BundlesPct = n
	case format.FieldSnipersPct:
		s.SnipersPct = n
	case format.FieldDevPct:
		s.DevPct = n
	case format.FieldConfidence:
		s.Confidence = n
	}
}

func (p *Parser) backfill(ctx context.Context, s *Signal, d *format.Descriptor) {
	if p.oracle == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, p.lookupTimeout)
	defer cancel()

	q, err := p.oracle.Lookup(ctx, s.Address)
	if err != nil {
		p.logger.Warn().Err(err).Str("address", s.Address).Msg("oracle backfill failed")
		return
	}

	if s.EntryPrice == 0 {
		s.EntryPrice = q.Price
	}
	if s.EntryMC == 0 {
		s.EntryMC = q.MarketCap
	}
	if s.Liquidity == 0 {
		s.Liquidity = q.Liquidity
	}
	if s.Volume24h == 0 {
		s.Volume24h = q.Volume24h
	}
	if s.Chain == "" {
		s.Chain = q.ChainID
	}
	if q.Name != "" && (d.OracleName || s.TokenName == "") {
		s.TokenName = sanitizeName(q.Name)
	}

	p.logger.Debug().
		Str("address", s.Address).
		Float64("price", s.EntryPrice).
		Float64("mc", s.EntryMC).
		Msg("backfilled from oracle")
}

// fallbackName returns the first line that is not blank, a sponsored
// marker, or a metric line
func fallbackName(text string) string {
	for _, line := range strings.Split(text, "\n") {
		clean := sanitizeName(line)
		if clean == "" {
			continue
		}
		lower := strings.ToLower(clean)
		if lower == "sponsored" {
			continue
		}
		if hasStructuralKeyword(strings.ToLower(line)) {
			continue
		}
		return clean
	}
	return ""
}

func hasStructuralKeyword(lower string) bool {
	for _, kw := range structuralKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func sanitizeName(s string) string {
	var b strings.Builder
	space := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			space = true
		}
	}
	return b.String()
}

// FormatValue renders a numeric field for display in its layout's style
func FormatValue(f format.Field, v float64) string {
	switch f {
	case format.FieldMarketCap, format.FieldLiquidity, format.FieldVolume24h:
		return "$" + format.FormatCompact(v)
	case format.FieldBundlesPct, format.FieldSnipersPct, format.FieldDevPct, format.FieldConfidence:
		return strconv.FormatFloat(v, 'f', -1, 64) + "%"
	default:
		return "$" + strconv.FormatFloat(v, 'f', -1, 64)
	}
}
