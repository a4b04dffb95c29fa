// Package sheets stores signals as rows of a Google Sheets worksheet.
// Columns are located by header name, so reordering or inserting columns
// in the sheet never breaks updates.
package sheets

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	gsheets "google.golang.org/api/sheets/v4"

	"signal-tracker/internal/format"
	"signal-tracker/internal/signal"
	"signal-tracker/internal/storage"
)

// TimeLayout is the cell format for timestamps (UTC)
const TimeLayout = "2006-01-02 15:04:05"

// Config selects the spreadsheet and worksheet
type Config struct {
	CredentialsFile string
	SpreadsheetID   string
	Sheet           string
}

// Store implements storage.Store over one worksheet. Row ids are sheet
// row numbers; row 1 holds the headers.
type Store struct {
	api   valuesAPI
	sheet string

	writeMu sync.Mutex

	mu      sync.RWMutex
	columns map[storage.Field]int
	width   int
}

var _ storage.Store = (*Store)(nil)

// New connects to the spreadsheet and makes sure every layout column exists
func New(ctx context.Context, cfg Config, layout []storage.Field) (*Store, error) {
	api, err := newServiceAPI(ctx, cfg.CredentialsFile, cfg.SpreadsheetID)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newStore(ctx, api, cfg.Sheet, layout)
}

func newStore(ctx context.Context, api valuesAPI, sheet string, layout []storage.Field) (*Store, error) {
	if sheet == "" {
		sheet = "Signals"
	}
	s := &Store{api: api, sheet: sheet}
	if err := s.ensureHeaders(ctx, layout); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureHeaders(ctx context.Context, layout []storage.Field) error {
	rows, err := s.api.get(ctx, s.sheet+"!1:1")
	if err != nil {
		return fmt.Errorf("read headers: %w", err)
	}

	var header []any
	if len(rows) > 0 {
		header = rows[0]
	}

	columns := make(map[storage.Field]int)
	for i, h := range header {
		name := storage.Field(strings.ToLower(strings.TrimSpace(fmt.Sprint(h))))
		if _, ok := storage.KindOf(name); ok {
			if _, dup := columns[name]; !dup {
				columns[name] = i
			}
		}
	}

	changed := false
	for _, f := range layout {
		if _, ok := columns[f]; ok {
			continue
		}
		columns[f] = len(header)
		header = append(header, string(f))
		changed = true
	}

	if changed {
		if err := s.api.update(ctx, s.sheet+"!A1", [][]any{header}); err != nil {
			return fmt.Errorf("write headers: %w", err)
		}
		log.Info().Str("sheet", s.sheet).Int("columns", len(header)).Msg("sheet headers updated")
	}

	s.mu.Lock()
	s.columns = columns
	s.width = len(header)
	s.mu.Unlock()
	return nil
}

// Append writes a new row and returns its sheet row number
func (s *Store) Append(ctx context.Context, sig *signal.Signal) (int64, error) {
	if sig.Address != "" {
		all, err := s.readAll(ctx)
		if err != nil {
			return 0, err
		}
		for _, r := range all {
			if r.Address == sig.Address && r.Status == signal.StatusActive {
				return 0, fmt.Errorf("%w: address %s tracked by row %d", storage.ErrDuplicateKey, sig.Address, r.RowID)
			}
		}
	}

	row := sig.Clone()
	if row.Status == "" {
		row.Status = signal.StatusActive
	}

	s.mu.RLock()
	cells := make([]any, s.width)
	for i := range cells {
		cells[i] = ""
	}
	for f, col := range s.columns {
		v, err := storage.Value(row, f)
		if err != nil || v == nil {
			continue
		}
		cells[col] = cellValue(v)
	}
	s.mu.RUnlock()

	updated, err := s.api.append(ctx, s.sheet+"!A1", [][]any{cells})
	if err != nil {
		return 0, fmt.Errorf("append row: %w", err)
	}
	id, ok := rowFromRange(updated)
	if !ok {
		return 0, fmt.Errorf("append row: unexpected range %q", updated)
	}
	return id, nil
}

// ListActive returns every active row
func (s *Store) ListActive(ctx context.Context) ([]*signal.Signal, error) {
	all, err := s.readAll(ctx)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, r := range all {
		if r.Status == signal.StatusActive {
			active = append(active, r)
		}
	}
	return active, nil
}

// UpdateFields writes the named cells of one row in a single batch.
// Filled checkpoint and mark cells are left unchanged. Monotonic and
// appended fields are merged against a fresh read of the row; writes are
// serialized so two merges never interleave.
func (s *Store) UpdateFields(ctx context.Context, rowID int64, fields storage.Fields) error {
	if len(fields) == 0 {
		return nil
	}
	if rowID < 2 {
		return fmt.Errorf("%w: row %d", storage.ErrNotFound, rowID)
	}

	needRead := false
	for f, v := range fields {
		if _, ok := storage.KindOf(f); !ok {
			return fmt.Errorf("%w: %s", storage.ErrUnknownField, f)
		}
		if _, appended := v.(storage.AppendLine); appended || storage.IsSlot(f) || storage.Monotonic(f) {
			needRead = true
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var current *signal.Signal
	if needRead {
		var err error
		if current, err = s.Get(ctx, rowID); err != nil {
			return err
		}
	}

	s.mu.RLock()
	var data []*gsheets.ValueRange
	for f, v := range fields {
		col, ok := s.columns[f]
		if !ok {
			log.Debug().Str("field", string(f)).Msg("no sheet column for field, skipping")
			continue
		}
		if current != nil {
			merged, write, err := mergeCell(current, f, v)
			if err != nil {
				s.mu.RUnlock()
				return err
			}
			if !write {
				continue
			}
			v = merged
		}
		data = append(data, &gsheets.ValueRange{
			Range:  fmt.Sprintf("%s!%s%d", s.sheet, columnName(col), rowID),
			Values: [][]any{{cellValue(v)}},
		})
	}
	s.mu.RUnlock()

	if len(data) == 0 {
		return nil
	}
	sort.Slice(data, func(i, j int) bool { return data[i].Range < data[j].Range })
	return s.api.batchUpdate(ctx, data)
}

// mergeCell resolves the value to write for f against the stored row.
// write is false when the stored cell already wins.
func mergeCell(current *signal.Signal, f storage.Field, v any) (any, bool, error) {
	_, appended := v.(storage.AppendLine)
	switch {
	case storage.IsSlot(f):
		existing, _ := storage.Value(current, f)
		return v, existing == nil, nil
	case appended || storage.Monotonic(f):
		before, _ := storage.Value(current, f)
		if err := storage.Merge(current, f, v); err != nil {
			return nil, false, err
		}
		after, err := storage.Value(current, f)
		if err != nil {
			return nil, false, err
		}
		return after, after != before, nil
	}
	return v, true, nil
}

// GetField reads one cell
func (s *Store) GetField(ctx context.Context, rowID int64, field storage.Field) (any, error) {
	kind, ok := storage.KindOf(field)
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownField, field)
	}
	s.mu.RLock()
	col, ok := s.columns[field]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no column for %s", storage.ErrUnknownField, field)
	}

	rows, err := s.api.get(ctx, fmt.Sprintf("%s!%s%d", s.sheet, columnName(col), rowID))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, nil
	}
	return parseCell(kind, rows[0][0])
}

// Get reads one row
func (s *Store) Get(ctx context.Context, rowID int64) (*signal.Signal, error) {
	if rowID < 2 {
		return nil, storage.ErrNotFound
	}
	s.mu.RLock()
	last := columnName(s.width - 1)
	s.mu.RUnlock()

	rows, err := s.api.get(ctx, fmt.Sprintf("%s!A%d:%s%d", s.sheet, rowID, last, rowID))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || isEmpty(rows[0]) {
		return nil, storage.ErrNotFound
	}
	return s.toSignal(rowID, rows[0]), nil
}

// FindByMessage returns the newest row with the origin message
func (s *Store) FindByMessage(ctx context.Context, channelID, messageID int64) (*signal.Signal, error) {
	all, err := s.readAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := len(all) - 1; i >= 0; i-- {
		r := all[i]
		if r.MessageID == messageID && (channelID == 0 || r.ChannelID == channelID) {
			return r, nil
		}
	}
	return nil, storage.ErrNotFound
}

// FindByAddress returns the row tracking address, preferring active rows
func (s *Store) FindByAddress(ctx context.Context, address string) (*signal.Signal, error) {
	if address == "" {
		return nil, storage.ErrNotFound
	}
	all, err := s.readAll(ctx)
	if err != nil {
		return nil, err
	}
	var fallback *signal.Signal
	for i := len(all) - 1; i >= 0; i-- {
		r := all[i]
		if r.Address != address {
			continue
		}
		if r.Status == signal.StatusActive {
			return r, nil
		}
		if fallback == nil {
			fallback = r
		}
	}
	if fallback == nil {
		return nil, storage.ErrNotFound
	}
	return fallback, nil
}

// Recent returns the last rows of the sheet, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]*signal.Signal, error) {
	all, err := s.readAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*signal.Signal, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Ping reads the header row
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.api.get(ctx, s.sheet+"!1:1")
	return err
}

// Close is a no-op
func (s *Store) Close() error { return nil }

func (s *Store) readAll(ctx context.Context) ([]*signal.Signal, error) {
	s.mu.RLock()
	last := columnName(s.width - 1)
	s.mu.RUnlock()

	rows, err := s.api.get(ctx, fmt.Sprintf("%s!A2:%s", s.sheet, last))
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	out := make([]*signal.Signal, 0, len(rows))
	for i, cells := range rows {
		if isEmpty(cells) {
			continue
		}
		out = append(out, s.toSignal(int64(i+2), cells))
	}
	return out, nil
}

func (s *Store) toSignal(rowID int64, cells []any) *signal.Signal {
	sig := signal.New(signal.Meta{})
	sig.RowID = rowID
	sig.Status = ""

	s.mu.RLock()
	defer s.mu.RUnlock()
	for f, col := range s.columns {
		if col >= len(cells) {
			continue
		}
		kind, _ := storage.KindOf(f)
		v, err := parseCell(kind, cells[col])
		if err != nil {
			log.Debug().Err(err).Int64("row", rowID).Str("field", string(f)).Msg("unreadable cell")
			continue
		}
		if v == nil {
			continue
		}
		if err := storage.Apply(sig, f, v); err != nil {
			log.Debug().Err(err).Int64("row", rowID).Str("field", string(f)).Msg("cell not applied")
		}
	}
	if sig.Status == "" {
		sig.Status = signal.StatusActive
	}
	// Zero-filled live and ATH cells mean "not observed yet"
	if sig.Live != nil && sig.Live.At.IsZero() {
		sig.Live = nil
	}
	if sig.ATH != nil && sig.ATH.At.IsZero() {
		sig.ATH = nil
	}
	return sig
}

func isEmpty(cells []any) bool {
	for _, c := range cells {
		if strings.TrimSpace(fmt.Sprint(c)) != "" {
			return false
		}
	}
	return true
}

func cellValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		if x.IsZero() {
			return ""
		}
		return x.UTC().Format(TimeLayout)
	case signal.Status:
		return string(x)
	case int:
		return int64(x)
	}
	return v
}

// parseCell converts a raw cell into the Go type of kind. Empty cells
// return nil.
func parseCell(kind storage.Kind, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	if str, ok := raw.(string); ok {
		str = strings.TrimSpace(str)
		if str == "" {
			return nil, nil
		}
		raw = str
	}

	switch kind {
	case storage.KindFloat:
		switch x := raw.(type) {
		case float64:
			return x, nil
		case int64:
			return float64(x), nil
		case string:
			clean := strings.NewReplacer(",", "", "%", "", "x", "").Replace(x)
			return format.ParseAmount(clean)
		}
	case storage.KindInt:
		switch x := raw.(type) {
		case float64:
			return int64(x), nil
		case int64:
			return x, nil
		case string:
			return strconv.ParseInt(strings.ReplaceAll(x, ",", ""), 10, 64)
		}
	case storage.KindTime:
		if x, ok := raw.(string); ok {
			return time.ParseInLocation(TimeLayout, x, time.UTC)
		}
	default:
		return fmt.Sprint(raw), nil
	}
	return nil, fmt.Errorf("unexpected cell %T", raw)
}

var rowInRange = regexp.MustCompile(`![A-Z]+(\d+)`)

func rowFromRange(rng string) (int64, bool) {
	m := rowInRange.FindStringSubmatch(rng)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	return n, err == nil
}

// columnName converts a zero-based index to A1 letters
func columnName(i int) string {
	name := ""
	for i >= 0 {
		name = string(rune('A'+i%26)) + name
		i = i/26 - 1
	}
	return name
}
