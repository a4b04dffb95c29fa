// Package memory provides an in-memory storage.Store for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"signal-tracker/internal/signal"
	"signal-tracker/internal/storage"
)

// SignalStore is an in-memory implementation of storage.Store.
type SignalStore struct {
	mu     sync.RWMutex
	rows   map[int64]*signal.Signal
	slots  map[int64]map[storage.Field]struct{} // write-once slot fields already set
	nextID int64
}

// Compile-time interface check
var _ storage.Store = (*SignalStore)(nil)

// NewSignalStore creates a new in-memory signal store.
func NewSignalStore() *SignalStore {
	return &SignalStore{
		rows:  make(map[int64]*signal.Signal),
		slots: make(map[int64]map[storage.Field]struct{}),
	}
}

// Append stores a copy of s. Fails on an active duplicate address.
func (m *SignalStore) Append(_ context.Context, s *signal.Signal) (int64, error) {
	if s == nil {
		return 0, storage.ErrInvalidInput
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s.Address != "" {
		for id, row := range m.rows {
			if row.Address == s.Address && row.Status == signal.StatusActive {
				return 0, fmt.Errorf("%w: address %s tracked by row %d", storage.ErrDuplicateKey, s.Address, id)
			}
		}
	}

	m.nextID++
	row := s.Clone()
	row.RowID = m.nextID
	if row.Status == "" {
		row.Status = signal.StatusActive
	}
	m.rows[row.RowID] = row
	m.slots[row.RowID] = make(map[storage.Field]struct{})
	return row.RowID, nil
}

// ListActive returns copies of active rows ordered by row id.
func (m *SignalStore) ListActive(_ context.Context) ([]*signal.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*signal.Signal
	for _, row := range m.rows {
		if row.Status == signal.StatusActive {
			out = append(out, row.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RowID < out[j].RowID })
	return out, nil
}

// UpdateFields applies a partial update under the store lock. Slot fields
// keep their first value, monotonic fields keep the larger value.
func (m *SignalStore) UpdateFields(_ context.Context, rowID int64, fields storage.Fields) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[rowID]
	if !ok {
		return fmt.Errorf("%w: row %d", storage.ErrNotFound, rowID)
	}

	// Validate everything before mutating
	next := row.Clone()
	written := m.slots[rowID]
	var newSlots []storage.Field
	for f, v := range fields {
		if storage.IsSlot(f) {
			if _, done := written[f]; done {
				continue
			}
			newSlots = append(newSlots, f)
		}
		if err := storage.Merge(next, f, v); err != nil {
			return err
		}
	}

	m.rows[rowID] = next
	for _, f := range newSlots {
		written[f] = struct{}{}
	}
	return nil
}

// GetField reads one field.
func (m *SignalStore) GetField(_ context.Context, rowID int64, field storage.Field) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.rows[rowID]
	if !ok {
		return nil, fmt.Errorf("%w: row %d", storage.ErrNotFound, rowID)
	}
	return storage.Value(row, field)
}

// Get returns a copy of one row.
func (m *SignalStore) Get(_ context.Context, rowID int64) (*signal.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.rows[rowID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return row.Clone(), nil
}

// FindByMessage returns the newest row with the origin message. A zero
// channel matches any channel.
func (m *SignalStore) FindByMessage(_ context.Context, channelID, messageID int64) (*signal.Signal, error) {
	return m.find(func(s *signal.Signal) bool {
		return s.MessageID == messageID && (channelID == 0 || s.ChannelID == channelID)
	}, false)
}

// FindByAddress returns the row tracking address, preferring active rows.
func (m *SignalStore) FindByAddress(_ context.Context, address string) (*signal.Signal, error) {
	if address == "" {
		return nil, storage.ErrNotFound
	}
	return m.find(func(s *signal.Signal) bool { return s.Address == address }, true)
}

func (m *SignalStore) find(match func(*signal.Signal) bool, preferActive bool) (*signal.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *signal.Signal
	for _, row := range m.rows {
		if !match(row) {
			continue
		}
		if best == nil {
			best = row
			continue
		}
		rowActive := row.Status == signal.StatusActive
		bestActive := best.Status == signal.StatusActive
		switch {
		case preferActive && rowActive != bestActive:
			if rowActive {
				best = row
			}
		case row.RowID > best.RowID:
			best = row
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}
	return best.Clone(), nil
}

// Recent returns the newest rows by receive time.
func (m *SignalStore) Recent(_ context.Context, limit int) ([]*signal.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*signal.Signal, 0, len(m.rows))
	for _, row := range m.rows {
		out = append(out, row.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].RowID > out[j].RowID
		}
		return out[i].ReceivedAt.After(out[j].ReceivedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ping always succeeds.
func (m *SignalStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *SignalStore) Close() error { return nil }
