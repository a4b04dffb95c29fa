// Package storage persists tracked signals behind a named-field interface.
package storage

import (
	"context"
	"errors"

	"signal-tracker/internal/signal"
)

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("storage: not found")
	// ErrDuplicateKey is returned when an active signal already tracks the address
	ErrDuplicateKey = errors.New("storage: duplicate key")
	// ErrUnknownField is returned for field names the store cannot map
	ErrUnknownField = errors.New("storage: unknown field")
	// ErrInvalidInput is returned for values of the wrong type
	ErrInvalidInput = errors.New("storage: invalid input")
)

// Fields is a partial row update keyed by field name
type Fields map[Field]any

// Store holds one row per Signal. Updates touch only the named fields.
type Store interface {
	Append(ctx context.Context, s *signal.Signal) (int64, error)
	ListActive(ctx context.Context) ([]*signal.Signal, error)
	UpdateFields(ctx context.Context, rowID int64, fields Fields) error
	GetField(ctx context.Context, rowID int64, field Field) (any, error)

	Get(ctx context.Context, rowID int64) (*signal.Signal, error)
	FindByMessage(ctx context.Context, channelID, messageID int64) (*signal.Signal, error)
	FindByAddress(ctx context.Context, address string) (*signal.Signal, error)
	Recent(ctx context.Context, limit int) ([]*signal.Signal, error)
	Ping(ctx context.Context) error
	Close() error
}

// Compile-time interface check
var _ Store = (*DB)(nil)
