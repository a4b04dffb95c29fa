package config

import (
	"context"
	"path/filepath"
	"testing"

	"signal-tracker/internal/storage"
	"signal-tracker/internal/storage/memory"
)

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	mem := &Config{Storage: StorageConfig{Driver: "memory"}}
	st, err := mem.OpenStore(ctx)
	if err != nil {
		t.Fatalf("memory driver: %v", err)
	}
	if _, ok := st.(*memory.SignalStore); !ok {
		t.Errorf("expected memory store, got %T", st)
	}

	path := filepath.Join(t.TempDir(), "nested", "signals.db")
	lite := &Config{Storage: StorageConfig{Driver: "sqlite", SQLitePath: path}}
	st, err = lite.OpenStore(ctx)
	if err != nil {
		t.Fatalf("sqlite driver: %v", err)
	}
	defer st.Close()
	if _, ok := st.(*storage.DB); !ok {
		t.Errorf("expected sqlite store, got %T", st)
	}
	if err := st.Ping(ctx); err != nil {
		t.Errorf("ping: %v", err)
	}

	bad := &Config{Storage: StorageConfig{Driver: "postgres"}}
	if _, err := bad.OpenStore(ctx); err == nil {
		t.Error("expected error for unknown driver")
	}
}
