package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"signal-tracker/internal/storage"
	"signal-tracker/internal/storage/memory"
	"signal-tracker/internal/storage/sheets"
)

// OpenStore opens the row store selected by storage.driver
func (c *Config) OpenStore(ctx context.Context) (storage.Store, error) {
	switch c.Storage.Driver {
	case "memory":
		return memory.NewSignalStore(), nil
	case "sheets":
		p := c.Policy()
		sc := c.Storage.Sheets
		return sheets.New(ctx, sheets.Config{
			CredentialsFile: sc.CredentialsFile,
			SpreadsheetID:   sc.SpreadsheetID,
			Sheet:           sc.Sheet,
		}, storage.Layout(p.Checkpoints, p.Thresholds, p.Milestones))
	case "", "sqlite":
		if dir := filepath.Dir(c.Storage.SQLitePath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		return storage.NewDB(c.Storage.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
}
