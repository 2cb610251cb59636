package history

import (
	"fmt"
	"log/slog"

	"mercator-hq/backlog/pkg/config"
)

// Open builds the ledger described by cfg. It returns ErrDisabled when the
// ledger is switched off.
func Open(cfg config.HistoryConfig, logger *slog.Logger) (Storage, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	switch cfg.Backend {
	case "memory":
		return NewMemoryStorage(), nil
	case "sqlite", "":
		return NewSQLStorage(SQLConfig{
			Driver:      cfg.SQLite.Driver,
			Path:        cfg.SQLite.Path,
			BusyTimeout: cfg.SQLite.BusyTimeout,
			WALMode:     cfg.SQLite.WALMode,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.Backend)
	}
}
