package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fieldflow/fieldflow/pkg/persistence"
	"github.com/fieldflow/fieldflow/pkg/persistence/file"
	"github.com/fieldflow/fieldflow/pkg/persistence/memory"
	"github.com/fieldflow/fieldflow/pkg/persistence/postgresql"
)

// NewPersistence builds the storage layer from a database URL.
// postgres:// URLs select PostgreSQL, "memory" selects the in-memory store,
// and anything else is treated as a file persistence root directory.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to initialize postgresql persistence: %w", err))
		}

		return p
	case databaseURL == "memory", databaseURL == "memory://":
		return memory.NewPersistence()
	default:
		p, err := file.NewPersistence(databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to initialize file persistence: %w", err))
		}

		return p
	}
}

// runStoreOverride keeps workflow storage on the base persistence while
// serving run history and counters from a shared store, typically Redis so
// the run-once and daily-cap gates stay consistent across workers.
type runStoreOverride struct {
	persistence.Persistence

	history  persistence.RunHistory
	counters persistence.CounterStore
}

func (o *runStoreOverride) RunHistory() persistence.RunHistory { return o.history }

func (o *runStoreOverride) Counters() persistence.CounterStore { return o.counters }

// WithRunStore overrides the run history and counter surfaces of a
// persistence layer.
func WithRunStore(base persistence.Persistence, history persistence.RunHistory, counters persistence.CounterStore) persistence.Persistence {
	return &runStoreOverride{Persistence: base, history: history, counters: counters}
}
