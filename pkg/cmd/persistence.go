package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/flowlet-io/flowlet/pkg/persistence"
	"github.com/flowlet-io/flowlet/pkg/persistence/file"
	"github.com/flowlet-io/flowlet/pkg/persistence/memory"
	"github.com/flowlet-io/flowlet/pkg/persistence/postgresql"
)

// NewPersistence selects the persistence backend from the database URL
// scheme: postgres://, file://, or memory://.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parseProvider(databaseURL) {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(err)
		}

		return p
	case "memory":
		return memory.NewPersistence()
	default:
		return file.NewPersistence(databaseURL)
	}
}

func parseProvider(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return scheme
}
