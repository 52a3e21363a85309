package archive

import (
	"context"
	"fmt"

	"github.com/wonny/aegis-ingest/internal/contracts"
	"github.com/wonny/aegis-ingest/pkg/config"
	"github.com/wonny/aegis-ingest/pkg/database"
	"github.com/wonny/aegis-ingest/pkg/logger"
)

// pgArchive closes the pool together with the store
type pgArchive struct {
	*PostgresStore
	db *database.DB
}

func (a *pgArchive) Close() error {
	a.db.Close()
	return nil
}

// Open returns the archive backend selected by ARCHIVE_BACKEND
func Open(ctx context.Context, cfg *config.Config, dir string, log *logger.Logger) (contracts.Archive, error) {
	switch cfg.Archive.Backend {
	case "", "parquet":
		return NewParquetStore(dir, log), nil
	case "postgres":
		db, err := database.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store := NewPostgresStore(db.Pool, log)
		if err := store.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return &pgArchive{PostgresStore: store, db: db}, nil
	}
	return nil, fmt.Errorf("unknown archive backend %q", cfg.Archive.Backend)
}
