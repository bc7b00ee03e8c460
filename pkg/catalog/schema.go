package catalog

import (
	"database/sql"
	"fmt"

	"github.com/chrissnell/fluxdata/internal/log"
	"github.com/chrissnell/fluxdata/pkg/migrate"
	"go.uber.org/zap"
)

// Schema gives access to the catalog's schema version without migrating it
// on open.
type Schema struct {
	*migrate.Migrator
	db *sql.DB
}

// OpenSchema opens the catalog database at path for schema inspection and
// migration.
func OpenSchema(path string, logger *zap.SugaredLogger) (*Schema, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping catalog database: %w", err)
	}

	m := migrate.NewMigrator(db, migrate.NewFSProvider(migrations, "migrations", ""), log.OrNop(logger))
	return &Schema{Migrator: m, db: db}, nil
}

// Close closes the database.
func (s *Schema) Close() error {
	return s.db.Close()
}
