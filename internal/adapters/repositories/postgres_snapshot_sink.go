package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"samedaydispatch/internal/domain"
	"samedaydispatch/internal/timeutil"
)

// MigrateUp applies every migration under migrationsPath (a plain
// directory path; MigrateUp adds the "file://" scheme) to db, the golang-migrate equivalent of the
// SQLite path's hand-rolled InitSchema — used for the Postgres sink
// since cmd/dbtool already owned schema setup in the teacher and a
// migration tool is the idiomatic way the rest of the pack manages
// Postgres schema evolution.
func MigrateUp(db *sql.DB, migrationsPath string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migrate up: postgres driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate up: new migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: apply migrations: %w", err)
	}
	return nil
}

// PostgresSnapshotSink is a pgx/database-sql-backed ports.SnapshotSink,
// the Postgres counterpart of SqlitePackageSnapshotSink, grounded on
// the teacher's platform/db.Open connection pooling.
type PostgresSnapshotSink struct{ DB *sql.DB }

func NewPostgresSnapshotSink(db *sql.DB) *PostgresSnapshotSink {
	return &PostgresSnapshotSink{DB: db}
}

func (s *PostgresSnapshotSink) WriteSnapshot(ctx context.Context, packageID int, at timeutil.TimeOfDay, snap domain.StatusSnapshot) error {
	if s.DB == nil {
		return errors.New("postgres snapshot sink: DB is nil")
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO package_snapshots (package_id, observed_at, status, location_name, is_verified_address, special_note)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		packageID, int(at), snap.Status.String(), snap.Location.Name, snap.IsVerifiedAddress, snap.SpecialNote,
	)
	if err != nil {
		return fmt.Errorf("postgres snapshot sink: insert package_id=%d: %w", packageID, err)
	}
	return nil
}
