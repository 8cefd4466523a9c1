package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"samedaydispatch/internal/domain"
	"samedaydispatch/internal/timeutil"
)

// InitSchema creates the package_snapshots table used by
// SqlitePackageSnapshotSink, kept close to the teacher's hand-rolled
// CREATE TABLE IF NOT EXISTS style rather than a migration tool —
// the SQLite path is the local/offline one (cmd/server's default),
// where the teacher itself never reached for golang-migrate.
func InitSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("init schema: DB is nil")
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS package_snapshots (
			package_id INTEGER NOT NULL,
			observed_at INTEGER NOT NULL,
			status TEXT NOT NULL,
			location_name TEXT NOT NULL,
			is_verified_address INTEGER NOT NULL,
			special_note TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_package_snapshots_package_id
		 ON package_snapshots(package_id);`,
	}

	for i, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	return tx.Commit()
}

// SqlitePackageSnapshotSink is a SQLite-backed ports.SnapshotSink,
// grounded on the teacher's SqlitePackageRepository's plain
// database/sql usage, adapted from a read-only repository to a
// write-only sink since this domain's packages originate from CSV,
// not the database.
type SqlitePackageSnapshotSink struct{ DB *sql.DB }

func NewSqlitePackageSnapshotSink(db *sql.DB) *SqlitePackageSnapshotSink {
	return &SqlitePackageSnapshotSink{DB: db}
}

func (s *SqlitePackageSnapshotSink) WriteSnapshot(ctx context.Context, packageID int, at timeutil.TimeOfDay, snap domain.StatusSnapshot) error {
	if s.DB == nil {
		return errors.New("sqlite snapshot sink: DB is nil")
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO package_snapshots (package_id, observed_at, status, location_name, is_verified_address, special_note)
		VALUES (?, ?, ?, ?, ?, ?)`,
		packageID, int(at), snap.Status.String(), snap.Location.Name, boolToInt(snap.IsVerifiedAddress), snap.SpecialNote,
	)
	if err != nil {
		return fmt.Errorf("sqlite snapshot sink: insert package_id=%d: %w", packageID, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
