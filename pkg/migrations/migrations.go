package migrations

import (
	"database/sql"
	"fmt"
	"sort"
)

type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// Migration is one schema step. SQL is keyed by dialect.
type Migration struct {
	Version     int
	Description string
	SQL         map[Dialect]string
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "photos table",
		SQL: map[Dialect]string{
			Postgres: `
CREATE TABLE IF NOT EXISTS photos (
  id BIGSERIAL PRIMARY KEY,
  is_horizontal BOOLEAN NOT NULL DEFAULT FALSE,
  photo_url VARCHAR(255) NOT NULL,
  name VARCHAR(255) NOT NULL
);`,
			SQLite: `
CREATE TABLE IF NOT EXISTS photos (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  is_horizontal INTEGER NOT NULL DEFAULT 0,
  photo_url TEXT NOT NULL,
  name TEXT NOT NULL
);`,
		},
	},
	{
		Version:     2,
		Description: "unique photo names",
		SQL: map[Dialect]string{
			Postgres: `CREATE UNIQUE INDEX IF NOT EXISTS idx_photos_name ON photos(name);`,
			SQLite:   `CREATE UNIQUE INDEX IF NOT EXISTS idx_photos_name ON photos(name);`,
		},
	},
}

func migrationsTable(d Dialect) string {
	ts := "TIMESTAMPTZ NOT NULL DEFAULT now()"
	if d == SQLite {
		ts = "TEXT NOT NULL DEFAULT (datetime('now'))"
	}
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at %s
);`, ts)
}

// CurrentVersion returns the highest applied version, 0 for an empty database.
func CurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// Latest is the version a fully migrated database reports.
func Latest() int {
	latest := 0
	for _, m := range migrations {
		if m.Version > latest {
			latest = m.Version
		}
	}
	return latest
}

// Migrate applies every pending migration, each in its own transaction.
func Migrate(db *sql.DB, dialect Dialect) error {
	if _, err := db.Exec(migrationsTable(dialect)); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	current, err := CurrentVersion(db)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	insert := "INSERT INTO schema_migrations (version) VALUES ($1)"
	if dialect == SQLite {
		insert = "INSERT INTO schema_migrations (version) VALUES (?)"
	}

	for _, m := range sorted {
		if m.Version <= current {
			continue
		}
		stmt, ok := m.SQL[dialect]
		if !ok {
			return fmt.Errorf("migration %d has no %s variant", m.Version, dialect)
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.Exec(insert, m.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}
