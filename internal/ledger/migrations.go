package ledger

import (
	"fmt"
)

// Migration represents a database schema migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// migrations is the ordered list of all migrations
// New migrations should be appended to the end with incrementing version numbers
var migrations = []Migration{
	{
		Version:     1,
		Description: "Accounts and transfer history",
		SQL: `
		CREATE TABLE IF NOT EXISTS accounts (
			owner TEXT NOT NULL,
			asset TEXT NOT NULL,
			balance INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (owner, asset)
		);

		CREATE TABLE IF NOT EXISTS transfers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			from_owner TEXT NOT NULL DEFAULT '',
			to_owner TEXT NOT NULL DEFAULT '',
			asset TEXT NOT NULL,
			amount INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_transfers_from ON transfers(from_owner);
		CREATE INDEX IF NOT EXISTS idx_transfers_to ON transfers(to_owner);
		`,
	},
	{
		Version:     2,
		Description: "Users and persistent sessions",
		SQL: `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			expires_at DATETIME NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
		CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);
		`,
	},
}

// initMigrationsTable creates the migrations tracking table
func (s *Store) initMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// getCurrentVersion returns the highest applied migration version
func (s *Store) getCurrentVersion() (int, error) {
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// Migrate runs all pending migrations
func (s *Store) Migrate() error {
	if err := s.initMigrationsTable(); err != nil {
		return fmt.Errorf("failed to init migrations table: %w", err)
	}

	currentVersion, err := s.getCurrentVersion()
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		if err := s.applyMigration(m); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
	}

	return nil
}

// applyMigration runs a single migration in a transaction
func (s *Store) applyMigration(m Migration) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Run the migration SQL
	if _, err := tx.Exec(m.SQL); err != nil {
		return err
	}

	// Record the migration
	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
		m.Version, m.Description,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// MigrationStatus returns applied and pending migrations
func (s *Store) MigrationStatus() (applied []int, pending []int, err error) {
	if err := s.initMigrationsTable(); err != nil {
		return nil, nil, err
	}

	rows, err := s.db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	appliedSet := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, nil, err
		}
		applied = append(applied, v)
		appliedSet[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	for _, m := range migrations {
		if !appliedSet[m.Version] {
			pending = append(pending, m.Version)
		}
	}

	return applied, pending, nil
}
