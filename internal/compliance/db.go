package compliance

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Open opens (creating if needed) the application database and applies the
// schema migrations.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to ensure database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates the compliance tables. Every statement is idempotent.
func Migrate(db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS frameworks (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			version TEXT,
			is_master INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS controls (
			id TEXT PRIMARY KEY,
			framework_id TEXT NOT NULL,
			code TEXT NOT NULL,
			title TEXT NOT NULL,
			domain TEXT NOT NULL,
			description TEXT,
			FOREIGN KEY (framework_id) REFERENCES frameworks(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_controls_framework ON controls(framework_id, domain)`,
		`CREATE TABLE IF NOT EXISTS applications (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			owner TEXT,
			criticality TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS app_control_scores (
			app_id TEXT NOT NULL,
			control_id TEXT NOT NULL,
			score REAL NOT NULL,
			assessed_at DATETIME,
			PRIMARY KEY (app_id, control_id),
			FOREIGN KEY (app_id) REFERENCES applications(id),
			FOREIGN KEY (control_id) REFERENCES controls(id)
		)`,
		`CREATE TABLE IF NOT EXISTS control_mappings (
			framework_id TEXT NOT NULL,
			control_id TEXT NOT NULL,
			mapped_code TEXT,
			PRIMARY KEY (framework_id, control_id),
			FOREIGN KEY (framework_id) REFERENCES frameworks(id),
			FOREIGN KEY (control_id) REFERENCES controls(id)
		)`,
		`CREATE TABLE IF NOT EXISTS integrations (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			last_sync_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS score_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			app_id TEXT,
			taken_at DATETIME NOT NULL,
			score REAL NOT NULL,
			FOREIGN KEY (app_id) REFERENCES applications(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_app ON score_snapshots(app_id, taken_at)`,
	}
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}
