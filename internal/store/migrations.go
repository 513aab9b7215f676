package store

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// Migration defines a database schema migration.
type Migration struct {
	Table  string
	Column string
	Def    string
}

// pendingMigrations lists all schema migrations to apply. These handle
// databases created before the column existed.
var pendingMigrations = []Migration{
	// Pattern provenance columns (added with the correction flow)
	{"patterns", "corrected_from", "TEXT NOT NULL DEFAULT ''"},
	{"patterns", "corrected_by", "TEXT NOT NULL DEFAULT ''"},
	// Pattern source reference (added with backfill registration)
	{"patterns", "source_ref", "TEXT NOT NULL DEFAULT ''"},
	// Profile quest state (added with the training tracker)
	{"profiles", "active_quest", "TEXT NOT NULL DEFAULT ''"},
	{"profiles", "quest_progress", "TEXT NOT NULL DEFAULT '{}'"},
	{"profiles", "completed_trainings", "TEXT NOT NULL DEFAULT '[]'"},
	// Flag context (added with the shield listener flow)
	{"problematic_flags", "context", "TEXT NOT NULL DEFAULT ''"},
}

// RunMigrations applies schema migrations for existing databases.
func RunMigrations(db *sql.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	applied := 0
	for _, m := range pendingMigrations {
		if !tableExists(db, m.Table) {
			continue
		}
		if columnExists(db, m.Table, m.Column) {
			continue
		}
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := db.Exec(query); err != nil {
			// The column may already exist in a different form.
			logger.Warn("migration failed",
				zap.String("table", m.Table),
				zap.String("column", m.Column),
				zap.Error(err))
			continue
		}
		applied++
	}
	if applied > 0 {
		logger.Info("schema migrations applied", zap.Int("count", applied))
	}
	return nil
}

// tableExists checks sqlite_master for the table.
func tableExists(db *sql.DB, table string) bool {
	var name string
	err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
	return err == nil
}

// columnExists checks PRAGMA table_info for the column.
func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid, notnull, pk int
		var name, ctype string
		var dflt interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}
