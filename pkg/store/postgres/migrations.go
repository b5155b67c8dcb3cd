package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all schema migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					telegram_user_id BIGINT PRIMARY KEY,
					username VARCHAR(255) NOT NULL UNIQUE,
					role VARCHAR(16) NOT NULL DEFAULT 'none'
						CHECK (role IN ('admin', 'manager', 'none'))
				);
			`,
		},
		{
			Version:     2,
			Description: "Create projects table",
			SQL: `
				CREATE TABLE IF NOT EXISTS projects (
					id SERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL
				);
			`,
		},
		{
			Version:     3,
			Description: "Create stages table",
			SQL: `
				CREATE TABLE IF NOT EXISTS stages (
					id SERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					project_id INTEGER NOT NULL REFERENCES projects(id)
				);

				CREATE INDEX idx_stages_project_id ON stages(project_id);
			`,
		},
		{
			Version:     4,
			Description: "Create project_managers table",
			SQL: `
				CREATE TABLE IF NOT EXISTS project_managers (
					project_id INTEGER NOT NULL REFERENCES projects(id),
					telegram_user_id BIGINT NOT NULL REFERENCES users(telegram_user_id),
					UNIQUE (project_id, telegram_user_id)
				);

				CREATE INDEX idx_project_managers_user ON project_managers(telegram_user_id);
			`,
		},
		{
			Version:     5,
			Description: "Create stage_users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS stage_users (
					stage_id INTEGER NOT NULL REFERENCES stages(id),
					telegram_user_id BIGINT NOT NULL REFERENCES users(telegram_user_id),
					UNIQUE (stage_id, telegram_user_id)
				);

				CREATE INDEX idx_stage_users_user ON stage_users(telegram_user_id);
			`,
		},
	}
}

// RunMigrations applies all pending migrations inside transactions, tracking
// applied versions in schema_migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
