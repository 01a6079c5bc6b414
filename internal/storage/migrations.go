package storage

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationStatus describes applied and pending schema migrations.
type MigrationStatus struct {
	Current  string
	Pending  []string
	Total    int
	UpToDate bool
}

// Migrator applies the embedded schema migrations for the active dialect.
// Each migration has a postgres file (0001_init.sql) and an optional sqlite
// variant (0001_init_sqlite.sql); the variant wins on sqlite.
type Migrator struct {
	conn *Conn
}

// NewMigrator creates a migrator for conn.
func NewMigrator(conn *Conn) *Migrator {
	return &Migrator{conn: conn}
}

// Status reports pending migrations.
func (m *Migrator) Status(ctx context.Context) (*MigrationStatus, error) {
	if err := m.ensureSchemaMigrationsTable(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	versions, err := m.listMigrations()
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}

	status := &MigrationStatus{Total: len(versions), Pending: []string{}}
	for _, v := range versions {
		if _, ok := applied[v]; ok {
			status.Current = v
			continue
		}
		status.Pending = append(status.Pending, v)
	}
	status.UpToDate = len(status.Pending) == 0

	return status, nil
}

// Up applies every pending migration in order and returns the applied versions.
func (m *Migrator) Up(ctx context.Context) ([]string, error) {
	status, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}

	files := m.filesByVersion()
	for _, version := range status.Pending {
		body, err := migrationFiles.ReadFile("migrations/" + files[version])
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", version, err)
		}

		err = m.conn.WithTx(ctx, func(tx DB) error {
			if _, err := tx.ExecContext(ctx, string(body)); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("run migration %s: %w", version, err)
		}
	}

	return status.Pending, nil
}

func (m *Migrator) ensureSchemaMigrationsTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`
	if m.conn.Dialect() == DialectPostgres {
		query = `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version TEXT PRIMARY KEY,
				applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			)
		`
	}
	_, err := m.conn.ExecContext(ctx, query)
	return err
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[string]struct{}, error) {
	rows, err := m.conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]struct{})
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = struct{}{}
	}
	return applied, rows.Err()
}

func (m *Migrator) listMigrations() ([]string, error) {
	files := m.filesByVersion()
	if len(files) == 0 {
		return nil, fmt.Errorf("no migrations embedded")
	}
	versions := make([]string, 0, len(files))
	for v := range files {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions, nil
}

// filesByVersion maps a base name ("0001_init") to the file for the active dialect.
func (m *Migrator) filesByVersion() map[string]string {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		return nil
	}

	files := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		if strings.HasSuffix(name, "_sqlite.sql") {
			if m.conn.Dialect() == DialectSQLite {
				files[strings.TrimSuffix(name, "_sqlite.sql")] = name
			}
			continue
		}
		base := strings.TrimSuffix(name, ".sql")
		if _, ok := files[base]; !ok {
			files[base] = name
		}
	}
	return files
}
