package db

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	"gorm.io/gorm"
)

// Migrations are kept per goose dialect under migrations/<dialect>.
//
//go:embed migrations/sqlite3/*.sql migrations/postgres/*.sql
var migrations embed.FS

// prepare points goose at the embedded migrations for the dialect of db and
// returns the directory to run.
func prepare(db *gorm.DB) (*sql.DB, string, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, "", err
	}
	d := dialect(db)
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect(d); err != nil {
		return nil, "", err
	}
	return sqlDB, "migrations/" + d, nil
}

func dialect(db *gorm.DB) string {
	if db.Dialector.Name() == "sqlite" {
		return "sqlite3"
	}
	return "postgres"
}

// Migrate runs all pending migrations.
func Migrate(db *gorm.DB) error {
	sqlDB, dir, err := prepare(db)
	if err != nil {
		return err
	}
	return goose.Up(sqlDB, dir)
}

// Rollback rolls back migrations.
func Rollback(db *gorm.DB, steps int) error {
	sqlDB, dir, err := prepare(db)
	if err != nil {
		return err
	}
	if steps <= 0 {
		steps = 1
	}
	for i := 0; i < steps; i++ {
		if err := goose.Down(sqlDB, dir); err != nil {
			return err
		}
	}
	return nil
}

// MigrationStatus prints the migration status.
func MigrationStatus(db *gorm.DB) error {
	sqlDB, dir, err := prepare(db)
	if err != nil {
		return err
	}
	return goose.Status(sqlDB, dir)
}

// CurrentVersion returns the latest applied migration version.
func CurrentVersion(db *gorm.DB) (int64, error) {
	sqlDB, _, err := prepare(db)
	if err != nil {
		return 0, err
	}
	return goose.GetDBVersion(sqlDB)
}

// NewMigration writes an empty timestamped SQL migration into dir.
func NewMigration(dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	file := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", time.Now().UTC().Format("20060102150405"), name))
	body := "-- +goose Up\n-- +goose StatementBegin\n\n-- +goose StatementEnd\n\n-- +goose Down\n-- +goose StatementBegin\n\n-- +goose StatementEnd\n"
	if err := os.WriteFile(file, []byte(body), 0o644); err != nil {
		return "", err
	}
	return file, nil
}

// CreateDB creates a PostgreSQL database by connecting to the 'postgres' default DB first.
func CreateDB(name string, host string, port int, user, password, sslMode string) error {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s sslmode=%s dbname=postgres",
		host, port, user, password, sslMode)
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("cannot connect to PostgreSQL: %w", err)
	}
	defer conn.Close()

	_, err = conn.Exec(fmt.Sprintf("CREATE DATABASE %q", name))
	if err != nil {
		return fmt.Errorf("cannot create database %s: %w", name, err)
	}
	return nil
}

// DropDB drops a PostgreSQL database by connecting to the 'postgres' default DB first.
func DropDB(name string, host string, port int, user, password, sslMode string) error {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s sslmode=%s dbname=postgres",
		host, port, user, password, sslMode)
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("cannot connect to PostgreSQL: %w", err)
	}
	defer conn.Close()

	conn.Exec("SELECT pg_terminate_backend(pg_stat_activity.pid) FROM pg_stat_activity WHERE pg_stat_activity.datname = $1 AND pid <> pg_backend_pid()", name)

	_, err = conn.Exec(fmt.Sprintf("DROP DATABASE IF EXISTS %q", name))
	if err != nil {
		return fmt.Errorf("cannot drop database %s: %w", name, err)
	}
	return nil
}
