package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/shaurya/tradeledger/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to the database selected by cfg.Driver ("postgres" or
// "sqlite"). It returns nil, nil when no driver is configured.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Driver {
	case "":
		return nil, nil
	case "postgres":
		return Connect(cfg)
	case "sqlite":
		return OpenSQLite(cfg)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// Connect establishes a PostgreSQL connection using GORM + pgx.
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		cfg.Host, cfg.User, cfg.Password, cfg.Name, cfg.Port, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: newGormLogger(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("cannot connect to PostgreSQL at %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	pool := cfg.Pool
	if pool <= 0 {
		pool = 10
	}
	sqlDB.SetMaxIdleConns(pool / 2)
	sqlDB.SetMaxOpenConns(pool)
	sqlDB.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("cannot connect to PostgreSQL at %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	return db, nil
}

// OpenSQLite opens (creating if needed) a SQLite database file at cfg.Path.
func OpenSQLite(cfg config.DatabaseConfig) (*gorm.DB, error) {
	path := cfg.Path
	if path == "" {
		path = "tmp/tradeledger.db"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: newGormLogger(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("cannot open SQLite database %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer.
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}

// Close closes the underlying connection pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func newGormLogger(cfg config.DatabaseConfig) gormlogger.Interface {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	var logLevel gormlogger.LogLevel
	switch env {
	case "development":
		logLevel = gormlogger.Info
	case "test":
		logLevel = gormlogger.Silent
	default:
		logLevel = gormlogger.Warn
	}

	slowThreshold := time.Duration(cfg.SlowQueryMs) * time.Millisecond
	if slowThreshold == 0 {
		slowThreshold = 200 * time.Millisecond
	}

	return gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             slowThreshold,
			LogLevel:                  logLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  env == "development",
		},
	)
}
