// Package database opens the PostgreSQL pools the migration runs on.
// A run typically holds two: one for batch transactions and one the
// audit recorder keeps to itself so bookkeeping survives rollbacks.
package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/pkg/config"
)

// Batch runs hold few connections for hours, so lifetimes are kept
// well above the longest expected batch.
const (
	connMaxLifetime = 4 * time.Hour
	connMaxIdleTime = 30 * time.Minute
)

// NewPostgres opens and pings a pool for the given database.
func NewPostgres(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", buildDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func buildDSN(cfg config.DatabaseConfig) string {
	params := []string{
		"host=" + cfg.Host,
		fmt.Sprintf("port=%d", cfg.Port),
		"user=" + cfg.User,
		"password=" + cfg.Password,
		"dbname=" + cfg.Name,
		"sslmode=" + cfg.SSLMode,
		"application_name=legacy-migrate",
	}
	return strings.Join(params, " ")
}
