package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/medaid/consent-trail/pkg/config"
	"github.com/medaid/consent-trail/pkg/logger"
)

// DB wraps the internal datastore connection pool
type DB struct {
	*sql.DB
	config *config.DatabaseConfig
	logger *logger.Logger
}

// NewConnection opens the connection pool, verifies connectivity
// within the configured connect timeout and, unless bootstrap is
// turned off, ensures the audit tables exist before returning.
func NewConnection(ctx context.Context, cfg *config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	sqlDB, err := sql.Open("postgres", connectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	db := &DB{DB: sqlDB, config: cfg, logger: log}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout(cfg))
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.Bootstrap {
		if err := db.CreateSchema(ctx); err != nil {
			sqlDB.Close()
			return nil, err
		}
	}

	log.WithFields(map[string]interface{}{
		"host": cfg.Host,
		"name": cfg.Name,
	}).Info("Database connection established")
	return db, nil
}

// connectionString builds the lib/pq DSN. The connect timeout is
// enforced twice, in the DSN for dial attempts and via context on the
// verification ping.
func connectionString(cfg *config.DatabaseConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
		int(connectTimeout(cfg).Seconds()),
	)
}

func connectTimeout(cfg *config.DatabaseConfig) time.Duration {
	if cfg.ConnectTimeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(cfg.ConnectTimeout) * time.Second
}

// Close closes the connection pool
func (db *DB) Close() error {
	if db.DB != nil {
		return db.DB.Close()
	}
	return nil
}

// Health pings the database with a short deadline
func (db *DB) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return db.PingContext(ctx)
}
