package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/logger"
)

// PostgresStore keeps the trail in PostgreSQL
type PostgresStore struct {
	sqlStore
}

// NewPostgresStore connects to connString, retrying while the database comes up
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(time.Minute)

	const maxRetries = 5
	retryDelay := 2 * time.Second
	for i := 0; ; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			break
		}
		if i == maxRetries-1 {
			db.Close()
			return nil, fmt.Errorf("failed to ping postgres after %d retries: %w", maxRetries, err)
		}
		logger.Warn("Postgres not ready, retrying", "attempt", i+1, "error", err)
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		at TIMESTAMPTZ NOT NULL,
		session_id TEXT NOT NULL,
		operator TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		outcome TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL DEFAULT '',
		exported BOOLEAN NOT NULL DEFAULT FALSE
	);
	CREATE INDEX IF NOT EXISTS audit_log_pending ON audit_log (exported, at);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create audit schema: %w", err)
	}

	return &PostgresStore{sqlStore{db: db, numbered: true}}, nil
}
