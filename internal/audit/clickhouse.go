package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouseSink appends audit entries to a MergeTree table for analytics
type ClickHouseSink struct {
	conn  driver.Conn
	table string
}

// NewClickHouseSink connects, pings and makes sure the table exists
func NewClickHouseSink(ctx context.Context, addr, database, username, password string) (*ClickHouseSink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	s := &ClickHouseSink{conn: conn, table: "ranking_ui_audit"}
	if err := s.ensureTable(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *ClickHouseSink) ensureTable(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS ` + s.table + ` (
			id UUID,
			at DateTime64(3, 'UTC'),
			session_id String,
			operator String,
			action LowCardinality(String),
			outcome LowCardinality(String),
			detail String,
			payload String
		)
		ENGINE = MergeTree
		ORDER BY (action, at)
	`
	if err := s.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create ClickHouse table: %w", err)
	}
	return nil
}

// Write sends entries as one batch
func (s *ClickHouseSink) Write(ctx context.Context, entries []Entry) error {
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO "+s.table)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for _, e := range entries {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode payload: %w", err)
		}
		if err := batch.Append(e.ID, e.At, e.Session, e.Operator, e.Action, string(e.Outcome), e.Detail, string(payload)); err != nil {
			return fmt.Errorf("failed to append to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// ActionCounts aggregates outcomes per action over the last window
func (s *ClickHouseSink) ActionCounts(ctx context.Context, window time.Duration) (map[string]map[string]uint64, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT action, outcome, count() AS n
		FROM `+s.table+`
		WHERE at >= now() - toIntervalSecond(?)
		GROUP BY action, outcome
	`, int64(window.Seconds()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]map[string]uint64)
	for rows.Next() {
		var action, outcome string
		var n uint64
		if err := rows.Scan(&action, &outcome, &n); err != nil {
			return nil, err
		}
		if counts[action] == nil {
			counts[action] = make(map[string]uint64)
		}
		counts[action][outcome] = n
	}
	return counts, rows.Err()
}

// Close closes the ClickHouse connection
func (s *ClickHouseSink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
