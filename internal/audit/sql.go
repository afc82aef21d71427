package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// sqlStore is the database/sql store shared by the SQLite and Postgres
// drivers. Queries are written with ? placeholders and rebound for drivers
// that number them.
type sqlStore struct {
	db       *sql.DB
	numbered bool
}

func (s *sqlStore) rebind(q string) string {
	if !s.numbered {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) Record(ctx context.Context, e Entry) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO audit_log (id, at, session_id, operator, action, outcome, detail, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		e.ID.String(), e.At.UTC(), e.Session, e.Operator, e.Action, string(e.Outcome), e.Detail, string(payload))
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

func (s *sqlStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return s.query(ctx, `
		SELECT id, at, session_id, operator, action, outcome, detail, payload
		FROM audit_log ORDER BY at DESC LIMIT ?`, limit)
}

func (s *sqlStore) Pending(ctx context.Context, limit int) ([]Entry, error) {
	return s.query(ctx, `
		SELECT id, at, session_id, operator, action, outcome, detail, payload
		FROM audit_log WHERE exported = FALSE ORDER BY at ASC LIMIT ?`, limit)
}

func (s *sqlStore) query(ctx context.Context, q string, args ...interface{}) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			id      string
			outcome string
			payload string
			at      time.Time
		)
		if err := rows.Scan(&id, &at, &e.Session, &e.Operator, &e.Action, &outcome, &e.Detail, &payload); err != nil {
			return nil, err
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("bad audit id %q: %w", id, err)
		}
		e.At = at.UTC()
		e.Outcome = Outcome(outcome)
		if payload != "" && payload != "null" {
			if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
				return nil, fmt.Errorf("bad audit payload: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqlStore) MarkExported(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]interface{}, len(ids))
	marks := make([]string, len(ids))
	for i, id := range ids {
		args[i] = id.String()
		marks[i] = "?"
	}
	q := "UPDATE audit_log SET exported = TRUE WHERE id IN (" + strings.Join(marks, ", ") + ")"
	if _, err := s.db.ExecContext(ctx, s.rebind(q), args...); err != nil {
		return fmt.Errorf("failed to mark audit entries exported: %w", err)
	}
	return nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
