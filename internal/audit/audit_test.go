package audit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/gateway"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/pubsub"
)

func TestOutcomeOf(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		superseded bool
		want       Outcome
	}{
		{"success", nil, false, OutcomeSucceeded},
		{"superseded", nil, true, OutcomeSuperseded},
		{"rejected", &gateway.RejectedError{Status: 400, Message: "Player already exists"}, false, OutcomeRejected},
		{"transport", &gateway.TransportError{Op: "POST /api/games", Err: errors.New("reset")}, false, OutcomeFailed},
		{"validation", errors.New("Name and Region are required"), false, OutcomeInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OutcomeOf(tt.err, tt.superseded))
		})
	}
}

func TestRecorderPublishesSuccessOnly(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	bus := pubsub.New()
	ch := bus.Subscribe()
	r := NewRecorder(store, bus)

	r.Record(ctx, Entry{Session: "s1", Action: ActionAddPlayer, Outcome: OutcomeRejected, Detail: "Player already exists"})
	r.Record(ctx, Entry{Session: "s1", Operator: "carol", Action: ActionAddPlayer, Outcome: OutcomeSucceeded,
		Payload: map[string]interface{}{"name": "Alice"}})

	select {
	case e := <-ch:
		assert.Equal(t, pubsub.EventPlayerAdded, e.Type)
		assert.Equal(t, "Alice", e.Payload["name"])
		assert.Equal(t, "carol", e.Payload["operator"])
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
	assert.Len(t, ch, 0, "rejected attempts are not announced")

	recent, err := r.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, OutcomeSucceeded, recent[0].Outcome)
	assert.NotEqual(t, uuid.Nil, recent[0].ID)
	assert.False(t, recent[0].At.IsZero())
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.Record(context.Background(), Entry{Action: ActionLogin})
}

func storeContract(t *testing.T, s Store) {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i, action := range []string{ActionLogin, ActionAddRegion, ActionSubmitGame} {
		e := Entry{
			ID:      uuid.New(),
			At:      base.Add(time.Duration(i) * time.Minute),
			Session: "s1",
			Action:  action,
			Outcome: OutcomeSucceeded,
			Payload: map[string]interface{}{"seq": float64(i)},
		}
		ids = append(ids, e.ID)
		require.NoError(t, s.Record(ctx, e))
	}

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, ActionSubmitGame, recent[0].Action)
	assert.Equal(t, ActionAddRegion, recent[1].Action)
	assert.Equal(t, float64(2), recent[0].Payload["seq"])
	assert.True(t, recent[0].At.Equal(base.Add(2*time.Minute)))

	pending, err := s.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, ids[0], pending[0].ID)

	require.NoError(t, s.MarkExported(ctx, ids[:2]))
	pending, err = s.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, ids[2], pending[0].ID)

	require.NoError(t, s.MarkExported(ctx, nil))
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore(0))
}

func TestMemoryStoreIsBounded(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Record(ctx, Entry{ID: uuid.New(), Action: ActionLogin}))
	}
	recent, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer s.Close()
	storeContract(t, s)
}

func TestRebindNumbersPlaceholders(t *testing.T) {
	s := &sqlStore{numbered: true}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b IN ($2, $3)", s.rebind("SELECT * FROM t WHERE a = ? AND b IN (?, ?)"))
	assert.Equal(t, "a = ?", (&sqlStore{}).rebind("a = ?"))
}

type fakeSink struct {
	batches [][]Entry
	err     error
}

func (f *fakeSink) Write(_ context.Context, entries []Entry) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, append([]Entry(nil), entries...))
	return nil
}

func TestExporterFlushesInBatches(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Record(ctx, Entry{ID: uuid.New(), Action: ActionSubmitGame, Outcome: OutcomeSucceeded}))
	}
	sink := &fakeSink{}
	x := NewExporter(store, sink, time.Minute, nil)
	x.batch = 2

	n, err := x.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Len(t, sink.batches, 3)

	n, err = x.Flush(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "exported entries are not sent twice")
}

func TestExporterKeepsEntriesWhenSinkFails(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	require.NoError(t, store.Record(ctx, Entry{ID: uuid.New(), Action: ActionLogin}))

	x := NewExporter(store, &fakeSink{err: errors.New("clickhouse down")}, time.Minute, nil)
	_, err := x.Flush(ctx)
	require.Error(t, err)

	pending, err := store.Pending(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestExporterRunFlushesOnShutdown(t *testing.T) {
	store := NewMemoryStore(0)
	require.NoError(t, store.Record(context.Background(), Entry{ID: uuid.New(), Action: ActionLogout}))
	sink := &fakeSink{}
	x := NewExporter(store, sink, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		x.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("exporter did not stop")
	}
	assert.Len(t, sink.batches, 1)
}
