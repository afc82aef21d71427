package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/gateway"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/logger"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/pubsub"
)

// Actions recorded in the trail
const (
	ActionLogin        = "login"
	ActionLogout       = "logout"
	ActionAddPlayer    = "add_player"
	ActionDeletePlayer = "delete_player"
	ActionAddRegion    = "add_region"
	ActionSubmitGame   = "submit_game"
)

// Outcome of one mutation attempt
type Outcome string

const (
	OutcomeSucceeded  Outcome = "succeeded"
	OutcomeInvalid    Outcome = "invalid"
	OutcomeRejected   Outcome = "rejected"
	OutcomeFailed     Outcome = "failed"
	OutcomeSuperseded Outcome = "superseded"
)

// OutcomeOf classifies the result of an action. Errors that never reached
// the ranking service count as invalid input.
func OutcomeOf(err error, superseded bool) Outcome {
	if err == nil {
		if superseded {
			return OutcomeSuperseded
		}
		return OutcomeSucceeded
	}
	if _, ok := gateway.IsRejected(err); ok {
		return OutcomeRejected
	}
	var te *gateway.TransportError
	if errors.As(err, &te) {
		return OutcomeFailed
	}
	return OutcomeInvalid
}

// Entry is one recorded mutation attempt
type Entry struct {
	ID       uuid.UUID              `json:"id"`
	At       time.Time              `json:"at"`
	Session  string                 `json:"session"`
	Operator string                 `json:"operator,omitempty"`
	Action   string                 `json:"action"`
	Outcome  Outcome                `json:"outcome"`
	Detail   string                 `json:"detail,omitempty"`
	Payload  map[string]interface{} `json:"payload,omitempty"`
}

// Store persists audit entries. Pending returns entries not yet handed to
// the export sink, oldest first.
type Store interface {
	Record(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Pending(ctx context.Context, limit int) ([]Entry, error)
	MarkExported(ctx context.Context, ids []uuid.UUID) error
	Close() error
}

var eventTypes = map[string]string{
	ActionLogin:        pubsub.EventOperatorLogin,
	ActionLogout:       pubsub.EventOperatorLogout,
	ActionAddPlayer:    pubsub.EventPlayerAdded,
	ActionDeletePlayer: pubsub.EventPlayerDeleted,
	ActionAddRegion:    pubsub.EventRegionAdded,
	ActionSubmitGame:   pubsub.EventGameSubmitted,
}

// Recorder writes entries to the store and announces successful mutations on
// the bus. A nil Recorder records nothing.
type Recorder struct {
	store Store
	bus   pubsub.Bus
}

// NewRecorder creates a recorder; bus may be nil
func NewRecorder(store Store, bus pubsub.Bus) *Recorder {
	return &Recorder{store: store, bus: bus}
}

// Record stores e. Store failures are logged and never reach the caller.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if r == nil {
		return
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	if err := r.store.Record(ctx, e); err != nil {
		logger.Error("Failed to record audit entry", "error", err, "action", e.Action, "outcome", e.Outcome)
	}

	if r.bus == nil || e.Outcome != OutcomeSucceeded {
		return
	}
	typ, ok := eventTypes[e.Action]
	if !ok {
		return
	}
	payload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		payload[k] = v
	}
	if e.Operator != "" {
		payload["operator"] = e.Operator
	}
	r.bus.Publish(pubsub.Event{Type: typ, At: e.At, Payload: payload})
}

// Recent returns the latest entries, newest first
func (r *Recorder) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return r.store.Recent(ctx, limit)
}
