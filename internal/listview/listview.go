// Package listview projects a fetched sequence of records into rows with
// loading, empty and failure states. The leaderboard, recent games and
// roster all render through it.
package listview

import (
	"context"

	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/logger"
)

// View is the render state of one list
type View[Row any] struct {
	Name         string
	Loading      bool
	ListVisible  bool
	EmptyVisible bool
	EmptyMessage string
	Failed       bool
	Rows         []Row
}

// New creates a view in its initial, loading state
func New[Row any](name, emptyMessage string) *View[Row] {
	v := &View[Row]{Name: name, EmptyMessage: emptyMessage}
	v.Begin()
	return v
}

// Begin shows the loading indicator and hides both the list and the empty state
func (v *View[Row]) Begin() {
	v.Loading = true
	v.ListVisible = false
	v.EmptyVisible = false
	v.Failed = false
}

// Finish settles the view from a fetch result. Rows keep fetch order.
// A failure is logged and leaves the list hidden; nothing is retried.
func (v *View[Row]) Finish(rows []Row, err error) {
	v.Loading = false
	v.Rows = nil

	if err != nil {
		v.Failed = true
		v.ListVisible = false
		v.EmptyVisible = false
		logger.Warn("Failed to load list", "view", v.Name, "error", err)
		return
	}

	if len(rows) == 0 {
		v.EmptyVisible = true
		v.ListVisible = false
		return
	}

	v.Rows = rows
	v.ListVisible = true
	v.EmptyVisible = false
}

// Load runs Begin, fetch and Finish, building one row per record
func Load[R, Row any](ctx context.Context, name, emptyMessage string, fetch func(context.Context) ([]R, error), row func(R) Row) *View[Row] {
	v := New[Row](name, emptyMessage)

	records, err := fetch(ctx)
	if err != nil {
		v.Finish(nil, err)
		return v
	}

	rows := make([]Row, 0, len(records))
	for _, r := range records {
		rows = append(rows, row(r))
	}
	v.Finish(rows, nil)
	return v
}
