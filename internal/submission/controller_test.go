package submission

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/gateway"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/gateway/gatewaytest"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/inflight"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/models"
)

type staticPlayers []models.Player

func (s staticPlayers) Players() []models.Player { return s }

type countingGateway struct {
	mu      sync.Mutex
	submits int
	games   int
}

func (g *countingGateway) SubmitGame(context.Context, models.GameSubmission) (*models.Game, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submits++
	return &models.Game{ID: 1}, nil
}

func (g *countingGateway) Games(context.Context, int) ([]models.Game, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.games++
	return nil, nil
}

func TestValidationNeverCallsGateway(t *testing.T) {
	gw := &countingGateway{}
	c := NewController(gw, staticPlayers(roster), nil, 10, nil)

	drafts := [][]models.Seat{
		{{PlayerID: "1"}, {PlayerID: ""}},
		{{PlayerID: "1"}, {PlayerID: "1"}},
	}
	for _, d := range drafts {
		out, err := c.Submit(context.Background(), "op", d)
		assert.Nil(t, out)
		assert.True(t, IsValidation(err), "expected validation error, got %v", err)
	}
	assert.Zero(t, gw.submits)
	assert.Zero(t, gw.games)
}

type fixture struct {
	srv     *gatewaytest.Server
	ctrl    *Controller
	tokens  *inflight.Tracker
	players []models.Player
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	srv := gatewaytest.NewServer(t)
	na := srv.SeedRegion("North America")
	var players []models.Player
	for _, name := range []string{"P1", "P2", "P3", "P4"} {
		players = append(players, srv.SeedPlayer(name, na.ID, 0))
	}

	op := gateway.New(srv.URL, 2*time.Second).WithSession(gateway.NewSession([]*http.Cookie{gatewaytest.SessionCookie()}))
	tokens := inflight.NewTracker()
	return fixture{
		srv:     srv,
		ctrl:    NewController(op, staticPlayers(players), tokens, 10, nil),
		tokens:  tokens,
		players: players,
	}
}

func seatsFor(players []models.Player, placements, points []string) []models.Seat {
	draft := make([]models.Seat, len(players))
	for i, p := range players {
		draft[i] = models.Seat{PlayerID: itoa(p.ID), Placement: placements[i], Points: points[i]}
	}
	return draft
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func TestSubmitFourSeatGameEndToEnd(t *testing.T) {
	fx := newFixture(t)
	draft := seatsFor(fx.players, []string{"1", "2", "3", "4"}, []string{"12", "9", "6", "3"})

	out, err := fx.ctrl.Submit(context.Background(), "op", draft)
	require.NoError(t, err)
	require.False(t, out.Superseded)

	calls := fx.srv.Calls("POST /api/admin/games")
	require.Len(t, calls, 1)
	var sent models.GameSubmission
	require.NoError(t, json.Unmarshal(calls[0].Body, &sent))
	want := models.GameSubmission{Results: []models.GameResult{
		{PlayerID: fx.players[0].ID, Placement: intp(1), Points: intp(12)},
		{PlayerID: fx.players[1].ID, Placement: intp(2), Points: intp(9)},
		{PlayerID: fx.players[2].ID, Placement: intp(3), Points: intp(6)},
		{PlayerID: fx.players[3].ID, Placement: intp(4), Points: intp(3)},
	}}
	if diff := cmp.Diff(want, sent); diff != "" {
		t.Errorf("payload (-want +got):\n%s", diff)
	}

	assert.Equal(t, "Game submitted successfully! Ratings updated.", out.Notice)
	assert.Equal(t, 5*time.Second, out.DismissAfter)

	require.Equal(t, 4, out.Form.SeatCount())
	for i, s := range out.Form.Seats {
		assert.Empty(t, s.PlayerID)
		assert.Empty(t, s.Points)
		assert.Equal(t, itoa(i+1), s.Placement)
	}

	require.True(t, out.Games.ListVisible)
	require.NotEmpty(t, out.Games.Rows)
	first := out.Games.Rows[0]
	assert.Equal(t, out.Game.ID, first.ID)
	assert.Equal(t, "Game #"+itoa(out.Game.ID), first.Title)
	assert.Equal(t, "🥇", first.Participants[0].Emoji)
	assert.Equal(t, "12 pts", first.Participants[0].Points)
}

func TestSubmitReleasesToken(t *testing.T) {
	fx := newFixture(t)
	draft := seatsFor(fx.players[:2], []string{"1", "2"}, []string{"10", "5"})

	_, err := fx.ctrl.Submit(context.Background(), "op", draft)
	require.NoError(t, err)
	assert.Zero(t, fx.tokens.Len())

	fx.srv.Drop("POST /api/admin/games")
	_, err = fx.ctrl.Submit(context.Background(), "op", draft)
	require.Error(t, err)
	assert.Zero(t, fx.tokens.Len(), "failed submissions release their token too")
}

func TestSubmitServerRejection(t *testing.T) {
	fx := newFixture(t)
	fx.srv.Reject("POST /api/admin/games", http.StatusBadRequest, "Player 99 not found")
	draft := seatsFor(fx.players[:2], []string{"1", "2"}, []string{"10", "4"})

	out, err := fx.ctrl.Submit(context.Background(), "op", draft)
	assert.Nil(t, out)
	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, ServerRejected, se.Kind)
	assert.Equal(t, "Player 99 not found", se.Message)
	assert.Empty(t, fx.srv.Calls("GET /api/games"), "no refresh after a failure")

	kept := fx.ctrl.Restore(draft)
	assert.Equal(t, "10", kept.Seats[0].Points)
	assert.Equal(t, draft[1].PlayerID, kept.Seats[1].PlayerID)
}

func TestSubmitServerRejectsOutOfRangeSeatCount(t *testing.T) {
	fx := newFixture(t)
	draft := seatsFor(fx.players[:1], []string{"1"}, []string{"10"})

	_, err := fx.ctrl.Submit(context.Background(), "op", draft)
	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, ServerRejected, se.Kind)
	assert.Equal(t, "Game must have 2-4 players", se.Message)
}

func TestSubmitTransportFailure(t *testing.T) {
	fx := newFixture(t)
	fx.srv.Drop("POST /api/admin/games")
	draft := seatsFor(fx.players[:2], []string{"1", "2"}, []string{"10", "4"})

	_, err := fx.ctrl.Submit(context.Background(), "op", draft)
	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, TransportFailure, se.Kind)
	assert.Equal(t, "Failed to submit game", se.Message)
	var te *gateway.TransportError
	assert.True(t, errors.As(err, &te))
}

type blockingGateway struct {
	countingGateway
	started chan struct{}
	release chan struct{}
	first   sync.Once
}

func (g *blockingGateway) SubmitGame(ctx context.Context, s models.GameSubmission) (*models.Game, error) {
	blocked := false
	g.first.Do(func() { blocked = true })
	if blocked {
		close(g.started)
		<-g.release
	}
	return g.countingGateway.SubmitGame(ctx, s)
}

func TestSupersededSubmissionIsIgnored(t *testing.T) {
	gw := &blockingGateway{started: make(chan struct{}), release: make(chan struct{})}
	c := NewController(gw, staticPlayers(roster), inflight.NewTracker(), 10, nil)
	draft := []models.Seat{{PlayerID: "1", Placement: "1", Points: "9"}, {PlayerID: "2", Placement: "2", Points: "4"}}

	type result struct {
		out *Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := c.Submit(context.Background(), "op", draft)
		done <- result{out, err}
	}()

	<-gw.started
	newer, err := c.Submit(context.Background(), "op", draft)
	require.NoError(t, err)
	assert.False(t, newer.Superseded)

	close(gw.release)
	older := <-done
	require.NoError(t, older.err)
	assert.True(t, older.out.Superseded)
	assert.Empty(t, older.out.Notice)
	assert.Nil(t, older.out.Form)

	gw.mu.Lock()
	defer gw.mu.Unlock()
	assert.Equal(t, 2, gw.submits)
	assert.Equal(t, 1, gw.games, "only the newest submission refreshes recent games")
}

func TestLoadGamesEmpty(t *testing.T) {
	c := NewController(&countingGateway{}, staticPlayers(nil), nil, 0, nil)
	v := c.LoadGames(context.Background())
	assert.True(t, v.EmptyVisible)
	assert.Equal(t, "No games yet", v.EmptyMessage)
}
