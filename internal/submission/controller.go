package submission

import (
	"context"
	"time"

	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/format"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/gateway"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/inflight"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/listview"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/logger"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/metrics"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/models"
)

const (
	MsgSubmitted      = "Game submitted successfully! Ratings updated."
	SubmittedDismiss  = 5 * time.Second
	EmptyGames        = "No games yet"
	DefaultGamesLimit = 10
	actionSubmit      = "submit_game"
)

// Gateway is what the controller needs from the ranking service
type Gateway interface {
	SubmitGame(ctx context.Context, g models.GameSubmission) (*models.Game, error)
	Games(ctx context.Context, limit int) ([]models.Game, error)
}

// PlayerSource exposes the cached roster read-only
type PlayerSource interface {
	Players() []models.Player
}

// ParticipantLine is one seat of a rendered game card
type ParticipantLine struct {
	Emoji      string
	Name       string
	Points     string
	Delta      string
	DeltaClass string
}

// GameCard is one rendered recent game
type GameCard struct {
	ID           int
	Title        string
	PlayedAt     string
	Participants []ParticipantLine
}

// Outcome is the result of a submission that reached the ranking service
type Outcome struct {
	Superseded   bool
	Notice       string
	DismissAfter time.Duration
	Game         *models.Game
	Form         *Form
	Games        *listview.View[GameCard]
}

// Controller owns the game form and its submission
type Controller struct {
	gw         Gateway
	players    PlayerSource
	tokens     *inflight.Tracker
	gamesLimit int
	metrics    *metrics.Metrics
}

// NewController creates a controller. tokens may be shared with other controllers.
func NewController(gw Gateway, players PlayerSource, tokens *inflight.Tracker, gamesLimit int, m *metrics.Metrics) *Controller {
	if gamesLimit <= 0 {
		gamesLimit = DefaultGamesLimit
	}
	if tokens == nil {
		tokens = inflight.NewTracker()
	}
	return &Controller{gw: gw, players: players, tokens: tokens, gamesLimit: gamesLimit, metrics: m}
}

// WithGateway returns a controller that submits through gw, e.g. an operator-scoped client
func (c *Controller) WithGateway(gw Gateway) *Controller {
	cp := *c
	cp.gw = gw
	return &cp
}

// SetSeatCount builds a fresh form with n seats from the cached roster
func (c *Controller) SetSeatCount(n int) (*Form, error) {
	return BuildForm(n, c.players.Players())
}

// Restore rebuilds the form with the operator's entered values
func (c *Controller) Restore(draft []models.Seat) *Form {
	return FormFromDraft(draft, c.players.Players())
}

// Submit validates the draft and records the game. Validation failures never
// reach the network. On success the form is rebuilt empty with the same seat
// count and recent games are fetched again, strictly after the POST answered.
// A submission overtaken by a newer one from the same session comes back
// Superseded and changes nothing in the UI.
func (c *Controller) Submit(ctx context.Context, session string, draft []models.Seat) (*Outcome, error) {
	results, err := Validate(draft)
	if err != nil {
		c.metrics.RecordAction(actionSubmit, "validation")
		return nil, err
	}

	tok := c.tokens.Begin(session, actionSubmit)
	defer c.tokens.Done(tok)
	game, err := c.gw.SubmitGame(ctx, models.GameSubmission{Results: results})
	if !c.tokens.Current(tok) {
		logger.Info("Ignoring superseded game submission", "session", session)
		c.metrics.RecordAction(actionSubmit, "superseded")
		return &Outcome{Superseded: true}, nil
	}

	if err != nil {
		if rej, ok := gateway.IsRejected(err); ok {
			logger.Warn("Game submission rejected", "status", rej.Status, "error", rej.Message)
			c.metrics.RecordAction(actionSubmit, "rejected")
			return nil, &Error{Kind: ServerRejected, Message: rej.Message, Err: err}
		}
		logger.Error("Game submission failed", "error", err)
		c.metrics.RecordAction(actionSubmit, "transport")
		return nil, &Error{Kind: TransportFailure, Message: MsgTransport, Err: err}
	}

	logger.Info("Game submitted", "seats", len(results))
	c.metrics.RecordAction(actionSubmit, "ok")

	form, err := c.SetSeatCount(len(draft))
	if err != nil {
		return nil, err
	}
	return &Outcome{
		Notice:       MsgSubmitted,
		DismissAfter: SubmittedDismiss,
		Game:         game,
		Form:         form,
		Games:        c.LoadGames(ctx),
	}, nil
}

// LoadGames fetches the most recent games, newest first
func (c *Controller) LoadGames(ctx context.Context) *listview.View[GameCard] {
	fetch := func(ctx context.Context) ([]models.Game, error) {
		return c.gw.Games(ctx, c.gamesLimit)
	}
	return listview.Load(ctx, "games", EmptyGames, fetch, NewGameCard)
}

// NewGameCard projects a game for the recent games list
func NewGameCard(g models.Game) GameCard {
	card := GameCard{
		ID:       g.ID,
		Title:    format.GameTitle(g.ID),
		PlayedAt: format.DateTime(g.PlayedAt.Time),
	}
	for _, p := range g.Participants {
		card.Participants = append(card.Participants, ParticipantLine{
			Emoji:      format.PlacementEmoji(p.Placement),
			Name:       p.PlayerName,
			Points:     format.Points(p.Points),
			Delta:      format.SignedDelta(p.RatingChange),
			DeltaClass: format.DeltaClass(p.RatingChange),
		})
	}
	return card
}
