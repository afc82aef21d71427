// Package roster is the operator surface: session gate, players, regions
// and the initial load of the admin panel.
package roster

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/gateway"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/inflight"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/listview"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/logger"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/metrics"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/models"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/submission"
)

const (
	MsgInvalidCredentials = "Invalid credentials"
	MsgLoginFailed        = "Login failed"
	MsgNameRegionRequired = "Name and Region are required"
	MsgPlayerAdded        = "Player added successfully!"
	MsgAddPlayerFailed    = "Failed to add player"
	MsgPlayerDeleted      = "Player deleted successfully!"
	MsgDeleteFailed       = "Failed to delete player"
	MsgHasHistory         = "Cannot delete player with game history"
	MsgRegionRequired     = "Region name is required"
	MsgRegionAdded        = "Region added successfully!"
	MsgAddRegionFailed    = "Failed to add region"
	EmptyRoster           = "No players yet"
	RegionPlaceholder     = "Select Region"
	NoticeDismiss         = 3 * time.Second
)

// Gateway is what the roster needs from an operator-scoped ranking client
type Gateway interface {
	CheckSession(ctx context.Context) (models.SessionStatus, error)
	Login(ctx context.Context, creds models.Credentials) error
	Logout(ctx context.Context) error
	Regions(ctx context.Context) ([]models.Region, error)
	AddRegion(ctx context.Context, r models.NewRegion) (models.Region, error)
	AddPlayer(ctx context.Context, p models.NewPlayer) (models.Player, error)
	DeletePlayer(ctx context.Context, id int) error
	submission.Gateway
}

// ActionError is a failed operator action; Message is shown verbatim
type ActionError struct {
	Action  string
	Message string
	Err     error
}

func (e *ActionError) Error() string {
	return e.Message
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// PlayerCard is one rendered roster entry
type PlayerCard struct {
	ID            int
	Name          string
	Region        string
	Rating        int
	Deletable     bool
	DisabledTitle string
}

// NewPlayerCard projects a player for the roster list
func NewPlayerCard(p models.Player) PlayerCard {
	card := PlayerCard{ID: p.ID, Name: p.Name, Region: p.RegionName, Rating: p.Rating, Deletable: p.Deletable()}
	if !card.Deletable {
		card.DisabledTitle = MsgHasHistory
	}
	return card
}

// RegionOption is one entry of the player-region selector
type RegionOption struct {
	ID   int
	Name string
}

// Result is what a successful or superseded action changed
type Result struct {
	Superseded   bool
	Notice       string
	DismissAfter time.Duration
	Confirm      string
	Roster       *listview.View[PlayerCard]
	Regions      []RegionOption
}

// Panel is the admin panel after its initial loads
type Panel struct {
	Roster  *listview.View[PlayerCard]
	Regions []RegionOption
	Games   *listview.View[submission.GameCard]
	Form    *submission.Form
}

// Controller runs operator actions for one session
type Controller struct {
	gw      Gateway
	cache   *Cache
	games   *submission.Controller
	tokens  *inflight.Tracker
	metrics *metrics.Metrics
	session string
}

// NewController creates an unscoped controller; use For to bind an operator
func NewController(gw Gateway, cache *Cache, games *submission.Controller, tokens *inflight.Tracker, m *metrics.Metrics) *Controller {
	if tokens == nil {
		tokens = inflight.NewTracker()
	}
	return &Controller{gw: gw, cache: cache, games: games, tokens: tokens, metrics: m}
}

// For returns a controller acting for session through gw
func (c *Controller) For(session string, gw Gateway) *Controller {
	cp := *c
	cp.session = session
	cp.gw = gw
	cp.games = c.games.WithGateway(gw)
	return &cp
}

// Cache exposes the roster cache read-only to the game form
func (c *Controller) Cache() *Cache {
	return c.cache
}

// Games is the game form controller bound to the same session
func (c *Controller) Games() *submission.Controller {
	return c.games
}

// CheckSession reports whether the operator is logged in upstream
func (c *Controller) CheckSession(ctx context.Context) (bool, error) {
	st, err := c.gw.CheckSession(ctx)
	if err != nil {
		logger.Warn("Session check failed", "error", err)
		return false, err
	}
	return st.LoggedIn, nil
}

// Login authenticates the operator against the ranking service
func (c *Controller) Login(ctx context.Context, username, password string) error {
	err := c.gw.Login(ctx, models.Credentials{Username: username, Password: password})
	if err == nil {
		c.metrics.RecordAction("login", "ok")
		logger.Info("Operator logged in", "username", username)
		return nil
	}
	if _, ok := gateway.IsRejected(err); ok {
		c.metrics.RecordAction("login", "rejected")
		return &ActionError{Action: "login", Message: MsgInvalidCredentials, Err: err}
	}
	c.metrics.RecordAction("login", "transport")
	logger.Error("Login error", "error", err)
	return &ActionError{Action: "login", Message: MsgLoginFailed, Err: err}
}

// Logout ends the upstream session and drops this session's in-flight tokens
func (c *Controller) Logout(ctx context.Context) error {
	c.tokens.Forget(c.session)
	if err := c.gw.Logout(ctx); err != nil {
		logger.Error("Logout error", "error", err)
		return err
	}
	return nil
}

// OpenPanel runs the initial loads: players, regions, games, then the form.
// The form is built after the roster so its selectors see the fresh cache.
func (c *Controller) OpenPanel(ctx context.Context, seats int) (*Panel, error) {
	p := &Panel{
		Roster:  c.LoadRoster(ctx),
		Regions: c.LoadRegions(ctx),
		Games:   c.games.LoadGames(ctx),
	}
	form, err := c.games.SetSeatCount(seats)
	if err != nil {
		return nil, fmt.Errorf("build game form: %w", err)
	}
	p.Form = form
	return p, nil
}

// LoadRoster refreshes the cache and renders the roster
func (c *Controller) LoadRoster(ctx context.Context) *listview.View[PlayerCard] {
	return listview.Load(ctx, "roster", EmptyRoster, c.cache.Refresh, NewPlayerCard)
}

// LoadRegions fetches the player-region options. A failure is logged and yields none.
func (c *Controller) LoadRegions(ctx context.Context) []RegionOption {
	regions, err := c.gw.Regions(ctx)
	if err != nil {
		logger.Warn("Failed to load regions", "error", err)
		return nil
	}
	out := make([]RegionOption, 0, len(regions))
	for _, r := range regions {
		out = append(out, RegionOption{ID: r.ID, Name: r.Name})
	}
	return out
}

// AddPlayer registers a player; name and region are both required
func (c *Controller) AddPlayer(ctx context.Context, name, regionID string) (*Result, error) {
	name = strings.TrimSpace(name)
	rid, err := strconv.Atoi(strings.TrimSpace(regionID))
	if name == "" || err != nil || rid <= 0 {
		c.metrics.RecordAction("add_player", "validation")
		return nil, &ActionError{Action: "add_player", Message: MsgNameRegionRequired}
	}

	tok := c.tokens.Begin(c.session, "add_player")
	defer c.tokens.Done(tok)
	_, err = c.gw.AddPlayer(ctx, models.NewPlayer{Name: name, RegionID: rid})
	if !c.tokens.Current(tok) {
		return &Result{Superseded: true}, nil
	}
	if err != nil {
		return nil, c.fail("add_player", MsgAddPlayerFailed, err)
	}

	c.metrics.RecordAction("add_player", "ok")
	logger.Info("Player added", "name", name, "region_id", rid)
	return &Result{
		Notice:       MsgPlayerAdded,
		DismissAfter: NoticeDismiss,
		Roster:       c.LoadRoster(ctx),
	}, nil
}

// ConfirmDelete is the question asked before a player is deleted
func ConfirmDelete(name string) string {
	return fmt.Sprintf("Are you sure you want to delete %s?", name)
}

// DeletePlayer removes a player after explicit confirmation. A cached player
// with game history is refused here and never reaches the ranking service.
func (c *Controller) DeletePlayer(ctx context.Context, id int, name string, confirmed bool) (*Result, error) {
	if p, ok := c.cache.Find(id); ok {
		if !p.Deletable() {
			c.metrics.RecordAction("delete_player", "refused")
			return nil, &ActionError{Action: "delete_player", Message: MsgHasHistory}
		}
		if name == "" {
			name = p.Name
		}
	}
	if !confirmed {
		return &Result{Confirm: ConfirmDelete(name)}, nil
	}

	tok := c.tokens.Begin(c.session, "delete_player")
	defer c.tokens.Done(tok)
	err := c.gw.DeletePlayer(ctx, id)
	if !c.tokens.Current(tok) {
		return &Result{Superseded: true}, nil
	}
	if err != nil {
		return nil, c.fail("delete_player", MsgDeleteFailed, err)
	}

	c.metrics.RecordAction("delete_player", "ok")
	logger.Info("Player deleted", "player_id", id)
	return &Result{
		Notice:       MsgPlayerDeleted,
		DismissAfter: NoticeDismiss,
		Roster:       c.LoadRoster(ctx),
	}, nil
}

// AddRegion creates a region from a trimmed, non-empty name
func (c *Controller) AddRegion(ctx context.Context, name string) (*Result, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		c.metrics.RecordAction("add_region", "validation")
		return nil, &ActionError{Action: "add_region", Message: MsgRegionRequired}
	}

	tok := c.tokens.Begin(c.session, "add_region")
	defer c.tokens.Done(tok)
	_, err := c.gw.AddRegion(ctx, models.NewRegion{Name: name})
	if !c.tokens.Current(tok) {
		return &Result{Superseded: true}, nil
	}
	if err != nil {
		return nil, c.fail("add_region", MsgAddRegionFailed, err)
	}

	c.metrics.RecordAction("add_region", "ok")
	logger.Info("Region added", "name", name)
	return &Result{
		Notice:       MsgRegionAdded,
		DismissAfter: NoticeDismiss,
		Regions:      c.LoadRegions(ctx),
	}, nil
}

func (c *Controller) fail(action, transportMsg string, err error) error {
	if rej, ok := gateway.IsRejected(err); ok {
		c.metrics.RecordAction(action, "rejected")
		logger.Warn("Action rejected", "action", action, "status", rej.Status, "error", rej.Message)
		return &ActionError{Action: action, Message: rej.Message, Err: err}
	}
	c.metrics.RecordAction(action, "transport")
	logger.Error("Action failed", "action", action, "error", err)
	return &ActionError{Action: action, Message: transportMsg, Err: err}
}

// Message extracts the operator-facing text of an action or submission error
func Message(err error) string {
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae.Message
	}
	var se *submission.Error
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}
