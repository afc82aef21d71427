// Package gateway talks to the ranking service over HTTP/JSON and
// normalizes its answers into typed results, *RejectedError or *TransportError.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/logger"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/metrics"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/models"
)

const maxBodyBytes = 4 << 20

// Client is a ranking service client. The zero session is anonymous;
// WithSession returns a copy that carries an operator's upstream cookies.
type Client struct {
	baseURL string
	http    *http.Client
	metrics *metrics.Metrics
	tracer  trace.Tracer
	session *Session
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMetrics records every call on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithTracer overrides the global tracer
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// New creates a client for the service at baseURL
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tracer:  otel.Tracer("github.com/Billy-Davies-2/splendor-ratings-ui/internal/gateway"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithSession returns a client that sends and updates the cookies in s
func (c *Client) WithSession(s *Session) *Client {
	cp := *c
	cp.session = s
	return &cp
}

// Regions lists all regions
func (c *Client) Regions(ctx context.Context) ([]models.Region, error) {
	var out []models.Region
	err := c.do(ctx, "regions", http.MethodGet, "/api/regions", nil, &out)
	return out, err
}

// AddRegion creates a region and returns it with its server-assigned id
func (c *Client) AddRegion(ctx context.Context, r models.NewRegion) (models.Region, error) {
	var out struct {
		Region models.Region `json:"region"`
	}
	err := c.do(ctx, "add_region", http.MethodPost, "/api/admin/regions", r, &out)
	return out.Region, err
}

// Players lists all players
func (c *Client) Players(ctx context.Context) ([]models.Player, error) {
	var out []models.Player
	err := c.do(ctx, "players", http.MethodGet, "/api/players", nil, &out)
	return out, err
}

// Player fetches one player's details and recent games
func (c *Client) Player(ctx context.Context, id int) (*models.PlayerDetail, error) {
	var out models.PlayerDetail
	if err := c.do(ctx, "player", http.MethodGet, "/api/players/"+strconv.Itoa(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddPlayer registers a player
func (c *Client) AddPlayer(ctx context.Context, p models.NewPlayer) (models.Player, error) {
	var out struct {
		Player models.Player `json:"player"`
	}
	err := c.do(ctx, "add_player", http.MethodPost, "/api/admin/players", p, &out)
	return out.Player, err
}

// DeletePlayer removes a player. The service refuses players with game history.
func (c *Client) DeletePlayer(ctx context.Context, id int) error {
	return c.do(ctx, "delete_player", http.MethodDelete, "/api/admin/players/"+strconv.Itoa(id), nil, nil)
}

// Games lists the most recent games, newest first
func (c *Client) Games(ctx context.Context, limit int) ([]models.Game, error) {
	path := "/api/games"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []models.Game
	err := c.do(ctx, "games", http.MethodGet, path, nil, &out)
	return out, err
}

// SubmitGame records a game. Ratings are recomputed by the service.
func (c *Client) SubmitGame(ctx context.Context, g models.GameSubmission) (*models.Game, error) {
	var out struct {
		Game *models.Game `json:"game"`
	}
	if err := c.do(ctx, "submit_game", http.MethodPost, "/api/admin/games", g, &out); err != nil {
		return nil, err
	}
	return out.Game, nil
}

// Leaderboard returns entries pre-sorted by rank. regionID 0 means all regions.
func (c *Client) Leaderboard(ctx context.Context, regionID int) ([]models.LeaderboardEntry, error) {
	path := "/api/leaderboard"
	if regionID > 0 {
		path += "?" + url.Values{"region_id": {strconv.Itoa(regionID)}}.Encode()
	}
	var out []models.LeaderboardEntry
	err := c.do(ctx, "leaderboard", http.MethodGet, path, nil, &out)
	return out, err
}

// CheckSession asks whether the current session is logged in
func (c *Client) CheckSession(ctx context.Context) (models.SessionStatus, error) {
	var out models.SessionStatus
	err := c.do(ctx, "check_session", http.MethodGet, "/api/admin/check", nil, &out)
	return out, err
}

// Login authenticates the session. A 2xx answer without success is a rejection.
func (c *Client) Login(ctx context.Context, creds models.Credentials) error {
	var out struct {
		Success bool `json:"success"`
	}
	if err := c.do(ctx, "login", http.MethodPost, "/api/admin/login", creds, &out); err != nil {
		return err
	}
	if !out.Success {
		return &RejectedError{Status: http.StatusUnauthorized, Message: http.StatusText(http.StatusUnauthorized)}
	}
	return nil
}

// Logout ends the upstream session and forgets its cookies
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, "logout", http.MethodPost, "/api/admin/logout", nil, nil)
	if c.session != nil {
		c.session.Clear()
	}
	return err
}

// Ping checks that the service answers
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, "ping", http.MethodGet, "/api/regions", nil, nil)
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, body, out any) error {
	ctx, span := c.tracer.Start(ctx, "gateway."+endpoint, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.path", path),
	))
	defer span.End()

	start := time.Now()
	err := c.roundTrip(ctx, method, path, body, out)
	outcome := outcomeOf(err)
	c.metrics.ObserveGateway(endpoint, outcome, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Debug("Ranking service call failed", "endpoint", endpoint, "outcome", outcome, "error", err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &TransportError{Op: "encode request", Err: err}
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &TransportError{Op: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.session != nil {
		c.session.apply(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: fmt.Sprintf("%s %s", method, path), Err: err}
	}
	defer resp.Body.Close()

	if c.session != nil {
		c.session.absorb(resp)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &TransportError{Op: "read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return rejection(resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &TransportError{Op: "decode response", Err: err}
	}
	return nil
}

func rejection(status int, body []byte) *RejectedError {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return &RejectedError{Status: status, Message: payload.Error}
	}
	msg := http.StatusText(status)
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d", status)
	}
	return &RejectedError{Status: status, Message: msg}
}
