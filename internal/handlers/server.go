// Package handlers serves the leaderboard, the player modal and the admin
// panel as server-rendered pages over the ranking service gateway.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/audit"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/auth"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/config"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/export"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/gateway"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/health"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/inflight"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/logger"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/metrics"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/pubsub"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/ranking"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/roster"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/submission"
)

// Deps are the collaborators of the HTTP surface. Auth, Bus, Audit, Health
// and Uploader are optional.
type Deps struct {
	Config   *config.Config
	Gateway  *gateway.Client
	Sessions *auth.Manager
	Auth     auth.AuthProvider
	Bus      pubsub.Bus
	Audit    *audit.Recorder
	Metrics  *metrics.Metrics
	Health   *health.Monitor
	Uploader *export.Uploader
}

// Server holds the shared state behind every request: one roster cache and
// one in-flight tracker for all operator sessions.
type Server struct {
	cfg      *config.Config
	gw       *gateway.Client
	sessions *auth.Manager
	gate     auth.AuthProvider
	bus      pubsub.Bus
	audit    *audit.Recorder
	metrics  *metrics.Metrics
	health   *health.Monitor
	uploader *export.Uploader

	view    *ranking.View
	cache   *roster.Cache
	roster  *roster.Controller
	render  *renderer
	limiter *auth.IPRateLimiter
}

// New wires the controllers and parses the templates
func New(d Deps) (*Server, error) {
	if d.Config == nil || d.Gateway == nil || d.Sessions == nil {
		return nil, errors.New("handlers: config, gateway and sessions are required")
	}
	r, err := newRenderer()
	if err != nil {
		return nil, err
	}

	tokens := inflight.NewTracker()
	cache := roster.NewCache(d.Gateway)
	games := submission.NewController(d.Gateway, cache, tokens, d.Config.Ranking.GamesLimit, d.Metrics)

	return &Server{
		cfg:      d.Config,
		gw:       d.Gateway,
		sessions: d.Sessions,
		gate:     d.Auth,
		bus:      d.Bus,
		audit:    d.Audit,
		metrics:  d.Metrics,
		health:   d.Health,
		uploader: d.Uploader,
		view:     ranking.NewView(d.Gateway),
		cache:    cache,
		roster:   roster.NewController(d.Gateway, cache, games, tokens, d.Metrics),
		render:   r,
		limiter:  auth.NewIPRateLimiter(rate.Every(6*time.Second), 5),
	}, nil
}

// Routes builds the router
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		s.logRequests,
		middleware.Recoverer,
	)

	r.Handle("/static/*", http.StripPrefix("/static/", staticFiles()))
	r.Get("/healthz", s.liveness)
	r.Get("/readyz", s.readiness)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(s.sessions.Resume)

		r.Get("/", s.leaderboardPage)
		r.Get("/fragments/leaderboard", s.leaderboardFragment)
		r.Get("/players/{id}", s.playerPage)
		r.Get("/players/{id}/chart.png", s.playerChart)
		r.Get("/export/leaderboard.xlsx", s.exportLeaderboard)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.sessions.Middleware)

		if s.gate != nil {
			r.Get("/auth/login", s.gate.LoginHandler)
			r.Get("/auth/callback", s.gate.CallbackHandler)
			r.Get("/auth/logout", s.gate.LogoutHandler)
		}

		r.Route("/admin", func(r chi.Router) {
			if s.gate != nil {
				r.Use(s.gate.Middleware)
			}
			r.Use(s.verifyCSRF)

			r.Get("/", s.adminPage)
			r.With(s.limiter.Limit).Post("/login", s.adminLogin)
			r.Post("/logout", s.adminLogout)
			r.Post("/players", s.addPlayer)
			r.Get("/players/{id}/delete", s.deletePlayer)
			r.Post("/players/{id}/delete", s.deletePlayer)
			r.Post("/regions", s.addRegion)
			r.Post("/games", s.submitGame)
			r.Get("/fragments/games", s.gamesFragment)
			r.Post("/export", s.uploadExport)
		})
	})
	return r
}

// WatchEvents keeps the roster cache in step with player changes announced on
// the bus, including those made through other instances. It blocks until ctx is done.
func (s *Server) WatchEvents(ctx context.Context) {
	if s.bus == nil {
		return
	}
	pubsub.Listen(ctx, s.bus, func(e pubsub.Event) {
		rctx, cancel := context.WithTimeout(ctx, s.cfg.Ranking.Timeout)
		defer cancel()
		if _, err := s.cache.Refresh(rctx); err != nil {
			logger.Warn("Failed to refresh roster after event", "event", e.Type, "error", err)
			return
		}
		logger.Debug("Roster refreshed", "event", e.Type)
	}, pubsub.EventPlayerAdded, pubsub.EventPlayerDeleted, pubsub.EventGameSubmitted)
}

func (s *Server) basePage(r *http.Request, title string) page {
	p := page{Title: title}
	if sess := auth.FromContext(r.Context()); sess != nil {
		p.CSRF = sess.CSRF
		p.User = sess.User
	}
	return p
}

// formInt reads a non-negative integer from the query or form; anything else is 0
func formInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.FormValue(key))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func pathID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
