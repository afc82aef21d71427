// Package gatewaytest runs an in-memory ranking service for tests
package gatewaytest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/models"
)

const (
	Username   = "admin"
	Password   = "secret"
	cookieName = "session"
	cookieVal  = "operator-ok"
)

// Call is one request seen by the fake
type Call struct {
	Pattern string
	Body    []byte
}

type override struct {
	status int
	msg    string
	drop   bool
}

// Server is a fake ranking service backed by memory
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	regions   []models.Region
	players   []models.Player
	games     []models.Game
	nextID    int
	calls     []Call
	overrides map[string]override
	holds     map[string]chan struct{}
}

// NewServer starts a fake and closes it with the test
func NewServer(t testing.TB) *Server {
	s := &Server{
		nextID:    1,
		overrides: make(map[string]override),
		holds:     make(map[string]chan struct{}),
	}

	mux := http.NewServeMux()
	s.handle(mux, "GET /api/regions", false, s.listRegions)
	s.handle(mux, "POST /api/admin/regions", true, s.addRegion)
	s.handle(mux, "GET /api/players", false, s.listPlayers)
	s.handle(mux, "GET /api/players/{id}", false, s.getPlayer)
	s.handle(mux, "POST /api/admin/players", true, s.addPlayer)
	s.handle(mux, "DELETE /api/admin/players/{id}", true, s.deletePlayer)
	s.handle(mux, "GET /api/games", false, s.listGames)
	s.handle(mux, "POST /api/admin/games", true, s.addGame)
	s.handle(mux, "GET /api/leaderboard", false, s.leaderboard)
	s.handle(mux, "GET /api/admin/check", false, s.check)
	s.handle(mux, "POST /api/admin/login", false, s.login)
	s.handle(mux, "POST /api/admin/logout", false, s.logout)

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// SessionCookie is the cookie the fake hands out on login
func SessionCookie() *http.Cookie {
	return &http.Cookie{Name: cookieName, Value: cookieVal}
}

// SeedRegion adds a region directly
func (s *Server) SeedRegion(name string) models.Region {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := models.Region{ID: s.id(), Name: name, CreatedAt: models.Timestamp{Time: time.Now().UTC()}}
	s.regions = append(s.regions, r)
	return r
}

// SeedPlayer adds a player directly
func (s *Server) SeedPlayer(name string, regionID, gamesPlayed int) models.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := models.Player{ID: s.id(), Name: name, RegionID: regionID, Rating: 1500, GamesPlayed: gamesPlayed}
	for _, r := range s.regions {
		if r.ID == regionID {
			p.RegionName = r.Name
		}
	}
	s.players = append(s.players, p)
	return p
}

// Reject makes every call to pattern answer status with {"error": msg}.
// An empty msg answers with an empty body.
func (s *Server) Reject(pattern string, status int, msg string) {
	s.mu.Lock()
	s.overrides[pattern] = override{status: status, msg: msg}
	s.mu.Unlock()
}

// Drop makes every call to pattern close the connection without answering
func (s *Server) Drop(pattern string) {
	s.mu.Lock()
	s.overrides[pattern] = override{drop: true}
	s.mu.Unlock()
}

// Restore removes a Reject or Drop
func (s *Server) Restore(pattern string) {
	s.mu.Lock()
	delete(s.overrides, pattern)
	s.mu.Unlock()
}

// Hold blocks calls to pattern until the returned func is called
func (s *Server) Hold(pattern string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.holds[pattern] = ch
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.holds, pattern)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Calls returns the requests seen for pattern, in order
func (s *Server) Calls(pattern string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if c.Pattern == pattern {
			out = append(out, c)
		}
	}
	return out
}

// CallCount counts every request seen
func (s *Server) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Players returns the stored players
func (s *Server) Players() []models.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Player(nil), s.players...)
}

func (s *Server) id() int {
	id := s.nextID
	s.nextID++
	return id
}

func (s *Server) handle(mux *http.ServeMux, pattern string, admin bool, h func(http.ResponseWriter, *http.Request)) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = readAll(r)
		}

		s.mu.Lock()
		s.calls = append(s.calls, Call{Pattern: pattern, Body: body})
		ov, hasOverride := s.overrides[pattern]
		hold := s.holds[pattern]
		s.mu.Unlock()

		if hold != nil {
			<-hold
		}

		if hasOverride {
			if ov.drop {
				if hj, ok := w.(http.Hijacker); ok {
					conn, _, err := hj.Hijack()
					if err == nil {
						conn.Close()
						return
					}
				}
				panic(http.ErrAbortHandler)
			}
			if ov.msg == "" {
				w.WriteHeader(ov.status)
				return
			}
			writeJSON(w, ov.status, map[string]string{"error": ov.msg})
			return
		}

		if admin && !authorized(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Admin authentication required"})
			return
		}

		r.Body = nopBody(body)
		h(w, r)
	})
}

func authorized(r *http.Request) bool {
	c, err := r.Cookie(cookieName)
	return err == nil && c.Value == cookieVal
}

func (s *Server) listRegions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := append([]models.Region{}, s.regions...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) addRegion(w http.ResponseWriter, r *http.Request) {
	var req models.NewRegion
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid or duplicate region name"})
		return
	}
	s.mu.Lock()
	for _, existing := range s.regions {
		if existing.Name == req.Name {
			s.mu.Unlock()
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid or duplicate region name"})
			return
		}
	}
	reg := models.Region{ID: s.id(), Name: req.Name, CreatedAt: models.Timestamp{Time: time.Now().UTC()}}
	s.regions = append(s.regions, reg)
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "region": reg})
}

func (s *Server) listPlayers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := append([]models.Player{}, s.players...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getPlayer(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(r.PathValue("id"))
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.players {
		if p.ID != id {
			continue
		}
		detail := models.PlayerDetail{Player: p}
		for _, g := range s.games {
			for _, part := range g.Participants {
				if part.PlayerID == id {
					detail.RecentGames = append(detail.RecentGames, models.RecentGame{
						GameID:       g.ID,
						PlayedAt:     g.PlayedAt,
						Placement:    part.Placement,
						Points:       part.Points,
						RatingChange: part.RatingChange,
						NumPlayers:   g.NumPlayers,
					})
				}
			}
		}
		writeJSON(w, http.StatusOK, detail)
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "Player not found"})
}

func (s *Server) addPlayer(w http.ResponseWriter, r *http.Request) {
	var req models.NewPlayer
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || req.RegionID == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Name and Region are required"})
		return
	}
	s.mu.Lock()
	for _, p := range s.players {
		if p.Name == req.Name {
			s.mu.Unlock()
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Player already exists"})
			return
		}
	}
	var region *models.Region
	for i := range s.regions {
		if s.regions[i].ID == req.RegionID {
			region = &s.regions[i]
		}
	}
	if region == nil {
		s.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Region not found"})
		return
	}
	p := models.Player{ID: s.id(), Name: req.Name, RegionID: region.ID, RegionName: region.Name, Rating: 1500}
	s.players = append(s.players, p)
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "player": p})
}

func (s *Server) deletePlayer(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(r.PathValue("id"))
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.players {
		if p.ID != id {
			continue
		}
		if p.GamesPlayed > 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Cannot delete player with history"})
			return
		}
		s.players = append(s.players[:i], s.players[i+1:]...)
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "Player not found"})
}

func (s *Server) listGames(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	s.mu.Lock()
	out := append([]models.Game{}, s.games...)
	s.mu.Unlock()
	if len(out) > limit {
		out = out[:limit]
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) addGame(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Results []struct {
			PlayerID  int  `json:"player_id"`
			Placement *int `json:"placement"`
			Points    *int `json:"points"`
		} `json:"results"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request"})
		return
	}
	if len(req.Results) < 2 || len(req.Results) > 4 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Game must have 2-4 players"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	game := models.Game{ID: s.id(), PlayedAt: models.Timestamp{Time: time.Now().UTC()}, NumPlayers: len(req.Results)}
	for _, res := range req.Results {
		if res.Placement == nil || res.Points == nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Placement and points are required"})
			return
		}
		idx := -1
		for i, p := range s.players {
			if p.ID == res.PlayerID {
				idx = i
			}
		}
		if idx < 0 {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Player " + strconv.Itoa(res.PlayerID) + " not found"})
			return
		}
		delta := (len(req.Results)+1)*5 - *res.Placement*10
		p := &s.players[idx]
		p.Rating += delta
		p.GamesPlayed++
		p.TotalPoints += *res.Points
		game.Participants = append(game.Participants, models.Participant{
			PlayerID:     p.ID,
			PlayerName:   p.Name,
			Placement:    *res.Placement,
			Points:       *res.Points,
			RatingChange: delta,
		})
	}
	s.games = append([]models.Game{game}, s.games...)
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "game": game})
}

func (s *Server) leaderboard(w http.ResponseWriter, r *http.Request) {
	regionID, _ := strconv.Atoi(r.URL.Query().Get("region_id"))
	s.mu.Lock()
	var ranked []models.Player
	for _, p := range s.players {
		if regionID == 0 || p.RegionID == regionID {
			ranked = append(ranked, p)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Rating > ranked[j].Rating })
	out := make([]models.LeaderboardEntry, 0, len(ranked))
	for i, p := range ranked {
		out = append(out, models.LeaderboardEntry{Player: p, Rank: i + 1, PlayerID: p.ID})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) check(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.SessionStatus{LoggedIn: authorized(r)})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req models.Credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username != Username || req.Password != Password {
		writeJSON(w, http.StatusUnauthorized, map[string]bool{"success": false})
		return
	}
	http.SetCookie(w, &http.Cookie{Name: cookieName, Value: cookieVal, Path: "/"})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: cookieName, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readAll(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

func nopBody(b []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(b))
}
