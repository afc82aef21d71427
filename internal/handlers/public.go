package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/chart"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/export"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/logger"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/ranking"
)

func (s *Server) board(r *http.Request) *boardPage {
	regionID := formInt(r, "region_id")
	return &boardPage{
		page:     s.basePage(r, "Leaderboard"),
		Regions:  s.view.LoadRegions(r.Context(), regionID),
		RegionID: regionID,
		Board:    s.view.LoadLeaderboard(r.Context(), regionID),
		Modal:    &ranking.Modal{},
		CloseURL: closeURL(regionID),
	}
}

func closeURL(regionID int) string {
	if regionID > 0 {
		return "/?region_id=" + strconv.Itoa(regionID)
	}
	return "/"
}

// leaderboardPage renders the leaderboard with its region filter
func (s *Server) leaderboardPage(w http.ResponseWriter, r *http.Request) {
	s.render.page(w, http.StatusOK, "leaderboard", s.board(r))
}

// leaderboardFragment renders only the table, for live refreshes
func (s *Server) leaderboardFragment(w http.ResponseWriter, r *http.Request) {
	regionID := formInt(r, "region_id")
	s.render.fragment(w, "leaderboard_list", &boardPage{
		RegionID: regionID,
		Board:    s.view.LoadLeaderboard(r.Context(), regionID),
	})
}

// playerPage renders the leaderboard with the player's modal open. When the
// details cannot be loaded the modal stays closed and an error alert is shown.
func (s *Server) playerPage(w http.ResponseWriter, r *http.Request) {
	data := s.board(r)
	id, ok := pathID(r)
	if !ok {
		data.Alerts = append(data.Alerts, errorAlert(ranking.DetailsFailed))
		s.render.page(w, http.StatusNotFound, "leaderboard", data)
		return
	}
	if err := s.view.ShowPlayerDetails(r.Context(), id, data.Modal); err != nil {
		data.Alerts = append(data.Alerts, errorAlert(ranking.DetailsFailed))
	} else {
		data.Title = data.Modal.Detail.Name
	}
	s.render.page(w, http.StatusOK, "leaderboard", data)
}

// playerChart renders the rating history of a player as PNG
func (s *Server) playerChart(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	p, err := s.gw.Player(r.Context(), id)
	if err != nil {
		logger.Warn("Failed to load player for chart", "player_id", id, "error", err)
		http.Error(w, ranking.DetailsFailed, http.StatusBadGateway)
		return
	}
	img, err := chart.RenderRatingHistory(*p, chart.DefaultPalette)
	if err != nil {
		logger.Error("Failed to render rating chart", "player_id", id, "error", err)
		http.Error(w, "Failed to render chart", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(img)
}

// exportLeaderboard streams the leaderboard and recent games as xlsx
func (s *Server) exportLeaderboard(w http.ResponseWriter, r *http.Request) {
	regionID := formInt(r, "region_id")
	data, err := export.Bytes(r.Context(), s.gw, regionID, s.cfg.Ranking.GamesLimit)
	if err != nil {
		logger.Error("Failed to build export", "region_id", regionID, "error", err)
		http.Error(w, "Failed to build export", http.StatusBadGateway)
		return
	}
	name := export.FileName(s.regionName(r.Context(), regionID), time.Now())
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Write(data)
}

func (s *Server) regionName(ctx context.Context, regionID int) string {
	if regionID <= 0 {
		return ""
	}
	for _, opt := range s.view.LoadRegions(ctx, regionID) {
		if opt.Selected {
			return opt.Name
		}
	}
	return ""
}

// liveness reports that the process is up, without checking dependencies
func (s *Server) liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().Unix(),
	})
}

// readiness reports the outcome of the last dependency probe
func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ready", "timestamp": time.Now().Unix()})
		return
	}
	ready, failing := s.health.Ready()
	if !ready {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "not_ready",
			"failing":   failing,
			"timestamp": time.Now().Unix(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ready", "timestamp": time.Now().Unix()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
