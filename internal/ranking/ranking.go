// Package ranking builds the leaderboard, the region filter and the
// player detail modal from ranking service data.
package ranking

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/format"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/listview"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/logger"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/models"
)

const (
	EmptyAll            = "No players yet."
	EmptyRegion         = "No rankings for this region yet."
	NoGamesPlaceholder  = "No games played yet"
	DetailsFailed       = "Failed to load player details"
	RecentGamesColumns  = 4
	ModalBackdropTarget = "player-modal"
)

// Source is the part of the gateway the ranking view reads from
type Source interface {
	Leaderboard(ctx context.Context, regionID int) ([]models.LeaderboardEntry, error)
	Player(ctx context.Context, id int) (*models.PlayerDetail, error)
	Regions(ctx context.Context) ([]models.Region, error)
}

// Row is one rendered leaderboard line
type Row struct {
	Rank          int
	RankClass     string
	PlayerID      int
	Name          string
	Rating        int
	GamesPlayed   int
	WinRate       string
	AveragePoints string
}

// RegionOption is one entry of the region filter
type RegionOption struct {
	ID       int
	Name     string
	Selected bool
}

// View renders ranking data
type View struct {
	src Source
}

// NewView creates a ranking view over src
func NewView(src Source) *View {
	return &View{src: src}
}

// RankClass maps ranks 1-3 to their own badge class and every other rank to rank-other.
// Ranks are rendered as the server sent them, duplicates included.
func RankClass(rank int) string {
	switch rank {
	case 1, 2, 3:
		return "rank-" + strconv.Itoa(rank)
	default:
		return "rank-other"
	}
}

// EmptyMessage picks the empty-state text for the active filter
func EmptyMessage(regionID int) string {
	if regionID > 0 {
		return EmptyRegion
	}
	return EmptyAll
}

// NewRow projects one leaderboard entry
func NewRow(e models.LeaderboardEntry) Row {
	return Row{
		Rank:          e.Rank,
		RankClass:     RankClass(e.Rank),
		PlayerID:      e.Ref(),
		Name:          e.Name,
		Rating:        e.Rating,
		GamesPlayed:   e.GamesPlayed,
		WinRate:       format.Percent(e.WinRate),
		AveragePoints: format.Number(e.AveragePoints),
	}
}

// LoadLeaderboard fetches the leaderboard, optionally scoped to a region (0 = all)
func (v *View) LoadLeaderboard(ctx context.Context, regionID int) *listview.View[Row] {
	fetch := func(ctx context.Context) ([]models.LeaderboardEntry, error) {
		return v.src.Leaderboard(ctx, regionID)
	}
	return listview.Load(ctx, "leaderboard", EmptyMessage(regionID), fetch, NewRow)
}

// LoadRegions fetches the region filter options. A failure is logged and yields none.
func (v *View) LoadRegions(ctx context.Context, selected int) []RegionOption {
	regions, err := v.src.Regions(ctx)
	if err != nil {
		logger.Warn("Failed to load regions", "error", err)
		return nil
	}
	opts := make([]RegionOption, 0, len(regions))
	for _, r := range regions {
		opts = append(opts, RegionOption{ID: r.ID, Name: r.Name, Selected: r.ID == selected})
	}
	return opts
}

// RecentRow is one line of the player's recent games
type RecentRow struct {
	Date       string
	Placement  string
	Points     int
	Delta      string
	DeltaClass string
}

// Detail is the content of the player modal
type Detail struct {
	ID            int
	Name          string
	Region        string
	Rating        int
	GamesPlayed   int
	WinRate       string
	AveragePoints string
	FirstPlace    int
	SecondPlace   int
	ThirdPlace    int
	FourthPlace   int
	Recent        []RecentRow
	Placeholder   string
	Colspan       int
}

// NewDetail projects a player detail record into the modal content
func NewDetail(p *models.PlayerDetail) *Detail {
	d := &Detail{
		ID:            p.ID,
		Name:          p.Name,
		Region:        p.RegionName,
		Rating:        p.Rating,
		GamesPlayed:   p.GamesPlayed,
		WinRate:       format.Percent(p.WinRate),
		AveragePoints: format.Number(p.AveragePoints),
		FirstPlace:    p.FirstPlace,
		SecondPlace:   p.SecondPlace,
		ThirdPlace:    p.ThirdPlace,
		FourthPlace:   p.FourthPlace,
	}
	if len(p.RecentGames) == 0 {
		d.Placeholder = NoGamesPlaceholder
		d.Colspan = RecentGamesColumns
		return d
	}
	for _, g := range p.RecentGames {
		d.Recent = append(d.Recent, RecentRow{
			Date:       format.Date(g.PlayedAt.Time),
			Placement:  format.Placement(g.Placement),
			Points:     g.Points,
			Delta:      format.SignedDelta(g.RatingChange),
			DeltaClass: format.DeltaClass(g.RatingChange),
		})
	}
	return d
}

// Modal is the two-state player overlay
type Modal struct {
	Active bool
	Detail *Detail
}

// Open shows d
func (m *Modal) Open(d *Detail) {
	m.Detail = d
	m.Active = true
}

// Close hides the modal
func (m *Modal) Close() {
	m.Active = false
}

// Click closes the modal only when the click landed on the backdrop itself
func (m *Modal) Click(target string) {
	if target == ModalBackdropTarget {
		m.Close()
	}
}

// ShowPlayerDetails fetches a player and opens the modal.
// On failure the modal stays as it was and the error is returned for the alert.
func (v *View) ShowPlayerDetails(ctx context.Context, id int, m *Modal) error {
	p, err := v.src.Player(ctx, id)
	if err != nil {
		logger.Warn("Failed to load player details", "player_id", id, "error", err)
		return fmt.Errorf("load player %d: %w", id, err)
	}
	m.Open(NewDetail(p))
	return nil
}
