package seed

import (
	"context"
	"fmt"
	"sort"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/logger"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/models"
)

// Gateway is the admin surface of the ranking service used for seeding.
// The caller must be logged in.
type Gateway interface {
	Regions(ctx context.Context) ([]models.Region, error)
	AddRegion(ctx context.Context, r models.NewRegion) (models.Region, error)
	Players(ctx context.Context) ([]models.Player, error)
	AddPlayer(ctx context.Context, p models.NewPlayer) (models.Player, error)
	SubmitGame(ctx context.Context, g models.GameSubmission) (*models.Game, error)
}

// Options control how much test data is created
type Options struct {
	Regions          []string
	PlayersPerRegion int
	Games            int
	Seed             uint64
}

// DefaultOptions mirrors the usual demo data set
func DefaultOptions() Options {
	return Options{
		Regions:          []string{"North America", "Europe", "Asia"},
		PlayersPerRegion: 3,
		Games:            30,
	}
}

// Result counts what was created; existing regions and players are reused
type Result struct {
	Regions int
	Players int
	Games   int
}

// Run creates missing regions, fake players and random games with 2 to 4
// seats. Games may mix regions.
func Run(ctx context.Context, gw Gateway, opts Options) (*Result, error) {
	faker := gofakeit.New(opts.Seed)
	res := &Result{}

	existing, err := gw.Regions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	byName := make(map[string]models.Region, len(existing))
	for _, r := range existing {
		byName[r.Name] = r
	}
	var regions []models.Region
	for _, name := range opts.Regions {
		r, ok := byName[name]
		if !ok {
			if r, err = gw.AddRegion(ctx, models.NewRegion{Name: name}); err != nil {
				return res, fmt.Errorf("add region %q: %w", name, err)
			}
			res.Regions++
		}
		regions = append(regions, r)
	}

	players, err := gw.Players(ctx)
	if err != nil {
		return res, fmt.Errorf("list players: %w", err)
	}
	taken := make(map[string]bool, len(players))
	for _, p := range players {
		taken[p.Name] = true
	}
	for _, r := range regions {
		for i := 0; i < opts.PlayersPerRegion; i++ {
			name := uniqueName(faker, taken)
			p, err := gw.AddPlayer(ctx, models.NewPlayer{Name: name, RegionID: r.ID})
			if err != nil {
				return res, fmt.Errorf("add player %q: %w", name, err)
			}
			players = append(players, p)
			res.Players++
		}
	}

	if len(players) < 2 {
		return res, fmt.Errorf("need at least 2 players for games, have %d", len(players))
	}
	for i := 0; i < opts.Games; i++ {
		game := RandomGame(faker, players)
		if _, err := gw.SubmitGame(ctx, game); err != nil {
			return res, fmt.Errorf("submit game %d: %w", i+1, err)
		}
		res.Games++
	}

	logger.Info("Seeded test data", "regions", res.Regions, "players", res.Players, "games", res.Games)
	return res, nil
}

func uniqueName(faker *gofakeit.Faker, taken map[string]bool) string {
	for {
		name := faker.FirstName()
		if taken[name] {
			name = faker.FirstName() + " " + faker.LastName()
		}
		if !taken[name] {
			taken[name] = true
			return name
		}
	}
}

// RandomGame draws 2 to 4 distinct players with random points between 5 and
// 15. Placement follows points; equal points share a placement.
func RandomGame(faker *gofakeit.Faker, players []models.Player) models.GameSubmission {
	seats := faker.Number(2, min(4, len(players)))

	pool := make([]models.Player, len(players))
	copy(pool, players)
	faker.ShuffleAnySlice(pool)
	pool = pool[:seats]

	points := make([]int, seats)
	for i := range points {
		points[i] = faker.Number(5, 15)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(points)))

	results := make([]models.GameResult, seats)
	for i, p := range pool {
		placement := 1
		for k := 0; k < i; k++ {
			if points[i] < points[k] {
				placement++
			}
		}
		pl, pts := placement, points[i]
		results[i] = models.GameResult{PlayerID: p.ID, Placement: &pl, Points: &pts}
	}
	return models.GameSubmission{Results: results}
}
