package chart

import (
	"bytes"
	"fmt"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/models"
)

// NoHistory is drawn for players without games
const NoHistory = "No games played yet"

// Palette colours a rendered chart
type Palette struct {
	Background drawing.Color
	Line       drawing.Color
	Dot        drawing.Color
	Text       drawing.Color
}

// DefaultPalette matches the leaderboard page
var DefaultPalette = Palette{
	Background: drawing.ColorFromHex("ffffff"),
	Line:       drawing.ColorFromHex("667eea"),
	Dot:        drawing.ColorFromHex("764ba2"),
	Text:       drawing.ColorFromHex("333333"),
}

// Point is the rating after the Nth of the player's recent games.
// Point 0 is the rating before the oldest of them.
type Point struct {
	Game   int
	GameID int
	Rating int
}

// RatingHistory walks the recent games (newest first, as served) back from
// the current rating and returns the points oldest first.
func RatingHistory(d models.PlayerDetail) []Point {
	n := len(d.RecentGames)
	if n == 0 {
		return nil
	}
	points := make([]Point, n+1)
	rating := d.Rating
	for i, g := range d.RecentGames {
		points[n-i] = Point{Game: n - i, GameID: g.GameID, Rating: rating}
		rating -= g.RatingChange
	}
	points[0] = Point{Game: 0, Rating: rating}
	return points
}

// RenderRatingHistory draws the rating history of d as a PNG
func RenderRatingHistory(d models.PlayerDetail, palette Palette) ([]byte, error) {
	points := RatingHistory(d)
	if len(points) == 0 {
		return renderPlaceholder(palette)
	}

	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	lo, hi := points[0].Rating, points[0].Rating
	for i, p := range points {
		xs[i] = float64(p.Game)
		ys[i] = float64(p.Rating)
		lo = min(lo, p.Rating)
		hi = max(hi, p.Rating)
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("%s rating history", d.Name),
		Width:  640,
		Height: 320,
		Background: chart.Style{
			FillColor: palette.Background,
			Padding:   chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		},
		Canvas: chart.Style{FillColor: palette.Background},
		TitleStyle: chart.Style{
			FontColor: palette.Text,
		},
		XAxis: chart.XAxis{
			Name:  "Game",
			Style: chart.Style{FontColor: palette.Text},
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%d", int(f))
				}
				return ""
			},
		},
		YAxis: chart.YAxis{
			Name:  "Rating",
			Style: chart.Style{FontColor: palette.Text},
			// padded so a flat history still has a non-zero range
			Range: &chart.ContinuousRange{Min: float64(lo - 10), Max: float64(hi + 10)},
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "Rating",
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeColor: palette.Line,
					StrokeWidth: 2,
					DotWidth:    4,
					DotColor:    palette.Dot,
				},
			},
		},
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render rating history: %w", err)
	}
	return buf.Bytes(), nil
}

// renderPlaceholder draws the message straight onto a PNG canvas; a chart
// without series does not render.
func renderPlaceholder(palette Palette) ([]byte, error) {
	const width, height = 400, 200

	r, err := chart.PNG(width, height)
	if err != nil {
		return nil, err
	}
	font, err := chart.GetDefaultFont()
	if err != nil {
		return nil, err
	}

	chart.Draw.Box(r, chart.Box{Top: 0, Left: 0, Right: width, Bottom: height}, chart.Style{
		FillColor:   palette.Background,
		StrokeColor: palette.Background,
		StrokeWidth: 1,
	})
	text := chart.Style{Font: font, FontColor: palette.Text, FontSize: 12}
	tb := chart.Draw.MeasureText(r, NoHistory, text)
	chart.Draw.Text(r, NoHistory, (width-tb.Width())/2, (height+tb.Height())/2, text)

	var buf bytes.Buffer
	if err := r.Save(&buf); err != nil {
		return nil, fmt.Errorf("render placeholder: %w", err)
	}
	return buf.Bytes(), nil
}
