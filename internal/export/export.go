package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/format"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/models"
)

const (
	SheetLeaderboard = "Leaderboard"
	SheetGames       = "Games"
	ContentType      = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var (
	leaderboardHeader = []interface{}{"Rank", "Player", "Region", "Rating", "Games", "1st", "2nd", "3rd", "4th", "Win Rate", "Avg Points"}
	gamesHeader       = []interface{}{"Game", "Played At", "Players", "Placement", "Player", "Points", "Rating Change"}
)

// Source is the part of the gateway the export reads
type Source interface {
	Leaderboard(ctx context.Context, regionID int) ([]models.LeaderboardEntry, error)
	Games(ctx context.Context, limit int) ([]models.Game, error)
}

// Build fetches the leaderboard (regionID 0 for all regions) and the latest
// games and lays them out on two sheets.
func Build(ctx context.Context, src Source, regionID, gamesLimit int) (*excelize.File, error) {
	entries, err := src.Leaderboard(ctx, regionID)
	if err != nil {
		return nil, fmt.Errorf("load leaderboard: %w", err)
	}
	games, err := src.Games(ctx, gamesLimit)
	if err != nil {
		return nil, fmt.Errorf("load games: %w", err)
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetLeaderboard); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.NewSheet(SheetGames); err != nil {
		f.Close()
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, err
	}

	rows := make([][]interface{}, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []interface{}{
			e.Rank, e.Name, e.RegionName, e.Rating, e.GamesPlayed,
			e.FirstPlace, e.SecondPlace, e.ThirdPlace, e.FourthPlace,
			format.Percent(e.WinRate), e.AveragePoints,
		})
	}
	if err := writeSheet(f, SheetLeaderboard, leaderboardHeader, rows, bold); err != nil {
		f.Close()
		return nil, err
	}

	rows = rows[:0]
	for _, g := range games {
		for _, p := range g.Participants {
			rows = append(rows, []interface{}{
				g.ID, format.DateTime(g.PlayedAt.Time), g.NumPlayers,
				p.Placement, p.PlayerName, p.Points, p.RatingChange,
			})
		}
	}
	if err := writeSheet(f, SheetGames, gamesHeader, rows, bold); err != nil {
		f.Close()
		return nil, err
	}

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   "Rankings export",
		Creator: "ranking-ui",
		Created: time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func writeSheet(f *excelize.File, sheet string, header []interface{}, rows [][]interface{}, headerStyle int) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+2, err)
		}
	}
	last, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", last, 14); err != nil {
		return err
	}
	return f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

// Write builds the workbook and writes it to w
func Write(ctx context.Context, src Source, regionID, gamesLimit int, w io.Writer) error {
	f, err := Build(ctx, src, regionID, gamesLimit)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Bytes builds the workbook in memory
func Bytes(ctx context.Context, src Source, regionID, gamesLimit int) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(ctx, src, regionID, gamesLimit, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileName is the download name of an export taken at t
func FileName(regionName string, t time.Time) string {
	scope := "all"
	if regionName != "" {
		scope = strings.ToLower(strings.Join(strings.Fields(regionName), "-"))
	}
	return fmt.Sprintf("rankings-%s-%s.xlsx", scope, t.UTC().Format("20060102-150405"))
}
