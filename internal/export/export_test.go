package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/config"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/models"
)

type stubSource struct {
	entries  []models.LeaderboardEntry
	games    []models.Game
	err      error
	regionID int
	limit    int
}

func (s *stubSource) Leaderboard(_ context.Context, regionID int) ([]models.LeaderboardEntry, error) {
	s.regionID = regionID
	return s.entries, s.err
}

func (s *stubSource) Games(_ context.Context, limit int) ([]models.Game, error) {
	s.limit = limit
	return s.games, nil
}

func sampleSource() *stubSource {
	played := models.Timestamp{Time: time.Date(2025, 1, 15, 14, 30, 0, 0, time.UTC)}
	return &stubSource{
		entries: []models.LeaderboardEntry{
			{Rank: 1, Player: models.Player{ID: 1, Name: "Alice", RegionName: "Europe", Rating: 1520, GamesPlayed: 3, FirstPlace: 2, WinRate: 66.7}},
			{Rank: 2, Player: models.Player{ID: 2, Name: "Bob", RegionName: "Asia", Rating: 1480, GamesPlayed: 3}},
		},
		games: []models.Game{{
			ID: 7, PlayedAt: played, NumPlayers: 2,
			Participants: []models.Participant{
				{PlayerID: 1, PlayerName: "Alice", Placement: 1, Points: 18, RatingChange: 5},
				{PlayerID: 2, PlayerName: "Bob", Placement: 2, Points: 12, RatingChange: -5},
			},
		}},
	}
}

func TestBytesProducesBothSheets(t *testing.T) {
	src := sampleSource()
	data, err := Bytes(context.Background(), src, 3, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, src.regionID)
	assert.Equal(t, 10, src.limit)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetLeaderboard, SheetGames}, f.GetSheetList())

	rows, err := f.GetRows(SheetLeaderboard)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Rank", rows[0][0])
	assert.Equal(t, []string{"1", "Alice", "Europe", "1520"}, rows[1][:4])
	assert.Equal(t, "66.7%", rows[1][9])

	rows, err = f.GetRows(SheetGames)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"7", "1/15/2025, 2:30:00 PM", "2", "2", "Bob", "12", "-5"}, rows[2])
}

func TestBuildFailsWhenLeaderboardFails(t *testing.T) {
	src := &stubSource{err: errors.New("upstream down")}
	_, err := Build(context.Background(), src, 0, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load leaderboard")
}

func TestFileName(t *testing.T) {
	at := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	assert.Equal(t, "rankings-all-20250203-040506.xlsx", FileName("", at))
	assert.Equal(t, "rankings-north-america-20250203-040506.xlsx", FileName("North  America", at))
}

func TestUploaderPutsObject(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
		body   []byte
		ctype  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		method, path, ctype = r.Method, r.URL.Path, r.Header.Get("Content-Type")
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	u, err := NewUploader(config.S3Config{
		Endpoint:     srv.URL,
		Region:       "us-east-1",
		Bucket:       "exports-bucket",
		AccessKey:    "key",
		AccessSecret: "secret",
	})
	require.NoError(t, err)

	key, err := u.Upload(context.Background(), "rankings-all.xlsx", []byte("workbook"))
	require.NoError(t, err)
	assert.Equal(t, "exports/rankings-all.xlsx", key)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/exports-bucket/exports/rankings-all.xlsx", path)
	assert.Equal(t, ContentType, ctype)
	assert.Equal(t, "workbook", string(body))
}

func TestNewUploaderRequiresBucket(t *testing.T) {
	_, err := NewUploader(config.S3Config{Region: "us-east-1"})
	assert.Error(t, err)
}
