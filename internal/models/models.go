package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Region groups players; created by an operator, never edited from this UI
type Region struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	CreatedAt Timestamp `json:"created_at,omitempty"`
}

// Player is a ranked player as reported by the ranking service
type Player struct {
	ID            int       `json:"id"`
	Name          string    `json:"name"`
	RegionID      int       `json:"region_id"`
	RegionName    string    `json:"region_name"`
	Rating        int       `json:"rating"`
	GamesPlayed   int       `json:"games_played"`
	FirstPlace    int       `json:"first_place"`
	SecondPlace   int       `json:"second_place"`
	ThirdPlace    int       `json:"third_place"`
	FourthPlace   int       `json:"fourth_place"`
	TotalPoints   int       `json:"total_points"`
	AveragePoints float64   `json:"average_points"`
	WinRate       float64   `json:"win_rate"`
	CreatedAt     Timestamp `json:"created_at,omitempty"`
}

// Deletable reports whether the UI offers deletion for this player.
// The ranking service stays authoritative.
func (p Player) Deletable() bool {
	return p.GamesPlayed == 0
}

// LeaderboardEntry is one ranked row. Rank is assigned by the server.
type LeaderboardEntry struct {
	Player
	Rank     int `json:"rank"`
	PlayerID int `json:"player_id,omitempty"`
}

// Ref returns the id used to open the player's details.
// Some service versions send player_id, others only id.
func (e LeaderboardEntry) Ref() int {
	if e.PlayerID != 0 {
		return e.PlayerID
	}
	return e.ID
}

// Participant is one seat of a recorded game
type Participant struct {
	ID           int    `json:"id,omitempty"`
	PlayerID     int    `json:"player_id"`
	PlayerName   string `json:"player_name"`
	Placement    int    `json:"placement"`
	Points       int    `json:"points"`
	RatingChange int    `json:"rating_change"`
}

// Game is a recorded game, read-only
type Game struct {
	ID           int           `json:"id"`
	PlayedAt     Timestamp     `json:"played_at"`
	NumPlayers   int           `json:"num_players"`
	Participants []Participant `json:"participants"`
}

// RecentGame is a player's view of one game they took part in
type RecentGame struct {
	GameID       int       `json:"game_id"`
	PlayedAt     Timestamp `json:"played_at"`
	Placement    int       `json:"placement"`
	Points       int       `json:"points"`
	RatingChange int       `json:"rating_change"`
	NumPlayers   int       `json:"num_players"`
}

// PlayerDetail is a player with placement counts and recent history
type PlayerDetail struct {
	Player
	RecentGames []RecentGame `json:"recent_games"`
}

// Seat is the raw input of one seat as entered in the game form
type Seat struct {
	PlayerID  string
	Placement string
	Points    string
}

// GameResult is the wire form of one seat.
// Placement and Points are nil when the entered text was not a number.
type GameResult struct {
	PlayerID  int  `json:"player_id"`
	Placement *int `json:"placement"`
	Points    *int `json:"points"`
}

// GameSubmission is the body of the game-recording request
type GameSubmission struct {
	Results []GameResult `json:"results"`
}

// SessionStatus is the ranking service's answer to the session check
type SessionStatus struct {
	LoggedIn bool `json:"logged_in"`
}

// Credentials are the operator's login form values
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// NewPlayer is the body of the add-player request
type NewPlayer struct {
	Name     string `json:"name"`
	RegionID int    `json:"region_id"`
}

// NewRegion is the body of the add-region request
type NewRegion struct {
	Name string `json:"name"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Timestamp accepts RFC3339 and the naive ISO-8601 form the ranking service emits
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			t.Time = ts
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

// MarshalJSON implements json.Marshaler
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}
