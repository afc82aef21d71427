package submission

import (
	"strconv"
	"strings"

	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/format"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/models"
)

const (
	PlacementMin = 1
	PlacementMax = 4
	PointsMin    = 1
	PointsMax    = 15
)

// PlayerOption is one entry of a seat's player selector
type PlayerOption struct {
	ID       int
	Label    string
	Selected bool
}

// SeatInput is the rendered state of one seat
type SeatInput struct {
	Index     int
	Options   []PlayerOption
	PlayerID  string
	Placement string
	Points    string
}

// Form is the game form sized to N seats
type Form struct {
	Seats []SeatInput
}

// SeatCount is the number of seats in the form
func (f *Form) SeatCount() int {
	return len(f.Seats)
}

// BuildForm returns a fresh form with n seats. Each placement defaults to the
// seat's position and points start empty. Nothing of a previous form survives.
func BuildForm(n int, players []models.Player) (*Form, error) {
	if n < 1 {
		return nil, ErrInvalidSeatCount
	}
	f := &Form{Seats: make([]SeatInput, n)}
	for i := range f.Seats {
		f.Seats[i] = SeatInput{
			Index:     i + 1,
			Options:   options(players, ""),
			Placement: strconv.Itoa(i + 1),
		}
	}
	return f, nil
}

// FormFromDraft rebuilds a form that keeps what the operator entered,
// used after a failed submission so the values can be corrected.
func FormFromDraft(draft []models.Seat, players []models.Player) *Form {
	f := &Form{Seats: make([]SeatInput, len(draft))}
	for i, s := range draft {
		f.Seats[i] = SeatInput{
			Index:     i + 1,
			Options:   options(players, s.PlayerID),
			PlayerID:  s.PlayerID,
			Placement: s.Placement,
			Points:    s.Points,
		}
	}
	return f
}

func options(players []models.Player, selected string) []PlayerOption {
	sel, _ := strconv.Atoi(strings.TrimSpace(selected))
	out := make([]PlayerOption, 0, len(players))
	for _, p := range players {
		out = append(out, PlayerOption{
			ID:       p.ID,
			Label:    format.PlayerLabel(p.Name, p.RegionName),
			Selected: sel != 0 && p.ID == sel,
		})
	}
	return out
}

// Validate checks the draft in seat order and builds the wire results.
// The first seat without a player fails with MissingPlayer, the first
// repeated player with DuplicatePlayer. Placement and points go out as
// entered; text that is not a number is sent as null.
func Validate(draft []models.Seat) ([]models.GameResult, error) {
	seen := make(map[int]struct{}, len(draft))
	results := make([]models.GameResult, 0, len(draft))

	for i, s := range draft {
		id, err := strconv.Atoi(strings.TrimSpace(s.PlayerID))
		if err != nil || id == 0 {
			return nil, &Error{Kind: MissingPlayer, Seat: i + 1, Message: MsgMissingPlayer}
		}
		if _, dup := seen[id]; dup {
			return nil, &Error{Kind: DuplicatePlayer, Seat: i + 1, Message: MsgDuplicatePlayer}
		}
		seen[id] = struct{}{}

		results = append(results, models.GameResult{
			PlayerID:  id,
			Placement: parseOptional(s.Placement),
			Points:    parseOptional(s.Points),
		})
	}
	return results, nil
}

func parseOptional(s string) *int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return &n
}
