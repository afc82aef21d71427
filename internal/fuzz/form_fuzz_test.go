package fuzz

import (
	"errors"
	"testing"

	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/format"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/models"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/submission"
)

// FuzzValidateDraft checks that validation either accepts every seat or
// names the failing one
func FuzzValidateDraft(f *testing.F) {
	f.Add("1", "1", "15", "2", "2", "12")
	f.Add("1", "1", "15", "1", "2", "12")
	f.Add("", "", "", "2", "", "")
	f.Add(" 7 ", "x", "1e3", "0", "-1", "")

	f.Fuzz(func(t *testing.T, p1, place1, pts1, p2, place2, pts2 string) {
		draft := []models.Seat{
			{PlayerID: p1, Placement: place1, Points: pts1},
			{PlayerID: p2, Placement: place2, Points: pts2},
		}
		results, err := submission.Validate(draft)
		if err == nil {
			if len(results) != len(draft) {
				t.Fatalf("got %d results for %d seats", len(results), len(draft))
			}
			if results[0].PlayerID == results[1].PlayerID {
				t.Fatalf("duplicate player %d accepted", results[0].PlayerID)
			}
			return
		}
		var se *submission.Error
		if !errors.As(err, &se) {
			t.Fatalf("unexpected error type %T", err)
		}
		if se.Seat < 1 || se.Seat > len(draft) {
			t.Fatalf("seat %d out of range", se.Seat)
		}
		if !submission.IsValidation(err) {
			t.Fatalf("validation returned %s", se.Kind)
		}
	})
}

// FuzzFormatting checks the display helpers never panic on odd values
func FuzzFormatting(f *testing.F) {
	f.Add(1, 10, "Alice", "Europe")
	f.Add(0, 0, "", "")
	f.Add(-5, -2147483648, "<b>", "&")

	f.Fuzz(func(t *testing.T, placement, delta int, name, region string) {
		format.PlacementEmoji(placement)
		format.Placement(placement)
		if got := format.SignedDelta(delta); got == "" {
			t.Fatal("empty delta")
		}
		format.DeltaClass(delta)
		format.PlayerLabel(name, region)
		format.Escape(name)
	})
}
