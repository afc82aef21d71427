// Package format holds the small display helpers shared by every view:
// placement badges, ordinal suffixes, signed rating deltas and dates.
package format

import (
	"fmt"
	"html"
	"strconv"
	"time"
)

const (
	DateLayout     = "1/2/2006"
	DateTimeLayout = "1/2/2006, 3:04:05 PM"
)

var placementEmoji = map[int]string{
	1: "🥇",
	2: "🥈",
	3: "🥉",
	4: "4️⃣",
}

// PlacementEmoji returns the badge for placements 1-4 and "" otherwise
func PlacementEmoji(placement int) string {
	return placementEmoji[placement]
}

// OrdinalSuffix returns st/nd/rd for 1-3 and th for anything else
func OrdinalSuffix(placement int) string {
	switch placement {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	default:
		return "th"
	}
}

// Placement renders "🥇 1st"
func Placement(placement int) string {
	return fmt.Sprintf("%s %d%s", PlacementEmoji(placement), placement, OrdinalSuffix(placement))
}

// SignedDelta renders a rating change with an explicit sign for non-negative values
func SignedDelta(delta int) string {
	if delta >= 0 {
		return "+" + strconv.Itoa(delta)
	}
	return strconv.Itoa(delta)
}

// DeltaClass is the css class colouring a rating change
func DeltaClass(delta int) string {
	if delta >= 0 {
		return "delta-up"
	}
	return "delta-down"
}

// Percent renders a win rate as "x%"
func Percent(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "%"
}

// Number renders a float without trailing zeros
func Number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Points renders "N pts"
func Points(points int) string {
	return fmt.Sprintf("%d pts", points)
}

// GameTitle renders "Game #id"
func GameTitle(id int) string {
	return fmt.Sprintf("Game #%d", id)
}

// Date renders a played_at date; zero times render empty
func Date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// DateTime renders a played_at timestamp; zero times render empty
func DateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateTimeLayout)
}

// Escape makes text safe for interpolation into markup.
// Templates escape on their own; this is for strings built outside them.
func Escape(s string) string {
	return html.EscapeString(s)
}

// PlayerLabel is the option label used by player selectors
func PlayerLabel(name, region string) string {
	return fmt.Sprintf("%s (%s)", name, region)
}
