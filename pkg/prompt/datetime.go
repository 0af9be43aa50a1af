package prompt

import (
	"fmt"
	"time"
)

const participantTimeLayout = "January 02, 2006 at 03:04:05 PM"

// longDate renders "March 1st 2024".
func longDate(t time.Time) string {
	return fmt.Sprintf("%s %d%s %d", t.Month(), t.Day(), ordinal(t.Day()), t.Year())
}

func ordinal(n int) string {
	if n%100 >= 11 && n%100 <= 13 {
		return "th"
	}
	switch n % 10 {
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

func dateLine(now time.Time) string {
	return fmt.Sprintf("The current date is %s, day is %s, and time is %s in %s.",
		longDate(now), now.Weekday(), now.Format("3:04 PM"), now.Format("MST"))
}
