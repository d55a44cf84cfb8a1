// Package racedate parses race-card dates and renders the labels the DRF
// calendar widget displays for them.
package racedate

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// layouts accepted by Parse, tried in order
var layouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"Jan 2 2006",
	"Jan 02 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"1.2.06",
}

// Parse parses a date in any of the supported layouts.
// Supports formats: "2024-12-14", "12/14/2024", "12/14/24", "Dec 14 2024",
// "December 14, 2024", "12.14.24". The empty string is today.
func Parse(dateText string) (time.Time, error) {
	dateText = strings.TrimSpace(dateText)
	if dateText == "" {
		now := time.Now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, dateText); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized date %q (want YYYY-MM-DD)", dateText)
}

// DayLabel is the day-of-month text shown in a calendar cell
func DayLabel(t time.Time) string {
	return strconv.Itoa(t.Day())
}

// MonthYearLabels returns the month headings a calendar may show for t,
// long form first: "December 2024", "Dec 2024".
func MonthYearLabels(t time.Time) []string {
	return []string{
		t.Format("January 2006"),
		t.Format("Jan 2006"),
	}
}
