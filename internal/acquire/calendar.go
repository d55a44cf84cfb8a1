package acquire

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/pfrederiksen/drf-pp/internal/browser"
	"github.com/pfrederiksen/drf-pp/internal/racedate"
)

// ErrAmbiguousDate is returned when the calendar shows the day number more
// than once and the target month cannot be told apart
var ErrAmbiguousDate = errors.New("ambiguous calendar day")

// ErrDayNotFound is returned when no calendar cell shows the day number
var ErrDayNotFound = errors.New("calendar day not found")

var monthYearPattern = regexp.MustCompile(`(?i)^(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{4}$`)

// DaySelector picks the calendar cell for date from the page HTML.
//
// Cells are spans whose own text is the day number. Each is attributed to
// the month heading of its nearest enclosing element that has exactly one
// heading, and only cells under the target month survive. A single cell with
// no heading anywhere above it is accepted.
func DaySelector(page string, date time.Time) (browser.Selector, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return browser.Selector{}, fmt.Errorf("parsing calendar: %w", err)
	}

	day := racedate.DayLabel(date)
	candidates := doc.Find("span").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return hasOwnText(s, day)
	})

	base := "//span[text()=" + browser.Literal(day) + "]"
	if candidates.Length() == 0 {
		return browser.Selector{}, fmt.Errorf("%w: %s", ErrDayNotFound, day)
	}

	wanted := make(map[string]bool)
	for _, l := range racedate.MonthYearLabels(date) {
		wanted[normalizeLabel(l)] = true
	}

	if candidates.Length() == 1 {
		if month, labeled := monthOf(candidates); !labeled || wanted[month] {
			return browser.ByXPath(base), nil
		}
		return browser.Selector{}, fmt.Errorf("%w: only day %s shown is outside %s",
			ErrAmbiguousDate, day, date.Format("January 2006"))
	}

	var matches []int
	candidates.Each(func(i int, s *goquery.Selection) {
		if month, _ := monthOf(s); wanted[month] {
			matches = append(matches, i+1)
		}
	})

	if len(matches) != 1 {
		return browser.Selector{}, fmt.Errorf("%w: day %s appears %d times, %d under %s",
			ErrAmbiguousDate, day, candidates.Length(), len(matches), date.Format("January 2006"))
	}
	return browser.ByXPath(fmt.Sprintf("(%s)[%d]", base, matches[0])), nil
}

// hasOwnText reports whether one of s's direct text nodes is exactly text
func hasOwnText(s *goquery.Selection, text string) bool {
	for _, n := range s.Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode && c.Data == text {
				return true
			}
		}
	}
	return false
}

// monthOf returns the normalized heading of the nearest ancestor that holds
// any month headings. month is "" when that ancestor holds several; labeled
// is false when no ancestor holds one.
func monthOf(s *goquery.Selection) (month string, labeled bool) {
	s.Parents().EachWithBreak(func(_ int, anc *goquery.Selection) bool {
		labels := monthLabels(anc)
		if len(labels) == 0 {
			return true
		}
		labeled = true
		if len(labels) == 1 {
			month = labels[0]
		}
		return false
	})
	return month, labeled
}

func monthLabels(s *goquery.Selection) []string {
	var labels []string
	s.Find("*").Each(func(_ int, el *goquery.Selection) {
		if el.Children().Length() > 0 {
			return
		}
		if text := normalizeLabel(el.Text()); monthYearPattern.MatchString(text) {
			labels = append(labels, text)
		}
	})
	return labels
}

func normalizeLabel(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
