package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

// EventsToday returns one display line per event occurring today in loc, in
// feed order. Timed events are included when their start falls on today's
// date in loc; all-day events when start_date <= today <= end_date, taking
// the upstream end date inclusively as given. Feeds following the
// exclusive-end convention therefore show an all-day event for one extra
// trailing day. A fetch or parse failure returns ErrUnavailable.
func (c *Client) EventsToday(ctx context.Context, feedURL string, loc *time.Location) ([]string, error) {
	if loc == nil {
		loc = time.Local
	}

	events, err := c.fetchEvents(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	now := c.now().In(loc)
	today := dateOf(now)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	lines := make([]string, 0)
	for _, ev := range events {
		if ev.RawRRule != "" {
			lines = append(lines, occurrencesToday(ev, today, dayStart, dayEnd, loc)...)
			continue
		}
		if line, ok := lineForToday(ev, ev.Start, today, loc); ok {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

// occurrencesToday expands an RRULE within today's window and formats each
// hit. A bad rule drops the event rather than failing the feed.
func occurrencesToday(ev event, today time.Time, dayStart, dayEnd time.Time, loc *time.Location) []string {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		return nil
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Between operates in the event's own zone; widen the window by a day on
	// each side so date-only comparisons for all-day events stay correct.
	rangeStart := dayStart.AddDate(0, 0, -1).In(ev.Start.Location())
	rangeEnd := dayEnd.AddDate(0, 0, 1).In(ev.Start.Location())

	var lines []string
	for _, occ := range set.Between(rangeStart, rangeEnd, true) {
		if line, ok := lineForToday(ev, occ, today, loc); ok {
			lines = append(lines, line)
		}
	}
	return lines
}

// lineForToday decides whether a single occurrence starting at start belongs
// to today and renders its display line.
func lineForToday(ev event, start time.Time, today time.Time, loc *time.Location) (string, bool) {
	if ev.AllDay {
		// Date-only values: compare calendar dates without zone conversion.
		// The span is carried over from the base event so recurring multi-day
		// occurrences keep their length.
		startDate := dateOf(start)
		endDate := startDate
		if !ev.End.IsZero() && ev.End.After(ev.Start) {
			span := int(dateOf(ev.End).Sub(dateOf(ev.Start)).Hours() / 24)
			endDate = startDate.AddDate(0, 0, span)
		}
		if today.Before(startDate) || today.After(endDate) {
			return "", false
		}
		return "All-day: " + ev.Title + locationSuffix(ev.Location), true
	}

	local := start.In(loc)
	if !dateOf(local).Equal(today) {
		return "", false
	}
	return fmt.Sprintf("%s: %s%s", local.Format("15:04"), ev.Title, locationSuffix(ev.Location)), true
}

func locationSuffix(loc string) string {
	if loc == "" {
		return ""
	}
	return " @ " + loc
}

// dateOf strips the time of day, keeping year/month/day comparable across
// zones via UTC.
func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
