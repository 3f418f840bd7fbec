package calendar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedNow is a Tuesday; all feeds below are built around this date.
var fixedNow = time.Date(2026, time.March, 3, 12, 0, 0, 0, time.UTC)

func icsFeed(events ...string) string {
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//EN\r\n")
	for _, ev := range events {
		b.WriteString(ev)
	}
	b.WriteString("END:VCALENDAR\r\n")
	return b.String()
}

func vevent(lines ...string) string {
	return "BEGIN:VEVENT\r\n" + strings.Join(lines, "\r\n") + "\r\nEND:VEVENT\r\n"
}

func serveICS(t *testing.T, body string) (*Client, string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(&http.Client{Timeout: 5 * time.Second})
	c.now = func() time.Time { return fixedNow }
	return c, srv.URL
}

func TestEventsToday_TimedEvents(t *testing.T) {
	c, feedURL := serveICS(t, icsFeed(
		vevent(
			"UID:standup",
			"DTSTAMP:20260301T000000Z",
			"DTSTART:20260303T170000Z",
			"DTEND:20260303T173000Z",
			"SUMMARY:Standup",
			"LOCATION:Zoom",
		),
		vevent(
			"UID:tomorrow",
			"DTSTAMP:20260301T000000Z",
			"DTSTART:20260304T170000Z",
			"DTEND:20260304T173000Z",
			"SUMMARY:Tomorrow meeting",
		),
	))

	lines, err := c.EventsToday(context.Background(), feedURL, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, []string{"17:00: Standup @ Zoom"}, lines)
}

func TestEventsToday_ConvertsToTargetZone(t *testing.T) {
	// 02:00 UTC on March 4 is 18:00 on March 3 in UTC-8.
	c, feedURL := serveICS(t, icsFeed(vevent(
		"UID:late",
		"DTSTAMP:20260301T000000Z",
		"DTSTART:20260304T020000Z",
		"DTEND:20260304T030000Z",
		"SUMMARY:Dinner",
	)))

	pst := time.FixedZone("PST", -8*3600)
	// Keep "today" on March 3 in the target zone.
	c.now = func() time.Time { return time.Date(2026, time.March, 3, 12, 0, 0, 0, pst) }

	lines, err := c.EventsToday(context.Background(), feedURL, pst)
	require.NoError(t, err)
	assert.Equal(t, []string{"18:00: Dinner"}, lines)
}

func TestEventsToday_AllDayInclusiveEnd(t *testing.T) {
	c, feedURL := serveICS(t, icsFeed(
		vevent(
			"UID:conf",
			"DTSTAMP:20260301T000000Z",
			"DTSTART;VALUE=DATE:20260302",
			"DTEND;VALUE=DATE:20260303",
			"SUMMARY:Conference",
			"LOCATION:Downtown",
		),
		vevent(
			"UID:past",
			"DTSTAMP:20260301T000000Z",
			"DTSTART;VALUE=DATE:20260227",
			"DTEND;VALUE=DATE:20260228",
			"SUMMARY:Last week",
		),
	))

	// The end date is taken inclusively as given, so a March 2–3 span still
	// covers March 3.
	lines, err := c.EventsToday(context.Background(), feedURL, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, []string{"All-day: Conference @ Downtown"}, lines)
}

func TestEventsToday_RecurringDaily(t *testing.T) {
	c, feedURL := serveICS(t, icsFeed(vevent(
		"UID:gym",
		"DTSTAMP:20260201T000000Z",
		"DTSTART:20260201T070000Z",
		"DTEND:20260201T080000Z",
		"RRULE:FREQ=DAILY",
		"SUMMARY:Gym",
	)))

	lines, err := c.EventsToday(context.Background(), feedURL, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, []string{"07:00: Gym"}, lines)
}

func TestEventsToday_RecurringExcludedByExdate(t *testing.T) {
	c, feedURL := serveICS(t, icsFeed(vevent(
		"UID:gym",
		"DTSTAMP:20260201T000000Z",
		"DTSTART:20260201T070000Z",
		"DTEND:20260201T080000Z",
		"RRULE:FREQ=DAILY",
		"EXDATE:20260303T070000Z",
		"SUMMARY:Gym",
	)))

	lines, err := c.EventsToday(context.Background(), feedURL, time.UTC)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestEventsToday_EmptyFeedIsNotAnError(t *testing.T) {
	c, feedURL := serveICS(t, icsFeed())

	lines, err := c.EventsToday(context.Background(), feedURL, time.UTC)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestEventsToday_FetchFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(&http.Client{Timeout: 5 * time.Second})
	_, err := c.EventsToday(context.Background(), srv.URL, time.UTC)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestEventsToday_ParseFailureIsUnavailable(t *testing.T) {
	c, feedURL := serveICS(t, "this is not a calendar")
	_, err := c.EventsToday(context.Background(), feedURL, time.UTC)
	assert.ErrorIs(t, err, ErrUnavailable)
}
