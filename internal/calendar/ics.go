// Package calendar fetches an ICS feed and reduces it to the events occurring
// "today" in a target timezone, rendered as display lines.
package calendar

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/sony/gobreaker"

	"daybrief/internal/fetch"
)

// ErrUnavailable means the feed could not be fetched or parsed. It is distinct
// from an empty event list: the composer renders a degraded line for it.
var ErrUnavailable = errors.New("calendar feed unavailable")

// event is the normalized form of one VEVENT before today-filtering.
type event struct {
	Title    string
	Location string

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule string
	ExDates  []time.Time
}

// Client fetches and filters calendar feeds.
type Client struct {
	httpClient *http.Client
	circuit    *gobreaker.CircuitBreaker

	// now is replaceable in tests.
	now func() time.Time
}

// NewClient wraps the shared outbound HTTP client.
func NewClient(client *http.Client) *Client {
	return &Client{
		httpClient: client,
		circuit:    fetch.NewBreaker("calendar"),
		now:        time.Now,
	}
}

// fetchEvents downloads and parses the feed. Any fetch or parse failure is
// reported as ErrUnavailable.
func (c *Client) fetchEvents(ctx context.Context, feedURL string) ([]event, error) {
	req, err := http.NewRequest(http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, ErrUnavailable
	}
	resp, err := fetch.Do(ctx, c.httpClient, c.circuit, req)
	if err != nil {
		return nil, ErrUnavailable
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ErrUnavailable
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, ErrUnavailable
	}

	events := make([]event, 0, len(cal.Events()))
	for _, ve := range cal.Events() {
		ev, ok := parseVEvent(ve)
		if !ok {
			// Skip malformed entries, keep the rest of the feed.
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func parseVEvent(ve *ical.VEvent) (event, bool) {
	var out event

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Title = p.Value
	}
	if out.Title == "" {
		out.Title = "Untitled"
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}

	// All-day events carry VALUE=DATE or a date-only DTSTART.
	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil || dtStart.Value == "" {
		return out, false
	}
	if params := dtStart.ICalParameters; params != nil {
		if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			out.AllDay = true
		}
	}
	if !strings.Contains(dtStart.Value, "T") {
		out.AllDay = true
	}

	var err error
	if out.AllDay {
		out.Start, err = ve.GetAllDayStartAt()
		if err != nil {
			out.Start, err = ve.GetStartAt()
		}
	} else {
		out.Start, err = ve.GetStartAt()
	}
	if err != nil || out.Start.IsZero() {
		return out, false
	}

	if out.AllDay {
		if end, eerr := ve.GetAllDayEndAt(); eerr == nil {
			out.End = end
		}
	} else if end, eerr := ve.GetEndAt(); eerr == nil {
		out.End = end
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, perr := parseICSTime(strings.TrimSpace(part)); perr == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	return out, true
}

// parseICSTime handles the basic DATE, DATE-TIME, and UTC DATE-TIME forms
// seen in EXDATE values.
func parseICSTime(v string) (time.Time, error) {
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, time.Local)
	default:
		return time.ParseInLocation("20060102", v, time.Local)
	}
}
