// Package report assembles the morning report from the preference store and
// the weather, calendar, news, and summarizer adapters. Every external call
// is independently guarded: one provider's failure degrades only its own
// section and never aborts composition.
package report

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"daybrief/internal/prefs"
	"daybrief/internal/weather"
)

// DefaultHeadlinesPerTopic is used when the request does not specify a count.
const DefaultHeadlinesPerTopic = 3

// WeatherProvider produces the one-line weather summary.
type WeatherProvider interface {
	Summary(ctx context.Context, q weather.Query) (string, error)
}

// CalendarProvider lists today's events as display lines. An error means the
// feed was unreachable or unparseable, distinct from an empty day.
type CalendarProvider interface {
	EventsToday(ctx context.Context, feedURL string, loc *time.Location) ([]string, error)
}

// HeadlineProvider returns up to limit headlines for a topic.
type HeadlineProvider interface {
	Headlines(ctx context.Context, topic string, limit int) ([]string, error)
}

// Summarizer rewrites the assembled script for spoken delivery.
type Summarizer interface {
	Available() bool
	Rewrite(ctx context.Context, script string) (string, error)
}

// Options carries the per-request knobs. Lat/Lon/TZ override the stored home
// location; PerTopic is clamped to [1, 5].
type Options struct {
	Lat      *float64
	Lon      *float64
	TZ       string
	PerTopic int
	Smart    bool
}

// Composer orchestrates report assembly.
type Composer struct {
	prefs      prefs.Store
	weather    WeatherProvider
	calendar   CalendarProvider
	news       HeadlineProvider
	summarizer Summarizer

	defaultTZ string
	timeout   time.Duration

	// now is replaceable in tests.
	now func() time.Time
}

// NewComposer wires the adapters. defaultTZ is used when neither the request
// nor the stored home location names a timezone; empty falls back to the
// process-local zone.
func NewComposer(store prefs.Store, w WeatherProvider, cal CalendarProvider, n HeadlineProvider, s Summarizer, defaultTZ string) *Composer {
	return &Composer{
		prefs:      store,
		weather:    w,
		calendar:   cal,
		news:       n,
		summarizer: s,
		defaultTZ:  defaultTZ,
		timeout:    10 * time.Second,
		now:        time.Now,
	}
}

// Compose builds the morning report text for a user. The only error it
// returns is a preference-store read failure; provider failures degrade their
// sections instead.
func (c *Composer) Compose(ctx context.Context, userID string, opts Options) (string, error) {
	p, err := c.prefs.Load(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load preferences: %w", err)
	}

	home := p.Home
	if opts.Lat != nil {
		home.Lat = opts.Lat
	}
	if opts.Lon != nil {
		home.Lon = opts.Lon
	}
	tz := opts.TZ
	if tz == "" {
		tz = home.TZ
	}
	if tz == "" {
		tz = c.defaultTZ
	}
	loc := time.Local
	if tz != "" {
		if l, lerr := time.LoadLocation(tz); lerr == nil {
			loc = l
		}
	}

	per := opts.PerTopic
	if per == 0 {
		per = DefaultHeadlinesPerTopic
	}
	if per < 1 {
		per = 1
	}
	if per > 5 {
		per = 5
	}

	feedURL := p.Calendar.ICSURL
	hasLocation := (home.Lat != nil && home.Lon != nil) || home.City != "" || home.Zip != ""

	// Calendar, weather, and each topic's headlines are independent; fetch
	// them concurrently, each under its own timeout.
	var (
		wg          sync.WaitGroup
		calLines    []string
		calErr      error
		weatherLine string
		headlines   = make([][]string, len(p.Topics))
	)

	if feedURL != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			calLines, calErr = c.calendar.EventsToday(cctx, feedURL, loc)
		}()
	}

	if hasLocation {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wctx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			line, werr := c.weather.Summary(wctx, weather.Query{
				Lat:   home.Lat,
				Lon:   home.Lon,
				City:  home.City,
				Zip:   home.Zip,
				TZ:    tz,
				Units: home.Units,
			})
			if werr == nil {
				weatherLine = line
			}
		}()
	}

	for i, topic := range p.Topics {
		i, topic := i, topic
		wg.Add(1)
		go func() {
			defer wg.Done()
			hctx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			hs, herr := c.news.Headlines(hctx, topic, per)
			if herr == nil {
				headlines[i] = hs
			}
		}()
	}

	wg.Wait()

	lines := []string{
		fmt.Sprintf("Good morning. Here's your report for %s.", c.now().In(loc).Format("Monday, January 02")),
	}

	switch {
	case feedURL == "":
		lines = append(lines, "No calendar connected yet.")
	case calErr != nil:
		lines = append(lines, "Calendar connected, but no events visible today.")
	case len(calLines) == 0:
		lines = append(lines, "No calendar events for today.")
	default:
		lines = append(lines, "Today:")
		for _, l := range calLines {
			lines = append(lines, "• "+l)
		}
	}

	if weatherLine != "" {
		lines = append(lines, weatherLine)
	}

	if len(p.Topics) == 0 {
		lines = append(lines, "No saved news topics yet. Add some on the Home page.")
	} else {
		for i, topic := range p.Topics {
			if len(headlines[i]) == 0 {
				continue
			}
			lines = append(lines, topic+":")
			for _, h := range headlines[i] {
				lines = append(lines, "• "+h)
			}
		}
	}

	script := strings.Join(lines, "\n")
	if !opts.Smart {
		return script, nil
	}
	return c.smartRewrite(ctx, script), nil
}

// smartRewrite hands the script to the summarizer. Unavailability or failure
// keeps the original script with a visible trailing note.
func (c *Composer) smartRewrite(ctx context.Context, script string) string {
	if c.summarizer == nil || !c.summarizer.Available() {
		return script + "\n\n(Note: smart summary unavailable.)"
	}

	sctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	text, err := c.summarizer.Rewrite(sctx, script)
	if err != nil {
		return script + "\n\n(Note: smart summary failed; reading headlines.)"
	}
	if strings.TrimSpace(text) == "" {
		return script
	}
	return text
}
