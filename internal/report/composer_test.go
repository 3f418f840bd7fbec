package report

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daybrief/internal/prefs"
	"daybrief/internal/weather"
)

var testNow = time.Date(2026, time.March, 2, 7, 30, 0, 0, time.UTC)

const testDateLine = "Good morning. Here's your report for Monday, March 02."

type stubStore struct {
	p   prefs.Preferences
	err error
}

func (s *stubStore) Load(context.Context, string) (prefs.Preferences, error) {
	if s.err != nil {
		return prefs.Preferences{}, s.err
	}
	p := s.p
	if p.Topics == nil {
		p.Topics = []string{}
	}
	return p, nil
}
func (s *stubStore) SaveTopics(context.Context, string, []string) error        { return nil }
func (s *stubStore) SaveHome(context.Context, string, prefs.HomeLocation) error { return nil }
func (s *stubStore) SaveCalendar(context.Context, string, prefs.CalendarFeed) error {
	return nil
}

type stubWeather struct {
	mu     sync.Mutex
	line   string
	err    error
	called bool
}

func (w *stubWeather) Summary(_ context.Context, _ weather.Query) (string, error) {
	w.mu.Lock()
	w.called = true
	w.mu.Unlock()
	return w.line, w.err
}

type stubCalendar struct {
	lines []string
	err   error
}

func (c *stubCalendar) EventsToday(context.Context, string, *time.Location) ([]string, error) {
	return c.lines, c.err
}

type stubNews struct {
	mu        sync.Mutex
	byTopic   map[string][]string
	lastLimit int
}

func (n *stubNews) Headlines(_ context.Context, topic string, limit int) ([]string, error) {
	n.mu.Lock()
	n.lastLimit = limit
	n.mu.Unlock()
	hs := n.byTopic[topic]
	if len(hs) > limit {
		hs = hs[:limit]
	}
	return hs, nil
}

type stubSummarizer struct {
	available bool
	text      string
	err       error
}

func (s *stubSummarizer) Available() bool { return s.available }
func (s *stubSummarizer) Rewrite(context.Context, string) (string, error) {
	return s.text, s.err
}

func newTestComposer(store *stubStore, w *stubWeather, cal *stubCalendar, n *stubNews, s Summarizer) *Composer {
	if w == nil {
		w = &stubWeather{err: weather.ErrUnavailable}
	}
	if cal == nil {
		cal = &stubCalendar{}
	}
	if n == nil {
		n = &stubNews{}
	}
	c := NewComposer(store, w, cal, n, s, "UTC")
	c.now = func() time.Time { return testNow }
	return c
}

func TestCompose_NoPreferencesAtAll(t *testing.T) {
	c := newTestComposer(&stubStore{}, nil, nil, nil, nil)

	text, err := c.Compose(context.Background(), prefs.DefaultUserID, Options{})
	require.NoError(t, err)

	want := strings.Join([]string{
		testDateLine,
		"No calendar connected yet.",
		"No saved news topics yet. Add some on the Home page.",
	}, "\n")
	assert.Equal(t, want, text)
}

func TestCompose_WeatherSkippedWithoutLocation(t *testing.T) {
	w := &stubWeather{line: "66°F now, H 72°F / L 60°F, 10% precip"}
	c := newTestComposer(&stubStore{}, w, nil, nil, nil)

	text, err := c.Compose(context.Background(), prefs.DefaultUserID, Options{})
	require.NoError(t, err)
	assert.NotContains(t, text, "precip")
	assert.False(t, w.called, "weather adapter must not be called without a location")
}

func TestCompose_WeatherLineIncluded(t *testing.T) {
	lat, lon := 32.7, -117.2
	store := &stubStore{p: prefs.Preferences{
		Home: prefs.HomeLocation{Lat: &lat, Lon: &lon, TZ: "UTC", Units: "imperial"},
	}}
	w := &stubWeather{line: "66°F now, H 72°F / L 60°F, 10% precip"}
	c := newTestComposer(store, w, nil, nil, nil)

	text, err := c.Compose(context.Background(), prefs.DefaultUserID, Options{})
	require.NoError(t, err)
	assert.Contains(t, text, "66°F now, H 72°F / L 60°F, 10% precip")
}

func TestCompose_WeatherFailureOmitsLine(t *testing.T) {
	store := &stubStore{p: prefs.Preferences{Home: prefs.HomeLocation{City: "San Diego"}}}
	w := &stubWeather{err: weather.ErrUnavailable}
	c := newTestComposer(store, w, nil, nil, nil)

	text, err := c.Compose(context.Background(), prefs.DefaultUserID, Options{})
	require.NoError(t, err)
	assert.True(t, w.called)
	assert.NotContains(t, text, "precip")
}

func TestCompose_CalendarStates(t *testing.T) {
	withFeed := prefs.Preferences{Calendar: prefs.CalendarFeed{ICSURL: "https://example.com/cal.ics"}}

	t.Run("fetch failure degrades", func(t *testing.T) {
		cal := &stubCalendar{err: errors.New("timeout")}
		c := newTestComposer(&stubStore{p: withFeed}, nil, cal, nil, nil)

		text, err := c.Compose(context.Background(), prefs.DefaultUserID, Options{})
		require.NoError(t, err, "a single upstream failure must never abort composition")
		assert.Contains(t, text, "Calendar connected, but no events visible today.")
	})

	t.Run("zero events", func(t *testing.T) {
		cal := &stubCalendar{lines: []string{}}
		c := newTestComposer(&stubStore{p: withFeed}, nil, cal, nil, nil)

		text, err := c.Compose(context.Background(), prefs.DefaultUserID, Options{})
		require.NoError(t, err)
		assert.Contains(t, text, "No calendar events for today.")
	})

	t.Run("events listed in order", func(t *testing.T) {
		cal := &stubCalendar{lines: []string{"09:00: Standup @ Zoom", "All-day: Conference"}}
		c := newTestComposer(&stubStore{p: withFeed}, nil, cal, nil, nil)

		text, err := c.Compose(context.Background(), prefs.DefaultUserID, Options{})
		require.NoError(t, err)
		assert.Contains(t, text, "Today:\n• 09:00: Standup @ Zoom\n• All-day: Conference")
	})
}

func TestCompose_NewsSections(t *testing.T) {
	store := &stubStore{p: prefs.Preferences{Topics: []string{"Padres", "Quiet Topic", "Chargers"}}}
	n := &stubNews{byTopic: map[string][]string{
		"Padres":   {"Padres win", "Padres trade"},
		"Chargers": {"Chargers draft"},
	}}
	c := newTestComposer(store, nil, nil, n, nil)

	text, err := c.Compose(context.Background(), prefs.DefaultUserID, Options{})
	require.NoError(t, err)

	assert.Contains(t, text, "Padres:\n• Padres win\n• Padres trade")
	assert.Contains(t, text, "Chargers:\n• Chargers draft")
	assert.NotContains(t, text, "Quiet Topic", "topics with no headlines are silently skipped")
	// Stored order is preserved across sections.
	assert.Less(t, strings.Index(text, "Padres:"), strings.Index(text, "Chargers:"))
}

func TestCompose_PerTopicClamped(t *testing.T) {
	store := &stubStore{p: prefs.Preferences{Topics: []string{"Padres"}}}
	n := &stubNews{byTopic: map[string][]string{"Padres": {"a", "b", "c", "d", "e", "f"}}}
	c := newTestComposer(store, nil, nil, n, nil)

	_, err := c.Compose(context.Background(), prefs.DefaultUserID, Options{PerTopic: 99})
	require.NoError(t, err)
	assert.Equal(t, 5, n.lastLimit)

	_, err = c.Compose(context.Background(), prefs.DefaultUserID, Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultHeadlinesPerTopic, n.lastLimit)
}

func TestCompose_SmartSummary(t *testing.T) {
	t.Run("unavailable appends note", func(t *testing.T) {
		c := newTestComposer(&stubStore{}, nil, nil, nil, &stubSummarizer{available: false})
		text, err := c.Compose(context.Background(), prefs.DefaultUserID, Options{Smart: true})
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(text, "\n\n(Note: smart summary unavailable.)"))
		assert.Contains(t, text, testDateLine, "original script is kept")
	})

	t.Run("nil summarizer appends note", func(t *testing.T) {
		c := newTestComposer(&stubStore{}, nil, nil, nil, nil)
		text, err := c.Compose(context.Background(), prefs.DefaultUserID, Options{Smart: true})
		require.NoError(t, err)
		assert.Contains(t, text, "(Note: smart summary unavailable.)")
	})

	t.Run("failure appends note", func(t *testing.T) {
		s := &stubSummarizer{available: true, err: errors.New("rate limited")}
		c := newTestComposer(&stubStore{}, nil, nil, nil, s)
		text, err := c.Compose(context.Background(), prefs.DefaultUserID, Options{Smart: true})
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(text, "\n\n(Note: smart summary failed; reading headlines.)"))
	})

	t.Run("success replaces script", func(t *testing.T) {
		s := &stubSummarizer{available: true, text: "Short spoken brief."}
		c := newTestComposer(&stubStore{}, nil, nil, nil, s)
		text, err := c.Compose(context.Background(), prefs.DefaultUserID, Options{Smart: true})
		require.NoError(t, err)
		assert.Equal(t, "Short spoken brief.", text)
	})

	t.Run("empty rewrite keeps script without note", func(t *testing.T) {
		s := &stubSummarizer{available: true, text: "   "}
		c := newTestComposer(&stubStore{}, nil, nil, nil, s)
		text, err := c.Compose(context.Background(), prefs.DefaultUserID, Options{Smart: true})
		require.NoError(t, err)
		assert.NotContains(t, text, "(Note:")
		assert.Contains(t, text, testDateLine)
	})
}

func TestCompose_Idempotent(t *testing.T) {
	lat, lon := 32.7, -117.2
	store := &stubStore{p: prefs.Preferences{
		Topics:   []string{"Padres"},
		Home:     prefs.HomeLocation{Lat: &lat, Lon: &lon, TZ: "UTC"},
		Calendar: prefs.CalendarFeed{ICSURL: "https://example.com/cal.ics"},
	}}
	w := &stubWeather{line: "66°F now, H 72°F / L 60°F, 10% precip"}
	cal := &stubCalendar{lines: []string{"09:00: Standup"}}
	n := &stubNews{byTopic: map[string][]string{"Padres": {"Padres win"}}}
	c := newTestComposer(store, w, cal, n, nil)

	first, err := c.Compose(context.Background(), prefs.DefaultUserID, Options{})
	require.NoError(t, err)
	second, err := c.Compose(context.Background(), prefs.DefaultUserID, Options{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCompose_StorageFailureIsAnError(t *testing.T) {
	c := newTestComposer(&stubStore{err: errors.New("disk gone")}, nil, nil, nil, nil)
	_, err := c.Compose(context.Background(), prefs.DefaultUserID, Options{})
	assert.Error(t, err)
}

func TestCompose_TimezoneOverrideWins(t *testing.T) {
	// Stored tz is UTC; the override shifts "today" far enough west that the
	// weekday in the date line changes.
	store := &stubStore{p: prefs.Preferences{Home: prefs.HomeLocation{TZ: "UTC"}}}
	c := newTestComposer(store, nil, nil, nil, nil)
	c.now = func() time.Time { return time.Date(2026, time.March, 2, 1, 0, 0, 0, time.UTC) }

	text, err := c.Compose(context.Background(), prefs.DefaultUserID, Options{TZ: "Etc/GMT+10"})
	require.NoError(t, err)
	assert.Contains(t, text, "Sunday, March 01")
}
