// Package prefs persists per-user preference documents: news topics, home
// location, and the calendar feed URL. The three sub-documents are independent;
// writes are last-writer-wins per sub-document.
package prefs

import (
	"context"
	"errors"
	"strings"
)

// DefaultUserID identifies the implicit single user when no opaque user id is
// supplied with a request.
const DefaultUserID = "default"

var (
	// ErrEmptyTopic is returned when an empty or whitespace-only topic is added.
	ErrEmptyTopic = errors.New("empty topic")
)

// HomeLocation holds the user's home place and unit preference. All fields are
// optional; lat and lon must be present together.
type HomeLocation struct {
	Zip   string   `json:"zip,omitempty"`
	City  string   `json:"city,omitempty"`
	TZ    string   `json:"tz,omitempty"`
	Lat   *float64 `json:"lat,omitempty"`
	Lon   *float64 `json:"lon,omitempty"`
	Units string   `json:"units,omitempty"` // "imperial" | "metric"
}

// CalendarFeed holds the upstream ICS feed location. The URL is opaque;
// presence alone means "connected".
type CalendarFeed struct {
	ICSURL string `json:"ics_url,omitempty"`
}

// Preferences is the full stored document for one user. Field names match the
// JSON layout older deployments wrote, so existing data keeps loading.
type Preferences struct {
	Topics   []string     `json:"topics"`
	Home     HomeLocation `json:"home"`
	Calendar CalendarFeed `json:"calendar"`
}

// Store is the persistence contract for preference documents. Implementations
// must be safe for concurrent use; each Save* replaces only its own
// sub-document.
type Store interface {
	Load(ctx context.Context, userID string) (Preferences, error)
	SaveTopics(ctx context.Context, userID string, topics []string) error
	SaveHome(ctx context.Context, userID string, home HomeLocation) error
	SaveCalendar(ctx context.Context, userID string, cal CalendarFeed) error
}

// AddTopic appends topic to the list unless an entry already matches it
// case-insensitively. The stored casing of the first occurrence is preserved.
func AddTopic(topics []string, topic string) ([]string, error) {
	t := strings.TrimSpace(topic)
	if t == "" {
		return topics, ErrEmptyTopic
	}
	for _, existing := range topics {
		if strings.EqualFold(existing, t) {
			return topics, nil
		}
	}
	return append(topics, t), nil
}

// DedupeTopics normalizes a replacement list: trims entries, drops empties,
// and keeps only the first occurrence of each case-insensitive topic.
func DedupeTopics(topics []string) []string {
	seen := make(map[string]struct{}, len(topics))
	uniq := make([]string, 0, len(topics))
	for _, raw := range topics {
		t := strings.TrimSpace(raw)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		uniq = append(uniq, t)
	}
	return uniq
}

// RemoveTopic deletes every entry matching topic case-insensitively.
func RemoveTopic(topics []string, topic string) []string {
	target := strings.ToLower(strings.TrimSpace(topic))
	remain := make([]string, 0, len(topics))
	for _, t := range topics {
		if strings.ToLower(t) != target {
			remain = append(remain, t)
		}
	}
	return remain
}

// MergeHome overlays the set fields of in onto base. Empty strings and nil
// coordinates in the update leave the stored values untouched.
func MergeHome(base, in HomeLocation) HomeLocation {
	out := base
	if in.Zip != "" {
		out.Zip = in.Zip
	}
	if in.City != "" {
		out.City = in.City
	}
	if in.TZ != "" {
		out.TZ = in.TZ
	}
	if in.Lat != nil {
		out.Lat = in.Lat
	}
	if in.Lon != nil {
		out.Lon = in.Lon
	}
	if in.Units != "" {
		out.Units = strings.ToLower(in.Units)
	}
	return out
}

// MaskICSURL hides the private token embedded in calendar feed URLs so read
// responses never leak it. Google-style "/private-<token>/" segments are
// starred out; anything else is stripped of query/fragment and truncated.
func MaskICSURL(u string) string {
	if u == "" {
		return ""
	}
	if idx := strings.Index(u, "/private-"); idx >= 0 {
		return u[:idx] + "/private-********/basic.ics"
	}
	trimmed := u
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	if len(trimmed) > 30 {
		return trimmed[:30] + "…"
	}
	return trimmed
}

// normalize fills defaults so callers never see nil topic slices.
func normalize(p Preferences) Preferences {
	if p.Topics == nil {
		p.Topics = []string{}
	}
	return p
}
