// Package news pulls topic headlines from the Google News RSS search feed.
package news

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// MaxHeadlines is the hard upper bound on headlines per topic.
const MaxHeadlines = 5

// ErrUnavailable marks a headline feed that could not be fetched or parsed.
var ErrUnavailable = errors.New("headline source unavailable")

// Article carries the fields exposed by the /news endpoints.
type Article struct {
	Title     string `json:"title"`
	Link      string `json:"link"`
	Source    string `json:"source,omitempty"`
	Published string `json:"published,omitempty"`
}

// Client fetches and parses the headline feed. BaseURL is a field so tests
// can point it at a local server.
type Client struct {
	parser  *gofeed.Parser
	baseURL string
}

// NewClient builds a client on the shared outbound HTTP client.
func NewClient(httpClient *http.Client) *Client {
	parser := gofeed.NewParser()
	parser.Client = httpClient
	return &Client{
		parser:  parser,
		baseURL: "https://news.google.com/rss/search",
	}
}

// Headlines returns up to limit titles for topic, in the order the source
// returns them. Failures yield an empty slice and an error; callers treat
// both the error and an empty result as "skip this topic".
func (c *Client) Headlines(ctx context.Context, topic string, limit int) ([]string, error) {
	articles, err := c.Search(ctx, topic, limit)
	if err != nil {
		return nil, err
	}
	titles := make([]string, 0, len(articles))
	for _, a := range articles {
		titles = append(titles, a.Title)
	}
	return titles, nil
}

// Search returns up to limit articles for topic with link and source
// metadata. Limit is clamped to [1, MaxHeadlines].
func (c *Client) Search(ctx context.Context, topic string, limit int) ([]Article, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > MaxHeadlines {
		limit = MaxHeadlines
	}

	feed, err := c.parser.ParseURLWithContext(c.searchURL(topic), ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch headlines for %q: %v", ErrUnavailable, topic, err)
	}

	articles := make([]Article, 0, limit)
	for _, item := range feed.Items {
		if len(articles) >= limit {
			break
		}
		articles = append(articles, Article{
			Title:     item.Title,
			Link:      item.Link,
			Source:    sourceFromTitle(item.Title),
			Published: published(item),
		})
	}
	return articles, nil
}

func (c *Client) searchURL(topic string) string {
	values := url.Values{}
	values.Set("q", topic)
	values.Set("hl", "en-US")
	values.Set("gl", "US")
	values.Set("ceid", "US:en")
	return c.baseURL + "?" + values.Encode()
}

// sourceFromTitle recovers the publisher from Google News titles, which end
// with " - Publisher".
func sourceFromTitle(title string) string {
	if idx := strings.LastIndex(title, " - "); idx > 0 {
		return strings.TrimSpace(title[idx+3:])
	}
	return ""
}

func published(item *gofeed.Item) string {
	if item.PublishedParsed != nil {
		return item.PublishedParsed.UTC().Format(time.RFC1123)
	}
	return item.Published
}
