// Package weather summarizes today's forecast in one line using Open-Meteo.
// Open-Meteo needs no API key; geocoding goes through its companion search
// endpoint when only a city or postal code is known.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"

	"github.com/sony/gobreaker"

	"daybrief/internal/fetch"
)

// ErrUnavailable means no weather line can be produced for this request. The
// composer omits the section entirely.
var ErrUnavailable = errors.New("weather unavailable")

// UnitsImperial and UnitsMetric select the temperature unit. Imperial is the
// stored default.
const (
	UnitsImperial = "imperial"
	UnitsMetric   = "metric"
)

// Query identifies the place and presentation of a weather summary. Lat/Lon
// win over City/Zip; with neither the query is unresolvable.
type Query struct {
	Lat   *float64
	Lon   *float64
	City  string
	Zip   string
	TZ    string
	Units string
}

// Client talks to Open-Meteo. Base URLs are fields so tests can point them at
// a local server.
type Client struct {
	httpClient  *http.Client
	geocodeURL  string
	forecastURL string
	circuit     *gobreaker.CircuitBreaker
}

// NewClient wraps the shared outbound HTTP client.
func NewClient(client *http.Client) *Client {
	return &Client{
		httpClient:  client,
		geocodeURL:  "https://geocoding-api.open-meteo.com/v1/search",
		forecastURL: "https://api.open-meteo.com/v1/forecast",
		circuit:     fetch.NewBreaker("openmeteo"),
	}
}

// Summary returns a line like "66°F now, H 72°F / L 60°F, 10% precip".
// Any failure, including an unresolvable location, yields ErrUnavailable.
func (c *Client) Summary(ctx context.Context, q Query) (string, error) {
	lat, lon := q.Lat, q.Lon
	if lat == nil || lon == nil {
		place := q.City
		if place == "" {
			place = q.Zip
		}
		if place == "" {
			return "", ErrUnavailable
		}
		glat, glon, err := c.geocode(ctx, place)
		if err != nil {
			return "", ErrUnavailable
		}
		lat, lon = &glat, &glon
	}

	values := url.Values{}
	values.Set("latitude", fmt.Sprintf("%f", *lat))
	values.Set("longitude", fmt.Sprintf("%f", *lon))
	values.Set("current", "temperature_2m")
	values.Set("daily", "temperature_2m_max,temperature_2m_min,precipitation_probability_max")
	if q.TZ != "" {
		values.Set("timezone", q.TZ)
	} else {
		values.Set("timezone", "auto")
	}
	unit := "C"
	if q.Units == "" || q.Units == UnitsImperial {
		values.Set("temperature_unit", "fahrenheit")
		unit = "F"
	}

	req, err := http.NewRequest(http.MethodGet, c.forecastURL+"?"+values.Encode(), nil)
	if err != nil {
		return "", ErrUnavailable
	}
	resp, err := fetch.Do(ctx, c.httpClient, c.circuit, req)
	if err != nil {
		return "", ErrUnavailable
	}
	defer resp.Body.Close()

	var payload struct {
		Current struct {
			Temperature *float64 `json:"temperature_2m"`
		} `json:"current"`
		Daily struct {
			TempMax    []float64 `json:"temperature_2m_max"`
			TempMin    []float64 `json:"temperature_2m_min"`
			PrecipProb []float64 `json:"precipitation_probability_max"`
		} `json:"daily"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", ErrUnavailable
	}

	if payload.Current.Temperature == nil ||
		len(payload.Daily.TempMax) == 0 || len(payload.Daily.TempMin) == 0 {
		return "", ErrUnavailable
	}

	pop := 0
	if len(payload.Daily.PrecipProb) > 0 {
		pop = int(payload.Daily.PrecipProb[0])
	}

	return fmt.Sprintf("%d°%s now, H %d°%s / L %d°%s, %d%% precip",
		round(*payload.Current.Temperature), unit,
		round(payload.Daily.TempMax[0]), unit,
		round(payload.Daily.TempMin[0]), unit,
		pop), nil
}

// geocode resolves a city or postal code to coordinates; first result wins.
func (c *Client) geocode(ctx context.Context, place string) (float64, float64, error) {
	values := url.Values{}
	values.Set("name", place)
	values.Set("count", "1")
	values.Set("language", "en")
	values.Set("format", "json")

	req, err := http.NewRequest(http.MethodGet, c.geocodeURL+"?"+values.Encode(), nil)
	if err != nil {
		return 0, 0, err
	}
	resp, err := fetch.Do(ctx, c.httpClient, c.circuit, req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	var payload struct {
		Results []struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, 0, err
	}
	if len(payload.Results) == 0 {
		return 0, 0, errors.New("no geocoding results")
	}
	return payload.Results[0].Latitude, payload.Results[0].Longitude, nil
}

func round(f float64) int {
	return int(math.Round(f))
}
