// Package weather implements the weather tool against the Open-Meteo
// geocoding and current-weather endpoints.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tessel-ai/tessel/internal/agent"
	"github.com/tessel-ai/tessel/internal/config"
	"github.com/tessel-ai/tessel/pkg/models"
)

const (
	defaultGeocodeEndpoint = "https://geocoding-api.open-meteo.com/v1/search"
	defaultWeatherEndpoint = "https://api.open-meteo.com/v1/forecast"
)

const msgUnavailable = "The weather service is currently unavailable."

type params struct {
	Location string `json:"location"`
}

type geocodeResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Country   string  `json:"country"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"results"`
}

type weatherResponse struct {
	CurrentWeather struct {
		Temperature float64 `json:"temperature"`
		WindSpeed   float64 `json:"windspeed"`
		WeatherCode int     `json:"weathercode"`
	} `json:"current_weather"`
}

// Tool is the weather executor.
type Tool struct {
	geocodeEndpoint string
	weatherEndpoint string
	client          *http.Client
}

// Option configures the tool.
type Option func(*Tool)

// WithEndpoints overrides both API endpoints; tests point them at a
// local server.
func WithEndpoints(geocode, weather string) Option {
	return func(t *Tool) {
		t.geocodeEndpoint = geocode
		t.weatherEndpoint = weather
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Tool) { t.client = c }
}

// New creates the weather tool.
func New(opts ...Option) *Tool {
	t := &Tool{
		geocodeEndpoint: defaultGeocodeEndpoint,
		weatherEndpoint: defaultWeatherEndpoint,
		client:          &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tool) Name() string { return "weather" }

func (t *Tool) Description() string {
	return "Get the current weather for a named location."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"location": {"type": "string", "description": "City or place name"}
		},
		"required": ["location"]
	}`)
}

func (t *Tool) Enabled(snap *config.Snapshot) bool { return snap.IsWeatherEnabled() }

func (t *Tool) Execute(ctx context.Context, _ *agent.Context, raw json.RawMessage) (*models.ToolResult, error) {
	var p params
	if err := agent.ParseParams(raw, &p); err != nil {
		return models.Fail(models.FailureValidation, err.Error()), nil
	}
	if strings.TrimSpace(p.Location) == "" {
		return models.Fail(models.FailureValidation, "location is required"), nil
	}

	var geo geocodeResponse
	geoURL := t.geocodeEndpoint + "?name=" + url.QueryEscape(p.Location) + "&count=1"
	if res := t.getJSON(ctx, geoURL, &geo); res != nil {
		return res, nil
	}
	if len(geo.Results) == 0 {
		return models.Fail(models.FailureNotFound, fmt.Sprintf("no location found for %q", p.Location)), nil
	}
	place := geo.Results[0]

	var wx weatherResponse
	wxURL := fmt.Sprintf("%s?latitude=%.4f&longitude=%.4f&current_weather=true",
		t.weatherEndpoint, place.Latitude, place.Longitude)
	if res := t.getJSON(ctx, wxURL, &wx); res != nil {
		return res, nil
	}

	cur := wx.CurrentWeather
	return models.OK(fmt.Sprintf("%s, %s: %s, %.1f°C, wind %.1f km/h",
		place.Name, place.Country, describeCode(cur.WeatherCode), cur.Temperature, cur.WindSpeed)), nil
}

func (t *Tool) getJSON(ctx context.Context, u string, v any) *models.ToolResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return models.Fail(models.FailureInternalError, err.Error())
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return models.Fail(models.FailureUpstreamError, msgUnavailable)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return models.Fail(models.FailureUpstreamError, msgUnavailable)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Fail(models.FailureUpstreamError, msgUnavailable)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return models.Fail(models.FailureUpstreamError, msgUnavailable)
	}
	return nil
}

// describeCode maps WMO weather codes to short descriptions.
func describeCode(code int) string {
	switch {
	case code == 0:
		return "Clear sky"
	case code >= 1 && code <= 3:
		return "Partly cloudy"
	case code == 45 || code == 48:
		return "Foggy"
	case code >= 51 && code <= 55:
		return "Drizzle"
	case code >= 61 && code <= 65:
		return "Rain"
	case code == 66 || code == 67:
		return "Freezing rain"
	case code >= 71 && code <= 75:
		return "Snow"
	case code == 77:
		return "Snow grains"
	case code >= 80 && code <= 82:
		return "Rain showers"
	case code == 85 || code == 86:
		return "Snow showers"
	case code == 95:
		return "Thunderstorm"
	case code == 96 || code == 99:
		return "Thunderstorm with hail"
	default:
		return "Unknown"
	}
}
