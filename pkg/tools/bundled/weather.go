package bundled

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/pepperkit/go-pepper/internal/httpc"
	"github.com/pepperkit/go-pepper/pkg/tools"
)

const (
	geocodeURL  = "https://geocoding-api.open-meteo.com/v1/search"
	forecastURL = "https://api.open-meteo.com/v1/forecast"
)

type weatherArgs struct {
	City string `json:"city" jsonschema:"description=City name to get the weather for"`
}

// Weather looks up current conditions via the Open-Meteo public API,
// which needs no key.
func Weather(client *http.Client) tools.Tool {
	if client == nil {
		client = httpc.Client
	}
	return tools.Tool{
		Name:        "get_weather",
		Description: "Get the current weather for a city.",
		Parameters:  tools.Reflect[weatherArgs](),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			city, _ := args["city"].(string)
			if city == "" {
				return "", fmt.Errorf("city is required")
			}
			return currentWeather(ctx, client, city)
		},
	}
}

func currentWeather(ctx context.Context, client *http.Client, city string) (string, error) {
	lat, lon, name, err := geocode(ctx, client, city)
	if err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", lat))
	q.Set("longitude", fmt.Sprintf("%.4f", lon))
	q.Set("current", "temperature_2m,apparent_temperature,weather_code,wind_speed_10m")

	var resp struct {
		Current struct {
			Temperature float64 `json:"temperature_2m"`
			Apparent    float64 `json:"apparent_temperature"`
			WeatherCode int     `json:"weather_code"`
			WindSpeed   float64 `json:"wind_speed_10m"`
		} `json:"current"`
	}
	if err := getJSON(ctx, client, forecastURL+"?"+q.Encode(), &resp); err != nil {
		return "", fmt.Errorf("fetch forecast: %w", err)
	}

	return fmt.Sprintf("%s: %s, %.1f°C (feels like %.1f°C), wind %.0f km/h",
		name, describeWeatherCode(resp.Current.WeatherCode),
		resp.Current.Temperature, resp.Current.Apparent, resp.Current.WindSpeed), nil
}

func geocode(ctx context.Context, client *http.Client, city string) (lat, lon float64, name string, err error) {
	q := url.Values{}
	q.Set("name", city)
	q.Set("count", "1")

	var resp struct {
		Results []struct {
			Name      string  `json:"name"`
			Country   string  `json:"country"`
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"results"`
	}
	if err = getJSON(ctx, client, geocodeURL+"?"+q.Encode(), &resp); err != nil {
		return 0, 0, "", fmt.Errorf("geocode %q: %w", city, err)
	}
	if len(resp.Results) == 0 {
		return 0, 0, "", fmt.Errorf("unknown city %q", city)
	}
	r := resp.Results[0]
	return r.Latitude, r.Longitude, r.Name + ", " + r.Country, nil
}

func getJSON(ctx context.Context, client *http.Client, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// describeWeatherCode maps WMO weather codes to short phrases.
func describeWeatherCode(code int) string {
	switch {
	case code == 0:
		return "clear sky"
	case code <= 3:
		return "partly cloudy"
	case code <= 48:
		return "fog"
	case code <= 57:
		return "drizzle"
	case code <= 67:
		return "rain"
	case code <= 77:
		return "snow"
	case code <= 82:
		return "rain showers"
	case code <= 86:
		return "snow showers"
	default:
		return "thunderstorm"
	}
}
