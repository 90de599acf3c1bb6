package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultWeatherURL = "https://wttr.in"

// WeatherTool reports current conditions from the wttr.in JSON API.
type WeatherTool struct {
	BaseURL string
	Client  *http.Client
}

func NewWeatherTool() *WeatherTool {
	return &WeatherTool{
		BaseURL: defaultWeatherURL,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WeatherTool) Name() string {
	return "get_weather"
}

func (w *WeatherTool) Description() string {
	return "Get the current weather (temperature, condition, humidity, wind) for a city or place."
}

func (w *WeatherTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"location": map[string]any{
				"type":        "string",
				"description": "The location to look up, e.g. London, New York, Tokyo",
			},
		},
		"required": []string{"location"},
	}
}

type wttrValue struct {
	Value string `json:"value"`
}

type wttrResponse struct {
	CurrentCondition []struct {
		TempC         string      `json:"temp_C"`
		TempF         string      `json:"temp_F"`
		FeelsLikeC    string      `json:"FeelsLikeC"`
		FeelsLikeF    string      `json:"FeelsLikeF"`
		Humidity      string      `json:"humidity"`
		WindspeedKmph string      `json:"windspeedKmph"`
		WeatherDesc   []wttrValue `json:"weatherDesc"`
	} `json:"current_condition"`
}

func (w *WeatherTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Location string `json:"location"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}
	location := strings.TrimSpace(args.Location)
	if location == "" {
		return "", fmt.Errorf("invalid input: location is required")
	}

	endpoint := fmt.Sprintf("%s/%s?format=j1", strings.TrimRight(w.BaseURL, "/"), url.PathEscape(location))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %v", err)
	}

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("weather lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("weather lookup failed: status code %d", resp.StatusCode)
	}

	var data wttrResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("failed to decode weather response: %v", err)
	}
	if len(data.CurrentCondition) == 0 {
		return "", fmt.Errorf("no current conditions for %s", location)
	}

	cur := data.CurrentCondition[0]
	condition := "unknown"
	if len(cur.WeatherDesc) > 0 {
		condition = cur.WeatherDesc[0].Value
	}
	return fmt.Sprintf("%s: %s, %s°C (%s°F), feels like %s°C, humidity %s%%, wind %s km/h",
		location, condition, cur.TempC, cur.TempF, cur.FeelsLikeC, cur.Humidity, cur.WindspeedKmph), nil
}
