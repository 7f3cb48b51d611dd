// Package tui implements the read-only watch dashboard.
package tui

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/example/wayfinder/internal/models"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 10 * time.Second

// Client wraps HTTP calls to the wayfinder API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client with timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultClientTimeout,
		},
	}
}

// ListRoutes fetches routes from the API, optionally filtered.
func (c *Client) ListRoutes(userLevel, status string) ([]models.Route, error) {
	q := url.Values{}
	if userLevel != "" {
		q.Set("user_level", userLevel)
	}
	if status != "" {
		q.Set("status", status)
	}

	endpoint := c.baseURL + "/routes"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	resp, err := c.httpClient.Get(endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error: %s", string(body))
	}

	var routes []models.Route
	if err := json.NewDecoder(resp.Body).Decode(&routes); err != nil {
		return nil, err
	}
	return routes, nil
}

// Stats mirrors the /stats response.
type Stats struct {
	UserLevel string                     `json:"user_level,omitempty"`
	Counts    map[models.RouteStatus]int `json:"counts"`
	Total     int                        `json:"total"`
}

// GetStats fetches campaign progress counts.
func (c *Client) GetStats(userLevel string) (*Stats, error) {
	endpoint := c.baseURL + "/stats"
	if userLevel != "" {
		endpoint += "?user_level=" + url.QueryEscape(userLevel)
	}

	resp, err := c.httpClient.Get(endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error: %s", string(body))
	}

	var stats Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// CheckHealth checks if the daemon is reachable.
func (c *Client) CheckHealth() (bool, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/health")
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK, nil
}
