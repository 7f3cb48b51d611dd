package taskboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// DefaultClientTimeout is the default timeout for board API requests.
const DefaultClientTimeout = 30 * time.Second

// HTTPBoard talks to a task-board service over its JSON HTTP API.
type HTTPBoard struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPBoard creates a board client with timeout. token may be empty for
// boards without authentication.
func NewHTTPBoard(baseURL, token string) *HTTPBoard {
	return &HTTPBoard{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: DefaultClientTimeout,
		},
	}
}

type createTicketRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type createTicketResponse struct {
	TicketID string `json:"ticket_id"`
}

// CreateTicket implements Board.
func (b *HTTPBoard) CreateTicket(ctx context.Context, projectID, name, description string) (string, error) {
	payload, err := json.Marshal(createTicketRequest{Name: name, Description: description})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/projects/%s/tickets", b.baseURL, projectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("board request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", &RateLimitedError{RetryAfter: retryAfter(resp)}
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusUnprocessableEntity:
		return "", fmt.Errorf("%w: %s", ErrRequestInvalid, string(body))
	case resp.StatusCode >= 400:
		return "", fmt.Errorf("board error (%d): %s", resp.StatusCode, string(body))
	}

	var created createTicketResponse
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("parse board response: %w", err)
	}
	if created.TicketID == "" {
		return "", fmt.Errorf("board response missing ticket_id")
	}
	return created.TicketID, nil
}

func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
