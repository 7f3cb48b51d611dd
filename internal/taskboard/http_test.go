package taskboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPBoard_CreateTicket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/projects/proj-1/tickets" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("Missing auth header")
		}

		var req createTicketRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		if req.Name != "Explore /reports" {
			t.Errorf("Unexpected name: %s", req.Name)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(createTicketResponse{TicketID: "TB-77"})
	}))
	defer srv.Close()

	board := NewHTTPBoard(srv.URL, "secret")
	id, err := board.CreateTicket(context.Background(), "proj-1", "Explore /reports", "desc")
	if err != nil {
		t.Fatalf("CreateTicket failed: %v", err)
	}
	if id != "TB-77" {
		t.Errorf("Expected TB-77, got %s", id)
	}
}

func TestHTTPBoard_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	board := NewHTTPBoard(srv.URL, "")
	_, err := board.CreateTicket(context.Background(), "proj-1", "n", "d")

	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("Expected RateLimitedError, got %v", err)
	}
	if rl.RetryAfter != 3*time.Second {
		t.Errorf("Expected retry-after 3s, got %v", rl.RetryAfter)
	}
	if !IsRateLimited(err) {
		t.Error("IsRateLimited should report true")
	}
}

func TestHTTPBoard_RequestInvalid(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusForbidden, http.StatusUnprocessableEntity} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", status)
		}))

		board := NewHTTPBoard(srv.URL, "")
		_, err := board.CreateTicket(context.Background(), "proj-1", "n", "d")
		srv.Close()

		if !errors.Is(err, ErrRequestInvalid) {
			t.Errorf("Status %d: expected ErrRequestInvalid, got %v", status, err)
		}
		if IsRateLimited(err) {
			t.Errorf("Status %d should not be a rate-limit signal", status)
		}
	}
}

func TestMemoryBoard_ScriptedFailures(t *testing.T) {
	b := NewMemoryBoard()
	b.FailNext = []error{&RateLimitedError{}, nil}

	_, err := b.CreateTicket(context.Background(), "p", "n", "d")
	if !IsRateLimited(err) {
		t.Fatalf("Expected scripted rate-limit error, got %v", err)
	}

	id, err := b.CreateTicket(context.Background(), "p", "n", "d")
	if err != nil {
		t.Fatalf("CreateTicket failed: %v", err)
	}
	if id != "TB-1" {
		t.Errorf("Expected TB-1, got %s", id)
	}
	if b.Attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", b.Attempts)
	}
}
