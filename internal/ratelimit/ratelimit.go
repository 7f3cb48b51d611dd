// Package ratelimit wraps every task-board call behind a shared pacing gate
// and a bounded retry schedule. The board's rate limit is account-wide, so
// all workers funnel through one Limiter.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/example/wayfinder/internal/taskboard"
)

// ErrRateLimitExceeded indicates sustained rate limiting exhausted the retry
// bound. The caller may try again later; nothing was created.
var ErrRateLimitExceeded = errors.New("task board rate limit exceeded after retries")

// Config tunes the pacing gate and the retry schedule.
type Config struct {
	// Interval is the minimum spacing between board calls.
	Interval time.Duration
	// BaseDelay seeds the retry schedule after a rate-limit signal.
	BaseDelay time.Duration
	// StepDelay is added to the base once per attempt.
	StepDelay time.Duration
	// MaxRetries bounds how many times a rate-limited call is retried.
	MaxRetries uint64
}

// DefaultConfig returns the default limiter configuration.
func DefaultConfig() Config {
	return Config{
		Interval:   2 * time.Second,
		BaseDelay:  time.Second,
		StepDelay:  time.Second,
		MaxRetries: 5,
	}
}

// Limiter is a taskboard.Board decorator: it paces calls and transparently
// retries rate-limited ones.
type Limiter struct {
	board taskboard.Board
	cfg   Config

	mu     sync.Mutex
	nextAt time.Time
}

// New wraps board with pacing and retry behavior.
func New(board taskboard.Board, cfg Config) *Limiter {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultConfig().BaseDelay
	}
	if cfg.StepDelay <= 0 {
		cfg.StepDelay = DefaultConfig().StepDelay
	}
	return &Limiter{board: board, cfg: cfg}
}

// CreateTicket implements taskboard.Board. Each attempt (including retries)
// waits for its turn at the pacing gate. Rate-limit signals are retried on
// the configured schedule up to MaxRetries, then surfaced as
// ErrRateLimitExceeded; any other error propagates immediately.
func (l *Limiter) CreateTicket(ctx context.Context, projectID, name, description string) (string, error) {
	var id string

	op := func() error {
		if err := l.wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		created, err := l.board.CreateTicket(ctx, projectID, name, description)
		if err == nil {
			id = created
			return nil
		}
		if taskboard.IsRateLimited(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	sched := &schedule{base: l.cfg.BaseDelay, step: l.cfg.StepDelay}
	bo := backoff.WithContext(backoff.WithMaxRetries(sched, l.cfg.MaxRetries), ctx)

	if err := backoff.Retry(op, bo); err != nil {
		if taskboard.IsRateLimited(err) {
			return "", fmt.Errorf("%w: %v", ErrRateLimitExceeded, err)
		}
		return "", err
	}
	return id, nil
}

// wait reserves the next slot at the pacing gate and blocks until it
// arrives. Slots are handed out strictly in reservation order, so board
// calls from concurrent workers are serialized with at least Interval
// between them.
func (l *Limiter) wait(ctx context.Context) error {
	l.mu.Lock()
	now := time.Now()
	at := l.nextAt
	if at.Before(now) {
		at = now
	}
	l.nextAt = at.Add(l.cfg.Interval)
	l.mu.Unlock()

	delay := time.Until(at)
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// schedule implements backoff.BackOff: the wait starts from the base delay,
// grows by one step per attempt, and is doubled on the error path.
type schedule struct {
	base, step time.Duration
	attempt    int
}

func (s *schedule) NextBackOff() time.Duration {
	d := (s.base + time.Duration(s.attempt)*s.step) * 2
	s.attempt++
	return d
}

func (s *schedule) Reset() {
	s.attempt = 0
}
