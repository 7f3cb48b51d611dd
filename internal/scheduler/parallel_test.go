package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/example/wayfinder/internal/models"
)

func TestExplorerLimitRespected(t *testing.T) {
	svc, st := newTestService(t)
	if _, err := svc.Discover(context.Background(), "admin",
		[]string{"/a", "/b", "/c", "/d", "/e", "/f"}); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	// Global cap of 4, but the explorer itself is limited to 1.
	exp := &mockExplorer{name: "mock", delay: 30 * time.Millisecond}
	sch := New(svc, exp, &Config{
		GlobalMax:    4,
		ByExplorer:   map[string]int{"mock": 1},
		UserLevels:   []string{"admin"},
		PollInterval: 5 * time.Millisecond,
	})
	sch.Start()
	defer sch.Stop()

	waitFor(t, 10*time.Second, func() bool {
		counts, err := st.StatusCounts("admin")
		if err != nil {
			return false
		}
		return counts[models.StatusExplored] == 6
	})

	exp.mu.Lock()
	max := exp.maxActive
	exp.mu.Unlock()
	if max > 1 {
		t.Errorf("Explorer limit exceeded: %d concurrent explorations", max)
	}
}

func TestGlobalMaxRespected(t *testing.T) {
	svc, st := newTestService(t)
	if _, err := svc.Discover(context.Background(), "admin",
		[]string{"/a", "/b", "/c", "/d"}); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	exp := &mockExplorer{name: "mock", delay: 30 * time.Millisecond}
	sch := New(svc, exp, &Config{
		GlobalMax:    2,
		ByExplorer:   map[string]int{"mock": 10},
		UserLevels:   []string{"admin"},
		PollInterval: 5 * time.Millisecond,
	})
	sch.Start()
	defer sch.Stop()

	waitFor(t, 10*time.Second, func() bool {
		counts, err := st.StatusCounts("admin")
		if err != nil {
			return false
		}
		return counts[models.StatusExplored] == 4
	})

	exp.mu.Lock()
	max := exp.maxActive
	exp.mu.Unlock()
	if max > 2 {
		t.Errorf("Global max exceeded: %d concurrent workers", max)
	}
}
