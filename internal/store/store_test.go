package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/wayfinder/internal/models"
)

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	// Verify file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestUpsertDiscovered(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	inserted, err := s.UpsertDiscovered("admin", "/reports")
	if err != nil {
		t.Fatalf("UpsertDiscovered failed: %v", err)
	}
	if !inserted {
		t.Error("Expected first upsert to insert")
	}

	// Second upsert is a silent no-op
	inserted, err = s.UpsertDiscovered("admin", "/reports")
	if err != nil {
		t.Fatalf("Second UpsertDiscovered failed: %v", err)
	}
	if inserted {
		t.Error("Expected second upsert to be a no-op")
	}

	r, err := s.Get("admin", "/reports")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if r == nil {
		t.Fatal("Expected route to exist")
	}
	if r.Status != models.StatusDiscovered {
		t.Errorf("Expected status discovered, got %s", r.Status)
	}
	if r.DiscoveredAt.IsZero() {
		t.Error("Expected discovered_at to be set")
	}
}

func TestUpsertDiscovered_NeverRegresses(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	s.UpsertDiscovered("admin", "/reports")
	if ok, _ := s.TryAcquireLease("admin", "/reports", time.Minute); !ok {
		t.Fatal("Expected lease acquisition to succeed")
	}
	if err := s.Transition("admin", "/reports", []models.RouteStatus{models.StatusDiscovered}, models.StatusExploring, Fields{}); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}

	// Re-discovering an in-flight route must not reset its status.
	inserted, err := s.UpsertDiscovered("admin", "/reports")
	if err != nil {
		t.Fatalf("UpsertDiscovered failed: %v", err)
	}
	if inserted {
		t.Error("Expected re-discovery to be a no-op")
	}

	r, _ := s.Get("admin", "/reports")
	if r.Status != models.StatusExploring {
		t.Errorf("Expected status exploring after re-discovery, got %s", r.Status)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	r, err := s.Get("admin", "/missing")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if r != nil {
		t.Error("Expected nil for missing route")
	}
}

func TestTryAcquireLease(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	s.UpsertDiscovered("member", "/users/:id")

	ok, err := s.TryAcquireLease("member", "/users/:id", time.Minute)
	if err != nil {
		t.Fatalf("TryAcquireLease failed: %v", err)
	}
	if !ok {
		t.Fatal("Expected first acquisition to succeed")
	}

	// Second acquisition fails while the lease is unexpired
	ok, err = s.TryAcquireLease("member", "/users/:id", time.Minute)
	if err != nil {
		t.Fatalf("Second TryAcquireLease failed: %v", err)
	}
	if ok {
		t.Error("Expected second acquisition to fail")
	}

	r, _ := s.Get("member", "/users/:id")
	if r.LeaseUntil == nil {
		t.Fatal("Expected lease_until to be set")
	}
	if r.PickedAt == nil {
		t.Error("Expected picked_at to be set")
	}
}

func TestTryAcquireLease_ExpiredReclaim(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	s.UpsertDiscovered("member", "/orders")

	// Simulate a crashed worker: lease acquired, never released, TTL elapses.
	ok, _ := s.TryAcquireLease("member", "/orders", 50*time.Millisecond)
	if !ok {
		t.Fatal("Expected first acquisition to succeed")
	}

	time.Sleep(100 * time.Millisecond)

	ok, err := s.TryAcquireLease("member", "/orders", time.Minute)
	if err != nil {
		t.Fatalf("TryAcquireLease after expiry failed: %v", err)
	}
	if !ok {
		t.Error("Expected acquisition to succeed after TTL expiry")
	}
}

func TestTryAcquireLease_MissingRoute(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ok, err := s.TryAcquireLease("member", "/missing", time.Minute)
	if err != nil {
		t.Fatalf("TryAcquireLease failed: %v", err)
	}
	if ok {
		t.Error("Expected acquisition on missing route to fail")
	}
}

func TestReleaseLease_Idempotent(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	s.UpsertDiscovered("member", "/orders")
	s.TryAcquireLease("member", "/orders", time.Minute)

	if err := s.ReleaseLease("member", "/orders"); err != nil {
		t.Fatalf("ReleaseLease failed: %v", err)
	}
	// Releasing again is fine
	if err := s.ReleaseLease("member", "/orders"); err != nil {
		t.Fatalf("Second ReleaseLease failed: %v", err)
	}

	r, _ := s.Get("member", "/orders")
	if r.LeaseUntil != nil {
		t.Error("Expected lease_until to be cleared")
	}

	ok, _ := s.TryAcquireLease("member", "/orders", time.Minute)
	if !ok {
		t.Error("Expected acquisition to succeed after release")
	}
}

func TestTransition_HappyPath(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	s.UpsertDiscovered("admin", "/reports")

	err := s.Transition("admin", "/reports", []models.RouteStatus{models.StatusDiscovered}, models.StatusExploring, Fields{})
	if err != nil {
		t.Fatalf("Transition to exploring failed: %v", err)
	}

	now := time.Now().UTC()
	err = s.Transition("admin", "/reports", []models.RouteStatus{models.StatusExploring}, models.StatusExplored, Fields{
		TestID:        "TB-42",
		LastAuditedAt: &now,
	})
	if err != nil {
		t.Fatalf("Transition to explored failed: %v", err)
	}

	r, _ := s.Get("admin", "/reports")
	if r.Status != models.StatusExplored {
		t.Errorf("Expected status explored, got %s", r.Status)
	}
	if r.TestID != "TB-42" {
		t.Errorf("Expected test_id TB-42, got %s", r.TestID)
	}
	if r.LastAuditedAt == nil {
		t.Error("Expected last_audited_at to be set")
	}
}

func TestTransition_InvalidFromSet(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	s.UpsertDiscovered("admin", "/reports")

	// Route is discovered; a transition expecting testing must fail and
	// leave the status unchanged.
	err := s.Transition("admin", "/reports", []models.RouteStatus{models.StatusTesting}, models.StatusTested, Fields{})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition, got %v", err)
	}

	r, _ := s.Get("admin", "/reports")
	if r.Status != models.StatusDiscovered {
		t.Errorf("Expected status unchanged (discovered), got %s", r.Status)
	}
}

func TestTransition_SkippingStates(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	s.UpsertDiscovered("admin", "/reports")

	// Even with the current status in the from set, an edge outside the
	// state machine is rejected.
	err := s.Transition("admin", "/reports", []models.RouteStatus{models.StatusDiscovered}, models.StatusTested, Fields{})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition, got %v", err)
	}

	r, _ := s.Get("admin", "/reports")
	if r.Status != models.StatusDiscovered {
		t.Errorf("Expected status unchanged, got %s", r.Status)
	}
}

func TestTransition_NotFound(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	err := s.Transition("admin", "/missing", []models.RouteStatus{models.StatusDiscovered}, models.StatusExploring, Fields{})
	if !errors.Is(err, ErrRouteNotFound) {
		t.Errorf("Expected ErrRouteNotFound, got %v", err)
	}
}

func TestTransition_Blocked(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	s.UpsertDiscovered("admin", "/reports")

	err := s.Transition("admin", "/reports",
		[]models.RouteStatus{models.StatusDiscovered, models.StatusExploring, models.StatusExplored, models.StatusTesting},
		models.StatusBlocked, Fields{AddBugID: "BUG-7"})
	if err != nil {
		t.Fatalf("Transition to blocked failed: %v", err)
	}

	r, _ := s.Get("admin", "/reports")
	if r.Status != models.StatusBlocked {
		t.Errorf("Expected status blocked, got %s", r.Status)
	}
	if len(r.BugIDs) != 1 || r.BugIDs[0] != "BUG-7" {
		t.Errorf("Expected bug_ids [BUG-7], got %v", r.BugIDs)
	}
}

func TestSetAuditID(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	s.UpsertDiscovered("admin", "/reports")

	if err := s.SetAuditID("admin", "/reports", "TB-1"); err != nil {
		t.Fatalf("SetAuditID failed: %v", err)
	}
	// Idempotent for the same id
	if err := s.SetAuditID("admin", "/reports", "TB-1"); err != nil {
		t.Fatalf("Second SetAuditID failed: %v", err)
	}

	r, _ := s.Get("admin", "/reports")
	if r.AuditID != "TB-1" {
		t.Errorf("Expected audit_id TB-1, got %s", r.AuditID)
	}
	if r.Status != models.StatusDiscovered {
		t.Errorf("Expected status unchanged, got %s", r.Status)
	}

	// A different id never overwrites an existing reference.
	s.SetAuditID("admin", "/reports", "TB-999")
	r, _ = s.Get("admin", "/reports")
	if r.AuditID != "TB-1" {
		t.Errorf("Expected audit_id to stay TB-1, got %s", r.AuditID)
	}
}

func TestListRoutes(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	s.UpsertDiscovered("admin", "/reports")
	s.UpsertDiscovered("admin", "/users/:id")
	s.UpsertDiscovered("member", "/reports")

	routes, err := s.ListRoutes("admin", "")
	if err != nil {
		t.Fatalf("ListRoutes failed: %v", err)
	}
	if len(routes) != 2 {
		t.Errorf("Expected 2 admin routes, got %d", len(routes))
	}

	routes, err = s.ListRoutes("", "")
	if err != nil {
		t.Fatalf("ListRoutes all failed: %v", err)
	}
	if len(routes) != 3 {
		t.Errorf("Expected 3 routes, got %d", len(routes))
	}

	routes, err = s.ListRoutes("admin", models.StatusTested)
	if err != nil {
		t.Fatalf("ListRoutes with status failed: %v", err)
	}
	if len(routes) != 0 {
		t.Errorf("Expected 0 tested routes, got %d", len(routes))
	}
}

func TestListUnaudited(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	s.UpsertDiscovered("admin", "/a")
	s.UpsertDiscovered("admin", "/b")
	s.SetAuditID("admin", "/a", "TB-1")

	routes, err := s.ListUnaudited("admin")
	if err != nil {
		t.Fatalf("ListUnaudited failed: %v", err)
	}
	if len(routes) != 1 || routes[0].Route != "/b" {
		t.Errorf("Expected only /b unaudited, got %v", routes)
	}
}

func TestStatusCounts(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	s.UpsertDiscovered("admin", "/a")
	s.UpsertDiscovered("admin", "/b")
	s.TryAcquireLease("admin", "/a", time.Minute)
	s.Transition("admin", "/a", []models.RouteStatus{models.StatusDiscovered}, models.StatusExploring, Fields{})

	counts, err := s.StatusCounts("admin")
	if err != nil {
		t.Fatalf("StatusCounts failed: %v", err)
	}
	if counts[models.StatusDiscovered] != 1 || counts[models.StatusExploring] != 1 {
		t.Errorf("Unexpected counts: %v", counts)
	}
}

func TestTickets(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ticket := &models.Ticket{
		TicketID:  "TB-1",
		Kind:      models.KindExplore,
		Route:     "/reports",
		UserLevel: "admin",
		CreatedAt: time.Now().UTC(),
	}
	if err := s.RecordTicket(ticket); err != nil {
		t.Fatalf("RecordTicket failed: %v", err)
	}
	// Re-recording the same id is a no-op
	if err := s.RecordTicket(ticket); err != nil {
		t.Fatalf("Second RecordTicket failed: %v", err)
	}

	tickets, err := s.ListTickets(models.KindExplore)
	if err != nil {
		t.Fatalf("ListTickets failed: %v", err)
	}
	if len(tickets) != 1 {
		t.Errorf("Expected 1 ticket, got %d", len(tickets))
	}

	tickets, _ = s.ListTickets(models.KindBug)
	if len(tickets) != 0 {
		t.Errorf("Expected 0 bug tickets, got %d", len(tickets))
	}
}

func TestInsertBug_Dedup(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	bug := &models.Bug{
		BugSig:    "500-on-save:/users/:id",
		BugID:     "TB-9",
		Route:     "/users/:id",
		UserLevel: "member",
		Severity:  "high",
		CreatedAt: time.Now().UTC(),
	}

	inserted, err := s.InsertBug(bug)
	if err != nil {
		t.Fatalf("InsertBug failed: %v", err)
	}
	if !inserted {
		t.Error("Expected first insert to succeed")
	}

	// Same signature again: no-op, first row wins.
	dup := *bug
	dup.BugID = "TB-10"
	inserted, err = s.InsertBug(&dup)
	if err != nil {
		t.Fatalf("Second InsertBug failed: %v", err)
	}
	if inserted {
		t.Error("Expected duplicate signature to be a no-op")
	}

	got, err := s.GetBug(bug.BugSig)
	if err != nil {
		t.Fatalf("GetBug failed: %v", err)
	}
	if got == nil || got.BugID != "TB-9" {
		t.Errorf("Expected original bug TB-9, got %+v", got)
	}
}

func TestWriteEvent(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	e, err := s.WriteEvent("route.discover", "abc123", "success", "admin", "/reports", "")
	if err != nil {
		t.Fatalf("WriteEvent failed: %v", err)
	}
	if e.ID == "" {
		t.Error("Event ID should not be empty")
	}
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func newTestStore(t *testing.T) *Store {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return s
}
