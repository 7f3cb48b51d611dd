// Package campaign provides the service layer and HTTP API for a route
// exploration campaign.
package campaign

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/example/wayfinder/internal/audit"
	"github.com/example/wayfinder/internal/dispatch"
	"github.com/example/wayfinder/internal/explorer"
	"github.com/example/wayfinder/internal/lease"
	"github.com/example/wayfinder/internal/models"
	"github.com/example/wayfinder/internal/normalize"
	"github.com/example/wayfinder/internal/store"
)

// Service provides the campaign business logic.
type Service struct {
	store      *store.Store
	leases     *lease.Manager
	dispatcher *dispatch.Dispatcher
	trail      *audit.Trail
}

// NewService creates a new campaign service.
func NewService(s *store.Store, l *lease.Manager, d *dispatch.Dispatcher, trail *audit.Trail) *Service {
	return &Service{
		store:      s,
		leases:     l,
		dispatcher: d,
		trail:      trail,
	}
}

// --- Discovery ---

// DiscoverResult summarizes one discovery batch.
type DiscoverResult struct {
	// New lists canonical routes recorded for the first time.
	New []string `json:"new"`
	// Known counts routes that were already in the store.
	Known int `json:"known"`
	// Tickets maps canonical routes to the EXPLORE tickets ensured for them.
	Tickets map[string]string `json:"tickets"`
	// Busy lists routes skipped because another worker held their lease.
	// They are picked up again by DispatchPending.
	Busy []string `json:"busy"`
}

// Discover normalizes raw paths, records the new ones, and ensures an
// EXPLORE ticket for every route in the batch. Re-reporting a known route is
// a no-op; lease contention on a route is tolerated and reported in Busy.
func (s *Service) Discover(ctx context.Context, userLevel string, rawPaths []string) (*DiscoverResult, error) {
	res := &DiscoverResult{Tickets: make(map[string]string)}

	seen := make(map[string]bool)
	for _, raw := range rawPaths {
		route := normalize.Route(raw)
		if seen[route] {
			continue
		}
		seen[route] = true

		created, err := s.store.UpsertDiscovered(userLevel, route)
		if err != nil {
			return nil, err
		}
		if created {
			res.New = append(res.New, route)
		} else {
			res.Known++
		}

		id, err := s.dispatcher.EnsureExploreTicket(ctx, userLevel, route)
		switch {
		case err == nil:
			res.Tickets[route] = id
		case errors.Is(err, dispatch.ErrBusy):
			res.Busy = append(res.Busy, route)
		default:
			return nil, err
		}
	}

	s.trail.Record("route.discover", map[string]interface{}{"user_level": userLevel, "paths": rawPaths},
		"success", userLevel, "", fmt.Sprintf("%d new, %d known", len(res.New), res.Known))
	return res, nil
}

// DispatchPending ensures EXPLORE tickets for discovered routes that still
// lack one, typically after a crash or a Busy skip during discovery.
func (s *Service) DispatchPending(ctx context.Context, userLevel string) (*DiscoverResult, error) {
	routes, err := s.store.ListUnaudited(userLevel)
	if err != nil {
		return nil, err
	}

	res := &DiscoverResult{Tickets: make(map[string]string)}
	for _, r := range routes {
		id, err := s.dispatcher.EnsureExploreTicket(ctx, r.UserLevel, r.Route)
		switch {
		case err == nil:
			res.Tickets[r.Route] = id
		case errors.Is(err, dispatch.ErrBusy):
			res.Busy = append(res.Busy, r.Route)
		default:
			return nil, err
		}
	}

	s.trail.Record("route.dispatch_pending", map[string]string{"user_level": userLevel},
		"success", userLevel, "", fmt.Sprintf("%d tickets ensured", len(res.Tickets)))
	return res, nil
}

// --- Lifecycle callbacks ---

// StartExploration claims a discovered route for a worker: lease first, then
// the discovered -> exploring transition. A held lease or a route in the
// wrong state leaves nothing changed.
func (s *Service) StartExploration(userLevel, route string) (*models.Route, error) {
	ok, err := s.leases.Acquire(userLevel, route)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, dispatch.ErrBusy
	}

	err = s.store.Transition(userLevel, route,
		[]models.RouteStatus{models.StatusDiscovered}, models.StatusExploring, store.Fields{})
	if err != nil {
		s.leases.Release(userLevel, route)
		return nil, err
	}

	s.trail.Record("route.explore_start", map[string]string{"user_level": userLevel, "route": route},
		"success", userLevel, route, "")
	return s.store.Get(userLevel, route)
}

// CompleteResult summarizes a finished exploration.
type CompleteResult struct {
	TestTicket string          `json:"test_ticket"`
	Discovered *DiscoverResult `json:"discovered,omitempty"`
}

// CompleteExploration finishes an exploration: the lease is released, the
// TEST ticket is ensured (which performs the exploring -> explored
// transition), and any reported sub-routes enter discovery recursively.
func (s *Service) CompleteExploration(ctx context.Context, userLevel, route string, result *explorer.Result) (*CompleteResult, error) {
	// Release before ensuring: the dispatcher takes its own lease on the
	// route, and the marker makes a retry after a crash here safe.
	if err := s.leases.Release(userLevel, route); err != nil {
		return nil, err
	}

	testID, err := s.dispatcher.EnsureTestTicket(ctx, userLevel, route, result.Notes)
	if err != nil {
		return nil, err
	}

	out := &CompleteResult{TestTicket: testID}
	if len(result.SubRoutes) > 0 {
		discovered, err := s.Discover(ctx, userLevel, result.SubRoutes)
		if err != nil {
			return nil, err
		}
		out.Discovered = discovered
	}

	s.trail.Record("route.explore_complete", map[string]interface{}{"user_level": userLevel, "route": route, "sub_routes": result.SubRoutes},
		"success", userLevel, route, testID)
	return out, nil
}

// AbortExploration returns a claimed route to the pool: exploring ->
// discovered would regress the state machine, so the route stays exploring
// only as long as the lease; releasing it lets the TTL-based recovery story
// hand the route to the next worker via the TEST path. In practice an abort
// just drops the lease.
func (s *Service) AbortExploration(userLevel, route string) error {
	if err := s.leases.Release(userLevel, route); err != nil {
		return err
	}
	s.trail.Record("route.explore_abort", map[string]string{"user_level": userLevel, "route": route},
		"success", userLevel, route, "")
	return nil
}

// StartTesting moves an explored route into testing.
func (s *Service) StartTesting(userLevel, route string) (*models.Route, error) {
	err := s.store.Transition(userLevel, route,
		[]models.RouteStatus{models.StatusExplored}, models.StatusTesting, store.Fields{})
	if err != nil {
		return nil, err
	}

	s.trail.Record("route.test_start", map[string]string{"user_level": userLevel, "route": route},
		"success", userLevel, route, "")
	return s.store.Get(userLevel, route)
}

// CompleteTest moves a route from testing into its terminal tested state.
func (s *Service) CompleteTest(userLevel, route string) (*models.Route, error) {
	err := s.store.Transition(userLevel, route,
		[]models.RouteStatus{models.StatusTesting}, models.StatusTested, store.Fields{})
	if err != nil {
		return nil, err
	}

	s.trail.Record("route.test_complete", map[string]string{"user_level": userLevel, "route": route},
		"success", userLevel, route, "")
	return s.store.Get(userLevel, route)
}

// --- Bugs ---

// BugReport is the outcome of ReportBug.
type BugReport struct {
	Bug *models.Bug `json:"bug"`
	// Duplicate is true when the signature was already on file; no new
	// ticket was created.
	Duplicate bool `json:"duplicate"`
}

// ReportBug files a bug against a route. Reports are deduplicated on their
// signature (caller-provided, or derived from user level, route, and title):
// the first report creates a BUG ticket and blocks the route, later reports
// with the same signature return the existing record.
func (s *Service) ReportBug(ctx context.Context, userLevel, route, title, description, severity, signature string) (*BugReport, error) {
	if signature == "" {
		sum := sha256.Sum256([]byte(userLevel + "\x00" + route + "\x00" + title))
		signature = hex.EncodeToString(sum[:])
	}

	if existing, err := s.store.GetBug(signature); err != nil {
		return nil, err
	} else if existing != nil {
		return &BugReport{Bug: existing, Duplicate: true}, nil
	}

	ticketID, err := s.dispatcher.CreateBugTicket(ctx, userLevel, route, title, description)
	if err != nil {
		return nil, err
	}

	bug := &models.Bug{
		BugSig:    signature,
		BugID:     ticketID,
		Route:     route,
		UserLevel: userLevel,
		Severity:  severity,
		CreatedAt: time.Now().UTC(),
	}
	inserted, err := s.store.InsertBug(bug)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// A concurrent report won the insert race; theirs is the record.
		existing, err := s.store.GetBug(signature)
		if err != nil {
			return nil, err
		}
		return &BugReport{Bug: existing, Duplicate: true}, nil
	}

	// Block the route. A route already terminal keeps its state; the bug
	// record stands either way.
	err = s.store.Transition(userLevel, route,
		[]models.RouteStatus{models.StatusDiscovered, models.StatusExploring, models.StatusExplored, models.StatusTesting},
		models.StatusBlocked, store.Fields{AddBugID: ticketID})
	if err != nil && !errors.Is(err, store.ErrInvalidTransition) && !errors.Is(err, store.ErrRouteNotFound) {
		return nil, err
	}

	s.trail.Record("bug.report", map[string]string{"user_level": userLevel, "route": route, "title": title, "severity": severity},
		"success", userLevel, route, ticketID)
	return &BugReport{Bug: bug}, nil
}

// --- Helpers and reads ---

// CreateHelperTicket ensures a campaign-level helper ticket.
func (s *Service) CreateHelperTicket(ctx context.Context, name, description string) (string, error) {
	id, err := s.dispatcher.EnsureHelperTicket(ctx, name, description)
	if err != nil {
		return "", err
	}
	s.trail.Record("helper.create", map[string]string{"name": name}, "success", "", "", id)
	return id, nil
}

// GetRoute returns one route row, nil when absent.
func (s *Service) GetRoute(userLevel, route string) (*models.Route, error) {
	return s.store.Get(userLevel, route)
}

// ListRoutes returns routes filtered by user level and status; empty values
// match everything.
func (s *Service) ListRoutes(userLevel string, status models.RouteStatus) ([]models.Route, error) {
	return s.store.ListRoutes(userLevel, status)
}

// Stats summarizes campaign progress for one user level (or all, when empty).
type Stats struct {
	UserLevel string                     `json:"user_level,omitempty"`
	Counts    map[models.RouteStatus]int `json:"counts"`
	Total     int                        `json:"total"`
}

// CampaignStats computes per-status route counts.
func (s *Service) CampaignStats(userLevel string) (*Stats, error) {
	counts, err := s.store.StatusCounts(userLevel)
	if err != nil {
		return nil, err
	}
	st := &Stats{UserLevel: userLevel, Counts: counts}
	for _, n := range counts {
		st.Total += n
	}
	return st, nil
}
