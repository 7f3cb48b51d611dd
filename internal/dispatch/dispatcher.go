// Package dispatch creates task-board tickets exactly once per route.
//
// The exactly-once guarantee is built from three pieces: the dedup marker
// (durable create-if-absent record of a created ticket), the route lease
// (mutual exclusion between concurrent workers), and a fixed write order:
// marker first, route store second, lease release last. A crash after the
// board call but before the store write leaves the marker behind; the next
// attempt finds it on the fast path and repairs the route row instead of
// creating a second ticket.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/example/wayfinder/internal/lease"
	"github.com/example/wayfinder/internal/marker"
	"github.com/example/wayfinder/internal/models"
	"github.com/example/wayfinder/internal/ratelimit"
	"github.com/example/wayfinder/internal/store"
	"github.com/example/wayfinder/internal/taskboard"
)

var (
	// ErrBusy indicates another worker holds the route's lease. The caller
	// may retry later with backoff of its own choosing.
	ErrBusy = errors.New("route lease held by another worker")

	// ErrTicketCreationFailed wraps a permanent task-board rejection. The
	// route keeps its prior status and the lease is released so a later
	// attempt can be made.
	ErrTicketCreationFailed = errors.New("ticket creation failed")
)

// Dispatcher coordinates normalizer output, the route store, the dedup
// marker, and the rate-limited board into exactly-once ticket creation.
type Dispatcher struct {
	store     *store.Store
	markers   *marker.Store
	leases    *lease.Manager
	board     taskboard.Board
	projectID string

	// helperMu guards helper-ticket creation, which has no route row to
	// lease against.
	helperMu sync.Mutex
}

// New creates a dispatcher. board is normally a *ratelimit.Limiter so every
// call honors the shared pacing gate.
func New(s *store.Store, m *marker.Store, l *lease.Manager, board taskboard.Board, projectID string) *Dispatcher {
	return &Dispatcher{
		store:     s,
		markers:   m,
		leases:    l,
		board:     board,
		projectID: projectID,
	}
}

// EnsureExploreTicket creates the EXPLORE ticket for a discovered route, at
// most once per campaign. It records the ticket id as the route's audit_id;
// the route stays in `discovered` until a worker picks it up.
func (d *Dispatcher) EnsureExploreTicket(ctx context.Context, userLevel, route string) (string, error) {
	// Fast path: an existing marker means the ticket exists, no network
	// call and no lease needed. Repair the route row in case a crash lost
	// the store write.
	if id, ok, err := d.markers.Get(userLevel, route, models.KindExplore); err != nil {
		return "", err
	} else if ok {
		if err := d.store.SetAuditID(userLevel, route, id); err != nil {
			return "", err
		}
		return id, nil
	}

	ok, err := d.leases.Acquire(userLevel, route)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrBusy
	}
	defer d.leases.Release(userLevel, route)

	// Double-check after taking the lease: another worker may have created
	// the ticket between our marker miss and the acquire.
	if id, ok, err := d.markers.Get(userLevel, route, models.KindExplore); err != nil {
		return "", err
	} else if ok {
		if err := d.store.SetAuditID(userLevel, route, id); err != nil {
			return "", err
		}
		return id, nil
	}

	name := fmt.Sprintf("Explore %s as %s", route, userLevel)
	description := fmt.Sprintf("Exhaustively explore route %s at user level %q and record every interactive element and observed behavior. Report any newly reachable sub-routes.", route, userLevel)

	id, err := d.createTicket(ctx, name, description)
	if err != nil {
		return "", err
	}

	// Marker first, store second: the ordering is what makes crash
	// recovery correct.
	if err := d.markers.Put(userLevel, route, models.KindExplore, id); err != nil {
		return "", err
	}
	if err := d.store.RecordTicket(&models.Ticket{
		TicketID:  id,
		Kind:      models.KindExplore,
		Route:     route,
		UserLevel: userLevel,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return "", err
	}
	if err := d.store.SetAuditID(userLevel, route, id); err != nil {
		return "", err
	}
	return id, nil
}

// EnsureTestTicket creates the TEST ticket for an explored route, at most
// once per campaign, and performs the exploring -> explored transition with
// the ticket id and audit timestamp. payload carries the exploration notes
// embedded in the ticket description.
func (d *Dispatcher) EnsureTestTicket(ctx context.Context, userLevel, route, payload string) (string, error) {
	if id, ok, err := d.markers.Get(userLevel, route, models.KindTest); err != nil {
		return "", err
	} else if ok {
		if err := d.finishExploration(userLevel, route, id); err != nil {
			return "", err
		}
		return id, nil
	}

	ok, err := d.leases.Acquire(userLevel, route)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrBusy
	}
	defer d.leases.Release(userLevel, route)

	if id, ok, err := d.markers.Get(userLevel, route, models.KindTest); err != nil {
		return "", err
	} else if ok {
		if err := d.finishExploration(userLevel, route, id); err != nil {
			return "", err
		}
		return id, nil
	}

	name := fmt.Sprintf("Write tests for %s as %s", route, userLevel)
	description := fmt.Sprintf("Cover route %s at user level %q with automated tests based on the recorded exploration.\n\n%s", route, userLevel, payload)

	id, err := d.createTicket(ctx, name, description)
	if err != nil {
		return "", err
	}

	if err := d.markers.Put(userLevel, route, models.KindTest, id); err != nil {
		return "", err
	}
	if err := d.store.RecordTicket(&models.Ticket{
		TicketID:  id,
		Kind:      models.KindTest,
		Route:     route,
		UserLevel: userLevel,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return "", err
	}
	if err := d.finishExploration(userLevel, route, id); err != nil {
		return "", err
	}
	return id, nil
}

// EnsureHelperTicket creates a campaign-level helper ticket (no route), at
// most once per name.
func (d *Dispatcher) EnsureHelperTicket(ctx context.Context, name, description string) (string, error) {
	d.helperMu.Lock()
	defer d.helperMu.Unlock()

	if id, ok, err := d.markers.Get("", name, models.KindHelper); err != nil {
		return "", err
	} else if ok {
		return id, nil
	}

	id, err := d.createTicket(ctx, name, description)
	if err != nil {
		return "", err
	}

	if err := d.markers.Put("", name, models.KindHelper, id); err != nil {
		return "", err
	}
	if err := d.store.RecordTicket(&models.Ticket{
		TicketID:  id,
		Kind:      models.KindHelper,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return "", err
	}
	return id, nil
}

// CreateBugTicket creates a BUG ticket through the shared pacing gate. Bug
// dedup is keyed on bug_sig in the store, not on the marker, so this is a
// plain paced call; the campaign service owns the dedup check.
func (d *Dispatcher) CreateBugTicket(ctx context.Context, userLevel, route, title, description string) (string, error) {
	id, err := d.createTicket(ctx, title, description)
	if err != nil {
		return "", err
	}
	if err := d.store.RecordTicket(&models.Ticket{
		TicketID:  id,
		Kind:      models.KindBug,
		Route:     route,
		UserLevel: userLevel,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return "", err
	}
	return id, nil
}

// createTicket calls the board and maps its failures into the dispatcher's
// error taxonomy. Rate-limit exhaustion passes through untouched; permanent
// rejections are wrapped as ErrTicketCreationFailed.
func (d *Dispatcher) createTicket(ctx context.Context, name, description string) (string, error) {
	id, err := d.board.CreateTicket(ctx, d.projectID, name, description)
	if err == nil {
		return id, nil
	}
	if errors.Is(err, ratelimit.ErrRateLimitExceeded) || errors.Is(err, ctx.Err()) {
		return "", err
	}
	return "", fmt.Errorf("%w: %v", ErrTicketCreationFailed, err)
}

// finishExploration records the TEST ticket on the route and moves it to
// explored. A route already past exploring (because the transition landed
// before a crash, or a retry raced the original worker) is left alone.
func (d *Dispatcher) finishExploration(userLevel, route, testID string) error {
	now := time.Now().UTC()
	err := d.store.Transition(userLevel, route,
		[]models.RouteStatus{models.StatusExploring},
		models.StatusExplored,
		store.Fields{TestID: testID, LastAuditedAt: &now})
	if errors.Is(err, store.ErrInvalidTransition) {
		return nil
	}
	return err
}

var _ taskboard.Board = (*ratelimit.Limiter)(nil)
