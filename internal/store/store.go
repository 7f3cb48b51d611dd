// Package store provides SQLite-backed persistence for Wayfinder.
//
// The routes table is the single source of truth for route lifecycle state.
// Every mutation is applied with compare-and-set semantics against the
// composite (user_level, route) key; concurrency guarantees derive from this
// discipline, not from in-process locking.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/example/wayfinder/internal/models"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Sentinel errors for route-state operations.
var (
	// ErrRouteNotFound indicates the (user_level, route) row does not exist.
	ErrRouteNotFound = errors.New("route not found")

	// ErrInvalidTransition indicates an attempted state change violates the
	// status state machine. The row is left unchanged.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Store provides access to the Wayfinder SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Open with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS routes (
		user_level TEXT NOT NULL,
		route TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'discovered',
		audit_id TEXT,
		test_id TEXT,
		bug_ids TEXT,
		discovered_at DATETIME NOT NULL,
		last_audited_at DATETIME,
		picked_at DATETIME,
		lease_until DATETIME,
		PRIMARY KEY (user_level, route)
	);

	CREATE TABLE IF NOT EXISTS tickets (
		ticket_id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		route TEXT,
		user_level TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bugs (
		bug_sig TEXT PRIMARY KEY,
		bug_id TEXT NOT NULL,
		route TEXT NOT NULL,
		user_level TEXT NOT NULL,
		severity TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		inputs_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		user_level TEXT,
		route TEXT,
		details TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_routes_status ON routes(status);
	CREATE INDEX IF NOT EXISTS idx_tickets_route ON tickets(user_level, route);
	CREATE INDEX IF NOT EXISTS idx_events_route ON events(user_level, route);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Route Operations ---

// UpsertDiscovered inserts a route with status=discovered if absent. Returns
// true when a new row was created and false when the row already existed,
// regardless of its current status: discovery never regresses a route.
func (s *Store) UpsertDiscovered(userLevel, route string) (bool, error) {
	res, err := s.db.Exec(
		`INSERT INTO routes (user_level, route, status, discovered_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_level, route) DO NOTHING`,
		userLevel, route, models.StatusDiscovered, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("upsert route: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	return n == 1, nil
}

// Get retrieves a route by its composite key. Returns nil when absent.
func (s *Store) Get(userLevel, route string) (*models.Route, error) {
	row := s.db.QueryRow(
		`SELECT user_level, route, status, audit_id, test_id, bug_ids,
		        discovered_at, last_audited_at, picked_at, lease_until
		 FROM routes WHERE user_level = ? AND route = ?`,
		userLevel, route,
	)
	r, err := scanRoute(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query route: %w", err)
	}
	return r, nil
}

// ListRoutes returns routes for a user level, optionally filtered by status.
// An empty userLevel matches all levels.
func (s *Store) ListRoutes(userLevel string, status models.RouteStatus) ([]models.Route, error) {
	query := `SELECT user_level, route, status, audit_id, test_id, bug_ids,
	                 discovered_at, last_audited_at, picked_at, lease_until
	          FROM routes WHERE 1=1`
	var args []interface{}

	if userLevel != "" {
		query += ` AND user_level = ?`
		args = append(args, userLevel)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY discovered_at ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query routes: %w", err)
	}
	defer rows.Close()

	var routes []models.Route
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, fmt.Errorf("scan route: %w", err)
		}
		routes = append(routes, *r)
	}
	return routes, rows.Err()
}

// ListUnaudited returns discovered routes that have no EXPLORE ticket yet.
// The dispatcher scans these to create missing tickets. An empty userLevel
// matches all levels.
func (s *Store) ListUnaudited(userLevel string) ([]models.Route, error) {
	query := `SELECT user_level, route, status, audit_id, test_id, bug_ids,
	                 discovered_at, last_audited_at, picked_at, lease_until
	          FROM routes
	          WHERE status = ? AND (audit_id IS NULL OR audit_id = '')`
	args := []interface{}{models.StatusDiscovered}
	if userLevel != "" {
		query += ` AND user_level = ?`
		args = append(args, userLevel)
	}
	query += ` ORDER BY discovered_at ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query unaudited routes: %w", err)
	}
	defer rows.Close()

	var routes []models.Route
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, fmt.Errorf("scan route: %w", err)
		}
		routes = append(routes, *r)
	}
	return routes, rows.Err()
}

// StatusCounts returns the number of routes per status for a user level.
// An empty userLevel counts across all levels.
func (s *Store) StatusCounts(userLevel string) (map[models.RouteStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM routes`
	var args []interface{}
	if userLevel != "" {
		query += ` WHERE user_level = ?`
		args = append(args, userLevel)
	}
	query += ` GROUP BY status`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("count routes: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.RouteStatus]int)
	for rows.Next() {
		var status models.RouteStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// --- Lease Operations ---

// TryAcquireLease attempts to take the route's lease for ttl. It succeeds
// iff no unexpired lease exists, setting lease_until and picked_at in a
// single compare-and-set UPDATE. Returns false without side effects when the
// route is already leased or does not exist.
func (s *Store) TryAcquireLease(userLevel, route string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(
		`UPDATE routes SET lease_until = ?, picked_at = ?
		 WHERE user_level = ? AND route = ?
		   AND (lease_until IS NULL OR lease_until <= ?)`,
		now.Add(ttl), now, userLevel, route, now,
	)
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	return n == 1, nil
}

// ReleaseLease clears the route's lease unconditionally. Idempotent.
func (s *Store) ReleaseLease(userLevel, route string) error {
	_, err := s.db.Exec(
		`UPDATE routes SET lease_until = NULL WHERE user_level = ? AND route = ?`,
		userLevel, route,
	)
	if err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

// --- Status Transitions ---

// Fields carries the extra columns a transition may update alongside status.
type Fields struct {
	AuditID       string
	TestID        string
	LastAuditedAt *time.Time
	AddBugID      string // appended to the bug_ids set
}

// Transition atomically moves a route from one of the from statuses to the
// to status, updating any extra fields in the same transaction. It fails
// with ErrInvalidTransition when the current status is outside from or the
// edge is not in the state machine, and with ErrRouteNotFound when the row
// is absent. A failed transition mutates nothing; a late write from a worker
// whose lease expired fails here instead of corrupting state.
func (s *Store) Transition(userLevel, route string, from []models.RouteStatus, to models.RouteStatus, extra Fields) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current models.RouteStatus
	var bugIDsJSON sql.NullString
	err = tx.QueryRow(
		`SELECT status, bug_ids FROM routes WHERE user_level = ? AND route = ?`,
		userLevel, route,
	).Scan(&current, &bugIDsJSON)
	if err == sql.ErrNoRows {
		return ErrRouteNotFound
	}
	if err != nil {
		return fmt.Errorf("query route status: %w", err)
	}

	if !statusIn(current, from) {
		return fmt.Errorf("%w: %s/%s is %s, expected one of %v", ErrInvalidTransition, userLevel, route, current, from)
	}
	if !models.ValidTransition(current, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, to)
	}

	query := `UPDATE routes SET status = ?`
	args := []interface{}{to}

	if extra.AuditID != "" {
		query += `, audit_id = ?`
		args = append(args, extra.AuditID)
	}
	if extra.TestID != "" {
		query += `, test_id = ?`
		args = append(args, extra.TestID)
	}
	if extra.LastAuditedAt != nil {
		query += `, last_audited_at = ?`
		args = append(args, extra.LastAuditedAt.UTC())
	}
	if extra.AddBugID != "" {
		ids := decodeBugIDs(bugIDsJSON)
		ids = appendUnique(ids, extra.AddBugID)
		data, err := json.Marshal(ids)
		if err != nil {
			return fmt.Errorf("encode bug ids: %w", err)
		}
		query += `, bug_ids = ?`
		args = append(args, string(data))
	}

	// CAS on the status we just read: if another worker slipped in between
	// the read and this write, zero rows match and the transition fails.
	query += ` WHERE user_level = ? AND route = ? AND status = ?`
	args = append(args, userLevel, route, current)

	res, err := tx.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("update route status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s changed concurrently", ErrInvalidTransition, userLevel, route)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// SetAuditID records the EXPLORE ticket id on a route without touching its
// status. Idempotent; used both on creation and to repair a row after a
// crash between ticket creation and the store write.
func (s *Store) SetAuditID(userLevel, route, auditID string) error {
	_, err := s.db.Exec(
		`UPDATE routes SET audit_id = ? WHERE user_level = ? AND route = ?
		   AND (audit_id IS NULL OR audit_id = '' OR audit_id = ?)`,
		auditID, userLevel, route, auditID,
	)
	if err != nil {
		return fmt.Errorf("set audit id: %w", err)
	}
	return nil
}

// --- Ticket Operations ---

// RecordTicket stores a ticket created in the external task board. Tickets
// are immutable; re-recording the same id is a no-op.
func (s *Store) RecordTicket(t *models.Ticket) error {
	_, err := s.db.Exec(
		`INSERT INTO tickets (ticket_id, kind, route, user_level, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(ticket_id) DO NOTHING`,
		t.TicketID, t.Kind, t.Route, t.UserLevel, t.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

// ListTickets returns tickets, optionally filtered by kind.
func (s *Store) ListTickets(kind models.TicketKind) ([]models.Ticket, error) {
	query := `SELECT ticket_id, kind, route, user_level, created_at FROM tickets`
	var args []interface{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tickets: %w", err)
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		var t models.Ticket
		var route, userLevel sql.NullString
		if err := rows.Scan(&t.TicketID, &t.Kind, &route, &userLevel, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		t.Route = route.String
		t.UserLevel = userLevel.String
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// --- Bug Operations ---

// InsertBug records a deduplicated defect. Returns true when the row was
// inserted and false when a bug with the same signature already exists;
// repeated detection of the same defect is a no-op.
func (s *Store) InsertBug(b *models.Bug) (bool, error) {
	res, err := s.db.Exec(
		`INSERT INTO bugs (bug_sig, bug_id, route, user_level, severity, created_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(bug_sig) DO NOTHING`,
		b.BugSig, b.BugID, b.Route, b.UserLevel, b.Severity, b.CreatedAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("insert bug: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	return n == 1, nil
}

// GetBug retrieves a bug by signature. Returns nil when absent.
func (s *Store) GetBug(bugSig string) (*models.Bug, error) {
	b := &models.Bug{}
	err := s.db.QueryRow(
		`SELECT bug_sig, bug_id, route, user_level, severity, created_at FROM bugs WHERE bug_sig = ?`,
		bugSig,
	).Scan(&b.BugSig, &b.BugID, &b.Route, &b.UserLevel, &b.Severity, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query bug: %w", err)
	}
	return b, nil
}

// --- Event Operations ---

// WriteEvent appends an entry to the campaign audit trail.
func (s *Store) WriteEvent(action, inputsHash, outcome, userLevel, route, details string) (*models.Event, error) {
	e := &models.Event{
		ID:         uuid.New().String(),
		Action:     action,
		InputsHash: inputsHash,
		Outcome:    outcome,
		UserLevel:  userLevel,
		Route:      route,
		Details:    details,
		Timestamp:  time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO events (id, action, inputs_hash, outcome, user_level, route, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Action, e.InputsHash, e.Outcome, e.UserLevel, e.Route, e.Details, e.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return e, nil
}

// --- Helpers ---

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRoute(row scanner) (*models.Route, error) {
	r := &models.Route{}
	var auditID, testID, bugIDs sql.NullString
	var lastAudited, picked, leaseUntil sql.NullTime

	err := row.Scan(&r.UserLevel, &r.Route, &r.Status, &auditID, &testID, &bugIDs,
		&r.DiscoveredAt, &lastAudited, &picked, &leaseUntil)
	if err != nil {
		return nil, err
	}

	r.AuditID = auditID.String
	r.TestID = testID.String
	r.BugIDs = decodeBugIDs(bugIDs)
	if lastAudited.Valid {
		r.LastAuditedAt = &lastAudited.Time
	}
	if picked.Valid {
		r.PickedAt = &picked.Time
	}
	if leaseUntil.Valid {
		r.LeaseUntil = &leaseUntil.Time
	}
	return r, nil
}

func decodeBugIDs(v sql.NullString) []string {
	if !v.Valid || v.String == "" {
		return nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(v.String), &ids); err != nil {
		return nil
	}
	return ids
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func statusIn(s models.RouteStatus, set []models.RouteStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
