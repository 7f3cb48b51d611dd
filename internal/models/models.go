// Package models defines the core domain types for Wayfinder.
package models

import "time"

// RouteStatus represents where a route is in its audit lifecycle.
type RouteStatus string

const (
	StatusDiscovered RouteStatus = "discovered"
	StatusExploring  RouteStatus = "exploring"
	StatusExplored   RouteStatus = "explored"
	StatusTesting    RouteStatus = "testing"
	StatusTested     RouteStatus = "tested"
	StatusBlocked    RouteStatus = "blocked"
)

// TicketKind classifies work items handed to the external task board.
type TicketKind string

const (
	KindExplore TicketKind = "EXPLORE"
	KindTest    TicketKind = "TEST"
	KindHelper  TicketKind = "HELPER"
	KindBug     TicketKind = "BUG"
)

// Route is the unit of work: a normalized, user-level-scoped application
// path tracked through its audit lifecycle. Rows are never deleted.
type Route struct {
	UserLevel     string      `json:"user_level"`
	Route         string      `json:"route"`
	Status        RouteStatus `json:"status"`
	AuditID       string      `json:"audit_id,omitempty"`
	TestID        string      `json:"test_id,omitempty"`
	BugIDs        []string    `json:"bug_ids,omitempty"`
	DiscoveredAt  time.Time   `json:"discovered_at"`
	LastAuditedAt *time.Time  `json:"last_audited_at,omitempty"`
	PickedAt      *time.Time  `json:"picked_at,omitempty"`
	LeaseUntil    *time.Time  `json:"lease_until,omitempty"`
}

// Leased reports whether the route holds an unexpired lease at now.
func (r *Route) Leased(now time.Time) bool {
	return r.LeaseUntil != nil && r.LeaseUntil.After(now)
}

// Ticket is a work item created in the external task board. Tickets are
// immutable once created; Route and UserLevel are empty for HELPER tickets.
type Ticket struct {
	TicketID  string     `json:"ticket_id"`
	Kind      TicketKind `json:"kind"`
	Route     string     `json:"route,omitempty"`
	UserLevel string     `json:"user_level,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Bug is a deduplicated defect record keyed by a content-derived signature.
type Bug struct {
	BugSig    string    `json:"bug_sig"`
	BugID     string    `json:"bug_id"`
	Route     string    `json:"route"`
	UserLevel string    `json:"user_level"`
	Severity  string    `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
}

// Event is one entry in the append-only campaign audit trail.
type Event struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	InputsHash string    `json:"inputs_hash"`
	Outcome    string    `json:"outcome"`
	UserLevel  string    `json:"user_level,omitempty"`
	Route      string    `json:"route,omitempty"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
