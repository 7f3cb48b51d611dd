// Package marker provides the durable dedup records that make ticket
// creation idempotent.
//
// One file exists per (user_level, kind, normalized_route), holding the id
// of the ticket already created for that route. The file lives outside the
// route store on purpose: a crash between "ticket created" and "route row
// updated" leaves the marker behind as the recoverable proof of success, so
// a retry finds it and does not create a second ticket. Absence of a marker
// always means "not yet created"; it is never inferred from the route row
// alone.
package marker

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/wayfinder/internal/models"
)

// Store reads and writes marker files under a root directory.
type Store struct {
	root string
}

// New creates a marker store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create marker directory: %w", err)
	}
	return &Store{root: dir}, nil
}

// Get returns the ticket id recorded for the key, if any.
func (s *Store) Get(userLevel string, route string, kind models.TicketKind) (string, bool, error) {
	data, err := os.ReadFile(s.path(userLevel, route, kind))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read marker: %w", err)
	}
	return strings.TrimSpace(string(data)), true, nil
}

// Put durably records the ticket id for the key with create-if-absent
// semantics. If a marker already exists it is left untouched and Put
// returns nil: the first recorded id wins, matching the exactly-once
// guarantee.
func (s *Store) Put(userLevel string, route string, kind models.TicketKind, ticketID string) error {
	path := s.path(userLevel, route, kind)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if os.IsExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create marker: %w", err)
	}

	if _, err := f.WriteString(ticketID + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("write marker: %w", err)
	}
	// The marker is the crash-recovery record; it must hit disk before the
	// route row is updated.
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync marker: %w", err)
	}
	return f.Close()
}

// path escapes the route so it is safe as a single file name.
func (s *Store) path(userLevel string, route string, kind models.TicketKind) string {
	return filepath.Join(s.root, userLevel, string(kind), url.PathEscape(route))
}
