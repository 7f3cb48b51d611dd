package taskboard

import (
	"context"
	"fmt"
	"sync"
)

// MemoryBoard is a deterministic in-memory Board for tests and dry runs.
type MemoryBoard struct {
	mu       sync.Mutex
	next     int
	Attempts int
	Tickets  []MemoryTicket

	// FailNext, when non-nil, is returned (and cleared) by the next
	// CreateTicket call. Lets tests script rate-limit sequences.
	FailNext []error
}

// MemoryTicket records one CreateTicket call.
type MemoryTicket struct {
	ProjectID   string
	Name        string
	Description string
	TicketID    string
}

// NewMemoryBoard creates an empty in-memory board.
func NewMemoryBoard() *MemoryBoard {
	return &MemoryBoard{}
}

// CreateTicket implements Board. Ids are sequential and deterministic.
func (b *MemoryBoard) CreateTicket(ctx context.Context, projectID, name, description string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.Attempts++
	if len(b.FailNext) > 0 {
		err := b.FailNext[0]
		b.FailNext = b.FailNext[1:]
		if err != nil {
			return "", err
		}
	}

	b.next++
	id := fmt.Sprintf("TB-%d", b.next)
	b.Tickets = append(b.Tickets, MemoryTicket{
		ProjectID:   projectID,
		Name:        name,
		Description: description,
		TicketID:    id,
	})
	return id, nil
}

// Calls returns how many tickets were created.
func (b *MemoryBoard) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Tickets)
}
