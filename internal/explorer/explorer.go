// Package explorer defines the exploration collaborator interface. The
// coordinator treats exploration as opaque: it hands over a user level and a
// canonical route and gets back whatever the collaborator observed.
package explorer

import "context"

// Result holds the outcome of exploring one route at one user level.
type Result struct {
	// SubRoutes lists raw paths discovered during exploration. They are
	// normalized by the campaign service before entering the store.
	SubRoutes []string `json:"sub_routes"`

	// Notes is free-form text describing what was observed. It feeds the
	// TEST ticket description.
	Notes string `json:"notes"`
}

// Explorer explores a single route on behalf of the coordinator.
type Explorer interface {
	// Name returns the explorer identifier.
	Name() string

	// Explore visits the route at the given user level and reports what
	// it found.
	Explore(ctx context.Context, userLevel, route string) (*Result, error)
}
