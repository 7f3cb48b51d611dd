package models

// transitions enumerates every legal status edge. Anything not listed here
// is rejected; `blocked` is reachable from every non-terminal state when a
// filed bug blocks the route's TEST ticket.
var transitions = map[RouteStatus][]RouteStatus{
	StatusDiscovered: {StatusExploring, StatusBlocked},
	StatusExploring:  {StatusExplored, StatusBlocked},
	StatusExplored:   {StatusTesting, StatusBlocked},
	StatusTesting:    {StatusTested, StatusBlocked},
	StatusTested:     {},
	StatusBlocked:    {},
}

// ValidTransition reports whether from -> to is a legal status edge.
func ValidTransition(from, to RouteStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a status ends the route's campaign cycle.
// A blocked route stays blocked until the campaign is re-run; bug
// resolution does not automatically unblock it.
func (s RouteStatus) Terminal() bool {
	return s == StatusTested || s == StatusBlocked
}

// ValidStatus reports whether s is a known route status.
func ValidStatus(s RouteStatus) bool {
	_, ok := transitions[s]
	return ok
}
