// Package audit provides the append-only campaign event trail.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/example/wayfinder/internal/models"
	"github.com/example/wayfinder/internal/store"
)

// Trail records state-mutating campaign actions for later review.
type Trail struct {
	store *store.Store
}

// NewTrail creates a new event trail backed by the route store.
func NewTrail(s *store.Store) *Trail {
	return &Trail{store: s}
}

// Record appends an event for a state-mutating action.
func (t *Trail) Record(action string, inputs interface{}, outcome, userLevel, route, details string) (*models.Event, error) {
	inputsHash := hashInputs(inputs)
	return t.store.WriteEvent(action, inputsHash, outcome, userLevel, route, details)
}

// hashInputs creates a SHA256 hash of the inputs for reproducibility.
func hashInputs(inputs interface{}) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
