// Package storage provides durable visitor-state persistence. Two backends
// are available: PostgreSQL (JSONB rows) and Redis (JSON strings with a
// TTL). Both speak [visitor.State], the serializable form of a visitor, so
// a node can rebuild its in-memory registry after a restart or share state
// across nodes.
package storage

import (
	"context"
	"errors"

	"github.com/matt-riley/splitz/internal/visitor"
)

// ErrNotFound is returned when no state is stored for a visitor code.
var ErrNotFound = errors.New("storage: visitor not found")

// Store persists visitor state keyed by visitor code.
type Store interface {
	// Save upserts the state for state.Code.
	Save(ctx context.Context, state visitor.State) error
	// Load returns the stored state, or ErrNotFound (wrapped).
	Load(ctx context.Context, code string) (visitor.State, error)
	// Delete removes the stored state. Deleting an absent code is not an
	// error.
	Delete(ctx context.Context, code string) error
	// Close releases the backend connection.
	Close() error
}
