// Package records provides the document store that persists superhero
// records. Backends: SQLite (default), Badger (embedded KV) and SurrealDB.
package records

import (
	"context"

	"github.com/starford/capes/internal/models"
)

// Store defines the record persistence operations.
// Consumers should depend on this interface rather than a concrete backend
// to facilitate testing with fakes.
//
// Missing ids are reported as apperr.ErrNotFound. Every other error is a
// backend failure.
type Store interface {
	// Create assigns ID, CreatedAt and UpdatedAt and persists h.
	Create(ctx context.Context, h models.Superhero) (*models.Superhero, error)
	Get(ctx context.Context, id string) (*models.Superhero, error)
	// Update replaces every descriptive field and appends images to the
	// existing list in one atomic step.
	Update(ctx context.Context, id string, f models.Fields, images []string) (*models.Superhero, error)
	// RemoveImage filters url out of the record's images in one atomic step
	// and returns the resulting list.
	RemoveImage(ctx context.Context, id, url string) ([]string, error)
	Delete(ctx context.Context, id string) error
	// List returns records ordered by CreatedAt descending (ID descending on ties).
	List(ctx context.Context, skip, limit int) ([]models.Superhero, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Verify backends satisfy Store at compile time.
var (
	_ Store = (*SQLite)(nil)
	_ Store = (*Badger)(nil)
	_ Store = (*Surreal)(nil)
)
