package swap

import "context"

// Repository persists agreements.
type Repository interface {
	// Get loads an agreement or fails with ErrAgreementNotFound.
	Get(ctx context.Context, id string) (*Agreement, error)
	// Save inserts new aggregates and updates persisted ones.
	Save(ctx context.Context, agreement *Agreement) error
	// List returns all agreements ordered by id.
	List(ctx context.Context) ([]*Agreement, error)
}
