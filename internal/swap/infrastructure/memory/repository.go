package memory

import (
	"context"
	"fmt"
	"sort"

	swap "irs-settlement/internal/swap/domain"
)

// Repository is the agreement repository view of a unit of work.
type Repository struct {
	agreements map[string]swap.Snapshot
}

// Get loads an agreement.
func (r *Repository) Get(ctx context.Context, id string) (*swap.Agreement, error) {
	snap, ok := r.agreements[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", swap.ErrAgreementNotFound, id)
	}
	return swap.RestoreAgreement(snap)
}

// Save stores agreement, checking its version against the stored one.
func (r *Repository) Save(ctx context.Context, agreement *swap.Agreement) error {
	if agreement == nil {
		return swap.ErrNilAggregate
	}
	stored, exists := r.agreements[agreement.ID()]
	switch {
	case agreement.IsNew() && exists:
		return fmt.Errorf("%w: %s", swap.ErrAgreementExists, agreement.ID())
	case !agreement.IsNew() && !exists:
		return fmt.Errorf("%w: %s", swap.ErrAgreementNotFound, agreement.ID())
	case !agreement.IsNew() && stored.Version != agreement.Version():
		return fmt.Errorf("swap repo: version conflict on %s", agreement.ID())
	}
	agreement.MarkPersisted()
	r.agreements[agreement.ID()] = agreement.Snapshot()
	return nil
}

// List returns agreements ordered by id.
func (r *Repository) List(ctx context.Context) ([]*swap.Agreement, error) {
	ids := make([]string, 0, len(r.agreements))
	for id := range r.agreements {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*swap.Agreement, 0, len(ids))
	for _, id := range ids {
		agreement, err := swap.RestoreAgreement(r.agreements[id])
		if err != nil {
			return nil, err
		}
		out = append(out, agreement)
	}
	return out, nil
}
