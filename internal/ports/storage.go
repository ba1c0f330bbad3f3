package ports

import (
	"context"

	"github.com/alejandrodnm/holderpot/internal/domain"
)

// CycleStorage persists the history of every tick and the last published state.
type CycleStorage interface {
	// SaveCycle stores the record of one tick together with the state it published.
	SaveCycle(ctx context.Context, record domain.CycleRecord, state domain.PublishedState) error

	// RecentCycles returns the last limit records, newest first.
	RecentCycles(ctx context.Context, limit int) ([]domain.CycleRecord, error)

	// LoadLastState returns the most recently saved state, if any.
	LoadLastState(ctx context.Context) (domain.PublishedState, bool, error)

	// Close closes the underlying database.
	Close() error
}
