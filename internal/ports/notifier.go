package ports

import (
	"context"

	"github.com/alejandrodnm/holderpot/internal/domain"
)

// Notifier reports the outcome of each tick to the operator.
type Notifier interface {
	NotifyCycle(ctx context.Context, record domain.CycleRecord) error
}
