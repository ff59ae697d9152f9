package bus

import (
	"context"

	"github.com/brightledger/hashlookup/internal/domain"
)

// Bus fans domain.JobEvent values out across coordinator instances so that a
// subscriber attached to one process's SSEHub sees progress aggregated by
// another process.
type Bus interface {
	Publish(ctx context.Context, evt domain.JobEvent) error
	StartForwarder(ctx context.Context, onEvent func(evt domain.JobEvent)) error
	Close() error
}
