package call

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("call not found")
)

// Store is the shared real-time collection holding current calls. The store's
// own consistency guarantees (last-write-wins per record, atomic list reads)
// are relied upon; this app adds no locking of its own.
type Store interface {
	CreateCall(ctx context.Context, c Call) (Call, error)
	// DeleteCall removes a record; ErrNotFound when no such record exists.
	DeleteCall(ctx context.Context, id string) error
	// QueryCalls returns every stored call, most recent first.
	QueryCalls(ctx context.Context) ([]Call, error)
	// Subscribe delivers the full current list immediately and again after
	// every insert or delete, until ctx is done. The channel is closed when
	// the subscription ends.
	Subscribe(ctx context.Context) (<-chan []Call, error)
}
