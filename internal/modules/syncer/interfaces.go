package syncer

import (
	"context"

	"github.com/aristath/hedgebook/internal/domain"
)

// LocalCache is the device's durable copy of the document.
type LocalCache interface {
	// Load returns nil, nil when nothing is cached.
	Load(ctx context.Context) (*domain.Document, error)
	Save(ctx context.Context, doc domain.Document) error
}

// RemoteStore is the shared document every device syncs against.
type RemoteStore interface {
	// Load returns nil, nil when no shared document exists yet.
	Load(ctx context.Context) (*domain.Document, error)
	// Save replaces the shared document.
	Save(ctx context.Context, doc domain.Document) error
	// Subscribe delivers every document written to the store, including this
	// device's own writes, until cancel is called or ctx ends.
	Subscribe(ctx context.Context, fn func(domain.Document)) (cancel func(), err error)
}
