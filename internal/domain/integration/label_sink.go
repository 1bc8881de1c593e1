package integration

import "context"

// LabelSink is the port to the electronic shelf label cloud.
// Implementations must be safe for concurrent use by multiple requests.
type LabelSink interface {
	// UpsertItems creates or updates items in a store.
	// An empty slice is a successful no-op. Batches are delivered in order and
	// the first batch that cannot be delivered aborts the call with a *DeliveryError;
	// batches already delivered are not rolled back.
	UpsertItems(ctx context.Context, storeID string, items []LabelItem) error

	// DeleteItems removes items from a store by item id, with the same batching
	// and failure semantics as UpsertItems.
	DeleteItems(ctx context.Context, storeID string, itemIDs []string) error
}
