package driven

import (
	"context"

	"github.com/ericfisherdev/insightpanel/internal/domain/model"
)

// SnapshotStore defines the driven port for persisting the latest insights
// report of each account.
type SnapshotStore interface {
	// Save stores snap, replacing any earlier snapshot of the same account.
	Save(ctx context.Context, snap model.Snapshot) error

	// Latest returns the stored snapshot of an account, or (nil, nil) if none.
	Latest(ctx context.Context, accountID string) (*model.Snapshot, error)

	// ListLatest returns the stored snapshot of every account, newest first.
	ListLatest(ctx context.Context) ([]model.Snapshot, error)

	// DeleteByAccount removes the snapshot of an account. Deleting a missing
	// snapshot is not an error.
	DeleteByAccount(ctx context.Context, accountID string) error
}
