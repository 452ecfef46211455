package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/insightpanel/internal/domain/model"
)

// ErrIntegrity is returned when the persisted token container cannot be
// authenticated or parsed. Load still returns an empty, usable sequence
// alongside it so read paths keep working.
var ErrIntegrity = errors.New("token store integrity check failed")

// CredentialStore defines the driven port for encrypted credential persistence.
// The adapter owns encryption; this interface exchanges plaintext records.
// The persisted form is always the entire sequence.
type CredentialStore interface {
	// Load returns every stored record in insertion order. A missing store
	// yields an empty sequence and no error. On integrity failure the result
	// is an empty sequence and an error wrapping ErrIntegrity.
	Load(ctx context.Context) ([]model.CredentialRecord, error)

	// Save replaces the persisted sequence with records.
	Save(ctx context.Context, records []model.CredentialRecord) error

	// Update runs load, fn, save as one serialized step. If fn returns an
	// error nothing is written. Update refuses to overwrite a container that
	// failed its integrity check.
	Update(ctx context.Context, fn func([]model.CredentialRecord) ([]model.CredentialRecord, error)) error
}
