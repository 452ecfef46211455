package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/insightpanel/internal/domain/model"
	"github.com/ericfisherdev/insightpanel/internal/domain/port/driven"
)

var (
	// ErrInvalidInput is returned when a required field is missing or blank.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAccountNotFound is returned when no record has the requested id.
	ErrAccountNotFound = errors.New("account not found")
)

// TokenService manages registered accounts on top of the encrypted
// credential store. All mutations go through CredentialStore.Update so they
// are serialized by the store.
type TokenService struct {
	store     driven.CredentialStore
	snapshots driven.SnapshotStore
	now       func() time.Time
}

// NewTokenService creates a TokenService. snapshots may be nil; when set,
// deleting an account also drops its stored snapshot.
func NewTokenService(store driven.CredentialStore, snapshots driven.SnapshotStore) *TokenService {
	return &TokenService{
		store:     store,
		snapshots: snapshots,
		now:       time.Now,
	}
}

// Register stores a new account. accountName and accessToken must be non-blank.
// igUserID is optional; an empty string leaves it unresolved.
func (s *TokenService) Register(ctx context.Context, accountName, accessToken, igUserID string) (model.CredentialRecord, error) {
	accountName = strings.TrimSpace(accountName)
	accessToken = strings.TrimSpace(accessToken)
	if accountName == "" || accessToken == "" {
		return model.CredentialRecord{}, fmt.Errorf("%w: account_name and access_token are required", ErrInvalidInput)
	}

	rec := model.CredentialRecord{
		ID:          uuid.NewString(),
		AccountName: accountName,
		AccessToken: accessToken,
		CreatedAt:   s.now().UTC(),
	}
	if id := strings.TrimSpace(igUserID); id != "" {
		rec.IGUserID = &id
	}

	err := s.store.Update(ctx, func(records []model.CredentialRecord) ([]model.CredentialRecord, error) {
		return append(records, rec), nil
	})
	if err != nil {
		return model.CredentialRecord{}, fmt.Errorf("registering account: %w", err)
	}

	slog.Info("account registered", "id", rec.ID, "account_name", rec.AccountName)
	return rec, nil
}

// List returns the redacted summaries of every account. When the store fails
// its integrity check the result is empty and the returned error wraps
// driven.ErrIntegrity, so callers can still render an empty list.
func (s *TokenService) List(ctx context.Context) ([]model.AccountSummary, error) {
	records, err := s.store.Load(ctx)
	if errors.Is(err, driven.ErrIntegrity) {
		return []model.AccountSummary{}, err
	}
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}

	out := make([]model.AccountSummary, 0, len(records))
	for _, r := range records {
		out = append(out, r.Summary())
	}
	return out, nil
}

// Get returns the full record, token included, or (nil, nil) if no record
// has id. A store that fails its integrity check reads as empty.
func (s *TokenService) Get(ctx context.Context, id string) (*model.CredentialRecord, error) {
	records, err := s.store.Load(ctx)
	if err != nil && !errors.Is(err, driven.ErrIntegrity) {
		return nil, fmt.Errorf("loading account %s: %w", id, err)
	}

	for _, r := range records {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, nil
}

// Delete removes the record with id and reports how many were removed.
// Deleting an unknown id is not an error.
func (s *TokenService) Delete(ctx context.Context, id string) (int, error) {
	var removed int
	err := s.store.Update(ctx, func(records []model.CredentialRecord) ([]model.CredentialRecord, error) {
		kept := slices.DeleteFunc(records, func(r model.CredentialRecord) bool {
			return r.ID == id
		})
		removed = len(records) - len(kept)
		return kept, nil
	})
	if err != nil {
		return 0, fmt.Errorf("deleting account %s: %w", id, err)
	}

	if removed > 0 {
		slog.Info("account deleted", "id", id)
		if s.snapshots != nil {
			if err := s.snapshots.DeleteByAccount(ctx, id); err != nil {
				slog.Warn("failed to delete snapshot of removed account", "id", id, "error", err)
			}
		}
	}
	return removed, nil
}

// SetIGUserID caches the resolved Instagram business account id on a record.
func (s *TokenService) SetIGUserID(ctx context.Context, id, igUserID string) error {
	err := s.store.Update(ctx, func(records []model.CredentialRecord) ([]model.CredentialRecord, error) {
		for i := range records {
			if records[i].ID == id {
				v := igUserID
				records[i].IGUserID = &v
				return records, nil
			}
		}
		return nil, ErrAccountNotFound
	})
	if err != nil {
		return fmt.Errorf("setting ig user id for %s: %w", id, err)
	}
	return nil
}
