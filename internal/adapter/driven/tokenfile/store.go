// Package tokenfile implements the CredentialStore port as a single
// AES-256-GCM encrypted JSON file.
package tokenfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/natefinch/atomic"

	"github.com/ericfisherdev/insightpanel/internal/domain/model"
	"github.com/ericfisherdev/insightpanel/internal/domain/port/driven"
)

const (
	fileMode os.FileMode = 0o600
	dirMode  os.FileMode = 0o700
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*Store)(nil)

// Store persists the whole CredentialRecord sequence as one encrypted
// container. Every write is a full rewrite through a temp file and rename, so
// readers never observe a partial file. Writers are serialized by mu.
type Store struct {
	mu     sync.Mutex
	path   string
	key    []byte
	logger *slog.Logger
}

// recordJSON is the plaintext shape of a record inside the container.
type recordJSON struct {
	ID          string    `json:"id"`
	AccountName string    `json:"account_name"`
	AccessToken string    `json:"access_token"`
	IGUserID    *string   `json:"ig_user_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// New creates a Store for the container at path. key must be KeySize bytes,
// normally obtained from DeriveKey.
func New(path string, key []byte, logger *slog.Logger) (*Store, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("token store key must be %d bytes, got %d", KeySize, len(key))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, key: key, logger: logger}, nil
}

// Path returns the location of the encrypted container.
func (s *Store) Path() string {
	return s.path
}

// EnsureExists creates the data directory and an empty container if the
// container is absent. An existing container is left untouched.
func (s *Store) EnsureExists(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), dirMode); err != nil {
		return fmt.Errorf("create token store directory: %w", err)
	}

	_, err := os.Stat(s.path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat token store: %w", err)
	}

	s.logger.Info("creating empty token store", "path", s.path)
	return s.save(ctx, []model.CredentialRecord{})
}

// Load reads and decrypts the container. A missing file is an empty store.
// Integrity failures are logged and reported as an empty sequence plus an
// error wrapping driven.ErrIntegrity.
func (s *Store) Load(ctx context.Context) ([]model.CredentialRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records, err := s.load()
	if errors.Is(err, driven.ErrIntegrity) {
		s.logger.Warn("token store failed integrity check, treating as empty",
			"path", s.path,
			"error", err,
		)
		return []model.CredentialRecord{}, err
	}
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Save encrypts records and atomically replaces the container.
func (s *Store) Save(ctx context.Context, records []model.CredentialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, records)
}

// Update loads the current records, applies fn and saves the result while
// holding the writer lock, so concurrent mutations cannot lose each other.
func (s *Store) Update(ctx context.Context, fn func([]model.CredentialRecord) ([]model.CredentialRecord, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	records, err := s.load()
	if errors.Is(err, driven.ErrIntegrity) {
		s.logger.Warn("refusing to overwrite token store that failed integrity check",
			"path", s.path,
			"error", err,
		)
		return err
	}
	if err != nil {
		return err
	}

	updated, err := fn(records)
	if err != nil {
		return err
	}

	return s.save(ctx, updated)
}

// load is Load without logging. Callers decide how to report integrity errors.
func (s *Store) load() ([]model.CredentialRecord, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []model.CredentialRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read token store: %w", err)
	}

	var c container
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: malformed container: %v", driven.ErrIntegrity, err)
	}

	plaintext, err := open(s.key, c)
	if err != nil {
		return nil, err
	}

	var rows []recordJSON
	if err := json.Unmarshal(plaintext, &rows); err != nil {
		return nil, fmt.Errorf("%w: malformed payload: %v", driven.ErrIntegrity, err)
	}

	records := make([]model.CredentialRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, model.CredentialRecord{
			ID:          row.ID,
			AccountName: row.AccountName,
			AccessToken: row.AccessToken,
			IGUserID:    row.IGUserID,
			CreatedAt:   row.CreatedAt,
		})
	}
	return records, nil
}

// save must be called with mu held.
func (s *Store) save(ctx context.Context, records []model.CredentialRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(records))
	rows := make([]recordJSON, 0, len(records))
	for _, r := range records {
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("save token store: duplicate record id %q", r.ID)
		}
		seen[r.ID] = struct{}{}
		rows = append(rows, recordJSON{
			ID:          r.ID,
			AccountName: r.AccountName,
			AccessToken: r.AccessToken,
			IGUserID:    r.IGUserID,
			CreatedAt:   r.CreatedAt.UTC(),
		})
	}

	plaintext, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode token records: %w", err)
	}

	c, err := seal(s.key, plaintext)
	if err != nil {
		return fmt.Errorf("encrypt token store: %w", err)
	}

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode token container: %w", err)
	}

	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write token store: %w", err)
	}
	// atomic.WriteFile keeps the mode of a pre-existing file; force owner-only.
	if err := os.Chmod(s.path, fileMode); err != nil {
		return fmt.Errorf("chmod token store: %w", err)
	}

	s.logger.Debug("token store saved", "path", s.path, "records", len(rows))
	return nil
}
