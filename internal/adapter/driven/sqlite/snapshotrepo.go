package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/insightpanel/internal/domain/model"
	"github.com/ericfisherdev/insightpanel/internal/domain/port/driven"
)

// storedTimeLayout is fixed-width so fetched_at sorts lexically.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z"

// Compile-time interface satisfaction check.
var _ driven.SnapshotStore = (*SnapshotRepo)(nil)

// SnapshotRepo is the SQLite implementation of the SnapshotStore port interface.
// One row per account holds the latest insights report as JSON.
type SnapshotRepo struct {
	db *DB
}

// NewSnapshotRepo creates a new SnapshotRepo backed by the given DB.
func NewSnapshotRepo(db *DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

// Save inserts or replaces the snapshot for snap.AccountID.
func (r *SnapshotRepo) Save(ctx context.Context, snap model.Snapshot) error {
	if snap.AccountID == "" {
		return errors.New("save snapshot: empty account id")
	}

	payload, err := json.Marshal(snap.Insights)
	if err != nil {
		return fmt.Errorf("encode snapshot for %s: %w", snap.AccountID, err)
	}

	const query = `
		INSERT INTO snapshots (account_id, fetched_at, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			fetched_at = excluded.fetched_at,
			payload = excluded.payload
	`

	_, err = r.db.Writer.ExecContext(ctx, query,
		snap.AccountID,
		snap.FetchedAt.UTC().Format(storedTimeLayout),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("save snapshot for %s: %w", snap.AccountID, err)
	}

	return nil
}

// Latest retrieves the stored snapshot of an account. Returns (nil, nil) if
// the account has never been refreshed.
func (r *SnapshotRepo) Latest(ctx context.Context, accountID string) (*model.Snapshot, error) {
	const query = `SELECT account_id, fetched_at, payload FROM snapshots WHERE account_id = ?`

	snap, err := scanSnapshot(r.db.Reader.QueryRowContext(ctx, query, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot for %s: %w", accountID, err)
	}

	return &snap, nil
}

// ListLatest returns every stored snapshot, most recently fetched first.
func (r *SnapshotRepo) ListLatest(ctx context.Context) ([]model.Snapshot, error) {
	const query = `SELECT account_id, fetched_at, payload FROM snapshots ORDER BY fetched_at DESC`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	snaps := []model.Snapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}

	return snaps, nil
}

// DeleteByAccount removes the snapshot of an account, if any.
func (r *SnapshotRepo) DeleteByAccount(ctx context.Context, accountID string) error {
	const query = `DELETE FROM snapshots WHERE account_id = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, accountID); err != nil {
		return fmt.Errorf("delete snapshot for %s: %w", accountID, err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (model.Snapshot, error) {
	var (
		snap      model.Snapshot
		fetchedAt string
		payload   string
	)
	if err := row.Scan(&snap.AccountID, &fetchedAt, &payload); err != nil {
		return model.Snapshot{}, err
	}

	t, err := parseTime(fetchedAt)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("parse fetched_at for %s: %w", snap.AccountID, err)
	}
	snap.FetchedAt = t

	if err := json.Unmarshal([]byte(payload), &snap.Insights); err != nil {
		return model.Snapshot{}, fmt.Errorf("decode snapshot for %s: %w", snap.AccountID, err)
	}

	return snap, nil
}

// parseTime accepts the timestamp layouts SQLite and this package write.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}
