// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/insightpanel/internal/domain/model"
	"github.com/ericfisherdev/insightpanel/internal/domain/port/driven"
)

// refreshRequest represents a manual refresh trigger.
type refreshRequest struct {
	accountID string
	done      chan refreshResult
}

type refreshResult struct {
	snapshot *model.Snapshot
	err      error
}

// PollService periodically refreshes the insights of every registered
// account and persists each report as the account's latest snapshot.
type PollService struct {
	tokens    *TokenService
	insights  *InsightService
	snapshots driven.SnapshotStore
	interval  time.Duration
	refreshCh chan refreshRequest
}

// NewPollService creates a new PollService. An interval of zero disables
// automatic polling; manual refreshes are still served.
func NewPollService(
	tokens *TokenService,
	insights *InsightService,
	snapshots driven.SnapshotStore,
	interval time.Duration,
) *PollService {
	return &PollService{
		tokens:    tokens,
		insights:  insights,
		snapshots: snapshots,
		interval:  interval,
		refreshCh: make(chan refreshRequest),
	}
}

// Start runs the polling loop. With a positive interval it polls immediately
// and then on every tick. It also serves manual refresh requests. Start blocks
// until the context is canceled.
func (s *PollService) Start(ctx context.Context) {
	var tick <-chan time.Time
	if s.interval > 0 {
		if err := s.pollAll(ctx); err != nil {
			slog.Error("initial poll failed", "error", err)
		}

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	} else {
		slog.Info("periodic polling disabled")
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("poll service stopped")
			return
		case <-tick:
			if err := s.pollAll(ctx); err != nil {
				slog.Error("poll cycle failed", "error", err)
			}
		case req := <-s.refreshCh:
			snap, err := s.refreshAccount(ctx, req.accountID)
			req.done <- refreshResult{snapshot: snap, err: err}
		}
	}
}

// Refresh fetches and persists a fresh snapshot for one account, bypassing
// the polling interval. It blocks until the refresh completes or the context
// is canceled.
func (s *PollService) Refresh(ctx context.Context, accountID string) (*model.Snapshot, error) {
	done := make(chan refreshResult, 1)
	req := refreshRequest{
		accountID: accountID,
		done:      done,
	}

	select {
	case s.refreshCh <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-done:
		return res.snapshot, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// pollAll refreshes every registered account.
func (s *PollService) pollAll(ctx context.Context) error {
	start := time.Now()

	accounts, err := s.tokens.List(ctx)
	if err != nil && !errors.Is(err, driven.ErrIntegrity) {
		return err
	}

	var pollErrors int
	for _, acct := range accounts {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if _, err := s.refreshAccount(ctx, acct.ID); err != nil {
			slog.Error("account poll failed", "account_id", acct.ID, "error", err)
			pollErrors++
		}
	}

	slog.Info("poll cycle complete",
		"accounts", len(accounts),
		"errors", pollErrors,
		"duration", time.Since(start).Round(time.Millisecond),
	)

	return nil
}

// refreshAccount fetches the insights of one account and stores them.
func (s *PollService) refreshAccount(ctx context.Context, accountID string) (*model.Snapshot, error) {
	report, err := s.insights.Fetch(ctx, accountID)
	if err != nil {
		return nil, err
	}

	snap := model.Snapshot{
		AccountID: accountID,
		FetchedAt: report.FetchedAt,
		Insights:  *report,
	}
	if err := s.snapshots.Save(ctx, snap); err != nil {
		return nil, fmt.Errorf("saving snapshot for %s: %w", accountID, err)
	}

	// A delete that ran while the fetch was in flight has already cleared
	// snapshots, so the one just saved must go too.
	rec, err := s.tokens.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		if err := s.snapshots.DeleteByAccount(ctx, accountID); err != nil {
			return nil, fmt.Errorf("dropping snapshot of deleted account %s: %w", accountID, err)
		}
		slog.Info("account deleted during refresh, snapshot dropped", "account_id", accountID)
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}

	slog.Debug("snapshot saved", "account_id", accountID, "media", len(report.Media))
	return &snap, nil
}
