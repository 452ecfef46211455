package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/insightpanel/internal/domain/model"
	"github.com/ericfisherdev/insightpanel/internal/domain/port/driven"
)

const (
	dashboardMediaLimit = 50
	exportMediaLimit    = 200

	// insightFetchConcurrency bounds in-flight per-post insight calls for one account.
	insightFetchConcurrency = 4

	insightsFetchFailed        = "insights_fetch_failed"
	profileInsightsFetchFailed = "profile_insights_failed"
)

// ErrIGUserUnresolved is returned by ExportRows when no Instagram business
// account could be found for the account's token.
var ErrIGUserUnresolved = errors.New("cannot resolve ig user id")

// InsightService assembles per-account insight reports from the Graph API.
type InsightService struct {
	tokens *TokenService
	graph  driven.GraphClient
	now    func() time.Time
}

// NewInsightService creates an InsightService.
func NewInsightService(tokens *TokenService, graph driven.GraphClient) *InsightService {
	return &InsightService{
		tokens: tokens,
		graph:  graph,
		now:    time.Now,
	}
}

// Fetch builds the full insights report for an account. A missing ig user id
// is resolved and cached first. Failures of single posts or of the profile
// call are recorded in the report instead of failing it. An account without a
// linked business account yields a report with no media.
func (s *InsightService) Fetch(ctx context.Context, accountID string) (*model.AccountInsights, error) {
	rec, err := s.account(ctx, accountID)
	if err != nil {
		return nil, err
	}

	igUserID, err := s.resolve(ctx, rec)
	if err != nil {
		return nil, err
	}

	report := &model.AccountInsights{
		AccountID:   rec.ID,
		AccountName: rec.AccountName,
		Media:       []model.Media{},
		FetchedAt:   s.now().UTC(),
	}
	if igUserID == "" {
		return report, nil
	}
	report.IGUserID = &igUserID

	media, err := s.graph.ListMedia(ctx, igUserID, rec.AccessToken, dashboardMediaLimit)
	if err != nil {
		return nil, err
	}
	report.Media = s.attachInsights(ctx, media, rec.AccessToken)

	profile, err := s.graph.ProfileInsights(ctx, igUserID, rec.AccessToken)
	if err != nil {
		slog.Warn("profile insights fetch failed", "account_id", rec.ID, "error", err)
		report.ProfileInsightsError = profileInsightsFetchFailed
	} else {
		report.ProfileInsights = profile
	}

	slog.Info("insights fetched",
		"account_id", rec.ID,
		"media", len(report.Media),
	)
	return report, nil
}

// ExportRows returns the account name and the flattened rows of up to 200
// recent posts. Resolution failures are treated as unresolved.
func (s *InsightService) ExportRows(ctx context.Context, accountID string) (string, []model.MediaRow, error) {
	rec, err := s.account(ctx, accountID)
	if err != nil {
		return "", nil, err
	}

	igUserID, err := s.resolve(ctx, rec)
	if err != nil {
		slog.Warn("ig user id resolution failed during export", "account_id", rec.ID, "error", err)
		igUserID = ""
	}
	if igUserID == "" {
		return rec.AccountName, nil, ErrIGUserUnresolved
	}

	media, err := s.graph.ListMedia(ctx, igUserID, rec.AccessToken, exportMediaLimit)
	if err != nil {
		return rec.AccountName, nil, err
	}
	media = s.attachInsights(ctx, media, rec.AccessToken)

	rows := make([]model.MediaRow, 0, len(media))
	for _, m := range media {
		rows = append(rows, m.Row())
	}
	return rec.AccountName, rows, nil
}

func (s *InsightService) account(ctx context.Context, accountID string) (*model.CredentialRecord, error) {
	rec, err := s.tokens.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrAccountNotFound
	}
	return rec, nil
}

// resolve returns the cached ig user id or looks it up and caches it. Failing
// to cache is logged; the resolved id is still used.
func (s *InsightService) resolve(ctx context.Context, rec *model.CredentialRecord) (string, error) {
	if rec.HasIGUserID() {
		return *rec.IGUserID, nil
	}

	igUserID, err := s.graph.ResolveIGUserID(ctx, rec.AccessToken)
	if err != nil {
		return "", fmt.Errorf("resolving ig user id: %w", err)
	}
	if igUserID == "" {
		return "", nil
	}

	if err := s.tokens.SetIGUserID(ctx, rec.ID, igUserID); err != nil {
		slog.Warn("failed to cache ig user id", "account_id", rec.ID, "error", err)
	}
	return igUserID, nil
}

// attachInsights fetches per-post insights with bounded concurrency. Order is
// preserved and failures are recorded on the post.
func (s *InsightService) attachInsights(ctx context.Context, media []model.Media, token string) []model.Media {
	var g errgroup.Group
	g.SetLimit(insightFetchConcurrency)

	for i := range media {
		g.Go(func() error {
			metrics, err := s.graph.MediaInsights(ctx, media[i].ID, token)
			if err != nil {
				slog.Debug("media insights fetch failed", "media_id", media[i].ID, "error", err)
				media[i].Insights = []model.Metric{}
				media[i].InsightsError = insightsFetchFailed
				return nil
			}
			media[i].Insights = metrics
			return nil
		})
	}
	_ = g.Wait()

	return media
}
