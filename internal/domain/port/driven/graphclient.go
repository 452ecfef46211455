package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/insightpanel/internal/domain/model"
)

// ErrExchangeNotConfigured is returned by ExchangeToken when the Meta app
// id or secret is missing from configuration.
var ErrExchangeNotConfigured = errors.New("token exchange not configured: set INSIGHTPANEL_META_APP_ID and INSIGHTPANEL_META_APP_SECRET")

// GraphClient defines the driven port for the Meta Graph API. Every call is
// independent; there is no retry and no shared deadline.
type GraphClient interface {
	// ResolveIGUserID finds the Instagram business account linked to any page
	// the token can manage. Returns ("", nil) when none is linked.
	ResolveIGUserID(ctx context.Context, token string) (string, error)

	// ListMedia returns up to limit recent posts of the business account.
	ListMedia(ctx context.Context, igUserID, token string, limit int) ([]model.Media, error)

	// MediaInsights returns per-post metrics (impressions, reach, engagement, saved).
	MediaInsights(ctx context.Context, mediaID, token string) ([]model.Metric, error)

	// ProfileInsights returns daily profile metrics for the business account.
	ProfileInsights(ctx context.Context, igUserID, token string) ([]model.Metric, error)

	// ExchangeToken trades a short-lived user token for a long-lived one.
	ExchangeToken(ctx context.Context, shortLivedToken string) (model.LongLivedToken, error)
}
