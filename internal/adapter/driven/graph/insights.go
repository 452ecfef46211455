package graph

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/ericfisherdev/insightpanel/internal/domain/model"
	"github.com/ericfisherdev/insightpanel/internal/domain/port/driven"
)

const (
	mediaFields           = "id,caption,media_type,media_url,timestamp,like_count,comments_count"
	mediaInsightMetrics   = "impressions,reach,engagement,saved"
	profileInsightMetrics = "impressions,reach,profile_views,followers_count"
)

type pageList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

type pageInfo struct {
	InstagramBusinessAccount *struct {
		ID string `json:"id"`
	} `json:"instagram_business_account"`
}

type mediaJSON struct {
	ID            string `json:"id"`
	Caption       string `json:"caption"`
	MediaType     string `json:"media_type"`
	MediaURL      string `json:"media_url"`
	Timestamp     string `json:"timestamp"`
	LikeCount     int    `json:"like_count"`
	CommentsCount int    `json:"comments_count"`
}

type mediaList struct {
	Data []mediaJSON `json:"data"`
}

type metricJSON struct {
	Name        string `json:"name"`
	Period      string `json:"period"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Values      []struct {
		Value   any    `json:"value"`
		EndTime string `json:"end_time"`
	} `json:"values"`
}

type metricList struct {
	Data []metricJSON `json:"data"`
}

type exchangeResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// ResolveIGUserID walks the pages the token manages and returns the first
// linked Instagram business account id. A failing page lookup is skipped;
// only a failure to list pages is returned as an error.
func (c *Client) ResolveIGUserID(ctx context.Context, token string) (string, error) {
	var pages pageList
	if err := c.get(ctx, "me/accounts", tokenParams(token), &pages); err != nil {
		return "", fmt.Errorf("listing pages: %w", err)
	}

	for _, p := range pages.Data {
		if p.ID == "" {
			continue
		}

		var info pageInfo
		if err := c.get(ctx, p.ID, tokenParams(token, "fields", "instagram_business_account"), &info); err != nil {
			slog.Debug("page lookup failed, skipping", "page_id", p.ID, "error", err)
			continue
		}

		if info.InstagramBusinessAccount != nil && info.InstagramBusinessAccount.ID != "" {
			return info.InstagramBusinessAccount.ID, nil
		}
	}

	return "", nil
}

// ListMedia returns up to limit recent media objects of the business account.
// Insights are not attached here.
func (c *Client) ListMedia(ctx context.Context, igUserID, token string, limit int) ([]model.Media, error) {
	params := tokenParams(token, "fields", mediaFields, "limit", strconv.Itoa(limit))

	var list mediaList
	if err := c.get(ctx, igUserID+"/media", params, &list); err != nil {
		return nil, fmt.Errorf("listing media for %s: %w", igUserID, err)
	}

	media := make([]model.Media, 0, len(list.Data))
	for _, m := range list.Data {
		media = append(media, mapMedia(m))
	}
	return media, nil
}

// MediaInsights returns the lifetime metrics of a single post.
func (c *Client) MediaInsights(ctx context.Context, mediaID, token string) ([]model.Metric, error) {
	var list metricList
	if err := c.get(ctx, mediaID+"/insights", tokenParams(token, "metric", mediaInsightMetrics), &list); err != nil {
		return nil, fmt.Errorf("fetching insights for media %s: %w", mediaID, err)
	}
	return mapMetrics(list.Data), nil
}

// ProfileInsights returns the daily profile metrics of the business account.
func (c *Client) ProfileInsights(ctx context.Context, igUserID, token string) ([]model.Metric, error) {
	params := tokenParams(token, "metric", profileInsightMetrics, "period", "day")

	var list metricList
	if err := c.get(ctx, igUserID+"/insights", params, &list); err != nil {
		return nil, fmt.Errorf("fetching profile insights for %s: %w", igUserID, err)
	}
	return mapMetrics(list.Data), nil
}

// ExchangeToken trades a short-lived user token for a long-lived one using
// the configured Meta app credentials.
func (c *Client) ExchangeToken(ctx context.Context, shortLivedToken string) (model.LongLivedToken, error) {
	if c.appID == "" || c.appSecret == "" {
		return model.LongLivedToken{}, driven.ErrExchangeNotConfigured
	}

	params := url.Values{}
	params.Set("grant_type", "fb_exchange_token")
	params.Set("client_id", c.appID)
	params.Set("client_secret", c.appSecret)
	params.Set("fb_exchange_token", shortLivedToken)

	var resp exchangeResponse
	if err := c.get(ctx, "oauth/access_token", params, &resp); err != nil {
		return model.LongLivedToken{}, fmt.Errorf("exchanging token: %w", err)
	}

	return model.LongLivedToken{
		AccessToken: resp.AccessToken,
		TokenType:   resp.TokenType,
		ExpiresIn:   resp.ExpiresIn,
	}, nil
}

// mapMedia converts a Graph media object to a domain model Media.
func mapMedia(m mediaJSON) model.Media {
	return model.Media{
		ID:            m.ID,
		Caption:       m.Caption,
		MediaType:     m.MediaType,
		MediaURL:      m.MediaURL,
		Timestamp:     m.Timestamp,
		LikeCount:     m.LikeCount,
		CommentsCount: m.CommentsCount,
		Insights:      []model.Metric{},
	}
}

// mapMetrics converts Graph insight series to domain model Metrics.
func mapMetrics(in []metricJSON) []model.Metric {
	out := make([]model.Metric, 0, len(in))
	for _, m := range in {
		values := make([]model.MetricValue, 0, len(m.Values))
		for _, v := range m.Values {
			values = append(values, model.MetricValue{Value: v.Value, EndTime: v.EndTime})
		}
		out = append(out, model.Metric{
			Name:        m.Name,
			Period:      m.Period,
			Title:       m.Title,
			Description: m.Description,
			Values:      values,
		})
	}
	return out
}
