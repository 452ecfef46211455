package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Insight payloads are persisted verbatim as snapshot JSON and served by the
// API, so these types carry their wire names.

// MetricValue is a single data point of a Graph API insight metric.
type MetricValue struct {
	Value   any    `json:"value"`
	EndTime string `json:"end_time,omitempty"`
}

// Metric is one named insight series for a media object or a profile.
type Metric struct {
	Name        string        `json:"name"`
	Period      string        `json:"period,omitempty"`
	Title       string        `json:"title,omitempty"`
	Description string        `json:"description,omitempty"`
	Values      []MetricValue `json:"values"`
}

// Media is an Instagram post with its per-post insights attached.
// InsightsError is set when the per-post insight call failed; the post is
// still reported.
type Media struct {
	ID            string   `json:"id"`
	Caption       string   `json:"caption,omitempty"`
	MediaType     string   `json:"media_type,omitempty"`
	MediaURL      string   `json:"media_url,omitempty"`
	Timestamp     string   `json:"timestamp,omitempty"`
	LikeCount     int      `json:"like_count"`
	CommentsCount int      `json:"comments_count"`
	Insights      []Metric `json:"insights"`
	InsightsError string   `json:"insights_error,omitempty"`
}

// AccountInsights is the full insights report for one registered account.
type AccountInsights struct {
	AccountID            string    `json:"account_id"`
	AccountName          string    `json:"account_name"`
	IGUserID             *string   `json:"ig_user_id"`
	Media                []Media   `json:"media"`
	ProfileInsights      []Metric  `json:"profile_insights"`
	ProfileInsightsError string    `json:"profile_insights_error,omitempty"`
	FetchedAt            time.Time `json:"fetched_at"`
}

// MediaRow is one flattened line of a CSV or PDF export.
type MediaRow struct {
	ID          string
	Caption     string
	MediaType   string
	Timestamp   string
	Likes       int
	Comments    int
	Impressions string
}

// Row flattens m into an export row. Caption newlines become spaces and the
// impressions column joins every impressions value with "|".
func (m Media) Row() MediaRow {
	return MediaRow{
		ID:          m.ID,
		Caption:     strings.ReplaceAll(m.Caption, "\n", " "),
		MediaType:   m.MediaType,
		Timestamp:   m.Timestamp,
		Likes:       m.LikeCount,
		Comments:    m.CommentsCount,
		Impressions: m.impressions(),
	}
}

func (m Media) impressions() string {
	for _, metric := range m.Insights {
		if metric.Name != "impressions" {
			continue
		}
		parts := make([]string, 0, len(metric.Values))
		for _, v := range metric.Values {
			parts = append(parts, formatValue(v.Value))
		}
		return strings.Join(parts, "|")
	}
	return ""
}

// formatValue renders JSON numbers without exponents, so 1000000 stays
// "1000000" rather than "1e+06".
func formatValue(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(n)
	}
}

// Snapshot is the most recent persisted insights report of an account.
type Snapshot struct {
	AccountID string
	FetchedAt time.Time
	Insights  AccountInsights
}
