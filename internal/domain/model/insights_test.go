package model_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/insightpanel/internal/domain/model"
)

func TestMediaRow(t *testing.T) {
	m := model.Media{
		ID:            "m1",
		Caption:       "line one\nline two",
		MediaType:     "CAROUSEL_ALBUM",
		Timestamp:     "2026-03-01T10:00:00+0000",
		LikeCount:     3,
		CommentsCount: 1,
		Insights: []model.Metric{
			{Name: "reach", Values: []model.MetricValue{{Value: float64(7)}}},
			{Name: "impressions", Values: []model.MetricValue{{Value: float64(12000)}, {Value: float64(4)}}},
		},
	}

	row := m.Row()
	assert.Equal(t, "line one line two", row.Caption)
	assert.Equal(t, "12000|4", row.Impressions)
	assert.Equal(t, 3, row.Likes)
	assert.Equal(t, 1, row.Comments)
}

func TestMediaRow_LargeImpressionsKeepPlainDigits(t *testing.T) {
	payload := `{"id":"m3","insights":[{"name":"impressions","values":[{"value":1000000},{"value":2500000},{"value":12.5}]}]}`

	var m model.Media
	require.NoError(t, json.Unmarshal([]byte(payload), &m))

	assert.Equal(t, "1000000|2500000|12.5", m.Row().Impressions)
}

func TestMediaRow_NonNumericImpressions(t *testing.T) {
	m := model.Media{Insights: []model.Metric{
		{Name: "impressions", Values: []model.MetricValue{{Value: "n/a"}, {Value: nil}, {Value: 42}}},
	}}

	assert.Equal(t, "n/a||42", m.Row().Impressions)
}

func TestMediaRow_NoImpressions(t *testing.T) {
	row := model.Media{ID: "m2"}.Row()
	assert.Equal(t, "", row.Impressions)
	assert.Equal(t, "", row.Caption)
}

func TestCredentialRecordSummary(t *testing.T) {
	id := "ig-1"
	rec := model.CredentialRecord{ID: "a", AccountName: "Brand A", AccessToken: "secret", IGUserID: &id}

	sum := rec.Summary()
	assert.Equal(t, "a", sum.ID)
	assert.Equal(t, "Brand A", sum.AccountName)
	assert.Equal(t, "ig-1", *sum.IGUserID)

	*sum.IGUserID = "changed"
	assert.Equal(t, "ig-1", *rec.IGUserID)
	assert.True(t, rec.HasIGUserID())
	assert.False(t, model.CredentialRecord{}.HasIGUserID())
}
