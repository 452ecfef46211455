package graph_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/insightpanel/internal/adapter/driven/graph"
	"github.com/ericfisherdev/insightpanel/internal/domain/port/driven"
)

const testToken = "EAAB-test-token"

// newTestClient creates a Client backed by the given httptest handler.
func newTestClient(t *testing.T, handler http.Handler, opts graph.Options) *graph.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := graph.NewClientWithHTTPClient(server.Client(), server.URL, opts)
	require.NoError(t, err)

	return client
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func requireToken(t *testing.T, r *http.Request) {
	t.Helper()
	assert.Equal(t, testToken, r.URL.Query().Get("access_token"))
}

func TestResolveIGUserID_FirstLinkedPageWins(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v16.0/me/accounts", func(w http.ResponseWriter, r *http.Request) {
		requireToken(t, r)
		writeJSON(t, w, http.StatusOK, map[string]any{
			"data": []map[string]string{{"id": "p1"}, {"id": "p2"}, {"id": "p3"}, {"id": "p4"}},
		})
	})
	mux.HandleFunc("GET /v16.0/p1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusInternalServerError, map[string]any{"error": map[string]any{"message": "boom"}})
	})
	mux.HandleFunc("GET /v16.0/p2", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"id": "p2"})
	})
	mux.HandleFunc("GET /v16.0/p3", func(w http.ResponseWriter, r *http.Request) {
		requireToken(t, r)
		assert.Equal(t, "instagram_business_account", r.URL.Query().Get("fields"))
		writeJSON(t, w, http.StatusOK, map[string]any{
			"id":                         "p3",
			"instagram_business_account": map[string]string{"id": "ig-3"},
		})
	})
	mux.HandleFunc("GET /v16.0/p4", func(w http.ResponseWriter, r *http.Request) {
		t.Error("lookup must stop at the first linked page")
	})

	client := newTestClient(t, mux, graph.Options{})

	id, err := client.ResolveIGUserID(context.Background(), testToken)
	require.NoError(t, err)
	assert.Equal(t, "ig-3", id)
}

func TestResolveIGUserID_NoLinkedAccount(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v16.0/me/accounts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"data": []map[string]string{{"id": "p1"}}})
	})
	mux.HandleFunc("GET /v16.0/p1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"id": "p1"})
	})

	client := newTestClient(t, mux, graph.Options{})

	id, err := client.ResolveIGUserID(context.Background(), testToken)
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestResolveIGUserID_PageListFailureIsTypedAndRedacted(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusBadRequest, map[string]any{
			"error": map[string]any{"message": "Invalid OAuth access token.", "type": "OAuthException", "code": 190},
		})
	})

	client := newTestClient(t, handler, graph.Options{})

	_, err := client.ResolveIGUserID(context.Background(), testToken)
	require.Error(t, err)

	var apiErr *graph.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "OAuthException", apiErr.Type)
	assert.Equal(t, 190, apiErr.Code)
	assert.NotContains(t, err.Error(), testToken)
}

func TestClient_TransportErrorDoesNotLeakToken(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	client, err := graph.NewClientWithHTTPClient(server.Client(), server.URL, graph.Options{})
	require.NoError(t, err)
	server.Close()

	_, err = client.ListMedia(context.Background(), "ig-1", testToken, 10)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), testToken)
}

func TestListMedia_MapsFields(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v16.0/ig-1/media", func(w http.ResponseWriter, r *http.Request) {
		requireToken(t, r)
		q := r.URL.Query()
		assert.Equal(t, "50", q.Get("limit"))
		assert.Equal(t, "id,caption,media_type,media_url,timestamp,like_count,comments_count", q.Get("fields"))
		writeJSON(t, w, http.StatusOK, map[string]any{
			"data": []map[string]any{
				{
					"id":             "m1",
					"caption":        "New product\nlaunch",
					"media_type":     "IMAGE",
					"media_url":      "https://cdn.example.com/m1.jpg",
					"timestamp":      "2026-03-01T10:00:00+0000",
					"like_count":     820,
					"comments_count": 54,
				},
				{"id": "m2", "media_type": "VIDEO"},
			},
		})
	})

	client := newTestClient(t, mux, graph.Options{})

	media, err := client.ListMedia(context.Background(), "ig-1", testToken, 50)
	require.NoError(t, err)
	require.Len(t, media, 2)

	assert.Equal(t, "m1", media[0].ID)
	assert.Equal(t, "New product\nlaunch", media[0].Caption)
	assert.Equal(t, "IMAGE", media[0].MediaType)
	assert.Equal(t, "https://cdn.example.com/m1.jpg", media[0].MediaURL)
	assert.Equal(t, 820, media[0].LikeCount)
	assert.Equal(t, 54, media[0].CommentsCount)
	assert.NotNil(t, media[0].Insights)

	assert.Equal(t, "m2", media[1].ID)
	assert.Equal(t, 0, media[1].LikeCount)
}

func TestMediaInsights_MapsMetrics(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v16.0/m1/insights", func(w http.ResponseWriter, r *http.Request) {
		requireToken(t, r)
		assert.Equal(t, "impressions,reach,engagement,saved", r.URL.Query().Get("metric"))
		writeJSON(t, w, http.StatusOK, map[string]any{
			"data": []map[string]any{
				{"name": "impressions", "period": "lifetime", "title": "Impressions", "values": []map[string]any{{"value": 12000}}},
				{"name": "reach", "period": "lifetime", "values": []map[string]any{{"value": 9000}}},
			},
		})
	})

	client := newTestClient(t, mux, graph.Options{})

	metrics, err := client.MediaInsights(context.Background(), "m1", testToken)
	require.NoError(t, err)
	require.Len(t, metrics, 2)
	assert.Equal(t, "impressions", metrics[0].Name)
	assert.Equal(t, "Impressions", metrics[0].Title)
	require.Len(t, metrics[0].Values, 1)
	assert.Equal(t, float64(12000), metrics[0].Values[0].Value)
}

func TestProfileInsights_DailyPeriod(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v16.0/ig-1/insights", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "impressions,reach,profile_views,followers_count", q.Get("metric"))
		assert.Equal(t, "day", q.Get("period"))
		writeJSON(t, w, http.StatusOK, map[string]any{
			"data": []map[string]any{
				{"name": "profile_views", "period": "day", "values": []map[string]any{
					{"value": 10, "end_time": "2026-03-01T08:00:00+0000"},
					{"value": 12, "end_time": "2026-03-02T08:00:00+0000"},
				}},
			},
		})
	})

	client := newTestClient(t, mux, graph.Options{})

	metrics, err := client.ProfileInsights(context.Background(), "ig-1", testToken)
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	require.Len(t, metrics[0].Values, 2)
	assert.Equal(t, "2026-03-02T08:00:00+0000", metrics[0].Values[1].EndTime)
}

func TestClient_CustomVersion(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v19.0/m1/insights", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"data": []any{}})
	})

	client := newTestClient(t, mux, graph.Options{Version: "/v19.0/", RequestsPerSecond: 100})

	metrics, err := client.MediaInsights(context.Background(), "m1", testToken)
	require.NoError(t, err)
	assert.Empty(t, metrics)
}

func TestExchangeToken_NotConfigured(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected without app credentials")
	})
	client := newTestClient(t, handler, graph.Options{AppID: "123"})

	_, err := client.ExchangeToken(context.Background(), "short")
	require.ErrorIs(t, err, driven.ErrExchangeNotConfigured)
}

func TestExchangeToken_Success(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v16.0/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "fb_exchange_token", q.Get("grant_type"))
		assert.Equal(t, "123", q.Get("client_id"))
		assert.Equal(t, "app-secret", q.Get("client_secret"))
		assert.Equal(t, "short", q.Get("fb_exchange_token"))
		writeJSON(t, w, http.StatusOK, map[string]any{
			"access_token": "long-lived",
			"token_type":   "bearer",
			"expires_in":   5183944,
		})
	})

	client := newTestClient(t, mux, graph.Options{AppID: "123", AppSecret: "app-secret"})

	tok, err := client.ExchangeToken(context.Background(), "short")
	require.NoError(t, err)
	assert.Equal(t, "long-lived", tok.AccessToken)
	assert.Equal(t, "bearer", tok.TokenType)
	assert.Equal(t, int64(5183944), tok.ExpiresIn)
}

func TestAPIError_Message(t *testing.T) {
	err := &graph.APIError{StatusCode: 400, Message: "bad", Type: "OAuthException", Code: 190}
	assert.True(t, strings.Contains(err.Error(), "bad"))

	bare := &graph.APIError{StatusCode: 502}
	assert.Equal(t, "graph api: status 502", bare.Error())
}
