package httphandler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/insightpanel/internal/adapter/driven/tokenfile"
	httphandler "github.com/ericfisherdev/insightpanel/internal/adapter/driving/http"
	"github.com/ericfisherdev/insightpanel/internal/application"
	"github.com/ericfisherdev/insightpanel/internal/domain/model"
	"github.com/ericfisherdev/insightpanel/internal/domain/port/driven"
)

const brandToken = "EAAB-brand-a-secret-token"

// --- Mock implementations ---

type fakeGraph struct {
	igUserID    string
	exchangeErr error
}

func (f *fakeGraph) ResolveIGUserID(_ context.Context, _ string) (string, error) {
	return f.igUserID, nil
}

func (f *fakeGraph) ListMedia(_ context.Context, _, _ string, _ int) ([]model.Media, error) {
	return []model.Media{{
		ID:            "m1",
		Caption:       "New product\nlaunch",
		MediaType:     "IMAGE",
		Timestamp:     "2026-03-01T10:00:00+0000",
		LikeCount:     820,
		CommentsCount: 54,
	}}, nil
}

func (f *fakeGraph) MediaInsights(_ context.Context, _, _ string) ([]model.Metric, error) {
	return []model.Metric{{Name: "impressions", Values: []model.MetricValue{{Value: float64(12000)}}}}, nil
}

func (f *fakeGraph) ProfileInsights(_ context.Context, _, _ string) ([]model.Metric, error) {
	return []model.Metric{}, nil
}

func (f *fakeGraph) ExchangeToken(_ context.Context, short string) (model.LongLivedToken, error) {
	if f.exchangeErr != nil {
		return model.LongLivedToken{}, f.exchangeErr
	}
	return model.LongLivedToken{AccessToken: "long-" + short, TokenType: "bearer", ExpiresIn: 5183944}, nil
}

type memSnapshots struct {
	mu   sync.Mutex
	byID map[string]model.Snapshot
}

func (m *memSnapshots) Save(_ context.Context, s model.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[s.AccountID] = s
	return nil
}

func (m *memSnapshots) Latest(_ context.Context, id string) (*model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memSnapshots) ListLatest(_ context.Context) ([]model.Snapshot, error) {
	return nil, nil
}

func (m *memSnapshots) DeleteByAccount(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
	return nil
}

// --- Test environment ---

type testEnv struct {
	handler   http.Handler
	storePath string
	graph     *fakeGraph
}

func newTestEnv(t *testing.T, opts httphandler.MiddlewareOptions) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	key, err := tokenfile.DeriveKey("handler-test-secret-0123456789")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "data", "tokens.enc")
	store, err := tokenfile.New(path, key, logger)
	require.NoError(t, err)
	require.NoError(t, store.EnsureExists(context.Background()))

	graph := &fakeGraph{igUserID: "17841400000000000"}
	snaps := &memSnapshots{byID: make(map[string]model.Snapshot)}

	tokens := application.NewTokenService(store, snaps)
	insights := application.NewInsightService(tokens, graph)
	pollSvc := application.NewPollService(tokens, insights, snaps, 0)

	ctx, cancel := context.WithCancel(context.Background())
	go pollSvc.Start(ctx)
	t.Cleanup(cancel)

	h := httphandler.NewHandler(tokens, insights, pollSvc, snaps, graph, logger)
	mux := http.NewServeMux()
	httphandler.RegisterAPIRoutes(mux, h)

	if opts.Metrics == nil {
		opts.Metrics = httphandler.NewMetrics()
	}
	httphandler.RegisterMetricsRoute(mux, opts.Metrics)

	return &testEnv{
		handler:   httphandler.ApplyMiddleware(mux, logger, opts),
		storePath: path,
		graph:     graph,
	}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) register(t *testing.T, name string) string {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/api/tokens", map[string]string{
		"account_name": name,
		"access_token": brandToken,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp httphandler.RegisterTokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.OK)
	require.NotEmpty(t, resp.ID)
	return resp.ID
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

// --- Tests ---

func TestHealth(t *testing.T) {
	env := newTestEnv(t, httphandler.MiddlewareOptions{})

	before := time.Now().UnixMilli()
	rec := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp httphandler.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.GreaterOrEqual(t, resp.TS, before)
}

func TestTokenLifecycle(t *testing.T) {
	env := newTestEnv(t, httphandler.MiddlewareOptions{})

	id := env.register(t, "Brand A")

	rec := env.do(t, http.MethodGet, "/api/tokens", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), brandToken)
	assert.NotContains(t, rec.Body.String(), "access_token")

	var list []httphandler.AccountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
	assert.Equal(t, "Brand A", list[0].AccountName)
	assert.Nil(t, list[0].IGUserID)
	assert.NotEmpty(t, list[0].CreatedAt)

	raw, err := os.ReadFile(env.storePath)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), brandToken)
	assert.NotContains(t, string(raw), "Brand A")

	rec = env.do(t, http.MethodDelete, "/api/tokens/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"removed":1}`, rec.Body.String())

	rec = env.do(t, http.MethodDelete, "/api/tokens/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"removed":0}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/tokens", nil)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestRegisterToken_Validation(t *testing.T) {
	env := newTestEnv(t, httphandler.MiddlewareOptions{})

	rec := env.do(t, http.MethodPost, "/api/tokens", map[string]string{"account_name": "Brand A"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "account_name and access_token are required", decodeError(t, rec))

	req := httptest.NewRequest(http.MethodPost, "/api/tokens", strings.NewReader("{not json"))
	raw := httptest.NewRecorder()
	env.handler.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestGetInsights(t *testing.T) {
	env := newTestEnv(t, httphandler.MiddlewareOptions{})
	id := env.register(t, "Brand A")

	rec := env.do(t, http.MethodGet, "/api/insights/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), brandToken)

	var resp struct {
		OK          bool          `json:"ok"`
		AccountName string        `json:"account_name"`
		IGUserID    *string       `json:"ig_user_id"`
		Media       []model.Media `json:"media"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, "Brand A", resp.AccountName)
	require.NotNil(t, resp.IGUserID)
	assert.Equal(t, "17841400000000000", *resp.IGUserID)
	require.Len(t, resp.Media, 1)
	assert.Len(t, resp.Media[0].Insights, 1)

	// The resolved id is cached on the record.
	rec = env.do(t, http.MethodGet, "/api/tokens", nil)
	var list []httphandler.AccountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.NotNil(t, list[0].IGUserID)
	assert.Equal(t, "17841400000000000", *list[0].IGUserID)
}

func TestGetInsights_NotFound(t *testing.T) {
	env := newTestEnv(t, httphandler.MiddlewareOptions{})

	rec := env.do(t, http.MethodGet, "/api/insights/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec))
}

func TestExport(t *testing.T) {
	env := newTestEnv(t, httphandler.MiddlewareOptions{})
	id := env.register(t, "Brand A")

	t.Run("csv by default", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/export/"+id, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "Brand_A_media.csv")

		want := "id,caption,media_type,timestamp,likes,comments,impressions\n" +
			`"m1","New product launch","IMAGE","2026-03-01T10:00:00+0000","820","54","12000"`
		assert.Equal(t, want, rec.Body.String())
	})

	t.Run("pdf", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/export/"+id+"?format=PDF", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "Brand_A_media.pdf")
		assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
	})

	t.Run("unsupported format", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/export/"+id+"?format=xlsx", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown account", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/export/unknown", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestExport_Unresolved(t *testing.T) {
	env := newTestEnv(t, httphandler.MiddlewareOptions{})
	env.graph.igUserID = ""
	id := env.register(t, "Brand A")

	rec := env.do(t, http.MethodGet, "/export/"+id, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "cannot_resolve_ig_user_id", decodeError(t, rec))
}

func TestRefreshAndSnapshot(t *testing.T) {
	env := newTestEnv(t, httphandler.MiddlewareOptions{})
	id := env.register(t, "Brand A")

	rec := env.do(t, http.MethodGet, "/api/snapshots/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/refresh/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var refresh httphandler.RefreshResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &refresh))
	assert.True(t, refresh.OK)
	assert.Equal(t, "refreshed", refresh.Message)

	rec = env.do(t, http.MethodGet, "/api/snapshots/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap httphandler.SnapshotResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, id, snap.AccountID)
	assert.Equal(t, "Brand A", snap.Insights.AccountName)
	assert.Len(t, snap.Insights.Media, 1)

	rec = env.do(t, http.MethodGet, "/api/refresh/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIntegrityFailure(t *testing.T) {
	env := newTestEnv(t, httphandler.MiddlewareOptions{})
	env.register(t, "Brand A")

	require.NoError(t, os.WriteFile(env.storePath, []byte(`{"nonce":"00","tag":"00","ciphertext":"00"}`), 0o600))

	rec := env.do(t, http.MethodGet, "/api/tokens", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
	assert.Equal(t, "failed", rec.Header().Get("X-Token-Store-Integrity"))

	rec = env.do(t, http.MethodPost, "/api/tokens", map[string]string{
		"account_name": "Brand B",
		"access_token": "tok",
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, driven.ErrIntegrity.Error(), decodeError(t, rec))

	rec = env.do(t, http.MethodDelete, "/api/tokens/any", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// The corrupt container is left in place for the operator.
	raw, err := os.ReadFile(env.storePath)
	require.NoError(t, err)
	assert.Equal(t, `{"nonce":"00","tag":"00","ciphertext":"00"}`, string(raw))
}

func TestExchangeToken(t *testing.T) {
	env := newTestEnv(t, httphandler.MiddlewareOptions{})

	rec := env.do(t, http.MethodPost, "/auth/exchange_token", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "access_token required", decodeError(t, rec))

	rec = env.do(t, http.MethodPost, "/auth/exchange_token", map[string]string{"access_token": "short"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"access_token":"long-short","token_type":"bearer","expires_in":5183944}`, rec.Body.String())

	env.graph.exchangeErr = driven.ErrExchangeNotConfigured
	rec = env.do(t, http.MethodPost, "/auth/exchange_token", map[string]string{"access_token": "short"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, driven.ErrExchangeNotConfigured.Error(), decodeError(t, rec))

	env.graph.exchangeErr = errors.New("graph api: status 400")
	rec = env.do(t, http.MethodPost, "/auth/exchange_token", map[string]string{"access_token": "short"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "exchange_failed", decodeError(t, rec))
}

func TestBasicAuth(t *testing.T) {
	env := newTestEnv(t, httphandler.MiddlewareOptions{AdminUser: "admin", AdminPass: "s3cret"})

	rec := env.do(t, http.MethodGet, "/api/tokens", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `Basic realm="Restricted"`, rec.Header().Get("WWW-Authenticate"))

	for _, path := range []string{"/health", "/metrics"} {
		rec = env.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	tests := []struct {
		name       string
		user, pass string
		want       int
	}{
		{"valid", "admin", "s3cret", http.StatusOK},
		{"wrong password", "admin", "nope", http.StatusUnauthorized},
		{"wrong user", "root", "s3cret", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/tokens", nil)
			req.SetBasicAuth(tt.user, tt.pass)
			rec := httptest.NewRecorder()
			env.handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t, httphandler.MiddlewareOptions{})

	env.do(t, http.MethodGet, "/health", nil)
	env.do(t, http.MethodGet, "/no/such/route", nil)

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `insightpanel_http_requests_total{method="GET",route="GET /health",status="200"} 1`)
	assert.Contains(t, body, `route="unmatched"`)
	assert.Contains(t, body, "insightpanel_http_request_duration_seconds")
}

func TestRecoveryMiddleware(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /boom", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	h := httphandler.ApplyMiddleware(mux, slog.New(slog.NewTextHandler(io.Discard, nil)), httphandler.MiddlewareOptions{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
