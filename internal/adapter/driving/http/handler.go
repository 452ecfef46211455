package httphandler

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/ericfisherdev/insightpanel/internal/adapter/driven/report"
	"github.com/ericfisherdev/insightpanel/internal/application"
	"github.com/ericfisherdev/insightpanel/internal/domain/port/driven"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// integrityHeader is set on list responses served from a store that failed
// its integrity check.
const integrityHeader = "X-Token-Store-Integrity"

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	tokens    *application.TokenService
	insights  *application.InsightService
	pollSvc   *application.PollService
	snapshots driven.SnapshotStore
	graph     driven.GraphClient
	logger    *slog.Logger
	now       func() time.Time
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	tokens *application.TokenService,
	insights *application.InsightService,
	pollSvc *application.PollService,
	snapshots driven.SnapshotStore,
	graph driven.GraphClient,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		tokens:    tokens,
		insights:  insights,
		pollSvc:   pollSvc,
		snapshots: snapshots,
		graph:     graph,
		logger:    logger,
		now:       time.Now,
	}
}

// RegisterAPIRoutes registers all JSON API and export routes on mux.
func RegisterAPIRoutes(mux *http.ServeMux, h *Handler) {
	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("GET /api/tokens", h.ListTokens)
	mux.HandleFunc("POST /api/tokens", h.RegisterToken)
	mux.HandleFunc("DELETE /api/tokens/{id}", h.DeleteToken)

	mux.HandleFunc("POST /auth/exchange_token", h.ExchangeToken)

	mux.HandleFunc("GET /api/insights/{id}", h.GetInsights)
	mux.HandleFunc("POST /api/refresh/{id}", h.Refresh)
	mux.HandleFunc("GET /api/refresh/{id}", h.Refresh)
	mux.HandleFunc("GET /api/snapshots/{id}", h.GetSnapshot)

	mux.HandleFunc("GET /export/{id}", h.Export)
}

// Health returns a liveness response. It never touches the token store.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{OK: true, TS: h.now().UnixMilli()})
}

// ListTokens returns the redacted list of registered accounts.
func (h *Handler) ListTokens(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.tokens.List(r.Context())
	if errors.Is(err, driven.ErrIntegrity) {
		w.Header().Set(integrityHeader, "failed")
		err = nil
	}
	if err != nil {
		h.logger.Error("failed to list accounts", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		resp = append(resp, toAccountResponse(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

// RegisterToken stores a new account and its access token.
func (h *Handler) RegisterToken(w http.ResponseWriter, r *http.Request) {
	var req RegisterTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := h.tokens.Register(r.Context(), req.AccountName, req.AccessToken, req.IGUserID)
	if err != nil {
		if errors.Is(err, application.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "account_name and access_token are required")
			return
		}
		h.writeServiceError(w, "failed to register account", "register_failed", err)
		return
	}

	writeJSON(w, http.StatusOK, RegisterTokenResponse{OK: true, ID: rec.ID})
}

// DeleteToken removes an account. Unknown ids report removed=0.
func (h *Handler) DeleteToken(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	removed, err := h.tokens.Delete(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "failed to delete account", "delete_failed", err)
		return
	}

	writeJSON(w, http.StatusOK, DeleteTokenResponse{OK: true, Removed: removed})
}

// ExchangeToken trades a short-lived user token for a long-lived one.
func (h *Handler) ExchangeToken(w http.ResponseWriter, r *http.Request) {
	var req ExchangeTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.AccessToken) == "" {
		writeError(w, http.StatusBadRequest, "access_token required")
		return
	}

	tok, err := h.graph.ExchangeToken(r.Context(), req.AccessToken)
	if errors.Is(err, driven.ErrExchangeNotConfigured) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("token exchange failed", "error", err)
		writeErrorDetails(w, http.StatusInternalServerError, "exchange_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ExchangeTokenResponse{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		ExpiresIn:   tok.ExpiresIn,
	})
}

// GetInsights fetches a live insights report for an account.
func (h *Handler) GetInsights(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	ins, err := h.insights.Fetch(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "insights fetch failed", "insights_failed", err)
		return
	}

	writeJSON(w, http.StatusOK, InsightsResponse{OK: true, AccountInsights: *ins})
}

// Refresh fetches a fresh report through the poll loop and persists it.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	snap, err := h.pollSvc.Refresh(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "refresh failed", "refresh_failed", err)
		return
	}

	writeJSON(w, http.StatusOK, RefreshResponse{
		OK:        true,
		Message:   "refreshed",
		FetchedAt: snap.FetchedAt.UTC().Format(time.RFC3339),
	})
}

// GetSnapshot returns the latest persisted report of an account.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	snap, err := h.snapshots.Latest(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to load snapshot", "account_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}

	writeJSON(w, http.StatusOK, SnapshotResponse{
		AccountID: snap.AccountID,
		FetchedAt: snap.FetchedAt.UTC().Format(time.RFC3339),
		Insights:  snap.Insights,
	})
}

// Export renders the recent media of an account as a CSV or PDF attachment.
// The format query parameter defaults to csv.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "pdf" {
		writeError(w, http.StatusBadRequest, "unsupported format: use csv or pdf")
		return
	}

	name, rows, err := h.insights.ExportRows(r.Context(), id)
	if errors.Is(err, application.ErrIGUserUnresolved) {
		writeError(w, http.StatusBadRequest, "cannot_resolve_ig_user_id")
		return
	}
	if err != nil {
		h.writeServiceError(w, "export failed", "export_failed", err)
		return
	}

	// Render fully before writing headers so a failure can still be reported.
	var buf bytes.Buffer
	contentType := "text/csv; charset=utf-8"
	if format == "pdf" {
		contentType = "application/pdf"
		err = report.WritePDF(&buf, name, rows)
	} else {
		err = report.WriteCSV(&buf, rows)
	}
	if err != nil {
		h.logger.Error("export render failed", "account_id", id, "format", format, "error", err)
		writeErrorDetails(w, http.StatusInternalServerError, "export_failed", err.Error())
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": report.Filename(name, format),
	}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// writeServiceError maps application and store errors to responses.
func (h *Handler) writeServiceError(w http.ResponseWriter, logMsg, code string, err error) {
	switch {
	case errors.Is(err, application.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, driven.ErrIntegrity):
		h.logger.Warn(logMsg, "error", err)
		writeError(w, http.StatusServiceUnavailable, driven.ErrIntegrity.Error())
	default:
		h.logger.Error(logMsg, "error", err)
		writeErrorDetails(w, http.StatusInternalServerError, code, err.Error())
	}
}

// decodeJSON decodes a bounded JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}
