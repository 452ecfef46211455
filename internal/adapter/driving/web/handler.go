// Package web implements the HTML dashboard driving adapter. Pages are templ
// components generated from templates/.
package web

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/a-h/templ"

	"github.com/ericfisherdev/insightpanel/internal/adapter/driving/web/templates"
	"github.com/ericfisherdev/insightpanel/internal/adapter/driving/web/templates/pages"
	vm "github.com/ericfisherdev/insightpanel/internal/adapter/driving/web/viewmodel"
	"github.com/ericfisherdev/insightpanel/internal/application"
	"github.com/ericfisherdev/insightpanel/internal/domain/port/driven"
)

// Handler is the web dashboard driving adapter.
type Handler struct {
	tokens    *application.TokenService
	pollSvc   *application.PollService
	snapshots driven.SnapshotStore
	logger    *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	tokens *application.TokenService,
	pollSvc *application.PollService,
	snapshots driven.SnapshotStore,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		tokens:    tokens,
		pollSvc:   pollSvc,
		snapshots: snapshots,
		logger:    logger,
	}
}

// Dashboard renders the account list and register form.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	h.renderDashboard(w, r, http.StatusOK, vm.DashboardViewModel{})
}

// AccountDetail renders the latest snapshot of one account.
func (h *Handler) AccountDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	rec, err := h.tokens.Get(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to load account", "account_id", id, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if rec == nil {
		http.NotFound(w, r)
		return
	}

	snap, err := h.snapshots.Latest(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to load snapshot", "account_id", id, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	detail := toAccountDetail(*rec, snap)
	detail.CSRFToken = csrfToken(w, r)
	h.render(w, r, http.StatusOK, templates.Layout(rec.AccountName+" - InsightPanel", pages.Account(detail)))
}

// RegisterAccount handles the register form.
func (h *Handler) RegisterAccount(w http.ResponseWriter, r *http.Request) {
	if !validateCSRF(r) {
		http.Error(w, "invalid CSRF token", http.StatusForbidden)
		return
	}

	name := r.FormValue("account_name")
	_, err := h.tokens.Register(r.Context(), name, r.FormValue("access_token"), r.FormValue("ig_user_id"))
	switch {
	case err == nil:
		http.Redirect(w, r, "/", http.StatusSeeOther)
	case errors.Is(err, application.ErrInvalidInput):
		h.renderDashboard(w, r, http.StatusBadRequest, vm.DashboardViewModel{
			FormError:       "Account name and access token are required.",
			FormAccountName: name,
		})
	case errors.Is(err, driven.ErrIntegrity):
		h.renderDashboard(w, r, http.StatusServiceUnavailable, vm.DashboardViewModel{
			FormError:       "The token store failed its integrity check.",
			FormAccountName: name,
		})
	default:
		h.logger.Error("failed to register account", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// DeleteAccount handles the per-row delete button.
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if !validateCSRF(r) {
		http.Error(w, "invalid CSRF token", http.StatusForbidden)
		return
	}

	id := r.PathValue("id")
	if _, err := h.tokens.Delete(r.Context(), id); err != nil {
		if errors.Is(err, driven.ErrIntegrity) {
			http.Error(w, driven.ErrIntegrity.Error(), http.StatusServiceUnavailable)
			return
		}
		h.logger.Error("failed to delete account", "account_id", id, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// RefreshAccount fetches a fresh snapshot and shows it.
func (h *Handler) RefreshAccount(w http.ResponseWriter, r *http.Request) {
	if !validateCSRF(r) {
		http.Error(w, "invalid CSRF token", http.StatusForbidden)
		return
	}

	id := r.PathValue("id")
	if _, err := h.pollSvc.Refresh(r.Context(), id); err != nil {
		if errors.Is(err, application.ErrAccountNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("manual refresh failed", "account_id", id, "error", err)
		http.Error(w, "refresh failed", http.StatusBadGateway)
		return
	}

	http.Redirect(w, r, accountPath(id), http.StatusSeeOther)
}

func (h *Handler) renderDashboard(w http.ResponseWriter, r *http.Request, status int, d vm.DashboardViewModel) {
	accounts, err := h.tokens.List(r.Context())
	if errors.Is(err, driven.ErrIntegrity) {
		d.IntegrityFailed = true
		err = nil
	}
	if err != nil {
		h.logger.Error("failed to list accounts", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	snaps, err := h.snapshots.ListLatest(r.Context())
	if err != nil {
		// The table still renders without fetch times.
		h.logger.Warn("failed to list snapshots", "error", err)
	}

	d.Accounts = toAccountRows(accounts, snaps)
	d.CSRFToken = csrfToken(w, r)
	h.render(w, r, status, templates.Layout("InsightPanel", pages.Dashboard(d)))
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		h.logger.Error("failed to render page", "path", r.URL.Path, "error", err)
	}
}
