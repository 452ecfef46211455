package web

import (
	"io/fs"
	"net/http"
)

// RegisterRoutes registers all dashboard routes on the provided mux.
// Static assets are served from the embedded filesystem at /static/*.
func RegisterRoutes(mux *http.ServeMux, h *Handler) {
	// Static assets (embedded via go:embed).
	staticFS, _ := fs.Sub(StaticFS, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticFS)))

	// Page routes.
	mux.HandleFunc("GET /{$}", h.Dashboard)
	mux.HandleFunc("GET /accounts/{id}", h.AccountDetail)

	// Form actions; all require a CSRF token.
	mux.HandleFunc("POST /accounts", h.RegisterAccount)
	mux.HandleFunc("POST /accounts/{id}/delete", h.DeleteAccount)
	mux.HandleFunc("POST /accounts/{id}/refresh", h.RefreshAccount)
}
