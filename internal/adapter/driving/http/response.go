package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/insightpanel/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeErrorDetails writes an error code plus a human-readable detail.
func writeErrorDetails(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, errorResponse{Error: code, Details: details})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	OK bool  `json:"ok"`
	TS int64 `json:"ts"`
}

// AccountResponse is the redacted JSON representation of a registered account.
// It never carries the access token.
type AccountResponse struct {
	ID          string  `json:"id"`
	AccountName string  `json:"account_name"`
	IGUserID    *string `json:"ig_user_id"`
	CreatedAt   string  `json:"created_at"`
}

// RegisterTokenRequest is the JSON body for registering an account.
type RegisterTokenRequest struct {
	AccountName string `json:"account_name"`
	AccessToken string `json:"access_token"`
	IGUserID    string `json:"ig_user_id"`
}

// RegisterTokenResponse acknowledges a registered account.
type RegisterTokenResponse struct {
	OK bool   `json:"ok"`
	ID string `json:"id"`
}

// DeleteTokenResponse reports how many records a delete removed.
type DeleteTokenResponse struct {
	OK      bool `json:"ok"`
	Removed int  `json:"removed"`
}

// ExchangeTokenRequest is the JSON body for the token exchange endpoint.
type ExchangeTokenRequest struct {
	AccessToken string `json:"access_token"`
}

// ExchangeTokenResponse mirrors the Graph API's long-lived token response.
type ExchangeTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int64  `json:"expires_in,omitempty"`
}

// InsightsResponse wraps a live insights report.
type InsightsResponse struct {
	OK bool `json:"ok"`
	model.AccountInsights
}

// RefreshResponse acknowledges a persisted refresh.
type RefreshResponse struct {
	OK        bool   `json:"ok"`
	Message   string `json:"message"`
	FetchedAt string `json:"fetched_at"`
}

// SnapshotResponse is the JSON representation of a stored snapshot.
type SnapshotResponse struct {
	AccountID string                `json:"account_id"`
	FetchedAt string                `json:"fetched_at"`
	Insights  model.AccountInsights `json:"insights"`
}

// toAccountResponse converts a domain AccountSummary to its JSON representation.
func toAccountResponse(a model.AccountSummary) AccountResponse {
	return AccountResponse{
		ID:          a.ID,
		AccountName: a.AccountName,
		IGUserID:    a.IGUserID,
		CreatedAt:   a.CreatedAt.UTC().Format(time.RFC3339),
	}
}
