// Package viewmodel defines presentation-ready structs for the dashboard
// components. View models decouple rendering from domain model types.
package viewmodel

// AccountRowViewModel is one registered account in the dashboard table.
type AccountRowViewModel struct {
	ID          string
	AccountName string
	IGUserID    string // empty until resolved
	CreatedAt   string
	LastFetched string // empty when no snapshot exists
	DetailPath  string
	DeletePath  string
	RefreshPath string
}

// DashboardViewModel holds everything the dashboard page renders.
type DashboardViewModel struct {
	Accounts        []AccountRowViewModel
	CSRFToken       string
	IntegrityFailed bool
	FormError       string
	FormAccountName string
}

// MediaRowViewModel is one post in the account detail table.
type MediaRowViewModel struct {
	ID string
	// CaptionHTML is sanitized and safe to write unescaped.
	CaptionHTML   string
	MediaType     string
	Timestamp     string
	Likes         int
	Comments      int
	Impressions   string
	InsightsError string
}

// AccountDetailViewModel holds the latest snapshot of one account.
type AccountDetailViewModel struct {
	ID            string
	AccountName   string
	IGUserID      string
	CSRFToken     string
	HasSnapshot   bool
	FetchedAt     string
	ProfileError  string
	Media         []MediaRowViewModel
	RefreshPath   string
	ExportCSVPath string
	ExportPDFPath string
}
