package model

import "time"

// CredentialRecord is one registered account. AccessToken is a bearer secret
// for the Graph API and must never leave the process except toward Meta.
// IGUserID is nil until the Instagram business account has been resolved.
type CredentialRecord struct {
	ID          string
	AccountName string
	AccessToken string
	IGUserID    *string
	CreatedAt   time.Time
}

// HasIGUserID reports whether the Instagram business account id is cached.
func (r CredentialRecord) HasIGUserID() bool {
	return r.IGUserID != nil && *r.IGUserID != ""
}

// Summary returns the redacted view of the record, safe to hand to clients.
func (r CredentialRecord) Summary() AccountSummary {
	var igUserID *string
	if r.IGUserID != nil {
		id := *r.IGUserID
		igUserID = &id
	}
	return AccountSummary{
		ID:          r.ID,
		AccountName: r.AccountName,
		IGUserID:    igUserID,
		CreatedAt:   r.CreatedAt,
	}
}

// AccountSummary is a CredentialRecord without its access token.
type AccountSummary struct {
	ID          string
	AccountName string
	IGUserID    *string
	CreatedAt   time.Time
}

// LongLivedToken is the result of exchanging a short-lived user token.
type LongLivedToken struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int64
}
