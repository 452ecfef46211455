package web

import (
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	vm "github.com/ericfisherdev/insightpanel/internal/adapter/driving/web/viewmodel"
	"github.com/ericfisherdev/insightpanel/internal/domain/model"
)

// displayTime is the timestamp format shown in tables.
const displayTime = "2006-01-02 15:04 UTC"

// captionPolicy strips every tag from captions; text is HTML-escaped.
var captionPolicy = bluemonday.StrictPolicy()

// sanitizeCaption returns caption as safe HTML with line breaks kept.
func sanitizeCaption(caption string) string {
	clean := captionPolicy.Sanitize(caption)
	return strings.ReplaceAll(clean, "\n", "<br>")
}

func accountPath(id string, suffix ...string) string {
	return "/" + strings.Join(append([]string{"accounts", url.PathEscape(id)}, suffix...), "/")
}

// toAccountRows converts account summaries into dashboard rows, attaching the
// fetch time of each account's latest snapshot when there is one.
func toAccountRows(accounts []model.AccountSummary, snapshots []model.Snapshot) []vm.AccountRowViewModel {
	fetched := make(map[string]time.Time, len(snapshots))
	for _, s := range snapshots {
		fetched[s.AccountID] = s.FetchedAt
	}

	rows := make([]vm.AccountRowViewModel, 0, len(accounts))
	for _, a := range accounts {
		row := vm.AccountRowViewModel{
			ID:          a.ID,
			AccountName: a.AccountName,
			CreatedAt:   a.CreatedAt.UTC().Format(displayTime),
			DetailPath:  accountPath(a.ID),
			DeletePath:  accountPath(a.ID, "delete"),
			RefreshPath: accountPath(a.ID, "refresh"),
		}
		if a.IGUserID != nil {
			row.IGUserID = *a.IGUserID
		}
		if t, ok := fetched[a.ID]; ok {
			row.LastFetched = t.UTC().Format(displayTime)
		}
		rows = append(rows, row)
	}
	return rows
}

// toAccountDetail builds the detail view of an account. snap may be nil.
func toAccountDetail(rec model.CredentialRecord, snap *model.Snapshot) vm.AccountDetailViewModel {
	detail := vm.AccountDetailViewModel{
		ID:            rec.ID,
		AccountName:   rec.AccountName,
		RefreshPath:   accountPath(rec.ID, "refresh"),
		ExportCSVPath: "/export/" + url.PathEscape(rec.ID) + "?format=csv",
		ExportPDFPath: "/export/" + url.PathEscape(rec.ID) + "?format=pdf",
		Media:         []vm.MediaRowViewModel{},
	}
	if rec.IGUserID != nil {
		detail.IGUserID = *rec.IGUserID
	}
	if snap == nil {
		return detail
	}

	detail.HasSnapshot = true
	detail.FetchedAt = snap.FetchedAt.UTC().Format(displayTime)
	detail.ProfileError = snap.Insights.ProfileInsightsError

	for _, m := range snap.Insights.Media {
		row := m.Row()
		detail.Media = append(detail.Media, vm.MediaRowViewModel{
			ID:            row.ID,
			CaptionHTML:   sanitizeCaption(m.Caption),
			MediaType:     row.MediaType,
			Timestamp:     row.Timestamp,
			Likes:         row.Likes,
			Comments:      row.Comments,
			Impressions:   row.Impressions,
			InsightsError: m.InsightsError,
		})
	}
	return detail
}
