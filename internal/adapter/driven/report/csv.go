// Package report renders media rows as downloadable CSV and PDF documents.
package report

import (
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/ericfisherdev/insightpanel/internal/domain/model"
)

var csvHeader = []string{"id", "caption", "media_type", "timestamp", "likes", "comments", "impressions"}

var whitespaceRun = regexp.MustCompile(`\s+`)

// WriteCSV writes rows with a fixed header. Every data field is double-quoted
// with embedded quotes doubled, and lines are separated by "\n" with no
// trailing newline.
func WriteCSV(w io.Writer, rows []model.MediaRow) error {
	var b strings.Builder
	b.WriteString(strings.Join(csvHeader, ","))

	for _, r := range rows {
		fields := []string{
			r.ID,
			r.Caption,
			r.MediaType,
			r.Timestamp,
			strconv.Itoa(r.Likes),
			strconv.Itoa(r.Comments),
			r.Impressions,
		}
		b.WriteByte('\n')
		for i, f := range fields {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(quote(f))
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Filename builds the attachment name for an account export, replacing every
// whitespace run in the account name with "_".
func Filename(accountName, ext string) string {
	return whitespaceRun.ReplaceAllString(accountName, "_") + "_media." + ext
}
