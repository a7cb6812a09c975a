// Package export renders completed jobs as the stock-agency CSV upload file.
package export

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/phrazzld/stockmeta/internal/domain"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrNothingToExport is returned when no job has completed yet.
var ErrNothingToExport = errors.New("no completed jobs to export")

// Locale is the value of the locale column on every row.
const Locale = "en"

// ContentType is the media type of the exported document.
const ContentType = "text/csv; charset=utf-8"

var header = []string{"filename", "title", "keywords", "Artist", "locale", "description"}

// Format builds the CSV document for the completed jobs among jobs, in the
// order given. Rows are separated by "\n" with no trailing newline. An empty
// attribution falls back to the default artist name.
//
// Returns ErrNothingToExport when no job is completed.
func Format(jobs []domain.Job, attribution string) (string, error) {
	if strings.TrimSpace(attribution) == "" {
		attribution = domain.DefaultArtist
	}

	lines := []string{strings.Join(header, ",")}
	for _, job := range jobs {
		result, ok := job.Result()
		if !ok {
			continue
		}
		lines = append(lines, strings.Join([]string{
			escape(job.Source.Filename),
			escape(result.Title),
			escape(strings.Join(result.Keywords, ",")),
			escape(attribution),
			escape(Locale),
			escape(result.Description),
		}, ","))
	}

	if len(lines) == 1 {
		return "", ErrNothingToExport
	}
	return strings.Join(lines, "\n"), nil
}

// Write encodes doc as UTF-8 with a byte order mark so that spreadsheet
// applications detect the encoding.
func Write(w io.Writer, doc string) error {
	tw := transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())
	if _, err := io.WriteString(tw, doc); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to flush export: %w", err)
	}
	return nil
}

// FileName returns the download name for an export made at t.
func FileName(t time.Time) string {
	return "stock_metadata_" + t.UTC().Format("2006-01-02") + ".csv"
}

// escape quotes a field when it contains a comma, a double quote or a
// newline, doubling any embedded quotes.
func escape(field string) string {
	if !strings.ContainsAny(field, ",\"\n") {
		return field
	}
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}
