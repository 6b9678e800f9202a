package report

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Headline summarises a run in one line.
func Headline(r *RunReport) string {
	verdict := "PASS"
	if !r.Passed() {
		verdict = "FAIL"
	}
	return fmt.Sprintf("%s: %s tests, %s failed, %s retried in %s",
		verdict,
		humanize.Comma(int64(r.Total)),
		humanize.Comma(int64(r.Failed)),
		humanize.Comma(int64(r.Retries)),
		r.Duration.Round(time.Millisecond))
}

// FormatTable renders the failures of a run as a table. When colored is
// false the output contains no escape sequences.
func FormatTable(r *RunReport, colored bool) string {
	var buf bytes.Buffer

	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	t.SetTitle("Run %s (%s)", r.ID, humanize.Time(r.StartedAt))
	t.AppendHeader(table.Row{"Test", "Worker", "Attempts", "Kind", "Reason", "Artifact"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Test", Align: text.AlignRight},
		{Name: "Worker", Align: text.AlignRight},
		{Name: "Attempts", Align: text.AlignRight},
		{Name: "Reason", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, f := range r.Failures {
		t.AppendRow(table.Row{
			f.Index,
			f.Worker,
			f.Attempts,
			f.Kind,
			firstLine(f.Reason),
			artifactName(f.Artifact),
		})
	}

	switch {
	case !colored:
		t.SetStyle(table.StyleLight)
	case r.Passed():
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.AppendFooter(table.Row{"", "", "", "", Headline(r), ""})
	t.Render()
	return buf.String()
}

func artifactName(path string) string {
	if path == "" {
		return "-"
	}
	return filepath.Base(path)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
