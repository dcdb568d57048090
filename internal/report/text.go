package report

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/Sumatoshi-tech/jseries/internal/model"
)

const dateLayout = "2006-01-02"

// WriteText writes one table row per version followed by the advisories.
func WriteText(w io.Writer, h *model.History) error {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.SetTitle(h.Product())
	tbl.AppendHeader(table.Row{"RSN", "Version", "Date", "Classes", "New", "Modified", "Unchanged", "Deleted"})

	for _, s := range h.Versions() {
		date := ""
		if !s.Timestamp().IsZero() {
			date = s.Timestamp().Format(dateLayout)
		}

		tbl.AppendRow(table.Row{
			s.RSN(),
			s.Label(),
			date,
			humanize.Comma(s.Metric(model.VersionClassCount)),
			humanize.Comma(s.Metric(model.VersionNewClassCount)),
			humanize.Comma(s.Metric(model.VersionModifiedClassCount)),
			humanize.Comma(s.Metric(model.VersionUnchangedClassCount)),
			humanize.Comma(s.Metric(model.VersionDeletedClassCount)),
		})
	}

	tbl.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
	})
	tbl.AppendFooter(table.Row{"", fmt.Sprintf("%d versions", h.Len())})

	if _, err := fmt.Fprintln(w, tbl.Render()); err != nil {
		return err
	}

	return writeAdvisories(w, h.Advisories())
}

func writeAdvisories(w io.Writer, advisories []model.Advisory) error {
	if len(advisories) == 0 {
		return nil
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.SetTitle("Advisories")
	tbl.AppendHeader(table.Row{"RSN", "Version", "Kind", "Subject", "Message"})

	for _, a := range advisories {
		subject := a.Class
		if subject == "" {
			subject = a.Entry
		}

		tbl.AppendRow(table.Row{a.RSN, a.Label, string(a.Kind), subject, a.Message})
	}

	_, err := fmt.Fprintln(w, tbl.Render())

	return err
}
