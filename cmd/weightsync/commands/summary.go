package commands

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"dev/bravebird/weightsync-go/pkg/models"
)

func printSummary(w io.Writer, res models.SyncResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Weight Upload Summary")
	t.AppendHeader(table.Row{"Date", "Weight (kg)", "Outcome", "Attempts", "Error"})
	for _, er := range res.EntryResults {
		t.AppendRow(table.Row{er.Date, models.FormatWeight(er.WeightKg), er.Outcome, er.Attempts, er.ErrorMessage})
	}
	t.AppendFooter(table.Row{"Total", res.Result.Total(), res.Status, "", res.ErrorMessage})
	t.Render()

	fmt.Fprintf(w, "Successful updates: %d\n", res.Result.Successful)
	fmt.Fprintf(w, "Failed updates: %d\n", res.Result.Failed)
	if res.Result.Skipped > 0 {
		fmt.Fprintf(w, "Skipped updates: %d\n", res.Result.Skipped)
	}
}

func printRuns(w io.Writer, runs []models.SyncRun) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Run", "Source", "Status", "Entries", "Successful", "Failed", "Skipped", "Started"})
	for _, run := range runs {
		startedAt := ""
		if run.StartedAt != nil {
			startedAt = run.StartedAt.Local().Format("2006-01-02 15:04:05")
		}
		t.AppendRow(table.Row{run.ID, run.Source, run.Status, run.EntryCount, run.Successful, run.Failed, run.Skipped, startedAt})
	}
	t.Render()
}
