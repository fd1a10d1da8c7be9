package cli

import (
	"fmt"
	"io"
	"sort"
	"time"

	"cronbot/internal/task/model"
	"cronbot/internal/task/schedule"

	"github.com/jedib0t/go-pretty/v6/table"
)

const timeLayout = "2006-01-02 15:04"

func renderJobs(w io.Writer, jobs []model.CronJob) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Name", "Schedule", "Enabled", "Next run", "Last run", "Status"})
	for _, j := range jobs {
		status := "-"
		if j.State.LastStatus != nil {
			status = string(*j.State.LastStatus)
			if j.State.LastError != nil && *j.State.LastError != "" {
				status += ": " + *j.State.LastError
			}
		}
		t.AppendRow(table.Row{
			j.ID,
			j.Name,
			schedule.Describe(j.Schedule, time.Local),
			j.Enabled,
			formatMs(j.State.NextRunAtMs),
			formatMs(j.State.LastRunAtMs),
			status,
		})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d job(s)", len(jobs))})
	t.Render()
}

func renderStatus(w io.Writer, st map[string]any) {
	keys := make([]string, 0, len(st))
	for k := range st {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Key", "Value"})
	for _, k := range keys {
		t.AppendRow(table.Row{k, st[k]})
	}
	t.Render()
}

func formatMs(ms *int64) string {
	if ms == nil {
		return "-"
	}
	return time.UnixMilli(*ms).Local().Format(timeLayout)
}
