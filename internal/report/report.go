package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/kapu/persona-avatar-bot-go/internal/service/orchestrator"
	"github.com/kapu/persona-avatar-bot-go/internal/util"
)

// Summary is the flat report written at the end of a run.
type Summary struct {
	RunID       string                     `json:"run_id"`
	CheckOnly   bool                       `json:"check_only"`
	Stopped     bool                       `json:"stopped"`
	StartedAt   string                     `json:"started_at"`
	FinishedAt  string                     `json:"finished_at"`
	Duration    string                     `json:"duration"`
	Stats       orchestrator.RunStatistics `json:"stats"`
	SuccessRate float64                    `json:"success_rate"`
	Issues      []orchestrator.Outcome     `json:"issues"`
}

// Summarize keeps only the outcomes worth a second look: every record that
// needed replacement or needs manual review.
func Summarize(result *orchestrator.RunResult) Summary {
	issues := make([]orchestrator.Outcome, 0)
	for _, o := range result.Outcomes {
		if o.NeedsReplacement || o.State == orchestrator.StateReview {
			issues = append(issues, o)
		}
	}
	return Summary{
		RunID:       result.RunID,
		CheckOnly:   result.CheckOnly,
		Stopped:     result.Stopped,
		StartedAt:   result.StartedAt.UTC().Format("2006-01-02T15:04:05Z"),
		FinishedAt:  result.FinishedAt.UTC().Format("2006-01-02T15:04:05Z"),
		Duration:    result.Duration().String(),
		Stats:       result.Stats,
		SuccessRate: result.Stats.SuccessRate(),
		Issues:      issues,
	}
}

// WriteJSON writes the run summary to path, creating parent directories.
func WriteJSON(path string, result *orchestrator.RunResult) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(Summarize(result), "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// RenderStats renders the counters as a two-column table.
func RenderStats(result *orchestrator.RunResult) string {
	s := result.Stats
	rows := [][]string{
		{"Checked", strconv.Itoa(s.Checked)},
		{"Needing replacement", strconv.Itoa(s.NeedingReplacement)},
	}
	if !result.CheckOnly {
		rows = append(rows,
			[]string{"Replaced", strconv.Itoa(s.Replaced)},
			[]string{"Failed", strconv.Itoa(s.Failed)},
			[]string{"Success rate", fmt.Sprintf("%.1f%%", s.SuccessRate()*100)},
		)
	}
	return renderTable([]string{"Metric", "Value"}, rows, []text.Align{text.AlignLeft, text.AlignRight})
}

// RenderIssues renders one row per record that needed attention.
func RenderIssues(result *orchestrator.RunResult) string {
	summary := Summarize(result)
	if len(summary.Issues) == 0 {
		return ""
	}
	rows := make([][]string, 0, len(summary.Issues))
	for _, o := range summary.Issues {
		rows = append(rows, []string{
			util.TruncateString(o.Name, 32),
			o.State.String(),
			o.Verdict.String(),
			strconv.Itoa(o.Attempts),
			util.TruncateString(o.Reason, 48),
		})
	}
	return renderTable(
		[]string{"Persona", "State", "Verdict", "Attempts", "Reason"},
		rows,
		[]text.Align{text.AlignLeft, text.AlignLeft, text.AlignLeft, text.AlignRight, text.AlignLeft},
	)
}

func renderTable(headers []string, rows [][]string, aligns []text.Align) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) {
			align = aligns[i]
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}
