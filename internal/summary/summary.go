// Package summary renders a delivered report as a terminal table.
package summary

import (
	"bytes"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/codalotl/xrayreport/internal/types"
)

// Stats counts steps by status.
type Stats struct {
	Steps    int
	Passed   int
	Failed   int
	Todo     int
	Evidence int
}

func (s *Stats) add(o Stats) {
	s.Steps += o.Steps
	s.Passed += o.Passed
	s.Failed += o.Failed
	s.Todo += o.Todo
	s.Evidence += o.Evidence
}

// TestStats counts the steps of one test.
func TestStats(test types.TestResult) Stats {
	var s Stats
	for _, step := range test.Steps {
		s.Steps++
		s.Evidence += len(step.Evidences)
		switch step.Status {
		case types.StatusPass:
			s.Passed++
		case types.StatusFail:
			s.Failed++
		case types.StatusTodo:
			s.Todo++
		}
	}
	return s
}

// Format renders one row per test plus a total footer. colored selects a style keyed on the overall result.
func Format(report *types.Report, colored bool) string {
	var buf bytes.Buffer

	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	t.SetTitle(report.Info.Summary)
	t.AppendHeader(table.Row{"Test", "Status", "Steps", "Passed", "Failed", "Todo", "Evidence"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Steps", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Todo", Align: text.AlignRight},
		{Name: "Evidence", Align: text.AlignRight},
	})

	var total Stats
	failedTests := 0
	for _, test := range report.Tests {
		s := TestStats(test)
		total.add(s)
		if test.Status == types.StatusFail {
			failedTests++
		}
		t.AppendRow(table.Row{test.TestKey, string(test.Status), s.Steps, s.Passed, s.Failed, s.Todo, s.Evidence})
	}

	overall := types.StatusPass
	if failedTests > 0 {
		overall = types.StatusFail
	}
	if colored {
		switch {
		case failedTests > 0:
			t.SetStyle(table.StyleColoredBlackOnRedWhite)
		case total.Todo > 0:
			t.SetStyle(table.StyleColoredBlackOnYellowWhite)
		default:
			t.SetStyle(table.StyleColoredBlackOnGreenWhite)
		}
	}
	t.AppendFooter(table.Row{"TOTAL", string(overall), total.Steps, total.Passed, total.Failed, total.Todo, total.Evidence})

	t.Render()
	return buf.String()
}
