package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/model-collapse/aug-balance/internal/balancer"
	"github.com/model-collapse/aug-balance/internal/census"
	"github.com/model-collapse/aug-balance/internal/planner"
)

// writeSummary prints one row per split followed by the class table of every split that got
// past counting.
func writeSummary(w io.Writer, sums []balancer.Summary) {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Split", "State", "Labels", "Images", "Augmented", "Written", "Skipped", "Size", "Time", "Error"})
	for _, s := range sums {
		errText := ""
		if s.Err != nil {
			errText = s.Err.Error()
		}
		t.AppendRow(table.Row{
			s.Split,
			s.State,
			len(s.Counts),
			s.Images,
			s.Augmented,
			s.Written,
			len(s.Skipped),
			humanize.Bytes(uint64(s.Bytes)),
			s.Duration.Round(time.Millisecond),
			errText,
		})
	}
	fmt.Fprintln(w, t.Render())

	for _, s := range sums {
		if len(s.Counts) > 0 {
			writeCounts(w, s.Split, s.Counts)
		}
	}
}

// writeCounts prints the frequency of every label of a split and the copies an image
// carrying it receives.
func writeCounts(w io.Writer, split string, counts census.Table) {
	_, maxCount := counts.Max()
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.SetTitle(split)
	t.AppendHeader(table.Row{"Label", "Count", "Copies"})
	for _, label := range counts.Labels() {
		copies, err := planner.Plan(counts[label], maxCount)
		cell := interface{}(copies)
		if err != nil {
			cell = err.Error()
		}
		t.AppendRow(table.Row{label, counts[label], cell})
	}
	t.AppendFooter(table.Row{"Total", counts.Total(), ""})
	fmt.Fprintln(w, t.Render())
}
