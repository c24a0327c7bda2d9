package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/logflow/logprune/pkg/dfpg"
	"github.com/logflow/logprune/pkg/entropy"
	"github.com/logflow/logprune/pkg/eventlog"
	"github.com/logflow/logprune/pkg/tui"
)

var (
	keepFlag     string
	variantLimit int
)

var scoreCmd = &cobra.Command{
	Use:   "score <input>",
	Short: "Show the structural entropy of a log per activity",
	Long: `Compute the directly-follows / directly-precedes statistics of the input log
and print each activity's forward and backward entropy and their total.

Examples:
  logprune score orders.xes
  logprune score orders.xes --keep "register,check,pay"`,
	Args: cobra.ExactArgs(1),
	RunE: runScore,
}

var infoCmd = &cobra.Command{
	Use:   "info <input>",
	Short: "Display activities, start/end counts and variants of a log",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func init() {
	addInputFlags(scoreCmd)
	scoreCmd.Flags().StringVar(&keepFlag, "keep", "", "Score the log projected onto these comma-separated activities")

	addInputFlags(infoCmd)
	infoCmd.Flags().IntVar(&variantLimit, "variants", 10, "Number of most frequent variants to list (0 = all)")
}

func runScore(cmd *cobra.Command, args []string) error {
	a := current
	log, _, err := a.loadLog(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if keepFlag != "" {
		log = eventlog.Project(log, parseActivities(keepFlag))
	}

	d, err := dfpg.Build(log)
	if err != nil {
		return err
	}
	contributions := entropy.Breakdown(d)

	rows := make([][]string, len(contributions))
	for i, c := range contributions {
		rows[i] = []string{
			string(c.Activity),
			fmt.Sprintf("%.4f", c.Forward),
			fmt.Sprintf("%.4f", c.Backward),
			fmt.Sprintf("%.4f", c.Total()),
		}
	}

	a.out.Section("entropy")
	a.out.Table([]string{"ACTIVITY", "FORWARD", "BACKWARD", "TOTAL"}, rows)
	a.out.Rule()
	a.out.Field("Score", fmt.Sprintf("%.6f bits", entropy.Score(d)))
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	a := current
	log, stats, err := a.loadLog(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	d, err := dfpg.Build(log)
	if err != nil {
		return err
	}
	ix := eventlog.NewIndex(log)

	a.out.Section("log")
	a.out.Path("Input", args[0])
	a.out.Field("Format", stats.Format.String())
	if stats.BytesRead > 0 {
		a.out.Field("Size", tui.FormatBytes(stats.BytesRead))
	}
	a.out.Field("Traces", strconv.Itoa(log.Len()))
	a.out.Field("Events", strconv.Itoa(log.EventCount()))
	a.out.Field("Activities", strconv.Itoa(d.Activities.Len()))
	a.out.Field("Edges", strconv.Itoa(d.DirectlyFollows.EdgeCount()))
	if first, last, ok := timeRange(log); ok {
		a.out.Field("From", first.Format(time.RFC3339))
		a.out.Field("To", last.Format(time.RFC3339))
	}

	rows := make([][]string, 0, d.Activities.Len())
	for _, act := range d.Activities.Slice() {
		rows = append(rows, []string{
			string(act),
			strconv.FormatInt(d.ActivityCounts.Count(act), 10),
			strconv.FormatUint(ix.TraceFrequency(act), 10),
			strconv.FormatInt(d.StartCounts.Count(act), 10),
			strconv.FormatInt(d.EndCounts.Count(act), 10),
		})
	}
	a.out.Section("activities")
	a.out.Table([]string{"ACTIVITY", "EVENTS", "TRACES", "STARTS", "ENDS"}, rows)

	variants := log.Variants()
	a.out.Section(fmt.Sprintf("variants (%d)", len(variants)))
	if variantLimit > 0 && len(variants) > variantLimit {
		variants = variants[:variantLimit]
	}
	vrows := make([][]string, len(variants))
	for i, v := range variants {
		vrows[i] = []string{strconv.Itoa(v.Count), v.String()}
	}
	a.out.Table([]string{"TRACES", "SEQUENCE"}, vrows)
	return nil
}

// timeRange returns the earliest and latest known event timestamps.
func timeRange(log *eventlog.Log) (first, last time.Time, ok bool) {
	for _, t := range log.Traces {
		for _, e := range t.Events {
			if e.Timestamp.IsZero() {
				continue
			}
			if !ok || e.Timestamp.Before(first) {
				first = e.Timestamp
			}
			if !ok || e.Timestamp.After(last) {
				last = e.Timestamp
			}
			ok = true
		}
	}
	return first, last, ok
}
