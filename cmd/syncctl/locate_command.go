package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"transcript-sync/internal/playback"
)

type locateResult struct {
	Time    float64 `json:"time"`
	Segment int     `json:"segment"`
	ID      string  `json:"id,omitempty"`
	Word    int     `json:"word"`
	Text    string  `json:"text,omitempty"`
}

func newLocateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "locate <seconds>...",
		Short: "Resolve playback positions to the active segment and word",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, feed, err := ctx.loadFeed()
			if err != nil {
				return err
			}
			segs := feed.Segments()

			results := make([]locateResult, 0, len(args))
			for _, arg := range args {
				t, err := strconv.ParseFloat(arg, 64)
				if err != nil {
					return fmt.Errorf("invalid position %q: %w", arg, err)
				}
				res := locateResult{Time: t, Segment: playback.LocateSegment(segs, t), Word: -1}
				if res.Segment >= 0 {
					seg := segs[res.Segment]
					res.ID = seg.ID
					res.Text = seg.Text
					res.Word = playback.LocateWord(seg.Words, t)
					if res.Word >= 0 {
						res.Text = seg.Words[res.Word].Text
					}
				}
				results = append(results, res)
			}

			if ctx.jsonOut {
				return writeJSON(cmd, results)
			}
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				seg, word := "-", "-"
				if r.Segment >= 0 {
					seg = strconv.Itoa(r.Segment)
				}
				if r.Word >= 0 {
					word = strconv.Itoa(r.Word)
				}
				rows = append(rows, []string{formatSeconds(r.Time), seg, r.ID, word, truncate(r.Text, 50)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Time", "Segment", "ID", "Word", "Text"},
				rows,
				[]columnAlignment{alignRight, alignRight, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
}
