package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"transcript-sync/internal/playback"
)

func newSegmentsCommand(ctx *commandContext) *cobra.Command {
	var vtt bool
	var translation bool

	cmd := &cobra.Command{
		Use:   "segments",
		Short: "Validate a transcript and list its segments",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, feed, err := ctx.loadFeed()
			if err != nil {
				return err
			}
			segs := feed.Segments()

			if vtt {
				fmt.Fprint(cmd.OutOrStdout(), playback.BuildWebVTT(segs, translation))
				return nil
			}
			if ctx.jsonOut {
				return writeJSON(cmd, segs)
			}

			out := cmd.OutOrStdout()
			if f.Title != "" {
				fmt.Fprintln(out, renderSectionHeader(f.Title, shouldColorize(out)))
			}
			rows := make([][]string, 0, len(segs))
			for i, s := range segs {
				text := s.Text
				if translation && s.Translation != "" {
					text = s.Translation
				}
				rows = append(rows, []string{
					strconv.Itoa(i),
					s.ID,
					formatSeconds(s.Start),
					formatSeconds(s.End),
					strconv.Itoa(len(s.Words)),
					truncate(text, 60),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"#", "ID", "Start", "End", "Words", "Text"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight, alignLeft},
			))
			fmt.Fprintf(out, "%d segments, ends at %ss\n", len(segs), formatSeconds(f.TrackEnd()))
			return nil
		},
	}

	cmd.Flags().BoolVar(&vtt, "vtt", false, "Print the transcript as WebVTT")
	cmd.Flags().BoolVar(&translation, "translation", false, "Use translations (adds a second cue line with --vtt)")
	return cmd
}
