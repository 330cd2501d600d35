package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"transcript-sync/internal/playback"
)

type bindingView struct {
	Action      string `json:"action"`
	Keys        string `json:"keys"`
	Description string `json:"description"`
}

func newBindingsCommand(ctx *commandContext) *cobra.Command {
	var step float64

	cmd := &cobra.Command{
		Use:   "bindings",
		Short: "List keyboard bindings in dispatch order",
		RunE: func(cmd *cobra.Command, args []string) error {
			rules := playback.DefaultRules(step)
			views := make([]bindingView, 0, len(rules))
			for _, r := range rules {
				views = append(views, bindingView{Action: r.Action, Keys: r.Keys, Description: r.Description})
			}
			if ctx.jsonOut {
				return writeJSON(cmd, views)
			}
			rows := make([][]string, 0, len(views))
			for _, v := range views {
				rows = append(rows, []string{v.Keys, v.Action, v.Description})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Keys", "Action", "Description"}, rows, nil))
			return nil
		},
	}

	cmd.Flags().Float64Var(&step, "step", playback.DefaultConfig().LoopAdjustStep, "Loop fine-adjust step in seconds")
	return cmd
}
