package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"transcript-sync/internal/platform/config"
	"transcript-sync/internal/platform/logger"
	"transcript-sync/internal/playback"
	"transcript-sync/internal/transcript"
)

// commandContext carries the persistent flags shared by every subcommand.
type commandContext struct {
	file     string
	sort     bool
	jsonOut  bool
	logLevel string
}

func (c *commandContext) loadTranscript() (*transcript.File, error) {
	if c.file == "" {
		return nil, errors.New("a transcript file is required (--file)")
	}
	return transcript.Load(c.file)
}

// loadFeed loads the transcript and ingests it the way the engine would.
func (c *commandContext) loadFeed() (*transcript.File, *playback.Feed, error) {
	f, err := c.loadTranscript()
	if err != nil {
		return nil, nil, err
	}
	policy := playback.IngestReject
	if c.sort {
		policy = playback.IngestSort
	}
	feed := playback.NewFeed(policy)
	if _, err := feed.Append(f.Segments); err != nil {
		return nil, nil, err
	}
	return f, feed, nil
}

func (c *commandContext) logger(cmd *cobra.Command) *slog.Logger {
	return logger.NewWithWriter(cmd.ErrOrStderr(), c.logLevel, "text")
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "syncctl",
		Short:         "Inspect transcripts and simulate synchronized playback",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = config.Load()
			if ctx.file == "" {
				ctx.file = config.GetEnv("SEGMENTS_FILE", "")
			}
			if !cmd.Flags().Changed("sort") {
				ctx.sort = playback.ParseIngestPolicy(config.GetEnv("SEGMENT_INGEST", "reject")) == playback.IngestSort
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.file, "file", "f", "", "Transcript file (YAML or JSON)")
	rootCmd.PersistentFlags().BoolVar(&ctx.sort, "sort", false, "Sort segments by start time before validating")
	rootCmd.PersistentFlags().BoolVar(&ctx.jsonOut, "json", false, "Write JSON instead of tables")
	rootCmd.PersistentFlags().StringVar(&ctx.logLevel, "log-level", os.Getenv("LOG_LEVEL"), "Log level for simulation output (debug, info, warn, error)")

	rootCmd.AddCommand(newSegmentsCommand(ctx))
	rootCmd.AddCommand(newLocateCommand(ctx))
	rootCmd.AddCommand(newBindingsCommand(ctx))
	rootCmd.AddCommand(newSimulateCommand(ctx))

	return rootCmd
}
