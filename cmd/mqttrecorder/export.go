package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/mqtt-recorder/internal/archive"
	"github.com/nerrad567/mqtt-recorder/internal/infrastructure/config"
	"github.com/nerrad567/mqtt-recorder/internal/infrastructure/database"
	"github.com/nerrad567/mqtt-recorder/internal/recordlog"
)

// stdoutName selects standard output for --output.
const stdoutName = "-"

func newExportCmd(configPath *string) *cobra.Command {
	var (
		archivePath string
		outputPath  string
		legacy      bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the SQLite archive out as a replayable log file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := archivePath
			if path == "" {
				cfgPath := *configPath
				if cfgPath == "" {
					cfgPath = os.Getenv(configEnv)
				}
				cfg, err := config.LoadOrDefault(cfgPath)
				if err != nil {
					return fmt.Errorf("loading config: %w", err)
				}
				path = cfg.Archive.Path
			}

			n, err := exportArchive(cmd, path, outputPath, legacy)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d messages from %s\n", n, path)
			return nil
		},
	}

	cmd.Flags().StringVar(&archivePath, "archive", "", "archive database (default archive.path from config)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", stdoutName, `log file to write ("-" for stdout)`)
	cmd.Flags().BoolVar(&legacy, "legacy", false, "write unescaped records without the format header")

	return cmd
}

// exportArchive copies every archived message into the log at outputPath.
func exportArchive(cmd *cobra.Command, archivePath, outputPath string, legacy bool) (int, error) {
	if _, err := os.Stat(archivePath); err != nil {
		return 0, fmt.Errorf("opening archive: %w", err)
	}

	store, err := archive.Open(cmd.Context(), database.Config{Path: archivePath, WALMode: true, BusyTimeout: 5})
	if err != nil {
		return 0, err
	}
	defer store.Close() //nolint:errcheck // Read-only use

	var out io.Writer = cmd.OutOrStdout()
	if outputPath != stdoutName {
		f, err := os.Create(outputPath)
		if err != nil {
			return 0, fmt.Errorf("creating %s: %w", outputPath, err)
		}
		defer f.Close()
		out = f
	}

	w := recordlog.NewWriter(out)
	if legacy {
		w = recordlog.NewLegacyWriter(out)
	}

	n, err := store.Export(cmd.Context(), w)
	if err != nil {
		return n, fmt.Errorf("exporting archive: %w", err)
	}
	return n, nil
}
