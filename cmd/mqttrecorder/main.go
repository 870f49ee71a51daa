// mqttrecorder records MQTT traffic to a log file and replays it.
//
// Record every topic on the default broker into mqtt.log:
//
//	mqttrecorder
//
// Replay a log with its original timing, without recording:
//
//	mqttrecorder -n -d -p mqtt.log
//
// Publishing "exit" to the /recorder topic stops a running recorder.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// configEnv names the config file when -c is not given.
const configEnv = "MQTTREC_CONFIG"

// options holds the root command flags.
type options struct {
	configPath  string
	outputFile  string
	playback    string
	files       []string
	delay       bool
	noRecording bool
}

// playbackFiles returns the -p file followed by positional files.
func (o options) playbackFiles() []string {
	var files []string
	if o.playback != "" {
		files = append(files, o.playback)
	}
	return append(files, o.files...)
}

func main() {
	// Cancel on Ctrl+C or SIGTERM so the recorder closes its output cleanly.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	rootCmd := &cobra.Command{
		Use:   "mqttrecorder [files...]",
		Short: "Listen to MQTT topics and dump messages published there to a log file",
		Long: `mqttrecorder subscribes to the configured topic patterns and writes every
message it receives, with a receive timestamp, to a log file. Logs can be
played back to the broker, optionally with the original timing.

Positional files are played back after the -p file.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.files = args
			return run(cmd.Context(), opts)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&opts.outputFile, "output-file", "o", "", "message dump file (overrides output_file)")
	flags.StringVarP(&opts.playback, "playback", "p", "", "play back a recorded file")
	flags.BoolVarP(&opts.delay, "delay", "d", false, "keep the recorded delay between messages")
	flags.BoolVarP(&opts.noRecording, "no-recording", "n", false, "do not record (for playback)")

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default $"+configEnv+")")

	rootCmd.AddCommand(
		newExportCmd(&opts.configPath),
		newTokenCmd(&opts.configPath),
		newVersionCmd(),
	)

	return rootCmd
}
