package main

import (
	"fmt"
	"os"

	"github.com/cuemby/beacon/pkg/config"
	"github.com/cuemby/beacon/pkg/log"
	"github.com/cuemby/beacon/pkg/metrics"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// cfg is loaded once by the root command before any subcommand runs
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "beacon",
	Short: "Beacon - telemetry collector with a durable local queue",
	Long: `Beacon records analytics events, profile updates and screen views into a
durable local queue, stamps them with session metadata and uploads them to
a collector in debounced batches.

Events survive restarts: anything not yet uploaded is sent by the next
flush, from this process or a later one.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Beacon version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Path to a YAML config file")
	flags.String("data-dir", "", "Directory holding the local queue (overrides config)")
	flags.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	flags.Bool("log-json", false, "Log as JSON instead of console output")
	flags.Bool("offline", false, "Queue events without uploading them")

	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(screenCmd)
	rootCmd.AddCommand(flushCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	loaded, err := config.Load(path)
	if err != nil {
		return err
	}

	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		loaded.DataDir = dir
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		loaded.Log.Level = level
	}
	if cmd.Flags().Changed("log-json") {
		loaded.Log.JSON, _ = cmd.Flags().GetBool("log-json")
	}
	if cmd.Flags().Changed("offline") {
		loaded.Offline, _ = cmd.Flags().GetBool("offline")
	}

	log.Init(log.Config{
		Level:      log.ParseLevel(loaded.Log.Level),
		JSONOutput: loaded.Log.JSON,
		Output:     os.Stderr,
	})
	metrics.SetVersion(Version)

	cfg = loaded
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	// version needs no config
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Beacon version %s\n", Version)
		fmt.Printf("Commit: %s\n", Commit)
		fmt.Printf("Built: %s\n", BuildTime)
	},
}
