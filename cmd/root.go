package cmd

import (
	"os"

	"github.com/shikya/call-record-ingestor/internal"
	"github.com/shikya/call-record-ingestor/internal/archive"
	"github.com/spf13/cobra"
)

var (
	flagConfig     string
	flagSource     string
	flagTarget     string
	flagDBDriver   string
	flagDB         string
	flagMode       string
	flagCollision  string
	flagNoRelocate bool
	flagStrict     bool
	flagFfprobe    string
	flagLogLevel   string
	flagLogFile    string
)

var rootCmd = &cobra.Command{
	Use:           "recordingest",
	Short:         "Ingest call recordings in to a record store and a dated archive",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&flagConfig, "config", "c", "", "path to a YAML config file")
	flags.StringVar(&flagSource, "source", "", "directory scanned for recordings")
	flags.StringVar(&flagTarget, "target", "", "root of the dated archive")
	flags.StringVar(&flagDBDriver, "db-driver", "", "record store driver (sqlite3 or postgres)")
	flags.StringVar(&flagDB, "db", "", "record store location (sqlite3 file path or postgres DSN)")
	flags.StringVar(&flagMode, "mode", "", "transfer mode used to archive recordings (move or copy)")
	flags.StringVar(&flagCollision, "on-collision", "", "behaviour when the archive already holds the file (fail or overwrite)")
	flags.BoolVar(&flagNoRelocate, "no-relocate", false, "persist records but leave recordings where they are")
	flags.BoolVar(&flagStrict, "strict-timestamps", false, "reject filenames whose timestamp is not a real calendar instant")
	flags.StringVar(&flagFfprobe, "ffprobe", "", "path to the ffprobe binary")
	flags.StringVar(&flagLogLevel, "log-level", "", "minimum log level (verbose, debug, info, warning, error)")
	flags.StringVar(&flagLogFile, "log-file", "", "file every log line is also written to (empty string disables)")
}

// loadConfig builds the config for a command, applying any flags which
// were explicitly provided over the file and environment. The resolve
// function provided then expands and validates the result.
func loadConfig(cmd *cobra.Command, resolve func(*internal.Config) error) (*internal.Config, error) {
	config, err := internal.LoadConfig(flagConfig)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	overrides := []struct {
		flag  string
		apply func()
	}{
		{"source", func() { config.Ingest.SourceRoot = flagSource }},
		{"target", func() { config.Archive.TargetRoot = flagTarget }},
		{"db-driver", func() { config.Database.Driver = flagDBDriver }},
		{"db", func() { config.Database.DSN = flagDB }},
		{"mode", func() { config.Archive.TransferMode = archive.TransferMode(flagMode) }},
		{"on-collision", func() { config.Archive.CollisionPolicy = archive.CollisionPolicy(flagCollision) }},
		{"no-relocate", func() { config.Ingest.RelocateEnabled = !flagNoRelocate }},
		{"strict-timestamps", func() { config.Ingest.StrictTimestamps = flagStrict }},
		{"ffprobe", func() { config.Probe.FfprobeBinPath = flagFfprobe }},
		{"log-level", func() { config.LogLevel = flagLogLevel }},
		{"log-file", func() { config.LogFile = flagLogFile }},
		{"force-sync", func() { config.Ingest.ForceSyncSeconds = flagForceSync }},
	}
	for _, override := range overrides {
		if flags.Changed(override.flag) {
			override.apply()
		}
	}

	if err := resolve(config); err != nil {
		return nil, err
	}

	return config, nil
}
