package internal

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path/filepath"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/shikya/call-record-ingestor/internal/archive"
	"github.com/shikya/call-record-ingestor/internal/database"
	"github.com/shikya/call-record-ingestor/internal/ffmpeg"
	"github.com/shikya/call-record-ingestor/internal/ingest"
	"github.com/shikya/call-record-ingestor/pkg/logger"
)

var dsnPasswordPattern = regexp.MustCompile(`password=('[^']*'|\S+)`)

// Config is the struct used to contain the various user
// config supplied by file, environment or command line flag.
type Config struct {
	Ingest   ingest.Config           `yaml:",inline"`
	Archive  archive.Config          `yaml:",inline"`
	Probe    ffmpeg.Config           `yaml:",inline"`
	Database database.DatabaseConfig `yaml:"database"`
	LogLevel string                  `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	LogFile  string                  `yaml:"log_file" env:"LOG_FILE" env-default:"phone_record_ingest.log"`
}

// DefaultConfig returns the config used when no file or environment
// variable overrides a value. Boolean options which default to 'true'
// are set here, as a zero value read from file cannot be told apart
// from a missing one.
func DefaultConfig() *Config {
	return &Config{Ingest: ingest.Config{RelocateEnabled: true}}
}

// LoadConfig reads a '.env' file from the working directory (if one exists)
// in to the environment, and then loads the configuration from the YAML
// file at the path provided (if any) and the environment.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	config := DefaultConfig()
	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, fmt.Errorf("failed to expand config path '%s': %w", path, err)
		}
		if err := cleanenv.ReadConfig(expanded, config); err != nil {
			return nil, fmt.Errorf("failed to load configuration from %s: %w", expanded, err)
		}
	} else if err := cleanenv.ReadEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load configuration from environment: %w", err)
	}

	return config, nil
}

// Resolve expands any '~' prefixed paths and then validates the config.
// This should be called once all overrides (such as CLI flags) have
// been applied.
func (config *Config) Resolve() error {
	for _, path := range []*string{
		&config.Ingest.SourceRoot,
		&config.Archive.TargetRoot,
		&config.Probe.FfprobeBinPath,
	} {
		expanded, err := homedir.Expand(*path)
		if err != nil {
			return fmt.Errorf("failed to expand path '%s': %w", *path, err)
		}
		*path = expanded
	}

	if err := config.ResolveStore(); err != nil {
		return err
	}

	if err := config.validate(); err != nil {
		return err
	}

	// An archive nested inside of the source root must not be re-ingested.
	config.Ingest.Exclude = nil
	if config.Ingest.RelocateEnabled {
		config.Ingest.Exclude = []string{filepath.Clean(config.Archive.TargetRoot)}
	}

	return nil
}

// ResolveStore expands and validates only the options needed to
// reach the record store, for commands which do not ingest.
func (config *Config) ResolveStore() error {
	if config.Database.Driver == database.DialectSqlite {
		dsn, err := homedir.Expand(config.Database.DSN)
		if err != nil {
			return fmt.Errorf("failed to expand database location '%s': %w", config.Database.DSN, err)
		}
		config.Database.DSN = dsn
	}

	logFile, err := homedir.Expand(config.LogFile)
	if err != nil {
		return fmt.Errorf("failed to expand path '%s': %w", config.LogFile, err)
	}
	config.LogFile = logFile

	if err := validator.New().Struct(config.Database); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := logger.ParseLevel(config.LogLevel); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return nil
}

func (config *Config) validate() error {
	validate := validator.New()
	sections := []any{config.Ingest}
	if config.Ingest.RelocateEnabled {
		sections = append(sections, config.Archive)
	}

	for _, section := range sections {
		if err := validate.Struct(section); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}

	return nil
}

// Redacted returns a copy of the config which is safe to log, with any
// password in the record store DSN masked.
func (config *Config) Redacted() Config {
	redacted := *config
	redacted.Database.DSN = redactDSN(config.Database.DSN)
	return redacted
}

func redactDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" && u.User != nil {
		return u.Redacted()
	}

	return dsnPasswordPattern.ReplaceAllString(dsn, "password=xxxxx")
}
