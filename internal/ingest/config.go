package ingest

import "time"

// Config contains configuration options that allow
// customization of how recordings are discovered and ingested.
type Config struct {
	// The path to the directory which is scanned (recursively)
	// for recordings to ingest.
	SourceRoot string `yaml:"source_root" env:"SOURCE_ROOT" validate:"required"`

	// When disabled, recordings are persisted to the store but
	// left at their original location.
	RelocateEnabled bool `yaml:"relocate_enabled" env:"RELOCATE_ENABLED"`

	// Rejects filenames whose timestamp is not a real calendar
	// instant (e.g. month 13) as parse failures.
	StrictTimestamps bool `yaml:"strict_timestamps" env:"STRICT_TIMESTAMPS" env-default:"false"`

	// Watch mode uses a directory watcher, but a 'force' sync
	// is performed on a regular interval to protect against
	// the watcher missing events.
	ForceSyncSeconds int `yaml:"force_sync_seconds" env:"FORCE_SYNC_SECONDS" env-default:"300" validate:"gte=1"`

	// A recording may still be being written by the device which
	// produced it. Files whose modtime is more recent than this
	// many seconds are left for a subsequent scan.
	RequiredModTimeAgeSeconds int `yaml:"required_modtime_age_seconds" env:"REQUIRED_MODTIME_AGE_SECONDS" env-default:"0" validate:"gte=0"`

	// Directories beneath the source root which should never be
	// scanned, such as an archive nested inside of it.
	Exclude []string `yaml:"-"`
}

func (config *Config) RequiredModTimeAgeDuration() time.Duration {
	return time.Duration(config.RequiredModTimeAgeSeconds) * time.Second
}

func (config *Config) ForceSyncDuration() time.Duration {
	if config.ForceSyncSeconds <= 0 {
		return 5 * time.Minute
	}

	return time.Duration(config.ForceSyncSeconds) * time.Second
}
