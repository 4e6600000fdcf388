// Responsible for scraping the technical attributes of a recording
// from its content: the container is probed to classify the audio
// stream and read its bitrate, sample rate and channel layout, while a
// separate ffprobe of the audio stream provides the duration.
package media

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/shikya/call-record-ingestor/internal/ffmpeg"
)

const (
	StageContainer = "container"
	StageDuration  = "duration"
	StageStat      = "stat"
)

var (
	ErrNoAudioTrack = errors.New("no audio track found")
	ErrExtraction   = errors.New("metadata extraction failed")
)

type (
	// AudioAttributes are the technical attributes of a recording. Any
	// attribute which could not be determined is nil, rather than zero, so
	// that 'unknown' is not conflated with a genuine zero value.
	AudioAttributes struct {
		DurationSeconds *float64
		Bitrate         *int64
		SampleRate      *int64
		Channels        *int64
		FileSizeBytes   int64
	}

	// ExtractionError describes a failure at a specific stage
	// of the metadata extraction.
	ExtractionError struct {
		Path  string
		Stage string
		Err   error
	}

	containerProber interface {
		ProbeContainer(ctx context.Context, path string) (*ffmpeg.ContainerInfo, error)
	}

	streamProber interface {
		ProbeAudioStream(ctx context.Context, path string) (*ffmpeg.StreamInfo, error)
	}

	MetadataScraper struct {
		container containerProber
		stream    streamProber
	}
)

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s extraction for %s failed: %s", e.Stage, e.Path, e.Err)
}

// Unwrap exposes both the underlying cause, and the generic
// ErrExtraction sentinel (unless the cause is ErrNoAudioTrack, which
// callers are expected to distinguish).
func (e *ExtractionError) Unwrap() []error {
	if errors.Is(e.Err, ErrNoAudioTrack) {
		return []error{e.Err}
	}

	return []error{e.Err, ErrExtraction}
}

// NewMetadataScraper constructs a scraper which uses the provided
// probers. Typically both are satisfied by the same *ffmpeg.Prober.
func NewMetadataScraper(container containerProber, stream streamProber) *MetadataScraper {
	return &MetadataScraper{container: container, stream: stream}
}

// NewFfprobeScraper is a convenience wrapper which uses a single
// ffprobe backed prober for both the container and the stream probe.
func NewFfprobeScraper(config ffmpeg.Config) *MetadataScraper {
	prober := ffmpeg.NewProber(config)
	return NewMetadataScraper(prober, prober)
}

// ScrapeFileForAudioAttributes inspects the file at the given path and
// returns its audio attributes. An *ExtractionError is returned if any
// stage fails; where the container exposes no audio stream, the error
// wraps ErrNoAudioTrack.
func (scraper *MetadataScraper) ScrapeFileForAudioAttributes(ctx context.Context, path string) (*AudioAttributes, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Stage: StageStat, Err: err}
	}
	if !info.Mode().IsRegular() {
		return nil, &ExtractionError{Path: path, Stage: StageStat, Err: errors.New("not a regular file")}
	}

	container, err := scraper.container.ProbeContainer(ctx, path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Stage: StageContainer, Err: err}
	}
	if container.Audio == nil {
		return nil, &ExtractionError{Path: path, Stage: StageContainer, Err: ErrNoAudioTrack}
	}

	stream, err := scraper.stream.ProbeAudioStream(ctx, path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Stage: StageDuration, Err: err}
	}

	return &AudioAttributes{
		DurationSeconds: stream.Duration,
		Bitrate:         firstKnown(container.Audio.Bitrate, container.Bitrate),
		SampleRate:      firstKnown(container.Audio.SampleRate, stream.SampleRate),
		Channels:        firstKnown(container.Audio.Channels, stream.Channels),
		FileSizeBytes:   info.Size(),
	}, nil
}

func firstKnown(values ...*int64) *int64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}

	return nil
}
