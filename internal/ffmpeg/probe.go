package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/floostack/transcoder"
	"github.com/floostack/transcoder/ffmpeg"
	"github.com/shikya/call-record-ingestor/pkg/logger"
)

const audioCodecType = "audio"

var (
	log = logger.Get("FFprobe")

	ErrProbeFailed  = errors.New("ffprobe failed")
	ErrProbeTimeout = errors.New("ffprobe did not complete within the configured timeout")
)

type (
	// Config controls how the ffprobe binary is invoked.
	Config struct {
		FfprobeBinPath string        `yaml:"ffprobe_path" env:"FFPROBE_PATH" env-default:"ffprobe"`
		ProbeTimeout   time.Duration `yaml:"probe_timeout" env:"FFPROBE_TIMEOUT" env-default:"30s"`
	}

	// AudioStream is the container level view of the first
	// audio stream found in a file. SampleRate and Channels are
	// nil if the container does not report them.
	AudioStream struct {
		Index      int
		CodecName  string
		Bitrate    *int64
		SampleRate *int64
		Channels   *int64
	}

	// ContainerInfo is the result of a full ffprobe of a file's
	// container and streams.
	ContainerInfo struct {
		FormatName string
		Bitrate    *int64
		Audio      *AudioStream
	}

	// StreamInfo contains the attributes of the first audio stream
	// which ffprobe reports per-stream, rather than per-container.
	StreamInfo struct {
		Duration   *float64
		SampleRate *int64
		Channels   *int64
	}

	// Prober runs ffprobe against files on disk.
	Prober struct {
		config Config
	}

	// audioTrackFields holds the per-stream attributes which the
	// transcoder metadata types do not carry, in ffprobe stream order.
	audioTrackFields struct {
		Streams []struct {
			SampleRate string `json:"sample_rate"`
			Channels   *int64 `json:"channels"`
		} `json:"streams"`
	}

	streamProbeOutput struct {
		Streams []struct {
			CodecType  string `json:"codec_type"`
			Duration   string `json:"duration"`
			SampleRate string `json:"sample_rate"`
			Channels   *int64 `json:"channels"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
)

func NewProber(config Config) *Prober {
	if config.FfprobeBinPath == "" {
		config.FfprobeBinPath = "ffprobe"
	}

	return &Prober{config: config}
}

// ProbeContainer reads the container and stream metadata for the file
// at the path provided, and classifies the first audio stream (if any).
// A nil Audio field in the result means the container exposes no audio.
//
// The output is decoded in to the transcoder metadata types, but ffprobe
// is invoked directly so that it is killed if the probe times out.
func (prober *Prober) ProbeContainer(ctx context.Context, path string) (*ContainerInfo, error) {
	ctx, cancel := prober.withTimeout(ctx)
	defer cancel()

	raw, err := prober.run(ctx, "-v", "error", "-show_format", "-show_streams", "-of", "json", path)
	if err != nil {
		return nil, fmt.Errorf("container probe of %s: %w", path, err)
	}

	info, err := parseContainerProbeOutput(raw)
	if err != nil {
		return nil, fmt.Errorf("container probe of %s: %w", path, err)
	}

	return info, nil
}

// ProbeAudioStream invokes ffprobe against the first audio
// stream of the file, returning its duration, sample rate and
// channel count. The duration reported by the stream is preferred,
// falling back to the duration of the container format.
//
// A missing or non-numeric duration is treated as a probe failure,
// however sample rate and channels are left nil if ffprobe cannot
// provide them.
func (prober *Prober) ProbeAudioStream(ctx context.Context, path string) (*StreamInfo, error) {
	ctx, cancel := prober.withTimeout(ctx)
	defer cancel()

	raw, err := prober.run(ctx,
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_type,duration,sample_rate,channels:format=duration",
		"-of", "json",
		path,
	)
	if err != nil {
		return nil, fmt.Errorf("stream probe of %s: %w", path, err)
	}

	return parseStreamProbeOutput(raw)
}

// run invokes ffprobe with the arguments provided, returning its stdout. The
// process is killed once the context is done, and its output pipes are
// abandoned shortly after in case a child of ffprobe still holds them.
func (prober *Prober) run(ctx context.Context, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, prober.config.FfprobeBinPath, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	log.Verbosef("Running %s\n", cmd.String())
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, probeContextError(ctx)
		}

		return nil, fmt.Errorf("%w: %s (%s)", ErrProbeFailed, err, strings.TrimSpace(stderr.String()))
	}

	return stdout.Bytes(), nil
}

func (prober *Prober) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if prober.config.ProbeTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, prober.config.ProbeTimeout)
}

func parseStreamProbeOutput(raw []byte) (*StreamInfo, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%w: empty output", ErrProbeFailed)
	}

	var output streamProbeOutput
	if err := json.Unmarshal(raw, &output); err != nil {
		return nil, fmt.Errorf("%w: malformed output: %s", ErrProbeFailed, err)
	}

	info := &StreamInfo{}
	rawDuration := output.Format.Duration
	for _, stream := range output.Streams {
		// Streams are already filtered to audio by ffprobe, but the
		// codec type is checked (when reported) rather than trusting order.
		if stream.CodecType != "" && stream.CodecType != audioCodecType {
			continue
		}

		if stream.Duration != "" && stream.Duration != "N/A" {
			rawDuration = stream.Duration
		}

		info.SampleRate = parseOptionalInt(stream.SampleRate)
		info.Channels = nonNegative(stream.Channels)
		break
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(rawDuration), 64)
	if err != nil || duration < 0 {
		return nil, fmt.Errorf("%w: non-numeric duration '%s'", ErrProbeFailed, rawDuration)
	}
	info.Duration = &duration

	return info, nil
}

func parseContainerProbeOutput(raw []byte) (*ContainerInfo, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%w: empty output", ErrProbeFailed)
	}

	var metadata ffmpeg.Metadata
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return nil, fmt.Errorf("%w: malformed output: %s", ErrProbeFailed, err)
	}
	var tracks audioTrackFields
	if err := json.Unmarshal(raw, &tracks); err != nil {
		return nil, fmt.Errorf("%w: malformed output: %s", ErrProbeFailed, err)
	}

	return containerInfoFromMetadata(metadata, tracks), nil
}

func containerInfoFromMetadata(metadata transcoder.Metadata, tracks audioTrackFields) *ContainerInfo {
	info := &ContainerInfo{}
	if format := metadata.GetFormat(); format != nil {
		info.FormatName = format.GetFormatName()
		info.Bitrate = parseOptionalInt(format.GetBitRate())
	}

	for position, stream := range metadata.GetStreams() {
		if stream.GetCodecType() != audioCodecType {
			continue
		}

		audio := &AudioStream{
			Index:     stream.GetIndex(),
			CodecName: stream.GetCodecName(),
			Bitrate:   parseOptionalInt(stream.GetBitRate()),
		}
		if position < len(tracks.Streams) {
			audio.SampleRate = parseOptionalInt(tracks.Streams[position].SampleRate)
			audio.Channels = nonNegative(tracks.Streams[position].Channels)
		}

		info.Audio = audio
		break
	}

	return info
}

func nonNegative(v *int64) *int64 {
	if v == nil || *v < 0 {
		return nil
	}

	return v
}

// parseOptionalInt converts ffprobe's textual numeric fields, returning
// nil for anything which is empty, "N/A", negative or otherwise unparseable.
func parseOptionalInt(raw string) *int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || v < 0 {
		return nil
	}

	return &v
}

func probeContextError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrProbeTimeout
	}

	return ctx.Err()
}
