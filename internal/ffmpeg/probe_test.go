package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeContainerOutput is what ffprobe reports for a full probe of a
// recording with embedded cover art ahead of the audio stream.
const fakeContainerOutput = `{
	"streams": [
		{"index": 0, "codec_type": "video", "codec_name": "mjpeg", "bit_rate": "N/A"},
		{"index": 1, "codec_type": "audio", "codec_name": "aac", "bit_rate": "64000", "sample_rate": "44100", "channels": 1, "duration": "12.480000"}
	],
	"format": {"format_name": "aac", "duration": "12.500000", "bit_rate": "64512"}
}`

// fakeStreamOutput is what ffprobe reports for the same recording
// once '-select_streams a:0' narrows it to the audio stream.
const fakeStreamOutput = `{
	"streams": [
		{"codec_type": "audio", "sample_rate": "44100", "channels": 1, "duration": "12.480000"}
	],
	"format": {"duration": "12.500000"}
}`

// fakeFfprobe writes an executable shell script which behaves
// like ffprobe by printing the body provided.
func fakeFfprobe(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffprobe scripts require a POSIX shell")
	}

	path := filepath.Join(t.TempDir(), "ffprobe")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func printing(output string) string {
	return "cat <<'EOF'\n" + output + "\nEOF"
}

// probing prints the stream output when ffprobe is asked to select
// a stream, and the container output otherwise.
func probing(container, stream string) string {
	return "case \"$*\" in\n*-select_streams*)\n" + printing(stream) + "\n;;\n*)\n" + printing(container) + "\n;;\nesac"
}

func TestParseStreamProbeOutput(t *testing.T) {
	info, err := parseStreamProbeOutput([]byte(`{"streams":[{"duration":"3.25","sample_rate":"8000","channels":2}],"format":{"duration":"3.30"}}`))
	require.NoError(t, err)
	assert.InDelta(t, 3.25, *info.Duration, 0.0001)
	assert.EqualValues(t, 8000, *info.SampleRate)
	assert.EqualValues(t, 2, *info.Channels)
}

func TestParseStreamProbeOutput_IgnoresNonAudioStreams(t *testing.T) {
	info, err := parseStreamProbeOutput([]byte(`{"streams":[{"codec_type":"video"},{"codec_type":"audio","duration":"4.5","sample_rate":"16000","channels":1}],"format":{"duration":"5"}}`))
	require.NoError(t, err)
	assert.InDelta(t, 4.5, *info.Duration, 0.0001)
	assert.EqualValues(t, 16000, *info.SampleRate)
	assert.EqualValues(t, 1, *info.Channels)
}

func TestParseStreamProbeOutput_FallsBackToFormatDuration(t *testing.T) {
	info, err := parseStreamProbeOutput([]byte(`{"streams":[{"duration":"N/A"}],"format":{"duration":"7.5"}}`))
	require.NoError(t, err)
	assert.InDelta(t, 7.5, *info.Duration, 0.0001)
	assert.Nil(t, info.SampleRate, "missing sample rate should be absent, not zero")
	assert.Nil(t, info.Channels, "missing channels should be absent, not zero")
}

func TestParseStreamProbeOutput_Failures(t *testing.T) {
	for name, raw := range map[string]string{
		"empty":           "",
		"whitespace":      "  \n",
		"not json":        "12.5",
		"no duration":     `{"streams":[],"format":{}}`,
		"non numeric":     `{"streams":[{"duration":"abc"}],"format":{}}`,
		"negative":        `{"streams":[{"duration":"-1"}],"format":{}}`,
		"format only N/A": `{"streams":[],"format":{"duration":"N/A"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := parseStreamProbeOutput([]byte(raw))
			assert.ErrorIs(t, err, ErrProbeFailed)
		})
	}
}

func TestProbeAudioStream(t *testing.T) {
	bin := fakeFfprobe(t, probing(fakeContainerOutput, fakeStreamOutput))
	prober := NewProber(Config{FfprobeBinPath: bin, ProbeTimeout: 5 * time.Second})

	info, err := prober.ProbeAudioStream(context.Background(), "/recordings/Alice-20230714153045.aac")
	require.NoError(t, err)
	require.NotNil(t, info.Duration)
	require.NotNil(t, info.SampleRate)
	require.NotNil(t, info.Channels)
	assert.InDelta(t, 12.48, *info.Duration, 0.0001)
	assert.EqualValues(t, 44100, *info.SampleRate)
	assert.EqualValues(t, 1, *info.Channels)
}

func TestProbeAudioStream_ProcessFailure(t *testing.T) {
	bin := fakeFfprobe(t, "echo 'Invalid data found when processing input' >&2\nexit 1")
	prober := NewProber(Config{FfprobeBinPath: bin, ProbeTimeout: 5 * time.Second})

	_, err := prober.ProbeAudioStream(context.Background(), "broken.aac")
	assert.ErrorIs(t, err, ErrProbeFailed)
	assert.ErrorContains(t, err, "Invalid data found")
}

func TestProbeAudioStream_Timeout(t *testing.T) {
	bin := fakeFfprobe(t, "exec sleep 10")
	prober := NewProber(Config{FfprobeBinPath: bin, ProbeTimeout: 100 * time.Millisecond})

	start := time.Now()
	_, err := prober.ProbeAudioStream(context.Background(), "hung.aac")
	assert.ErrorIs(t, err, ErrProbeTimeout)
	assert.Less(t, time.Since(start), 5*time.Second, "hung ffprobe should be killed once the timeout expires")
}

func TestProbeContainer(t *testing.T) {
	bin := fakeFfprobe(t, probing(fakeContainerOutput, fakeStreamOutput))
	prober := NewProber(Config{FfprobeBinPath: bin, ProbeTimeout: 5 * time.Second})

	info, err := prober.ProbeContainer(context.Background(), "Alice-20230714153045.aac")
	require.NoError(t, err)
	assert.Equal(t, "aac", info.FormatName)
	require.NotNil(t, info.Bitrate)
	assert.EqualValues(t, 64512, *info.Bitrate)

	require.NotNil(t, info.Audio, "expected the audio stream to be classified")
	assert.Equal(t, 1, info.Audio.Index)
	assert.Equal(t, "aac", info.Audio.CodecName)
	require.NotNil(t, info.Audio.Bitrate)
	require.NotNil(t, info.Audio.SampleRate)
	require.NotNil(t, info.Audio.Channels)
	assert.EqualValues(t, 64000, *info.Audio.Bitrate)
	assert.EqualValues(t, 44100, *info.Audio.SampleRate)
	assert.EqualValues(t, 1, *info.Audio.Channels)
}

func TestProbeContainer_ProcessFailure(t *testing.T) {
	bin := fakeFfprobe(t, "echo 'No such file or directory' >&2\nexit 1")
	prober := NewProber(Config{FfprobeBinPath: bin, ProbeTimeout: 5 * time.Second})

	_, err := prober.ProbeContainer(context.Background(), "missing.aac")
	assert.ErrorIs(t, err, ErrProbeFailed)
	assert.ErrorContains(t, err, "No such file")
}

func TestProbeContainer_MalformedOutput(t *testing.T) {
	bin := fakeFfprobe(t, "echo 'not json'")
	prober := NewProber(Config{FfprobeBinPath: bin, ProbeTimeout: 5 * time.Second})

	_, err := prober.ProbeContainer(context.Background(), "garbled.aac")
	assert.ErrorIs(t, err, ErrProbeFailed)
}

func TestProbeContainer_NoAudioStream(t *testing.T) {
	bin := fakeFfprobe(t, printing(`{"streams":[{"index":0,"codec_type":"video"}],"format":{"format_name":"mjpeg"}}`))
	prober := NewProber(Config{FfprobeBinPath: bin, ProbeTimeout: 5 * time.Second})

	info, err := prober.ProbeContainer(context.Background(), "cover.aac")
	require.NoError(t, err)
	assert.Nil(t, info.Audio)
}

func TestProbeContainer_Timeout(t *testing.T) {
	bin := fakeFfprobe(t, "exec sleep 10")
	prober := NewProber(Config{FfprobeBinPath: bin, ProbeTimeout: 100 * time.Millisecond})

	start := time.Now()
	_, err := prober.ProbeContainer(context.Background(), "hung.aac")
	assert.ErrorIs(t, err, ErrProbeTimeout)
	assert.Less(t, time.Since(start), 5*time.Second, "hung ffprobe should be killed once the timeout expires")
}

func TestProbeContainer_TimeoutKillsFfprobe(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow ffprobe timeout test in short mode")
	}

	marker := filepath.Join(t.TempDir(), "finished")
	bin := fakeFfprobe(t, "sleep 2\ntouch '"+marker+"'")
	prober := NewProber(Config{FfprobeBinPath: bin, ProbeTimeout: 100 * time.Millisecond})

	_, err := prober.ProbeContainer(context.Background(), "hung.aac")
	require.ErrorIs(t, err, ErrProbeTimeout)

	time.Sleep(3 * time.Second)
	assert.NoFileExists(t, marker, "ffprobe kept running after the container probe timed out")
}
