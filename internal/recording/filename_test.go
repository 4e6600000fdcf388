package recording_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shikya/call-record-ingestor/internal/recording"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Example(t *testing.T) {
	key, err := recording.Parse("Alice-20230714153045.aac")
	require.NoError(t, err)
	assert.Equal(t, recording.FilenameKey{
		Contact: "Alice",
		Year:    2023,
		Month:   7,
		Day:     14,
		Hour:    15,
		Minute:  30,
		Second:  45,
	}, key)
}

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		contact  string
	}{
		{"uppercase extension", "Alice-20230714153045.AAC", "Alice"},
		{"mixed case extension", "Alice-20230714153045.AaC", "Alice"},
		{"contact with dashes", "Bob-Smith-Work-20230714153045.aac", "Bob-Smith-Work"},
		{"phone number contact", "+64 21 555 0199-20230714153045.aac", "+64 21 555 0199"},
		{"empty contact", "-20230714153045.aac", ""},
		{"contact ending in digits", "Alice-2-20230714153045.aac", "Alice-2"},
		{"unicode contact", "Zoë-20230714153045.aac", "Zoë"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			key, err := recording.Parse(test.filename)
			require.NoError(t, err)
			assert.Equal(t, test.contact, key.Contact)
			assert.Equal(t, 2023, key.Year)
			assert.Equal(t, 7, key.Month)
			assert.Equal(t, 14, key.Day)
			assert.Equal(t, 15, key.Hour)
			assert.Equal(t, 30, key.Minute)
			assert.Equal(t, 45, key.Second)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		filename string
	}{
		{"too few digits", "Alice-2023071415304.aac"},
		{"too many digits", "Alice-202307141530455.aac"},
		{"missing extension", "Alice-20230714153045"},
		{"wrong extension", "Alice-20230714153045.mp3"},
		{"extra suffix", "Alice-20230714153045.aac.bak"},
		{"trailing characters before extension", "Alice-20230714153045x.aac"},
		{"missing dash", "Alice20230714153045.aac"},
		{"non digit timestamp", "Alice-2023O714153045.aac"},
		{"non ascii digits", "Alice-٢٠٢٣0714153045.aac"},
		{"empty", ""},
		{"trailing newline", "Alice-20230714153045.aac\n"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			key, err := recording.Parse(test.filename)
			require.Error(t, err)
			assert.Equal(t, recording.FilenameKey{}, key)

			var failure *recording.ParseFailure
			require.True(t, errors.As(err, &failure))
			assert.Equal(t, test.filename, failure.Name)
			assert.ErrorIs(t, err, recording.ErrFilenameMismatch)
		})
	}
}

func TestParse_RoundTrip(t *testing.T) {
	keys := []recording.FilenameKey{
		{Contact: "Alice", Year: 2023, Month: 7, Day: 14, Hour: 15, Minute: 30, Second: 45},
		{Contact: "Mum-Mobile", Year: 1999, Month: 1, Day: 1, Hour: 0, Minute: 0, Second: 0},
		{Contact: "0800 838 383", Year: 2031, Month: 12, Day: 31, Hour: 23, Minute: 59, Second: 59},
		{Contact: "", Year: 0, Month: 0, Day: 0, Hour: 0, Minute: 0, Second: 0},
		{Contact: "x", Year: 9999, Month: 99, Day: 99, Hour: 99, Minute: 99, Second: 99},
	}

	for _, key := range keys {
		parsed, err := recording.Parse(key.Filename())
		require.NoError(t, err, "failed to parse %s", key.Filename())
		assert.Equal(t, key, parsed)
	}
}

func TestParse_AcceptsOutOfRangeFields(t *testing.T) {
	key, err := recording.Parse("Alice-20239999999999.aac")
	require.NoError(t, err)
	assert.Equal(t, 99, key.Month)
	assert.Equal(t, 99, key.Day)
	assert.False(t, key.Valid())
}

func TestParseStrict(t *testing.T) {
	_, err := recording.ParseStrict("Alice-20230714153045.aac")
	assert.NoError(t, err)

	for _, name := range []string{
		"Alice-20230014153045.aac", // month 00
		"Alice-20231314153045.aac", // month 13
		"Alice-20230732153045.aac", // day 32
		"Alice-20230229153045.aac", // not a leap year
		"Alice-20230714243045.aac", // hour 24
		"Alice-20230714156045.aac", // minute 60
	} {
		_, err := recording.ParseStrict(name)
		assert.ErrorIs(t, err, recording.ErrInvalidTimestamp, name)
	}

	_, err = recording.ParseStrict("Alice-20240229153045.aac")
	assert.NoError(t, err, "leap day should be accepted")

	_, err = recording.ParseStrict("nope.aac")
	assert.ErrorIs(t, err, recording.ErrFilenameMismatch)
}

func TestFilenameKey_Time(t *testing.T) {
	key := recording.FilenameKey{Contact: "Alice", Year: 2023, Month: 7, Day: 14, Hour: 15, Minute: 30, Second: 45}
	assert.Equal(t, time.Date(2023, time.July, 14, 15, 30, 45, 0, time.UTC), key.Time(time.UTC))
}
