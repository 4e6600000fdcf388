// Package recording understands the naming convention used by the
// phone's call recorder, which encodes the remote contact and the
// moment the call started in to the name of each file:
//
//	<contact>-<YYYY><MM><DD><HH><MM><SS>.aac
package recording

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const Extension = ".aac"

var (
	ErrFilenameMismatch = errors.New("filename does not match recording pattern")
	ErrInvalidTimestamp = errors.New("filename timestamp is not a valid calendar time")

	filenameMatcher = regexp.MustCompile(`^(?P<contact>.*)-(?P<year>\d{4})(?P<month>\d{2})(?P<day>\d{2})(?P<hour>\d{2})(?P<minute>\d{2})(?P<seconds>\d{2})\.(?i:aac)$`)
)

type (
	// FilenameKey is the structured form of a recordings file name.
	FilenameKey struct {
		Contact string
		Year    int
		Month   int
		Day     int
		Hour    int
		Minute  int
		Second  int
	}

	// ParseFailure is returned when a name cannot be parsed.
	ParseFailure struct {
		Name string
		Err  error
	}
)

func (f *ParseFailure) Error() string {
	return fmt.Sprintf("cannot parse '%s': %s", f.Name, f.Err)
}

func (f *ParseFailure) Unwrap() error { return f.Err }

// Parse matches the base name provided against the recording
// pattern. The match is anchored at both ends, and no partial
// recovery is attempted. Numeric fields are not range checked
// beyond their fixed digit widths, so a day of "99" is accepted.
func Parse(name string) (FilenameKey, error) {
	groups := filenameMatcher.FindStringSubmatch(name)
	if groups == nil {
		return FilenameKey{}, &ParseFailure{Name: name, Err: ErrFilenameMismatch}
	}

	return FilenameKey{
		Contact: groups[filenameMatcher.SubexpIndex("contact")],
		Year:    mustAtoi(groups[filenameMatcher.SubexpIndex("year")]),
		Month:   mustAtoi(groups[filenameMatcher.SubexpIndex("month")]),
		Day:     mustAtoi(groups[filenameMatcher.SubexpIndex("day")]),
		Hour:    mustAtoi(groups[filenameMatcher.SubexpIndex("hour")]),
		Minute:  mustAtoi(groups[filenameMatcher.SubexpIndex("minute")]),
		Second:  mustAtoi(groups[filenameMatcher.SubexpIndex("seconds")]),
	}, nil
}

// ParseStrict behaves like Parse, but additionally rejects keys
// whose timestamp does not describe a real calendar moment (e.g. a
// month of "00" or a day of "32").
func ParseStrict(name string) (FilenameKey, error) {
	key, err := Parse(name)
	if err != nil {
		return key, err
	}

	if !key.Valid() {
		return FilenameKey{}, &ParseFailure{Name: name, Err: ErrInvalidTimestamp}
	}

	return key, nil
}

// Valid reports whether the timestamp fields of the key form a
// real calendar date and time of day.
func (key FilenameKey) Valid() bool {
	if key.Month < 1 || key.Month > 12 || key.Day < 1 ||
		key.Hour > 23 || key.Minute > 59 || key.Second > 59 {
		return false
	}

	t := time.Date(key.Year, time.Month(key.Month), key.Day, 0, 0, 0, 0, time.UTC)
	return t.Day() == key.Day
}

// Time returns the moment this recording started, interpreted
// in the location provided. The result is only meaningful
// when the key is Valid.
func (key FilenameKey) Time(loc *time.Location) time.Time {
	return time.Date(key.Year, time.Month(key.Month), key.Day, key.Hour, key.Minute, key.Second, 0, loc)
}

// Filename renders the key back in to the recorder's naming scheme,
// using the canonical lower-case extension.
func (key FilenameKey) Filename() string {
	return fmt.Sprintf("%s-%04d%02d%02d%02d%02d%02d%s",
		key.Contact, key.Year, key.Month, key.Day, key.Hour, key.Minute, key.Second, Extension)
}

func (key FilenameKey) String() string {
	return fmt.Sprintf("FilenameKey{contact=%s at=%04d-%02d-%02dT%02d:%02d:%02d}",
		key.Contact, key.Year, key.Month, key.Day, key.Hour, key.Minute, key.Second)
}

// mustAtoi is only used on groups the matcher has already
// constrained to ASCII digits.
func mustAtoi(input string) int {
	v, err := strconv.Atoi(input)
	if err != nil {
		panic(fmt.Sprintf("digit group '%s' failed integer conversion: %s", input, err))
	}

	return v
}
