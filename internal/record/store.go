package record

import (
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/shikya/call-record-ingestor/internal/database"
	"github.com/shikya/call-record-ingestor/internal/media"
	"github.com/shikya/call-record-ingestor/internal/recording"
)

const table = "phone_records"

var (
	// ErrDuplicate is returned when an insert conflicts with a
	// record already ingested for the same recording.
	ErrDuplicate = errors.New("recording has already been ingested")

	columns = []string{
		"filename", "contact",
		"year", "month", "day",
		"hour", "minute", "second",
		"duration_seconds", "bitrate",
		"sample_rate", "channels",
		"file_size_bytes",
	}

	selectColumns = append(append([]string{"id"}, columns...), "created_at")
)

type (
	// PhoneRecord is the persisted form of one ingested recording; the
	// union of the key parsed from its filename and the audio attributes
	// scraped from its content.
	PhoneRecord struct {
		ID              int64      `db:"id"`
		Filename        string     `db:"filename"`
		Contact         string     `db:"contact"`
		Year            int        `db:"year"`
		Month           int        `db:"month"`
		Day             int        `db:"day"`
		Hour            int        `db:"hour"`
		Minute          int        `db:"minute"`
		Second          int        `db:"second"`
		DurationSeconds *float64   `db:"duration_seconds"`
		Bitrate         *int64     `db:"bitrate"`
		SampleRate      *int64     `db:"sample_rate"`
		Channels        *int64     `db:"channels"`
		FileSizeBytes   int64      `db:"file_size_bytes"`
		CreatedAt       *time.Time `db:"created_at"`
	}

	// StoreError wraps any failure of the underlying store which
	// is not a duplicate insert. These are treated as fatal.
	StoreError struct {
		Op  string
		Err error
	}

	// Filter restricts the records returned by List. Zero
	// values are ignored.
	Filter struct {
		Contact string
		Year    int
		Month   int
	}

	Store struct{}
)

func (e *StoreError) Error() string {
	return fmt.Sprintf("record store %s failed: %s", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// New combines a parsed key and scraped attributes in to a record
// ready for insertion.
func New(filename string, key recording.FilenameKey, attrs *media.AudioAttributes) *PhoneRecord {
	return &PhoneRecord{
		Filename:        filename,
		Contact:         key.Contact,
		Year:            key.Year,
		Month:           key.Month,
		Day:             key.Day,
		Hour:            key.Hour,
		Minute:          key.Minute,
		Second:          key.Second,
		DurationSeconds: attrs.DurationSeconds,
		Bitrate:         attrs.Bitrate,
		SampleRate:      attrs.SampleRate,
		Channels:        attrs.Channels,
		FileSizeBytes:   attrs.FileSizeBytes,
	}
}

// Key returns the recording key the record was created from.
func (rec *PhoneRecord) Key() recording.FilenameKey {
	return recording.FilenameKey{
		Contact: rec.Contact,
		Year:    rec.Year,
		Month:   rec.Month,
		Day:     rec.Day,
		Hour:    rec.Hour,
		Minute:  rec.Minute,
		Second:  rec.Second,
	}
}

func NewStore() *Store {
	return &Store{}
}

// Insert writes the record as a single auto-committed row, and
// populates its ID from the store. A conflict with the recording
// uniqueness index is reported as ErrDuplicate, any other failure
// as a *StoreError.
//
// CreatedAt is assigned by the store, and is only populated on
// records returned by List.
func (store *Store) Insert(db database.Queryable, rec *PhoneRecord) error {
	query, args, err := builder(db).
		Insert(table).
		Columns(columns...).
		Values(
			rec.Filename, rec.Contact,
			rec.Year, rec.Month, rec.Day,
			rec.Hour, rec.Minute, rec.Second,
			rec.DurationSeconds, rec.Bitrate,
			rec.SampleRate, rec.Channels,
			rec.FileSizeBytes,
		).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return &StoreError{Op: "insert", Err: err}
	}

	if err := db.QueryRowx(query, args...).Scan(&rec.ID); err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicate, rec.Filename)
		}

		return &StoreError{Op: "insert", Err: err}
	}

	return nil
}

// List returns the records matching the filter, ordered by the
// time of the recording and then by ID.
func (store *Store) List(db database.Queryable, filter Filter) ([]*PhoneRecord, error) {
	sel := builder(db).
		Select(selectColumns...).
		From(table).
		OrderBy("year", "month", "day", "hour", "minute", "second", "id")
	if filter.Contact != "" {
		sel = sel.Where(squirrel.Eq{"contact": filter.Contact})
	}
	if filter.Year != 0 {
		sel = sel.Where(squirrel.Eq{"year": filter.Year})
	}
	if filter.Month != 0 {
		sel = sel.Where(squirrel.Eq{"month": filter.Month})
	}

	query, args, err := sel.ToSql()
	if err != nil {
		return nil, &StoreError{Op: "list", Err: err}
	}

	var records []*PhoneRecord
	if err := db.Select(&records, query, args...); err != nil {
		return nil, &StoreError{Op: "list", Err: err}
	}

	return records, nil
}

// Count returns the number of records whose filename matches
// the one provided.
func (store *Store) Count(db database.Queryable, filename string) (int, error) {
	query, args, err := builder(db).
		Select("COUNT(*)").
		From(table).
		Where(squirrel.Eq{"filename": filename}).
		ToSql()
	if err != nil {
		return 0, &StoreError{Op: "count", Err: err}
	}

	var count int
	if err := db.Get(&count, query, args...); err != nil {
		return 0, &StoreError{Op: "count", Err: err}
	}

	return count, nil
}

func builder(db database.Queryable) squirrel.StatementBuilderType {
	if db.DriverName() == database.DialectPostgres {
		return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	}

	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)
}
