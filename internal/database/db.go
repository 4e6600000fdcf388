package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/shikya/call-record-ingestor/pkg/logger"
	sqldblogger "github.com/simukti/sqldb-logger"
)

const (
	DialectSqlite   = "sqlite3"
	DialectPostgres = "postgres"

	migrationsRoot = "migrations"

	// The migration which introduces the recording uniqueness index. Stores
	// migrated only to the version before this one accept duplicate rows.
	BaseSchemaVersion = 1

	pgUniqueViolation = "23505"
)

var (
	//go:embed migrations/*/*.sql
	migrations embed.FS

	dbLogger = logger.Get("DB")

	ErrNotConnected = errors.New("DB manager has not yet connected")
)

type (
	// DatabaseConfig is a subset of the configuration focusing solely
	// on the record store. The DSN is the store location, which for the
	// default sqlite3 driver is simply a path to the database file.
	DatabaseConfig struct {
		Driver         string        `yaml:"driver" env:"DB_DRIVER" env-default:"sqlite3" validate:"oneof=sqlite3 postgres"`
		DSN            string        `yaml:"dsn" env:"DB_DSN" env-default:"phone_records.db" validate:"required"`
		ConnectTimeout time.Duration `yaml:"connect_timeout" env:"DB_CONNECT_TIMEOUT" env-default:"15s"`
	}

	// Queryable is satisfied by both *sqlx.DB and *sqlx.Tx, allowing
	// stores to be used inside or outside of a transaction.
	Queryable interface {
		sqlx.Ext
		Get(dest any, query string, args ...any) error
		Select(dest any, query string, args ...any) error
	}

	SqlLogger struct {
		logger logger.Logger
	}

	Manager interface {
		Connect(context.Context, DatabaseConfig) error
		GetSqlxDb() *sqlx.DB
		Dialect() string
		Close() error
	}

	manager struct {
		rawDb   *sql.DB
		db      *sqlx.DB
		dialect string
	}
)

func New() *manager {
	return &manager{}
}

// Connect opens the store described by the config, waits for it to
// become reachable and then brings the schema up to date. The
// connection is limited to a single underlying connection as the
// ingestor only ever uses it sequentially.
func (db *manager) Connect(ctx context.Context, config DatabaseConfig) error {
	if err := db.Open(ctx, config); err != nil {
		return err
	}

	if err := db.ExecuteMigrations(); err != nil {
		return err
	}

	dbLogger.Emit(logger.SUCCESS, "Database connection complete!\n")
	return nil
}

// Open opens and pings the store, without performing migrations.
func (db *manager) Open(ctx context.Context, config DatabaseConfig) error {
	if db.db != nil {
		return errors.New("DB manager is already connected")
	}

	dsn := config.DSN
	switch config.Driver {
	case DialectSqlite:
		dsn = sqliteDSN(dsn)
	case DialectPostgres:
	default:
		return fmt.Errorf("unsupported database driver '%s'", config.Driver)
	}

	raw, err := sql.Open(config.Driver, dsn)
	if err != nil {
		return fmt.Errorf("failed to open %s connection: %w", config.Driver, err)
	}

	driver := raw.Driver()
	_ = raw.Close()

	raw = sqldblogger.OpenDriver(dsn, driver, &SqlLogger{dbLogger}, sqldblogger.WithMinimumLevel(sqldblogger.LevelDebug))
	raw.SetMaxOpenConns(1)

	timeout := config.ConnectTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxElapsedTime = timeout

	attempt := 0
	ping := func() error {
		attempt++
		return raw.PingContext(ctx)
	}
	notify := func(err error, wait time.Duration) {
		dbLogger.Emit(logger.WARNING, "Attempt %d to reach database failed (%s)... Retrying in %s\n", attempt, err, wait.Round(time.Millisecond))
	}

	if err := backoff.RetryNotify(ping, backoff.WithContext(policy, ctx), notify); err != nil {
		_ = raw.Close()
		dbLogger.Emit(logger.ERROR, "All attempts FAILED!\n")
		return fmt.Errorf("database unreachable: %w", err)
	}

	db.rawDb = raw
	db.db = sqlx.NewDb(raw, config.Driver)
	db.dialect = config.Driver
	return nil
}

// ExecuteMigrations uses the comp-time embedded SQL migrations for the
// connected dialect (found in the 'migrations' dir in this package)
// and runs them against the current DB instance.
func (db *manager) ExecuteMigrations() error {
	return db.migrate(func(raw *sql.DB, dir string) error { return goose.Up(raw, dir) })
}

// MigrateTo brings the schema up to (and including) the version
// provided, and no further.
func (db *manager) MigrateTo(version int64) error {
	return db.migrate(func(raw *sql.DB, dir string) error { return goose.UpTo(raw, dir, version) })
}

func (db *manager) migrate(run func(*sql.DB, string) error) error {
	if db.rawDb == nil {
		return fmt.Errorf("cannot execute migrations: %w", ErrNotConnected)
	}

	goose.SetBaseFS(migrations)
	goose.SetLogger(dbLogger)
	if err := goose.SetDialect(db.dialect); err != nil {
		return fmt.Errorf("failed to set dialect for DB migration: %w", err)
	}

	dir := path.Join(migrationsRoot, db.dialect)
	dbLogger.Emit(logger.INFO, "Checking for pending DB migrations...\n")
	if err := run(db.rawDb, dir); err != nil {
		return fmt.Errorf("failed to migrate DB: %w", err)
	}

	dbLogger.Emit(logger.SUCCESS, "DB Goose migration complete!\n")
	return nil
}

// GetSqlxDb returns the sqlx database connection if
// one has been opened using 'Connect'. Otherwise, nil is returned
func (db *manager) GetSqlxDb() *sqlx.DB {
	return db.db
}

func (db *manager) Dialect() string { return db.dialect }

func (db *manager) Close() error {
	if db.db == nil {
		return nil
	}

	err := db.db.Close()
	db.db, db.rawDb = nil, nil
	return err
}

func (l *SqlLogger) Log(_ context.Context, level sqldblogger.Level, msg string, data map[string]any) {
	template := "%s - %v\n"
	switch level {
	case sqldblogger.LevelTrace:
		l.logger.Verbosef(template, msg, data)
	case sqldblogger.LevelDebug, sqldblogger.LevelInfo:
		duration := data["duration"]
		if query, ok := data["query"]; ok {
			l.logger.Debugf("%s [%vms] -- %s\n", msg, duration, query)
		} else {
			l.logger.Debugf("%s [%vms]\n", msg, duration)
		}
	case sqldblogger.LevelError:
		l.logger.Warnf(template, msg, data)
	}
}

// IsUniqueViolation reports whether the error provided was caused by
// an insert conflicting with a unique index, for either supported driver.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	return false
}

// sqliteDSN enables WAL journalling and a busy timeout on the
// provided sqlite DSN, unless the DSN already carries options.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "?") {
		return dsn
	}

	return dsn + "?_journal_mode=WAL&_busy_timeout=5000"
}
