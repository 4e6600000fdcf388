package internal

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shikya/call-record-ingestor/internal/archive"
	"github.com/shikya/call-record-ingestor/internal/database"
	"github.com/shikya/call-record-ingestor/internal/export"
	"github.com/shikya/call-record-ingestor/internal/ingest"
	"github.com/shikya/call-record-ingestor/internal/media"
	"github.com/shikya/call-record-ingestor/internal/record"
	"github.com/shikya/call-record-ingestor/pkg/logger"
)

var log = logger.Get("Core")

type (
	IngestService interface {
		Run(context.Context) (*ingest.Summary, error)
		Watch(context.Context) error
	}

	// ingestorImpl is the top-level object for the ingestor, and is
	// responsible for initialising the logging sink, the store connection
	// and the ingestion service, and for tearing them down again.
	ingestorImpl struct {
		config    Config
		sessionID uuid.UUID
		db        database.Manager
		store     *dataOrchestrator
		closeLog  func() error
	}
)

// New constructs an ingestor using the resolved config provided. No
// resources are acquired until one of the entry points is called.
func New(config Config) *ingestorImpl {
	db := database.New()
	return &ingestorImpl{
		config:    config,
		sessionID: uuid.New(),
		db:        db,
		store:     newDataOrchestrator(db),
	}
}

// Ingest performs a single pass over the source root. The summary
// is returned even if the run was aborted by a fatal error.
func (ingestor *ingestorImpl) Ingest(ctx context.Context) (*ingest.Summary, error) {
	service, err := ingestor.start(ctx)
	if err != nil {
		return nil, err
	}
	defer ingestor.stop()

	return service.Run(ctx)
}

// Watch performs an initial pass over the source root, and then continues to
// ingest new recordings as they arrive until the context is cancelled.
func (ingestor *ingestorImpl) Watch(ctx context.Context) error {
	service, err := ingestor.start(ctx)
	if err != nil {
		return err
	}
	defer ingestor.stop()

	return service.Watch(ctx)
}

// Export writes the records matching the filter to a workbook
// at the path provided, returning the number of records written.
func (ingestor *ingestorImpl) Export(ctx context.Context, path string, filter record.Filter) (int, error) {
	if err := ingestor.open(ctx); err != nil {
		return 0, err
	}
	defer ingestor.stop()

	records, err := ingestor.store.ListRecords(filter)
	if err != nil {
		return 0, err
	}

	if err := export.WriteFile(path, records); err != nil {
		return 0, err
	}

	return len(records), nil
}

// open initialises the log sink and connects to the record store.
func (ingestor *ingestorImpl) open(ctx context.Context) error {
	level, err := logger.ParseLevel(ingestor.config.LogLevel)
	if err != nil {
		return err
	}
	logger.SetMinLoggingLevel(level.Level())

	closeLog, err := logger.SetOutputFile(ingestor.config.LogFile)
	if err != nil {
		return err
	}
	ingestor.closeLog = closeLog

	log.Emit(logger.NEW, "Phone record ingestor session %s started\n", ingestor.sessionID)
	log.Emit(logger.DEBUG, "Bootstrapping ingestor using config: %#v\n", ingestor.config.Redacted())

	log.Emit(logger.NEW, "Connecting to %s record store...\n", ingestor.config.Database.Driver)
	if err := ingestor.db.Connect(ctx, ingestor.config.Database); err != nil {
		log.Emit(logger.FATAL, "Failed to connect to record store: %s\n", err)
		ingestor.stop()
		return fmt.Errorf("failed to connect to record store: %w", err)
	}

	return nil
}

// start opens the ingestor resources, and constructs the
// ingestion service which uses them.
func (ingestor *ingestorImpl) start(ctx context.Context) (IngestService, error) {
	if err := ingestor.open(ctx); err != nil {
		return nil, err
	}

	service, err := ingestor.newIngestService()
	if err != nil {
		ingestor.stop()
		return nil, fmt.Errorf("failed to construct ingestion service: %w", err)
	}

	return service, nil
}

func (ingestor *ingestorImpl) newIngestService() (IngestService, error) {
	config := ingestor.config
	scraper := media.NewFfprobeScraper(config.Probe)
	if !config.Ingest.RelocateEnabled {
		log.Emit(logger.WARNING, "Relocation is disabled, recordings will remain in %s\n", config.Ingest.SourceRoot)
		return ingest.New(config.Ingest, scraper, ingestor.store, nil)
	}

	relocator, err := archive.New(config.Archive)
	if err != nil {
		return nil, err
	}

	log.Emit(logger.INFO, "Recordings will be archived (%s) to %s\n", relocator.Mode(), config.Archive.TargetRoot)
	return ingest.New(config.Ingest, scraper, ingestor.store, relocator)
}

func (ingestor *ingestorImpl) stop() {
	if err := ingestor.db.Close(); err != nil {
		log.Emit(logger.WARNING, "Failed to close record store: %s\n", err)
	}

	log.Emit(logger.STOP, "Phone record ingestor session %s complete\n", ingestor.sessionID)
	if ingestor.closeLog != nil {
		if err := ingestor.closeLog(); err != nil {
			log.Emit(logger.WARNING, "Failed to close log file: %s\n", err)
		}
		ingestor.closeLog = nil
	}
}
