package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shikya/call-record-ingestor/internal/archive"
	"github.com/shikya/call-record-ingestor/internal/media"
	"github.com/shikya/call-record-ingestor/internal/record"
	"github.com/shikya/call-record-ingestor/internal/recording"
	"github.com/shikya/call-record-ingestor/pkg/logger"
)

var log = logger.Get("IngestServ")

type (
	scraper interface {
		ScrapeFileForAudioAttributes(ctx context.Context, path string) (*media.AudioAttributes, error)
	}

	dataStore interface {
		SaveRecord(rec *record.PhoneRecord) error
	}

	relocator interface {
		Relocate(path string, key recording.FilenameKey) (string, error)
		Mode() archive.TransferMode
	}

	// ingestService is responsible for driving each recording found in
	// the source root through the pipeline. Each file is:
	// - Parsed by name to find the contact and timestamp of the call
	// - Run through a metadata scraper to find its audio attributes
	// - Inserted in to the record store
	// - Relocated in to the dated archive (if enabled)
	//
	// Files are processed strictly one at a time, in the order they
	// were discovered. A failure for a particular file never affects
	// the others, except for a failure of the record store itself
	// which aborts the run.
	ingestService struct {
		*sync.Mutex
		scraper   scraper
		dataStore dataStore
		relocator relocator
		parse     func(string) (recording.FilenameKey, error)

		config Config
		known  map[string]bool
	}
)

// New creates a new IngestService, using the provided config for
// subsequent calls to 'Run' and 'Watch'.
//
// The configs 'SourceRoot' is validated to be an existing directory. A
// relocator must be provided if relocation is enabled.
func New(config Config, scraper scraper, store dataStore, relocator relocator) (*ingestService, error) {
	if config.SourceRoot == "" {
		return nil, errors.New("ingestion source root must be provided")
	}
	if info, err := os.Stat(config.SourceRoot); err != nil {
		return nil, fmt.Errorf("ingestion source root '%s' could not be accessed: %w", config.SourceRoot, err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("ingestion source root '%s' is not a directory", config.SourceRoot)
	}
	if scraper == nil || store == nil {
		return nil, errors.New("ingestion requires both a metadata scraper and a record store")
	}
	if config.RelocateEnabled && relocator == nil {
		return nil, errors.New("relocation is enabled, but no relocator was provided")
	}

	parse := recording.Parse
	if config.StrictTimestamps {
		parse = recording.ParseStrict
	}

	return &ingestService{
		Mutex:     &sync.Mutex{},
		scraper:   scraper,
		dataStore: store,
		relocator: relocator,
		parse:     parse,
		config:    config,
		known:     make(map[string]bool),
	}, nil
}

// IngestOne drives the file at the path provided through the pipeline. The
// returned Outcome describes whether the file was persisted (and moved) or
// skipped, and why.
//
// An error is returned only for failures which must abort the run: a failure
// of the record store which was not a duplicate, or cancellation of
// the context provided.
func (service *ingestService) IngestOne(ctx context.Context, path string) (*Outcome, error) {
	name := filepath.Base(path)

	key, err := service.parse(name)
	if err != nil {
		log.Warnf("Filename regex failed: %s (%s)\n", path, err)
		return skipped(path, ParseFailure, err), nil
	}

	attrs, err := service.scraper.ScrapeFileForAudioAttributes(ctx, path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("ingestion of %s interrupted: %w", path, ctxErr)
		}
		if errors.Is(err, media.ErrNoAudioTrack) {
			log.Errorf("File %s contains no audio track, skipping\n", path)
		} else {
			log.Errorf("Metadata extraction failed for %s: %s\n", path, err)
		}
		return skipped(path, MetadataFailure, err), nil
	}

	rec := record.New(name, key, attrs)
	if err := service.dataStore.SaveRecord(rec); err != nil {
		if errors.Is(err, record.ErrDuplicate) {
			log.Warnf("Recording %s has already been ingested, skipping\n", path)
			return skipped(path, Duplicate, err), nil
		}

		log.Emit(logger.FATAL, "Failed to insert record for %s: %s\n", path, err)
		return nil, fmt.Errorf("failed to insert record for %s: %w", path, err)
	}
	log.Successf("Inserted DB record %d for %s\n", rec.ID, name)

	outcome := &Outcome{Path: path, Kind: Inserted, Record: rec}
	if !service.config.RelocateEnabled {
		return outcome, nil
	}

	destination, err := service.relocator.Relocate(path, key)
	if err != nil {
		log.Errorf("Failed to %s %s in to archive, record %d remains with the file at its original location: %s\n", service.relocator.Mode(), path, rec.ID, err)
		outcome.RelocationErr = err
		return outcome, nil
	}

	outcome.Destination = destination
	log.Infof("File %s (%s) to %s\n", name, service.relocator.Mode(), destination)
	return outcome, nil
}

// Run performs a single pass over the source root, ingesting every
// recording discovered. The summary returned is always populated with
// the outcomes seen so far, even if the run is aborted.
//
// Note: This function will take ownership of the mutex, and releases it when returning
func (service *ingestService) Run(ctx context.Context) (*Summary, error) {
	service.Lock()
	defer service.Unlock()

	summary := &Summary{RunID: uuid.New(), StartedAt: time.Now()}
	log.Emit(logger.NEW, "Starting ingestion run %s over %s\n", summary.RunID, service.config.SourceRoot)

	paths, err := Discover(service.config.SourceRoot, ScanOptions{
		Exclude:       service.config.Exclude,
		MinModTimeAge: service.config.RequiredModTimeAgeDuration(),
		Known:         service.known,
	})
	if err != nil {
		summary.Aborted = true
		summary.FinishedAt = time.Now()
		log.Emit(logger.FATAL, "File system scan failed: %s\n", err)
		return summary, err
	}

	summary.Discovered = len(paths)
	log.Infof("Discovered %d recording(s) to ingest\n", len(paths))

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return service.abort(summary, err)
		}

		outcome, err := service.IngestOne(ctx, path)
		if err != nil {
			return service.abort(summary, err)
		}

		service.known[path] = true
		summary.Add(outcome)
	}

	summary.FinishedAt = time.Now()
	log.Emit(logger.SUCCESS, "Ingestion run %s complete: %s\n", summary.RunID, summary)
	return summary, nil
}

func (service *ingestService) abort(summary *Summary, err error) (*Summary, error) {
	summary.Aborted = true
	summary.FinishedAt = time.Now()
	log.Emit(logger.STOP, "Ingestion run %s aborted: %s\n", summary.RunID, summary)
	return summary, err
}
