package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rjeczalik/notify"
)

// Bursts of file system events (e.g. a device syncing many recordings at
// once) are coalesced in to a single run once they settle.
const watchSettleDelay = 2 * time.Second

// Watch is the long-running entry point of this service. It performs an
// initial run, and then listens to the OS file system, performing a new run
// whenever a change beneath the source root settles. A run is also
// forced on a regular interval to protect against the watcher failing.
//
// To stop watching, the calling code should cancel the context provided. An
// error is returned only if a run is aborted by a fatal error.
func (service *ingestService) Watch(ctx context.Context) error {
	fsNotifyChannel := make(chan notify.EventInfo, 64)
	recursive := filepath.Join(service.config.SourceRoot, "...")
	if err := notify.Watch(recursive, fsNotifyChannel, notify.Create, notify.Rename, notify.Write); err != nil {
		return fmt.Errorf("failed to watch source root '%s': %w", service.config.SourceRoot, err)
	}
	defer notify.Stop(fsNotifyChannel)

	forceSync := time.NewTicker(service.config.ForceSyncDuration())
	defer forceSync.Stop()

	run := func() error {
		_, err := service.Run(ctx)
		if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			return nil
		}

		return err
	}

	if err := run(); err != nil {
		return err
	}

	var settled <-chan time.Time
	for {
		select {
		case ev := <-fsNotifyChannel:
			log.Verbosef("File system event %s for %s\n", ev.Event(), ev.Path())
			settled = time.After(watchSettleDelay)
		case <-settled:
			settled = nil
			if err := run(); err != nil {
				return err
			}
		case <-forceSync.C:
			log.Debugf("Performing forced sync of %s\n", service.config.SourceRoot)
			if err := run(); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}
