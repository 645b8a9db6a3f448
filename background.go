package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// This is our interface, allowing us to enable proper testing
type BackgroundRefresher interface {
	refreshInventory(ctx context.Context) (int, error)
}

const (
	minBackoffDuration = 10 * time.Second
	maxBackoffDuration = time.Hour
)

// Start our background tasks in a thread
func StartBackgroundTasks(ctx context.Context, app BackgroundRefresher) {
	go runBackgroundLoop(ctx, app, refreshInterval, minBackoffDuration, maxBackoffDuration)
}

// runBackgroundLoop refreshes until ctx is done, backing off exponentially
// between failed attempts.
func runBackgroundLoop(ctx context.Context, app BackgroundRefresher, interval func() time.Duration, minBackoff, maxBackoff time.Duration) {
	backoffDuration := minBackoff

	for {
		select {
		case <-ctx.Done():
			log.Infoln("Background tasks shutting down")
			return
		default: // needed to make this non-blocking
		}

		queued, err := app.refreshInventory(ctx)

		wait := interval()
		if err != nil {
			log.Errorf("Error in background refresh: %v", err)
			wait = backoffDuration

			// Exponential backoff logic
			backoffDuration *= 2
			if backoffDuration > maxBackoff {
				log.Warnf("Max backoff duration reached. Using %v", maxBackoff)
				backoffDuration = maxBackoff
			}
		} else {
			// Reset backoff when refresh succeeds
			backoffDuration = minBackoff
			log.Debugf("Background refresh done, %d downloads queued", queued)
		}

		select {
		case <-ctx.Done():
			log.Infoln("Background tasks shutting down")
			return
		case <-time.After(wait):
		}
	}
}

// refreshInventory reloads the account from Papertrail, stores a snapshot
// and, when enabled, queues downloads of archives not yet on disk. It
// returns the number of queued downloads.
func (app *App) refreshInventory(ctx context.Context) (int, error) {
	app.refreshMu.Lock()
	defer app.refreshMu.Unlock()

	if err := app.Papertrail.Load(ctx); err != nil {
		return 0, fmt.Errorf("error loading inventory: %w", err)
	}

	s := currentSettings()
	if err := app.storeSnapshot(s.SnapshotRetention); err != nil {
		return 0, fmt.Errorf("error storing snapshot: %w", err)
	}

	if !s.AutoDownload {
		return 0, nil
	}
	return app.queueMissingArchives()
}

func (app *App) storeSnapshot(keep int) error {
	data, err := app.Papertrail.MarshalSnapshot()
	if err != nil {
		return err
	}
	return SaveSnapshot(app.Database, &InventorySnapshot{
		Data:         string(data),
		Archives:     app.Papertrail.Archives.Len(),
		Systems:      app.Papertrail.Systems.Len(),
		Groups:       app.Papertrail.Groups.Len(),
		Destinations: app.Papertrail.Destinations.Len(),
	}, keep)
}

// queueMissingArchives queues every archive without a verified download.
func (app *App) queueMissingArchives() (int, error) {
	downloaded, err := DownloadedFileNames(app.Database)
	if err != nil {
		return 0, fmt.Errorf("error reading download history: %w", err)
	}

	missing := app.Papertrail.Archives.Missing(func(fileName string) bool {
		_, ok := downloaded[fileName]
		return ok
	})
	if len(missing) == 0 {
		return 0, nil
	}

	var errs []error
	queued := 0
	for _, archive := range missing {
		if _, active := jobStore.activeJob(archive.FileName); active {
			continue
		}
		if _, err := enqueueDownload(app, archive.FileName, false); err != nil {
			errs = append(errs, fmt.Errorf("archive %s: %w", archive.FileName, err))
			if errors.Is(err, errQueueFull) {
				break
			}
			continue
		}
		queued++
	}

	log.WithFields(logrus.Fields{
		"missing": len(missing),
		"queued":  queued,
	}).Info("Queued archive downloads")

	if len(errs) > 0 {
		return queued, errors.Join(errs...)
	}
	return queued, nil
}
