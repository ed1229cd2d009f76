package uploading

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ChIIChI1230/screenshot/ccc/logging"
	"github.com/ChIIChI1230/screenshot/client/capture"
	"github.com/ChIIChI1230/screenshot/client/storage"
)

// cleanupInterval is how often the background eviction pass runs, independent
// of the capture cadence.
const cleanupInterval = 10 * time.Minute

// Settings is the per-run configuration snapshot of the Uploader. It is never
// mutated; SetSettings swaps in a new value that takes effect on the next
// cycle.
type Settings struct {
	Interval      time.Duration // capture cadence
	SweepInterval time.Duration // retry sweep cadence
	Capture       capture.Settings
	SaveLocalCopy bool
	OutputDir     string // local copy directory, used when SaveLocalCopy is set
	Source        string // source identifier sent with every upload
}

// Uploader owns the capture-encode-send loop and the retry sweep. Failed
// uploads are buffered in the local store and replayed once the server is
// reachable again.
type Uploader struct {
	capturer capture.Capturer
	store    *storage.LocalStore
	client   ServerClient
	logger   logging.Logger

	settingsMu sync.RWMutex
	settings   Settings

	// inFlight serializes capture/send cycles: at most one may run at a time.
	inFlight sync.Mutex
	// sweepMu serializes retry sweeps.
	sweepMu     sync.Mutex
	retryCounts map[string]int

	mu        sync.Mutex
	isRunning bool
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewUploader creates an Uploader with injected dependencies.
func NewUploader(capturer capture.Capturer, store *storage.LocalStore, client ServerClient, settings Settings, logger logging.Logger) *Uploader {
	if logger == nil {
		logger = logging.NopLogger
	}

	return &Uploader{
		capturer:    capturer,
		store:       store,
		client:      client,
		logger:      logger,
		settings:    settings,
		retryCounts: make(map[string]int),
	}
}

// Settings returns the current configuration snapshot.
func (u *Uploader) Settings() Settings {
	u.settingsMu.RLock()
	defer u.settingsMu.RUnlock()
	return u.settings
}

// SetSettings swaps in a new configuration snapshot. A cycle already in
// flight finishes with the old snapshot; the next one picks up the new.
func (u *Uploader) SetSettings(settings Settings) {
	u.settingsMu.Lock()
	defer u.settingsMu.Unlock()
	u.settings = settings
}

// Start launches the capture loop and the retry sweep. Any backlog left from
// a previous run is swept first, then an immediate capture runs before the
// timer takes over.
func (u *Uploader) Start() error {
	u.mu.Lock()
	if u.isRunning {
		u.mu.Unlock()
		return fmt.Errorf("uploader is already running")
	}
	u.isRunning = true
	u.stopChan = make(chan struct{})
	u.mu.Unlock()

	settings := u.Settings()
	u.logger.Info("starting uploader",
		"interval", settings.Interval,
		"sweep_interval", settings.SweepInterval,
		"format", settings.Capture.Format,
		"source", settings.Source)

	if u.store.Count() > 0 {
		u.RetrySweep()
	}
	u.CaptureNow()

	u.wg.Add(2)
	go u.captureLoop()
	go u.sweepLoop()

	return nil
}

// Stop signals both loops and waits for them. A send already in flight is
// allowed to finish; the network timeout bounds how long that can take.
func (u *Uploader) Stop() {
	u.mu.Lock()
	if !u.isRunning {
		u.mu.Unlock()
		return
	}
	u.isRunning = false
	close(u.stopChan)
	u.mu.Unlock()

	u.wg.Wait()
	u.logger.Info("uploader stopped")
}

// IsRunning reports whether the loops are active.
func (u *Uploader) IsRunning() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.isRunning
}

// captureLoop runs one capture cycle per interval. The timer is re-armed only
// after a cycle completes, so a slow send defers the next tick instead of
// overlapping it.
func (u *Uploader) captureLoop() {
	defer u.wg.Done()

	timer := time.NewTimer(u.Settings().Interval)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			u.CaptureNow()
			timer.Reset(u.Settings().Interval)
		case <-u.stopChan:
			return
		}
	}
}

// sweepLoop periodically replays the local backlog and runs eviction on a
// slower cadence so retention expires even when nothing is being saved.
func (u *Uploader) sweepLoop() {
	defer u.wg.Done()

	sweep := time.NewTicker(u.Settings().SweepInterval)
	defer sweep.Stop()
	cleanup := time.NewTicker(cleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-sweep.C:
			u.RetrySweep()
		case <-cleanup.C:
			u.store.Evict()
		case <-u.stopChan:
			return
		}
	}
}

// CaptureNow performs one capture-encode-send cycle. Errors are logged and
// converted into a buffered retry; they never propagate out of the cycle.
func (u *Uploader) CaptureNow() {
	u.inFlight.Lock()
	defer u.inFlight.Unlock()

	settings := u.Settings()

	img, err := u.capturer.Capture(settings.Capture)
	if err != nil {
		u.logger.Error("capture failed", "error", err)
		return
	}

	if err := u.send(img, settings); err != nil {
		u.logger.Warn("upload failed, buffering locally", "error", err, "kind", SendErrorKindOf(err))
		if _, saveErr := u.store.Save(img, settings.Source); saveErr != nil {
			u.logger.Error("failed to buffer image", "error", saveErr)
		}
		return
	}

	if settings.SaveLocalCopy {
		u.saveLocalCopy(img, settings)
	}
}

func (u *Uploader) send(img *capture.Image, settings Settings) error {
	ack, err := u.client.Upload(context.Background(), UploadRequest{
		Data:      img.Data,
		FileName:  img.FileName(settings.Source),
		MimeType:  img.Format.MimeType(),
		Timestamp: img.Timestamp,
		Source:    settings.Source,
	})
	if err != nil {
		return err
	}

	u.logger.Info("uploaded image", "server_path", ack.Path, "size", len(img.Data))
	return nil
}

// saveLocalCopy writes a copy of a successfully uploaded image to the output
// directory. Failures are logged only; the upload already succeeded.
func (u *Uploader) saveLocalCopy(img *capture.Image, settings Settings) {
	if err := os.MkdirAll(settings.OutputDir, 0755); err != nil {
		u.logger.Warn("failed to create output directory", "dir", settings.OutputDir, "error", err)
		return
	}

	path := filepath.Join(settings.OutputDir, img.FileName(settings.Source))
	if err := os.WriteFile(path, img.Data, 0644); err != nil {
		u.logger.Warn("failed to save local copy", "path", path, "error", err)
		return
	}
	u.logger.Debug("saved local copy", "path", path)
}

// RetrySweep replays buffered images oldest-first. The sweep stops at the
// first failed upload: ordering stays deterministic and an unreachable server
// is probed once per sweep instead of once per item. Successfully replayed
// items are removed from the store.
func (u *Uploader) RetrySweep() {
	u.sweepMu.Lock()
	defer u.sweepMu.Unlock()

	items, err := u.store.ListPending()
	if err != nil {
		u.logger.Warn("retry sweep could not list backlog", "error", err)
		return
	}
	if len(items) == 0 {
		return
	}

	if err := u.client.Ping(context.Background()); err != nil {
		u.logger.Debug("server unreachable, keeping backlog", "pending", len(items))
		return
	}

	settings := u.Settings()
	uploaded := 0

	for _, item := range items {
		data, err := os.ReadFile(item.Path)
		if err != nil {
			if os.IsNotExist(err) {
				// evicted or removed since ListPending
				delete(u.retryCounts, item.Path)
				continue
			}
			u.logger.Warn("failed to read pending item", "path", item.Path, "error", err)
			continue
		}

		name := filepath.Base(item.Path)
		ts, ok := capture.ParseFileNameTime(name)
		if !ok {
			ts = item.CreatedAt.UTC()
		}

		_, err = u.client.Upload(context.Background(), UploadRequest{
			Data:      data,
			FileName:  name,
			MimeType:  mimeTypeForPath(item.Path),
			Timestamp: ts,
			Source:    settings.Source,
		})
		if err != nil {
			u.retryCounts[item.Path]++
			u.logger.Warn("retry failed, stopping sweep",
				"path", item.Path,
				"retries", u.retryCounts[item.Path],
				"error", err)
			break
		}

		u.store.Remove(item)
		delete(u.retryCounts, item.Path)
		uploaded++
	}

	if uploaded > 0 {
		u.logger.Info("retry sweep uploaded buffered images", "count", uploaded, "remaining", u.store.Count())
	}
}

func mimeTypeForPath(path string) string {
	if filepath.Ext(path) == ".png" {
		return capture.FormatPNG.MimeType()
	}
	return capture.FormatJPEG.MimeType()
}
