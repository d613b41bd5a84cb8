package archive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ekoi/dataverse-archiver/internal/bridge"
	"github.com/ekoi/dataverse-archiver/internal/cache"
	"github.com/ekoi/dataverse-archiver/internal/config"
	"github.com/ekoi/dataverse-archiver/internal/store"
	"github.com/ekoi/dataverse-archiver/pkg/models"
)

// Poller follows in-progress archival jobs in the background: one
// goroutine per job key, sleeping a fixed interval between hops, up to a
// bounded number of hops. Any classified state other than IN_PROGRESS
// ends the loop and runs the terminal handler exactly once.
type Poller struct {
	bridge   bridge.Client
	store    store.Store
	cache    cache.Cache
	notifier Notifier
	interval time.Duration
	maxHops  int

	mu     sync.Mutex
	active map[string]*pollerHandle
	wg     sync.WaitGroup
}

type pollerHandle struct {
	cancel context.CancelFunc
}

// NewPoller creates a new Poller.
func NewPoller(b bridge.Client, st store.Store, ca cache.Cache, n Notifier, cfg config.ArchiveConfig) *Poller {
	return &Poller{
		bridge:   b,
		store:    st,
		cache:    ca,
		notifier: n,
		interval: cfg.PollInterval,
		maxHops:  cfg.MaxHops,
		active:   make(map[string]*pollerHandle),
	}
}

// Start begins polling for job. A poller already running for the same
// (persistent id, version) key is cancelled first, so at most one writer
// exists per version record.
func (p *Poller) Start(job models.ArchiveJob) {
	ctx, cancel := context.WithCancel(context.Background())
	h := &pollerHandle{cancel: cancel}

	key := job.Key()
	p.mu.Lock()
	if prev, ok := p.active[key]; ok {
		prev.cancel()
	}
	p.active[key] = h
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(ctx, h, job)
}

// Cancel stops the active poller for the version, reporting whether one
// was running.
func (p *Poller) Cancel(globalID, version string) bool {
	key := globalID + "|" + version
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.active[key]
	if ok {
		h.cancel()
		delete(p.active, key)
	}
	return ok
}

// Shutdown cancels every active poller and waits for them to drain, or
// until ctx expires.
func (p *Poller) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	for _, h := range p.active {
		h.cancel()
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Poller) run(ctx context.Context, h *pollerHandle, job models.ArchiveJob) {
	defer p.wg.Done()
	defer p.release(job.Key(), h)

	q := bridge.StateQuery{
		SrcMetadataURL:     job.SourceMetadataURL,
		SrcMetadataVersion: job.VersionNumber,
		TargetDarName:      job.TargetName,
	}

	for hop := 1; hop <= p.maxHops; hop++ {
		select {
		case <-ctx.Done():
			slog.Info("poller cancelled", "job", job.Key(), "hop", hop)
			return
		case <-time.After(p.interval):
		}

		res, err := p.bridge.State(ctx, q)
		if ctx.Err() != nil {
			// Cancelled mid-call; a superseding poller owns the record now.
			return
		}

		state := Classify(res, err)
		if state == StateInProgress {
			slog.Info("archival still in progress", "job", job.Key(), "hop", hop, "max_hops", p.maxHops)
			continue
		}

		p.finish(job, state, res)
		return
	}

	// Hop budget spent without reaching a verdict. Deliberately not a
	// failure state: the job may still complete remotely and needs a
	// human to pick it up.
	slog.Warn("poll budget exhausted, job unresolved, manual follow-up required",
		"job", job.Key(), "target", job.TargetName, "max_hops", p.maxHops)
}

// release drops this run's registration unless a newer poller has
// already superseded it.
func (p *Poller) release(key string, h *pollerHandle) {
	p.mu.Lock()
	if p.active[key] == h {
		delete(p.active, key)
	}
	p.mu.Unlock()
}

// finish records the classified end state and notifies per policy. It
// runs on a fresh context: the record write must survive even when the
// poller itself was asked to stop.
func (p *Poller) finish(job models.ArchiveJob, state State, res *bridge.Result) {
	ctx := context.Background()
	persisted := state.WithTarget(job.TargetName)

	if state == StateArchived && res != nil && res.Payload != nil {
		note := fmt.Sprintf("%s#%s#%s",
			res.Payload.LandingPage, res.Payload.PID, time.Now().Format(archiveNoteDateFormat))

		changed, err := p.store.RecordArchived(ctx, job.PersistentID, job.VersionNumber, persisted, note, res.Payload.PID)
		if err != nil {
			slog.Error("recording archived state failed", "job", job.Key(), "error", err)
			return
		}
		if err := p.cache.SetArchiveState(ctx, job.PersistentID, job.VersionNumber, persisted, stateMirrorTTL); err != nil {
			slog.Warn("archive state mirror write failed", "job", job.Key(), "error", err)
		}
		slog.Info("archival completed", "job", job.Key(), "target", job.TargetName, "note", note)

		// A replayed success changes nothing and must not re-notify.
		if changed {
			if nerr := p.notifier.Notify(ctx, state, job, ""); nerr != nil {
				slog.Warn("submitter notification failed", "job", job.Key(), "error", nerr)
			}
		}
		return
	}

	if err := p.store.RecordArchiveState(ctx, job.PersistentID, job.VersionNumber, persisted); err != nil {
		slog.Error("recording archive state failed", "job", job.Key(), "state", state, "error", err)
	}
	if err := p.cache.SetArchiveState(ctx, job.PersistentID, job.VersionNumber, persisted, stateMirrorTTL); err != nil {
		slog.Warn("archive state mirror write failed", "job", job.Key(), "error", err)
	}
	slog.Error("archival ended without success", "job", job.Key(), "target", job.TargetName, "state", state)

	if nerr := p.notifier.Notify(ctx, state, job, ""); nerr != nil {
		slog.Warn("notification failed", "job", job.Key(), "state", state, "error", nerr)
	}
}
