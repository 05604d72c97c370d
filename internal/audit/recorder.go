// Package audit records every gated operation. Writes are fire-and-forget
// relative to the request: the recorder never blocks the caller and never
// surfaces its own failures, which go to the operational log instead.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"docvault/internal/util"
	"docvault/pkg/domain"
	"docvault/pkg/store"
)

const defaultBuffer = 256

// EventSink receives a copy of each recorded entry, e.g. for fan-out to an
// external consumer. Sink failures are logged and never propagate.
type EventSink interface {
	Publish(ctx context.Context, entry domain.AuditEntry) error
}

// Recorder appends audit entries through a background writer.
type Recorder struct {
	store store.Store
	sink  EventSink

	mu     sync.RWMutex
	closed bool
	ch     chan domain.AuditEntry
	wg     sync.WaitGroup
}

// Options configure the recorder.
type Options struct {
	// Sink is optional; when set, every written entry is also published.
	Sink EventSink
	// Buffer sizes the pending-entry channel.
	Buffer int
}

// NewRecorder starts the background writer.
func NewRecorder(st store.Store, opts Options) *Recorder {
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	r := &Recorder{
		store: st,
		sink:  opts.Sink,
		ch:    make(chan domain.AuditEntry, buffer),
	}
	r.wg.Add(1)
	go r.loop()
	return r
}

// Record enqueues an entry. It never blocks and never returns an error:
// a full buffer drops the entry with an operational warning. Entries
// without an actor are accepted only for the actions that legitimately
// lack one at request time.
func (r *Recorder) Record(e domain.AuditEntry) {
	if !domain.KnownAction(e.Action) {
		slog.Warn("audit entry skipped: unknown action", "action", e.Action)
		return
	}
	if e.ActorID == "" && !domain.AllowsAnonymousActor(e.Action) {
		slog.Warn("audit entry skipped: missing actor", "action", e.Action)
		return
	}
	if e.ID == "" {
		e.ID = util.NewID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		slog.Warn("audit entry dropped: recorder closed", "action", e.Action)
		return
	}
	select {
	case r.ch <- e:
	default:
		slog.Warn("audit entry dropped: buffer full", "action", e.Action, "actor_id", e.ActorID)
	}
}

// Close drains pending entries and stops the writer.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.ch)
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Recorder) loop() {
	defer r.wg.Done()
	for e := range r.ch {
		if err := r.store.AppendAudit(e); err != nil {
			slog.Warn("audit write failed",
				"action", e.Action,
				"actor_id", e.ActorID,
				"resource_kind", e.ResourceKind,
				"resource_id", e.ResourceID,
				"err", err,
			)
			// The triggering operation already completed; nothing to roll back.
		}
		if r.sink != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := r.sink.Publish(ctx, e); err != nil {
				slog.Warn("audit publish failed", "action", e.Action, "err", err)
			}
			cancel()
		}
	}
}

// UserActivity returns an actor's entries, newest first, with display names
// resolved inline.
func (r *Recorder) UserActivity(actorID string, f store.AuditFilter) ([]domain.AuditEntry, error) {
	return r.store.ListAuditByActor(actorID, f)
}

// ResourceActivity returns a resource's entries, newest first.
func (r *Recorder) ResourceActivity(kind, id string, f store.AuditFilter) ([]domain.AuditEntry, error) {
	return r.store.ListAuditByResource(kind, id, f)
}

// SystemStats aggregates counts and mean duration by action and outcome.
func (r *Recorder) SystemStats(from, to time.Time) ([]store.AuditStat, error) {
	return r.store.AuditStats(from, to)
}
