// Package reconcile converges late-arriving recording artifacts with
// durable call logs. Recording-saved webhooks regularly beat the hangup
// processing that writes the call log, so a failed attach is parked and
// retried on a short schedule instead of being dropped.
package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/callforge/callforge/internal/timing"
)

// CallLogStore is the slice of the persistence gateway the reconciler
// needs: an update that reports how many rows it touched.
type CallLogStore interface {
	AttachRecording(ctx context.Context, callControlID, recordingURL string) (int64, error)
}

// Retry schedule for an artifact whose call log has not landed yet. The
// delays run back to back: the first retry fires 3 s after parking and
// covers the common race window, the second fires 10 s after that and
// covers slow hangup processing, bounding the common case at 13 s.
// Anything older than MaxAge is abandoned.
const (
	firstRetryDelay  = 3 * time.Second
	secondRetryDelay = 10 * time.Second
	MaxAge           = 30 * time.Minute
)

// pendingArtifact is one recording URL waiting for its call log.
type pendingArtifact struct {
	callControlID string
	recordingID   string
	recordingURL  string
	firstSeen     time.Time
	attempts      int
	timer         timing.Timer
}

// Reconciler attaches recording URLs to call logs, retrying while the
// log row has not been written yet. At most one pending entry exists per
// call-control id; a newer artifact for the same call replaces the older
// URL but keeps the original deadline.
type Reconciler struct {
	callLogs CallLogStore
	clock    timing.Clock
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingArtifact
	expired atomic.Int64
}

// New creates a Reconciler.
func New(callLogs CallLogStore, clock timing.Clock, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		callLogs: callLogs,
		clock:    clock,
		logger:   logger,
		pending:  make(map[string]*pendingArtifact),
	}
}

// Submit attempts to attach the recording URL to its call log. On a miss
// (the log row does not exist yet) the artifact is parked and retried.
func (r *Reconciler) Submit(ctx context.Context, callControlID, recordingID, recordingURL string) {
	affected, err := r.callLogs.AttachRecording(ctx, callControlID, recordingURL)
	if err != nil {
		r.logger.Error("attaching recording", "call_control_id", callControlID, "error", err)
	}
	if err == nil && affected > 0 {
		r.clear(callControlID)
		return
	}
	r.park(callControlID, recordingID, recordingURL)
}

// Pending returns the number of artifacts waiting for their call logs.
func (r *Reconciler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Expired returns the number of artifacts dropped at absolute expiry
// without ever finding their call logs.
func (r *Reconciler) Expired() int64 {
	return r.expired.Load()
}

// park stores (or refreshes) the pending entry and schedules the next
// retry. The retry count and deadline survive a URL refresh so a call
// cannot keep an artifact alive forever by re-sending it.
func (r *Reconciler) park(callControlID, recordingID, recordingURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	art, ok := r.pending[callControlID]
	if ok {
		art.recordingID = recordingID
		art.recordingURL = recordingURL
		return
	}

	art = &pendingArtifact{
		callControlID: callControlID,
		recordingID:   recordingID,
		recordingURL:  recordingURL,
		firstSeen:     r.clock.Now(),
	}
	r.pending[callControlID] = art
	art.timer = r.clock.AfterFunc(firstRetryDelay, func() { r.retry(callControlID) })

	r.logger.Info("recording artifact parked",
		"call_control_id", callControlID,
		"retry_in", firstRetryDelay,
	)
}

// retry re-attempts the attach for a parked artifact. After both bounded
// retries fail, the entry sits until absolute expiry and is then dropped
// with only a log line to mark the discrepancy.
func (r *Reconciler) retry(callControlID string) {
	r.mu.Lock()
	art, ok := r.pending[callControlID]
	if !ok {
		r.mu.Unlock()
		return
	}
	art.attempts++
	attempts := art.attempts
	url := art.recordingURL
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	affected, err := r.callLogs.AttachRecording(ctx, callControlID, url)
	if err != nil {
		r.logger.Error("retrying recording attach", "call_control_id", callControlID, "error", err)
	}
	if err == nil && affected > 0 {
		r.clear(callControlID)
		r.logger.Info("recording artifact reconciled",
			"call_control_id", callControlID,
			"attempts", attempts,
		)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	art, ok = r.pending[callControlID]
	if !ok {
		return
	}

	if attempts == 1 {
		art.timer = r.clock.AfterFunc(secondRetryDelay, func() { r.retry(callControlID) })
		return
	}

	// Both retries failed. Hold the entry until absolute expiry.
	remaining := MaxAge - r.clock.Now().Sub(art.firstSeen)
	if remaining < 0 {
		remaining = 0
	}
	art.timer = r.clock.AfterFunc(remaining, func() { r.expire(callControlID) })
}

// expire drops an artifact that never found its call log.
func (r *Reconciler) expire(callControlID string) {
	r.mu.Lock()
	art, ok := r.pending[callControlID]
	if ok {
		delete(r.pending, callControlID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	r.expired.Add(1)
	r.logger.Warn("recording artifact expired without call log",
		"call_control_id", callControlID,
		"recording_id", art.recordingID,
		"recording_url", art.recordingURL,
		"age", MaxAge,
	)
}

// clear removes a pending entry and stops its timer.
func (r *Reconciler) clear(callControlID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if art, ok := r.pending[callControlID]; ok {
		if art.timer != nil {
			art.timer.Stop()
		}
		delete(r.pending, callControlID)
	}
}
