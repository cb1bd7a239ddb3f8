package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/callforge/callforge/internal/timing"
)

// Registry is the authoritative in-flight call view. All mutations for one
// call-control id are serialized through a per-key critical section;
// mutations for different ids proceed fully in parallel. Eviction after a
// call completes is scheduled on the injected clock so tests advance
// virtual time instead of sleeping.
type Registry struct {
	store  Store
	clock  timing.Clock
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewRegistry creates a Registry over the given store.
func NewRegistry(store Store, clock timing.Clock, logger *slog.Logger) *Registry {
	return &Registry{
		store:  store,
		clock:  clock,
		logger: logger.With("subsystem", "session_registry"),
		locks:  make(map[string]*keyLock),
	}
}

// lockKey acquires the critical section for one call-control id.
func (r *Registry) lockKey(id string) *keyLock {
	r.mu.Lock()
	kl, ok := r.locks[id]
	if !ok {
		kl = &keyLock{}
		r.locks[id] = kl
	}
	kl.refs++
	r.mu.Unlock()

	kl.mu.Lock()
	return kl
}

// unlockKey releases the critical section and drops the lock entry once no
// other goroutine is waiting on it.
func (r *Registry) unlockKey(id string, kl *keyLock) {
	kl.mu.Unlock()

	r.mu.Lock()
	kl.refs--
	if kl.refs == 0 {
		delete(r.locks, id)
	}
	r.mu.Unlock()
}

// Mutate applies fn to the session for id under its critical section,
// creating the session if it does not exist yet (events can arrive in any
// order, including a hangup for a call the registry never saw initiated).
// fn receives the mutable record; the merged result is written back before
// the lock is released. The returned session is a clone.
func (r *Registry) Mutate(ctx context.Context, id string, fn func(s *CallSession)) (*CallSession, error) {
	kl := r.lockKey(id)
	defer r.unlockKey(id, kl)

	sess, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		sess = &CallSession{CallControlID: id}
	}

	fn(sess)

	if err := r.store.Put(ctx, sess); err != nil {
		return nil, err
	}
	return sess.Clone(), nil
}

// Get returns a clone of the session for id, or nil when absent.
func (r *Registry) Get(ctx context.Context, id string) (*CallSession, error) {
	return r.store.Get(ctx, id)
}

// Delete removes the session for id immediately.
func (r *Registry) Delete(ctx context.Context, id string) error {
	kl := r.lockKey(id)
	defer r.unlockKey(id, kl)
	return r.store.Delete(ctx, id)
}

// ScheduleEviction removes the session for id after the given delay. The
// eviction only fires against a session that is still in a terminal state:
// if the provider were ever to reuse an id for a new call before the timer
// fires, the fresh non-terminal session survives the stale timer.
func (r *Registry) ScheduleEviction(id string, after time.Duration) {
	r.clock.AfterFunc(after, func() {
		kl := r.lockKey(id)
		defer r.unlockKey(id, kl)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		sess, err := r.store.Get(ctx, id)
		if err != nil {
			r.logger.Error("session eviction lookup failed", "call_control_id", id, "error", err)
			return
		}
		if sess == nil || !sess.Status.Terminal() {
			return
		}

		if err := r.store.Delete(ctx, id); err != nil {
			r.logger.Error("session eviction failed", "call_control_id", id, "error", err)
			return
		}
		r.logger.Debug("session evicted", "call_control_id", id)
	})
}

// Len reports the number of live sessions.
func (r *Registry) Len(ctx context.Context) (int, error) {
	return r.store.Len(ctx)
}

// List returns clones of all live sessions for introspection endpoints.
func (r *Registry) List(ctx context.Context) ([]*CallSession, error) {
	return r.store.List(ctx)
}
