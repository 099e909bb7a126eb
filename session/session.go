// Package session wires the per-browser-session state: the cart, the
// credential and the cached order list.
package session

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	"storefront/cart"
	"storefront/store"
)

// Session is the state container for one browser session.
type Session struct {
	ID     string
	Cart   *cart.Manager
	Auth   *AuthState
	Orders *OrderList
	// Logout is signalled when the backend rejects the session's credential.
	Logout *Broadcaster

	unsubscribe []func()
	lastUsed    time.Time // guarded by Registry.mu
}

// Close detaches the session's listeners.
func (s *Session) Close() {
	for _, u := range s.unsubscribe {
		u()
	}
	s.unsubscribe = nil
}

func CartKey(id string) string { return "cart:" + id }
func AuthKey(id string) string { return "auth:" + id }

// DefaultMaxSessions bounds the live sessions of a Registry unless
// WithMaxSessions says otherwise.
const DefaultMaxSessions = 10000

// Option configures a Registry.
type Option func(*Registry)

// WithMaxSessions caps the live sessions. Opening one more ends the least
// recently used session.
func WithMaxSessions(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxSessions = n
		}
	}
}

// WithIdleTimeout makes EvictIdle end sessions unused for longer than d.
// Zero keeps idle sessions until they are pushed out by the cap.
func WithIdleTimeout(d time.Duration) Option {
	return func(r *Registry) { r.idleTimeout = d }
}

// Registry creates sessions on first use and tears them down on End,
// on eviction by the size cap, or when idle for too long. Ending a session
// only drops memory; its stored cart and credential are picked up again by
// the next Open.
type Registry struct {
	store       store.Store
	log         logrus.FieldLogger
	maxSessions int
	idleTimeout time.Duration
	now         func() time.Time

	mu       sync.Mutex
	sessions *lru.Cache // id -> *Session, least recently used first
}

func NewRegistry(st store.Store, log logrus.FieldLogger, opts ...Option) *Registry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &Registry{
		store:       st,
		log:         log,
		maxSessions: DefaultMaxSessions,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	// size is always positive, so NewWithEvict cannot fail
	r.sessions, _ = lru.NewWithEvict(r.maxSessions, r.closeEvicted)
	return r
}

// closeEvicted runs for every session leaving the cache, whether through End,
// the size cap or the idle sweep.
func (r *Registry) closeEvicted(key, value interface{}) {
	value.(*Session).Close()
	r.log.WithField("session", key).Debug("session ended")
}

// touch returns the live session for id and marks it used.
func (r *Registry) touch(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.sessions.Get(id)
	if !ok {
		return nil, false
	}
	s := v.(*Session)
	s.lastUsed = r.now()
	return s, true
}

// Open returns the live session for id, building it from the store if needed.
// The store is read without holding the registry lock.
func (r *Registry) Open(id string) *Session {
	if s, ok := r.touch(id); ok {
		return s
	}

	built := r.build(id)

	r.mu.Lock()
	if v, ok := r.sessions.Get(id); ok {
		// another request built the same session first
		live := v.(*Session)
		live.lastUsed = r.now()
		r.mu.Unlock()
		built.Close()
		return live
	}
	built.lastUsed = r.now()
	r.sessions.Add(id, built)
	r.mu.Unlock()

	r.log.WithField("session", id).Debug("session opened")
	return built
}

func (r *Registry) build(id string) *Session {
	log := r.log.WithField("session", id)
	s := &Session{
		ID:     id,
		Cart:   cart.NewManager(r.store, CartKey(id), log),
		Auth:   newAuthState(r.store, AuthKey(id), log),
		Orders: &OrderList{},
		Logout: NewBroadcaster(),
	}
	s.Cart.Initialize()
	s.unsubscribe = append(s.unsubscribe,
		s.Logout.Subscribe(s.Auth),
		s.Logout.Subscribe(s.Orders),
	)
	return s
}

// End drops the in-memory state of a session. Its stored cart survives and
// is picked up again by the next Open.
func (r *Registry) End(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions.Remove(id)
}

// EvictIdle ends every session unused for longer than the idle timeout and
// returns how many were ended.
func (r *Registry) EvictIdle() int {
	if r.idleTimeout <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.idleTimeout)

	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	// Keys is ordered oldest first, and every use refreshes both the
	// recency and lastUsed, so the first recent session ends the scan.
	for _, k := range r.sessions.Keys() {
		v, ok := r.sessions.Peek(k)
		if !ok {
			continue
		}
		if v.(*Session).lastUsed.After(cutoff) {
			break
		}
		r.sessions.Remove(k)
		n++
	}
	return n
}

// Run calls EvictIdle every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if r.idleTimeout <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.EvictIdle(); n > 0 {
				r.log.WithField("evicted", n).Info("idle sessions ended")
			}
		}
	}
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	return r.sessions.Len()
}
