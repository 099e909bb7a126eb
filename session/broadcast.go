package session

import (
	"sort"
	"sync"
)

// LogoutListener is notified when a session's credential stops being valid.
type LogoutListener interface {
	OnLogout(reason string)
}

// ListenerFunc adapts a function to LogoutListener.
type ListenerFunc func(reason string)

func (f ListenerFunc) OnLogout(reason string) { f(reason) }

// Broadcaster fans one logout signal out to its subscribers.
type Broadcaster struct {
	mu   sync.Mutex
	next int
	subs map[int]LogoutListener
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: map[int]LogoutListener{}}
}

// Subscribe registers l and returns a function that removes it again.
func (b *Broadcaster) Subscribe(l LogoutListener) (unsubscribe func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = l
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish notifies subscribers in subscription order on the caller's goroutine.
func (b *Broadcaster) Publish(reason string) {
	b.mu.Lock()
	ids := make([]int, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	listeners := make([]LogoutListener, 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		listeners = append(listeners, b.subs[id])
	}
	b.mu.Unlock()

	for _, l := range listeners {
		l.OnLogout(reason)
	}
}
