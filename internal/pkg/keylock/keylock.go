package keylock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrTimeout is returned when a key stays held past the wait bound
var ErrTimeout = errors.New("keylock: timed out waiting for lock")

// Locker hands out exclusive locks on string keys
type Locker struct {
	mu      sync.Mutex
	slots   map[string]*slot
	timeout time.Duration
}

type slot struct {
	ch   chan struct{}
	refs int
}

// New creates a Locker whose Acquire waits at most timeout in total
func New(timeout time.Duration) *Locker {
	return &Locker{
		slots:   make(map[string]*slot),
		timeout: timeout,
	}
}

// Key formats an entity key such as "work:12"
func Key(kind string, id uint) string {
	return fmt.Sprintf("%s:%d", kind, id)
}

// Acquire locks every key in sorted order and returns the release function.
// Duplicate keys are locked once. On timeout nothing stays held.
func (l *Locker) Acquire(ctx context.Context, keys ...string) (func(), error) {
	keys = normalize(keys)

	var timer *time.Timer
	var expired <-chan time.Time
	if l.timeout > 0 {
		timer = time.NewTimer(l.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	held := make([]*slot, 0, len(keys))
	heldKeys := make([]string, 0, len(keys))
	for _, key := range keys {
		s := l.ref(key)
		select {
		case s.ch <- struct{}{}:
			held = append(held, s)
			heldKeys = append(heldKeys, key)
		case <-expired:
			l.unref(key)
			l.release(heldKeys, held)
			return nil, ErrTimeout
		case <-ctx.Done():
			l.unref(key)
			l.release(heldKeys, held)
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(heldKeys, held) })
	}, nil
}

// Held reports how many keys currently have a holder or waiter
func (l *Locker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

func (l *Locker) ref(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *Locker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.slots[key]; ok {
		s.refs--
		if s.refs == 0 {
			delete(l.slots, key)
		}
	}
}

func (l *Locker) release(keys []string, held []*slot) {
	for i := len(held) - 1; i >= 0; i-- {
		<-held[i].ch
		l.unref(keys[i])
	}
}

func normalize(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
