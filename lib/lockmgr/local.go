package lockmgr

import (
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// localSlot is the lock state of one key. The channel has capacity one,
// holding the token means holding the lock.
type localSlot struct {
	token chan struct{}

	mu    sync.Mutex
	gen   uint64
	timer *time.Timer
}

// LocalLocker is an in-process Locker. Waiters block on a channel instead of
// polling, and a held lock is released automatically after its expire time.
type LocalLocker struct {
	slots *xsync.MapOf[string, *localSlot]
}

// NewLocalLocker creates an empty in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		slots: xsync.NewMapOf[string, *localSlot](),
	}
}

func (l *LocalLocker) slot(key string) *localSlot {
	s, _ := l.slots.LoadOrCompute(key, func() *localSlot {
		return &localSlot{token: make(chan struct{}, 1)}
	})
	return s
}

// Lock implements Locker.
func (l *LocalLocker) Lock(key string, timeout, expire time.Duration) (Lease, error) {
	s := l.slot(key)

	if timeout <= 0 {
		select {
		case s.token <- struct{}{}:
		default:
			return Lease{}, ErrLockTimeout
		}
	} else {
		timer := time.NewTimer(timeout)
		select {
		case s.token <- struct{}{}:
			timer.Stop()
		case <-timer.C:
			return Lease{}, ErrLockTimeout
		}
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	if expire > 0 {
		s.timer = time.AfterFunc(expire, func() {
			if s.releaseGen(gen) {
				Logger.Warningf("local lock %q expired while held", key)
			}
		})
	}
	s.mu.Unlock()

	return NewLease(key, nil, func() error {
		s.releaseGen(gen)
		return nil
	}), nil
}

// releaseGen frees the slot if it is still held by generation gen.
// Returns whether the slot was released.
func (s *localSlot) releaseGen(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		return false
	}
	// bump so a second release of the same lease is a no-op
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	select {
	case <-s.token:
		return true
	default:
		return false
	}
}
