package lstore

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/jsondb/lib/db"
	"github.com/ValentinKolb/jsondb/lib/db/engines/maple"
	"github.com/ValentinKolb/jsondb/lib/store"
)

type fakeClock struct {
	ms atomic.Uint64
}

func (c *fakeClock) now() uint64          { return c.ms.Load() }
func (c *fakeClock) set(ms uint64)        { c.ms.Store(ms) }
func (c *fakeClock) advance(delta uint64) { c.ms.Add(delta) }

func newTestStore(t *testing.T, clock *fakeClock) store.IStore {
	t.Helper()
	var engine db.KVDB
	s := NewLocalStore(func() db.KVDB {
		engine = maple.NewMapleDB(nil)
		return engine
	}, WithClock(clock.now))
	t.Cleanup(func() { _ = engine.Close() })
	return s
}

func TestSetGet(t *testing.T) {
	clock := &fakeClock{}
	clock.set(1000)
	s := newTestStore(t, clock)

	if err := s.Set("key", []byte("value")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	value, ok, err := s.Get("key")
	if err != nil || !ok || string(value) != "value" {
		t.Fatalf("Get returned %q, %v, %v", value, ok, err)
	}
}

func TestTTLFollowsClock(t *testing.T) {
	clock := &fakeClock{}
	clock.set(1000)
	s := newTestStore(t, clock)

	if err := s.SetE("key", []byte("value"), 100, 200); err != nil {
		t.Fatalf("SetE failed: %v", err)
	}

	clock.advance(99)
	if _, ok, _ := s.Get("key"); !ok {
		t.Fatalf("value should still be present after 99ms")
	}

	// no write happens in between, the read alone has to move the clock
	clock.advance(1)
	if _, ok, _ := s.Get("key"); ok {
		t.Fatalf("value should be expired after 100ms")
	}
	if ok, _ := s.Has("key"); !ok {
		t.Fatalf("key should still exist after 100ms")
	}

	clock.advance(100)
	if ok, _ := s.Has("key"); ok {
		t.Fatalf("key should be deleted after 200ms")
	}
}

func TestClockNeverMovesBackwards(t *testing.T) {
	clock := &fakeClock{}
	clock.set(5000)
	s := newTestStore(t, clock)

	if err := s.Set("key", []byte("new")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// wall clock jumps back, the write must still win over the older one
	clock.set(1000)
	if err := s.Set("key", []byte("newer")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	value, _, _ := s.Get("key")
	if string(value) != "newer" {
		t.Fatalf("expected %q after clock jump, got %q", "newer", value)
	}

	info, err := s.GetDBInfo()
	if err != nil {
		t.Fatalf("GetDBInfo failed: %v", err)
	}
	if info.Clock != 5000 {
		t.Fatalf("expected engine clock 5000, got %d", info.Clock)
	}
}

func TestSetEIfUnset(t *testing.T) {
	clock := &fakeClock{}
	clock.set(1)
	s := newTestStore(t, clock)

	_ = s.SetEIfUnset("lock", []byte("a"), 0, 50)
	_ = s.SetEIfUnset("lock", []byte("b"), 0, 50)

	value, _, _ := s.Get("lock")
	if string(value) != "a" {
		t.Fatalf("expected first writer to win, got %q", value)
	}

	clock.advance(50)
	_ = s.SetEIfUnset("lock", []byte("b"), 0, 50)
	value, _, _ = s.Get("lock")
	if string(value) != "b" {
		t.Fatalf("expected second writer after lease end, got %q", value)
	}
}

func TestExpireDelete(t *testing.T) {
	clock := &fakeClock{}
	clock.set(1)
	s := newTestStore(t, clock)

	_ = s.Set("key", []byte("value"))
	_ = s.Expire("key")
	if _, ok, _ := s.Get("key"); ok {
		t.Fatalf("value should be gone after Expire")
	}
	if ok, _ := s.Has("key"); !ok {
		t.Fatalf("key should exist after Expire")
	}

	_ = s.Delete("key")
	if ok, _ := s.Has("key"); ok {
		t.Fatalf("key should be gone after Delete")
	}
}

// limitedDB supports nothing but Get.
type limitedDB struct {
	db.KVDB
}

func (l limitedDB) SupportsFeature(f db.Feature) bool {
	return f == db.FeatureGet
}

func TestUnsupportedOperation(t *testing.T) {
	engine := maple.NewMapleDB(nil)
	defer engine.Close()

	s := NewLocalStore(func() db.KVDB { return limitedDB{engine} })

	err := s.Set("key", []byte("value"))
	var storeErr *store.Error
	if !errors.As(err, &storeErr) || storeErr.Code != store.RetCUnsupportedOperation {
		t.Fatalf("expected unsupported operation error, got %v", err)
	}

	if _, _, err := s.Get("key"); err != nil {
		t.Fatalf("Get should be supported: %v", err)
	}
}
