package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/jsondb/lib/db"
	"github.com/ValentinKolb/jsondb/lib/db/engines/maple"
	"github.com/ValentinKolb/jsondb/lib/lockmgr"
	"github.com/ValentinKolb/jsondb/lib/store"
	"github.com/ValentinKolb/jsondb/lib/store/lstore"
)

func newLocalStore(t *testing.T) store.IStore {
	t.Helper()
	engine := maple.NewMapleDB(nil)
	t.Cleanup(func() { _ = engine.Close() })
	return lstore.NewLocalStore(func() db.KVDB { return engine })
}

// brokenStore fails every call.
type brokenStore struct{}

var errBroken = errors.New("connection reset")

func (brokenStore) Set(string, []byte) error                         { return errBroken }
func (brokenStore) SetE(string, []byte, uint64, uint64) error        { return errBroken }
func (brokenStore) SetEIfUnset(string, []byte, uint64, uint64) error { return errBroken }
func (brokenStore) Expire(string) error                              { return errBroken }
func (brokenStore) Delete(string) error                              { return errBroken }
func (brokenStore) Get(string) ([]byte, bool, error)                 { return nil, false, errBroken }
func (brokenStore) Has(string) (bool, error)                         { return false, errBroken }
func (brokenStore) GetDBInfo() (db.DatabaseInfo, error)              { return db.DatabaseInfo{}, errBroken }

func TestSetGetDelete(t *testing.T) {
	s := newLocalStore(t)
	c := New(Config{Prefix: "test:"}, LocalDialer(s))

	c.Set("doc", map[string]any{"name": "Alice"}, time.Hour)

	var got map[string]any
	if !c.GetInto("doc", &got) || got["name"] != "Alice" {
		t.Fatalf("unexpected cache content: %v", got)
	}

	// the prefix is applied on the backend
	if _, found, _ := s.Get("test:doc"); !found {
		t.Fatalf("expected prefixed key in backend store")
	}

	c.Delete("doc")
	if _, ok := c.Get("doc"); ok {
		t.Fatalf("expected miss after delete")
	}

	if c.Metrics().Get("cache.hits") == nil {
		t.Fatalf("hit counter not registered")
	}
	if hits := c.hits.Count(); hits != 1 {
		t.Fatalf("expected 1 hit, got %d", hits)
	}
	if misses := c.misses.Count(); misses != 1 {
		t.Fatalf("expected 1 miss, got %d", misses)
	}
}

func TestExpires(t *testing.T) {
	c := New(Config{}, LocalDialer(newLocalStore(t)))

	c.Set("short", 1, 20*time.Millisecond)
	c.Set("forever", 2, 0)

	if _, ok := c.Get("short"); !ok {
		t.Fatalf("expected hit before expiry")
	}
	time.Sleep(50 * time.Millisecond)

	if _, ok := c.Get("short"); ok {
		t.Fatalf("expected miss after expiry")
	}
	if _, ok := c.Get("forever"); !ok {
		t.Fatalf("entry without ttl should stay")
	}
}

func TestLazyConnect(t *testing.T) {
	var dials atomic.Int32
	c := New(Config{}, func() (Backend, error) {
		dials.Add(1)
		return LocalDialer(newLocalStore(t))()
	})

	if c.State() != StateUninitialized {
		t.Fatalf("client must not dial before first use")
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Get("key")
		}()
	}
	wg.Wait()

	if c.State() != StateConnected {
		t.Fatalf("expected connected, got %s", c.State())
	}
	if n := dials.Load(); n != 1 {
		t.Fatalf("expected exactly one dial, got %d", n)
	}
}

func TestDialFailureDisablesForever(t *testing.T) {
	var dials atomic.Int32
	c := New(Config{}, func() (Backend, error) {
		dials.Add(1)
		return Backend{}, errors.New("connection refused")
	})

	c.Set("key", "value", time.Minute)
	if _, ok := c.Get("key"); ok {
		t.Fatalf("disabled client must miss")
	}
	c.Delete("key")

	lease, err := c.Lock("key", time.Second, time.Second)
	if err != nil || lease.Held() {
		t.Fatalf("disabled client should degrade to no lock, got %v %v", lease, err)
	}
	c.Unlock(lease)

	if c.State() != StateDisabled {
		t.Fatalf("expected disabled, got %s", c.State())
	}
	if n := dials.Load(); n != 1 {
		t.Fatalf("disabled client dialed %d times", n)
	}
}

func TestPingFailureDisables(t *testing.T) {
	closed := false
	c := New(Config{}, func() (Backend, error) {
		return Backend{
			Store: newLocalStore(t),
			Ping:  func() error { return errors.New("no pong") },
			Close: func() error { closed = true; return nil },
		}, nil
	})

	if c.Connect() != StateDisabled {
		t.Fatalf("failed ping should disable the client")
	}
	if !closed {
		t.Fatalf("backend should be closed after a failed ping")
	}
}

func TestBackendFaultsAreSwallowed(t *testing.T) {
	c := New(Config{}, func() (Backend, error) {
		return Backend{Store: brokenStore{}, Locks: lockmgr.NewLockManager(brokenStore{})}, nil
	})

	c.Set("key", "value", time.Minute)
	if _, ok := c.Get("key"); ok {
		t.Fatalf("faulty backend must report a miss")
	}
	c.Delete("key")

	lease, err := c.Lock("key", 50*time.Millisecond, time.Second)
	if err != nil || lease.Held() {
		t.Fatalf("lock fault should degrade to no lock, got %v", err)
	}

	if c.State() != StateConnected {
		t.Fatalf("runtime faults must not change the connection state")
	}
	if faults := c.faults.Count(); faults != 4 {
		t.Fatalf("expected 4 faults, got %d", faults)
	}
}

func TestUnencodableValue(t *testing.T) {
	c := New(Config{}, LocalDialer(newLocalStore(t)))
	c.Set("chan", make(chan int), time.Minute)
	if _, ok := c.Get("chan"); ok {
		t.Fatalf("unencodable value must not be stored")
	}
	if c.faults.Count() != 1 {
		t.Fatalf("encode failure should count as fault")
	}
}

func TestLockTimeout(t *testing.T) {
	c := New(Config{LockTimeout: 30 * time.Millisecond, LockExpire: time.Second}, LocalDialer(newLocalStore(t)))

	lease, err := c.Lock("doc", 0, 0)
	if err != nil || !lease.Held() {
		t.Fatalf("first lock failed: %v", err)
	}

	if _, err := c.Lock("doc", 0, 0); !errors.Is(err, lockmgr.ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}

	c.Unlock(lease)

	lease, err = c.Lock("doc", 0, 0)
	if err != nil || !lease.Held() {
		t.Fatalf("lock after unlock failed: %v", err)
	}
	c.Unlock(lease)
}

func TestLockExpires(t *testing.T) {
	c := New(Config{}, LocalDialer(newLocalStore(t)))

	if _, err := c.Lock("doc", time.Second, 20*time.Millisecond); err != nil {
		t.Fatalf("lock failed: %v", err)
	}
	// the crashed holder never unlocks
	lease, err := c.Lock("doc", time.Second, time.Second)
	if err != nil || !lease.Held() {
		t.Fatalf("lease should have expired: %v", err)
	}
	c.Unlock(lease)
}

func TestDisabledClient(t *testing.T) {
	c := Disabled()
	if c.Connect() != StateDisabled {
		t.Fatalf("expected disabled client")
	}
	c.Set("key", 1, 0)
	if _, ok := c.Get("key"); ok {
		t.Fatalf("disabled client must miss")
	}
}

func TestValuesCannotOccupyLeases(t *testing.T) {
	c := New(Config{Prefix: "test:", LockTimeout: 50 * time.Millisecond}, LocalDialer(newLocalStore(t)))

	c.Set(LockNamespace+"doc", 1, time.Hour)
	c.SetRaw(LockNamespace+"doc", []byte("1"), time.Hour)
	if _, ok := c.Get(LockNamespace + "doc"); ok {
		t.Fatalf("value stored in the lease namespace")
	}

	lease, err := c.Lock("doc", 0, 0)
	if err != nil || !lease.Held() {
		t.Fatalf("lease blocked by a value: %v", err)
	}

	// deleting through the value API must not drop a held lease
	c.Delete(LockNamespace + "doc")
	if _, err := c.Lock("doc", 0, 0); !errors.Is(err, lockmgr.ErrLockTimeout) {
		t.Fatalf("expected lease to survive Delete, got %v", err)
	}
	c.Unlock(lease)
}
