package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/jsondb/lib/lockmgr"
	"github.com/ValentinKolb/jsondb/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
)

var Logger = logger.GetLogger("cache")

// --------------------------------------------------------------------------
// Connection state
// --------------------------------------------------------------------------

// State is the connection state of a Client.
//
//	Uninitialized -> Connected  (first successful dial and ping)
//	Uninitialized -> Disabled   (dial or ping failed)
//
// Disabled is terminal: a disabled client never dials again.
type State int32

const (
	StateUninitialized State = iota
	StateConnected
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnected:
		return "connected"
	case StateDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Backend
// --------------------------------------------------------------------------

// Backend is a connected cache server.
type Backend struct {
	Store store.IStore         // values
	Locks lockmgr.ILockManager // leases (nil = no locking available)
	Ping  func() error         // health check run once on connect (optional)
	Close func() error         // releases the connection (optional)
}

// Dialer connects to a cache server. It is called at most once per Client.
type Dialer func() (Backend, error)

// LocalDialer serves the cache from an in-process store, locks included.
func LocalDialer(s store.IStore) Dialer {
	return func() (Backend, error) {
		return Backend{
			Store: s,
			Locks: lockmgr.NewLockManager(s),
		}, nil
	}
}

// BackendError is a fault reported by the cache backend.
// It never leaves the Client; it is logged and counted instead.
type BackendError struct {
	Op  string
	Key string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("cache %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// --------------------------------------------------------------------------
// Client
// --------------------------------------------------------------------------

// Config configures a Client.
type Config struct {
	Prefix      string        // prepended to every key
	LockTimeout time.Duration // default wait for Lock if the caller passes 0
	LockExpire  time.Duration // default lease lifetime if the caller passes 0
}

// Client is a best-effort JSON cache in front of a Backend.
//
// Value operations never return errors: a backend fault is logged and turns
// into a miss or a no-op. The backend is dialed lazily on first use.
type Client struct {
	cfg  Config
	dial Dialer

	mu      sync.Mutex
	state   atomic.Int32
	backend Backend
	locker  lockmgr.Locker

	registry  gometrics.Registry
	hits      gometrics.Counter
	misses    gometrics.Counter
	faults    gometrics.Counter
	lockWait  gometrics.Timer
	roundtrip gometrics.Timer
}

// New creates a client. Nothing is dialed until the first operation or Connect.
func New(cfg Config, dial Dialer) *Client {
	r := gometrics.NewRegistry()
	return &Client{
		cfg:       cfg,
		dial:      dial,
		registry:  r,
		hits:      gometrics.NewRegisteredCounter("cache.hits", r),
		misses:    gometrics.NewRegisteredCounter("cache.misses", r),
		faults:    gometrics.NewRegisteredCounter("cache.faults", r),
		lockWait:  gometrics.NewRegisteredTimer("cache.lock.wait", r),
		roundtrip: gometrics.NewRegisteredTimer("cache.roundtrip", r),
	}
}

// Disabled returns a client that never caches and never locks.
func Disabled() *Client {
	c := New(Config{}, nil)
	c.state.Store(int32(StateDisabled))
	return c
}

// State returns the current connection state without dialing.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Connect dials the backend if that has not happened yet and returns the
// resulting state. Concurrent callers wait for the same dial.
func (c *Client) Connect() State {
	if s := c.State(); s != StateUninitialized {
		return s
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if s := c.State(); s != StateUninitialized {
		return s
	}

	if c.dial == nil {
		c.state.Store(int32(StateDisabled))
		return StateDisabled
	}

	backend, err := c.dial()
	if err == nil && backend.Store == nil {
		err = errors.New("backend has no store")
	}
	if err == nil && backend.Ping != nil {
		err = backend.Ping()
	}
	if err != nil {
		Logger.Errorf("cache backend unreachable, caching disabled for this process: %v", err)
		if backend.Close != nil {
			_ = backend.Close()
		}
		c.state.Store(int32(StateDisabled))
		return StateDisabled
	}

	c.backend = backend
	if backend.Locks != nil {
		c.locker = lockmgr.NewLocker(backend.Locks)
	}
	c.state.Store(int32(StateConnected))
	Logger.Infof("cache backend connected")
	return StateConnected
}

// Close releases the backend connection and disables the client.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := State(c.state.Swap(int32(StateDisabled)))
	if prev == StateConnected && c.backend.Close != nil {
		return c.backend.Close()
	}
	return nil
}

// Metrics returns the registry holding the client's counters and timers.
func (c *Client) Metrics() gometrics.Registry {
	return c.registry
}

// store returns the backend store if the client is connected.
func (c *Client) store() (store.IStore, bool) {
	if c.Connect() != StateConnected {
		return nil, false
	}
	return c.backend.Store, true
}

func (c *Client) key(key string) string {
	return c.cfg.Prefix + key
}

// LockNamespace prefixes the keys of all leases. Value operations on keys in
// this namespace are refused, so a cached value can never occupy a lease.
const LockNamespace = "lock:"

// IsReserved reports whether key lies in the lease namespace.
func IsReserved(key string) bool {
	return strings.HasPrefix(key, LockNamespace)
}

// valueStore returns the backend store for a value operation on key.
func (c *Client) valueStore(op, key string) (store.IStore, bool) {
	if IsReserved(key) {
		Logger.Warningf("cache %s %q refused: key is in the lease namespace", op, key)
		return nil, false
	}
	return c.store()
}

func (c *Client) fault(err *BackendError) {
	c.faults.Inc(1)
	Logger.Warningf("%v", err)
}

// --------------------------------------------------------------------------
// Value operations
// --------------------------------------------------------------------------

// Set stores value as JSON under key. expires <= 0 keeps the entry until it is evicted.
func (c *Client) Set(key string, value any, expires time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		c.fault(&BackendError{Op: "encode", Key: key, Err: err})
		return
	}
	c.SetRaw(key, data, expires)
}

// SetRaw stores already encoded JSON under key.
func (c *Client) SetRaw(key string, data []byte, expires time.Duration) {
	s, ok := c.valueStore("set", key)
	if !ok {
		return
	}

	start := time.Now()
	var err error
	if expires > 0 {
		ttl := uint64(expires.Milliseconds())
		if ttl == 0 {
			ttl = 1
		}
		// value and key vanish together
		err = s.SetE(c.key(key), data, ttl, ttl)
	} else {
		err = s.Set(c.key(key), data)
	}
	c.roundtrip.UpdateSince(start)

	if err != nil {
		c.fault(&BackendError{Op: "set", Key: key, Err: err})
	}
}

// Get returns the JSON stored under key. A miss and a backend fault both return false.
func (c *Client) Get(key string) (json.RawMessage, bool) {
	s, ok := c.valueStore("get", key)
	if !ok {
		return nil, false
	}

	start := time.Now()
	data, found, err := s.Get(c.key(key))
	c.roundtrip.UpdateSince(start)

	if err != nil {
		c.fault(&BackendError{Op: "get", Key: key, Err: err})
		return nil, false
	}
	if !found {
		c.misses.Inc(1)
		return nil, false
	}
	c.hits.Inc(1)
	return data, true
}

// GetInto decodes the JSON stored under key into v. An undecodable entry
// counts as a fault and is reported as a miss.
func (c *Client) GetInto(key string, v any) bool {
	data, ok := c.Get(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		c.fault(&BackendError{Op: "decode", Key: key, Err: err})
		return false
	}
	return true
}

// Delete evicts key.
func (c *Client) Delete(key string) {
	s, ok := c.valueStore("delete", key)
	if !ok {
		return
	}

	start := time.Now()
	err := s.Delete(c.key(key))
	c.roundtrip.UpdateSince(start)

	if err != nil {
		c.fault(&BackendError{Op: "delete", Key: key, Err: err})
	}
}

// --------------------------------------------------------------------------
// Locking
// --------------------------------------------------------------------------

// Lock acquires the lease for key, waiting at most timeout. The lease
// expires on its own after expire. Zero durations fall back to the Config defaults.
//
// If no lock backend is available (client disabled, backend without locks or
// a backend fault) Lock returns a zero Lease and no error: the caller
// proceeds without locking. lockmgr.ErrLockTimeout is returned only when the
// backend works and someone else holds the lease.
func (c *Client) Lock(key string, timeout, expire time.Duration) (lockmgr.Lease, error) {
	if timeout <= 0 {
		timeout = c.cfg.LockTimeout
	}
	if expire <= 0 {
		expire = c.cfg.LockExpire
	}

	if c.Connect() != StateConnected || c.locker == nil {
		return lockmgr.Lease{}, nil
	}

	start := time.Now()
	lease, err := c.locker.Lock(c.key(LockNamespace+key), timeout, expire)
	c.lockWait.UpdateSince(start)

	switch {
	case err == nil:
		return lease, nil
	case errors.Is(err, lockmgr.ErrLockTimeout):
		return lockmgr.Lease{}, err
	default:
		c.fault(&BackendError{Op: "lock", Key: key, Err: err})
		Logger.Warningf("continuing without lock for %q", key)
		return lockmgr.Lease{}, nil
	}
}

// Unlock releases a lease returned by Lock. A zero lease is ignored.
func (c *Client) Unlock(lease lockmgr.Lease) {
	if !lease.Held() {
		return
	}
	if err := lease.Release(); err != nil {
		c.fault(&BackendError{Op: "unlock", Key: lease.Key, Err: err})
	}
}

// Locker exposes the client as a lockmgr.Locker.
func (c *Client) Locker() lockmgr.Locker {
	return clientLocker{c}
}

type clientLocker struct {
	c *Client
}

func (l clientLocker) Lock(key string, timeout, expire time.Duration) (lockmgr.Lease, error) {
	lease, err := l.c.Lock(key, timeout, expire)
	if err != nil || !lease.Held() {
		return lease, err
	}
	// route the release through Unlock so faults get counted
	return lockmgr.NewLease(lease.Key, lease.OwnerID, func() error {
		l.c.Unlock(lease)
		return nil
	}), nil
}
