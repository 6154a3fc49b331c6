package jsondb

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/jsondb/lib/cache"
	"github.com/ValentinKolb/jsondb/lib/db"
	"github.com/ValentinKolb/jsondb/lib/db/engines/maple"
	"github.com/ValentinKolb/jsondb/lib/lockmgr"
	"github.com/ValentinKolb/jsondb/lib/store/lstore"
)

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func newCacheClient(t *testing.T) *cache.Client {
	t.Helper()
	engine := maple.NewMapleDB(nil)
	t.Cleanup(func() { _ = engine.Close() })
	s := lstore.NewLocalStore(func() db.KVDB { return engine })
	return cache.New(cache.Config{Prefix: "test:"}, cache.LocalDialer(s))
}

func newTestStore(t *testing.T) (*Store, *cache.Client) {
	t.Helper()
	client := newCacheClient(t)
	s, err := Open(DefaultOptions(t.TempDir()), client)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	return s, client
}

type user struct {
	UID  int    `json:"uid"`
	Name string `json:"name"`
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)

	values := map[string]any{
		"object":  map[string]any{"a": "x", "b": []any{1.0, 2.5, "three"}, "c": nil},
		"array":   []any{"a", map[string]any{"nested": true}},
		"string":  "plain <html> & ünïcode",
		"number":  42.0,
		"boolean": false,
		"null":    nil,
	}

	for name, want := range values {
		t.Run(name, func(t *testing.T) {
			path := "roundtrip/" + name
			if err := s.Commit(path, want); err != nil {
				t.Fatalf("commit failed: %v", err)
			}

			var got any
			found, err := s.Get(path, &got, NoCache())
			if err != nil || !found {
				t.Fatalf("get failed: %v %v", found, err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("round trip mismatch: want %#v, got %#v", want, got)
			}
		})
	}
}

func TestGetMissing(t *testing.T) {
	s, _ := newTestStore(t)

	var v any
	found, err := s.Get("does/not/exist", &v)
	if err != nil || found {
		t.Fatalf("missing document should be found=false, err=nil; got %v %v", found, err)
	}
}

func TestCommitThenGetUsesCache(t *testing.T) {
	s, _ := newTestStore(t)

	if err := s.Commit("blog/entries/1", map[string]any{"title": "hello"}); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	before := s.Stats()

	var got map[string]any
	if found, err := s.Get("blog/entries/1", &got); err != nil || !found {
		t.Fatalf("get failed: %v %v", found, err)
	}
	if got["title"] != "hello" {
		t.Fatalf("unexpected value %v", got)
	}

	after := s.Stats()
	if after.DiskReads != before.DiskReads {
		t.Fatalf("get after commit read from disk (%d -> %d)", before.DiskReads, after.DiskReads)
	}
	if after.CacheHits != before.CacheHits+1 {
		t.Fatalf("expected one cache hit, got %d", after.CacheHits-before.CacheHits)
	}
}

func TestGetPopulatesCache(t *testing.T) {
	s, _ := newTestStore(t)

	if err := s.Commit("doc", 1, NoCache()); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	var v int
	_, _ = s.Get("doc", &v)
	_, _ = s.Get("doc", &v)

	if reads := s.Stats().DiskReads; reads != 1 {
		t.Fatalf("expected exactly one disk read, got %d", reads)
	}
}

func TestStaleCacheIsDetected(t *testing.T) {
	s, _ := newTestStore(t)

	if err := s.Commit("wiki/page", map[string]any{"rev": 1}); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	// an external writer replaces the file behind the cache's back
	file, _ := s.FilePath("wiki/page")
	if err := os.WriteFile(file, []byte(`{"rev": 2}`), 0o644); err != nil {
		t.Fatalf("external write failed: %v", err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(file, future, future); err != nil {
		t.Fatalf("chtimes failed: %v", err)
	}

	var got map[string]int
	if _, err := s.Get("wiki/page", &got); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got["rev"] != 2 {
		t.Fatalf("stale cache returned rev %d", got["rev"])
	}

	stats := s.Stats()
	if stats.StaleEvictions != 1 || stats.DiskReads != 1 {
		t.Fatalf("expected one stale eviction and one disk read, got %+v", stats)
	}

	// repopulated, the next read is served from the cache again
	_, _ = s.Get("wiki/page", &got)
	if s.Stats().DiskReads != 1 {
		t.Fatalf("cache was not repopulated after stale read")
	}
}

func TestPathValidation(t *testing.T) {
	s, _ := newTestStore(t)

	tests := []struct {
		path string
		want error
	}{
		{"", ErrInvalidPath},
		{"users/1.json", ErrInvalidPath},
		{"../etc/passwd", ErrTraversal},
		{"users/../../secret", ErrTraversal},
		{"users/..", ErrTraversal},
		{"a..b", ErrTraversal},
		{"bad\x00name", ErrInvalidPath},
		{"users/", ErrInvalidPath},
		{"/users", ErrInvalidPath},
		{"users//1", ErrInvalidPath},
		{"page_mtime", ErrInvalidPath},
		{"wiki/page_mtime", ErrInvalidPath},
		{"lock:page", ErrInvalidPath},
		{"exception_catcher", ErrInvalidPath},
	}

	for _, tt := range tests {
		t.Run(strconv.Quote(tt.path), func(t *testing.T) {
			var v any
			if _, err := s.Get(tt.path, &v); !errors.Is(err, tt.want) {
				t.Errorf("Get: expected %v, got %v", tt.want, err)
			}
			if err := s.Commit(tt.path, 1); !errors.Is(err, tt.want) {
				t.Errorf("Commit: expected %v, got %v", tt.want, err)
			}
			if err := s.Delete(tt.path); !errors.Is(err, tt.want) {
				t.Errorf("Delete: expected %v, got %v", tt.want, err)
			}
			if _, err := s.Exists(tt.path); !errors.Is(err, tt.want) {
				t.Errorf("Exists: expected %v, got %v", tt.want, err)
			}
		})
	}

	// nothing was written outside the root
	if _, err := os.Stat(filepath.Join(filepath.Dir(s.Root()), "etc")); err == nil {
		t.Fatalf("traversal created files outside the root")
	}

	if _, err := s.ListDocs("../", false); !errors.Is(err, ErrTraversal) {
		t.Fatalf("ListDocs: expected traversal error, got %v", err)
	}
	if _, err := s.ListDocs("users/", false); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("ListDocs: expected invalid path error, got %v", err)
	}
	if names, err := s.ListDocs("users", true); err != nil || len(names) != 0 {
		t.Fatalf("rejected paths left documents behind: %v %v", names, err)
	}
}

func TestMtimeEntryNeverServedAsDocument(t *testing.T) {
	s, _ := newTestStore(t)

	// a file whose name collides with the mtime entry of "x"
	file := filepath.Join(s.Root(), "x_mtime.json")
	if err := os.WriteFile(file, []byte(`{"a": 1}`), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := s.Commit("x", 5); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	if _, _, err := s.GetRaw("x_mtime"); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected invalid path error, got %v", err)
	}
	var v int
	if found, err := s.Get("x", &v); err != nil || !found || v != 5 {
		t.Fatalf("get x: %v %v %v", found, err, v)
	}
}

func TestCachedValueCannotBlockLease(t *testing.T) {
	client := newCacheClient(t)
	opts := DefaultOptions(t.TempDir())
	opts.LockTimeout = 300 * time.Millisecond
	s, err := Open(opts, client)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	if err := s.Commit("lock:a", 1); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected invalid path error, got %v", err)
	}
	client.Set(cache.LockNamespace+"a", 1, time.Hour)

	if err := s.Commit("a", 2); err != nil {
		t.Fatalf("commit blocked by a cached value: %v", err)
	}
}

func TestOpenWithoutClient(t *testing.T) {
	s, err := Open(DefaultOptions(t.TempDir()), nil)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := s.Commit("doc", 1); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	var v int
	if found, err := s.Get("doc", &v); err != nil || !found || v != 1 {
		t.Fatalf("get failed: %v %v %v", found, err, v)
	}
}

func TestListDocs(t *testing.T) {
	s, _ := newTestStore(t)

	for _, path := range []string{
		"blog/entries/zeta",
		"blog/entries/alpha",
		"blog/entries/mid",
		"blog/entries/2024/first",
		"blog/entries/2024/deep/inner",
	} {
		if err := s.Commit(path, path); err != nil {
			t.Fatalf("commit %s failed: %v", path, err)
		}
	}

	// stray files are ignored
	dir := filepath.Join(s.Root(), "blog", "entries")
	_ = os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "image.json.bak"), []byte("x"), 0o644)

	names, err := s.ListDocs("blog/entries", false)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	want := []string{"alpha", "mid", "zeta"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("expected %v, got %v", want, names)
	}

	names, err = s.ListDocs("blog/entries", true)
	if err != nil {
		t.Fatalf("recursive list failed: %v", err)
	}
	want = []string{"2024/deep/inner", "2024/first", "alpha", "mid", "zeta"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
}

func TestListDocsMissingDir(t *testing.T) {
	s, _ := newTestStore(t)

	names, err := s.ListDocs("nothing/here", true)
	if err != nil {
		t.Fatalf("listing a missing directory should not fail: %v", err)
	}
	if names == nil || len(names) != 0 {
		t.Fatalf("expected empty list, got %#v", names)
	}
}

func TestConcurrentCommits(t *testing.T) {
	s, _ := newTestStore(t)
	const writers = 20

	var (
		wg      sync.WaitGroup
		done    atomic.Bool
		success atomic.Int32
	)

	// readers bypass the cache and must never see a partial file
	readerErr := make(chan error, 1)
	go func() {
		for !done.Load() {
			var v map[string]int
			if _, err := s.Get("stats/counter", &v, NoCache()); err != nil {
				select {
				case readerErr <- err:
				default:
				}
				return
			}
		}
	}()

	for i := 1; i <= writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.Commit("stats/counter", map[string]int{"counter": i}); err != nil {
				t.Errorf("commit %d failed: %v", i, err)
				return
			}
			success.Add(1)
		}(i)
	}
	wg.Wait()
	done.Store(true)

	if n := success.Load(); n != writers {
		t.Fatalf("expected %d successful commits, got %d", writers, n)
	}

	select {
	case err := <-readerErr:
		t.Fatalf("reader observed a broken document: %v", err)
	default:
	}

	file, _ := s.FilePath("stats/counter")
	raw, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var final map[string]int
	if err := json.Unmarshal(raw, &final); err != nil {
		t.Fatalf("final document does not parse: %v", err)
	}
	if c := final["counter"]; c < 1 || c > writers {
		t.Fatalf("final counter %d was never written", c)
	}

	// the cache agrees with the disk
	var cached map[string]int
	_, _ = s.Get("stats/counter", &cached)
	if cached["counter"] != final["counter"] {
		t.Fatalf("cache holds %d, disk holds %d", cached["counter"], final["counter"])
	}

	// no temp files left behind
	entries, _ := os.ReadDir(filepath.Dir(file))
	if len(entries) != 1 {
		t.Fatalf("expected only the document in its directory, found %d entries", len(entries))
	}
}

func TestDeleteMissingKeepsOtherCache(t *testing.T) {
	s, _ := newTestStore(t)

	if err := s.Commit("other", "value"); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if err := s.Delete("missing"); err != nil {
		t.Fatalf("deleting a missing document should not fail: %v", err)
	}

	before := s.Stats().DiskReads
	var v string
	_, _ = s.Get("other", &v)
	if s.Stats().DiskReads != before {
		t.Fatalf("cache of an unrelated document was evicted")
	}
}

func TestUserScenario(t *testing.T) {
	s, _ := newTestStore(t)

	alice := user{UID: 1, Name: "Alice"}
	if err := s.Commit("users/by-id/1", alice); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	if ok, err := s.Exists("users/by-id/1"); err != nil || !ok {
		t.Fatalf("expected document to exist: %v %v", ok, err)
	}

	var got user
	if found, err := s.Get("users/by-id/1", &got); err != nil || !found || got != alice {
		t.Fatalf("expected %+v, got %+v (%v %v)", alice, got, found, err)
	}

	if err := s.Delete("users/by-id/1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if ok, _ := s.Exists("users/by-id/1"); ok {
		t.Fatalf("document still exists after delete")
	}
	if found, err := s.Get("users/by-id/1", &got); found || err != nil {
		t.Fatalf("expected nothing after delete, got %v %v", found, err)
	}
}

func TestCorruptDocument(t *testing.T) {
	client := newCacheClient(t)

	var reports atomic.Int32
	opts := DefaultOptions(t.TempDir())
	opts.OnFault = func(err error) { reports.Add(1) }
	s, err := Open(opts, client)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	file, _ := s.FilePath("broken")
	if err := os.WriteFile(file, []byte(`{"unterminated": `), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		var v any
		found, err := s.Get("broken", &v)
		if found || !errors.Is(err, ErrDecode) {
			t.Fatalf("expected decode fault, got %v %v", found, err)
		}
	}

	if n := reports.Load(); n != 1 {
		t.Fatalf("expected one fault report within the window, got %d", n)
	}
	if n := s.Stats().DecodeFaults; n != 3 {
		t.Fatalf("expected 3 decode faults, got %d", n)
	}
	if _, ok := client.Get("broken"); ok {
		t.Fatalf("corrupt document must not be cached")
	}
}

func TestFaultWindowElapses(t *testing.T) {
	var reports int
	now := time.Unix(1_000_000, 0)
	f := &faultThrottle{window: 2 * time.Minute, cache: cache.Disabled(), now: func() time.Time { return now }}

	report := func(error) { reports++ }
	f.report(errors.New("a"), report)
	f.report(errors.New("b"), report)

	now = now.Add(2 * time.Minute)
	f.report(errors.New("c"), report)

	if reports != 2 {
		t.Fatalf("expected 2 reports, got %d", reports)
	}
}

func TestFaultWindowBelowOneSecond(t *testing.T) {
	var reports int
	now := time.Unix(1_000_000, 0)
	f := &faultThrottle{window: 500 * time.Millisecond, cache: cache.Disabled(), now: func() time.Time { return now }}

	report := func(error) { reports++ }
	f.report(errors.New("a"), report)

	now = now.Add(100 * time.Millisecond)
	f.report(errors.New("b"), report)
	if reports != 1 {
		t.Fatalf("report inside the window was not dropped")
	}

	now = now.Add(400 * time.Millisecond)
	f.report(errors.New("c"), report)
	if reports != 2 {
		t.Fatalf("expected 2 reports, got %d", reports)
	}
}

func TestOnDiskFormat(t *testing.T) {
	s, _ := newTestStore(t)

	doc := struct {
		Zeta  string         `json:"zeta"`
		Alpha map[string]int `json:"alpha"`
	}{
		Zeta:  "<b>",
		Alpha: map[string]int{"y": 2, "x": 1},
	}
	if err := s.Commit("format", doc); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	file, _ := s.FilePath("format")
	raw, _ := os.ReadFile(file)

	want := "{\n    \"alpha\": {\n        \"x\": 1,\n        \"y\": 2\n    },\n    \"zeta\": \"<b>\"\n}"
	if string(raw) != want {
		t.Fatalf("unexpected file content:\n%s", raw)
	}

	info, _ := os.Stat(file)
	if perm := info.Mode().Perm(); perm != 0o644 {
		t.Fatalf("expected mode 0644, got %o", perm)
	}
}

func TestEncodeKeepsNumbers(t *testing.T) {
	data, err := Encode(map[string]any{"big": json.Number("12345678901234567890"), "f": 1.5})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if !bytes.Contains(data, []byte("12345678901234567890")) {
		t.Fatalf("large number lost precision: %s", data)
	}

	if _, err := Encode(make(chan int)); err == nil {
		t.Fatalf("expected error for unencodable value")
	}
}

func TestCommitEncodeError(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Commit("bad", func() {}); !errors.Is(err, ErrEncode) {
		t.Fatalf("expected encode error, got %v", err)
	}
	if ok, _ := s.Exists("bad"); ok {
		t.Fatalf("failed commit created a document")
	}
}

func TestNoCacheCommitEvicts(t *testing.T) {
	s, client := newTestStore(t)

	if err := s.Commit("doc", "v1"); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if err := s.Commit("doc", "v2", NoCache()); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if _, ok := client.Get("doc"); ok {
		t.Fatalf("uncached commit should evict the cache entry")
	}

	var v string
	_, _ = s.Get("doc", &v)
	if v != "v2" {
		t.Fatalf("expected v2, got %q", v)
	}
}

func TestWithoutCacheBackend(t *testing.T) {
	client := cache.New(cache.Config{}, func() (cache.Backend, error) {
		return cache.Backend{}, errors.New("connection refused")
	})
	s, err := Open(DefaultOptions(t.TempDir()), client)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	if err := s.Commit("doc", 1); err != nil {
		t.Fatalf("commit should work without cache: %v", err)
	}
	var v int
	if found, err := s.Get("doc", &v); err != nil || !found || v != 1 {
		t.Fatalf("get should work without cache: %v %v %v", found, err, v)
	}
	if client.State() != cache.StateDisabled {
		t.Fatalf("expected disabled cache, got %s", client.State())
	}
	if s.Stats().DiskReads != 1 {
		t.Fatalf("expected disk read without cache")
	}
}

// busyLocker never grants a lock.
type busyLocker struct{}

func (busyLocker) Lock(string, time.Duration, time.Duration) (lockmgr.Lease, error) {
	return lockmgr.Lease{}, lockmgr.ErrLockTimeout
}

func TestLockTimeout(t *testing.T) {
	root := t.TempDir()
	s, err := New(DefaultOptions(root), nil, busyLocker{})
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}

	err = s.Commit("doc", 1)
	if !errors.Is(err, ErrLock) || !errors.Is(err, lockmgr.ErrLockTimeout) {
		t.Fatalf("expected lock timeout, got %v", err)
	}
	if err := s.Delete("doc"); !errors.Is(err, ErrLock) {
		t.Fatalf("expected lock error on delete, got %v", err)
	}

	// reads fall back to an unlocked read
	_ = os.WriteFile(filepath.Join(root, "doc.json"), []byte("1"), 0o644)
	var v int
	if found, err := s.Get("doc", &v); err != nil || !found || v != 1 {
		t.Fatalf("read should proceed without lock: %v %v", found, err)
	}
}

func TestWritePrometheus(t *testing.T) {
	s, _ := newTestStore(t)
	for i := 0; i < 3; i++ {
		_ = s.Commit(fmt.Sprintf("doc/%d", i), i)
	}

	var buf bytes.Buffer
	s.WritePrometheus(&buf)
	if !bytes.Contains(buf.Bytes(), []byte("jsondb_disk_writes_total 3")) {
		t.Fatalf("unexpected metrics output:\n%s", buf.String())
	}
}

func TestNewRejectsEmptyRoot(t *testing.T) {
	if _, err := New(Options{}, nil, nil); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected invalid path error, got %v", err)
	}
}
