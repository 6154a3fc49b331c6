package jsondb

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/ValentinKolb/jsondb/lib/cache"
	"github.com/ValentinKolb/jsondb/lib/lockmgr"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("jsondb")

const (
	docExt      = ".json"
	mtimeSuffix = "_mtime"
)

// Cache is the part of cache.Client the store uses.
type Cache interface {
	Set(key string, value any, expires time.Duration)
	SetRaw(key string, data []byte, expires time.Duration)
	Get(key string) (json.RawMessage, bool)
	GetInto(key string, v any) bool
	Delete(key string)
}

// Store maps document paths to JSON files below a root directory.
//
// A document path is a slash separated name without extension; "a/b/c" is
// stored in <root>/a/b/c.json. All methods are safe for concurrent use.
type Store struct {
	opts    Options
	root    string
	cache   Cache
	locker  lockmgr.Locker
	faults  *faultThrottle
	metrics *storeMetrics
}

// New creates a store. A nil cache disables caching, a nil locker uses an
// in-process lock only.
func New(opts Options, c Cache, locker lockmgr.Locker) (*Store, error) {
	if opts.Root == "" {
		return nil, newError(CodeInvalidPath, "", "store root must not be empty", nil)
	}
	opts.applyDefaults()

	if c == nil {
		c = cache.Disabled()
	}
	if locker == nil {
		locker = lockmgr.NewLocalLocker()
	}

	return &Store{
		opts:   opts,
		root:   filepath.Clean(opts.Root),
		cache:  c,
		locker: locker,
		faults: &faultThrottle{
			window: opts.FaultWindow,
			cache:  c,
			now:    time.Now,
		},
		metrics: newStoreMetrics(),
	}, nil
}

// Open creates a store that caches through client and locks through an
// in-process lock chained with the client's shared lease. A nil client
// disables caching.
func Open(opts Options, client *cache.Client) (*Store, error) {
	if client == nil {
		client = cache.Disabled()
	}
	return New(opts, client, lockmgr.Chain(lockmgr.NewLocalLocker(), client.Locker()))
}

// Root returns the root directory of the store.
func (s *Store) Root() string {
	return s.root
}

// --------------------------------------------------------------------------
// Paths
// --------------------------------------------------------------------------

// checkPath rejects paths that could escape the root.
func checkPath(path string) error {
	if strings.Contains(path, "..") {
		Logger.Errorf("SECURITY: rejected path traversal attempt %q", path)
		return newError(CodeTraversal, path, "path traversal rejected", nil)
	}
	if strings.ContainsRune(path, 0) {
		return newError(CodeInvalidPath, path, "path contains NUL byte", nil)
	}
	if path != "" && slices.Contains(strings.Split(path, "/"), "") {
		return newError(CodeInvalidPath, path, "path contains an empty segment", nil)
	}
	return nil
}

// FilePath returns the file backing the document at path.
func (s *Store) FilePath(path string) (string, error) {
	if path == "" {
		return "", newError(CodeInvalidPath, path, "empty document path", nil)
	}
	if strings.HasSuffix(path, docExt) {
		return "", newError(CodeInvalidPath, path, "document path must not end in "+docExt, nil)
	}
	if err := checkPath(path); err != nil {
		return "", err
	}
	// these names would share a cache key with another entry
	if strings.HasSuffix(path, mtimeSuffix) {
		return "", newError(CodeInvalidPath, path, "document name must not end in "+mtimeSuffix, nil)
	}
	if cache.IsReserved(path) || path == faultKey {
		return "", newError(CodeInvalidPath, path, "document path is reserved by the cache", nil)
	}
	return filepath.Join(s.root, filepath.FromSlash(path)+docExt), nil
}

// --------------------------------------------------------------------------
// Read operations
// --------------------------------------------------------------------------

// Exists reports whether the document at path exists.
func (s *Store) Exists(path string) (bool, error) {
	file, err := s.FilePath(path)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(file)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, newError(CodeIO, path, "stat failed", err)
	}
	return info.Mode().IsRegular(), nil
}

// Get decodes the document at path into v. found is false if the document
// does not exist; that is not an error.
func (s *Store) Get(path string, v any, opts ...CallOption) (found bool, err error) {
	data, found, err := s.GetRaw(path, opts...)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, newError(CodeDecode, path, "document does not fit target", err)
	}
	return true, nil
}

// GetRaw returns the JSON text of the document at path.
//
// The cached copy is used if its recorded mtime is not older than the file's.
// Otherwise the file is read under the document lock and the cache is
// refreshed. A document that is not valid JSON is a fault: it is logged,
// reported through Options.OnFault and returned as a CodeDecode error.
func (s *Store) GetRaw(path string, opts ...CallOption) (json.RawMessage, bool, error) {
	o := resolve(opts)

	file, err := s.FilePath(path)
	if err != nil {
		return nil, false, err
	}

	info, err := os.Stat(file)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, newError(CodeIO, path, "stat failed", err)
	}

	if !o.noCache {
		if data, ok := s.cached(path, info.ModTime()); ok {
			s.metrics.cacheHits.Inc()
			return data, true, nil
		}
	}

	lease, err := s.locker.Lock(path, s.opts.LockTimeout, s.opts.LockExpire)
	if err != nil {
		// writes are atomic renames, an unlocked read never sees a partial file
		Logger.Warningf("reading %q without lock: %v", path, err)
	} else {
		defer s.release(lease)
	}

	data, mtime, err := readFile(file)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, newError(CodeIO, path, "read failed", err)
	}
	s.metrics.diskReads.Inc()
	Logger.Debugf("GET %s (disk)", path)

	if !json.Valid(data) {
		s.metrics.decodeFaults.Inc()
		Logger.Errorf("document %q is not valid JSON, content:\n%s", path, data)
		fault := newError(CodeDecode, path, "document is not valid JSON", nil)
		s.faults.report(fault, s.opts.OnFault)
		return nil, false, fault
	}

	if !o.noCache {
		s.remember(path, data, mtime)
	}
	return data, true, nil
}

// cached returns the cached document if it is at least as new as diskMtime.
// A stale pair is evicted.
func (s *Store) cached(path string, diskMtime time.Time) (json.RawMessage, bool) {
	data, ok := s.cache.Get(path)
	if !ok {
		return nil, false
	}
	var mtime int64
	if !s.cache.GetInto(path+mtimeSuffix, &mtime) {
		return nil, false
	}
	if mtime >= diskMtime.UnixNano() {
		Logger.Debugf("GET %s (cache)", path)
		return data, true
	}

	s.metrics.staleEvictions.Inc()
	Logger.Debugf("cache entry for %q is stale, evicting", path)
	s.evict(path)
	return nil, false
}

func (s *Store) remember(path string, data []byte, mtime time.Time) {
	s.cache.SetRaw(path, data, s.opts.CacheTTL)
	s.cache.Set(path+mtimeSuffix, mtime.UnixNano(), s.opts.CacheTTL)
}

func (s *Store) evict(path string) {
	s.cache.Delete(path)
	s.cache.Delete(path + mtimeSuffix)
}

func (s *Store) release(lease lockmgr.Lease) {
	if err := lease.Release(); err != nil {
		Logger.Warningf("releasing lock %q failed: %v", lease.Key, err)
	}
}

// readFile reads name and returns its content with the mtime of the same open file.
func readFile(name string) ([]byte, time.Time, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, time.Time{}, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, time.Time{}, err
	}
	return data, info.ModTime(), nil
}

// --------------------------------------------------------------------------
// Write operations
// --------------------------------------------------------------------------

// Commit replaces the document at path with v.
//
// The write happens under the document lock: the encoded value goes to a
// temporary file next to the target which is then renamed over it, so
// readers see either the old or the new document. The cache is refreshed
// with the new content and its mtime before the lock is released.
func (s *Store) Commit(path string, v any, opts ...CallOption) error {
	start := time.Now()
	o := resolve(opts)

	file, err := s.FilePath(path)
	if err != nil {
		return err
	}

	data, err := Encode(v)
	if err != nil {
		return newError(CodeEncode, path, "encoding failed", err)
	}

	lease, err := s.locker.Lock(path, s.opts.LockTimeout, s.opts.LockExpire)
	if err != nil {
		return newError(CodeLock, path, "could not lock document", err)
	}
	defer s.release(lease)

	if err := writeFileAtomic(file, data); err != nil {
		return newError(CodeIO, path, "write failed", err)
	}
	s.metrics.diskWrites.Inc()

	info, err := os.Stat(file)
	if err != nil {
		s.evict(path)
		return newError(CodeIO, path, "stat after write failed", err)
	}

	if o.noCache {
		s.evict(path)
	} else {
		s.remember(path, data, info.ModTime())
	}

	s.metrics.commitDuration.UpdateDuration(start)
	Logger.Debugf("WRITE %s", path)
	return nil
}

// writeFileAtomic replaces name with data through a temporary file in the same directory.
func writeFileAtomic(name string, data []byte) error {
	dir := filepath.Dir(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(name)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(tmpName, 0o644)
	}
	if err == nil {
		err = os.Rename(tmpName, name)
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// Delete removes the document at path and evicts it from the cache.
// Deleting a missing document is a no-op.
func (s *Store) Delete(path string) error {
	file, err := s.FilePath(path)
	if err != nil {
		return err
	}

	lease, err := s.locker.Lock(path, s.opts.LockTimeout, s.opts.LockExpire)
	if err != nil {
		return newError(CodeLock, path, "could not lock document", err)
	}
	defer s.release(lease)

	err = os.Remove(file)
	switch {
	case err == nil:
		s.metrics.deletes.Inc()
		Logger.Infof("deleted document %s", path)
	case errors.Is(err, fs.ErrNotExist):
	default:
		return newError(CodeIO, path, "delete failed", err)
	}

	s.evict(path)
	return nil
}

// --------------------------------------------------------------------------
// Listing
// --------------------------------------------------------------------------

// ListDocs returns the names of the documents in the directory path, sorted
// and without extension. With recursive set, documents in subdirectories are
// included as "subdir/name". Files that are not documents are skipped, a
// missing directory yields an empty list. An empty path lists the root.
func (s *Store) ListDocs(path string, recursive bool) ([]string, error) {
	if err := checkPath(path); err != nil {
		return nil, err
	}

	dir := s.root
	if path != "" {
		dir = filepath.Join(s.root, filepath.FromSlash(path))
	}

	names := []string{}
	if err := listDir(dir, "", recursive, &names); err != nil {
		return nil, newError(CodeIO, path, "listing failed", err)
	}
	sort.Strings(names)
	return names, nil
}

func listDir(dir, prefix string, recursive bool, names *[]string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			if recursive {
				if err := listDir(filepath.Join(dir, name), prefix+name+"/", true, names); err != nil {
					return err
				}
			}
			continue
		}
		if !entry.Type().IsRegular() || !strings.HasSuffix(name, docExt) {
			continue
		}
		*names = append(*names, prefix+strings.TrimSuffix(name, docExt))
	}
	return nil
}
