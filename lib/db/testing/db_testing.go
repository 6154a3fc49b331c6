package testing

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/jsondb/lib/db"
)

// DBFactory is a function that creates a new instance of a KVDB implementation
type DBFactory func() db.KVDB

// RunKVDBTests runs the conformance suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("Expire", func(t *testing.T) {
			testExpire(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, factory())
		})

		t.Run("SetEIfUnset", func(t *testing.T) {
			testSetEIfUnset(t, factory())
		})

		t.Run("KeyExpiry", func(t *testing.T) {
			testKeyExpiry(t, factory())
		})

		t.Run("ManyExpiringKeys", func(t *testing.T) {
			testManyExpiringKeys(t, factory())
		})

		t.Run("StaleWrite", func(t *testing.T) {
			testStaleWrite(t, factory())
		})

		t.Run("Clock", func(t *testing.T) {
			testClock(t, factory())
		})

		t.Run("GarbageCollect", func(t *testing.T) {
			testGarbageCollect(t, factory())
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})

		t.Run("ManyKeys", func(t *testing.T) {
			testManyKeys(t, factory())
		})

		t.Run("Concurrent", func(t *testing.T) {
			testConcurrent(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.KVDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

func expectValue(t *testing.T, database db.KVDB, key string, want []byte) {
	t.Helper()
	got, ok := database.Get(key)
	if !ok {
		t.Errorf("Expected key %q to exist", key)
		return
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Expected value %q for key %q, got %q", want, key, got)
	}
}

func expectMissing(t *testing.T, database db.KVDB, key string) {
	t.Helper()
	if got, ok := database.Get(key); ok {
		t.Errorf("Expected key %q to be missing, got %q", key, got)
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet)

	key := "test-key"

	database.Set(key, []byte("v1"), 1)
	expectValue(t, database, key, []byte("v1"))

	database.Set(key, []byte("v2"), 2)
	expectValue(t, database, key, []byte("v2"))

	expectMissing(t, database, "nonexistent-key")

	// Get returns a copy
	retrieved, _ := database.Get(key)
	retrieved[0] = 'X'
	expectValue(t, database, key, []byte("v2"))

	// Set copies its input
	input := []byte("v3")
	database.Set(key, input, 3)
	input[0] = 'X'
	expectValue(t, database, key, []byte("v3"))
}

func testKeyExpiry(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSetE|db.FeatureGet|db.FeatureHas)

	key := "expiring-key"
	value := []byte("expiring-value")

	database.SetE(key, value, 100, 10, 20)

	database.AdvanceClock(109)
	expectValue(t, database, key, value)
	if !database.Has(key) {
		t.Errorf("Key should still exist at 109ms (has)")
	}

	database.AdvanceClock(110)
	expectMissing(t, database, key)
	if !database.Has(key) {
		t.Errorf("Key should still exist at 110ms (has)")
	}

	database.AdvanceClock(120)
	expectMissing(t, database, key)
	if database.Has(key) {
		t.Errorf("Key should not exist at 120ms (has)")
	}

	// delete only
	key2 := "delete-only-key"
	database.SetE(key2, value, 200, 0, 10)

	database.AdvanceClock(209)
	expectValue(t, database, key2, value)

	database.AdvanceClock(210)
	expectMissing(t, database, key2)
	if database.Has(key2) {
		t.Errorf("Key should not exist at 210ms")
	}

	// no ttl at all
	key3 := "not-expiring-key"
	database.SetE(key3, value, 300, 0, 0)
	database.AdvanceClock(1_000_000)
	expectValue(t, database, key3, value)

	// a plain Set drops the ttl of an existing entry
	key4 := "ttl-dropped-key"
	database.SetE(key4, value, 1_000_000, 5, 0)
	database.Set(key4, value, 1_000_001)
	database.AdvanceClock(1_000_100)
	expectValue(t, database, key4, value)
}

func testManyExpiringKeys(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSetE|db.FeatureGet)

	numKeys := 1000
	base := uint64(1000)

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("expire-key-%d", i)
		database.SetE(key, []byte(key), base, uint64(i%100)+1, 0)
	}

	for offset := uint64(0); offset <= 100; offset += 10 {
		database.AdvanceClock(base + offset)

		for i := 0; i < numKeys; i++ {
			key := fmt.Sprintf("expire-key-%d", i)
			ttl := uint64(i%100) + 1

			_, exists := database.Get(key)
			if ttl <= offset && exists {
				t.Fatalf("Key %s should have expired at offset %d (ttl=%d)", key, offset, ttl)
			}
			if ttl > offset && !exists {
				t.Fatalf("Key %s should exist at offset %d (ttl=%d)", key, offset, ttl)
			}
		}
	}
}

func testExpire(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureExpire|db.FeatureHas)

	key := "expire-test-key"

	database.Set(key, []byte("value"), 1)
	expectValue(t, database, key, []byte("value"))

	database.Expire(key, 10)
	expectMissing(t, database, key)

	if !database.Has(key) {
		t.Errorf("Expected key %s to exist after Expire", key)
	}

	// must not create the key
	database.Expire("nonexistent-key", 11)
	if database.Has("nonexistent-key") {
		t.Errorf("Expire should not create a key")
	}
}

func testDelete(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	key := "delete-test-key"

	database.Set(key, []byte("value"), 1)
	expectValue(t, database, key, []byte("value"))

	database.Delete(key, 10)
	expectMissing(t, database, key)

	if database.Has(key) {
		t.Errorf("Expected key %s to not exist after Delete", key)
	}

	database.Delete("nonexistent-key", 11)

	// a key can be set again after delete
	database.Set(key, []byte("again"), 12)
	expectValue(t, database, key, []byte("again"))
}

func testHas(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureExpire|db.FeatureHas)

	key := "has-test-key"

	if database.Has(key) {
		t.Errorf("Expected Has to return false for nonexistent key")
	}

	database.Set(key, []byte("value"), 1)
	if !database.Has(key) {
		t.Errorf("Expected Has to return true after Set")
	}

	database.Expire(key, 2)
	if !database.Has(key) {
		t.Errorf("Expected Has to return true after Expire")
	}
}

func testSetEIfUnset(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSetEIfUnset|db.FeatureGet|db.FeatureHas)

	key := "lock-key"

	database.SetEIfUnset(key, []byte("owner-1"), 100, 0, 10)
	expectValue(t, database, key, []byte("owner-1"))

	// still held
	database.SetEIfUnset(key, []byte("owner-2"), 105, 0, 10)
	expectValue(t, database, key, []byte("owner-1"))

	// lease ran out, the key may be taken again
	database.SetEIfUnset(key, []byte("owner-2"), 110, 0, 10)
	expectValue(t, database, key, []byte("owner-2"))

	database.AdvanceClock(120)
	if database.Has(key) {
		t.Errorf("Expected key %s to be gone after its lease", key)
	}
}

func testStaleWrite(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	key := "stale-key"

	database.Set(key, []byte("new"), 200)
	database.Set(key, []byte("old"), 100)
	expectValue(t, database, key, []byte("new"))

	database.Delete(key, 150)
	expectValue(t, database, key, []byte("new"))

	// equal timestamps win
	database.Set(key, []byte("same"), 200)
	expectValue(t, database, key, []byte("same"))
}

func testClock(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)

	database.AdvanceClock(50)
	if database.Clock() != 50 {
		t.Errorf("Expected clock 50, got %d", database.Clock())
	}

	database.AdvanceClock(10)
	if database.Clock() != 50 {
		t.Errorf("Clock must not move backwards, got %d", database.Clock())
	}

	database.Set("k", []byte("v"), 80)
	if database.Clock() != 80 {
		t.Errorf("Writes should advance the clock to 80, got %d", database.Clock())
	}

	if info := database.GetInfo(); info.Clock != 80 {
		t.Errorf("GetInfo reports clock %d, expected 80", info.Clock)
	}
}

func testGarbageCollect(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSetE|db.FeatureGarbageCollect)

	now := uint64(time.Now().UnixMilli())
	for i := 0; i < 100; i++ {
		database.SetE(fmt.Sprintf("gc-key-%d", i), []byte("value"), now, 1, 2)
	}
	database.Set("persistent-key", []byte("value"), now)
	database.AdvanceClock(now + 10)

	deadline := time.Now().Add(5 * time.Second)
	for database.GetInfo().Entries != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("GC did not reclaim deleted keys, %d entries left", database.GetInfo().Entries)
		}
		time.Sleep(5 * time.Millisecond)
	}
	expectValue(t, database, "persistent-key", []byte("value"))
}

func testEdgeCases(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet)

	database.Set("", []byte("value for empty key"), 1)
	expectValue(t, database, "", []byte("value for empty key"))

	database.Set("nil-value-key", nil, 1)
	result, exists := database.Get("nil-value-key")
	if !exists {
		t.Errorf("Key for nil value not found after Set")
	} else if len(result) != 0 {
		t.Errorf("Nil value resulted in non-empty value: %v", result)
	}

	largeKey := string(make([]byte, 1000))
	database.Set(largeKey, []byte("value for large key"), 1)
	expectValue(t, database, largeKey, []byte("value for large key"))

	largeValue := make([]byte, 4*1024*1024)
	for i := range largeValue {
		largeValue[i] = byte(i % 256)
	}
	database.Set("large-value-key", largeValue, 1)
	expectValue(t, database, "large-value-key", largeValue)
}

func testManyKeys(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	prefix := "many-keys-"
	numKeys := 1000

	for i := 0; i < numKeys; i++ {
		database.Set(fmt.Sprintf("%s%d", prefix, i), []byte(fmt.Sprintf("value-%d", i)), 1)
	}

	for i := 0; i < numKeys; i += 2 {
		database.Delete(fmt.Sprintf("%s%d", prefix, i), 2)
	}

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("%s%d", prefix, i)
		if i%2 == 0 {
			expectMissing(t, database, key)
		} else {
			expectValue(t, database, key, []byte(fmt.Sprintf("value-%d", i)))
		}
	}

	if info := database.GetInfo(); info.Entries != numKeys/2 {
		t.Errorf("Expected %d entries, got %d", numKeys/2, info.Entries)
	}
}

func testConcurrent(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	numWorkers := 8
	opsPerWorker := 2000

	var wg sync.WaitGroup
	wg.Add(numWorkers)

	for w := 0; w < numWorkers; w++ {
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < opsPerWorker; i++ {
				hot := fmt.Sprintf("hot-key-%d", i%16)
				own := fmt.Sprintf("worker-%d-key-%d", worker, i)
				now := uint64(i + 1)

				switch i % 4 {
				case 0, 1:
					database.Set(hot, []byte(hot), now)
				case 2:
					database.Get(hot)
				case 3:
					database.Delete(hot, now)
				}
				database.Set(own, []byte(own), now)
			}
		}(w)
	}

	wg.Wait()

	// keys written by a single worker are never contended
	for w := 0; w < numWorkers; w++ {
		for i := 0; i < opsPerWorker; i += 97 {
			key := fmt.Sprintf("worker-%d-key-%d", w, i)
			expectValue(t, database, key, []byte(key))
		}
	}

	// hot keys either hold their own value or are gone
	for i := 0; i < 16; i++ {
		hot := fmt.Sprintf("hot-key-%d", i)
		if v, ok := database.Get(hot); ok && string(v) != hot {
			t.Errorf("Hot key %s holds foreign value %q", hot, v)
		}
	}
}
