package jsondb

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// storeMetrics are the counters of one Store.
type storeMetrics struct {
	set *metrics.Set

	diskReads      *metrics.Counter
	diskWrites     *metrics.Counter
	deletes        *metrics.Counter
	cacheHits      *metrics.Counter
	staleEvictions *metrics.Counter
	decodeFaults   *metrics.Counter
	commitDuration *metrics.Histogram
}

func newStoreMetrics() *storeMetrics {
	set := metrics.NewSet()
	return &storeMetrics{
		set:            set,
		diskReads:      set.NewCounter("jsondb_disk_reads_total"),
		diskWrites:     set.NewCounter("jsondb_disk_writes_total"),
		deletes:        set.NewCounter("jsondb_deletes_total"),
		cacheHits:      set.NewCounter("jsondb_cache_hits_total"),
		staleEvictions: set.NewCounter("jsondb_stale_evictions_total"),
		decodeFaults:   set.NewCounter("jsondb_decode_faults_total"),
		commitDuration: set.NewHistogram("jsondb_commit_duration_seconds"),
	}
}

// Stats is a snapshot of the store counters.
type Stats struct {
	DiskReads      uint64
	DiskWrites     uint64
	Deletes        uint64
	CacheHits      uint64
	StaleEvictions uint64
	DecodeFaults   uint64
}

// Stats returns the current counters of the store.
func (s *Store) Stats() Stats {
	m := s.metrics
	return Stats{
		DiskReads:      m.diskReads.Get(),
		DiskWrites:     m.diskWrites.Get(),
		Deletes:        m.deletes.Get(),
		CacheHits:      m.cacheHits.Get(),
		StaleEvictions: m.staleEvictions.Get(),
		DecodeFaults:   m.decodeFaults.Get(),
	}
}

// WritePrometheus writes the store metrics in Prometheus text format.
func (s *Store) WritePrometheus(w io.Writer) {
	s.metrics.set.WritePrometheus(w)
}
