package metrics

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/nakabonne/tstorage"
)

// Embedded time-series store for operational gauges and counters, kept under
// the application workdir.

var (
	store    tstorage.Storage
	mu       sync.Mutex
	counters = make(map[string]int64)
)

// InitMetrics opens the metrics store under workdir.
func InitMetrics(workdir string) error {
	s, err := tstorage.NewStorage(
		tstorage.WithDataPath(filepath.Join(workdir, "metrics")),
		tstorage.WithTimestampPrecision(tstorage.Seconds),
		tstorage.WithRetention(7*24*time.Hour),
	)
	if err != nil {
		return err
	}
	mu.Lock()
	store = s
	mu.Unlock()
	return nil
}

func insert(name string, value float64) {
	mu.Lock()
	s := store
	mu.Unlock()
	if s == nil {
		return
	}
	_ = s.InsertRows([]tstorage.Row{
		{
			Metric:    name,
			DataPoint: tstorage.DataPoint{Timestamp: time.Now().Unix(), Value: value},
		},
	})
}

// SetGauge records an instantaneous value.
func SetGauge(name string, value int64) {
	insert(name, float64(value))
}

// IncrCounter bumps a monotonic counter and records the new total.
func IncrCounter(name string, delta int64) {
	mu.Lock()
	counters[name] += delta
	v := counters[name]
	mu.Unlock()
	insert(name, float64(v))
}

// Select reads raw datapoints, mainly for tests and ad hoc inspection.
func Select(name string, start, end int64) ([]*tstorage.DataPoint, error) {
	mu.Lock()
	s := store
	mu.Unlock()
	if s == nil {
		return nil, nil
	}
	return s.Select(name, nil, start, end)
}

// Close flushes and closes the store.
func Close() error {
	mu.Lock()
	s := store
	store = nil
	mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Close()
}
