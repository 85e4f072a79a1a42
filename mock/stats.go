// Package mock holds test doubles shared by the client's tests.
package mock

import (
	"sync"
	"time"
)

// RecordingStatter is used for testing. It records counter totals, the last
// value of each gauge and the number of timings per name.
type RecordingStatter struct {
	mu      sync.Mutex
	counts  map[string]int64
	gauges  map[string]float64
	timings map[string]int
	tags    map[string][]string
}

// NewRecordingStatter returns an empty RecordingStatter.
func NewRecordingStatter() *RecordingStatter {
	return &RecordingStatter{
		counts:  make(map[string]int64),
		gauges:  make(map[string]float64),
		timings: make(map[string]int),
		tags:    make(map[string][]string),
	}
}

// Count implements Count.
func (r *RecordingStatter) Count(name string, value int64, rate float64, tags ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[name] += value
	r.tags[name] = append(r.tags[name], tags...)
}

// Gauge implements Gauge.
func (r *RecordingStatter) Gauge(name string, value float64, rate float64, tags ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges[name] = value
}

// Histogram implements Histogram.
func (r *RecordingStatter) Histogram(name string, value float64, rate float64, tags ...string) {}

// Set implements Set.
func (r *RecordingStatter) Set(name string, value string, rate float64, tags ...string) {}

// Timing implements Timing.
func (r *RecordingStatter) Timing(name string, value time.Duration, rate float64, tags ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timings[name]++
}

// Counted returns the total counted under name.
func (r *RecordingStatter) Counted(name string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[name]
}

// Gauged returns the last value of the gauge name.
func (r *RecordingStatter) Gauged(name string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gauges[name]
}

// Timed returns how many timings were recorded under name.
func (r *RecordingStatter) Timed(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timings[name]
}

// Tags returns every tag passed with counts of name.
func (r *RecordingStatter) Tags(name string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.tags[name]...)
}
