// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

// Package termstat provides a stats implementation which periodically logs the
// statistics to the given writer. It is meant to be used at the terminal, for
// instance by the dfi CLI's --stats flag, in lieu of a collector such as
// Prometheus.
package termstat

import (
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/generalsystem/dfi"
)

// DefaultInterval is how often a Collector prints.
const DefaultInterval = 2 * time.Second

// Collector collects stats and prints them to the terminal. Counters are
// summed, gauges keep their last value and timings print their mean.
type Collector struct {
	lock    sync.Mutex
	indexes map[string]int
	names   []string
	stats   []float64
	timings []int64
	units   []string
	changed bool
	out     io.Writer

	done chan struct{}
	once sync.Once
}

var _ dfi.Statter = (*Collector)(nil)

// NewCollector initializes and returns a new Collector printing every
// interval until closed.
func NewCollector(out io.Writer, interval time.Duration) *Collector {
	ts := &Collector{
		indexes: make(map[string]int),
		out:     out,
		done:    make(chan struct{}),
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	go func() {
		tick := time.NewTicker(interval)
		defer tick.Stop()
		for {
			select {
			case <-tick.C:
				ts.Flush()
			case <-ts.done:
				return
			}
		}
	}()
	return ts
}

// Close stops the periodic printing and prints a final line.
func (t *Collector) Close() error {
	t.once.Do(func() {
		close(t.done)
		t.Flush()
		fmt.Fprintln(t.out)
	})
	return nil
}

// index returns the slot of name, creating it. Must hold t.lock.
func (t *Collector) index(name, unit string) int {
	idx, ok := t.indexes[name]
	if !ok {
		idx = len(t.stats)
		t.stats = append(t.stats, 0)
		t.timings = append(t.timings, 0)
		t.names = append(t.names, name)
		t.units = append(t.units, unit)
		t.indexes[name] = idx
	}
	return idx
}

func sampled(rate float64) bool {
	return rate >= 1 || rand.Float64() <= rate
}

// Count adds value to the named stat at the specified rate.
func (t *Collector) Count(name string, value int64, rate float64, tags ...string) {
	if !sampled(rate) {
		return
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	t.changed = true
	t.stats[t.index(name, "")] += float64(value)
}

// Gauge sets the named stat.
func (t *Collector) Gauge(name string, value float64, rate float64, tags ...string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.changed = true
	t.stats[t.index(name, "")] = value
}

// Histogram keeps the last value, like Gauge.
func (t *Collector) Histogram(name string, value float64, rate float64, tags ...string) {
	t.Gauge(name, value, rate, tags...)
}

// Set does nothing.
func (t *Collector) Set(name string, value string, rate float64, tags ...string) {}

// Timing accumulates value so the mean duration can be printed.
func (t *Collector) Timing(name string, value time.Duration, rate float64, tags ...string) {
	if !sampled(rate) {
		return
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	t.changed = true
	idx := t.index(name, "ms")
	t.stats[idx] += float64(value) / float64(time.Millisecond)
	t.timings[idx]++
}

// Flush prints the current stats on one line if anything changed since the
// last print.
func (t *Collector) Flush() {
	sb := strings.Builder{}
	t.lock.Lock()
	defer t.lock.Unlock()
	if !t.changed {
		return
	}
	for i := 0; i < len(t.stats); i++ {
		v := t.stats[i]
		if t.timings[i] > 0 {
			v /= float64(t.timings[i])
		}
		_, _ = sb.WriteString(fmt.Sprintf("%s: %g%s ", t.names[i], v, t.units[i]))
	}
	t.changed = false
	fmt.Fprint(t.out, "\r"+sb.String())
}
