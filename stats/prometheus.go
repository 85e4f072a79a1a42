// Package stats exposes the client's request statistics as Prometheus
// metrics.
package stats

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/generalsystem/dfi"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "dfi"

// PromStatter implements dfi.Statter on top of Prometheus. A metric is
// created and registered the first time its name is seen. Tags of the form
// "key:value" become labels; the label names of a metric are fixed by its
// first observation and later unknown keys are dropped.
type PromStatter struct {
	reg       prometheus.Registerer
	namespace string

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	labels     map[string][]string
	sets       map[string]map[string]struct{}
}

var _ dfi.Statter = (*PromStatter)(nil)

// NewPromStatter returns a PromStatter registering its metrics on reg. A
// nil reg is prometheus.DefaultRegisterer.
func NewPromStatter(reg prometheus.Registerer, namespace string) *PromStatter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PromStatter{
		reg:        reg,
		namespace:  namespace,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		labels:     make(map[string][]string),
		sets:       make(map[string]map[string]struct{}),
	}
}

// metricName turns "dfi.request.latency" into "request_latency" so that the
// namespace is not repeated.
func (p *PromStatter) metricName(name string) string {
	name = strings.TrimPrefix(name, p.namespace+".")
	return strings.NewReplacer(".", "_", "-", "_", " ", "_").Replace(name)
}

func parseTags(tags []string) map[string]string {
	m := make(map[string]string, len(tags))
	for _, t := range tags {
		k, v := t, ""
		if i := strings.Index(t, ":"); i >= 0 {
			k, v = t[:i], t[i+1:]
		}
		m[strings.NewReplacer(".", "_", "-", "_").Replace(k)] = v
	}
	return m
}

// labelsFor fixes the label names of name on first use and returns the
// label values of tags in that order. Must hold p.mu.
func (p *PromStatter) labelsFor(name string, tags []string) ([]string, prometheus.Labels) {
	m := parseTags(tags)
	keys, ok := p.labels[name]
	if !ok {
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		p.labels[name] = keys
	}
	vals := make(prometheus.Labels, len(keys))
	for _, k := range keys {
		vals[k] = m[k]
	}
	return keys, vals
}

// register registers c, returning the already registered collector if an
// equal one exists. A collector that conflicts with a registered one is
// returned unregistered and its observations are not exported.
func (p *PromStatter) register(c prometheus.Collector) prometheus.Collector {
	if err := p.reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
	}
	return c
}

// Count adds value to the named counter. Negative values are ignored.
func (p *PromStatter) Count(name string, value int64, rate float64, tags ...string) {
	if value < 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	keys, vals := p.labelsFor("c:"+name, tags)
	vec, ok := p.counters[name]
	if !ok {
		vec = p.register(prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      p.metricName(name) + "_total",
			Help:      "Count of " + name + ".",
		}, keys)).(*prometheus.CounterVec)
		p.counters[name] = vec
	}
	vec.With(vals).Add(float64(value))
}

func (p *PromStatter) gauge(name string, value float64, tags []string) {
	keys, vals := p.labelsFor("g:"+name, tags)
	vec, ok := p.gauges[name]
	if !ok {
		vec = p.register(prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Name:      p.metricName(name),
			Help:      "Value of " + name + ".",
		}, keys)).(*prometheus.GaugeVec)
		p.gauges[name] = vec
	}
	vec.With(vals).Set(value)
}

// Gauge sets the named gauge.
func (p *PromStatter) Gauge(name string, value float64, rate float64, tags ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gauge(name, value, tags)
}

func (p *PromStatter) observe(name, suffix string, value float64, buckets []float64, tags []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys, vals := p.labelsFor("h:"+name, tags)
	vec, ok := p.histograms[name]
	if !ok {
		vec = p.register(prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Name:      p.metricName(name) + suffix,
			Help:      "Distribution of " + name + ".",
			Buckets:   buckets,
		}, keys)).(*prometheus.HistogramVec)
		p.histograms[name] = vec
	}
	vec.With(vals).Observe(value)
}

// Histogram observes value in the named histogram.
func (p *PromStatter) Histogram(name string, value float64, rate float64, tags ...string) {
	p.observe(name, "", value, prometheus.DefBuckets, tags)
}

// Timing observes value, in seconds, in the named histogram.
func (p *PromStatter) Timing(name string, value time.Duration, rate float64, tags ...string) {
	p.observe(name, "_seconds", value.Seconds(), prometheus.ExponentialBuckets(0.005, 2, 14), tags)
}

// Set tracks the number of distinct values seen for name as a gauge.
func (p *PromStatter) Set(name string, value string, rate float64, tags ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	seen, ok := p.sets[name]
	if !ok {
		seen = make(map[string]struct{})
		p.sets[name] = seen
	}
	seen[value] = struct{}{}
	p.gauge(name+"_distinct", float64(len(seen)), tags)
}
