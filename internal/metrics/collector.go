// Package metrics renders the bot's counters, gauges and histograms in the
// Prometheus text exposition format.
package metrics

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the process-wide collector.
var Collector = NewCollector("memorylane")

// Registry aggregates counters, gauges, and histograms.
type Registry struct {
	namespace  string
	mu         sync.RWMutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
	startTime  time.Time
}

// NewCollector creates an empty registry whose uptime gauge is prefixed with namespace.
func NewCollector(namespace string) *Registry {
	return &Registry{
		namespace:  namespace,
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
		startTime:  time.Now(),
	}
}

// Uptime returns how long the registry has existed.
func (c *Registry) Uptime() time.Duration {
	return time.Since(c.startTime)
}

type series struct {
	name   string
	help   string
	labels string
}

func (s series) key() string { return s.name + "{" + s.labels + "}" }

// Counter is a monotonically increasing counter.
type Counter struct {
	series
	value atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	series
	value atomic.Int64
}

func (g *Gauge) Set(v int64)  { g.value.Store(v) }
func (g *Gauge) Inc()         { g.value.Add(1) }
func (g *Gauge) Dec()         { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram tracks the distribution of observed values.
type Histogram struct {
	series
	mu      sync.Mutex
	count   int64
	sum     float64
	bounds  []float64
	buckets []int64
}

// Observe records v.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, le := range h.bounds {
		if v <= le {
			h.buckets[i]++
		}
	}
}

// ObserveSince records the seconds elapsed since start.
func (h *Histogram) ObserveSince(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Count returns the number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Counter returns or creates the counter for name and labels.
func (c *Registry) Counter(name, help, labels string) *Counter {
	s := series{name, help, labels}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctr, ok := c.counters[s.key()]; ok {
		return ctr
	}
	ctr := &Counter{series: s}
	c.counters[s.key()] = ctr
	return ctr
}

// Gauge returns or creates the gauge for name and labels.
func (c *Registry) Gauge(name, help, labels string) *Gauge {
	s := series{name, help, labels}
	c.mu.Lock()
	defer c.mu.Unlock()
	if g, ok := c.gauges[s.key()]; ok {
		return g
	}
	g := &Gauge{series: s}
	c.gauges[s.key()] = g
	return g
}

// Histogram returns or creates the histogram for name and labels. A +Inf
// bucket is always appended.
func (c *Registry) Histogram(name, help, labels string, buckets []float64) *Histogram {
	s := series{name, help, labels}
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.histograms[s.key()]; ok {
		return h
	}
	bounds := append([]float64(nil), buckets...)
	sort.Float64s(bounds)
	if len(bounds) == 0 || !math.IsInf(bounds[len(bounds)-1], 1) {
		bounds = append(bounds, math.Inf(1))
	}
	h := &Histogram{series: s, bounds: bounds, buckets: make([]int64, len(bounds))}
	c.histograms[s.key()] = h
	return h
}

// Handler renders all series in Prometheus text format.
func (c *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		fmt.Fprint(w, c.Render())
	}
}

// Render returns the exposition text. Series are sorted for stable output.
func (c *Registry) Render() string {
	var sb strings.Builder

	uptime := c.namespace + "_uptime_seconds"
	fmt.Fprintf(&sb, "# HELP %s Time since start in seconds\n", uptime)
	fmt.Fprintf(&sb, "# TYPE %s gauge\n", uptime)
	fmt.Fprintf(&sb, "%s %d\n", uptime, int64(c.Uptime().Seconds()))

	c.mu.RLock()
	defer c.mu.RUnlock()

	written := make(map[string]bool)
	header := func(s series, kind string) {
		if written[s.name] {
			return
		}
		written[s.name] = true
		fmt.Fprintf(&sb, "# HELP %s %s\n", s.name, s.help)
		fmt.Fprintf(&sb, "# TYPE %s %s\n", s.name, kind)
	}

	for _, k := range sortedKeys(c.counters) {
		ctr := c.counters[k]
		header(ctr.series, "counter")
		fmt.Fprintf(&sb, "%s %d\n", withLabels(ctr.name, ctr.labels, ""), ctr.Value())
	}
	for _, k := range sortedKeys(c.gauges) {
		g := c.gauges[k]
		header(g.series, "gauge")
		fmt.Fprintf(&sb, "%s %d\n", withLabels(g.name, g.labels, ""), g.Value())
	}
	for _, k := range sortedKeys(c.histograms) {
		h := c.histograms[k]
		header(h.series, "histogram")
		h.mu.Lock()
		for i, le := range h.bounds {
			bound := fmt.Sprintf("%g", le)
			if math.IsInf(le, 1) {
				bound = "+Inf"
			}
			fmt.Fprintf(&sb, "%s %d\n", withLabels(h.name+"_bucket", h.labels, `le="`+bound+`"`), h.buckets[i])
		}
		fmt.Fprintf(&sb, "%s %d\n", withLabels(h.name+"_count", h.labels, ""), h.count)
		fmt.Fprintf(&sb, "%s %f\n", withLabels(h.name+"_sum", h.labels, ""), h.sum)
		h.mu.Unlock()
	}
	return sb.String()
}

func withLabels(name, labels, extra string) string {
	switch {
	case labels == "" && extra == "":
		return name
	case labels == "":
		return name + "{" + extra + "}"
	case extra == "":
		return name + "{" + labels + "}"
	default:
		return name + "{" + labels + "," + extra + "}"
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Series used across the bot.
var (
	EventsReceived   = Collector.Counter("memorylane_events_received_total", "Slack webhook calls received", "")
	EventsDuplicate  = Collector.Counter("memorylane_events_duplicate_total", "Slack events dropped as redeliveries", "")
	MentionsAccepted = Collector.Counter("memorylane_mentions_accepted_total", "app_mention events dispatched", "")
	GenerationsOK    = Collector.Counter("memorylane_generations_total", "Completed mention jobs", `status="succeeded"`)
	GenerationsFail  = Collector.Counter("memorylane_generations_total", "Completed mention jobs", `status="failed"`)
	JobsInFlight     = Collector.Gauge("memorylane_jobs_in_flight", "Dispatched jobs still running", "")

	GenerationLatency = Collector.Histogram("memorylane_generation_seconds", "Replicate prediction latency in seconds", "",
		[]float64{5, 10, 20, 30, 45, 60, 90, 120})
	DeliveryLatency = Collector.Histogram("memorylane_delivery_seconds", "End-to-end mention handling latency in seconds", "",
		[]float64{5, 10, 20, 30, 60, 90, 120, 180})
)
