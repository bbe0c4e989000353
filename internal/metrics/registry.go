// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics keeps in-process counters and histograms for module runs
// and the data store, written in the Prometheus text format.
package metrics

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Registry collects counters and histograms for Prometheus exposition.
type Registry struct {
	mu sync.Mutex

	buildInfoLabels      map[string]string
	moduleRuns           map[[2]string]uint64
	moduleRunSeconds     map[string]*histogram
	containerRunsTotal   uint64
	persistenceLatency   map[[2]string]*histogram
	persistenceEvictions map[string]uint64
	persistenceBytes     map[string]uint64
}

// NewRegistry constructs a registry with the default persistence series
// pre-created so they are exported even when zero.
func NewRegistry() *Registry {
	r := &Registry{
		buildInfoLabels:      map[string]string{"version": "dev"},
		moduleRuns:           make(map[[2]string]uint64),
		moduleRunSeconds:     make(map[string]*histogram),
		persistenceLatency:   make(map[[2]string]*histogram),
		persistenceEvictions: make(map[string]uint64),
		persistenceBytes:     make(map[string]uint64),
	}
	for op, outcomes := range latencyDefaults {
		for _, outcome := range outcomes {
			r.persistenceLatency[[2]string{op, outcome}] = newHistogram(persistenceLatencyBuckets)
		}
	}
	r.persistenceEvictions[PersistenceKindJournal] = 0
	r.persistenceBytes[PersistenceKindJournal] = 0
	return r
}

// Default is the process-wide registry.
var Default = NewRegistry()

// SetBuildInfo configures the labels of slwrap_build_info.
func (r *Registry) SetBuildInfo(labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range labels {
		r.buildInfoLabels[k] = v
	}
}

// RecordModuleRun counts a finished module run and observes its duration.
func (r *Registry) RecordModuleRun(module, status string, container bool, duration time.Duration) {
	module = normalizeLabel(module)
	status = normalizeLabel(status)
	if module == "" {
		module = "unknown"
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.moduleRuns[[2]string{module, status}]++
	hist, ok := r.moduleRunSeconds[module]
	if !ok {
		hist = newHistogram(runSecondsBuckets)
		r.moduleRunSeconds[module] = hist
	}
	hist.observe(duration.Seconds())
	if container {
		r.containerRunsTotal++
	}
}

// ModuleRuns returns the run count for module and status.
func (r *Registry) ModuleRuns(module, status string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.moduleRuns[[2]string{normalizeLabel(module), normalizeLabel(status)}]
}

// RecordPersistenceLatency records the latency of a persistence operation.
func (r *Registry) RecordPersistenceLatency(operation, outcome string, duration time.Duration) {
	operation = normalizeLabel(operation)
	outcome = normalizeLabel(outcome)
	if operation == "" || duration < 0 {
		return
	}
	if outcome == "" {
		outcome = PersistenceOutcomeOK
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := [2]string{operation, outcome}
	hist, ok := r.persistenceLatency[key]
	if !ok {
		hist = newHistogram(persistenceLatencyBuckets)
		r.persistenceLatency[key] = hist
	}
	hist.observe(duration.Seconds() * 1000)
}

// PersistenceCount returns how many operations ended with outcome.
func (r *Registry) PersistenceCount(operation, outcome string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.persistenceLatency[[2]string{normalizeLabel(operation), normalizeLabel(outcome)}]; ok {
		return h.count
	}
	return 0
}

// RecordPersistenceEviction counts one evicted record of kind.
func (r *Registry) RecordPersistenceEviction(kind string, bytes int64) {
	kind = normalizeLabel(kind)
	if kind == "" {
		kind = "unknown"
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.persistenceEvictions[kind]++
	r.persistenceBytes[kind] += uint64(max(bytes, 0))
}

// WriteTo writes the Prometheus text exposition of r.
func (r *Registry) WriteTo(w io.Writer) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cw := &countingWriter{w: w}
	buf := bufio.NewWriter(cw)

	writeMetricHeader(buf, "slwrap_build_info", "slwrap build info", "gauge")
	fmt.Fprintf(buf, "slwrap_build_info%s 1\n\n", labelsToString(r.buildInfoLabels))

	writeMetricHeader(buf, "slwrap_module_runs_total", "Module runs by module and status", "counter")
	runKeys := sortedPairs(r.moduleRuns)
	for _, key := range runKeys {
		fmt.Fprintf(buf, "slwrap_module_runs_total{module=%q,status=%q} %d\n", key[0], key[1], r.moduleRuns[key])
	}
	buf.WriteByte('\n')

	writeMetricHeader(buf, "slwrap_module_run_seconds", "Module run duration in seconds", "histogram")
	for _, module := range sortedKeys(r.moduleRunSeconds) {
		r.moduleRunSeconds[module].writeWithLabels(buf, "slwrap_module_run_seconds", map[string]string{"module": module})
	}

	writeMetricHeader(buf, "slwrap_container_runs_total", "Module runs inside a container runtime", "counter")
	fmt.Fprintf(buf, "slwrap_container_runs_total %d\n\n", r.containerRunsTotal)

	writeMetricHeader(buf, "slwrap_persistence_latency_ms", "Persistence operation latency in milliseconds", "histogram")
	for _, key := range sortedPairs(r.persistenceLatency) {
		r.persistenceLatency[key].writeWithLabels(buf, "slwrap_persistence_latency_ms", map[string]string{
			"operation": key[0],
			"outcome":   key[1],
		})
	}

	writeMetricHeader(buf, "slwrap_persistence_evictions_total", "Persistence evictions by kind", "counter")
	for _, kind := range sortedKeys(r.persistenceEvictions) {
		fmt.Fprintf(buf, "slwrap_persistence_evictions_total{kind=%q} %d\n", kind, r.persistenceEvictions[kind])
	}
	buf.WriteByte('\n')

	writeMetricHeader(buf, "slwrap_persistence_eviction_bytes_total", "Bytes reclaimed by persistence evictions", "counter")
	for _, kind := range sortedKeys(r.persistenceBytes) {
		fmt.Fprintf(buf, "slwrap_persistence_eviction_bytes_total{kind=%q} %d\n", kind, r.persistenceBytes[kind])
	}

	err := buf.Flush()
	return cw.n, err
}

// WriteFile replaces path with the exposition of r. The file is written next
// to path and renamed, so a collector never reads a partial file.
func (r *Registry) WriteFile(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("metrics file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := r.WriteTo(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("metrics file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("metrics file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("metrics file: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func writeMetricHeader(buf *bufio.Writer, name, help, metricType string) {
	if help != "" {
		fmt.Fprintf(buf, "# HELP %s %s\n", name, strings.ReplaceAll(help, "\\", "\\\\"))
	}
	if metricType != "" {
		fmt.Fprintf(buf, "# TYPE %s %s\n", name, metricType)
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

func sortedPairs[V any](m map[[2]string]V) [][2]string {
	keys := make([][2]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})
	return keys
}

func labelsWithLE(labels map[string]string, le float64) string {
	labelCopy := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		labelCopy[k] = v
	}
	if math.IsInf(le, 1) {
		labelCopy["le"] = "+Inf"
	} else {
		labelCopy["le"] = strconv.FormatFloat(le, 'f', -1, 64)
	}
	return labelsToString(labelCopy)
}

func labelsToString(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	parts := make([]string, 0, len(labels))
	for _, k := range sortedKeys(labels) {
		parts = append(parts, fmt.Sprintf("%s=%q", k, labels[k]))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func normalizeLabel(v string) string {
	return strings.TrimSpace(strings.ToLower(v))
}

var (
	persistenceLatencyBuckets = []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}
	runSecondsBuckets         = []float64{0.5, 1, 2, 5, 10, 20, 60, 120, 300, 600, 1800}
)

// histogram is cumulative: counts[i] holds observations <= buckets[i].
type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: append([]float64(nil), buckets...),
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) observe(value float64) {
	if value < 0 {
		value = 0
	}
	for i, upper := range h.buckets {
		if value <= upper {
			h.counts[i]++
		}
	}
	h.count++
	h.sum += value
}

func (h *histogram) writeWithLabels(buf *bufio.Writer, name string, labels map[string]string) {
	for i, upper := range h.buckets {
		fmt.Fprintf(buf, "%s_bucket%s %d\n", name, labelsWithLE(labels, upper), h.counts[i])
	}
	fmt.Fprintf(buf, "%s_bucket%s %d\n", name, labelsWithLE(labels, math.Inf(1)), h.count)
	fmt.Fprintf(buf, "%s_sum%s %g\n", name, labelsToString(labels), h.sum)
	fmt.Fprintf(buf, "%s_count%s %d\n\n", name, labelsToString(labels), h.count)
}
