// Package metrics collects engine counters for the stats endpoint and
// operational logging. Counters are process-local; the collector hands
// out immutable snapshots.
package metrics

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pgx-risk-engine/internal/domain"
)

// Collector accumulates engine activity counters. Safe for concurrent
// use by the API handlers, the batch runner, and the MCP tools.
type Collector struct {
	logger *logrus.Logger

	mu                 sync.RWMutex
	startedAt          time.Time
	analyses           int64
	analysisFailures   int64
	inputErrors        int64
	batchRuns          int64
	patientsProcessed  int64
	findingsBySeverity map[domain.Severity]int64
	recommendations    int64
	warnings           int64
	cacheHits          int64
	cacheMisses        int64
	totalAnalysisTime  time.Duration
}

// Snapshot is a point-in-time copy of the collector counters.
type Snapshot struct {
	UptimeSeconds     float64          `json:"uptime_seconds"`
	Analyses          int64            `json:"analyses"`
	AnalysisFailures  int64            `json:"analysis_failures"`
	InputErrors       int64            `json:"input_errors"`
	BatchRuns         int64            `json:"batch_runs"`
	PatientsProcessed int64            `json:"patients_processed"`
	Findings          map[string]int64 `json:"findings_by_severity"`
	Recommendations   int64            `json:"recommendations"`
	Warnings          int64            `json:"warnings"`
	CacheHits         int64            `json:"cache_hits"`
	CacheMisses       int64            `json:"cache_misses"`
	AvgAnalysisMillis float64          `json:"avg_analysis_ms"`
}

// NewCollector creates a metrics collector.
func NewCollector(logger *logrus.Logger) *Collector {
	if logger == nil {
		logger = logrus.New()
	}
	return &Collector{
		logger:             logger,
		startedAt:          time.Now(),
		findingsBySeverity: make(map[domain.Severity]int64),
	}
}

// RecordAnalysis counts one completed patient analysis and its report
// contents.
func (c *Collector) RecordAnalysis(report *domain.AnalysisReport) {
	if report == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.analyses++
	c.totalAnalysisTime += report.ProcessingTime
	c.recommendations += int64(len(report.Recommendations))
	c.warnings += int64(len(report.Warnings))
	for i := range report.Findings {
		c.findingsBySeverity[report.Findings[i].Severity]++
	}
}

// RecordAnalysisFailure counts one failed analysis, splitting input
// errors from pipeline failures.
func (c *Collector) RecordAnalysisFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.analysisFailures++
	if domain.IsInputError(err) {
		c.inputErrors++
	}
}

// RecordBatch counts one finished batch run.
func (c *Collector) RecordBatch(summary *domain.BatchSummary) {
	if summary == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.batchRuns++
	c.patientsProcessed += int64(summary.PatientCount)
}

// RecordCacheHit counts a response served from cache.
func (c *Collector) RecordCacheHit() {
	c.mu.Lock()
	c.cacheHits++
	c.mu.Unlock()
}

// RecordCacheMiss counts a response computed fresh.
func (c *Collector) RecordCacheMiss() {
	c.mu.Lock()
	c.cacheMisses++
	c.mu.Unlock()
}

// Snapshot returns a copy of the current counters.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	findings := make(map[string]int64, len(c.findingsBySeverity))
	for severity, count := range c.findingsBySeverity {
		findings[severity.String()] = count
	}

	snap := Snapshot{
		UptimeSeconds:     time.Since(c.startedAt).Seconds(),
		Analyses:          c.analyses,
		AnalysisFailures:  c.analysisFailures,
		InputErrors:       c.inputErrors,
		BatchRuns:         c.batchRuns,
		PatientsProcessed: c.patientsProcessed,
		Findings:          findings,
		Recommendations:   c.recommendations,
		Warnings:          c.warnings,
		CacheHits:         c.cacheHits,
		CacheMisses:       c.cacheMisses,
	}
	if c.analyses > 0 {
		snap.AvgAnalysisMillis = float64(c.totalAnalysisTime.Milliseconds()) / float64(c.analyses)
	}
	return snap
}

// LogSummary writes the current counters to the log at Info level.
func (c *Collector) LogSummary() {
	snap := c.Snapshot()
	c.logger.WithFields(logrus.Fields{
		"analyses":           snap.Analyses,
		"failures":           snap.AnalysisFailures,
		"batch_runs":         snap.BatchRuns,
		"patients_processed": snap.PatientsProcessed,
		"cache_hits":         snap.CacheHits,
		"cache_misses":       snap.CacheMisses,
	}).Info("Engine metrics summary")
}
