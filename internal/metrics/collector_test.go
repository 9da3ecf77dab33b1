package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/pgx-risk-engine/internal/domain"
)

func testCollector() *Collector {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return NewCollector(logger)
}

func TestCollectorRecordsAnalyses(t *testing.T) {
	c := testCollector()

	c.RecordAnalysis(&domain.AnalysisReport{
		Findings: []domain.Finding{
			{Severity: domain.CRITICAL},
			{Severity: domain.HIGH},
			{Severity: domain.HIGH},
		},
		Recommendations: []domain.Recommendation{{Priority: 1}, {Priority: 2}},
		Warnings:        []domain.AnalysisWarning{{Code: "unknown_drug"}},
		ProcessingTime:  10 * time.Millisecond,
	})
	c.RecordAnalysis(&domain.AnalysisReport{ProcessingTime: 30 * time.Millisecond})

	snap := c.Snapshot()
	assert.Equal(t, int64(2), snap.Analyses)
	assert.Equal(t, int64(1), snap.Findings["critical"])
	assert.Equal(t, int64(2), snap.Findings["high"])
	assert.Equal(t, int64(2), snap.Recommendations)
	assert.Equal(t, int64(1), snap.Warnings)
	assert.InDelta(t, 20.0, snap.AvgAnalysisMillis, 0.001)
}

func TestCollectorSplitsFailureKinds(t *testing.T) {
	c := testCollector()

	c.RecordAnalysisFailure(domain.NewInputError("patient_id", "missing", nil))
	c.RecordAnalysisFailure(assert.AnError)

	snap := c.Snapshot()
	assert.Equal(t, int64(2), snap.AnalysisFailures)
	assert.Equal(t, int64(1), snap.InputErrors)
}

func TestCollectorRecordsBatchesAndCache(t *testing.T) {
	c := testCollector()

	c.RecordBatch(&domain.BatchSummary{PatientCount: 7})
	c.RecordBatch(&domain.BatchSummary{PatientCount: 3})
	c.RecordCacheHit()
	c.RecordCacheMiss()
	c.RecordCacheMiss()

	snap := c.Snapshot()
	assert.Equal(t, int64(2), snap.BatchRuns)
	assert.Equal(t, int64(10), snap.PatientsProcessed)
	assert.Equal(t, int64(1), snap.CacheHits)
	assert.Equal(t, int64(2), snap.CacheMisses)
	assert.Greater(t, snap.UptimeSeconds, 0.0)
}

func TestCollectorIgnoresNil(t *testing.T) {
	c := testCollector()

	c.RecordAnalysis(nil)
	c.RecordBatch(nil)

	snap := c.Snapshot()
	assert.Zero(t, snap.Analyses)
	assert.Zero(t, snap.BatchRuns)
}

func TestCollectorConcurrentUse(t *testing.T) {
	c := testCollector()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.RecordAnalysis(&domain.AnalysisReport{
					Findings: []domain.Finding{{Severity: domain.MODERATE}},
				})
				c.RecordCacheMiss()
				_ = c.Snapshot()
			}
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	assert.Equal(t, int64(1000), snap.Analyses)
	assert.Equal(t, int64(1000), snap.Findings["moderate"])
	assert.Equal(t, int64(1000), snap.CacheMisses)
}
