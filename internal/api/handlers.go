package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/pgx-risk-engine/internal/domain"
	"github.com/pgx-risk-engine/internal/service"
	"github.com/pgx-risk-engine/internal/store"
	"github.com/pgx-risk-engine/pkg/cache"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleHealth reports per-component health. A failing store makes the
// endpoint return 503; a degraded cache only downgrades the overall
// status, since the cache falls back to pass-through.
func (s *Server) handleHealth(c *gin.Context) {
	httpStatus := http.StatusOK
	components := gin.H{}

	info := s.deps.KB.Info()
	components["kb"] = gin.H{
		"status":  "healthy",
		"version": info.Version,
		"genes":   info.Genes,
		"drugs":   info.Drugs,
	}

	switch {
	case s.deps.DB != nil:
		if err := s.deps.DB.Health(c.Request.Context()); err != nil {
			components["store"] = gin.H{"status": "unhealthy", "error": err.Error()}
			httpStatus = http.StatusServiceUnavailable
		} else {
			components["store"] = gin.H{"status": "healthy", "driver": s.cfg.Store.Driver}
		}
	case s.deps.RunStore != nil:
		if _, err := s.deps.RunStore.Count(c.Request.Context()); err != nil {
			components["store"] = gin.H{"status": "unhealthy", "error": err.Error()}
			httpStatus = http.StatusServiceUnavailable
		} else {
			components["store"] = gin.H{"status": "healthy", "driver": s.cfg.Store.Driver}
		}
	default:
		components["store"] = gin.H{"status": "disabled"}
	}

	cacheStats := s.deps.Cache.Stats()
	cacheStatus := "healthy"
	if cacheStats.Degraded {
		cacheStatus = "degraded"
	}
	components["cache"] = gin.H{"status": cacheStatus, "backend": cacheStats.Backend}

	overall := "healthy"
	switch {
	case httpStatus != http.StatusOK:
		overall = "unhealthy"
	case cacheStats.Degraded:
		overall = "degraded"
	}

	c.JSON(httpStatus, gin.H{
		"status":     overall,
		"timestamp":  time.Now().UTC(),
		"kb_version": info.Version,
		"components": components,
	})
}

// handleKBInfo describes the loaded knowledge base snapshot.
func (s *Server) handleKBInfo(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.KB.Info())
}

// handleAnalyze runs the interpretation pipeline for one patient. The
// response cache is keyed on the raw request body plus the KB version,
// so a KB reload invalidates every cached answer.
func (s *Server) handleAnalyze(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil || len(body) == 0 {
		s.writeError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput,
			"request body is required", "send a patient JSON document")
		return
	}

	key := cache.Key(s.deps.KB.Info().Version, body)
	if cached, ok := s.deps.Cache.Get(c.Request.Context(), key); ok {
		if s.cfg.Cache.Enabled && s.deps.Collector != nil {
			s.deps.Collector.RecordCacheHit()
		}
		c.Header("X-Cache", "HIT")
		c.Data(http.StatusOK, "application/json; charset=utf-8", cached)
		return
	}
	if s.cfg.Cache.Enabled && s.deps.Collector != nil {
		s.deps.Collector.RecordCacheMiss()
	}

	patient, err := s.parser.ParsePatient(body)
	if err != nil {
		s.writeAnalysisError(c, err)
		return
	}

	report, err := s.deps.Engine.Analyze(c.Request.Context(), patient)
	if err != nil {
		s.writeAnalysisError(c, err)
		return
	}
	if s.deps.Collector != nil {
		s.deps.Collector.RecordAnalysis(report)
	}

	payload, err := json.Marshal(report)
	if err != nil {
		s.writeError(c, http.StatusInternalServerError, domain.ErrCodeInternal,
			"failed to encode analysis report", err.Error())
		return
	}
	s.deps.Cache.Set(c.Request.Context(), key, payload)

	c.Header("X-Cache", "MISS")
	c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
}

// handleAnalyzeBatch runs a cohort synchronously and returns the full
// summary. The audit record is persisted best-effort: a store failure
// is logged, never surfaced to the caller.
func (s *Server) handleAnalyzeBatch(c *gin.Context) {
	patients, ok := s.readBatch(c)
	if !ok {
		return
	}

	summary, err := s.deps.Batch.Run(c.Request.Context(), patients)
	if err != nil {
		s.writeAnalysisError(c, err)
		return
	}
	if s.deps.Collector != nil {
		s.deps.Collector.RecordBatch(summary)
	}
	if s.deps.RunStore != nil {
		if saveErr := s.deps.RunStore.Save(c.Request.Context(), store.NewRunRecord(summary)); saveErr != nil {
			s.logger.WithError(saveErr).WithField("run_id", summary.RunID).
				Warn("Failed to persist run audit record")
		}
	}

	c.JSON(http.StatusOK, summary)
}

// handleSubmitJob accepts a cohort for background analysis and returns
// 202 with the job handle.
func (s *Server) handleSubmitJob(c *gin.Context) {
	patients, ok := s.readBatch(c)
	if !ok {
		return
	}

	job := s.jobs.Submit(patients)
	c.JSON(http.StatusAccepted, gin.H{
		"job_id":        job.ID,
		"status":        job.Status,
		"patient_count": job.PatientCount,
		"submitted_at":  job.SubmittedAt,
		"events_url":    fmt.Sprintf("/api/v1/batch/jobs/%s/events", job.ID),
	})
}

// handleJobStatus returns the current job snapshot, including the
// summary once the job completed.
func (s *Server) handleJobStatus(c *gin.Context) {
	job, ok := s.jobs.Get(c.Param("id"))
	if !ok {
		s.writeError(c, http.StatusNotFound, domain.ErrCodeJobNotFound,
			"job not found", "terminal jobs are retained for one hour")
		return
	}
	c.JSON(http.StatusOK, job)
}

// handleJobEvents upgrades to WebSocket and streams the job's progress:
// recorded history first, then live events until the job finishes.
func (s *Server) handleJobEvents(c *gin.Context) {
	history, live, cancelSub, ok := s.jobs.Subscribe(c.Param("id"))
	if !ok {
		s.writeError(c, http.StatusNotFound, domain.ErrCodeJobNotFound,
			"job not found", "terminal jobs are retained for one hour")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		cancelSub()
		s.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	s.streamJobEvents(conn, history, live, cancelSub)
}

// streamJobEvents is the write pump for one subscriber. A reader
// goroutine discards inbound frames so client close is detected.
func (s *Server) streamJobEvents(conn *websocket.Conn, history []JobEvent, live chan JobEvent, cancelSub func()) {
	defer func() {
		cancelSub()
		conn.Close()
	}()

	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		conn.SetReadLimit(512)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for _, ev := range history {
		if err := writeEvent(conn, ev); err != nil {
			return
		}
	}
	if live == nil {
		sendClose(conn)
		return
	}

	for {
		select {
		case ev, open := <-live:
			if !open {
				sendClose(conn)
				return
			}
			if err := writeEvent(conn, ev); err != nil {
				return
			}
		case <-clientGone:
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, ev JobEvent) error {
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(ev)
}

func sendClose(conn *websocket.Conn) {
	conn.SetWriteDeadline(time.Now().Add(time.Second))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"))
}

// handleStats serves the engine metrics snapshot alongside cache, job,
// and KB state.
func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"engine": s.deps.Collector.Snapshot(),
		"cache":  s.deps.Cache.Stats(),
		"jobs":   s.jobs.Stats(),
		"kb":     s.deps.KB.Info(),
	})
}

// readBatch decodes and bounds-checks a batch payload. On failure it
// writes the error response and returns ok=false.
func (s *Server) readBatch(c *gin.Context) ([]domain.Patient, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil || len(body) == 0 {
		s.writeError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput,
			"request body is required", "send a patients JSON document")
		return nil, false
	}

	patients, err := s.parser.ParsePatients(body)
	if err != nil {
		s.writeAnalysisError(c, err)
		return nil, false
	}

	if max := s.cfg.Batch.MaxPayload; max > 0 && len(patients) > max {
		s.writeError(c, http.StatusRequestEntityTooLarge, domain.ErrCodeInvalidInput,
			"batch exceeds maximum payload",
			fmt.Sprintf("got %d patients, limit is %d", len(patients), max))
		return nil, false
	}
	return patients, true
}

// writeAnalysisError maps pipeline errors onto HTTP statuses: rejected
// input is the caller's fault, a broken invariant is ours.
func (s *Server) writeAnalysisError(c *gin.Context, err error) {
	if s.deps.Collector != nil {
		s.deps.Collector.RecordAnalysisFailure(err)
	}

	switch {
	case domain.IsInputError(err):
		s.writeError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput,
			"invalid patient payload", err.Error())
	case service.IsFatal(err):
		s.logger.WithError(err).Error("Interpretation invariant violated")
		s.writeError(c, http.StatusInternalServerError, domain.ErrCodeInvariant,
			"analysis aborted by internal defect", "")
	default:
		s.logger.WithError(err).Error("Analysis failed")
		s.writeError(c, http.StatusInternalServerError, domain.ErrCodeInternal,
			"analysis failed", "")
	}
}

func (s *Server) writeError(c *gin.Context, status int, code, message, details string) {
	c.AbortWithStatusJSON(status, domain.NewAPIError(code, message, details, c.GetString("correlation_id")))
}
