package api

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pgx-risk-engine/internal/domain"
	"github.com/pgx-risk-engine/internal/metrics"
	"github.com/pgx-risk-engine/internal/service"
	"github.com/pgx-risk-engine/internal/store"
)

// JobStatus tracks an asynchronous batch job through its lifetime.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Event types on a job's progress stream.
const (
	EventPatientCompleted = "patient_completed"
	EventPatientFailed    = "patient_failed"
	EventJobCompleted     = "job_completed"
	EventJobFailed        = "job_failed"
)

// JobEvent is one progress message on a job's event stream.
type JobEvent struct {
	Type      string    `json:"type"`
	JobID     string    `json:"job_id"`
	PatientID string    `json:"patient_id,omitempty"`
	Completed int       `json:"completed"`
	Total     int       `json:"total"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Job is the externally visible state of an asynchronous batch job.
type Job struct {
	ID           string               `json:"job_id"`
	Status       JobStatus            `json:"status"`
	SubmittedAt  time.Time            `json:"submitted_at"`
	StartedAt    *time.Time           `json:"started_at,omitempty"`
	FinishedAt   *time.Time           `json:"finished_at,omitempty"`
	PatientCount int                  `json:"patient_count"`
	Completed    int                  `json:"completed"`
	Summary      *domain.BatchSummary `json:"summary,omitempty"`
	Error        string               `json:"error,omitempty"`
}

// terminal reports whether the job has finished, successfully or not.
func (j *Job) terminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}

// jobState pairs a job with its event history and live subscribers.
type jobState struct {
	job    Job
	events []JobEvent
	subs   map[chan JobEvent]struct{}
}

// JobStats summarizes the manager's population for the stats endpoint.
type JobStats struct {
	Total     int `json:"total"`
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// batchRunner is the slice of the batch runner the job manager needs.
type batchRunner interface {
	RunWithProgress(ctx context.Context, patients []domain.Patient, progress service.ProgressFunc) (*domain.BatchSummary, error)
}

// JobManager runs batch jobs in the background and streams per-patient
// progress to subscribers. Terminal jobs stay queryable for the
// retention window, then get reaped.
type JobManager struct {
	mu   sync.Mutex
	jobs map[string]*jobState

	runner    batchRunner
	runStore  store.RunStore
	collector *metrics.Collector
	logger    *logrus.Logger
	retention time.Duration
}

// NewJobManager creates a job manager over the given batch runner.
// runStore may be nil when run auditing is disabled.
func NewJobManager(runner batchRunner, runStore store.RunStore, collector *metrics.Collector, logger *logrus.Logger) *JobManager {
	if logger == nil {
		logger = logrus.New()
	}
	m := &JobManager{
		jobs:      make(map[string]*jobState),
		runner:    runner,
		runStore:  runStore,
		collector: collector,
		logger:    logger,
		retention: time.Hour,
	}
	go m.startCleanupRoutine()
	return m
}

// Submit registers a new job and starts it in the background.
func (m *JobManager) Submit(patients []domain.Patient) Job {
	job := Job{
		ID:           uuid.New().String(),
		Status:       JobQueued,
		SubmittedAt:  time.Now().UTC(),
		PatientCount: len(patients),
	}

	m.mu.Lock()
	m.jobs[job.ID] = &jobState{
		job:  job,
		subs: make(map[chan JobEvent]struct{}),
	}
	m.mu.Unlock()

	go m.run(job.ID, patients)

	m.logger.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"patients": len(patients),
	}).Info("Batch job submitted")

	return job
}

// Get returns a snapshot of a job's state.
func (m *JobManager) Get(id string) (Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return state.job, true
}

// Subscribe attaches to a job's event stream. The returned history
// holds every event published so far; the channel carries the rest and
// is closed when the job finishes. A terminal job returns its full
// history and a nil channel. cancel must be called when the subscriber
// leaves.
func (m *JobManager) Subscribe(id string) (history []JobEvent, ch chan JobEvent, cancel func(), ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, found := m.jobs[id]
	if !found {
		return nil, nil, nil, false
	}

	history = make([]JobEvent, len(state.events))
	copy(history, state.events)

	if state.job.terminal() {
		return history, nil, func() {}, true
	}

	ch = make(chan JobEvent, 64)
	state.subs[ch] = struct{}{}

	cancel = func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if st, still := m.jobs[id]; still {
			if _, live := st.subs[ch]; live {
				delete(st.subs, ch)
				close(ch)
			}
		}
	}
	return history, ch, cancel, true
}

// Stats counts jobs by status.
func (m *JobManager) Stats() JobStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := JobStats{Total: len(m.jobs)}
	for _, state := range m.jobs {
		switch state.job.Status {
		case JobQueued:
			stats.Queued++
		case JobRunning:
			stats.Running++
		case JobCompleted:
			stats.Completed++
		case JobFailed:
			stats.Failed++
		}
	}
	return stats
}

// run executes the batch and publishes progress. Jobs deliberately run
// on a background context: the submitting request has long returned.
func (m *JobManager) run(id string, patients []domain.Patient) {
	now := time.Now().UTC()
	m.mu.Lock()
	if state, ok := m.jobs[id]; ok {
		state.job.Status = JobRunning
		state.job.StartedAt = &now
	}
	m.mu.Unlock()

	summary, err := m.runner.RunWithProgress(context.Background(), patients, func(p service.Progress) {
		ev := JobEvent{
			Type:      EventPatientCompleted,
			JobID:     id,
			PatientID: p.PatientID,
			Completed: p.Completed,
			Total:     p.Total,
			Timestamp: time.Now().UTC(),
		}
		if p.Err != nil {
			ev.Type = EventPatientFailed
			ev.Error = p.Err.Error()
		}
		m.publish(id, ev)
	})

	m.finish(id, summary, err)
}

// publish appends an event to the job history and fans it out. Sends
// are non-blocking: a slow subscriber misses events rather than
// stalling the run.
func (m *JobManager) publish(id string, ev JobEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.jobs[id]
	if !ok {
		return
	}
	state.events = append(state.events, ev)
	if ev.Type == EventPatientCompleted || ev.Type == EventPatientFailed {
		state.job.Completed = ev.Completed
	}
	for ch := range state.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// finish records the terminal state, emits the terminal event, closes
// all subscriber channels, and persists the audit record.
func (m *JobManager) finish(id string, summary *domain.BatchSummary, err error) {
	now := time.Now().UTC()

	m.mu.Lock()
	state, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return
	}

	ev := JobEvent{
		JobID:     id,
		Completed: state.job.Completed,
		Total:     state.job.PatientCount,
		Timestamp: now,
	}
	if err != nil {
		state.job.Status = JobFailed
		state.job.Error = err.Error()
		ev.Type = EventJobFailed
		ev.Error = err.Error()
	} else {
		state.job.Status = JobCompleted
		state.job.Summary = summary
		ev.Type = EventJobCompleted
		ev.Completed = state.job.PatientCount
	}
	state.job.FinishedAt = &now
	state.events = append(state.events, ev)

	for ch := range state.subs {
		select {
		case ch <- ev:
		default:
		}
		close(ch)
	}
	state.subs = make(map[chan JobEvent]struct{})
	m.mu.Unlock()

	log := m.logger.WithField("job_id", id)
	if err != nil {
		log.WithError(err).Error("Batch job failed")
		if m.collector != nil {
			m.collector.RecordAnalysisFailure(err)
		}
		return
	}

	log.WithFields(logrus.Fields{
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
	}).Info("Batch job completed")

	if m.collector != nil {
		m.collector.RecordBatch(summary)
	}
	if m.runStore != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if saveErr := m.runStore.Save(ctx, store.NewRunRecord(summary)); saveErr != nil {
			log.WithError(saveErr).Warn("Failed to persist run audit record")
		}
	}
}

// startCleanupRoutine reaps terminal jobs past the retention window.
func (m *JobManager) startCleanupRoutine() {
	for {
		time.Sleep(10 * time.Minute)
		cutoff := time.Now().Add(-m.retention)

		m.mu.Lock()
		for id, state := range m.jobs {
			if state.job.terminal() && state.job.FinishedAt != nil && state.job.FinishedAt.Before(cutoff) {
				delete(m.jobs, id)
			}
		}
		m.mu.Unlock()
	}
}
