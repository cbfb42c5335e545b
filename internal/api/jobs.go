package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/khanhnv2901/siteterminal/internal/checker"
	apperrors "github.com/khanhnv2901/siteterminal/internal/shared/errors"
)

// Job states.
const (
	JobPending = "pending"
	JobRunning = "running"
	JobDone    = "done"
	JobError   = "error"
)

// DefaultJobTimeout bounds one asynchronous analyzer run.
const DefaultJobTimeout = 2 * time.Minute

type Job struct {
	ID         string     `json:"id"`
	Analyzer   string     `json:"analyzer"`
	Target     string     `json:"target"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Result     any        `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`

	ownerID string
}

type JobRequest struct {
	Analyzer string `json:"analyzer"`
	Target   string `json:"target"`
}

// JobManager runs analyzers in the background and fans status changes out
// to subscribers.
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	subscribers map[chan Job]struct{}
	maxJobs     int
	timeout     time.Duration
	logger      *zap.Logger
	wg          sync.WaitGroup
}

func NewJobManager(logger *zap.Logger) *JobManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobManager{
		jobs:        make(map[string]*Job),
		subscribers: make(map[chan Job]struct{}),
		maxJobs:     1000,
		timeout:     DefaultJobTimeout,
		logger:      logger,
	}
}

// SetMaxJobs configures how many jobs Prune keeps in memory.
func (m *JobManager) SetMaxJobs(max int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if max > 0 {
		m.maxJobs = max
	}
}

// SetTimeout overrides DefaultJobTimeout.
func (m *JobManager) SetTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.timeout = d
	}
}

// Start records a pending job and runs entry against target in a
// goroutine detached from the request.
func (m *JobManager) Start(entry checker.Entry, target checker.Target, ownerID string) *Job {
	m.mu.Lock()
	job := &Job{
		ID:        generateID("job"),
		Analyzer:  entry.Name(),
		Target:    target.String(),
		Status:    JobPending,
		CreatedAt: time.Now().UTC(),
		ownerID:   ownerID,
	}
	m.jobs[job.ID] = job
	m.broadcast(*job)
	timeout := m.timeout
	snapshot := *job
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(job.ID, entry, target, timeout)
	}()
	return &snapshot
}

func (m *JobManager) run(id string, entry checker.Entry, target checker.Target, timeout time.Duration) {
	m.update(id, func(j *Job) {
		now := time.Now().UTC()
		j.Status = JobRunning
		j.StartedAt = &now
	})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	verdict, err := entry.Analyzer.Analyze(ctx, target)

	m.update(id, func(j *Job) {
		now := time.Now().UTC()
		j.FinishedAt = &now
		if err != nil {
			j.Status = JobError
			j.Error = err.Error()
			return
		}
		j.Status = JobDone
		j.Result = verdict
	})
	if err != nil {
		m.logger.Warn("job_failed", zap.String("job_id", id), zap.String("analyzer", entry.Name()), zap.Error(err))
	}
}

// Wait blocks until every started job has finished.
func (m *JobManager) Wait() { m.wg.Wait() }

func (m *JobManager) update(id string, fn func(*Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return
	}
	fn(job)
	m.broadcast(*job)
}

// GetJob returns a copy of the job.
func (m *JobManager) GetJob(id string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if job, ok := m.jobs[id]; ok {
		c := *job
		return &c
	}
	return nil
}

// ListJobs returns up to limit jobs visible to ownerID, newest first. An
// empty ownerID lists every job.
func (m *JobManager) ListJobs(ownerID string, limit int) []Job {
	m.mu.RLock()
	jobs := make([]Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		if ownerID == "" || job.ownerID == ownerID {
			jobs = append(jobs, *job)
		}
	}
	m.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID > jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if limit > 0 && limit < len(jobs) {
		jobs = jobs[:limit]
	}
	return jobs
}

func (m *JobManager) Subscribe() (chan Job, func()) {
	ch := make(chan Job, 16)
	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()
	return ch, func() {
		m.mu.Lock()
		if _, ok := m.subscribers[ch]; ok {
			delete(m.subscribers, ch)
			close(ch)
		}
		m.mu.Unlock()
	}
}

// broadcast must be called with mu held. Slow subscribers miss updates.
func (m *JobManager) broadcast(job Job) {
	for ch := range m.subscribers {
		select {
		case ch <- job:
		default:
			m.logger.Debug("job_update_dropped", zap.String("job_id", job.ID))
		}
	}
}

// Prune drops the oldest finished jobs beyond maxJobs and returns how many
// were removed.
func (m *JobManager) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.jobs) <= m.maxJobs {
		return 0
	}

	type finished struct {
		id string
		at time.Time
	}
	var done []finished
	for id, job := range m.jobs {
		if job.Status == JobDone || job.Status == JobError {
			at := job.CreatedAt
			if job.FinishedAt != nil {
				at = *job.FinishedAt
			}
			done = append(done, finished{id: id, at: at})
		}
	}
	sort.Slice(done, func(i, j int) bool { return done[i].at.Before(done[j].at) })

	toRemove := len(m.jobs) - m.maxJobs
	if toRemove > len(done) {
		toRemove = len(done)
	}
	for i := 0; i < toRemove; i++ {
		delete(m.jobs, done[i].id)
	}
	return toRemove
}

func generateID(prefix string) string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(b))
}

// parseJobTarget accepts the free-form target a job request carries.
func parseJobTarget(entry checker.Entry, raw string) (checker.Target, error) {
	return checker.ParseTarget(raw, entry.Input)
}

// jobOwnerFilter lets admins see every job.
func jobOwnerFilter(p *Principal) string {
	if p.IsAdmin() {
		return ""
	}
	return p.ID
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFrom(r.Context())
	switch r.Method {
	case http.MethodGet:
		limit := queryInt(r, "limit")
		if limit <= 0 {
			limit = 25
		}
		writeOK(w, http.StatusOK, map[string]any{"jobs": s.cfg.Jobs.ListJobs(jobOwnerFilter(p), limit)})
	case http.MethodPost:
		if !s.allowRequest(w, r) {
			return
		}
		var req JobRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		entry, err := s.cfg.Registry.Lookup(req.Analyzer)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if entry.Privileged && !p.IsAdmin() {
			s.writeError(w, r, apperrors.ErrForbidden)
			return
		}
		target, err := parseJobTarget(entry, req.Target)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		job := s.cfg.Jobs.Start(entry, target, p.ID)
		s.requestLogger(r).Info("job_started", zap.String("job_id", job.ID), zap.String("analyzer", job.Analyzer))
		writeOK(w, http.StatusAccepted, map[string]any{"job": job})
	default:
		s.methodNotAllowed(w, r)
	}
}

func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	p := PrincipalFrom(r.Context())
	id := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	job := s.cfg.Jobs.GetJob(id)
	if job == nil || (!p.IsAdmin() && job.ownerID != p.ID) {
		writeFailure(w, http.StatusNotFound, "job not found")
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, r, errors.New("streaming unsupported"))
		return
	}
	owner := jobOwnerFilter(PrincipalFrom(r.Context()))
	updates, unsubscribe := s.cfg.Jobs.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case job, ok := <-updates:
			if !ok {
				return
			}
			if owner != "" && job.ownerID != owner {
				continue
			}
			payload, err := json.Marshal(job)
			if err != nil {
				s.cfg.Logger.Error("failed to marshal job", zap.Error(err))
				continue
			}
			if !s.writeStreamChunk(w, []byte("event: job\ndata: ")) ||
				!s.writeStreamChunk(w, payload) ||
				!s.writeStreamChunk(w, []byte("\n\n")) {
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}
