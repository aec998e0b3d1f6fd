// Package jobs tracks long-running review operations. Jobs are persisted in
// an embedded bbolt database so their status and results survive restarts,
// and clients can poll a job ID they received from an asynchronous endpoint.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"cireview.evalgo.org/common"
	"cireview.evalgo.org/db/bolt"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

const jobsBucket = "jobs"

// Progress tracks completion of multi-item jobs.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Job is one tracked operation. Result holds the operation outcome as raw
// JSON so the manager stays agnostic of what the job produced.
type Job struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Status     Status            `json:"status"`
	Params     map[string]string `json:"params,omitempty"`
	Progress   *Progress         `json:"progress,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	StartedAt  *time.Time        `json:"started_at,omitempty"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Error      string            `json:"error,omitempty"`
	Result     json.RawMessage   `json:"result,omitempty"`
}

// Manager persists and transitions jobs. Safe for concurrent use; the
// read-modify-write transitions are serialized by an internal mutex on top
// of bbolt's own transaction locking.
type Manager struct {
	db  *bolt.DB
	log *logrus.Logger
	mu  sync.Mutex
}

// NewManager opens (or creates) the job database at path.
func NewManager(path string, log *logrus.Logger) (*Manager, error) {
	if log == nil {
		log = common.Logger
	}
	db, err := bolt.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open job database: %w", err)
	}
	if err := db.CreateBucket(jobsBucket); err != nil {
		db.Close()
		return nil, err
	}
	return &Manager{db: db, log: log}, nil
}

// Close releases the underlying database.
func (m *Manager) Close() error {
	return m.db.Close()
}

// Create registers a new pending job and returns it.
func (m *Manager) Create(jobType string, params map[string]string) (*Job, error) {
	job := &Job{
		ID:        "job-" + uuid.NewString(),
		Type:      jobType,
		Status:    StatusPending,
		Params:    params,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.db.PutJSON(jobsBucket, job.ID, job); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}
	m.log.WithFields(logrus.Fields{"job": job.ID, "type": jobType}).Info("job created")
	return job, nil
}

// Get returns one job by ID.
func (m *Manager) Get(id string) (*Job, error) {
	var job Job
	if err := m.db.GetJSON(jobsBucket, id, &job); err != nil {
		return nil, fmt.Errorf("job %s: %w", id, err)
	}
	return &job, nil
}

// List returns all jobs, newest first.
func (m *Manager) List() ([]*Job, error) {
	var all []*Job
	err := m.db.ForEachJSON(jobsBucket, func(key string, value interface{}) error {
		all = append(all, value.(*Job))
		return nil
	}, func() interface{} { return &Job{} })
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return all, nil
}

// transition applies fn to the stored job under the manager lock.
func (m *Manager) transition(id string, fn func(*Job)) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	fn(job)
	if err := m.db.PutJSON(jobsBucket, job.ID, job); err != nil {
		return nil, fmt.Errorf("failed to persist job transition: %w", err)
	}
	return job, nil
}

// MarkRunning moves a job into the running state.
func (m *Manager) MarkRunning(id string) (*Job, error) {
	return m.transition(id, func(job *Job) {
		now := time.Now().UTC()
		job.Status = StatusRunning
		job.StartedAt = &now
	})
}

// SetProgress updates the completion counters of a running job.
func (m *Manager) SetProgress(id string, completed, total int) (*Job, error) {
	return m.transition(id, func(job *Job) {
		job.Progress = &Progress{Completed: completed, Total: total}
	})
}

// Complete finishes a job successfully, storing the result as JSON.
func (m *Manager) Complete(id string, result interface{}) (*Job, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job result: %w", err)
	}
	return m.transition(id, func(job *Job) {
		now := time.Now().UTC()
		job.Status = StatusCompleted
		job.FinishedAt = &now
		job.Result = data
	})
}

// Fail finishes a job with an error message.
func (m *Manager) Fail(id string, cause error) (*Job, error) {
	return m.transition(id, func(job *Job) {
		now := time.Now().UTC()
		job.Status = StatusFailed
		job.FinishedAt = &now
		if cause != nil {
			job.Error = cause.Error()
		}
	})
}

// Run executes fn asynchronously under the given job ID, transitioning the
// job through running into completed or failed. The returned channel closes
// when the job has finished, which callers may ignore.
func (m *Manager) Run(ctx context.Context, id string, fn func(context.Context) (interface{}, error)) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		if _, err := m.MarkRunning(id); err != nil {
			m.log.WithError(err).WithField("job", id).Error("could not mark job running")
			return
		}

		result, err := fn(ctx)
		if err != nil {
			if _, ferr := m.Fail(id, err); ferr != nil {
				m.log.WithError(ferr).WithField("job", id).Error("could not mark job failed")
			}
			m.log.WithError(err).WithField("job", id).Warn("job failed")
			return
		}

		if _, cerr := m.Complete(id, result); cerr != nil {
			m.log.WithError(cerr).WithField("job", id).Error("could not mark job completed")
			return
		}
		m.log.WithField("job", id).Info("job completed")
	}()
	return done
}
