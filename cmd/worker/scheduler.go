package main

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/salesforecast/pkg/models"
)

type JobType string

const (
	JobTypeKPI    JobType = "kpi"
	JobTypeExport JobType = "export"
)

// Job statuses
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type Job struct {
	ID          string             `json:"id"`
	Type        JobType            `json:"type"`
	Status      string             `json:"status"`
	Product     string             `json:"product,omitempty"`
	Granularity models.Granularity `json:"granularity,omitempty"`
	Horizon     int                `json:"horizon"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	Result      interface{}        `json:"result,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// Scheduler reloads the dataset on every tick and queues one KPI job plus
// one export job per product and granularity.
type Scheduler struct {
	config   *WorkerConfig
	pipeline Pipeline
	logger   *logrus.Logger
	jobQueue chan *Job
	stopOnce sync.Once

	// queueMu guards running and the queue's open state.
	queueMu sync.RWMutex
	running bool

	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewScheduler(config *WorkerConfig, pipeline Pipeline, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		config:   config,
		pipeline: pipeline,
		logger:   logger,
		jobQueue: make(chan *Job, config.Concurrency*2),
		running:  true,
		jobs:     make(map[string]*Job),
	}
}

// Start schedules a run immediately and then every Interval until ctx is
// cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.WithField("interval", s.config.Interval).Info("Scheduler started")

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopping due to context cancellation")
			return
		case <-ticker.C:
			if !s.isRunning() {
				s.logger.Info("Scheduler stopped")
				return
			}
			s.RunOnce(ctx)
		}
	}
}

// RunOnce reloads the dataset and queues the jobs of one run. A failed
// reload keeps the previous dataset.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if err := s.pipeline.Reload(ctx); err != nil {
		s.logger.WithError(err).Error("Dataset reload failed, forecasting the previous snapshot")
	}

	jobs := []*Job{s.newJob(JobTypeKPI, "", models.GranularityMonthly, s.config.Horizon)}
	if s.pipeline.CanExport() {
		for _, product := range s.pipeline.Products() {
			jobs = append(jobs, s.newJob(JobTypeExport, product, models.GranularityMonthly, s.config.Horizon))
			if s.config.Weekly {
				jobs = append(jobs, s.newJob(JobTypeExport, product, models.GranularityWeekly, s.config.WeeklyHorizon))
			}
		}
	}

	// Holding the read lock keeps Stop from closing the queue mid-send.
	s.queueMu.RLock()
	defer s.queueMu.RUnlock()
	if !s.running {
		return
	}
	queued := 0
	for _, job := range jobs {
		select {
		case s.jobQueue <- job:
			queued++
		case <-ctx.Done():
			s.logger.WithField("queued", queued).Warn("Run interrupted while queueing jobs")
			return
		}
	}
	s.logger.WithField("queued", queued).Info("Jobs queued")
}

func (s *Scheduler) newJob(jobType JobType, product string, granularity models.Granularity, horizon int) *Job {
	now := time.Now()
	job := &Job{
		ID:          uuid.NewString(),
		Type:        jobType,
		Status:      StatusPending,
		Product:     product,
		Granularity: granularity,
		Horizon:     horizon,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	return job
}

// Stop closes the queue; workers drain what is already queued.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.queueMu.Lock()
		defer s.queueMu.Unlock()

		s.running = false
		close(s.jobQueue)
		s.logger.Info("Scheduler stop requested")
	})
}

func (s *Scheduler) isRunning() bool {
	s.queueMu.RLock()
	defer s.queueMu.RUnlock()
	return s.running
}

func (s *Scheduler) GetJobQueue() <-chan *Job {
	return s.jobQueue
}

func (s *Scheduler) UpdateJobStatus(ctx context.Context, jobID, status string, result interface{}, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("unknown job %s", jobID)
	}
	job.Status = status
	job.UpdatedAt = time.Now()
	job.Result = result
	job.Error = errorMsg

	s.logger.WithFields(logrus.Fields{
		"jobID":  jobID,
		"status": status,
	}).Debug("Job status updated")
	return nil
}

// Jobs returns copies of every scheduled job, oldest first.
func (s *Scheduler) Jobs() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, *job)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Prune forgets finished jobs older than age.
func (s *Scheduler) Prune(age time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-age)
	pruned := 0
	for id, job := range s.jobs {
		if (job.Status == StatusCompleted || job.Status == StatusFailed) && job.UpdatedAt.Before(cutoff) {
			delete(s.jobs, id)
			pruned++
		}
	}
	return pruned
}
