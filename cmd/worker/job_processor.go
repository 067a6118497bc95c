package main

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// JobSource hands out queued jobs and records their outcome.
type JobSource interface {
	GetJobQueue() <-chan *Job
	UpdateJobStatus(ctx context.Context, jobID, status string, result interface{}, errorMsg string) error
}

// ExportResult is the result of a completed export job.
type ExportResult struct {
	Points int `json:"points"`
}

type JobProcessor struct {
	config        *WorkerConfig
	pipeline      Pipeline
	logger        *logrus.Logger
	scheduler     JobSource
	activeJobs    int32
	completedJobs int64
	failedJobs    int64
	wg            sync.WaitGroup
}

func NewJobProcessor(config *WorkerConfig, pipeline Pipeline, logger *logrus.Logger) *JobProcessor {
	return &JobProcessor{
		config:   config,
		pipeline: pipeline,
		logger:   logger,
	}
}

// Start runs Concurrency workers and returns when all of them have exited.
func (jp *JobProcessor) Start(ctx context.Context) {
	jp.logger.Info("Job processor started")

	concurrency := jp.config.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	for i := 0; i < concurrency; i++ {
		jp.wg.Add(1)
		go jp.worker(ctx, i)
	}

	jp.wg.Wait()
	jp.logger.Info("All workers stopped")
}

func (jp *JobProcessor) SetScheduler(scheduler JobSource) {
	jp.scheduler = scheduler
}

func (jp *JobProcessor) worker(ctx context.Context, workerID int) {
	defer jp.wg.Done()

	jp.logger.WithField("workerID", workerID).Debug("Worker started")

	for {
		select {
		case <-ctx.Done():
			jp.logger.WithField("workerID", workerID).Debug("Worker stopping")
			return
		case job, ok := <-jp.scheduler.GetJobQueue():
			if !ok {
				jp.logger.WithField("workerID", workerID).Debug("Job queue closed, worker stopping")
				return
			}

			jp.processJob(ctx, job, workerID)
		}
	}
}

func (jp *JobProcessor) processJob(ctx context.Context, job *Job, workerID int) {
	atomic.AddInt32(&jp.activeJobs, 1)
	defer atomic.AddInt32(&jp.activeJobs, -1)

	startTime := time.Now()
	logger := jp.logger.WithFields(logrus.Fields{
		"jobID":    job.ID,
		"jobType":  job.Type,
		"product":  job.Product,
		"workerID": workerID,
	})

	logger.Debug("Processing job")

	if err := jp.scheduler.UpdateJobStatus(ctx, job.ID, StatusRunning, nil, ""); err != nil {
		logger.WithError(err).Error("Failed to update job status")
	}

	var err error
	var result interface{}

	switch job.Type {
	case JobTypeKPI:
		result, err = jp.pipeline.RefreshKPI(ctx, job.Horizon)
	case JobTypeExport:
		var points int
		points, err = jp.pipeline.Export(ctx, job.Product, job.Granularity, job.Horizon)
		result = ExportResult{Points: points}
	default:
		err = fmt.Errorf("unknown job type: %s", job.Type)
	}

	duration := time.Since(startTime)

	if err != nil {
		atomic.AddInt64(&jp.failedJobs, 1)
		logger.WithError(err).WithField("duration", duration).Warn("Job failed")

		if updateErr := jp.scheduler.UpdateJobStatus(ctx, job.ID, StatusFailed, nil, err.Error()); updateErr != nil {
			logger.WithError(updateErr).Error("Failed to update job status")
		}
		return
	}

	atomic.AddInt64(&jp.completedJobs, 1)
	logger.WithField("duration", duration).Info("Job completed")

	if updateErr := jp.scheduler.UpdateJobStatus(ctx, job.ID, StatusCompleted, result, ""); updateErr != nil {
		logger.WithError(updateErr).Error("Failed to update job status")
	}
}

func (jp *JobProcessor) ActiveJobs() int32 {
	return atomic.LoadInt32(&jp.activeJobs)
}

func (jp *JobProcessor) CompletedJobs() int64 {
	return atomic.LoadInt64(&jp.completedJobs)
}

func (jp *JobProcessor) FailedJobs() int64 {
	return atomic.LoadInt64(&jp.failedJobs)
}
