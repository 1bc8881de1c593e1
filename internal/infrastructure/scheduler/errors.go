package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when trying to submit a job to a stopped dispatcher
	ErrSchedulerNotRunning = errors.New("dispatcher is not running")

	// ErrJobQueueFull is returned when the job queue is full
	ErrJobQueueFull = errors.New("job queue is full")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid dispatcher configuration")

	// ErrJobDropped is returned for a queued job that was never started because the dispatcher stopped
	ErrJobDropped = errors.New("job dropped at shutdown")

	// ErrJobPanicked is returned when a job panicked while running
	ErrJobPanicked = errors.New("job panicked")
)
