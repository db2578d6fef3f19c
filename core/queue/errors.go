package queue

import "errors"

// Sentinel errors returned by queue components. Use errors.Is to check for
// these across repository implementations.
var (
	ErrRepositoryNil         = errors.New("queue: repository is nil")
	ErrNoHandlers            = errors.New("queue: no handlers registered")
	ErrHandlerNotFound       = errors.New("queue: no handler registered for task name")
	ErrNoTaskToClaim         = errors.New("queue: no task available to claim")
	ErrPayloadNil            = errors.New("queue: payload is nil")
	ErrInvalidPriority       = errors.New("queue: priority out of range")
	ErrTaskAlreadyRegistered = errors.New("queue: periodic task name already registered")
	ErrSchedulerNotConfigured = errors.New("queue: scheduler has no registered tasks")
	ErrServiceAlreadyRunning  = errors.New("queue: service is already running")
	ErrServiceNotConfiguring  = errors.New("queue: service is no longer accepting configuration")

	// Healthcheck errors, joined with errors.Join so callers can test for
	// either the umbrella ErrHealthcheckFailed or the specific cause.
	ErrHealthcheckFailed   = errors.New("queue: healthcheck failed")
	ErrSchedulerNotRunning = errors.New("queue: scheduler is not running")
	ErrNoTasksRegistered   = errors.New("queue: no periodic tasks registered")
	ErrWorkerNotRunning    = errors.New("queue: worker is not running")
	ErrWorkerOverloaded    = errors.New("queue: worker has no free concurrency slots")
)
