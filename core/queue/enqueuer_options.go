package queue

import "time"

// EnqueuerOption configures a long-lived Enqueuer instance.
type EnqueuerOption func(*enqueuerOptions)

type enqueuerOptions struct {
	defaultQueue    string
	defaultPriority Priority
}

// WithDefaultQueue sets the queue new tasks are enqueued to when the caller
// does not specify one via WithQueue.
func WithDefaultQueue(queue string) EnqueuerOption {
	return func(o *enqueuerOptions) {
		if queue != "" {
			o.defaultQueue = queue
		}
	}
}

// WithDefaultPriority sets the priority assigned to tasks when the caller
// does not specify one via WithPriority.
func WithDefaultPriority(p Priority) EnqueuerOption {
	return func(o *enqueuerOptions) {
		if p.Valid() {
			o.defaultPriority = p
		}
	}
}

// EnqueueOption configures a single Enqueue call.
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	queue       string
	priority    Priority
	maxRetries  int8
	taskName    string
	delay       time.Duration
	scheduledAt *time.Time
}

// WithQueue routes this task to a specific queue instead of the enqueuer's default.
func WithQueue(queue string) EnqueueOption {
	return func(o *enqueueOptions) {
		if queue != "" {
			o.queue = queue
		}
	}
}

// WithPriority overrides the enqueuer's default priority for this task.
func WithPriority(p Priority) EnqueueOption {
	return func(o *enqueueOptions) {
		if p.Valid() {
			o.priority = p
		}
	}
}

// WithMaxRetries sets how many times the worker retries this task on failure
// before moving it to the dead letter queue.
func WithMaxRetries(n int8) EnqueueOption {
	return func(o *enqueueOptions) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithTaskName overrides the task name normally derived from the payload's
// Go type. Required when the payload type is unexported or shared across
// multiple logical task kinds.
func WithTaskName(name string) EnqueueOption {
	return func(o *enqueueOptions) {
		if name != "" {
			o.taskName = name
		}
	}
}

// WithDelay schedules the task to become eligible for claiming after d has
// elapsed. Mutually exclusive with WithScheduledAt; the option applied last wins.
func WithDelay(d time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		if d > 0 {
			o.scheduledAt = nil
			o.delay = d
		}
	}
}

// WithScheduledAt schedules the task to become eligible for claiming at an
// absolute instant. Mutually exclusive with WithDelay; the option applied
// last wins.
func WithScheduledAt(at time.Time) EnqueueOption {
	return func(o *enqueueOptions) {
		o.delay = 0
		o.scheduledAt = &at
	}
}
