// Package queue provides a comprehensive job queue system with workers, scheduling,
// and priority-based task processing. It supports both immediate task execution
// and scheduled task processing with configurable retry mechanisms and error handling.
//
// # Features
//
//   - Task enqueueing with priority support and delayed execution
//   - Background workers with bounded concurrent processing
//   - Periodic tasks on interval and calendar schedules (EveryInterval, DailyAt, WeeklyOn, ...)
//   - Per-task retry limits; MemoryStorage reschedules a failed task with a
//     linear backoff of 30s times its retry count
//   - In-memory storage for testing and development
//   - Extensible repository interface for custom storage backends
//   - Graceful shutdown with proper cleanup
//   - Comprehensive error handling and logging
//
// # Basic Usage
//
// Create a queue system with enqueuer and worker:
//
//	import "github.com/dmitrymomot/credvault/core/queue"
//
//	// Create storage (in-memory for development)
//	storage := queue.NewMemoryStorage()
//
//	// Create enqueuer for adding tasks
//	enqueuer, err := queue.NewEnqueuer(storage,
//		queue.WithDefaultQueue("email_queue"),
//		queue.WithDefaultPriority(queue.PriorityHigh),
//	)
//
//	// Create worker for processing tasks
//	worker, err := queue.NewWorker(storage,
//		queue.WithQueues("email_queue"),
//		queue.WithMaxConcurrentTasks(5),
//	)
//
//	// Register task handler; the task name is derived from the payload type
//	worker.RegisterHandler(queue.NewTaskHandler(handleEmailTask))
//
//	// Start worker
//	ctx := context.Background()
//	go worker.Start(ctx)
//
//	// Enqueue tasks
//	err = enqueuer.Enqueue(ctx, EmailPayload{
//		To:      "user@example.com",
//		Subject: "Welcome!",
//		Body:    "Welcome to our service!",
//	})
//
// # Task Types and Handlers
//
// Define payload types and typed handlers for them; the handler receives the
// payload decoded from JSON:
//
//	type EmailPayload struct {
//		To      string `json:"to"`
//		Subject string `json:"subject"`
//		Body    string `json:"body"`
//	}
//
//	type ImageProcessPayload struct {
//		ImageURL string `json:"image_url"`
//		Width    int    `json:"width"`
//		Height   int    `json:"height"`
//	}
//
//	// Task handler functions
//	func handleEmailTask(ctx context.Context, payload EmailPayload) error {
//		return emailService.Send(payload.To, payload.Subject, payload.Body)
//	}
//
//	func handleImageProcess(ctx context.Context, payload ImageProcessPayload) error {
//		return imageProcessor.Resize(payload.ImageURL, payload.Width, payload.Height)
//	}
//
// # Priority-Based Processing
//
// Priorities range from PriorityMin (0) to PriorityMax (100). MemoryStorage
// claims the highest-priority due task first, oldest first among equals:
//
//	// High priority tasks (processed first)
//	enqueuer.Enqueue(ctx, CriticalPayload{...},
//		queue.WithPriority(queue.PriorityMax),
//	)
//
//	// Normal priority tasks
//	enqueuer.Enqueue(ctx, StandardPayload{...},
//		queue.WithPriority(queue.PriorityDefault),
//	)
//
//	// Low priority tasks (processed last)
//	enqueuer.Enqueue(ctx, CleanupPayload{...},
//		queue.WithPriority(queue.PriorityLow),
//	)
//
// # Scheduled Tasks
//
// Register a periodic handler and add a scheduled task under the same name;
// the scheduler enqueues one task for each due run:
//
//	// Create scheduler
//	scheduler, err := queue.NewScheduler(storage,
//		queue.WithSchedulerLogger(logger),
//	)
//
//	// Daily report at 9 AM
//	worker.RegisterHandler(queue.NewPeriodicTaskHandler("daily_report", generateDailyReport))
//	scheduler.AddTask("daily_report", queue.DailyAt(9, 0),
//		queue.WithTaskPriority(queue.PriorityHigh),
//	)
//
//	// Weekly cleanup at 2 AM on Mondays
//	worker.RegisterHandler(queue.NewPeriodicTaskHandler("weekly_cleanup", cleanupOldData))
//	scheduler.AddTask("weekly_cleanup", queue.WeeklyOn(time.Monday, 2, 0))
//
//	// Start scheduler
//	go scheduler.Start(ctx)
//
// # Retry Mechanisms
//
// Set the retry limit per task. A handler error is recorded with FailTask;
// once the task's retry count reaches its limit the worker moves it to the
// dead letter queue. MemoryStorage delays each retry by 30s times the retry count:
//
//	enqueuer.Enqueue(ctx, payload, queue.WithMaxRetries(5))
//
//	func handleRetryableTask(ctx context.Context, payload RetryablePayload) error {
//		if err := performOperation(payload); err != nil {
//			return err // Will be retried automatically
//		}
//		return nil
//	}
//
// # Multiple Queues
//
// Set up different queues for different task types:
//
//	// Email queue worker
//	emailWorker, _ := queue.NewWorker(storage,
//		queue.WithQueues("email"),
//		queue.WithMaxConcurrentTasks(10),
//	)
//	emailWorker.RegisterHandlers(
//		queue.NewTaskHandler(handleWelcomeEmail),
//		queue.NewTaskHandler(handleNotification),
//	)
//
//	// Image processing queue worker
//	imageWorker, _ := queue.NewWorker(storage,
//		queue.WithQueues("images"),
//		queue.WithMaxConcurrentTasks(3), // CPU intensive, fewer workers
//	)
//	imageWorker.RegisterHandler(queue.NewTaskHandler(handleImageResize))
//
//	// Enqueue into a specific queue
//	enqueuer.Enqueue(ctx, ResizePayload{...}, queue.WithQueue("images"))
//
//	// Start all workers
//	go emailWorker.Start(ctx)
//	go imageWorker.Start(ctx)
//
// # Error Handling
//
// The worker recovers handler panics and records them as failed attempts.
// A task whose name has no registered handler goes to the dead letter queue
// without retries. Each handler call gets a context that expires after the
// worker's lock timeout:
//
//	func handleOrder(ctx context.Context, payload OrderPayload) error {
//		// Validate payload
//		if payload.OrderID == "" {
//			return fmt.Errorf("order id is empty")
//		}
//
//		// Check context cancellation
//		select {
//		case <-ctx.Done():
//			return fmt.Errorf("task cancelled: %w", ctx.Err())
//		default:
//		}
//
//		// Process task
//		if err := processOrder(ctx, payload); err != nil {
//			log.Error("Task processing failed",
//				"order_id", payload.OrderID,
//				"error", err,
//			)
//			return err
//		}
//		return nil
//	}
//
// # Graceful Shutdown
//
// Worker.Run and Scheduler.Run return functions for an errgroup. When the
// context is cancelled they stop their component and wait for in-flight work
// up to the shutdown timeout:
//
//	func runQueueSystem(ctx context.Context) error {
//		storage := queue.NewMemoryStorage()
//		worker, _ := queue.NewWorker(storage, queue.WithShutdownTimeout(30*time.Second))
//		scheduler, _ := queue.NewScheduler(storage)
//		// Register handlers and scheduled tasks here
//
//		g, ctx := errgroup.WithContext(ctx)
//		g.Go(worker.Run(ctx))
//		g.Go(scheduler.Run(ctx))
//		return g.Wait()
//	}
//
// # Custom Storage Backend
//
// A backend implements Storage, which combines EnqueuerRepository,
// WorkerRepository and SchedulerRepository:
//
//	type PostgreSQLStorage struct {
//		db *sql.DB
//	}
//
//	func (s *PostgreSQLStorage) CreateTask(ctx context.Context, task *queue.Task) error {
//		query := `INSERT INTO tasks (id, queue, task_type, task_name, priority, payload, scheduled_at, created_at)
//		         VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
//		_, err := s.db.ExecContext(ctx, query,
//			task.ID, task.Queue, task.TaskType, task.TaskName, task.Priority,
//			task.Payload, task.ScheduledAt, task.CreatedAt)
//		return err
//	}
//
//	func (s *PostgreSQLStorage) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*queue.Task, error) {
//		// Lock the highest-priority due pending task in queues for lockDuration
//		// and return it, or return queue.ErrNoTaskToClaim
//		return task, nil
//	}
//
//	// ... CompleteTask, FailTask, MoveToDLQ, ExtendLock, GetPendingTaskByName
//
//	// Use custom storage
//	storage := &PostgreSQLStorage{db: database}
//	service, _ := queue.NewService(storage)
//
// # Monitoring and Metrics
//
// Worker, Scheduler and MemoryStorage expose Stats and Healthcheck:
//
//	stats := worker.Stats()
//	recordQueueMetrics(stats.TasksProcessed, stats.TasksFailed, stats.ActiveTasks)
//
//	if err := worker.Healthcheck(ctx); err != nil {
//		// errors.Is(err, queue.ErrWorkerNotRunning) or errors.Is(err, queue.ErrWorkerOverloaded)
//	}
//
// # Best Practices
//
//   - Use appropriate queue names for different task types
//   - Set concurrency based on task characteristics (CPU vs I/O bound)
//   - Implement proper error handling and logging in task handlers
//   - Use priority levels to ensure critical tasks are processed first
//   - Configure retry policies based on task failure patterns
//   - Implement graceful shutdown to avoid losing in-progress tasks
//   - Monitor queue depth and processing metrics
//   - Use scheduled tasks for recurring operations
//   - Keep task payloads small and serialize efficiently
//   - Handle context cancellation properly in long-running tasks
package queue
