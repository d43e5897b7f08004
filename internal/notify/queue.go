package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueNotifications is the asynq queue notification tasks go to.
	QueueNotifications = "notifications"
	// TaskTypeSendNotification renders and sends one notification email.
	TaskTypeSendNotification = "notify:send"
)

// NewSendTask wraps n in an asynq task.
func NewSendTask(n Notification) (*asynq.Task, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendNotification, data, asynq.MaxRetry(5)), nil
}

// Queue enqueues notifications for the worker process.
type Queue struct {
	client *asynq.Client
}

func NewQueue(opt asynq.RedisConnOpt) *Queue {
	return &Queue{client: asynq.NewClient(opt)}
}

func (q *Queue) Dispatch(ctx context.Context, n Notification) error {
	if err := n.validate(); err != nil {
		return err
	}
	task, err := NewSendTask(n)
	if err != nil {
		return err
	}
	if _, err := q.client.EnqueueContext(ctx, task, asynq.Queue(QueueNotifications)); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// Worker consumes notification tasks.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

type WorkerConfig struct {
	RedisOpts   asynq.RedisConnOpt
	Logger      *slog.Logger
	Mailer      Mailer
	From        string
	Concurrency int
}

func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			QueueNotifications: 1,
		},
	})
	mux := asynq.NewServeMux()
	mux.Handle(TaskTypeSendNotification, SendHandler{Mailer: cfg.Mailer, From: cfg.From, Logger: cfg.Logger})
	return &Worker{server: srv, mux: mux, logger: cfg.Logger}
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	w.logger.Info("notification worker started", slog.String("queue", QueueNotifications))
	<-ctx.Done()
	w.server.Shutdown()
	return ctx.Err()
}

// SendHandler renders a queued notification and passes it to the mailer.
type SendHandler struct {
	Mailer Mailer
	From   string
	Logger *slog.Logger
}

func (h SendHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var n Notification
	if err := json.Unmarshal(t.Payload(), &n); err != nil {
		h.logger().Error("bad notification payload", slog.Any("error", err))
		return fmt.Errorf("decode notification: %v: %w", err, asynq.SkipRetry)
	}
	if err := n.validate(); err != nil {
		h.logger().Error("invalid notification", slog.String("ticket_id", n.TicketID), slog.Any("error", err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	msg, err := Render(n)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	msg.From = h.From
	if err := h.Mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

func (h SendHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
