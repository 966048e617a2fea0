package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/healsmart/internal/observability/metrics"
	"github.com/wolfman30/healsmart/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const enqueueTimeout = 5 * time.Second

// Job is the queued form of one notification.
type Job struct {
	ID         string        `json:"id"`
	Email      TemplateEmail `json:"email"`
	EnqueuedAt int64         `json:"enqueued_at"`
}

// Dispatcher sends notifications fire-and-forget: Notify only enqueues, and
// a worker drains the queue. Failures are logged and counted, never retried
// and never reported to the caller.
type Dispatcher struct {
	queue    Queue
	sender   TemplateSender
	provider string
	logger   *logging.Logger
	metrics  *metrics.StorefrontMetrics
	tracer   trace.Tracer
	wait     time.Duration
	batch    int
	now      func() time.Time
}

func NewDispatcher(queue Queue, sender TemplateSender, provider string, m *metrics.StorefrontMetrics, logger *logging.Logger) *Dispatcher {
	if queue == nil {
		panic("notify: dispatcher queue cannot be nil")
	}
	if sender == nil {
		panic("notify: dispatcher sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if provider == "" {
		provider = "unknown"
	}
	return &Dispatcher{
		queue:    queue,
		sender:   sender,
		provider: provider,
		logger:   logger,
		metrics:  m,
		tracer:   otel.Tracer("healsmart.internal.notify"),
		wait:     20 * time.Second,
		batch:    10,
		now:      time.Now,
	}
}

// WithWait sets how long one Receive call may block.
func (d *Dispatcher) WithWait(wait time.Duration) *Dispatcher {
	if wait > 0 {
		d.wait = wait
	}
	return d
}

// Notify enqueues email and returns. The caller's cancellation does not
// abort the enqueue.
func (d *Dispatcher) Notify(ctx context.Context, email TemplateEmail) {
	job := Job{ID: uuid.NewString(), Email: email, EnqueuedAt: d.now().UnixMilli()}
	body, err := json.Marshal(job)
	if err != nil {
		d.logger.Error("notify: encode job failed", "error", err, "to", email.To)
		d.metrics.ObserveNotification(d.provider, "enqueue_failed")
		return
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()
	if err := d.queue.Send(sendCtx, string(body)); err != nil {
		d.logger.Error("notify: enqueue failed", "error", err, "job_id", job.ID, "to", email.To)
		d.metrics.ObserveNotification(d.provider, "enqueue_failed")
		return
	}
	d.metrics.ObserveNotification(d.provider, "queued")
	d.logger.Debug("notify: job queued", "job_id", job.ID, "template_id", email.TemplateID)
}

// Run drains the queue until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("notification worker started", "provider", d.provider)
	defer d.logger.Info("notification worker stopped")
	for {
		if ctx.Err() != nil {
			return
		}
		messages, err := d.queue.Receive(ctx, d.batch, d.wait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Error("notify: receive failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		for _, msg := range messages {
			_ = d.Deliver(ctx, msg.Body)
			if err := d.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
				d.logger.Warn("notify: delete message failed", "error", err, "message_id", msg.ID)
			}
		}
	}
}

// Deliver decodes one queued job and sends it. The error is returned for
// callers that want it (tests, the Lambda consumer logs it); it is already
// logged and counted here.
func (d *Dispatcher) Deliver(ctx context.Context, body string) error {
	var job Job
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		d.logger.Error("notify: malformed job", "error", err)
		d.metrics.ObserveNotification(d.provider, "malformed")
		return fmt.Errorf("notify: decode job: %w", err)
	}

	ctx, span := d.tracer.Start(ctx, "notify.deliver", trace.WithAttributes(
		attribute.String("notify.job_id", job.ID),
		attribute.String("notify.template_id", job.Email.TemplateID),
		attribute.String("notify.provider", d.provider),
	))
	defer span.End()

	if err := d.sender.SendTemplate(ctx, job.Email); err != nil {
		span.RecordError(err)
		d.logger.Error("notify: send failed", "error", err, "job_id", job.ID, "to", job.Email.To)
		d.metrics.ObserveNotification(d.provider, "failed")
		return err
	}
	d.metrics.ObserveNotification(d.provider, "sent")
	return nil
}
