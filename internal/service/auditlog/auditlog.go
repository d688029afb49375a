package auditlog

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/commitly/ledger/internal/logger"
	"github.com/commitly/ledger/internal/models"
	"github.com/commitly/ledger/internal/repository"
)

const (
	defaultQueueSize   = 256
	defaultMaxAttempts = 3
	defaultRetryDelay  = 100 * time.Millisecond
	defaultOpTimeout   = 5 * time.Second
	drainTimeout       = 5 * time.Second
)

const (
	kindCreate = iota
	kindAppend
)

type job struct {
	kind    int
	attempt int

	// kindCreate
	event models.WebhookEvent

	// kindAppend
	eventID uuid.UUID
	entry   models.HistoryEntry
	status  string
	related *uuid.UUID
}

func (j job) id() uuid.UUID {
	if j.kind == kindCreate {
		return j.event.ID
	}
	return j.eventID
}

// Recorder persists webhook event records and their processing history off
// the request path. Writes are at-least-once with a bounded retry: losing an
// audit entry is tolerable, blocking settlement on one is not.
//
// A single worker drains the queue, so entries for one event are applied in
// the order they were enqueued. An append that lands before its create (the
// create is being retried) is requeued instead of dropped.
type Recorder struct {
	events repository.WebhookEventRepo
	logger logger.Logger

	jobs        chan job
	maxAttempts int
	retryDelay  time.Duration
}

func NewRecorder(events repository.WebhookEventRepo, l logger.Logger) *Recorder {
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Recorder{
		events:      events,
		logger:      l,
		jobs:        make(chan job, defaultQueueSize),
		maxAttempts: defaultMaxAttempts,
		retryDelay:  defaultRetryDelay,
	}
}

// RecordReceipt queues the event for persistence. Never blocks: if the queue
// is full the entry is dropped and logged.
func (r *Recorder) RecordReceipt(e models.WebhookEvent) {
	r.enqueue(job{kind: kindCreate, event: e})
}

// Append queues one processing history entry for the event. The processing
// status is derived from the history status.
func (r *Recorder) Append(eventID uuid.UUID, status string, message string, relatedTransactionID *uuid.UUID) {
	processingStatus := models.EventProcessed
	if status == models.HistoryFail {
		processingStatus = models.EventFailed
	}

	r.enqueue(job{
		kind:    kindAppend,
		eventID: eventID,
		entry: models.HistoryEntry{
			Status:    status,
			Message:   message,
			Timestamp: time.Now(),
		},
		status:  processingStatus,
		related: relatedTransactionID,
	})
}

// Get returns the full audit trail of one event
func (r *Recorder) Get(ctx context.Context, eventID uuid.UUID) (models.WebhookEvent, error) {
	return r.events.Get(ctx, eventID)
}

// Run starts the worker. The returned channel closes once the queue is
// drained after ctx is cancelled.
func (r *Recorder) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})

	go func() {
		defer close(idleStopped)

		for {
			select {
			case <-ctx.Done():
				r.drain()
				r.logger.Debug("Audit recorder stopped")
				return

			case j := <-r.jobs:
				r.process(j)
			}
		}
	}()

	return idleStopped
}

func (r *Recorder) enqueue(j job) {
	select {
	case r.jobs <- j:
	default:
		r.logger.Error("audit queue full, entry dropped", "kind", j.kind, "event_id", j.id())
	}
}

func (r *Recorder) process(j job) {
	// Detached context: audit writes outlive the webhook request
	ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	defer cancel()

	var err error
	switch j.kind {
	case kindCreate:
		_, err = r.events.Create(ctx, j.event)
	case kindAppend:
		err = r.events.AppendHistory(ctx, j.eventID, j.entry, j.status, j.related)
	}

	if err == nil {
		return
	}

	// Every failure gets the bounded retry, including an append racing its
	// own create (ErrEventNotFound while the create is still queued)
	j.attempt++
	if j.attempt < r.maxAttempts {
		time.AfterFunc(r.retryDelay, func() { r.enqueue(j) })
		return
	}

	r.logger.Error("audit write dropped", "kind", j.kind, "event_id", j.id(), "attempts", j.attempt, "error", err)
}

// drain processes whatever is still queued, bounded so shutdown can't hang
func (r *Recorder) drain() {
	deadline := time.Now().Add(drainTimeout)

	for time.Now().Before(deadline) {
		select {
		case j := <-r.jobs:
			r.process(j)
		default:
			return
		}
	}
}
