package auditlog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/commitly/ledger/internal/apperrors"
	"github.com/commitly/ledger/internal/models"
)

// In-memory event store with the same contract as the postgres repo
type memEventRepo struct {
	mu     sync.Mutex
	events map[uuid.UUID]models.WebhookEvent
}

func newMemEventRepo() *memEventRepo {
	return &memEventRepo{events: map[uuid.UUID]models.WebhookEvent{}}
}

func (m *memEventRepo) Create(ctx context.Context, e models.WebhookEvent) (models.WebhookEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[e.ID] = e
	return e, nil
}

func (m *memEventRepo) Get(ctx context.Context, id uuid.UUID) (models.WebhookEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.events[id]
	if !ok {
		return e, apperrors.ErrEventNotFound
	}
	return e, nil
}

func (m *memEventRepo) AppendHistory(ctx context.Context, id uuid.UUID, entry models.HistoryEntry, status string, related *uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.events[id]
	if !ok {
		return apperrors.ErrEventNotFound
	}

	e.ProcessingHistory = append(e.ProcessingHistory, entry)
	e.ProcessingStatus = status
	if related != nil {
		e.RelatedTransactionID = related
	}
	m.events[id] = e
	return nil
}

// Event store failing the first appends with a transient error
type flakyEventRepo struct {
	*memEventRepo

	mu       sync.Mutex
	failures int
}

func (f *flakyEventRepo) AppendHistory(ctx context.Context, id uuid.UUID, entry models.HistoryEntry, status string, related *uuid.UUID) error {
	f.mu.Lock()
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()

	if fail {
		return errors.New("connection reset")
	}
	return f.memEventRepo.AppendHistory(ctx, id, entry, status, related)
}

func newEvent() models.WebhookEvent {
	now := time.Now()
	return models.WebhookEvent{
		ID:               uuid.New(),
		Provider:         "paystack",
		EventType:        "charge.success",
		RawPayload:       []byte(`{}`),
		ProcessingStatus: models.EventReceived,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestRecorder(t *testing.T) {
	t.Run("persists receipt and history in order", func(t *testing.T) {
		repo := newMemEventRepo()
		recorder := NewRecorder(repo, nil)

		ctx, cancel := context.WithCancel(t.Context())
		t.Cleanup(cancel)
		recorder.Run(ctx)

		event := newEvent()
		recorder.RecordReceipt(event)
		recorder.Append(event.ID, models.HistorySkip, "first", nil)
		transactionID := uuid.New()
		recorder.Append(event.ID, models.HistorySuccess, "second", &transactionID)

		require.Eventually(t, func() bool {
			stored, err := repo.Get(t.Context(), event.ID)
			return err == nil && len(stored.ProcessingHistory) == 2
		}, 2*time.Second, 10*time.Millisecond, "receipt and both entries must land")

		stored, err := recorder.Get(t.Context(), event.ID)
		require.NoError(t, err)
		require.Equal(t, "first", stored.ProcessingHistory[0].Message)
		require.Equal(t, "second", stored.ProcessingHistory[1].Message)
		require.Equal(t, models.EventProcessed, stored.ProcessingStatus)
		require.NotNil(t, stored.RelatedTransactionID)
		require.Equal(t, transactionID, *stored.RelatedTransactionID)
	})

	t.Run("failure entries mark the event failed", func(t *testing.T) {
		repo := newMemEventRepo()
		recorder := NewRecorder(repo, nil)

		ctx, cancel := context.WithCancel(t.Context())
		t.Cleanup(cancel)
		recorder.Run(ctx)

		event := newEvent()
		recorder.RecordReceipt(event)
		recorder.Append(event.ID, models.HistoryFail, "no transaction for reference", nil)

		require.Eventually(t, func() bool {
			stored, err := repo.Get(t.Context(), event.ID)
			return err == nil && stored.ProcessingStatus == models.EventFailed
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("append arriving before its create is retried", func(t *testing.T) {
		repo := newMemEventRepo()
		recorder := NewRecorder(repo, nil)

		ctx, cancel := context.WithCancel(t.Context())
		t.Cleanup(cancel)
		recorder.Run(ctx)

		// Enqueue out of order on purpose
		event := newEvent()
		recorder.Append(event.ID, models.HistorySuccess, "early", nil)
		recorder.RecordReceipt(event)

		require.Eventually(t, func() bool {
			stored, err := repo.Get(t.Context(), event.ID)
			return err == nil && len(stored.ProcessingHistory) == 1
		}, 2*time.Second, 10*time.Millisecond, "the early append must be requeued, not dropped")
	})

	t.Run("transient append failure is retried", func(t *testing.T) {
		repo := &flakyEventRepo{memEventRepo: newMemEventRepo(), failures: 1}
		recorder := NewRecorder(repo, nil)

		ctx, cancel := context.WithCancel(t.Context())
		t.Cleanup(cancel)
		recorder.Run(ctx)

		event := newEvent()
		recorder.RecordReceipt(event)
		recorder.Append(event.ID, models.HistorySuccess, "after hiccup", nil)

		require.Eventually(t, func() bool {
			stored, err := repo.Get(t.Context(), event.ID)
			return err == nil && len(stored.ProcessingHistory) == 1
		}, 2*time.Second, 10*time.Millisecond, "a transient store error must not drop the entry")
	})

	t.Run("drains the queue on shutdown", func(t *testing.T) {
		repo := newMemEventRepo()
		recorder := NewRecorder(repo, nil)

		ctx, cancel := context.WithCancel(t.Context())
		stopped := recorder.Run(ctx)

		event := newEvent()
		recorder.RecordReceipt(event)
		cancel()

		select {
		case <-stopped:
		case <-time.After(10 * time.Second):
			t.Fatal("recorder did not stop in time")
		}

		_, err := repo.Get(t.Context(), event.ID)
		require.NoError(t, err, "queued receipt must be flushed before stopping")
	})
}
