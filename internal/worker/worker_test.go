package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"

	"github.com/riskflow-io/riskflow/internal/features"
	"github.com/riskflow-io/riskflow/internal/metrics"
	"github.com/riskflow-io/riskflow/internal/schema"
	"github.com/riskflow-io/riskflow/internal/scoring"
	"github.com/riskflow-io/riskflow/internal/storage"
)

// fakeConsumer replays a fixed slice of messages, then cancels the run
// context so Run returns.
type fakeConsumer struct {
	msgs      []kafka.Message
	cancel    context.CancelFunc
	committed []int64
	mu        sync.Mutex
}

func (c *fakeConsumer) Fetch(ctx context.Context) (kafka.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.msgs) == 0 {
		c.cancel()

		return kafka.Message{}, ctx.Err()
	}

	msg := c.msgs[0]
	c.msgs = c.msgs[1:]

	return msg, nil
}

func (c *fakeConsumer) Commit(_ context.Context, msg kafka.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.committed = append(c.committed, msg.Offset)

	return nil
}

func (c *fakeConsumer) Lag() int64    { return 0 }
func (c *fakeConsumer) Topic() string { return "risk.events" }
func (c *fakeConsumer) Group() string { return "risk-scorer" }

// fakeStore records writes and pops injected SaveScore errors in order.
type fakeStore struct {
	processed  map[uuid.UUID]bool
	saveErrs   []error
	saved      []storage.ScoreRecord
	failed     []uuid.UUID
	dlqRecords []storage.DLQRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{processed: make(map[uuid.UUID]bool)}
}

func (s *fakeStore) IsProcessed(_ context.Context, eventID uuid.UUID) (bool, error) {
	return s.processed[eventID], nil
}

func (s *fakeStore) SaveScore(_ context.Context, score *storage.ScoreRecord, eventID uuid.UUID) error {
	if len(s.saveErrs) > 0 {
		err := s.saveErrs[0]
		s.saveErrs = s.saveErrs[1:]

		if err != nil {
			return err
		}
	}

	if s.processed[eventID] {
		return storage.ErrAlreadyProcessed
	}

	s.processed[eventID] = true
	s.saved = append(s.saved, *score)

	return nil
}

func (s *fakeStore) MarkFailed(_ context.Context, eventID uuid.UUID) (bool, error) {
	if s.processed[eventID] {
		return false, nil
	}

	s.processed[eventID] = true
	s.failed = append(s.failed, eventID)

	return true, nil
}

func (s *fakeStore) AppendDLQ(_ context.Context, record *storage.DLQRecord) (int64, error) {
	s.dlqRecords = append(s.dlqRecords, *record)

	return int64(len(s.dlqRecords)), nil
}

// fakeSource returns defaults, popping injected errors first.
type fakeSource struct {
	errs  []error
	calls int
}

func (f *fakeSource) Compute(_ context.Context, _ string, _ time.Time) (features.Features, error) {
	f.calls++

	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]

		if err != nil {
			return nil, err
		}
	}

	return features.Defaults(), nil
}

type fakeDLQ struct {
	forwarded []kafka.Message
	causes    []error
}

func (d *fakeDLQ) Forward(_ context.Context, msg kafka.Message, cause error) error {
	d.forwarded = append(d.forwarded, msg)
	d.causes = append(d.causes, cause)

	return nil
}

func testMessage(t *testing.T, event *schema.Event) kafka.Message {
	t.Helper()

	value, err := schema.Encode(event)
	if err != nil {
		t.Fatalf("failed to encode event: %v", err)
	}

	return kafka.Message{Key: []byte(event.UserID), Value: value, Offset: 1}
}

func testEvent() *schema.Event {
	return &schema.Event{
		EventID:       uuid.New(),
		UserID:        "user-1",
		EventType:     schema.EventTypeTransaction,
		TS:            time.Now().UTC().Truncate(time.Second),
		SchemaVersion: schema.DefaultSchemaVersion,
		Payload: schema.TransactionPayload{
			Amount:   42.50,
			Currency: "USD",
			Merchant: "acme",
			Country:  "US",
		},
	}
}

// runWorker processes the given messages to completion.
func runWorker(t *testing.T, store *fakeStore, source *fakeSource, dlq *fakeDLQ, policy *Config, msgs ...kafka.Message) *fakeConsumer {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := &fakeConsumer{msgs: msgs, cancel: cancel}

	if policy == nil {
		policy = &Config{MaxRetries: 3, BaseDelay: time.Millisecond, MetricsPort: 9100}
	}

	m := metrics.NewMetrics(prometheus.NewRegistry())

	w := NewWorker(policy, consumer, store, source, scoring.NewFallbackScorer(), dlq, m, nil)

	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	return consumer
}

func TestWorker_ScoresValidEvent(t *testing.T) {
	store := newFakeStore()
	source := &fakeSource{}
	dlq := &fakeDLQ{}
	event := testEvent()

	consumer := runWorker(t, store, source, dlq, nil, testMessage(t, event))

	if len(store.saved) != 1 {
		t.Fatalf("saved %d scores, want 1", len(store.saved))
	}

	saved := store.saved[0]
	if saved.UserID != "user-1" {
		t.Errorf("UserID = %s, want user-1", saved.UserID)
	}

	if saved.Score < 0 || saved.Score > 1 {
		t.Errorf("Score = %v, want within [0,1]", saved.Score)
	}

	if saved.ModelVersion != scoring.FallbackVersion {
		t.Errorf("ModelVersion = %s, want %s", saved.ModelVersion, scoring.FallbackVersion)
	}

	if len(consumer.committed) != 1 {
		t.Errorf("committed %d offsets, want 1", len(consumer.committed))
	}

	if len(dlq.forwarded) != 0 {
		t.Errorf("forwarded %d messages to DLQ, want 0", len(dlq.forwarded))
	}
}

func TestWorker_SkipsProcessedEvent(t *testing.T) {
	store := newFakeStore()
	source := &fakeSource{}
	event := testEvent()
	store.processed[event.EventID] = true

	consumer := runWorker(t, store, source, &fakeDLQ{}, nil, testMessage(t, event))

	if len(store.saved) != 0 {
		t.Errorf("saved %d scores, want 0", len(store.saved))
	}

	if source.calls != 0 {
		t.Errorf("computed features %d times, want 0", source.calls)
	}

	if len(consumer.committed) != 1 {
		t.Errorf("committed %d offsets, want 1 (duplicates still commit)", len(consumer.committed))
	}
}

func TestWorker_DeadLettersUndecodableMessage(t *testing.T) {
	store := newFakeStore()
	dlq := &fakeDLQ{}
	msg := kafka.Message{Key: []byte("user-1"), Value: []byte("{not json"), Offset: 7}

	consumer := runWorker(t, store, &fakeSource{}, dlq, nil, msg)

	if len(store.dlqRecords) != 1 {
		t.Fatalf("appended %d DLQ records, want 1", len(store.dlqRecords))
	}

	record := store.dlqRecords[0]
	if record.EventID != nil {
		t.Errorf("EventID = %v, want nil for undecodable payload", record.EventID)
	}

	if record.RawPayload != "{not json" {
		t.Errorf("RawPayload = %q, want original bytes", record.RawPayload)
	}

	if len(dlq.forwarded) != 1 {
		t.Errorf("forwarded %d messages, want 1", len(dlq.forwarded))
	}

	if len(consumer.committed) != 1 {
		t.Errorf("committed %d offsets, want 1 (poison messages must not wedge the partition)", len(consumer.committed))
	}
}

func TestWorker_RetriesTransientFailure(t *testing.T) {
	store := newFakeStore()
	source := &fakeSource{errs: []error{&pq.Error{Code: "08006"}, &pq.Error{Code: "40001"}}}
	dlq := &fakeDLQ{}
	event := testEvent()

	runWorker(t, store, source, dlq, nil, testMessage(t, event))

	if len(store.saved) != 1 {
		t.Fatalf("saved %d scores, want 1 after retries", len(store.saved))
	}

	if source.calls != 3 {
		t.Errorf("computed features %d times, want 3 (two failures, one success)", source.calls)
	}

	if len(dlq.forwarded) != 0 {
		t.Errorf("forwarded %d messages to DLQ, want 0", len(dlq.forwarded))
	}
}

func TestWorker_DeadLettersNonRetryableImmediately(t *testing.T) {
	store := newFakeStore()
	store.saveErrs = []error{&pq.Error{Code: "23503"}}
	source := &fakeSource{}
	dlq := &fakeDLQ{}
	event := testEvent()

	runWorker(t, store, source, dlq, nil, testMessage(t, event))

	if source.calls != 1 {
		t.Errorf("computed features %d times, want 1 (no retry on constraint violation)", source.calls)
	}

	if len(store.dlqRecords) != 1 {
		t.Fatalf("appended %d DLQ records, want 1", len(store.dlqRecords))
	}

	if store.dlqRecords[0].EventID == nil || *store.dlqRecords[0].EventID != event.EventID {
		t.Errorf("DLQ EventID = %v, want %s", store.dlqRecords[0].EventID, event.EventID)
	}

	if len(store.failed) != 1 {
		t.Errorf("marked %d events failed, want 1", len(store.failed))
	}
}

func TestWorker_DeadLettersAfterRetryExhaustion(t *testing.T) {
	store := newFakeStore()
	source := &fakeSource{errs: []error{
		&pq.Error{Code: "08006"},
		&pq.Error{Code: "08006"},
		&pq.Error{Code: "08006"},
		&pq.Error{Code: "08006"},
	}}
	dlq := &fakeDLQ{}
	event := testEvent()
	cfg := &Config{MaxRetries: 3, BaseDelay: time.Millisecond, MetricsPort: 9100}

	runWorker(t, store, source, dlq, cfg, testMessage(t, event))

	if source.calls != 4 {
		t.Errorf("computed features %d times, want 4 (initial + 3 retries)", source.calls)
	}

	if len(store.dlqRecords) != 1 {
		t.Fatalf("appended %d DLQ records, want 1", len(store.dlqRecords))
	}

	if store.dlqRecords[0].RetryCount != 3 {
		t.Errorf("RetryCount = %d, want 3", store.dlqRecords[0].RetryCount)
	}

	if len(store.failed) != 1 {
		t.Errorf("marked %d events failed, want 1", len(store.failed))
	}

	if len(store.saved) != 0 {
		t.Errorf("saved %d scores, want 0", len(store.saved))
	}
}

func TestWorker_AlreadyProcessedFromSaveIsSkip(t *testing.T) {
	store := newFakeStore()
	store.saveErrs = []error{storage.ErrAlreadyProcessed}
	source := &fakeSource{}
	dlq := &fakeDLQ{}
	event := testEvent()

	consumer := runWorker(t, store, source, dlq, nil, testMessage(t, event))

	if len(store.dlqRecords) != 0 {
		t.Errorf("appended %d DLQ records, want 0", len(store.dlqRecords))
	}

	if len(store.failed) != 0 {
		t.Errorf("marked %d events failed, want 0", len(store.failed))
	}

	if len(consumer.committed) != 1 {
		t.Errorf("committed %d offsets, want 1", len(consumer.committed))
	}
}
