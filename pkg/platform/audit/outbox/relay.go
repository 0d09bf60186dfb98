// Package outbox relays audit events written to the postgres outbox table to
// Kafka. Delivery is at least once: entries are marked published only after
// the broker acknowledged them.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	"transferdesk/pkg/platform/circuit"
)

// Entry is one outbox row.
type Entry struct {
	ID          uuid.UUID
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

// Reader reads and acknowledges outbox rows.
type Reader interface {
	FetchPending(ctx context.Context, limit int) ([]Entry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// Producer is the subset of *kgo.Client the relay needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

const (
	defaultBatchSize = 100
	defaultInterval  = time.Second
)

// Relay polls the outbox and publishes pending entries.
type Relay struct {
	reader    Reader
	producer  Producer
	topic     string
	batchSize int
	interval  time.Duration
	breaker   *circuit.Breaker
	logger    *slog.Logger
}

type Option func(*Relay)

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithBreaker replaces the default broker circuit breaker.
func WithBreaker(b *circuit.Breaker) Option {
	return func(r *Relay) {
		if b != nil {
			r.breaker = b
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func NewRelay(reader Reader, producer Producer, topic string, opts ...Option) *Relay {
	r := &Relay{
		reader:    reader,
		producer:  producer,
		topic:     topic,
		batchSize: defaultBatchSize,
		interval:  defaultInterval,
		breaker:   circuit.New("audit-broker", circuit.WithFailureThreshold(3), circuit.WithCooldown(10*time.Second)),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run publishes until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if r.breaker.Allow() {
			r.round(ctx)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (r *Relay) round(ctx context.Context) {
	_, err := r.PublishOnce(ctx)
	if err == nil {
		if _, change := r.breaker.RecordSuccess(); change.Closed {
			r.logger.InfoContext(ctx, "audit broker recovered", "breaker", r.breaker.Name())
		}
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	r.logger.ErrorContext(ctx, "outbox relay failed", "error", err)
	if _, change := r.breaker.RecordFailure(); change.Opened {
		r.logger.WarnContext(ctx, "audit broker circuit opened", "breaker", r.breaker.Name())
	}
}

// PublishOnce relays one batch and returns how many entries were delivered.
// kgo reports results in completion order, so each result is matched to its
// entry through the record it carries. Only acknowledged entries are marked
// published; the rest stay pending for the next round.
func (r *Relay) PublishOnce(ctx context.Context) (int, error) {
	entries, err := r.reader.FetchPending(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	records := make([]*kgo.Record, len(entries))
	byRecord := make(map[*kgo.Record]Entry, len(entries))
	for i, e := range entries {
		records[i] = &kgo.Record{
			Topic: r.topic,
			Key:   []byte(e.AggregateID),
			Value: e.Payload,
			Headers: []kgo.RecordHeader{
				{Key: "event_type", Value: []byte(e.EventType)},
				{Key: "event_id", Value: []byte(e.ID.String())},
			},
		}
		byRecord[records[i]] = e
	}

	results := r.producer.ProduceSync(ctx, records...)
	delivered := make([]uuid.UUID, 0, len(entries))
	var errs []error
	for _, res := range results {
		e, ok := byRecord[res.Record]
		if !ok {
			continue
		}
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("produce outbox entry %s: %w", e.ID, res.Err))
			continue
		}
		delivered = append(delivered, e.ID)
	}

	if err := r.reader.MarkPublished(ctx, delivered, time.Now()); err != nil {
		return 0, err
	}
	if len(delivered) > 0 {
		r.logger.InfoContext(ctx, "outbox entries published", "count", len(delivered), "topic", r.topic)
	}
	return len(delivered), errors.Join(errs...)
}
