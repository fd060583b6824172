package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/plombea/plombea-backend/pkg/config"
	"github.com/plombea/plombea-backend/pkg/db/models"
	"github.com/plombea/plombea-backend/pkg/enums"
	"github.com/plombea/plombea-backend/pkg/logger"
	"github.com/plombea/plombea-backend/pkg/outbox/registry"
)

const (
	fallbackBatchSize   = 50
	fallbackPollMs      = 500
	fallbackMaxAttempts = 10
	publishTimeout      = 15 * time.Second
	backoffCeiling      = 10 * time.Second
	jitterSpread        = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// sendFunc publishes one message and blocks until the broker acks it.
// Swappable in tests.
type sendFunc func(ctx context.Context, topic string, msg *gcppubsub.Message) error

// Drainer moves committed outbox rows onto their Pub/Sub topics. One row is
// either acked and marked published, rescheduled with its attempt count
// bumped, or dead-lettered when it can never succeed.
type Drainer struct {
	logg        *logger.Logger
	db          dbClient
	broker      pubSubClient
	repo        outboxRepository
	dlq         dlqRepository
	resolver    registryResolver
	send        sendFunc
	batchSize   int
	maxAttempts int
	poll        time.Duration
	jitter      *rand.Rand
}

type DrainerDeps struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       dbClient
	Broker   pubSubClient
	Repo     outboxRepository
	DLQ      dlqRepository
	Resolver registryResolver
	Send     sendFunc
}

func NewDrainer(deps DrainerDeps) (*Drainer, error) {
	switch {
	case deps.Config == nil:
		return nil, errors.New("config is required")
	case deps.Logger == nil:
		return nil, errors.New("logger is required")
	case deps.DB == nil:
		return nil, errors.New("database client is required")
	case deps.Broker == nil:
		return nil, errors.New("pubsub client is required")
	case deps.Repo == nil:
		return nil, errors.New("outbox repository is required")
	case deps.DLQ == nil:
		return nil, errors.New("dlq repository is required")
	case deps.Resolver == nil:
		return nil, errors.New("event resolver is required")
	}

	d := &Drainer{
		logg:        deps.Logger,
		db:          deps.DB,
		broker:      deps.Broker,
		repo:        deps.Repo,
		dlq:         deps.DLQ,
		resolver:    deps.Resolver,
		send:        deps.Send,
		batchSize:   deps.Config.Outbox.BatchSize,
		maxAttempts: deps.Config.Outbox.MaxAttempts,
		poll:        time.Duration(deps.Config.Outbox.PollIntervalMS) * time.Millisecond,
		jitter:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if d.batchSize <= 0 {
		d.batchSize = fallbackBatchSize
	}
	if d.maxAttempts <= 0 {
		d.maxAttempts = fallbackMaxAttempts
	}
	if d.poll <= 0 {
		d.poll = fallbackPollMs * time.Millisecond
	}
	if d.send == nil {
		d.send = d.brokerSend
	}
	return d, nil
}

// Run polls until the context is canceled. An empty fetch sleeps one poll
// interval; a batch error backs off exponentially up to the ceiling.
func (d *Drainer) Run(ctx context.Context) error {
	if err := d.checkDependencies(ctx); err != nil {
		return err
	}

	delay := d.poll
	for {
		if err := ctx.Err(); err != nil {
			d.logg.Info(ctx, "outbox drainer stopping")
			return err
		}

		drained, err := d.drainBatch(ctx)
		switch {
		case err != nil:
			d.logg.Error(ctx, "outbox batch failed", err)
			delay = min(delay*2, backoffCeiling)
		case drained:
			delay = d.poll
			continue
		default:
			delay = d.poll
		}

		if err := d.pause(ctx, delay); err != nil {
			return err
		}
	}
}

func (d *Drainer) checkDependencies(ctx context.Context) error {
	if err := d.db.Ping(ctx); err != nil {
		d.logg.Error(ctx, "database ping failed", err)
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := d.broker.Ping(ctx); err != nil {
		d.logg.Error(ctx, "pubsub ping failed", err)
		return fmt.Errorf("pubsub ping failed: %w", err)
	}
	return nil
}

// drainBatch claims up to batchSize rows inside one transaction and reports
// whether anything was there to work on.
func (d *Drainer) drainBatch(ctx context.Context) (bool, error) {
	busy := false
	err := d.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := d.repo.FetchUnpublishedForPublish(tx, d.batchSize, d.maxAttempts)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		busy = true
		for _, event := range events {
			if err := d.dispatch(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	return busy, err
}

// dispatch pushes a single event through resolve -> publish -> bookkeeping.
// Only bookkeeping failures abort the batch; publish failures reschedule or
// dead-letter the row and let the rest of the batch continue.
func (d *Drainer) dispatch(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	resolved, err := d.resolver.Resolve(event)
	if err != nil {
		return d.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err)
	}

	topic := resolved.Descriptor.Topic
	publishErr := d.publish(ctx, topic, event, resolved)
	if publishErr == nil {
		if err := d.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		d.logg.Info(d.eventCtx(ctx, event, topic), "outbox event published")
		return nil
	}

	var nonRetry registry.NonRetryableError
	if errors.As(publishErr, &nonRetry) {
		return d.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, publishErr)
	}
	if event.AttemptCount+1 >= d.maxAttempts {
		return d.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("max publish attempts reached: %w", publishErr))
	}

	logCtx := d.logg.WithField(d.eventCtx(ctx, event, topic), "error", publishErr.Error())
	d.logg.Warn(logCtx, "outbox publish failed, will retry")
	if err := d.repo.MarkFailedTx(tx, event.ID, publishErr); err != nil {
		return fmt.Errorf("mark failure %s: %w", event.ID, err)
	}
	return nil
}

func (d *Drainer) publish(ctx context.Context, topic string, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	msg := &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}
	sendCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return d.send(sendCtx, topic, msg)
}

func (d *Drainer) brokerSend(ctx context.Context, topic string, msg *gcppubsub.Message) error {
	pub := d.broker.Publisher(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}
	_, err := pub.Publish(ctx, msg).Get(ctx)
	return err
}

// deadLetter copies the row into the DLQ table and marks it terminal, both
// inside the batch transaction.
func (d *Drainer) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	logCtx := d.logg.WithFields(d.eventCtx(ctx, event, ""), map[string]any{
		"error_reason": reason,
		"error":        cause.Error(),
	})
	d.logg.Warn(logCtx, "outbox event will not be retried")

	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := d.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := d.repo.MarkTerminalTx(tx, event.ID, cause, d.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

func (d *Drainer) eventCtx(ctx context.Context, event models.OutboxEvent, topic string) context.Context {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if topic != "" {
		fields["topic"] = topic
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return d.logg.WithFields(ctx, fields)
}

func (d *Drainer) pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	delay += time.Duration(d.jitter.Int63n(int64(jitterSpread)))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
