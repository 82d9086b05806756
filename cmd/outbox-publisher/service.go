package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/metrics"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultMaxAttempts    = 10
	defaultPublishRetries = 2
	publishTimeout        = 15 * time.Second
	publishRetryBase      = 200 * time.Millisecond
	batchErrorBackoffCap  = 10 * time.Second
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxStore interface {
	FetchUnpublished(limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(id uuid.UUID) error
	MarkFailed(id uuid.UUID, err error) error
	MarkDead(id uuid.UUID, err error, maxAttempts int) error
}

type ServiceParams struct {
	Config *config.Config
	Logger *logger.Logger
	DB     dbClient
	// Store binds the repository to the batch transaction so the row locks
	// taken by FetchUnpublished hold until every row is marked.
	Store   func(tx *gorm.DB) outboxStore
	Sink    sink
	Metrics *metrics.OutboxMetrics
}

// Service drains the outbox table into a sink. A batch is fetched with SKIP
// LOCKED inside one transaction, so several publishers can run side by side
// without sending a row twice.
type Service struct {
	logg    *logger.Logger
	db      dbClient
	store   func(tx *gorm.DB) outboxStore
	sink    sink
	metrics *metrics.OutboxMetrics

	batchSize      int
	maxAttempts    int
	pollInterval   time.Duration
	publishRetries uint64
	retryBase      time.Duration
}

func NewService(p ServiceParams) (*Service, error) {
	switch {
	case p.Config == nil:
		return nil, errors.New("config is required")
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Store == nil:
		return nil, errors.New("outbox store is required")
	case p.Sink == nil:
		return nil, errors.New("outbox sink is required")
	}

	s := &Service{
		logg:           p.Logger,
		db:             p.DB,
		store:          p.Store,
		sink:           p.Sink,
		metrics:        p.Metrics,
		batchSize:      p.Config.Outbox.BatchSize,
		maxAttempts:    p.Config.Outbox.MaxAttempts,
		pollInterval:   time.Duration(p.Config.Outbox.PollIntervalMS) * time.Millisecond,
		publishRetries: defaultPublishRetries,
		retryBase:      publishRetryBase,
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.pollInterval <= 0 {
		s.pollInterval = defaultPollInterval
	}
	return s, nil
}

// Run polls until ctx is done. A full batch is followed immediately by the
// next one; an empty batch waits one poll interval; a failing batch backs
// off exponentially.
func (s *Service) Run(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	backoff := s.batchBackoff()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		processed, err := s.processBatch(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox batch failed", err)
			wait, _ = backoff.Next()
		case processed:
			backoff = s.batchBackoff()
			continue
		default:
			backoff = s.batchBackoff()
			wait = s.pollInterval
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (s *Service) batchBackoff() retry.Backoff {
	return retry.WithCappedDuration(batchErrorBackoffCap,
		retry.WithJitterPercent(10, retry.NewExponential(s.pollInterval)))
}

// processBatch reports whether any rows were claimed. Only bookkeeping
// failures abort the batch; a row that cannot be delivered is marked and the
// batch moves on.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	var claimed int
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		store := s.store(tx)
		rows, err := store.FetchUnpublished(s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch unpublished: %w", err)
		}
		claimed = len(rows)
		for _, row := range rows {
			if err := s.deliver(ctx, store, row); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed > 0, err
}

func (s *Service) deliver(ctx context.Context, store outboxStore, row models.OutboxEvent) error {
	eventType := string(row.EventType)
	ctx = s.logg.WithFields(ctx, rowFields(row))

	envelope, err := outbox.DecodeEnvelope(row.Payload)
	if err == nil && envelope.EventID == "" {
		err = errors.New("envelope has no event id")
	}
	if err != nil {
		// Retrying cannot fix the payload.
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "outbox event malformed")
		s.metrics.IncExhausted(eventType)
		if markErr := store.MarkDead(row.ID, err, s.maxAttempts); markErr != nil {
			return fmt.Errorf("mark dead %s: %w", row.ID, markErr)
		}
		return nil
	}
	ctx = s.logg.WithField(ctx, "event_id", envelope.EventID)

	if err := s.publish(ctx, newMessage(row, envelope)); err != nil {
		attempt := row.AttemptCount + 1
		logCtx := s.logg.WithFields(ctx, map[string]any{"attempt_count": attempt, "error": err.Error()})
		if attempt >= s.maxAttempts {
			s.logg.Warn(logCtx, "outbox event exhausted its attempts")
			s.metrics.IncExhausted(eventType)
		} else {
			s.logg.Warn(logCtx, "outbox publish failed")
			s.metrics.IncFailed(eventType)
		}
		if markErr := store.MarkFailed(row.ID, err); markErr != nil {
			return fmt.Errorf("mark failed %s: %w", row.ID, markErr)
		}
		return nil
	}

	if err := store.MarkPublished(row.ID); err != nil {
		return fmt.Errorf("mark published %s: %w", row.ID, err)
	}
	s.metrics.IncPublished(eventType)
	s.logg.Info(ctx, "outbox event published")
	return nil
}

// publish gives the sink a few quick in-process retries before the row's
// attempt count is charged.
func (s *Service) publish(ctx context.Context, msg Message) error {
	policy := retry.WithMaxRetries(s.publishRetries,
		retry.WithJitterPercent(20, retry.NewExponential(s.retryBase)))
	return retry.Do(ctx, policy, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		return retry.RetryableError(s.sink.Publish(callCtx, msg))
	})
}

func rowFields(row models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
		"attempt_count":  row.AttemptCount,
	}
	if row.LastError != nil {
		fields["last_error"] = *row.LastError
	}
	return fields
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
