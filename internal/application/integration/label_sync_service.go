package integration

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rosshiga/Catapult-VUSION-Driver/internal/domain/integration"
	"github.com/rosshiga/Catapult-VUSION-Driver/internal/domain/shared"
	"github.com/rosshiga/Catapult-VUSION-Driver/internal/infrastructure/logger"
	"github.com/rosshiga/Catapult-VUSION-Driver/internal/infrastructure/telemetry"
)

// DefaultStoreConcurrency is the number of destination stores delivered in parallel
const DefaultStoreConcurrency = 4

// internalErrorMessage is reported for failures that must not leak item detail
const internalErrorMessage = "Internal server error"

// SyncMetrics receives per-request item counts. telemetry.SyncMetrics implements it
type SyncMetrics interface {
	ObserveSync(updated, deleted, skipped, errors int)
}

type noopSyncMetrics struct{}

func (noopSyncMetrics) ObserveSync(int, int, int, int) {}

// LabelSyncService turns a decoded POS webhook into label cloud writes.
// It holds no per-request state and is safe for concurrent use.
type LabelSyncService struct {
	sink        integration.LabelSink
	stores      integration.StoreMap
	transformer *integration.LabelTransformer
	concurrency int
	replay      shared.IdempotencyStore
	replayTTL   time.Duration
	metrics     SyncMetrics
	logger      *zap.Logger
}

// ServiceOption configures a LabelSyncService
type ServiceOption func(*LabelSyncService)

// WithStoreConcurrency bounds how many stores are delivered at once
func WithStoreConcurrency(n int) ServiceOption {
	return func(s *LabelSyncService) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithReplayGuard acknowledges bodies already applied within ttl without delivering them again.
// A body is recorded only after its sync succeeds, so identical bodies that arrive
// while the first is still being delivered are all delivered. The guard drops
// POS retries of completed requests; it does not make delivery exactly once.
func WithReplayGuard(store shared.IdempotencyStore, ttl time.Duration) ServiceOption {
	return func(s *LabelSyncService) {
		s.replay = store
		s.replayTTL = ttl
	}
}

// WithSyncMetrics sets the metrics sink
func WithSyncMetrics(m SyncMetrics) ServiceOption {
	return func(s *LabelSyncService) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithServiceLogger sets the fallback logger used when the context carries none
func WithServiceLogger(l *zap.Logger) ServiceOption {
	return func(s *LabelSyncService) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewLabelSyncService creates a new LabelSyncService
func NewLabelSyncService(sink integration.LabelSink, stores integration.StoreMap, opts ...ServiceOption) *LabelSyncService {
	s := &LabelSyncService{
		sink:        sink,
		stores:      stores,
		transformer: integration.NewLabelTransformer(),
		concurrency: DefaultStoreConcurrency,
		metrics:     noopSyncMetrics{},
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle runs one webhook request, consulting the replay guard when configured
func (s *LabelSyncService) Handle(ctx context.Context, cmd SyncCommand) *SyncResult {
	log := logger.WithLogger(ctx, s.logger)

	if len(cmd.Items) == 0 {
		return &SyncResult{
			Outcome:    integration.NewRequestOutcome(),
			Message:    integration.NoItemsMessage,
			StatusCode: http.StatusOK,
		}
	}

	guarded := s.replay != nil && cmd.Fingerprint != ""
	if guarded {
		seen, err := s.replay.IsProcessed(ctx, cmd.Fingerprint)
		switch {
		case err != nil:
			log.Warn("Replay guard lookup failed, processing request", zap.Error(err))
		case seen:
			log.Info("Replayed webhook acknowledged without delivery",
				zap.String("fingerprint", cmd.Fingerprint),
				zap.Int("items", len(cmd.Items)))
			return &SyncResult{
				Outcome:    integration.NewRequestOutcome(),
				Replayed:   true,
				Message:    ReplayedMessage,
				StatusCode: http.StatusOK,
			}
		}
	}

	outcome := s.Sync(ctx, cmd.Items)
	result := &SyncResult{
		Outcome:    outcome,
		Message:    outcome.Summary(),
		StatusCode: outcome.StatusCode(),
	}

	if guarded && !outcome.HasErrors() {
		if _, err := s.replay.MarkProcessed(ctx, cmd.Fingerprint, s.replayTTL); err != nil {
			log.Warn("Failed to record webhook in replay guard", zap.Error(err))
		}
	}
	return result
}

// storeResult holds the outcome of one destination store
type storeResult struct {
	updated int
	deleted int
	errors  []string
}

// Sync groups items by destination store and delivers every store.
// A failure in one store never prevents delivery to the others.
func (s *LabelSyncService) Sync(ctx context.Context, items []integration.PosItem) (outcome *integration.RequestOutcome) {
	ctx, span := telemetry.StartServiceSpan(ctx, "label_sync", "sync")
	defer span.End()
	log := logger.WithLogger(ctx, s.logger)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic during label sync", zap.Any("panic", r), zap.Stack("stack"))
			outcome = integration.NewRequestOutcome()
			outcome.AddError(internalErrorMessage)
			telemetry.RecordError(span, fmt.Errorf("panic: %v", r))
			s.metrics.ObserveSync(0, 0, 0, 1)
		}
	}()

	outcome = integration.NewRequestOutcome()
	log.Info("Received items from Catapult", zap.Int("items", len(items)))

	plan := integration.GroupForDispatch(items, s.stores, s.transformer)
	outcome.AddSkipped(plan.Skipped)
	for _, msg := range plan.Errors {
		log.Error("Transform failed", zap.String("error", msg))
		outcome.AddError(msg)
	}

	stores := plan.Stores()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrItemCount, len(items),
		telemetry.SpanAttrStoreCount, len(stores),
		telemetry.SpanAttrUpsertCount, plan.UpsertCount(),
		telemetry.SpanAttrDeleteCount, plan.DeleteCount(),
		telemetry.SpanAttrSkipped, plan.Skipped,
	)

	results := make([]storeResult, len(stores))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, storeID := range stores {
		g.Go(func() error {
			results[i] = s.syncStore(ctx, storeID, plan.Upserts[storeID], plan.Deletes[storeID])
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		outcome.AddUpdated(r.updated)
		outcome.AddDeleted(r.deleted)
		for _, msg := range r.errors {
			outcome.AddError(msg)
		}
	}

	s.metrics.ObserveSync(outcome.Updated, outcome.Deleted, outcome.Skipped, len(outcome.Errors))
	telemetry.SetAttribute(span, telemetry.SpanAttrErrorCount, len(outcome.Errors))
	if outcome.HasErrors() {
		log.Warn(outcome.Summary())
	} else {
		telemetry.SetOK(span)
		log.Info(outcome.Summary())
	}
	return outcome
}

// syncStore upserts then deletes for one store; the two operations succeed or fail independently
func (s *LabelSyncService) syncStore(ctx context.Context, storeID string, upserts []integration.LabelItem, deletes []string) storeResult {
	ctx = logger.WithStore(ctx, storeID)
	log := logger.WithLogger(ctx, s.logger)
	var r storeResult

	if len(upserts) > 0 {
		if err := s.safeCall(func() error { return s.sink.UpsertItems(ctx, storeID, upserts) }); err != nil {
			log.Error("Failed to post items", zap.Int("items", len(upserts)), zap.Error(err))
			r.errors = append(r.errors, fmt.Sprintf("POST failed for store %s: %v", storeID, err))
		} else {
			r.updated = len(upserts)
			log.Info("Posted items", zap.Int("items", len(upserts)))
		}
	}

	if len(deletes) > 0 {
		if err := s.safeCall(func() error { return s.sink.DeleteItems(ctx, storeID, deletes) }); err != nil {
			log.Error("Failed to delete items", zap.Int("items", len(deletes)), zap.Error(err))
			r.errors = append(r.errors, fmt.Sprintf("DELETE failed for store %s: %v", storeID, err))
		} else {
			r.deleted = len(deletes)
			log.Info("Deleted items", zap.Int("items", len(deletes)))
		}
	}
	return r
}

// safeCall converts a panic in the sink into an error scoped to that store
func (s *LabelSyncService) safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic in label sink", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("%s: %w", internalErrorMessage, integration.ErrDeliveryFailed)
		}
	}()
	return fn()
}
