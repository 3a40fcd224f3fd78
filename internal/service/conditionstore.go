package service

import (
	"context"
	"fmt"
	"time"

	"github.com/nexus-edge/condition-worker/internal/domain"
	"github.com/nexus-edge/condition-worker/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// dedupWindow is the minimum spacing between two records with the same
// condition. It absorbs races between the polling loop and the snapshot
// cron, which may both observe the same moment.
const dedupWindow = 5 * time.Second

// ConditionRecorder appends to the per-machine condition-transition log.
// Writes happen on change, or unconditionally when a snapshot is forced,
// always subject to the deduplication window.
type ConditionRecorder struct {
	store   Store
	events  EventPublisher
	metrics *metrics.Registry
	logger  zerolog.Logger
}

// NewConditionRecorder creates a recorder. events may be nil when no broker
// is configured.
func NewConditionRecorder(store Store, events EventPublisher, metricsReg *metrics.Registry, logger zerolog.Logger) *ConditionRecorder {
	return &ConditionRecorder{
		store:   store,
		events:  events,
		metrics: metricsReg,
		logger:  logger.With().Str("component", "condition-recorder").Logger(),
	}
}

// Record evaluates and persists one observed condition for a machine.
// reading may be nil; when present and the condition changed, a log-history
// row is written for the same moment unless skipLogHistory is set (the
// snapshot cron sets it because it bulk-writes log history itself).
func (c *ConditionRecorder) Record(
	ctx context.Context,
	machineID int64,
	machineName string,
	condition domain.Condition,
	kwh decimal.Decimal,
	timestamp time.Time,
	reading *domain.MachineReading,
	forceSnapshot bool,
	skipLogHistory bool,
) error {
	existing, err := c.store.FindLatestCondition(ctx, machineID)
	if err != nil {
		return fmt.Errorf("%w: find latest condition: %v", domain.ErrPersistence, err)
	}

	changed := existing == nil || existing.CurrentCondition != condition
	if !changed && !forceSnapshot {
		return nil
	}

	if existing != nil && existing.CurrentCondition == condition &&
		timestamp.Sub(existing.CurrentTimestamp) < dedupWindow {
		c.logger.Debug().
			Int64("machine_id", machineID).
			Str("condition", string(condition)).
			Msg("Duplicate condition within dedup window, skipping")
		return nil
	}

	rec := domain.ConditionRecord{
		MachineID:        machineID,
		CurrentTimestamp: timestamp,
		CurrentCondition: condition,
		CurrentKwh:       kwh,
	}
	if existing != nil {
		ts := existing.CurrentTimestamp
		cond := existing.CurrentCondition
		prev := existing.CurrentKwh
		rec.LastTimestamp = &ts
		rec.LastCondition = &cond
		rec.LastKwh = &prev
	}

	if err := c.store.InsertConditionRecord(ctx, rec); err != nil {
		if c.metrics != nil {
			c.metrics.PersistenceErrors.Inc()
		}
		return fmt.Errorf("%w: insert condition record: %v", domain.ErrPersistence, err)
	}

	if changed {
		if c.metrics != nil {
			c.metrics.RecordConditionTransition(string(condition))
		}
		c.logger.Info().
			Int64("machine_id", machineID).
			Str("machine", machineName).
			Str("condition", string(condition)).
			Str("kwh", kwh.String()).
			Msg("Machine condition changed")
		c.publishChange(ctx, machineName, rec)
	}

	if changed && reading != nil && !skipLogHistory {
		row := logHistoryFromReading(*reading)
		row.Timestamp = timestamp
		if err := c.store.InsertLogHistoryBatch(ctx, []domain.LogHistoryRecord{row}); err != nil {
			if c.metrics != nil {
				c.metrics.PersistenceErrors.Inc()
			}
			return fmt.Errorf("%w: insert change log history: %v", domain.ErrPersistence, err)
		}
		if c.metrics != nil {
			c.metrics.LogHistoryRows.Inc()
		}
	}

	return nil
}

// publishChange emits a condition event on a best-effort basis. Broker
// trouble never fails the record path.
func (c *ConditionRecorder) publishChange(ctx context.Context, machineName string, rec domain.ConditionRecord) {
	if c.events == nil {
		return
	}

	event := domain.ConditionEvent{
		MachineID:     rec.MachineID,
		MachineName:   machineName,
		Condition:     rec.CurrentCondition,
		Kwh:           rec.CurrentKwh.String(),
		Timestamp:     rec.CurrentTimestamp,
		LastCondition: rec.LastCondition,
		LastTimestamp: rec.LastTimestamp,
	}

	if err := c.events.PublishConditionChange(ctx, event); err != nil {
		c.logger.Warn().
			Err(err).
			Int64("machine_id", rec.MachineID).
			Msg("Condition event publish failed")
	}
}
