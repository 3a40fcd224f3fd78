package service

import (
	"context"
	"fmt"
	"math"

	"github.com/nexus-edge/condition-worker/internal/domain"
	"github.com/nexus-edge/condition-worker/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// LogHistoryWriter persists per-cycle snapshots of raw sensor values, one
// row per machine per moment.
type LogHistoryWriter struct {
	store   Store
	metrics *metrics.Registry
	logger  zerolog.Logger
}

// NewLogHistoryWriter creates a writer backed by the given store.
func NewLogHistoryWriter(store Store, metricsReg *metrics.Registry, logger zerolog.Logger) *LogHistoryWriter {
	return &LogHistoryWriter{
		store:   store,
		metrics: metricsReg,
		logger:  logger.With().Str("component", "log-history").Logger(),
	}
}

// SaveBatch aggregates sensor readings per machine and writes one row per
// machine in a single bulk insert. Failed sensor readings contribute
// nothing; a machine with no successful readings is skipped entirely.
func (w *LogHistoryWriter) SaveBatch(ctx context.Context, readings []domain.SensorReading) error {
	aggregated := domain.AggregateReadings(readings)
	if len(aggregated) == 0 {
		w.logger.Debug().Msg("No successful readings to persist")
		return nil
	}

	rows := make([]domain.LogHistoryRecord, 0, len(aggregated))
	for _, mr := range aggregated {
		rows = append(rows, logHistoryFromReading(mr))
	}

	if err := w.store.InsertLogHistoryBatch(ctx, rows); err != nil {
		if w.metrics != nil {
			w.metrics.PersistenceErrors.Inc()
		}
		return fmt.Errorf("%w: insert log history batch: %v", domain.ErrPersistence, err)
	}

	if w.metrics != nil {
		w.metrics.LogHistoryRows.Add(float64(len(rows)))
	}
	w.logger.Debug().Int("rows", len(rows)).Msg("Log history batch written")
	return nil
}

// logHistoryFromReading converts an aggregated reading into a storage row.
// Contact values are rounded to the nearest integer; analog values become
// fixed-point decimals. Missing values stay nil.
func logHistoryFromReading(mr domain.MachineReading) domain.LogHistoryRecord {
	rec := domain.LogHistoryRecord{
		MachineID: mr.MachineID,
		Timestamp: mr.Timestamp,
	}
	if mr.OnContact != nil {
		v := int(math.Round(*mr.OnContact))
		rec.OnContact = &v
	}
	if mr.AlarmContact != nil {
		v := int(math.Round(*mr.AlarmContact))
		rec.AlarmContact = &v
	}
	if mr.Temperature != nil {
		d := decimal.NewFromFloat(*mr.Temperature)
		rec.Temperature = &d
	}
	if mr.Kwh != nil {
		d := decimal.NewFromFloat(*mr.Kwh)
		rec.Kwh = &d
	}
	if mr.CapstanSpeed != nil {
		d := decimal.NewFromFloat(*mr.CapstanSpeed)
		rec.CapstanSpeed = &d
	}
	return rec
}
