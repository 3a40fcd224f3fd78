// Package service contains the condition worker's core logic: gateway
// grouping, the temperature dwell tracker, condition classification and
// persistence, the polling scheduler, and the daily roll-up calculator.
package service

import (
	"context"
	"time"

	"github.com/nexus-edge/condition-worker/internal/domain"
)

// Store is the persistence port consumed by the services. The Postgres
// adapter implements it; tests substitute in-memory fakes.
type Store interface {
	ListEnabledMachines(ctx context.Context) ([]domain.Machine, error)
	GetGeneralConfig(ctx context.Context) (domain.GeneralConfig, error)

	InsertConditionRecord(ctx context.Context, rec domain.ConditionRecord) error
	FindLatestCondition(ctx context.Context, machineID int64) (*domain.ConditionRecord, error)
	FindConditionsInRange(ctx context.Context, machineID int64, from, to time.Time) ([]domain.ConditionRecord, error)

	InsertLogHistoryBatch(ctx context.Context, recs []domain.LogHistoryRecord) error
	FindLogHistoryInRange(ctx context.Context, machineID int64, from, to time.Time) ([]domain.LogHistoryRecord, error)

	UpsertDailySummary(ctx context.Context, summary domain.DailySummary) error
	FindDailySummary(ctx context.Context, machineID int64, date time.Time) (*domain.DailySummary, error)
}

// EventPublisher publishes condition-transition events. Implementations
// must never block the polling cycle on broker trouble.
type EventPublisher interface {
	PublishConditionChange(ctx context.Context, event domain.ConditionEvent) error
}

// LicenseChecker validates the deployment license against the current
// fleet size.
type LicenseChecker interface {
	Validate(ctx context.Context, blob string, enabledMachines int) error
}
