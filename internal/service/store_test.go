package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/nexus-edge/condition-worker/internal/domain"
)

// fakeStore is an in-memory Store used across the service tests.
type fakeStore struct {
	machines   []domain.Machine
	config     domain.GeneralConfig
	configErr  error
	conditions map[int64][]domain.ConditionRecord
	logHistory map[int64][]domain.LogHistoryRecord
	summaries  map[string]domain.DailySummary
	nextID     int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		conditions: make(map[int64][]domain.ConditionRecord),
		logHistory: make(map[int64][]domain.LogHistoryRecord),
		summaries:  make(map[string]domain.DailySummary),
	}
}

func (f *fakeStore) ListEnabledMachines(ctx context.Context) ([]domain.Machine, error) {
	var out []domain.Machine
	for _, m := range f.machines {
		if m.Enabled {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) GetGeneralConfig(ctx context.Context) (domain.GeneralConfig, error) {
	if f.configErr != nil {
		return domain.GeneralConfig{}, f.configErr
	}
	return f.config, nil
}

func (f *fakeStore) InsertConditionRecord(ctx context.Context, rec domain.ConditionRecord) error {
	f.nextID++
	rec.ID = f.nextID
	f.conditions[rec.MachineID] = append(f.conditions[rec.MachineID], rec)
	return nil
}

func (f *fakeStore) FindLatestCondition(ctx context.Context, machineID int64) (*domain.ConditionRecord, error) {
	recs := f.conditions[machineID]
	if len(recs) == 0 {
		return nil, nil
	}
	latest := recs[0]
	for _, r := range recs[1:] {
		if r.CurrentTimestamp.After(latest.CurrentTimestamp) ||
			(r.CurrentTimestamp.Equal(latest.CurrentTimestamp) && r.ID > latest.ID) {
			latest = r
		}
	}
	return &latest, nil
}

func (f *fakeStore) FindConditionsInRange(ctx context.Context, machineID int64, from, to time.Time) ([]domain.ConditionRecord, error) {
	var out []domain.ConditionRecord
	for _, r := range f.conditions[machineID] {
		if !r.CurrentTimestamp.Before(from) && r.CurrentTimestamp.Before(to) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CurrentTimestamp.Equal(out[j].CurrentTimestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].CurrentTimestamp.Before(out[j].CurrentTimestamp)
	})
	return out, nil
}

func (f *fakeStore) InsertLogHistoryBatch(ctx context.Context, recs []domain.LogHistoryRecord) error {
	for _, r := range recs {
		f.logHistory[r.MachineID] = append(f.logHistory[r.MachineID], r)
	}
	return nil
}

func (f *fakeStore) FindLogHistoryInRange(ctx context.Context, machineID int64, from, to time.Time) ([]domain.LogHistoryRecord, error) {
	var out []domain.LogHistoryRecord
	for _, r := range f.logHistory[machineID] {
		if !r.Timestamp.Before(from) && r.Timestamp.Before(to) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (f *fakeStore) UpsertDailySummary(ctx context.Context, summary domain.DailySummary) error {
	f.summaries[summaryKey(summary.MachineID, summary.Date)] = summary
	return nil
}

func (f *fakeStore) FindDailySummary(ctx context.Context, machineID int64, date time.Time) (*domain.DailySummary, error) {
	s, ok := f.summaries[summaryKey(machineID, date)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func summaryKey(machineID int64, date time.Time) string {
	return fmt.Sprintf("%d/%s", machineID, date.UTC().Format("2006-01-02"))
}

// fakePublisher records published condition events.
type fakePublisher struct {
	events []domain.ConditionEvent
	err    error
}

func (f *fakePublisher) PublishConditionChange(ctx context.Context, event domain.ConditionEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}
