package service

import (
	"context"
	"sync"
	"time"

	"github.com/nexus-edge/condition-worker/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	// hotThreshold is the furnace temperature above which a machine is
	// considered heating toward operating condition.
	hotThreshold = 300

	// hotDuration is how long the temperature must stay at or above the
	// threshold before the machine counts as hot.
	hotDuration = time.Hour

	// dwellLookback bounds the log-history scan. Wider than hotDuration so
	// a segment that started up to 30 minutes before the hour mark is still
	// visible.
	dwellLookback = 90 * time.Minute
)

var hotThresholdDec = decimal.NewFromInt(hotThreshold)

type dwellState struct {
	heatingUpSince *time.Time
	lastFetch      time.Time
}

// DwellTracker evaluates the per-machine predicate "temperature has been at
// or above 300 continuously for at least one hour". It is read-through: the
// hot-segment start is recomputed from log history on every query, so the
// cache never serves an answer older than one cycle.
type DwellTracker struct {
	store  Store
	logger zerolog.Logger
	now    func() time.Time

	mu    sync.Mutex
	state map[int64]*dwellState
}

// NewDwellTracker creates a tracker backed by the given store.
func NewDwellTracker(store Store, logger zerolog.Logger) *DwellTracker {
	return &DwellTracker{
		store:  store,
		logger: logger.With().Str("component", "dwell-tracker").Logger(),
		now:    time.Now,
		state:  make(map[int64]*dwellState),
	}
}

// IsHot reports whether the machine has dwelled at or above the threshold
// for the full duration. currentTemperature is this cycle's reading; a value
// below the threshold clears the tracked segment immediately without
// touching the store.
func (t *DwellTracker) IsHot(ctx context.Context, machineID int64, currentTemperature float64) bool {
	now := t.now()

	if currentTemperature < hotThreshold {
		t.setSince(machineID, nil, now)
		return false
	}

	since, err := t.segmentStart(ctx, machineID, now)
	if err != nil {
		t.logger.Warn().Err(err).Int64("machine_id", machineID).Msg("Dwell lookup failed, keeping cached state")
		since = t.cachedSince(machineID)
	}
	t.setSince(machineID, since, now)

	if since == nil {
		return false
	}
	return now.Sub(*since) >= hotDuration
}

// Warm primes the tracker for each machine at startup so the first cycle
// after a restart classifies with the same history a long-running worker
// would see.
func (t *DwellTracker) Warm(ctx context.Context, machines []domain.Machine) {
	now := t.now()
	for _, m := range machines {
		if !m.Enabled {
			continue
		}
		since, err := t.segmentStart(ctx, m.ID, now)
		if err != nil {
			t.logger.Warn().Err(err).Int64("machine_id", m.ID).Msg("Dwell warm-up lookup failed")
			continue
		}
		t.setSince(m.ID, since, now)
	}
	t.logger.Info().Int("machines", len(machines)).Msg("Dwell tracker warmed")
}

// segmentStart walks the recent log history ascending and returns the start
// of the currently active hot segment, or nil when the machine is not in
// one. When the window holds no hot sample at all, the most recent persisted
// condition acts as a fallback: a machine last seen in MachineProduction or
// Iddle had already satisfied the predicate before the data gap, and a
// restart must not regress it to HeatingUp.
func (t *DwellTracker) segmentStart(ctx context.Context, machineID int64, now time.Time) (*time.Time, error) {
	history, err := t.store.FindLogHistoryInRange(ctx, machineID, now.Add(-dwellLookback), now)
	if err != nil {
		return nil, err
	}

	var since *time.Time
	sawHot := false
	for _, rec := range history {
		if rec.Temperature == nil {
			continue
		}
		if rec.Temperature.LessThan(hotThresholdDec) {
			since = nil
			continue
		}
		sawHot = true
		if since == nil {
			ts := rec.Timestamp
			since = &ts
		}
	}

	if since != nil || sawHot {
		return since, nil
	}

	latest, err := t.store.FindLatestCondition(ctx, machineID)
	if err != nil {
		return nil, err
	}
	if latest != nil && (latest.CurrentCondition == domain.ConditionProduction || latest.CurrentCondition == domain.ConditionIddle) {
		start := now.Add(-hotDuration)
		t.logger.Debug().
			Int64("machine_id", machineID).
			Str("last_condition", string(latest.CurrentCondition)).
			Msg("No hot samples in window, trusting last persisted condition")
		return &start, nil
	}

	return nil, nil
}

func (t *DwellTracker) setSince(machineID int64, since *time.Time, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.state[machineID]
	if !ok {
		st = &dwellState{}
		t.state[machineID] = st
	}
	st.heatingUpSince = since
	st.lastFetch = now
}

func (t *DwellTracker) cachedSince(machineID int64) *time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	if st, ok := t.state[machineID]; ok {
		return st.heatingUpSince
	}
	return nil
}
