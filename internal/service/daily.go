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

var two = decimal.NewFromInt(2)

// DailyCalculator rolls condition records up into per-machine, per-day
// summaries of run hours and energy. It runs once a day for the previous
// local calendar day and is idempotent: re-running a day rewrites its rows.
type DailyCalculator struct {
	store   Store
	metrics *metrics.Registry
	logger  zerolog.Logger
	loc     *time.Location
	now     func() time.Time
}

// NewDailyCalculator creates a calculator evaluating days in loc.
func NewDailyCalculator(store Store, metricsReg *metrics.Registry, loc *time.Location, logger zerolog.Logger) *DailyCalculator {
	return &DailyCalculator{
		store:   store,
		metrics: metricsReg,
		logger:  logger.With().Str("component", "daily-calculator").Logger(),
		loc:     loc,
		now:     time.Now,
	}
}

// Run processes the previous local calendar day for every enabled machine.
func (d *DailyCalculator) Run(ctx context.Context) error {
	now := d.now().In(d.loc)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, d.loc).AddDate(0, 0, -1)
	return d.RunFor(ctx, day)
}

// RunFor processes one local calendar day. day must be local midnight.
func (d *DailyCalculator) RunFor(ctx context.Context, day time.Time) error {
	machines, err := d.store.ListEnabledMachines(ctx)
	if err != nil {
		d.recordRun(false)
		return fmt.Errorf("%w: list machines: %v", domain.ErrPersistence, err)
	}

	from := day
	to := day.AddDate(0, 0, 1)

	// The stored date is UTC midnight of the local day so a lookup by date
	// string matches the local calendar.
	date := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

	type machineDay struct {
		machine domain.Machine
		records []domain.ConditionRecord
		summary domain.DailySummary
	}

	days := make([]machineDay, 0, len(machines))
	byMeter := make(map[int64][]int)
	for _, m := range machines {
		records, err := d.store.FindConditionsInRange(ctx, m.ID, from, to)
		if err != nil {
			d.recordRun(false)
			return fmt.Errorf("%w: conditions for machine %d: %v", domain.ErrPersistence, m.ID, err)
		}
		summary := summarizeDay(records)
		summary.MachineID = m.ID
		summary.Date = date
		summary.IsOneBlock = true

		byMeter[m.PowerMeterID] = append(byMeter[m.PowerMeterID], len(days))
		days = append(days, machineDay{machine: m, records: records, summary: summary})
	}

	// Block split: two machines on one power meter each see the full meter,
	// so when both produced that day each keeps half the energy. Hours are
	// per-machine observations and are never split.
	for i := range days {
		md := &days[i]
		sharers := byMeter[md.machine.PowerMeterID]
		if len(sharers) < 2 || md.summary.ProductionHours <= 0 {
			continue
		}
		for _, j := range sharers {
			if j == i || !hasProduction(days[j].records) {
				continue
			}
			md.summary.IsOneBlock = false
			md.summary.TotalKwh = md.summary.TotalKwh.Div(two)
			md.summary.HeatingUpKwh = md.summary.HeatingUpKwh.Div(two)
			md.summary.IddleKwh = md.summary.IddleKwh.Div(two)
			md.summary.ProductionKwh = md.summary.ProductionKwh.Div(two)
			break
		}
	}

	for _, md := range days {
		if err := d.store.UpsertDailySummary(ctx, md.summary); err != nil {
			d.recordRun(false)
			return fmt.Errorf("%w: upsert summary for machine %d: %v", domain.ErrPersistence, md.machine.ID, err)
		}
		d.logger.Info().
			Int64("machine_id", md.machine.ID).
			Str("date", date.Format("2006-01-02")).
			Float64("total_hours", md.summary.TotalHours).
			Str("total_kwh", md.summary.TotalKwh.String()).
			Bool("one_block", md.summary.IsOneBlock).
			Msg("Daily summary written")
	}

	d.recordRun(true)
	return nil
}

func (d *DailyCalculator) recordRun(success bool) {
	if d.metrics != nil {
		d.metrics.RecordDailyRun(success)
	}
}

// summarizeDay computes hours and energy from one day's chronologically
// ordered condition records. An empty day yields a zero summary.
func summarizeDay(records []domain.ConditionRecord) domain.DailySummary {
	var s domain.DailySummary

	// Each record owns the interval up to the next one. The first record
	// additionally owns the lead-in from the prior day's last snapshot when
	// that anchor is present. The last record owns nothing yet; tomorrow's
	// run sees it as an anchor.
	for i := 0; i+1 < len(records); i++ {
		cur := records[i]
		start := cur.CurrentTimestamp
		if i == 0 && cur.LastTimestamp != nil {
			start = *cur.LastTimestamp
		}
		hours := records[i+1].CurrentTimestamp.Sub(start).Hours()

		switch cur.CurrentCondition {
		case domain.ConditionHeatingUp:
			s.HeatingUpHours += hours
		case domain.ConditionIddle:
			s.IddleHours += hours
		case domain.ConditionProduction:
			s.ProductionHours += hours
		}
	}
	s.TotalHours = s.HeatingUpHours + s.IddleHours + s.ProductionHours

	// Energy is segment-based because kWh is cumulative: a maximal run of
	// records in one condition consumed the meter delta from just before
	// the segment started to just before the next condition took over.
	for i := 0; i < len(records); {
		j := i
		for j+1 < len(records) && records[j+1].CurrentCondition == records[i].CurrentCondition {
			j++
		}

		cond := records[i].CurrentCondition
		if cond.CountsForDaily() {
			startKwh := records[i].CurrentKwh
			if records[i].LastKwh != nil {
				startKwh = *records[i].LastKwh
			}
			endKwh := records[j].CurrentKwh
			if j+1 < len(records) && records[j+1].LastKwh != nil {
				endKwh = *records[j+1].LastKwh
			}
			delta := endKwh.Sub(startKwh)

			switch cond {
			case domain.ConditionHeatingUp:
				s.HeatingUpKwh = s.HeatingUpKwh.Add(delta)
			case domain.ConditionIddle:
				s.IddleKwh = s.IddleKwh.Add(delta)
			case domain.ConditionProduction:
				s.ProductionKwh = s.ProductionKwh.Add(delta)
			}
		}

		i = j + 1
	}
	s.TotalKwh = s.HeatingUpKwh.Add(s.IddleKwh).Add(s.ProductionKwh)

	return s
}

func hasProduction(records []domain.ConditionRecord) bool {
	for _, r := range records {
		if r.CurrentCondition == domain.ConditionProduction {
			return true
		}
	}
	return false
}
