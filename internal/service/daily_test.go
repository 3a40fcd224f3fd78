package service

import (
	"context"
	"testing"
	"time"

	"github.com/nexus-edge/condition-worker/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func condRec(id, machineID int64, ts time.Time, cond domain.Condition, kwh float64, lastKwh *float64) domain.ConditionRecord {
	rec := domain.ConditionRecord{
		ID:               id,
		MachineID:        machineID,
		CurrentTimestamp: ts,
		CurrentCondition: cond,
		CurrentKwh:       decimal.NewFromFloat(kwh),
	}
	if lastKwh != nil {
		d := decimal.NewFromFloat(*lastKwh)
		rec.LastKwh = &d
	}
	return rec
}

func TestDailyRollUpTypicalDay(t *testing.T) {
	day := time.Date(2026, 8, 19, 0, 0, 0, 0, domain.WIB)
	at := func(hour int) time.Time { return day.Add(time.Duration(hour) * time.Hour) }

	store := newFakeStore()
	store.machines = []domain.Machine{{ID: 1, Name: "EX-01", Enabled: true, PowerMeterID: 1}}
	store.conditions[1] = []domain.ConditionRecord{
		condRec(1, 1, at(10), domain.ConditionProduction, 100, fptrf(98)),
		condRec(2, 1, at(12), domain.ConditionIddle, 110, fptrf(110)),
		condRec(3, 1, at(14), domain.ConditionProduction, 115, fptrf(115)),
		condRec(4, 1, at(16), domain.ConditionProduction, 125, fptrf(115)),
	}

	calc := NewDailyCalculator(store, nil, domain.WIB, zerolog.Nop())
	if err := calc.RunFor(context.Background(), day); err != nil {
		t.Fatalf("RunFor() error = %v", err)
	}

	date := time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC)
	got, err := store.FindDailySummary(context.Background(), 1, date)
	if err != nil {
		t.Fatalf("summary not written: %v", err)
	}

	if got.ProductionHours != 4 {
		t.Errorf("production hours = %v, want 4", got.ProductionHours)
	}
	if got.IddleHours != 2 {
		t.Errorf("iddle hours = %v, want 2", got.IddleHours)
	}
	if got.TotalHours != 6 {
		t.Errorf("total hours = %v, want 6", got.TotalHours)
	}
	assertDecimal(t, "production kwh", got.ProductionKwh, 22)
	assertDecimal(t, "iddle kwh", got.IddleKwh, 5)
	assertDecimal(t, "total kwh", got.TotalKwh, 27)
	if !got.IsOneBlock {
		t.Error("machine with exclusive meter must be one block")
	}
}

func TestDailyRollUpConservation(t *testing.T) {
	day := time.Date(2026, 8, 19, 0, 0, 0, 0, domain.WIB)
	at := func(hour int) time.Time { return day.Add(time.Duration(hour) * time.Hour) }

	records := []domain.ConditionRecord{
		condRec(1, 1, at(6), domain.ConditionOff, 50, nil),
		condRec(2, 1, at(7), domain.ConditionHeatingUp, 52, fptrf(50)),
		condRec(3, 1, at(9), domain.ConditionProduction, 60, fptrf(60)),
		condRec(4, 1, at(13), domain.ConditionIddle, 75, fptrf(75)),
		condRec(5, 1, at(15), domain.ConditionOff, 78, fptrf(78)),
	}

	s := summarizeDay(records)

	if want := s.HeatingUpHours + s.IddleHours + s.ProductionHours; s.TotalHours != want {
		t.Errorf("total hours %v != sum of parts %v", s.TotalHours, want)
	}
	if want := s.HeatingUpKwh.Add(s.IddleKwh).Add(s.ProductionKwh); !s.TotalKwh.Equal(want) {
		t.Errorf("total kwh %v != sum of parts %v", s.TotalKwh, want)
	}

	// Off time (06-07 and after 15:00) is excluded from the total.
	if s.TotalHours != 8 {
		t.Errorf("total hours = %v, want 8", s.TotalHours)
	}
	if s.HeatingUpHours != 2 || s.ProductionHours != 4 || s.IddleHours != 2 {
		t.Errorf("hours split = %v/%v/%v, want 2/4/2",
			s.HeatingUpHours, s.ProductionHours, s.IddleHours)
	}
}

func TestDailyRollUpLeadInFromPriorDay(t *testing.T) {
	day := time.Date(2026, 8, 19, 0, 0, 0, 0, domain.WIB)
	lead := day.Add(-30 * time.Minute) // last snapshot of the prior day

	first := condRec(1, 1, day.Add(1*time.Hour), domain.ConditionProduction, 100, fptrf(95))
	first.LastTimestamp = &lead
	records := []domain.ConditionRecord{
		first,
		condRec(2, 1, day.Add(3*time.Hour), domain.ConditionOff, 110, fptrf(110)),
	}

	s := summarizeDay(records)
	if s.ProductionHours != 3.5 {
		t.Errorf("production hours = %v, want 3.5 (lead-in included)", s.ProductionHours)
	}
}

func TestDailyRollUpEmptyDayWritesZeros(t *testing.T) {
	day := time.Date(2026, 8, 19, 0, 0, 0, 0, domain.WIB)
	store := newFakeStore()
	store.machines = []domain.Machine{{ID: 1, Name: "EX-01", Enabled: true, PowerMeterID: 1}}

	calc := NewDailyCalculator(store, nil, domain.WIB, zerolog.Nop())
	if err := calc.RunFor(context.Background(), day); err != nil {
		t.Fatalf("RunFor() error = %v", err)
	}

	date := time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC)
	got, err := store.FindDailySummary(context.Background(), 1, date)
	if err != nil {
		t.Fatalf("zero summary not written: %v", err)
	}
	if got.TotalHours != 0 || !got.TotalKwh.IsZero() || !got.IsOneBlock {
		t.Errorf("expected zero one-block summary, got %+v", got)
	}
}

func TestDailyRollUpSharedMeterSplit(t *testing.T) {
	day := time.Date(2026, 8, 19, 0, 0, 0, 0, domain.WIB)
	at := func(hour int) time.Time { return day.Add(time.Duration(hour) * time.Hour) }

	store := newFakeStore()
	store.machines = []domain.Machine{
		{ID: 1, Name: "EX-A", Enabled: true, PowerMeterID: 7},
		{ID: 2, Name: "EX-B", Enabled: true, PowerMeterID: 7},
	}
	for _, id := range []int64{1, 2} {
		store.conditions[id] = []domain.ConditionRecord{
			condRec(id*10+1, id, at(8), domain.ConditionProduction, 100, fptrf(90)),
			condRec(id*10+2, id, at(12), domain.ConditionOff, 120, fptrf(120)),
		}
	}

	calc := NewDailyCalculator(store, nil, domain.WIB, zerolog.Nop())
	if err := calc.RunFor(context.Background(), day); err != nil {
		t.Fatalf("RunFor() error = %v", err)
	}

	date := time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC)
	for _, id := range []int64{1, 2} {
		got, err := store.FindDailySummary(context.Background(), id, date)
		if err != nil {
			t.Fatalf("machine %d summary missing: %v", id, err)
		}
		if got.IsOneBlock {
			t.Errorf("machine %d sharing a meter with a producing peer must not be one block", id)
		}
		// Unsplit production energy is 120-90=30; each block keeps half.
		assertDecimal(t, "production kwh", got.ProductionKwh, 15)
		assertDecimal(t, "total kwh", got.TotalKwh, 15)
		if got.ProductionHours != 4 {
			t.Errorf("machine %d hours must not be split: %v", id, got.ProductionHours)
		}
	}
}

func TestDailyRollUpSharedMeterPeerNotProducing(t *testing.T) {
	day := time.Date(2026, 8, 19, 0, 0, 0, 0, domain.WIB)
	at := func(hour int) time.Time { return day.Add(time.Duration(hour) * time.Hour) }

	store := newFakeStore()
	store.machines = []domain.Machine{
		{ID: 1, Name: "EX-A", Enabled: true, PowerMeterID: 7},
		{ID: 2, Name: "EX-B", Enabled: true, PowerMeterID: 7},
	}
	store.conditions[1] = []domain.ConditionRecord{
		condRec(1, 1, at(8), domain.ConditionProduction, 100, fptrf(90)),
		condRec(2, 1, at(12), domain.ConditionOff, 120, fptrf(120)),
	}
	store.conditions[2] = []domain.ConditionRecord{
		condRec(3, 2, at(8), domain.ConditionOff, 0, nil),
	}

	calc := NewDailyCalculator(store, nil, domain.WIB, zerolog.Nop())
	if err := calc.RunFor(context.Background(), day); err != nil {
		t.Fatalf("RunFor() error = %v", err)
	}

	date := time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC)
	got, err := store.FindDailySummary(context.Background(), 1, date)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsOneBlock {
		t.Error("idle peer must not trigger the split")
	}
	assertDecimal(t, "production kwh", got.ProductionKwh, 30)
}

func fptrf(v float64) *float64 { return &v }

func assertDecimal(t *testing.T, name string, got decimal.Decimal, want float64) {
	t.Helper()
	if !got.Equal(decimal.NewFromFloat(want)) {
		t.Errorf("%s = %s, want %v", name, got.String(), want)
	}
}
