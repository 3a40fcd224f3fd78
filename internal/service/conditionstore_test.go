package service

import (
	"context"
	"testing"
	"time"

	"github.com/nexus-edge/condition-worker/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func testReading(machineID int64, ts time.Time) *domain.MachineReading {
	on, alarm, temp, kwh := 1.0, 1.0, 320.0, 100.0
	return &domain.MachineReading{
		MachineID:    machineID,
		MachineName:  "EX-01",
		Timestamp:    ts,
		OnContact:    &on,
		AlarmContact: &alarm,
		Temperature:  &temp,
		Kwh:          &kwh,
	}
}

func TestRecordFirstObservation(t *testing.T) {
	store := newFakeStore()
	rec := NewConditionRecorder(store, nil, nil, zerolog.Nop())
	ts := time.Date(2026, 8, 20, 10, 0, 0, 0, domain.WIB)

	err := rec.Record(context.Background(), 1, "EX-01", domain.ConditionProduction,
		decimal.NewFromInt(100), ts, testReading(1, ts), false, false)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	rows := store.conditions[1]
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].LastTimestamp != nil || rows[0].LastCondition != nil || rows[0].LastKwh != nil {
		t.Error("first record must have empty last* fields")
	}
	if len(store.logHistory[1]) != 1 {
		t.Errorf("condition change with a reading should anchor one log history row, got %d", len(store.logHistory[1]))
	}
}

func TestRecordChangeOnly(t *testing.T) {
	store := newFakeStore()
	rec := NewConditionRecorder(store, nil, nil, zerolog.Nop())
	ts := time.Date(2026, 8, 20, 10, 0, 0, 0, domain.WIB)

	for i := 0; i < 3; i++ {
		err := rec.Record(context.Background(), 1, "EX-01", domain.ConditionIddle,
			decimal.NewFromInt(100), ts.Add(time.Duration(i)*time.Minute), nil, false, false)
		if err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	if got := len(store.conditions[1]); got != 1 {
		t.Errorf("unchanged condition without force must write at most one row, got %d", got)
	}
}

func TestRecordDeduplicationWindow(t *testing.T) {
	store := newFakeStore()
	rec := NewConditionRecorder(store, nil, nil, zerolog.Nop())
	ts := time.Date(2026, 8, 20, 10, 0, 0, 0, domain.WIB)

	// Forced snapshots bypass change detection but not the dedup guard.
	for _, offset := range []time.Duration{0, 2 * time.Second, 4 * time.Second} {
		err := rec.Record(context.Background(), 1, "EX-01", domain.ConditionProduction,
			decimal.NewFromInt(100), ts.Add(offset), nil, true, true)
		if err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	if got := len(store.conditions[1]); got != 1 {
		t.Fatalf("same condition within 5s must produce exactly one row, got %d", got)
	}

	// Past the window, a forced snapshot writes a heartbeat row.
	err := rec.Record(context.Background(), 1, "EX-01", domain.ConditionProduction,
		decimal.NewFromInt(105), ts.Add(6*time.Second), nil, true, true)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if got := len(store.conditions[1]); got != 2 {
		t.Errorf("forced snapshot past the dedup window must write, got %d rows", got)
	}
}

func TestRecordMirrorsPriorRecord(t *testing.T) {
	store := newFakeStore()
	rec := NewConditionRecorder(store, nil, nil, zerolog.Nop())
	t0 := time.Date(2026, 8, 20, 10, 0, 0, 0, domain.WIB)
	t1 := t0.Add(30 * time.Minute)

	if err := rec.Record(context.Background(), 1, "EX-01", domain.ConditionHeatingUp,
		decimal.NewFromInt(90), t0, nil, false, false); err != nil {
		t.Fatal(err)
	}
	if err := rec.Record(context.Background(), 1, "EX-01", domain.ConditionProduction,
		decimal.NewFromInt(100), t1, nil, false, false); err != nil {
		t.Fatal(err)
	}

	rows := store.conditions[1]
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	second := rows[1]
	if second.LastTimestamp == nil || !second.LastTimestamp.Equal(t0) {
		t.Errorf("last timestamp = %v, want %v", second.LastTimestamp, t0)
	}
	if second.LastCondition == nil || *second.LastCondition != domain.ConditionHeatingUp {
		t.Errorf("last condition = %v, want HeatingUp", second.LastCondition)
	}
	if second.LastKwh == nil || !second.LastKwh.Equal(decimal.NewFromInt(90)) {
		t.Errorf("last kwh = %v, want 90", second.LastKwh)
	}
}

func TestRecordSkipLogHistory(t *testing.T) {
	store := newFakeStore()
	rec := NewConditionRecorder(store, nil, nil, zerolog.Nop())
	ts := time.Date(2026, 8, 20, 10, 0, 0, 0, domain.WIB)

	err := rec.Record(context.Background(), 1, "EX-01", domain.ConditionProduction,
		decimal.NewFromInt(100), ts, testReading(1, ts), false, true)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if got := len(store.logHistory[1]); got != 0 {
		t.Errorf("skipLogHistory must suppress the anchor row, got %d", got)
	}
}

func TestRecordPublishesChangeEvents(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	rec := NewConditionRecorder(store, pub, nil, zerolog.Nop())
	t0 := time.Date(2026, 8, 20, 10, 0, 0, 0, domain.WIB)

	if err := rec.Record(context.Background(), 1, "EX-01", domain.ConditionHeatingUp,
		decimal.NewFromInt(90), t0, nil, false, false); err != nil {
		t.Fatal(err)
	}
	// Forced heartbeat with no change publishes nothing.
	if err := rec.Record(context.Background(), 1, "EX-01", domain.ConditionHeatingUp,
		decimal.NewFromInt(92), t0.Add(10*time.Minute), nil, true, true); err != nil {
		t.Fatal(err)
	}
	if err := rec.Record(context.Background(), 1, "EX-01", domain.ConditionProduction,
		decimal.NewFromInt(95), t0.Add(20*time.Minute), nil, false, false); err != nil {
		t.Fatal(err)
	}

	if len(pub.events) != 2 {
		t.Fatalf("expected 2 change events, got %d", len(pub.events))
	}
	last := pub.events[1]
	if last.Condition != domain.ConditionProduction || last.MachineID != 1 {
		t.Errorf("unexpected event: %+v", last)
	}
	if last.LastCondition == nil || *last.LastCondition != domain.ConditionHeatingUp {
		t.Errorf("event should carry the prior condition, got %v", last.LastCondition)
	}
}

func TestRecordPublisherFailureDoesNotFailWrite(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{err: domain.ErrEventNotConnected}
	rec := NewConditionRecorder(store, pub, nil, zerolog.Nop())
	ts := time.Date(2026, 8, 20, 10, 0, 0, 0, domain.WIB)

	err := rec.Record(context.Background(), 1, "EX-01", domain.ConditionIddle,
		decimal.NewFromInt(100), ts, nil, false, false)
	if err != nil {
		t.Fatalf("broker failure must not fail the record path: %v", err)
	}
	if len(store.conditions[1]) != 1 {
		t.Error("row should be written despite publish failure")
	}
}
