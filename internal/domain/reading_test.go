package domain

import (
	"testing"
	"time"
)

func TestAggregateReadings(t *testing.T) {
	t0 := time.Date(2026, 8, 20, 10, 0, 0, 0, WIB)
	t1 := t0.Add(time.Second)

	readings := []SensorReading{
		{MachineID: 1, MachineName: "EX-01", Role: RolePowerMeter, Timestamp: t0, Success: true,
			Values: map[string]float64{ValueKwh: 123.5}},
		{MachineID: 1, MachineName: "EX-01", Role: RoleTemperature, Timestamp: t1, Success: true,
			Values: map[string]float64{ValueTemperature: 315}},
		{MachineID: 1, MachineName: "EX-01", Role: RoleOnContact, Timestamp: t1, Success: true,
			Values: map[string]float64{ValueOnContact: 1}},
		{MachineID: 1, MachineName: "EX-01", Role: RoleAlarmContact, Timestamp: t1, Success: false,
			Values: nil},
		{MachineID: 1, MachineName: "EX-01", Role: RoleCapstanSpeed, Timestamp: t1, Success: true,
			Values: map[string]float64{ValueCapstanTypo: 42}},
		{MachineID: 2, MachineName: "EX-02", Role: RolePowerMeter, Timestamp: t1, Success: true,
			Values: map[string]float64{ValueKwh: 7}},
	}

	got := AggregateReadings(readings)
	if len(got) != 2 {
		t.Fatalf("expected 2 machines, got %d", len(got))
	}

	m1 := got[0]
	if m1.MachineID != 1 {
		t.Fatalf("output order should follow first appearance, got machine %d first", m1.MachineID)
	}
	if !m1.Timestamp.Equal(t0) {
		t.Errorf("machine timestamp should be first successful reading's, got %v", m1.Timestamp)
	}
	if m1.Kwh == nil || *m1.Kwh != 123.5 {
		t.Errorf("kwh not aggregated: %v", m1.Kwh)
	}
	if m1.Temperature == nil || *m1.Temperature != 315 {
		t.Errorf("temperature not aggregated: %v", m1.Temperature)
	}
	if m1.AlarmContact != nil {
		t.Errorf("failed reading should contribute nothing, got alarm=%v", *m1.AlarmContact)
	}
	if m1.CapstanSpeed == nil || *m1.CapstanSpeed != 42 {
		t.Errorf("capstand_speed spelling should map to capstan speed: %v", m1.CapstanSpeed)
	}
}

func TestAggregateReadingsSkipsFailedMachines(t *testing.T) {
	readings := []SensorReading{
		{MachineID: 9, Role: RolePowerMeter, Success: false},
		{MachineID: 9, Role: RoleTemperature, Success: false},
	}
	if got := AggregateReadings(readings); len(got) != 0 {
		t.Errorf("machine with no successful readings should be absent, got %d", len(got))
	}
}

func TestMachineReadingSetSpellings(t *testing.T) {
	var r MachineReading
	r.Set(ValueCapstanSpeed, 1)
	if r.CapstanSpeed == nil || *r.CapstanSpeed != 1 {
		t.Error("canonical spelling not set")
	}
	r.Set(ValueCapstanTypo, 2)
	if *r.CapstanSpeed != 2 {
		t.Error("typo spelling should overwrite the same field")
	}
	r.Set("unknown_param", 3)
	if r.Kwh != nil || r.Temperature != nil || r.OnContact != nil || r.AlarmContact != nil {
		t.Error("unknown names must be dropped")
	}
}
