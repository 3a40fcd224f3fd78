package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// WIB is the worker's fixed local timezone (UTC+7). All wall-clock
// arithmetic (cron schedules, daily windows) is evaluated in WIB;
// timestamps are stored as instants.
var WIB = time.FixedZone("WIB", 7*60*60)

// GeneralConfig is the single-row worker configuration kept in persistence.
type GeneralConfig struct {
	LogFreqMinutes int
	LicenseKey     string
}

// ConditionRecord is one row of the append-only condition-transition log.
// The most recent record for a machine represents its active condition;
// the Last* fields mirror the immediately preceding record.
type ConditionRecord struct {
	ID               int64
	MachineID        int64
	CurrentTimestamp time.Time
	CurrentCondition Condition
	CurrentKwh       decimal.Decimal
	LastTimestamp    *time.Time
	LastCondition    *Condition
	LastKwh          *decimal.Decimal
}

// LogHistoryRecord is one per-machine snapshot of raw sensor values.
// Contact values are rounded to integers; analog values are stored as
// fixed-point decimals. Nil means the value was not collected that cycle.
type LogHistoryRecord struct {
	MachineID    int64
	Timestamp    time.Time
	OnContact    *int
	AlarmContact *int
	Temperature  *decimal.Decimal
	Kwh          *decimal.Decimal
	CapstanSpeed *decimal.Decimal
}

// DailySummary is the per-machine, per-local-day roll-up of run hours and
// energy. Date is midnight UTC of the WIB calendar day. One row per
// (machine, date), rewritten on re-run.
type DailySummary struct {
	MachineID       int64
	Date            time.Time
	TotalHours      float64
	TotalKwh        decimal.Decimal
	HeatingUpHours  float64
	HeatingUpKwh    decimal.Decimal
	IddleHours      float64
	IddleKwh        decimal.Decimal
	ProductionHours float64
	ProductionKwh   decimal.Decimal
	IsOneBlock      bool
}

// ConditionEvent is the payload published when a machine's condition
// changes.
type ConditionEvent struct {
	MachineID     int64      `json:"machine_id"`
	MachineName   string     `json:"machine_name"`
	Condition     Condition  `json:"condition"`
	Kwh           string     `json:"kwh"`
	Timestamp     time.Time  `json:"timestamp"`
	LastCondition *Condition `json:"last_condition,omitempty"`
	LastTimestamp *time.Time `json:"last_timestamp,omitempty"`
}
