package domain

// Condition is the inferred operational state of a machine.
type Condition string

const (
	ConditionOff        Condition = "MachineOFF"
	ConditionHeatingUp  Condition = "HeatingUp"
	ConditionIddle      Condition = "Iddle"
	ConditionProduction Condition = "MachineProduction"
	ConditionUnknown    Condition = "UNKNOWN"
)

// CountsForDaily reports whether time and energy spent in this condition
// are attributed in the daily roll-up. MachineOFF and UNKNOWN are excluded.
func (c Condition) CountsForDaily() bool {
	switch c {
	case ConditionHeatingUp, ConditionIddle, ConditionProduction:
		return true
	}
	return false
}

// ClassifyCondition derives a machine condition from an aggregated reading
// and the dwell predicate result ("temperature >= 300 continuously for
// >= 1 h"). Missing values are treated as 0. The function is pure.
func ClassifyCondition(r MachineReading, hot bool) Condition {
	on := deref(r.OnContact) != 0
	alarm := deref(r.AlarmContact) != 0
	capstan := deref(r.CapstanSpeed) != 0

	switch {
	case !on:
		return ConditionOff
	case !hot:
		return ConditionHeatingUp
	case !alarm:
		return ConditionIddle
	case capstan:
		return ConditionProduction
	default:
		return ConditionIddle
	}
}
