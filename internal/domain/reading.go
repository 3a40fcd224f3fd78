package domain

import "time"

// Reading value keys. "capstand_speed" is a data-entry typo that exists in
// deployed parameter mappings; it is accepted on read and normalized to
// "capstan_speed" everywhere else.
const (
	ValueKwh          = "kwh"
	ValueTemperature  = "temperature"
	ValueOnContact    = "on_contact"
	ValueAlarmContact = "alarm_contact"
	ValueCapstanSpeed = "capstan_speed"
	ValueCapstanTypo  = "capstand_speed"
)

// SensorReading is the outcome of reading one sensor during one cycle.
type SensorReading struct {
	MachineID   int64
	MachineName string
	Role        SensorRole
	Timestamp   time.Time
	Values      map[string]float64
	Success     bool
	Err         error
}

// MachineReading aggregates the five sensor readings of one machine at a
// single cycle. Fields are nil when the corresponding value was not
// collected.
type MachineReading struct {
	MachineID    int64
	MachineName  string
	Timestamp    time.Time
	Kwh          *float64
	Temperature  *float64
	OnContact    *float64
	AlarmContact *float64
	CapstanSpeed *float64
}

// Set stores a named value on the reading. Later writes win on key
// collision. Unknown names are dropped.
func (r *MachineReading) Set(name string, v float64) {
	switch name {
	case ValueKwh:
		r.Kwh = &v
	case ValueTemperature:
		r.Temperature = &v
	case ValueOnContact:
		r.OnContact = &v
	case ValueAlarmContact:
		r.AlarmContact = &v
	case ValueCapstanSpeed, ValueCapstanTypo:
		r.CapstanSpeed = &v
	}
}

// TemperatureOrZero returns the temperature, treating a missing value as 0.
func (r MachineReading) TemperatureOrZero() float64 { return deref(r.Temperature) }

// KwhOrZero returns the cumulative energy reading, 0 when missing.
func (r MachineReading) KwhOrZero() float64 { return deref(r.Kwh) }

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// AggregateReadings merges successful sensor readings into one
// MachineReading per machine. The machine timestamp is the first successful
// reading's timestamp; value maps are unioned with last-writer-wins.
// Output order follows first appearance in the input.
func AggregateReadings(readings []SensorReading) []MachineReading {
	byMachine := make(map[int64]*MachineReading)
	order := make([]int64, 0, len(readings)/len(RoleOrder)+1)

	for _, sr := range readings {
		if !sr.Success {
			continue
		}
		mr, ok := byMachine[sr.MachineID]
		if !ok {
			mr = &MachineReading{
				MachineID:   sr.MachineID,
				MachineName: sr.MachineName,
				Timestamp:   sr.Timestamp,
			}
			byMachine[sr.MachineID] = mr
			order = append(order, sr.MachineID)
		}
		for name, v := range sr.Values {
			mr.Set(name, v)
		}
	}

	out := make([]MachineReading, 0, len(order))
	for _, id := range order {
		out = append(out, *byMachine[id])
	}
	return out
}
