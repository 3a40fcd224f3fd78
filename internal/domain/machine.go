// Package domain contains core business entities for the condition worker.
package domain

import "fmt"

// GatewayEndpoint identifies a Modbus-TCP gateway. Multiple slave devices
// are reachable behind one endpoint.
type GatewayEndpoint struct {
	IP   string
	Port uint16
}

// Key returns the canonical "ip:port" identity of the endpoint.
func (e GatewayEndpoint) Key() string {
	return fmt.Sprintf("%s:%d", e.IP, e.Port)
}

// Address returns the dial address for the endpoint.
func (e GatewayEndpoint) Address() string {
	return e.Key()
}

// Encoding declares how a parsed register buffer is interpreted as a scalar.
type Encoding string

// Supported register encodings. The buffer is always 2 x register count
// bytes, with each 16-bit register in big-endian order on the wire.
const (
	EncodingFloat32BE Encoding = "float32-be"
	EncodingFloat32LE Encoding = "float32-le"
	EncodingInt16BE   Encoding = "int16-be"
	EncodingInt16LE   Encoding = "int16-le"
	EncodingUInt16BE  Encoding = "uint16-be"
	EncodingUInt16LE  Encoding = "uint16-le"
	EncodingInt32BE   Encoding = "int32-be"
	EncodingInt32LE   Encoding = "int32-le"
	EncodingUInt32BE  Encoding = "uint32-be"
	EncodingUInt32LE  Encoding = "uint32-le"
)

// ParameterMapping maps one named value onto a holding-register range.
// Formula is a multiplicative scale applied after parsing. Length is in
// 16-bit registers.
type ParameterMapping struct {
	Name     string
	Save     bool
	Address  uint16
	Length   uint16
	Formula  float64
	Encoding Encoding
}

// SensorRole names the function of a sensor on a machine.
type SensorRole string

const (
	RolePowerMeter   SensorRole = "power_meter"
	RoleTemperature  SensorRole = "temperature"
	RoleOnContact    SensorRole = "on_contact"
	RoleAlarmContact SensorRole = "alarm_contact"
	RoleCapstanSpeed SensorRole = "capstan_speed"
)

// RoleOrder is the canonical ordering of sensor roles within a machine.
// Grouping and per-gateway read sequencing follow this order.
var RoleOrder = []SensorRole{
	RolePowerMeter,
	RoleTemperature,
	RoleOnContact,
	RoleAlarmContact,
	RoleCapstanSpeed,
}

// Sensor is one Modbus unit addressed through a gateway.
type Sensor struct {
	SlaveID byte
	Gateway GatewayEndpoint
	Params  []ParameterMapping
}

// Machine is one production machine with its five instrumented sensors.
// An enabled machine has all five roles populated.
type Machine struct {
	ID           int64
	Name         string
	Enabled      bool
	PowerMeterID int64
	Sensors      map[SensorRole]Sensor
}

// Validate checks the enabled-machine invariant.
func (m Machine) Validate() error {
	if !m.Enabled {
		return nil
	}
	for _, role := range RoleOrder {
		if _, ok := m.Sensors[role]; !ok {
			return fmt.Errorf("%w: machine %d missing role %s", ErrInvalidMachine, m.ID, role)
		}
	}
	return nil
}

// SensorTask is the per-cycle unit of work: one sensor of one machine.
type SensorTask struct {
	MachineID   int64
	MachineName string
	Role        SensorRole
	SlaveID     byte
	Params      []ParameterMapping
}

// GatewayGroup is the ordered list of sensor tasks behind one endpoint.
// Tasks within a group must be read sequentially because the Modbus client
// holds mutable slave-id state.
type GatewayGroup struct {
	Endpoint GatewayEndpoint
	Tasks    []SensorTask
}
