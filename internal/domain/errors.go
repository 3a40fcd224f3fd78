package domain

import "errors"

// Configuration errors.
var (
	ErrInvalidMachine = errors.New("invalid machine configuration")
	ErrConfigMissing  = errors.New("general configuration row is missing")
	ErrNoMachines     = errors.New("no enabled machines configured")
)

// Gateway and Modbus errors.
var (
	ErrGatewayUnreachable = errors.New("gateway unreachable")
	ErrConnectionClosed   = errors.New("connection closed")
	ErrPoolClosed         = errors.New("gateway pool is closed")
	ErrModbusTimeout      = errors.New("modbus request timed out")
	ErrReadFailed         = errors.New("read operation failed")
	ErrSensorFailed       = errors.New("sensor read exhausted retries")
)

// Parser errors.
var (
	ErrUnsupportedEncoding = errors.New("unsupported register encoding")
	ErrInvalidDataLength   = errors.New("invalid data length")
)

// License errors.
var (
	ErrLicenseInvalid      = errors.New("license invalid")
	ErrLicenseMalformed    = errors.New("license blob malformed")
	ErrMachineLimit        = errors.New("enabled machine count exceeds license")
	ErrFingerprintMismatch = errors.New("server fingerprint mismatch")
)

// Persistence and service errors.
var (
	ErrPersistence    = errors.New("persistence operation failed")
	ErrServiceStopped = errors.New("service has been stopped")
	ErrNotFound       = errors.New("record not found")
)

// Event publishing errors.
var (
	ErrEventNotConnected = errors.New("event publisher not connected")
	ErrEventPublish      = errors.New("event publish failed")
)
