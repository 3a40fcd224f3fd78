package modbus

import (
	"context"
	"fmt"
	"time"

	"github.com/nexus-edge/condition-worker/internal/domain"
	"github.com/nexus-edge/condition-worker/internal/metrics"
	"github.com/rs/zerolog"
)

// SensorReader reads all saved parameters of one sensor task from a
// borrowed gateway client. It mutates the client's unit identifier, so the
// caller must serialize sensor reads on a given client.
type SensorReader struct {
	logger     zerolog.Logger
	metrics    *metrics.Registry
	maxRetries int
	retryDelay time.Duration
	now        func() time.Time
}

// NewSensorReader creates a reader with the default retry policy:
// 3 attempts with linear backoff (attempt x 1 s).
func NewSensorReader(logger zerolog.Logger, metricsReg *metrics.Registry) *SensorReader {
	return &SensorReader{
		logger:     logger.With().Str("component", "sensor-reader").Logger(),
		metrics:    metricsReg,
		maxRetries: 3,
		retryDelay: 1 * time.Second,
		now:        time.Now,
	}
}

// ReadSensor performs a single pass over the task's parameters. Individual
// parameter failures are swallowed and logged; the reading is successful if
// at least one parameter value was collected.
func (r *SensorReader) ReadSensor(client *Client, task domain.SensorTask) domain.SensorReading {
	reading := domain.SensorReading{
		MachineID:   task.MachineID,
		MachineName: task.MachineName,
		Role:        task.Role,
		Timestamp:   r.now(),
		Values:      make(map[string]float64),
	}

	client.SetSlave(task.SlaveID)

	var lastErr error
	for _, param := range task.Params {
		if !param.Save {
			continue
		}

		data, err := client.ReadHoldingRegisters(param.Address, param.Length)
		if err != nil {
			lastErr = err
			r.logParamFailure(task, param.Name, err)
			continue
		}

		value, err := ParseRegisters(data, param.Encoding)
		if err != nil {
			lastErr = err
			r.logParamFailure(task, param.Name, err)
			continue
		}

		reading.Values[param.Name] = value * param.Formula
	}

	if len(reading.Values) > 0 {
		reading.Success = true
	} else if lastErr != nil {
		reading.Err = lastErr
	} else {
		reading.Err = fmt.Errorf("%w: no saved parameters", domain.ErrSensorFailed)
	}

	return reading
}

// ReadSensorWithRetry retries the whole sensor read with linear backoff.
// On exhaustion it returns a failed reading with Err populated; it never
// returns an error to the caller.
func (r *SensorReader) ReadSensorWithRetry(ctx context.Context, client *Client, task domain.SensorTask) domain.SensorReading {
	var reading domain.SensorReading

	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		if attempt > 1 {
			if r.metrics != nil {
				r.metrics.RecordSensorRetry()
			}
			select {
			case <-ctx.Done():
				reading.Err = ctx.Err()
				return reading
			case <-time.After(time.Duration(attempt) * r.retryDelay):
			}
		}

		reading = r.ReadSensor(client, task)
		if reading.Success {
			return reading
		}

		r.logger.Debug().
			Int64("machine_id", task.MachineID).
			Str("role", string(task.Role)).
			Int("attempt", attempt).
			Err(reading.Err).
			Msg("Sensor read attempt failed")
	}

	if r.metrics != nil {
		r.metrics.RecordSensorReadError(task.MachineName, string(task.Role))
	}
	r.logger.Warn().
		Int64("machine_id", task.MachineID).
		Str("machine", task.MachineName).
		Str("role", string(task.Role)).
		Err(reading.Err).
		Msg("Sensor read exhausted retries")

	reading.Err = fmt.Errorf("%w: %v", domain.ErrSensorFailed, reading.Err)
	return reading
}

func (r *SensorReader) logParamFailure(task domain.SensorTask, param string, err error) {
	if r.metrics != nil {
		r.metrics.RecordParameterError()
	}
	r.logger.Debug().
		Int64("machine_id", task.MachineID).
		Str("role", string(task.Role)).
		Str("param", param).
		Err(err).
		Msg("Parameter read failed")
}
