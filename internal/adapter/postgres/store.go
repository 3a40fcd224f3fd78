// Package postgres implements the persistence port on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nexus-edge/condition-worker/internal/domain"
)

// Store is a pgxpool-backed implementation of the service persistence port.
type Store struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewStore connects to the database and verifies the connection.
func NewStore(ctx context.Context, dsn string, logger zerolog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{
		pool:   pool,
		logger: logger.With().Str("component", "postgres").Logger(),
	}, nil
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}

// HealthCheck implements the health.Checker interface.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// ListEnabledMachines loads the enabled fleet with sensors and parameter
// mappings attached. Three queries instead of one wide join keeps row
// shapes simple; the fleet is small.
func (s *Store) ListEnabledMachines(ctx context.Context) ([]domain.Machine, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, enabled, power_meter_id
		FROM machines
		WHERE enabled
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query machines: %w", err)
	}
	defer rows.Close()

	var machines []domain.Machine
	index := make(map[int64]int)
	for rows.Next() {
		var m domain.Machine
		if err := rows.Scan(&m.ID, &m.Name, &m.Enabled, &m.PowerMeterID); err != nil {
			return nil, fmt.Errorf("scan machine: %w", err)
		}
		m.Sensors = make(map[domain.SensorRole]domain.Sensor)
		index[m.ID] = len(machines)
		machines = append(machines, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate machines: %w", err)
	}
	if len(machines) == 0 {
		return nil, nil
	}

	sensorRows, err := s.pool.Query(ctx, `
		SELECT s.id, s.machine_id, s.role, s.slave_id, s.gateway_ip, s.gateway_port
		FROM sensors s
		JOIN machines m ON m.id = s.machine_id
		WHERE m.enabled
		ORDER BY s.machine_id, s.id`)
	if err != nil {
		return nil, fmt.Errorf("query sensors: %w", err)
	}
	defer sensorRows.Close()

	sensorMachine := make(map[int64]struct {
		machineID int64
		role      domain.SensorRole
	})
	for sensorRows.Next() {
		var (
			sensorID  int64
			machineID int64
			role      string
			slaveID   int16
			ip        string
			port      int32
		)
		if err := sensorRows.Scan(&sensorID, &machineID, &role, &slaveID, &ip, &port); err != nil {
			return nil, fmt.Errorf("scan sensor: %w", err)
		}
		i, ok := index[machineID]
		if !ok {
			continue
		}
		machines[i].Sensors[domain.SensorRole(role)] = domain.Sensor{
			SlaveID: byte(slaveID),
			Gateway: domain.GatewayEndpoint{IP: ip, Port: uint16(port)},
		}
		sensorMachine[sensorID] = struct {
			machineID int64
			role      domain.SensorRole
		}{machineID, domain.SensorRole(role)}
	}
	if err := sensorRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sensors: %w", err)
	}

	paramRows, err := s.pool.Query(ctx, `
		SELECT p.sensor_id, p.name, p.save, p.address, p.length, p.formula, p.encoding
		FROM sensor_parameters p
		JOIN sensors s ON s.id = p.sensor_id
		JOIN machines m ON m.id = s.machine_id
		WHERE m.enabled
		ORDER BY p.sensor_id, p.id`)
	if err != nil {
		return nil, fmt.Errorf("query sensor parameters: %w", err)
	}
	defer paramRows.Close()

	for paramRows.Next() {
		var (
			sensorID int64
			param    domain.ParameterMapping
			address  int32
			length   int32
			encoding string
		)
		if err := paramRows.Scan(&sensorID, &param.Name, &param.Save, &address, &length, &param.Formula, &encoding); err != nil {
			return nil, fmt.Errorf("scan sensor parameter: %w", err)
		}
		param.Address = uint16(address)
		param.Length = uint16(length)
		param.Encoding = domain.Encoding(encoding)

		owner, ok := sensorMachine[sensorID]
		if !ok {
			continue
		}
		i := index[owner.machineID]
		sensor := machines[i].Sensors[owner.role]
		sensor.Params = append(sensor.Params, param)
		machines[i].Sensors[owner.role] = sensor
	}
	if err := paramRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sensor parameters: %w", err)
	}

	return machines, nil
}

// GetGeneralConfig reads the single worker configuration row.
func (s *Store) GetGeneralConfig(ctx context.Context) (domain.GeneralConfig, error) {
	var cfg domain.GeneralConfig
	err := s.pool.QueryRow(ctx, `
		SELECT log_freq_minutes, license_key
		FROM general_config
		ORDER BY id
		LIMIT 1`).Scan(&cfg.LogFreqMinutes, &cfg.LicenseKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.GeneralConfig{}, domain.ErrConfigMissing
	}
	if err != nil {
		return domain.GeneralConfig{}, fmt.Errorf("query general config: %w", err)
	}
	return cfg, nil
}

// InsertConditionRecord appends one row to the condition-transition log.
func (s *Store) InsertConditionRecord(ctx context.Context, rec domain.ConditionRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO condition_records
			(machine_id, observed_at, condition, kwh, prev_observed_at, prev_condition, prev_kwh)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.MachineID,
		rec.CurrentTimestamp,
		string(rec.CurrentCondition),
		numericFromDecimal(rec.CurrentKwh),
		rec.LastTimestamp,
		conditionText(rec.LastCondition),
		numericFromDecimalPtr(rec.LastKwh),
	)
	if err != nil {
		return fmt.Errorf("insert condition record: %w", err)
	}
	return nil
}

// FindLatestCondition returns the most recent condition record for the
// machine, or nil when it has none.
func (s *Store) FindLatestCondition(ctx context.Context, machineID int64) (*domain.ConditionRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, machine_id, observed_at, condition, kwh, prev_observed_at, prev_condition, prev_kwh
		FROM condition_records
		WHERE machine_id = $1
		ORDER BY observed_at DESC, id DESC
		LIMIT 1`, machineID)

	rec, err := scanConditionRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest condition: %w", err)
	}
	return &rec, nil
}

// FindConditionsInRange returns the machine's condition records in
// [from, to), ordered ascending.
func (s *Store) FindConditionsInRange(ctx context.Context, machineID int64, from, to time.Time) ([]domain.ConditionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, machine_id, observed_at, condition, kwh, prev_observed_at, prev_condition, prev_kwh
		FROM condition_records
		WHERE machine_id = $1 AND observed_at >= $2 AND observed_at < $3
		ORDER BY observed_at ASC, id ASC`, machineID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query conditions in range: %w", err)
	}
	defer rows.Close()

	var recs []domain.ConditionRecord
	for rows.Next() {
		rec, err := scanConditionRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan condition record: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate condition records: %w", err)
	}
	return recs, nil
}

// InsertLogHistoryBatch bulk-inserts snapshot rows with the COPY protocol.
func (s *Store) InsertLogHistoryBatch(ctx context.Context, recs []domain.LogHistoryRecord) error {
	if len(recs) == 0 {
		return nil
	}

	copied, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"log_history"},
		[]string{"machine_id", "observed_at", "on_contact", "alarm_contact", "temperature", "kwh", "capstan_speed"},
		pgx.CopyFromSlice(len(recs), func(i int) ([]any, error) {
			r := recs[i]
			return []any{
				r.MachineID,
				r.Timestamp,
				r.OnContact,
				r.AlarmContact,
				numericFromDecimalPtr(r.Temperature),
				numericFromDecimalPtr(r.Kwh),
				numericFromDecimalPtr(r.CapstanSpeed),
			}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy log history: %w", err)
	}
	if copied != int64(len(recs)) {
		return fmt.Errorf("copy log history: wrote %d of %d rows", copied, len(recs))
	}
	return nil
}

// FindLogHistoryInRange returns the machine's snapshot rows in [from, to),
// ordered ascending.
func (s *Store) FindLogHistoryInRange(ctx context.Context, machineID int64, from, to time.Time) ([]domain.LogHistoryRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT machine_id, observed_at, on_contact, alarm_contact, temperature, kwh, capstan_speed
		FROM log_history
		WHERE machine_id = $1 AND observed_at >= $2 AND observed_at < $3
		ORDER BY observed_at ASC`, machineID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query log history: %w", err)
	}
	defer rows.Close()

	var recs []domain.LogHistoryRecord
	for rows.Next() {
		var (
			rec          domain.LogHistoryRecord
			temperature  pgtype.Numeric
			kwh          pgtype.Numeric
			capstanSpeed pgtype.Numeric
		)
		if err := rows.Scan(&rec.MachineID, &rec.Timestamp, &rec.OnContact, &rec.AlarmContact,
			&temperature, &kwh, &capstanSpeed); err != nil {
			return nil, fmt.Errorf("scan log history: %w", err)
		}
		rec.Temperature = decimalFromNumeric(temperature)
		rec.Kwh = decimalFromNumeric(kwh)
		rec.CapstanSpeed = decimalFromNumeric(capstanSpeed)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log history: %w", err)
	}
	return recs, nil
}

// UpsertDailySummary rewrites the (machine, date) roll-up row.
func (s *Store) UpsertDailySummary(ctx context.Context, summary domain.DailySummary) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO daily_summaries
			(machine_id, summary_date, total_hours, total_kwh,
			 heating_up_hours, heating_up_kwh, iddle_hours, iddle_kwh,
			 production_hours, production_kwh, is_one_block)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (machine_id, summary_date) DO UPDATE SET
			total_hours = EXCLUDED.total_hours,
			total_kwh = EXCLUDED.total_kwh,
			heating_up_hours = EXCLUDED.heating_up_hours,
			heating_up_kwh = EXCLUDED.heating_up_kwh,
			iddle_hours = EXCLUDED.iddle_hours,
			iddle_kwh = EXCLUDED.iddle_kwh,
			production_hours = EXCLUDED.production_hours,
			production_kwh = EXCLUDED.production_kwh,
			is_one_block = EXCLUDED.is_one_block`,
		summary.MachineID,
		summary.Date,
		summary.TotalHours,
		numericFromDecimal(summary.TotalKwh),
		summary.HeatingUpHours,
		numericFromDecimal(summary.HeatingUpKwh),
		summary.IddleHours,
		numericFromDecimal(summary.IddleKwh),
		summary.ProductionHours,
		numericFromDecimal(summary.ProductionKwh),
		summary.IsOneBlock,
	)
	if err != nil {
		return fmt.Errorf("upsert daily summary: %w", err)
	}
	return nil
}

// FindDailySummary returns the roll-up row for one machine and day, or
// ErrNotFound.
func (s *Store) FindDailySummary(ctx context.Context, machineID int64, date time.Time) (*domain.DailySummary, error) {
	var (
		summary       domain.DailySummary
		totalKwh      pgtype.Numeric
		heatingUpKwh  pgtype.Numeric
		iddleKwh      pgtype.Numeric
		productionKwh pgtype.Numeric
	)
	err := s.pool.QueryRow(ctx, `
		SELECT machine_id, summary_date, total_hours, total_kwh,
		       heating_up_hours, heating_up_kwh, iddle_hours, iddle_kwh,
		       production_hours, production_kwh, is_one_block
		FROM daily_summaries
		WHERE machine_id = $1 AND summary_date = $2`, machineID, date).Scan(
		&summary.MachineID,
		&summary.Date,
		&summary.TotalHours,
		&totalKwh,
		&summary.HeatingUpHours,
		&heatingUpKwh,
		&summary.IddleHours,
		&iddleKwh,
		&summary.ProductionHours,
		&productionKwh,
		&summary.IsOneBlock,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: daily summary for machine %d", domain.ErrNotFound, machineID)
	}
	if err != nil {
		return nil, fmt.Errorf("query daily summary: %w", err)
	}

	summary.TotalKwh = decimalValueFromNumeric(totalKwh)
	summary.HeatingUpKwh = decimalValueFromNumeric(heatingUpKwh)
	summary.IddleKwh = decimalValueFromNumeric(iddleKwh)
	summary.ProductionKwh = decimalValueFromNumeric(productionKwh)
	return &summary, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConditionRecord(row rowScanner) (domain.ConditionRecord, error) {
	var (
		rec      domain.ConditionRecord
		cond     string
		kwh      pgtype.Numeric
		prevCond *string
		prevKwh  pgtype.Numeric
	)
	err := row.Scan(&rec.ID, &rec.MachineID, &rec.CurrentTimestamp, &cond, &kwh,
		&rec.LastTimestamp, &prevCond, &prevKwh)
	if err != nil {
		return domain.ConditionRecord{}, err
	}

	rec.CurrentCondition = domain.Condition(cond)
	rec.CurrentKwh = decimalValueFromNumeric(kwh)
	if prevCond != nil {
		c := domain.Condition(*prevCond)
		rec.LastCondition = &c
	}
	rec.LastKwh = decimalFromNumeric(prevKwh)
	return rec, nil
}

func conditionText(c *domain.Condition) *string {
	if c == nil {
		return nil
	}
	s := string(*c)
	return &s
}

func numericFromDecimal(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func numericFromDecimalPtr(d *decimal.Decimal) pgtype.Numeric {
	if d == nil {
		return pgtype.Numeric{}
	}
	return numericFromDecimal(*d)
}

func decimalFromNumeric(n pgtype.Numeric) *decimal.Decimal {
	if !n.Valid || n.NaN || n.Int == nil {
		return nil
	}
	d := decimal.NewFromBigInt(n.Int, n.Exp)
	return &d
}

func decimalValueFromNumeric(n pgtype.Numeric) decimal.Decimal {
	if d := decimalFromNumeric(n); d != nil {
		return *d
	}
	return decimal.Zero
}
