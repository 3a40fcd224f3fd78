package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexus-edge/condition-worker/internal/adapter/modbus"
	"github.com/nexus-edge/condition-worker/internal/cron"
	"github.com/nexus-edge/condition-worker/internal/domain"
	"github.com/nexus-edge/condition-worker/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// SchedulerConfig holds polling scheduler tunables.
type SchedulerConfig struct {
	// DefaultLogFreqMinutes is the snapshot interval used when the stored
	// configuration has none.
	DefaultLogFreqMinutes int

	// RetryDelay is the pause before re-entering the cycle after a license,
	// configuration, or empty-fleet failure.
	RetryDelay time.Duration

	// InterSensorDelay spaces consecutive reads on one gateway so slow
	// serial-backed gateways are not overrun.
	InterSensorDelay time.Duration

	// CycleYield is the sleep between cycles.
	CycleYield time.Duration

	// WatcherInterval is how often the frequency watcher re-reads log_freq.
	WatcherInterval time.Duration

	// DailyCronExpr schedules the daily roll-up, evaluated in local time.
	DailyCronExpr string
}

// DefaultSchedulerConfig returns the production defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		DefaultLogFreqMinutes: 15,
		RetryDelay:            5 * time.Second,
		InterSensorDelay:      50 * time.Millisecond,
		CycleYield:            100 * time.Millisecond,
		WatcherInterval:       60 * time.Second,
		DailyCronExpr:         "0 1 * * *",
	}
}

// PollingScheduler drives the continuous acquisition loop: fan out across
// gateways, sequential reads within a gateway, fan in, classify, record. It
// also owns the snapshot cron, the daily cron, and the frequency watcher.
type PollingScheduler struct {
	config    SchedulerConfig
	store     Store
	pool      *modbus.GatewayPool
	reader    *modbus.SensorReader
	dwell     *DwellTracker
	recorder  *ConditionRecorder
	logWriter *LogHistoryWriter
	license   LicenseChecker
	daily     *DailyCalculator
	metrics   *metrics.Registry
	logger    zerolog.Logger
	loc       *time.Location
	now       func() time.Time

	running atomic.Bool

	mu             sync.Mutex
	logFreq        int
	latestReadings []domain.SensorReading
	snapshotJob    *cron.Job
	dailyJob       *cron.Job
}

// NewPollingScheduler wires the scheduler from its collaborators.
func NewPollingScheduler(
	config SchedulerConfig,
	store Store,
	pool *modbus.GatewayPool,
	reader *modbus.SensorReader,
	dwell *DwellTracker,
	recorder *ConditionRecorder,
	logWriter *LogHistoryWriter,
	license LicenseChecker,
	daily *DailyCalculator,
	metricsReg *metrics.Registry,
	loc *time.Location,
	logger zerolog.Logger,
) *PollingScheduler {
	if config.DefaultLogFreqMinutes <= 0 {
		config.DefaultLogFreqMinutes = 15
	}
	return &PollingScheduler{
		config:    config,
		store:     store,
		pool:      pool,
		reader:    reader,
		dwell:     dwell,
		recorder:  recorder,
		logWriter: logWriter,
		license:   license,
		daily:     daily,
		metrics:   metricsReg,
		logger:    logger.With().Str("component", "polling-scheduler").Logger(),
		loc:       loc,
		now:       time.Now,
	}
}

// Run starts the scheduler and blocks until ctx is cancelled. On return all
// cron jobs are stopped and the gateway pool is closed.
func (s *PollingScheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("scheduler already running")
	}
	defer s.running.Store(false)

	logFreq := s.config.DefaultLogFreqMinutes
	cfg, err := s.store.GetGeneralConfig(ctx)
	switch {
	case err != nil:
		s.logger.Warn().Err(err).Int("log_freq", logFreq).Msg("Configuration unavailable at startup, using default snapshot interval")
	case cfg.LogFreqMinutes > 0:
		logFreq = cfg.LogFreqMinutes
	}

	machines, err := s.store.ListEnabledMachines(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Machine enumeration failed at startup")
	} else {
		if err := s.license.Validate(ctx, cfg.LicenseKey, len(machines)); err != nil {
			s.logger.Warn().Err(err).Msg("License invalid at startup, cycle loop will keep re-checking")
		}
		s.dwell.Warm(ctx, machines)
	}

	if err := s.startSnapshotJob(logFreq); err != nil {
		return fmt.Errorf("snapshot cron: %w", err)
	}
	dailyJob, err := cron.NewJob(s.config.DailyCronExpr, s.loc, s.runDaily, s.logger)
	if err != nil {
		s.stopSnapshotJob()
		return fmt.Errorf("daily cron: %w", err)
	}
	s.mu.Lock()
	s.dailyJob = dailyJob
	s.mu.Unlock()

	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		s.runWatcher(ctx)
	}()

	s.logger.Info().
		Int("machines", len(machines)).
		Int("log_freq_minutes", logFreq).
		Str("daily_cron", s.config.DailyCronExpr).
		Msg("Polling scheduler started")

	for ctx.Err() == nil {
		s.runCycle(ctx)
	}

	s.stopSnapshotJob()
	dailyJob.Stop()
	<-watcherDone

	if err := s.pool.CloseAll(); err != nil {
		s.logger.Warn().Err(err).Msg("Error closing gateway pool")
	}
	s.logger.Info().Msg("Polling scheduler stopped")
	return nil
}

// runCycle executes one acquisition cycle. Failures pause and return; the
// outer loop retries for as long as the context lives.
func (s *PollingScheduler) runCycle(ctx context.Context) {
	started := s.now()

	cfg, err := s.store.GetGeneralConfig(ctx)
	if err != nil {
		s.pause(ctx, "config", err)
		return
	}

	machines, err := s.store.ListEnabledMachines(ctx)
	if err != nil {
		s.pause(ctx, "machines", err)
		return
	}

	if err := s.license.Validate(ctx, cfg.LicenseKey, len(machines)); err != nil {
		s.pause(ctx, "license", err)
		return
	}

	if len(machines) == 0 {
		s.pause(ctx, "no_machines", domain.ErrNoMachines)
		return
	}

	groups := BuildGatewayGroups(machines)
	readings := s.collectReadings(ctx, groups)

	for _, mr := range domain.AggregateReadings(readings) {
		hot := s.dwell.IsHot(ctx, mr.MachineID, mr.TemperatureOrZero())
		condition := domain.ClassifyCondition(mr, hot)
		reading := mr
		err := s.recorder.Record(ctx, mr.MachineID, mr.MachineName, condition,
			decimal.NewFromFloat(mr.KwhOrZero()), mr.Timestamp, &reading, false, false)
		if err != nil {
			s.logger.Error().Err(err).Int64("machine_id", mr.MachineID).Msg("Condition record failed")
		}
	}

	s.setLatestReadings(readings)

	if s.metrics != nil {
		s.metrics.RecordCycle(s.now().Sub(started).Seconds())
		s.metrics.ConnectedGateways.Set(float64(s.pool.Stats().ConnectedGateways))
	}

	sleepCtx(ctx, s.config.CycleYield)
}

// collectReadings fans out one goroutine per gateway group and joins them
// all-settled: a dead gateway yields failed readings for its tasks and never
// cancels its peers.
func (s *PollingScheduler) collectReadings(ctx context.Context, groups []domain.GatewayGroup) []domain.SensorReading {
	var (
		mu  sync.Mutex
		all []domain.SensorReading
		wg  sync.WaitGroup
	)

	for _, group := range groups {
		wg.Add(1)
		go func(g domain.GatewayGroup) {
			defer wg.Done()
			readings := s.readGateway(ctx, g)
			mu.Lock()
			all = append(all, readings...)
			mu.Unlock()
		}(group)
	}
	wg.Wait()

	return all
}

// readGateway reads every task of one group sequentially on the group's
// client. Sequencing is mandatory: the client holds mutable slave-id state.
func (s *PollingScheduler) readGateway(ctx context.Context, g domain.GatewayGroup) []domain.SensorReading {
	out := make([]domain.SensorReading, 0, len(g.Tasks))

	client, err := s.pool.Acquire(ctx, g.Endpoint)
	if err != nil {
		s.logger.Warn().Err(err).Str("gateway", g.Endpoint.Key()).Msg("Gateway unavailable this cycle")
		s.pool.MarkDisconnected(g.Endpoint)
		for _, task := range g.Tasks {
			out = append(out, domain.SensorReading{
				MachineID:   task.MachineID,
				MachineName: task.MachineName,
				Role:        task.Role,
				Timestamp:   s.now(),
				Err:         fmt.Errorf("%w: %v", domain.ErrReadFailed, err),
			})
		}
		return out
	}

	failures := 0
	for i, task := range g.Tasks {
		if i > 0 && !sleepCtx(ctx, s.config.InterSensorDelay) {
			break
		}
		reading := s.reader.ReadSensorWithRetry(ctx, client, task)
		if !reading.Success {
			failures++
		}
		out = append(out, reading)
	}

	if len(g.Tasks) > 0 && failures == len(g.Tasks) {
		s.pool.MarkDisconnected(g.Endpoint)
	}

	return out
}

// runSnapshot is the snapshot cron callback. It bulk-writes log history from
// the last cycle's readings and forces a condition row per machine as a
// heartbeat for daily accounting.
func (s *PollingScheduler) runSnapshot() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if s.metrics != nil {
		s.metrics.SnapshotRuns.Inc()
	}

	readings := s.getLatestReadings()
	if len(readings) == 0 {
		s.logger.Info().Msg("No readings cached yet, skipping snapshot")
		return
	}

	if err := s.logWriter.SaveBatch(ctx, readings); err != nil {
		s.logger.Error().Err(err).Msg("Snapshot log history write failed")
	}

	now := s.now()
	for _, mr := range domain.AggregateReadings(readings) {
		hot := s.dwell.IsHot(ctx, mr.MachineID, mr.TemperatureOrZero())
		condition := domain.ClassifyCondition(mr, hot)
		err := s.recorder.Record(ctx, mr.MachineID, mr.MachineName, condition,
			decimal.NewFromFloat(mr.KwhOrZero()), now, nil, true, true)
		if err != nil {
			s.logger.Error().Err(err).Int64("machine_id", mr.MachineID).Msg("Snapshot condition record failed")
		}
	}
}

// runDaily is the daily cron callback.
func (s *PollingScheduler) runDaily() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := s.daily.Run(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Daily roll-up failed")
	}
}

// runWatcher re-reads log_freq every WatcherInterval and swaps the snapshot
// cron when it changed. Only the snapshot schedule is reconfigurable at
// runtime; the daily cron is fixed.
func (s *PollingScheduler) runWatcher(ctx context.Context) {
	ticker := time.NewTicker(s.config.WatcherInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cfg, err := s.store.GetGeneralConfig(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Frequency watcher config read failed")
			continue
		}
		freq := cfg.LogFreqMinutes
		if freq <= 0 {
			freq = s.config.DefaultLogFreqMinutes
		}

		s.mu.Lock()
		changed := freq != s.logFreq
		s.mu.Unlock()
		if !changed {
			continue
		}

		s.logger.Info().Int("log_freq_minutes", freq).Msg("Snapshot interval changed, rescheduling cron")
		s.stopSnapshotJob()
		if err := s.startSnapshotJob(freq); err != nil {
			s.logger.Error().Err(err).Int("log_freq_minutes", freq).Msg("Snapshot cron reschedule failed")
		}
	}
}

func (s *PollingScheduler) startSnapshotJob(logFreq int) error {
	expr := fmt.Sprintf("*/%d * * * *", logFreq)
	if logFreq >= 60 {
		// Minute intervals cap at 59; anything longer degrades to hourly.
		expr = "0 * * * *"
	}
	job, err := cron.NewJob(expr, s.loc, s.runSnapshot, s.logger)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.snapshotJob = job
	s.logFreq = logFreq
	s.mu.Unlock()
	return nil
}

func (s *PollingScheduler) stopSnapshotJob() {
	s.mu.Lock()
	job := s.snapshotJob
	s.snapshotJob = nil
	s.mu.Unlock()

	if job != nil {
		job.Stop()
	}
}

func (s *PollingScheduler) setLatestReadings(readings []domain.SensorReading) {
	s.mu.Lock()
	s.latestReadings = readings
	s.mu.Unlock()
}

func (s *PollingScheduler) getLatestReadings() []domain.SensorReading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latestReadings
}

// sleepCtx sleeps for d or until ctx is done, reporting whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (s *PollingScheduler) pause(ctx context.Context, reason string, err error) {
	if s.metrics != nil {
		s.metrics.RecordCyclePause(reason)
	}
	s.logger.Warn().Err(err).Str("reason", reason).Dur("pause", s.config.RetryDelay).Msg("Cycle paused")
	sleepCtx(ctx, s.config.RetryDelay)
}
