package cron

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Job runs a function on a schedule until stopped. A tick that is already
// in flight when Stop is called is allowed to complete.
type Job struct {
	schedule *Schedule
	loc      *time.Location
	fn       func()
	logger   zerolog.Logger
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewJob parses expr and starts the job immediately. The schedule is
// evaluated in loc.
func NewJob(expr string, loc *time.Location, fn func(), logger zerolog.Logger) (*Job, error) {
	schedule, err := Parse(expr)
	if err != nil {
		return nil, err
	}

	j := &Job{
		schedule: schedule,
		loc:      loc,
		fn:       fn,
		logger:   logger.With().Str("component", "cron").Str("expr", expr).Logger(),
		stop:     make(chan struct{}),
	}

	j.wg.Add(1)
	go j.run()

	return j, nil
}

func (j *Job) run() {
	defer j.wg.Done()

	for {
		now := time.Now().In(j.loc)
		next := j.schedule.Next(now)
		timer := time.NewTimer(next.Sub(now))

		select {
		case <-j.stop:
			timer.Stop()
			return
		case <-timer.C:
			j.logger.Debug().Time("fired_at", next).Msg("Cron tick")
			j.fn()
		}
	}
}

// Stop halts the job and waits for an in-flight tick to finish.
func (j *Job) Stop() {
	j.stopOnce.Do(func() {
		close(j.stop)
	})
	j.wg.Wait()
}
