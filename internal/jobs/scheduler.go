package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler runs the expiry sweep on a fixed interval.
type Scheduler struct {
	cron     *cron.Cron
	sweeper  *Sweeper
	interval time.Duration
	log      zerolog.Logger
}

func NewScheduler(sweeper *Sweeper, interval time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		sweeper:  sweeper,
		interval: interval,
		log:      log,
	}
}

func (s *Scheduler) Start() {
	s.cron.Schedule(cron.Every(s.interval), cron.FuncJob(s.runSweep))
	s.cron.Start()
	s.log.Info().Dur("interval", s.interval).Msg("expiry sweep scheduled")
}

// Stop waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	s.sweeper.Sweep(ctx)
}
