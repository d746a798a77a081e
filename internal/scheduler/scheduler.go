// Package scheduler implements the tick scheduler (C3): one independent
// timer loop per non-static point, evaluating its dynamics and
// committing the result to the register store on each due tick.
package scheduler

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"modbussim/internal/dynamics"
	"modbussim/internal/store"
)

// Job is one point's schedule: which table/address it drives, its
// dynamics spec, its tick period, and the seed for its private PRNG.
// A point's dynamics state (RNG, compiled script AST) lives entirely
// inside the goroutine that owns its Job — it is never shared.
type Job struct {
	Name   string
	Table  store.Table
	Address uint16
	Spec   *dynamics.Spec
	Period time.Duration
	Seed   int64
}

// Scheduler runs one goroutine per Job against a shared Store.
type Scheduler struct {
	store  *store.Store
	jobs   []Job
	logger *logrus.Logger
	logValueUpdates bool

	start time.Time
}

// New constructs a Scheduler. Jobs for points with Kind == dynamics.Static
// should be excluded by the caller — static points never need a timer.
func New(s *store.Store, jobs []Job, logValueUpdates bool, logger *logrus.Logger) *Scheduler {
	return &Scheduler{store: s, jobs: jobs, logger: logger, logValueUpdates: logValueUpdates}
}

// Run starts every job's tick loop and blocks until ctx is canceled, then
// waits for all tick goroutines to return from their current suspension
// point before returning. The single monotonic clock origin every job's
// t_seconds_since_start is measured against is captured here, once.
func (s *Scheduler) Run(ctx context.Context) {
	s.start = time.Now()

	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			s.runJob(ctx, job)
		}(job)
	}

	<-ctx.Done()
	wg.Wait()
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	rng := rand.New(rand.NewSource(job.Seed))
	next := s.start.Add(job.Period)
	lastFire := s.start
	behindStreak := 0

	for {
		sleep := time.Until(next)
		if sleep > 0 {
			timer := time.NewTimer(sleep)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		} else {
			select {
			case <-ctx.Done():
				return
			default:
			}
		}

		now := time.Now()
		t := now.Sub(s.start).Seconds()
		dt := now.Sub(lastFire).Seconds()
		s.fireTick(job, rng, t, dt)
		lastFire = now

		next = next.Add(job.Period)
		if now.Sub(next) > job.Period {
			behindStreak++
			if behindStreak == 1 || behindStreak%10 == 0 {
				s.logger.WithFields(logrus.Fields{
					"point":  job.Name,
					"period": job.Period,
				}).Warn("tick scheduler fell behind by more than one period, skipping backlog")
			}
			next = now.Add(job.Period)
		} else {
			behindStreak = 0
		}
	}
}

func (s *Scheduler) fireTick(job Job, rng *rand.Rand, t, dt float64) {
	prior, ok := s.readCurrent(job.Table, job.Address)
	if !ok {
		return
	}

	next := dynamics.Evaluate(job.Spec, prior, t, dt, rng)

	var err error
	if job.Table == store.Coils || job.Table == store.DiscreteInputs {
		bit := dynamics.ToBit(next)
		err = s.store.InternalSet(job.Table, job.Address, bit, 0)
	} else {
		word := dynamics.ToWord(next)
		err = s.store.InternalSet(job.Table, job.Address, false, word)
	}
	if err != nil {
		s.logger.WithFields(logrus.Fields{"point": job.Name, "error": err}).Warn("tick commit failed")
		return
	}

	if s.logValueUpdates {
		s.logger.WithFields(logrus.Fields{
			"point": job.Name,
			"table": job.Table.String(),
			"value": next,
		}).Debug("tick updated point")
	}
}

func (s *Scheduler) readCurrent(table store.Table, address uint16) (float64, bool) {
	if table == store.Coils || table == store.DiscreteInputs {
		bits, err := s.store.ReadBits(table, address, 1)
		if err != nil {
			return 0, false
		}
		if bits[0] {
			return 1, true
		}
		return 0, true
	}
	words, err := s.store.ReadWords(table, address, 1)
	if err != nil {
		return 0, false
	}
	return float64(words[0]), true
}
