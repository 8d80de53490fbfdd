package protect

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ruteo-noc/ruteo/internal/state"
)

// Sweeper periodically re-derives every camera's ban state from the incident
// table and repairs drift. Drift should never happen when all mutations go
// through the engine, but a restored backup or a manual row edit can break
// the invariant, and the sweep makes the repair visible in the logs.
type Sweeper struct {
	repo *state.TopologyRepo
	cron *cron.Cron
	spec string
}

// NewSweeper creates a sweeper on the given cron spec, e.g. "@every 15m".
func NewSweeper(repo *state.TopologyRepo, spec string) *Sweeper {
	return &Sweeper{
		repo: repo,
		cron: cron.New(),
		spec: spec,
	}
}

// Start registers and starts the scheduled sweep.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.spec, func() {
		if _, err := s.SweepOnce(); err != nil {
			log.Printf("[protect] ban consistency sweep failed: %v", err)
		}
	}); err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("[protect] ban consistency sweeper started (%s)", s.spec)
	return nil
}

// Stop stops the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// SweepOnce runs a single repair pass.
func (s *Sweeper) SweepOnce() (state.BanRepairResult, error) {
	var result state.BanRepairResult
	err := s.repo.WithTx(func(tx *state.Tx) error {
		var err error
		result, err = tx.RepairBanConsistency(time.Now().UnixNano())
		return err
	})
	if err != nil {
		return state.BanRepairResult{}, err
	}
	if result.ReBanned > 0 || result.Unbanned > 0 {
		log.Printf("[protect] ban consistency repaired: %d re-banned, %d unbanned",
			result.ReBanned, result.Unbanned)
	}
	return result, nil
}
