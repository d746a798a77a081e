package config

import (
	"fmt"
	"time"

	"modbussim/internal/dynamics"
	"modbussim/internal/scheduler"
	"modbussim/internal/store"
)

// Device is the runtime form of a validated Config: a populated register
// store, the unit identifier it answers to, and the schedule of tick jobs
// driving its non-static points.
type Device struct {
	Store  *store.Store
	UnitID byte
	Jobs   []scheduler.Job
}

// Build translates a validated Config into a Device. It assumes cfg has
// already passed Load's validation — Build itself does not re-validate.
func Build(cfg *Config) (*Device, error) {
	s := store.New()
	var jobs []scheduler.Job

	seed := time.Now().UnixNano()
	if cfg.Global.Seed != nil {
		seed = *cfg.Global.Seed
	}

	tables := []struct {
		table  store.Table
		points []PointConfig
		isBit  bool
	}{
		{store.Coils, cfg.Device.Coils, true},
		{store.DiscreteInputs, cfg.Device.DiscreteInputs, true},
		{store.HoldingRegisters, cfg.Device.HoldingRegisters, false},
		{store.InputRegisters, cfg.Device.InputRegisters, false},
	}

	nextSeed := seed
	for _, tbl := range tables {
		for _, pc := range tbl.points {
			spec, err := toDynamicsSpec(pc, tbl.isBit)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", tbl.table, pc.Address, err)
			}
			if err := spec.Compile(); err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", tbl.table, pc.Address, err)
			}

			if tbl.isBit {
				s.Define(tbl.table, pc.Address, dynamics.ToBit(spec.Initial), 0)
			} else {
				s.Define(tbl.table, pc.Address, false, dynamics.ToWord(spec.Initial))
			}

			if spec.Kind == dynamics.Static {
				continue
			}

			periodMs := cfg.Global.UpdateMs
			if pc.UpdateMs != nil {
				periodMs = *pc.UpdateMs
			}

			nextSeed++
			jobs = append(jobs, scheduler.Job{
				Name:    fmt.Sprintf("%s[%d]", tbl.table, pc.Address),
				Table:   tbl.table,
				Address: pc.Address,
				Spec:    spec,
				Period:  time.Duration(periodMs) * time.Millisecond,
				Seed:    nextSeed,
			})
		}
	}

	return &Device{
		Store:  s,
		UnitID: byte(cfg.Device.UnitID),
		Jobs:   jobs,
	}, nil
}
