package config

import (
	"fmt"

	"modbussim/internal/dynamics"
)

// validate enforces the configuration's startup rules: any violation is a
// single fatal error, reported before the simulator starts serving.
func validate(cfg *Config) error {
	if cfg.Global.UpdateMs < 1 {
		return fmt.Errorf("global.update_ms must be >= 1, got %d", cfg.Global.UpdateMs)
	}
	if cfg.TCP == nil && cfg.RTU == nil {
		return fmt.Errorf("at least one of [tcp] or [rtu] must be configured")
	}
	if cfg.TCP != nil && cfg.TCP.Bind == "" {
		return fmt.Errorf("tcp.bind must not be empty")
	}
	if cfg.RTU != nil {
		if cfg.RTU.Device == "" {
			return fmt.Errorf("rtu.device must not be empty")
		}
		if cfg.Device.UnitID < 1 || cfg.Device.UnitID > 247 {
			return fmt.Errorf("device.unit_id must be in 1..247 when rtu is configured, got %d", cfg.Device.UnitID)
		}
	}

	tables := []struct {
		name   string
		points []PointConfig
		isBit  bool
	}{
		{"coils", cfg.Device.Coils, true},
		{"discrete_inputs", cfg.Device.DiscreteInputs, true},
		{"holding_registers", cfg.Device.HoldingRegisters, false},
		{"input_registers", cfg.Device.InputRegisters, false},
	}

	for _, tbl := range tables {
		seen := make(map[uint16]bool, len(tbl.points))
		for _, pc := range tbl.points {
			if seen[pc.Address] {
				return fmt.Errorf("%s: duplicate address %d", tbl.name, pc.Address)
			}
			seen[pc.Address] = true

			if pc.UpdateMs != nil && *pc.UpdateMs < 1 {
				return fmt.Errorf("%s[%d]: update_ms must be >= 1, got %d", tbl.name, pc.Address, *pc.UpdateMs)
			}

			spec, err := toDynamicsSpec(pc, tbl.isBit)
			if err != nil {
				return fmt.Errorf("%s[%d]: %w", tbl.name, pc.Address, err)
			}
			if err := spec.Compile(); err != nil {
				return fmt.Errorf("%s[%d]: %w", tbl.name, pc.Address, err)
			}
			if (spec.Kind == dynamics.Noise || spec.Kind == dynamics.RandomWalk) && !(spec.HasMin && spec.HasMax) {
				return fmt.Errorf("%s[%d]: dynamics kind %q requires both min and max", tbl.name, pc.Address, spec.Kind)
			}
			if spec.HasMin && spec.Initial < spec.Min {
				return fmt.Errorf("%s[%d]: initial value %v below declared min %v", tbl.name, pc.Address, spec.Initial, spec.Min)
			}
			if spec.HasMax && spec.Initial > spec.Max {
				return fmt.Errorf("%s[%d]: initial value %v above declared max %v", tbl.name, pc.Address, spec.Initial, spec.Max)
			}
		}
	}

	return nil
}

// toDynamicsSpec translates one point's TOML configuration into a
// dynamics.Spec, validating the initial value's representation and the
// dynamics kind along the way.
func toDynamicsSpec(pc PointConfig, isBit bool) (*dynamics.Spec, error) {
	initial, err := initialFloat(pc.Initial, isBit)
	if err != nil {
		return nil, err
	}

	kind := dynamics.Kind(pc.Dynamics.Kind)
	switch kind {
	case dynamics.Static, dynamics.Clamp, dynamics.Sine, dynamics.Ramp,
		dynamics.Step, dynamics.RandomWalk, dynamics.Noise, dynamics.Script:
	case "":
		kind = dynamics.Static
	default:
		return nil, fmt.Errorf("unknown dynamics kind %q", pc.Dynamics.Kind)
	}

	spec := &dynamics.Spec{
		Kind:      kind,
		Initial:   initial,
		Amplitude: pc.Dynamics.Amplitude,
		Offset:    pc.Dynamics.Offset,
		PeriodMs:  pc.Dynamics.PeriodMs,
		From:      pc.Dynamics.From,
		To:        pc.Dynamics.To,
		Low:       pc.Dynamics.Low,
		High:      pc.Dynamics.High,
		StepSize:  pc.Dynamics.Step,
		Expr:      pc.Dynamics.Expr,
	}
	if pc.Dynamics.Min != nil {
		spec.HasMin = true
		spec.Min = *pc.Dynamics.Min
	}
	if pc.Dynamics.Max != nil {
		spec.HasMax = true
		spec.Max = *pc.Dynamics.Max
	}
	return spec, nil
}

func initialFloat(v interface{}, isBit bool) (float64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case int64:
		return float64(x), nil
	case float64:
		return x, nil
	default:
		return 0, fmt.Errorf("unsupported initial value type %T", v)
	}
}
