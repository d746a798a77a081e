// Package config loads and validates the simulator's TOML configuration:
// logging, transport, and the four register tables with their per-point
// dynamics.
package config

// Config is the root of config.toml.
type Config struct {
	Logging Logging `toml:"logging"`
	Global  Global  `toml:"global"`
	TCP     *TCP    `toml:"tcp"`
	RTU     *RTU    `toml:"rtu"`
	Device  DeviceConfig `toml:"device"`
}

// Logging configures the ambient logging stack.
type Logging struct {
	LogValueUpdates bool   `toml:"log_value_updates"`
	Level           string `toml:"level"`
}

// Global holds process-wide defaults.
type Global struct {
	UpdateMs int64  `toml:"update_ms"`
	Seed     *int64 `toml:"seed"`
}

// TCP configures the MBAP-framed TCP transport. A nil *TCP in Config
// means TCP is disabled.
type TCP struct {
	Bind string `toml:"bind"`
}

// RTU configures the serial RTU transport. A nil *RTU in Config means RTU
// is disabled.
type RTU struct {
	Device   string `toml:"device"`
	BaudRate int    `toml:"baud_rate"`
	Parity   string `toml:"parity"`
	DataBits int    `toml:"data_bits"`
	StopBits int    `toml:"stop_bits"`
}

// DeviceConfig describes the single simulated unit and its four tables.
type DeviceConfig struct {
	UnitID           int           `toml:"unit_id"`
	Coils            []PointConfig `toml:"coils"`
	DiscreteInputs   []PointConfig `toml:"discrete_inputs"`
	HoldingRegisters []PointConfig `toml:"holding_registers"`
	InputRegisters   []PointConfig `toml:"input_registers"`
}

// PointConfig is one entry in one of the device's table arrays.
type PointConfig struct {
	Address  uint16         `toml:"address"`
	Initial  interface{}    `toml:"initial"`
	UpdateMs *int64         `toml:"update_ms"`
	Dynamics DynamicsConfig `toml:"dynamics"`
}

// DynamicsConfig is the inline dynamics sub-table. Only the fields
// relevant to Kind are meaningful; see dynamics.Spec for the mapping.
type DynamicsConfig struct {
	Kind      string   `toml:"kind"`
	Amplitude float64  `toml:"amplitude"`
	Offset    float64  `toml:"offset"`
	PeriodMs  float64  `toml:"period_ms"`
	From      float64  `toml:"from"`
	To        float64  `toml:"to"`
	Low       float64  `toml:"low"`
	High      float64  `toml:"high"`
	Min       *float64 `toml:"min"`
	Max       *float64 `toml:"max"`
	Step      float64  `toml:"step"`
	Expr      string   `toml:"expr"`
}
