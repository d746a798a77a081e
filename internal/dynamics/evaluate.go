package dynamics

import (
	"math"
	"math/rand"
)

// Evaluate computes the next value for a point given its dynamics spec, the
// point's prior value, elapsed time since process start (seconds), the
// tick's delta time (seconds), and a per-point random source.
//
// Evaluate never mutates spec except through the bookkeeping Compile did at
// startup, and never blocks: it is safe to call from any number of
// concurrent tick goroutines as long as each owns its own rng.
func Evaluate(spec *Spec, prior float64, tSeconds, dtSeconds float64, rng *rand.Rand) float64 {
	switch spec.Kind {
	case Static:
		return spec.Initial

	case Clamp:
		return spec.clampResult(prior)

	case Sine:
		periodSeconds := spec.PeriodMs / 1000
		next := spec.Offset + spec.Amplitude*math.Sin(2*math.Pi*tSeconds/periodSeconds)
		return next

	case Ramp:
		span := spec.To - spec.From
		phase := math.Mod(tSeconds*1000, spec.PeriodMs) / spec.PeriodMs
		return spec.From + span*phase

	case Step:
		n := math.Floor(2 * tSeconds * 1000 / spec.PeriodMs)
		if math.Mod(n, 2) == 0 {
			return spec.Low
		}
		return spec.High

	case RandomWalk:
		delta := (rng.Float64()*2 - 1) * spec.StepSize
		return spec.clampResult(prior + delta)

	case Noise:
		lo, hi := spec.Min, spec.Max
		return lo + rng.Float64()*(hi-lo)

	case Script:
		v := evalScript(spec.compiled, tSeconds)
		if math.IsNaN(v) {
			return prior
		}
		return spec.clampResult(v)

	default:
		return prior
	}
}

// ToBit maps an evaluated float to a coil/discrete-input value: any
// value >= 0.5 is true.
func ToBit(v float64) bool {
	return v >= 0.5
}

// ToWord maps an evaluated float to a 16-bit register word: round to
// nearest integer, then clamp to 0..=65535.
func ToWord(v float64) uint16 {
	if math.IsNaN(v) {
		return 0
	}
	r := math.Round(v)
	if r < 0 {
		return 0
	}
	if r > 65535 {
		return 65535
	}
	return uint16(r)
}
