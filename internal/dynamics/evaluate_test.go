package dynamics

import (
	"math"
	"math/rand"
	"testing"
)

func TestStaticIsIdempotent(t *testing.T) {
	spec := &Spec{Kind: Static, Initial: 42}
	rng := rand.New(rand.NewSource(1))
	for _, prior := range []float64{0, -5, 42, 1000.5} {
		for _, tt := range []float64{0, 1, 123.4} {
			got := Evaluate(spec, prior, tt, 1, rng)
			if got != 42 {
				t.Fatalf("static(prior=%v, t=%v) = %v, want 42", prior, tt, got)
			}
		}
	}
}

func TestClampIdempotentWithinBounds(t *testing.T) {
	spec := &Spec{Kind: Clamp, Min: 0, Max: 10, HasMin: true, HasMax: true}
	rng := rand.New(rand.NewSource(1))
	if v := Evaluate(spec, 5, 0, 1, rng); v != 5 {
		t.Fatalf("got %v, want 5", v)
	}
	if v := Evaluate(spec, -5, 0, 1, rng); v != 0 {
		t.Fatalf("got %v, want 0", v)
	}
	if v := Evaluate(spec, 50, 0, 1, rng); v != 10 {
		t.Fatalf("got %v, want 10", v)
	}
}

func TestSineBounds(t *testing.T) {
	spec := &Spec{Kind: Sine, Amplitude: 50, Offset: 100, PeriodMs: 1000}
	rng := rand.New(rand.NewSource(1))
	for tt := 0.0; tt < 10; tt += 0.01 {
		v := Evaluate(spec, 0, tt, 0.01, rng)
		if v < 50-1e-9 || v > 150+1e-9 {
			t.Fatalf("sine(t=%v) = %v out of [50,150]", tt, v)
		}
	}
}

func TestSineAtZero(t *testing.T) {
	spec := &Spec{Kind: Sine, Amplitude: 50, Offset: 100, PeriodMs: 1000}
	rng := rand.New(rand.NewSource(1))
	if v := Evaluate(spec, 0, 0, 0, rng); math.Abs(v-100) > 1e-9 {
		t.Fatalf("sine(0) = %v, want 100", v)
	}
}

func TestRampWraps(t *testing.T) {
	spec := &Spec{Kind: Ramp, From: 0, To: 100, PeriodMs: 1000}
	rng := rand.New(rand.NewSource(1))
	v0 := Evaluate(spec, 0, 0, 0, rng)
	if v0 != 0 {
		t.Fatalf("ramp(0) = %v, want 0", v0)
	}
	vHalf := Evaluate(spec, 0, 0.5, 0, rng)
	if math.Abs(vHalf-50) > 1e-9 {
		t.Fatalf("ramp(0.5s) = %v, want 50", vHalf)
	}
	vWrap := Evaluate(spec, 0, 1.0, 0, rng)
	if math.Abs(vWrap-0) > 1e-9 {
		t.Fatalf("ramp(1.0s) = %v, want wrap to 0", vWrap)
	}
}

func TestStepSquareWave(t *testing.T) {
	spec := &Spec{Kind: Step, Low: 0, High: 1, PeriodMs: 1000}
	rng := rand.New(rand.NewSource(1))
	if v := Evaluate(spec, 0, 0, 0, rng); v != 0 {
		t.Fatalf("step(0) = %v, want low=0", v)
	}
	if v := Evaluate(spec, 0, 0.6, 0, rng); v != 1 {
		t.Fatalf("step(0.6) = %v, want high=1", v)
	}
	if v := Evaluate(spec, 0, 1.1, 0, rng); v != 0 {
		t.Fatalf("step(1.1) = %v, want low=0", v)
	}
}

func TestRandomWalkStaysInBounds(t *testing.T) {
	spec := &Spec{Kind: RandomWalk, Min: 0, Max: 10, HasMin: true, HasMax: true, StepSize: 3}
	rng := rand.New(rand.NewSource(7))
	v := 5.0
	for i := 0; i < 10000; i++ {
		v = Evaluate(spec, v, float64(i), 1, rng)
		if v < 0 || v > 10 {
			t.Fatalf("iteration %d: value %v out of [0,10]", i, v)
		}
	}
}

func TestNoiseStaysInBounds(t *testing.T) {
	spec := &Spec{Kind: Noise, Min: -1, Max: 1}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10000; i++ {
		v := Evaluate(spec, 0, float64(i), 1, rng)
		if v < -1 || v > 1 {
			t.Fatalf("iteration %d: value %v out of [-1,1]", i, v)
		}
	}
}

func TestScriptEvaluation(t *testing.T) {
	spec := &Spec{Kind: Script, Expr: "100+20*sin(t)", Min: 0, Max: 200, HasMin: true, HasMax: true}
	if err := spec.Compile(); err != nil {
		t.Fatalf("compile: %v", err)
	}
	rng := rand.New(rand.NewSource(1))

	if v := Evaluate(spec, 0, 0, 0, rng); math.Abs(v-100) > 1e-9 {
		t.Fatalf("script(t=0) = %v, want 100", v)
	}
	if v := Evaluate(spec, 0, math.Pi/2, 0, rng); math.Abs(v-120) > 1e-9 {
		t.Fatalf("script(t=pi/2) = %v, want 120", v)
	}
	for tt := 0.0; tt < 20; tt += 0.1 {
		v := Evaluate(spec, 0, tt, 0, rng)
		if v < 0 || v > 200 {
			t.Fatalf("script(t=%v) = %v out of [0,200]", tt, v)
		}
	}
}

func TestScriptDivisionByZeroHoldsPrevious(t *testing.T) {
	spec := &Spec{Kind: Script, Expr: "1/0"}
	if err := spec.Compile(); err != nil {
		t.Fatalf("compile: %v", err)
	}
	rng := rand.New(rand.NewSource(1))
	if v := Evaluate(spec, 17, 0, 0, rng); v != 17 {
		t.Fatalf("div-by-zero should hold prior value 17, got %v", v)
	}
}

func TestScriptUnknownIdentifierFailsAtCompile(t *testing.T) {
	spec := &Spec{Kind: Script, Expr: "x+1"}
	if err := spec.Compile(); err == nil {
		t.Fatal("expected compile error for unknown identifier")
	}
}

func TestScriptArityMismatchFailsAtCompile(t *testing.T) {
	for _, expr := range []string{"min(1)", "max(1,2,3)", "sin(1,2)", "pow(1)"} {
		spec := &Spec{Kind: Script, Expr: expr}
		if err := spec.Compile(); err == nil {
			t.Fatalf("expected compile error for %q", expr)
		}
	}
}

func TestScriptFunctionsAndPrecedence(t *testing.T) {
	cases := []struct {
		expr string
		t    float64
		want float64
	}{
		{"2+3*4", 0, 14},
		{"(2+3)*4", 0, 20},
		{"-5+2", 0, -3},
		{"sqrt(16)", 0, 4},
		{"abs(-7)", 0, 7},
		{"min(3,5)", 0, 3},
		{"max(3,5)", 0, 5},
		{"pow(2,10)", 0, 1024},
		{"floor(3.7)", 0, 3},
		{"ceil(3.2)", 0, 4},
		{"10 % 3", 0, 1},
	}
	for _, c := range cases {
		spec := &Spec{Kind: Script, Expr: c.expr}
		if err := spec.Compile(); err != nil {
			t.Fatalf("compile %q: %v", c.expr, err)
		}
		rng := rand.New(rand.NewSource(1))
		got := Evaluate(spec, 0, c.t, 0, rng)
		if math.Abs(got-c.want) > 1e-9 {
			t.Errorf("%q = %v, want %v", c.expr, got, c.want)
		}
	}
}

func TestToBitThreshold(t *testing.T) {
	if ToBit(0.49) {
		t.Fatal("0.49 should map to false")
	}
	if !ToBit(0.5) {
		t.Fatal("0.5 should map to true")
	}
}

func TestToWordRoundsAndClamps(t *testing.T) {
	if got := ToWord(3.4); got != 3 {
		t.Fatalf("got %v, want 3", got)
	}
	if got := ToWord(3.5); got != 4 {
		t.Fatalf("got %v, want 4", got)
	}
	if got := ToWord(-1); got != 0 {
		t.Fatalf("got %v, want 0", got)
	}
	if got := ToWord(70000); got != 65535 {
		t.Fatalf("got %v, want 65535", got)
	}
}
