// Package pwm implements a fixed-frequency, variable-duty pulse generator.
//
// The generator is a synchronous automaton clocked by an input tick. A
// prescaler divides the tick down to a sample-tick grid, a period counter
// counts 2000 sample ticks per output cycle, and a double-buffered duty
// value sets the pulse width between a fixed minimum and maximum. The duty
// buffer is refreshed only at cycle start (or during reset), so a live duty
// change is never observed mid-cycle.
package pwm

const (
	// DefaultPrescalerMax gives one sample tick every 120 input ticks.
	// At the nominal 12MHz tick rate that is a 100kHz sample grid, making
	// one 2000-sample cycle 20ms (50Hz).
	DefaultPrescalerMax = 119

	// TestPrescalerMax shortens the effective cycle for exhaustive
	// verification (one sample tick every 2 input ticks).
	TestPrescalerMax = 1

	// CycleTicks is the cycle length in sample ticks.
	CycleTicks = 2000

	// PulseMinTicks and PulseMaxTicks bound the pulse window. A duty of 0
	// gives the minimum pulse, DutyMax the maximum; larger duty values
	// clamp to the maximum through the window arithmetic alone.
	PulseMinTicks = 100
	PulseMaxTicks = 200

	// DutyMax is the largest duty value that still changes the pulse width.
	DutyMax = 100
)

// Inputs carries the live input signals sampled on each tick. Reset is
// level-sensitive: the automaton is held at its initial state for as long
// as it stays asserted.
type Inputs struct {
	Reset     bool
	SelectPin bool // choose the pin-sourced duty over the register-sourced one
	Invert    bool // polarity control, applied after the output register
	DutyReg   uint32
	DutyPin   uint32
}

// selectedDuty returns the live duty source chosen by the selector bit.
func (in Inputs) selectedDuty() uint32 {
	if in.SelectPin {
		return in.DutyPin
	}
	return in.DutyReg
}

// Prescaler divides the input tick down to the sample-tick grid. The
// divider counts 0..max inclusive, so a sample tick is emitted once every
// max+1 input ticks.
type Prescaler struct {
	max     uint32
	divider uint32
}

// NewPrescaler returns a prescaler emitting one sample tick per max+1 ticks.
func NewPrescaler(max uint32) Prescaler {
	return Prescaler{max: max}
}

// Tick advances the divider and reports whether a sample tick is emitted
// on this tick.
func (p *Prescaler) Tick() bool {
	if p.divider == p.max {
		p.divider = 0
		return true
	}
	p.divider++
	return false
}

// Reset forces the divider to 0. No sample tick is emitted on a reset tick.
func (p *Prescaler) Reset() {
	p.divider = 0
}

// Divider returns the current divider value.
func (p *Prescaler) Divider() uint32 {
	return p.divider
}

// Max returns the configured divider wrap value.
func (p *Prescaler) Max() uint32 {
	return p.max
}

// CycleCounter counts sample ticks over one output cycle, producing the
// saw-tooth position-in-cycle value.
type CycleCounter struct {
	position uint32
}

// Advance moves the counter by one sample tick and reports whether it
// wrapped back to 0 (cycle start).
func (c *CycleCounter) Advance() bool {
	if c.position == CycleTicks-1 {
		c.position = 0
		return true
	}
	c.position++
	return false
}

// Reset forces the position to 0.
func (c *CycleCounter) Reset() {
	c.position = 0
}

// Position returns the current position in the cycle.
func (c *CycleCounter) Position() uint32 {
	return c.position
}

// pulseWindow returns the number of leading sample ticks the output is
// high for, min(PulseMinTicks+duty, PulseMaxTicks). Duty values above
// DutyMax clamp to the maximum pulse with no explicit range check.
func pulseWindow(duty uint32) uint32 {
	w := PulseMinTicks + duty
	if w > PulseMaxTicks {
		w = PulseMaxTicks
	}
	return w
}

// Generator composes the prescaler, cycle counter and duty buffer into the
// complete pulse generator. All state advances happen in Tick; each call
// computes exactly one synchronous transition from the previous tick's
// state and the current tick's inputs.
type Generator struct {
	prescaler Prescaler
	cycle     CycleCounter

	// dutyLatched governs the current cycle. It is rewritten only on a
	// reset tick or on a cycle-start tick.
	dutyLatched uint32

	// raw is the registered output bit. It reflects the counter state as
	// of the previous tick (one tick of pipeline delay).
	raw bool

	// events observed on the most recent tick
	sampleTick bool
	cycleStart bool
}

// NewGenerator returns a generator with the given prescaler wrap value.
// Counters start at 0 and the duty buffer at 0; hold Reset asserted for at
// least one tick to sample the duty buffer from the live inputs before
// releasing the generator.
func NewGenerator(prescalerMax uint32) *Generator {
	return &Generator{prescaler: NewPrescaler(prescalerMax)}
}

// Tick advances the generator by one input tick and returns the externally
// observed output level (raw output with the polarity control applied).
//
// The pulse decision reads the pre-tick counter values, so the returned
// level lags the counters by one tick. Polarity inversion is combinational
// on top of the registered raw output: while Reset holds the raw output at
// 0, an asserted Invert yields an observed 1.
func (g *Generator) Tick(in Inputs) bool {
	if in.Reset {
		g.prescaler.Reset()
		g.cycle.Reset()
		g.dutyLatched = in.selectedDuty()
		g.raw = false
		g.sampleTick = false
		g.cycleStart = false
		return in.Invert
	}

	prevPos := g.cycle.Position()
	prevDuty := g.dutyLatched

	g.sampleTick = g.prescaler.Tick()
	g.cycleStart = false
	if g.sampleTick {
		g.cycleStart = g.cycle.Advance()
		if g.cycleStart {
			g.dutyLatched = in.selectedDuty()
		}
	}

	g.raw = prevPos < pulseWindow(prevDuty)
	return g.raw != in.Invert
}

// Raw returns the registered, uninverted output bit.
func (g *Generator) Raw() bool {
	return g.raw
}

// DutyLatched returns the duty value governing the current cycle.
func (g *Generator) DutyLatched() uint32 {
	return g.dutyLatched
}

// Position returns the cycle counter position after the last tick.
func (g *Generator) Position() uint32 {
	return g.cycle.Position()
}

// Divider returns the prescaler divider after the last tick.
func (g *Generator) Divider() uint32 {
	return g.prescaler.Divider()
}

// SampleTick reports whether the last tick carried a sample-tick event.
func (g *Generator) SampleTick() bool {
	return g.sampleTick
}

// CycleStart reports whether the last tick wrapped the cycle counter.
// A cycle-start tick always also carries a sample-tick event.
func (g *Generator) CycleStart() bool {
	return g.cycleStart
}
