package core

import (
	"sync/atomic"
	"testing"

	"github.com/FHW-Appel/asic-pwm-inout-test/protocol"
	"github.com/FHW-Appel/asic-pwm-inout-test/pwm"
)

// configPulseOut is a test helper wrapping the config command handler.
func configPulseOut(t *testing.T, oid, pin, prescaler, invert uint32) *PulseOut {
	t.Helper()
	data := encodeArgs(oid, pin, prescaler, invert)
	if err := handleConfigPulseOut(&data); err != nil {
		t.Fatalf("config_pulse_out failed: %v", err)
	}
	pout, exists := pulseOutputs[uint8(oid)]
	if !exists {
		t.Fatal("Pulse output not registered")
	}
	return pout
}

// pulseReset pulses the reset input for one tick so the generator samples
// its duty buffer from the live inputs.
func pulseReset(t *testing.T, oid uint32) {
	t.Helper()
	data := encodeArgs(oid, 1)
	if err := handleSetPulseReset(&data); err != nil {
		t.Fatalf("set_pulse_reset failed: %v", err)
	}
	TickPulseOuts(1)
	data = encodeArgs(oid, 0)
	if err := handleSetPulseReset(&data); err != nil {
		t.Fatalf("set_pulse_reset failed: %v", err)
	}
}

func TestConfigPulseOutIdleLevel(t *testing.T) {
	mock := NewMockGPIODriver()
	SetGPIODriver(mock)

	configPulseOut(t, 10, 40, 0, 0)
	if mock.pins[40] {
		t.Error("Non-inverted output should idle low after config")
	}

	configPulseOut(t, 11, 41, 0, 1)
	if !mock.pins[41] {
		t.Error("Inverted output should idle high after config")
	}
}

func TestPulseOutWaveform(t *testing.T) {
	mock := NewMockGPIODriver()
	SetGPIODriver(mock)

	// prescaler 0: one sample tick per input tick
	pout := configPulseOut(t, 12, 42, 0, 0)

	data := encodeArgs(12, 50)
	if err := handleSetPulseDuty(&data); err != nil {
		t.Fatalf("set_pulse_duty failed: %v", err)
	}
	pulseReset(t, 12)

	// level per position over one full cycle; the registered output lags
	// the counter by one tick, so key each sample by the pre-tick position
	levels := make([]bool, pwm.CycleTicks)
	for i := 0; i < pwm.CycleTicks; i++ {
		pos := pout.Gen.Position()
		TickPulseOuts(1)
		levels[pos] = mock.pins[42]
	}

	width := 0
	for _, lv := range levels {
		if lv {
			width++
		}
	}
	if width != pwm.PulseMinTicks+50 {
		t.Errorf("Expected pulse width %d, got %d", pwm.PulseMinTicks+50, width)
	}
	if !levels[0] || !levels[149] {
		t.Error("Pulse window not at the start of the cycle")
	}
	if levels[150] || levels[pwm.CycleTicks-1] {
		t.Error("Output high outside the pulse window")
	}
}

func TestQueuePulseDutyAppliesAtClock(t *testing.T) {
	mock := NewMockGPIODriver()
	SetGPIODriver(mock)

	pout := configPulseOut(t, 13, 43, 0, 0)

	SetTime(5000)

	data := encodeArgs(13, 5100, 80)
	if err := handleQueuePulseDuty(&data); err != nil {
		t.Fatalf("queue_pulse_duty failed: %v", err)
	}

	ProcessTimers()
	if pout.DutyReg != 0 {
		t.Error("Duty applied before scheduled clock")
	}

	SetTime(5100)
	ProcessTimers()
	if pout.DutyReg != 80 {
		t.Errorf("Expected duty 80 after scheduled clock, got %d", pout.DutyReg)
	}
}

func TestSetPulseControlSelectsPinDuty(t *testing.T) {
	mock := NewMockGPIODriver()
	SetGPIODriver(mock)

	pout := configPulseOut(t, 14, 44, 0, 0)

	data := encodeArgs(14, 60)
	if err := handleSetPulseDuty(&data); err != nil {
		t.Fatalf("set_pulse_duty failed: %v", err)
	}

	// pin-sourced duty differs from the register
	atomic.StoreUint32(&latestDutyIn, 25)

	data = encodeArgs(14, 1, 0) // select_pin=1 invert=0
	if err := handleSetPulseControl(&data); err != nil {
		t.Fatalf("set_pulse_control failed: %v", err)
	}

	pulseReset(t, 14)
	if pout.Gen.DutyLatched() != 25 {
		t.Errorf("Expected pin-sourced duty 25 latched, got %d", pout.Gen.DutyLatched())
	}

	data = encodeArgs(14, 0, 0)
	if err := handleSetPulseControl(&data); err != nil {
		t.Fatalf("set_pulse_control failed: %v", err)
	}

	pulseReset(t, 14)
	if pout.Gen.DutyLatched() != 60 {
		t.Errorf("Expected register-sourced duty 60 latched, got %d", pout.Gen.DutyLatched())
	}
}

func TestPulseOutInvertDuringReset(t *testing.T) {
	mock := NewMockGPIODriver()
	SetGPIODriver(mock)

	configPulseOut(t, 15, 45, 0, 1)

	// hold reset: raw output is 0, observed level is the inverted 1
	data := encodeArgs(15, 1)
	if err := handleSetPulseReset(&data); err != nil {
		t.Fatalf("set_pulse_reset failed: %v", err)
	}
	TickPulseOuts(3)
	if !mock.pins[45] {
		t.Error("Inverted output should read high while reset is held")
	}
}

func TestTickPulseOutsOnlyWritesOnChange(t *testing.T) {
	mock := NewMockGPIODriver()
	SetGPIODriver(mock)

	configPulseOut(t, 16, 46, 0, 0)
	pulseReset(t, 16)

	// inside the minimum pulse window the level is stable
	writesBefore := mock.writes
	TickPulseOuts(50)
	if mock.writes > writesBefore+1 {
		t.Errorf("Expected at most one pin write over a stable window, got %d", mock.writes-writesBefore)
	}
}

func TestQueryPulseOutReports(t *testing.T) {
	mock := NewMockGPIODriver()
	SetGPIODriver(mock)

	// the report path needs the pulse_out_state response registered
	InitPulseOutCommands()

	out := protocol.NewScratchOutput()
	SetGlobalTransport(protocol.NewTransport(out, nil))
	defer SetGlobalTransport(nil)

	pout := configPulseOut(t, 18, 48, 0, 0)

	SetTime(30000)
	data := encodeArgs(18, 500)
	if err := handleQueryPulseOut(&data); err != nil {
		t.Fatalf("query_pulse_out failed: %v", err)
	}

	ProcessTimers()
	if len(out.Result()) != 0 {
		t.Error("Report emitted before rest_ticks elapsed")
	}

	SetTime(30500)
	ProcessTimers()
	if len(out.Result()) == 0 {
		t.Error("No report emitted after rest_ticks")
	}
	if pout.NextReport != 31000 {
		t.Errorf("Expected next report at 31000, got %d", pout.NextReport)
	}

	// rest_ticks of zero stops reporting
	data = encodeArgs(18, 0)
	if err := handleQueryPulseOut(&data); err != nil {
		t.Fatalf("query_pulse_out failed: %v", err)
	}
	out.Reset()
	SetTime(31000)
	ProcessTimers()
	if len(out.Result()) != 0 {
		t.Error("Report emitted after reporting was disabled")
	}
}

func TestShutdownAllPulseOut(t *testing.T) {
	mock := NewMockGPIODriver()
	SetGPIODriver(mock)

	pout := configPulseOut(t, 17, 47, 0, 0)

	data := encodeArgs(17, 90)
	if err := handleSetPulseDuty(&data); err != nil {
		t.Fatalf("set_pulse_duty failed: %v", err)
	}
	pulseReset(t, 17)
	TickPulseOuts(10)

	ShutdownAllPulseOut()

	if pout.Flags&PF_RESET == 0 {
		t.Error("Shutdown did not assert reset")
	}
	if mock.pins[47] {
		t.Error("Shutdown did not drive pin to idle level")
	}

	// generator stays held while reset is asserted
	TickPulseOuts(100)
	if pout.Gen.Position() != 0 {
		t.Errorf("Generator advanced during shutdown: position %d", pout.Gen.Position())
	}
}
