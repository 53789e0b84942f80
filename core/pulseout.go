// Pulse output support: fixed-frequency, variable-duty pulse generation on
// GPIO pins. Each configured output wraps one pwm.Generator and drives its
// pin whenever the generated level changes.
package core

import (
	"github.com/FHW-Appel/asic-pwm-inout-test/protocol"
	"github.com/FHW-Appel/asic-pwm-inout-test/pwm"
)

// PulseOut control flags
const (
	PF_SELECT_PIN = 1 << 0 // duty source: pin sampler instead of register
	PF_INVERT     = 1 << 1 // output polarity invert
	PF_RESET      = 1 << 2 // level-sensitive reset input
)

// PulseOut represents a configured pulse generator output.
type PulseOut struct {
	OID   uint8
	Pin   GPIOPin
	Flags uint8

	Gen *pwm.Generator

	// DutyReg is the register-sourced live duty value.
	DutyReg uint32

	Timer       Timer  // scheduled duty writes
	PendingDuty uint32 // value the timer will apply

	ReportTimer Timer  // periodic state reports
	RestTicks   uint32 // ticks between reports
	NextReport  uint32

	level bool // last level driven onto the pin
}

// Global registry of pulse outputs.
var pulseOutputs = make(map[uint8]*PulseOut)

// InitPulseOutCommands registers the pulse output commands.
func InitPulseOutCommands() {
	RegisterCommand("config_pulse_out", "oid=%c pin=%u prescaler=%u invert=%c", handleConfigPulseOut)
	RegisterCommand("set_pulse_duty", "oid=%c duty=%c", handleSetPulseDuty)
	RegisterCommand("queue_pulse_duty", "oid=%c clock=%u duty=%c", handleQueuePulseDuty)
	RegisterCommand("set_pulse_control", "oid=%c select_pin=%c invert=%c", handleSetPulseControl)
	RegisterCommand("set_pulse_reset", "oid=%c reset=%c", handleSetPulseReset)
	RegisterCommand("query_pulse_out", "oid=%c rest_ticks=%u", handleQueryPulseOut)
	RegisterResponse("pulse_out_state", "oid=%c clock=%u position=%hu duty=%c level=%c")

	RegisterConstant("PWM_PRESCALER_MAX", uint32(pwm.DefaultPrescalerMax))
	RegisterConstant("PWM_CYCLE_TICKS", uint32(pwm.CycleTicks))
	RegisterConstant("PWM_DUTY_MAX", uint32(pwm.DutyMax))
}

func handleConfigPulseOut(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	pin, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	prescaler, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	invert, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	pout := &PulseOut{
		OID: uint8(oid),
		Pin: GPIOPin(pin),
		Gen: pwm.NewGenerator(prescaler),
	}
	if invert != 0 {
		pout.Flags |= PF_INVERT
	}

	if err := MustGPIO().ConfigureOutput(pout.Pin); err != nil {
		return err
	}

	// idle level until the first tick: a freshly configured generator
	// outputs its inverted-polarity low
	pout.level = invert != 0
	if err := MustGPIO().SetPin(pout.Pin, pout.level); err != nil {
		return err
	}

	pulseOutputs[uint8(oid)] = pout

	return nil
}

func handleSetPulseDuty(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	duty, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	pout, exists := pulseOutputs[uint8(oid)]
	if !exists {
		return nil
	}

	// the generator latches this at its next cycle start
	pout.DutyReg = duty

	return nil
}

func handleQueuePulseDuty(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	clock, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	duty, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	pout, exists := pulseOutputs[uint8(oid)]
	if !exists {
		return nil
	}

	pout.PendingDuty = duty

	UnscheduleTimer(&pout.Timer)
	pout.Timer.WakeTime = clock
	pout.Timer.Handler = pulseOutLoadEvent
	ScheduleTimer(&pout.Timer)

	return nil
}

func handleSetPulseControl(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	selectPin, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	invert, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	pout, exists := pulseOutputs[uint8(oid)]
	if !exists {
		return nil
	}

	if selectPin != 0 {
		pout.Flags |= PF_SELECT_PIN
	} else {
		pout.Flags &^= PF_SELECT_PIN
	}
	if invert != 0 {
		pout.Flags |= PF_INVERT
	} else {
		pout.Flags &^= PF_INVERT
	}

	return nil
}

func handleSetPulseReset(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	reset, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	pout, exists := pulseOutputs[uint8(oid)]
	if !exists {
		return nil
	}

	if reset != 0 {
		pout.Flags |= PF_RESET
	} else {
		pout.Flags &^= PF_RESET
	}

	return nil
}

func handleQueryPulseOut(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	restTicks, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	pout, exists := pulseOutputs[uint8(oid)]
	if !exists {
		return nil
	}

	pout.RestTicks = restTicks

	// rest_ticks of zero stops reporting
	if restTicks == 0 {
		UnscheduleTimer(&pout.ReportTimer)
		return nil
	}

	pout.NextReport = GetTime() + restTicks

	UnscheduleTimer(&pout.ReportTimer)
	pout.ReportTimer.WakeTime = pout.NextReport
	pout.ReportTimer.Handler = pulseOutReportEvent
	ScheduleTimer(&pout.ReportTimer)

	return nil
}

// pulseOutLoadEvent applies a scheduled duty write when its timer fires.
func pulseOutLoadEvent(t *Timer) uint8 {
	pout := pulseOutForLoadTimer(t)
	if pout == nil {
		return SF_DONE
	}

	pout.DutyReg = pout.PendingDuty

	return SF_DONE
}

// pulseOutReportEvent sends a periodic pulse_out_state response.
func pulseOutReportEvent(t *Timer) uint8 {
	pout := pulseOutForReportTimer(t)
	if pout == nil || pout.RestTicks == 0 {
		return SF_DONE
	}

	pout.NextReport += pout.RestTicks

	SendResponse("pulse_out_state", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(pout.OID))
		protocol.EncodeVLQUint(output, GetTime())
		protocol.EncodeVLQUint(output, pout.Gen.Position())
		protocol.EncodeVLQUint(output, pout.Gen.DutyLatched())
		protocol.EncodeVLQBool(output, pout.level)
	})

	t.WakeTime = pout.NextReport
	return SF_RESCHEDULE
}

func pulseOutForLoadTimer(t *Timer) *PulseOut {
	for _, pout := range pulseOutputs {
		if pout != nil && &pout.Timer == t {
			return pout
		}
	}
	return nil
}

func pulseOutForReportTimer(t *Timer) *PulseOut {
	for _, pout := range pulseOutputs {
		if pout != nil && &pout.ReportTimer == t {
			return pout
		}
	}
	return nil
}

// inputs assembles the generator inputs from the output's control flags and
// the current duty sources.
func (pout *PulseOut) inputs() pwm.Inputs {
	return pwm.Inputs{
		Reset:     pout.Flags&PF_RESET != 0,
		SelectPin: pout.Flags&PF_SELECT_PIN != 0,
		Invert:    pout.Flags&PF_INVERT != 0,
		DutyReg:   pout.DutyReg,
		DutyPin:   DutyInValue(),
	}
}

// TickPulseOuts advances every configured generator by n input ticks,
// driving pins whenever their level changes. Called from the target's main
// loop alongside AdvanceTime.
func TickPulseOuts(n uint32) {
	for i := uint32(0); i < n; i++ {
		for _, pout := range pulseOutputs {
			if pout == nil {
				continue
			}
			level := pout.Gen.Tick(pout.inputs())
			if level != pout.level {
				pout.level = level
				_ = MustGPIO().SetPin(pout.Pin, level)
			}
		}
	}
}

// ShutdownPulseOut holds a generator in reset and drives its pin to the
// idle level.
func ShutdownPulseOut(pout *PulseOut) {
	pout.Flags |= PF_RESET
	pout.level = pout.Gen.Tick(pout.inputs())
	_ = MustGPIO().SetPin(pout.Pin, pout.level)

	UnscheduleTimer(&pout.Timer)
	UnscheduleTimer(&pout.ReportTimer)
	pout.RestTicks = 0
}

// ShutdownAllPulseOut holds all generators in reset. Called from the global
// shutdown handler.
func ShutdownAllPulseOut() {
	for _, pout := range pulseOutputs {
		if pout != nil {
			ShutdownPulseOut(pout)
		}
	}
}
