// Duty input support: periodic sampling of an external duty-cycle source.
// The latest sample is the "pin-sourced" duty value a pulse generator sees
// when its selector bit is set.
package core

import (
	"sync/atomic"

	"github.com/FHW-Appel/asic-pwm-inout-test/protocol"
)

// Duty input states
const (
	DutyInStateReady    = 0
	DutyInStateSampling = 1
)

// DutyInChannel identifies a hardware duty input channel.
type DutyInChannel uint32

// DutyInDriver is the abstract duty-input interface. Target code decides
// what a channel physically is (an ADC pin, a decoded PWM input, a test
// stub).
type DutyInDriver interface {
	// ConfigureChannel prepares a channel for sampling.
	ConfigureChannel(ch DutyInChannel) error

	// ReadDuty returns the channel's current duty value. Values above the
	// generator's maximum are legal; the pulse window arithmetic clamps.
	ReadDuty(ch DutyInChannel) (uint32, error)
}

var dutyInDriver DutyInDriver

// SetDutyInDriver is called by target-specific code to register its driver.
func SetDutyInDriver(d DutyInDriver) {
	dutyInDriver = d
}

// MustDutyIn returns the configured driver or panics if missing.
func MustDutyIn() DutyInDriver {
	if dutyInDriver == nil {
		panic("duty input driver not configured")
	}
	return dutyInDriver
}

// DutyIn represents a configured duty input channel.
type DutyIn struct {
	OID     uint8
	Channel DutyInChannel
	State   uint8

	Timer Timer // periodic sampling

	// Timing parameters
	RestTicks     uint32 // ticks between reporting cycles
	SampleTicks   uint32 // ticks between individual samples
	NextBeginTime uint32

	// Oversampling
	SampleCount   uint8
	CurrentSample uint8
	Accum         uint32

	// Range checking: repeated samples above MaxValue indicate a wiring
	// fault and shut the firmware down
	MaxValue     uint32
	CheckCount   uint8
	InvalidCount uint8
}

// Global registry of duty inputs.
var dutyInputs = make(map[uint8]*DutyIn)

// latestDutyIn is the most recent completed sample, averaged over the
// oversampling window. Read every tick by the pulse generators.
var latestDutyIn uint32 // atomic

// DutyInValue returns the current pin-sourced duty value.
func DutyInValue() uint32 {
	return atomic.LoadUint32(&latestDutyIn)
}

// InitDutyInCommands registers the duty input commands.
func InitDutyInCommands() {
	RegisterCommand("config_duty_in", "oid=%c channel=%u", handleConfigDutyIn)
	RegisterCommand("query_duty_in", "oid=%c clock=%u sample_ticks=%u sample_count=%c rest_ticks=%u max_value=%u range_check_count=%c", handleQueryDutyIn)
	RegisterResponse("duty_in_state", "oid=%c next_clock=%u value=%u")
}

func handleConfigDutyIn(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	channel, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	din := &DutyIn{
		OID:     uint8(oid),
		Channel: DutyInChannel(channel),
		State:   DutyInStateReady,
	}

	if err := MustDutyIn().ConfigureChannel(din.Channel); err != nil {
		return err
	}

	dutyInputs[uint8(oid)] = din

	return nil
}

func handleQueryDutyIn(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	clock, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	sampleTicks, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	sampleCount, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	restTicks, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	maxValue, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	rangeCheckCount, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	din, exists := dutyInputs[uint8(oid)]
	if !exists {
		return nil
	}

	din.SampleTicks = sampleTicks
	din.SampleCount = uint8(sampleCount)
	din.RestTicks = restTicks
	din.MaxValue = maxValue
	din.CheckCount = uint8(rangeCheckCount)
	din.NextBeginTime = clock
	din.Accum = 0
	din.CurrentSample = 0
	din.InvalidCount = 0

	// sample_count of zero disables sampling
	if din.SampleCount == 0 {
		din.State = DutyInStateReady
		UnscheduleTimer(&din.Timer)
		return nil
	}

	din.State = DutyInStateSampling

	UnscheduleTimer(&din.Timer)
	din.Timer.WakeTime = clock
	din.Timer.Handler = dutyInTimerHandler
	ScheduleTimer(&din.Timer)

	return nil
}

// dutyInTimerHandler takes one sample per firing; after SampleCount samples
// it publishes the average, reports it, and rests until the next cycle.
func dutyInTimerHandler(t *Timer) uint8 {
	din := dutyInForTimer(t)
	if din == nil || din.State != DutyInStateSampling {
		return SF_DONE
	}

	value, err := MustDutyIn().ReadDuty(din.Channel)
	if err != nil {
		din.State = DutyInStateReady
		return SF_DONE
	}

	din.Accum += value
	din.CurrentSample++

	if din.CurrentSample < din.SampleCount {
		t.WakeTime = GetTime() + din.SampleTicks
		return SF_RESCHEDULE
	}

	// sampling cycle complete
	avg := din.Accum / uint32(din.SampleCount)
	din.Accum = 0
	din.CurrentSample = 0
	din.NextBeginTime += din.RestTicks

	if din.MaxValue != 0 && avg > din.MaxValue {
		din.InvalidCount++
		if din.InvalidCount >= din.CheckCount {
			din.State = DutyInStateReady
			TryShutdown("duty input out of range")
			return SF_DONE
		}
	} else {
		din.InvalidCount = 0
		atomic.StoreUint32(&latestDutyIn, avg)
	}

	SendResponse("duty_in_state", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(din.OID))
		protocol.EncodeVLQUint(output, din.NextBeginTime)
		protocol.EncodeVLQUint(output, avg)
	})

	t.WakeTime = din.NextBeginTime
	return SF_RESCHEDULE
}

// dutyInForTimer finds the DutyIn owning a timer.
func dutyInForTimer(t *Timer) *DutyIn {
	for _, din := range dutyInputs {
		if din != nil && &din.Timer == t {
			return din
		}
	}
	return nil
}

// ShutdownAllDutyIn stops all duty input sampling.
func ShutdownAllDutyIn() {
	for _, din := range dutyInputs {
		if din != nil {
			din.State = DutyInStateReady
			UnscheduleTimer(&din.Timer)
		}
	}
}
