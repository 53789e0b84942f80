// Digital output support: immediate and clock-scheduled pin updates with an
// optional max-duration watchdog that returns the pin to its default state.
package core

import (
	"github.com/FHW-Appel/asic-pwm-inout-test/protocol"
)

// DigitalOut flags
const (
	DF_ON         = 1 << 0 // current pin state
	DF_CHECK_END  = 1 << 1 // monitor max_duration
	DF_DEFAULT_ON = 1 << 2 // default state for shutdown/power-loss
)

// DigitalOut represents a configured GPIO output pin.
type DigitalOut struct {
	OID   uint8
	Pin   GPIOPin
	Flags uint8

	Timer Timer // scheduled updates and max_duration enforcement

	EndTime     uint32 // when max_duration expires
	MaxDuration uint32 // max ticks the pin may stay in a non-default state
}

// Global registry of digital outputs.
var digitalOutputs = make(map[uint8]*DigitalOut)

// InitGPIOCommands registers the digital output commands.
func InitGPIOCommands() {
	RegisterCommand("config_digital_out", "oid=%c pin=%u value=%c default_value=%c max_duration=%u", handleConfigDigitalOut)
	RegisterCommand("queue_digital_out", "oid=%c clock=%u value=%c", handleQueueDigitalOut)
	RegisterCommand("update_digital_out", "oid=%c value=%c", handleUpdateDigitalOut)
}

func handleConfigDigitalOut(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	pin, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	value, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	defaultValue, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	maxDuration, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	dout := &DigitalOut{
		OID:         uint8(oid),
		Pin:         GPIOPin(pin),
		MaxDuration: maxDuration,
	}
	if defaultValue != 0 {
		dout.Flags |= DF_DEFAULT_ON
	}

	if err := MustGPIO().ConfigureOutput(dout.Pin); err != nil {
		return err
	}

	initialState := value != 0
	if err := MustGPIO().SetPin(dout.Pin, initialState); err != nil {
		return err
	}
	if initialState {
		dout.Flags |= DF_ON
	}

	digitalOutputs[uint8(oid)] = dout

	return nil
}

func handleQueueDigitalOut(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	clock, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	value, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	dout, exists := digitalOutputs[uint8(oid)]
	if !exists {
		return nil
	}

	if value != 0 {
		dout.Flags |= DF_ON
	} else {
		dout.Flags &^= DF_ON
	}

	// arm the max_duration watchdog if the new state is non-default
	if dout.MaxDuration != 0 {
		newStateOn := (dout.Flags & DF_ON) != 0
		defaultOn := (dout.Flags & DF_DEFAULT_ON) != 0
		if newStateOn != defaultOn {
			dout.EndTime = clock + dout.MaxDuration
			dout.Flags |= DF_CHECK_END
		} else {
			dout.Flags &^= DF_CHECK_END
		}
	}

	UnscheduleTimer(&dout.Timer)
	dout.Timer.WakeTime = clock
	dout.Timer.Handler = digitalOutLoadEvent
	ScheduleTimer(&dout.Timer)

	return nil
}

func handleUpdateDigitalOut(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	value, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	dout, exists := digitalOutputs[uint8(oid)]
	if !exists {
		return nil
	}

	state := value != 0
	if err := MustGPIO().SetPin(dout.Pin, state); err != nil {
		return err
	}
	if state {
		dout.Flags |= DF_ON
	} else {
		dout.Flags &^= DF_ON
	}

	return nil
}

// digitalOutLoadEvent applies a scheduled pin update when its timer fires.
func digitalOutLoadEvent(t *Timer) uint8 {
	dout := digitalOutForTimer(t)
	if dout == nil {
		return SF_DONE
	}

	state := (dout.Flags & DF_ON) != 0
	if err := MustGPIO().SetPin(dout.Pin, state); err != nil {
		return SF_DONE
	}

	if (dout.Flags & DF_CHECK_END) != 0 {
		t.WakeTime = dout.EndTime
		t.Handler = digitalOutEndEvent
		return SF_RESCHEDULE
	}

	return SF_DONE
}

// digitalOutEndEvent enforces max_duration by returning the pin to its
// default state.
func digitalOutEndEvent(t *Timer) uint8 {
	dout := digitalOutForTimer(t)
	if dout == nil {
		return SF_DONE
	}

	defaultState := (dout.Flags & DF_DEFAULT_ON) != 0
	if err := MustGPIO().SetPin(dout.Pin, defaultState); err != nil {
		return SF_DONE
	}

	if defaultState {
		dout.Flags |= DF_ON
	} else {
		dout.Flags &^= DF_ON
	}
	dout.Flags &^= DF_CHECK_END

	return SF_DONE
}

// digitalOutForTimer finds the DigitalOut owning a timer.
func digitalOutForTimer(t *Timer) *DigitalOut {
	for _, dout := range digitalOutputs {
		if dout != nil && &dout.Timer == t {
			return dout
		}
	}
	return nil
}

// ShutdownDigitalOut returns a pin to its default state.
func ShutdownDigitalOut(dout *DigitalOut) {
	defaultState := (dout.Flags & DF_DEFAULT_ON) != 0
	_ = MustGPIO().SetPin(dout.Pin, defaultState)

	if defaultState {
		dout.Flags |= DF_ON
	} else {
		dout.Flags &^= DF_ON
	}
	dout.Flags &^= DF_CHECK_END

	UnscheduleTimer(&dout.Timer)
}

// ShutdownAllDigitalOut returns all pins to their default states. Called
// from the global shutdown handler.
func ShutdownAllDigitalOut() {
	for _, dout := range digitalOutputs {
		if dout != nil {
			ShutdownDigitalOut(dout)
		}
	}
}
