package main

import (
	"sync"

	"github.com/FHW-Appel/asic-pwm-inout-test/core"
)

// PinTransition is one recorded output edge.
type PinTransition struct {
	Tick  uint32
	Pin   core.GPIOPin
	Level bool
}

// SimGPIODriver implements the GPIO HAL in memory, recording every edge
// with the tick it happened on.
type SimGPIODriver struct {
	mu          sync.Mutex
	pins        map[core.GPIOPin]bool
	transitions []PinTransition
}

func NewSimGPIODriver() *SimGPIODriver {
	return &SimGPIODriver{
		pins: make(map[core.GPIOPin]bool),
	}
}

func (d *SimGPIODriver) ConfigureOutput(pin core.GPIOPin) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pins[pin]; !ok {
		d.pins[pin] = false
	}
	return nil
}

func (d *SimGPIODriver) SetPin(pin core.GPIOPin, value bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pins[pin] != value {
		d.transitions = append(d.transitions, PinTransition{
			Tick:  core.GetTime(),
			Pin:   pin,
			Level: value,
		})
	}
	d.pins[pin] = value
	return nil
}

func (d *SimGPIODriver) GetPin(pin core.GPIOPin) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pins[pin], nil
}

// Transitions returns a copy of the recorded edges for one pin.
func (d *SimGPIODriver) Transitions(pin core.GPIOPin) []PinTransition {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []PinTransition
	for _, tr := range d.transitions {
		if tr.Pin == pin {
			out = append(out, tr)
		}
	}
	return out
}

// SimDutyInDriver serves a fixed duty value on every channel.
type SimDutyInDriver struct {
	Value uint32
}

func (d *SimDutyInDriver) ConfigureChannel(ch core.DutyInChannel) error {
	return nil
}

func (d *SimDutyInDriver) ReadDuty(ch core.DutyInChannel) (uint32, error) {
	return d.Value, nil
}
