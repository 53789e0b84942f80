package core

// GPIOPin identifies a hardware GPIO pin number.
type GPIOPin uint32

// GPIODriver is the abstract GPIO interface the core uses. Target-specific
// implementations handle the actual pin control.
type GPIODriver interface {
	// ConfigureOutput configures a pin as a digital output.
	ConfigureOutput(pin GPIOPin) error

	// SetPin drives the pin high (true) or low (false).
	SetPin(pin GPIOPin, value bool) error

	// GetPin reads back the current pin state.
	GetPin(pin GPIOPin) (bool, error)
}

// Global singleton used by core code.
var gpioDriver GPIODriver

// SetGPIODriver is called by target-specific code to register its driver.
func SetGPIODriver(d GPIODriver) {
	gpioDriver = d
}

// MustGPIO returns the configured driver or panics if missing.
func MustGPIO() GPIODriver {
	if gpioDriver == nil {
		panic("GPIO driver not configured")
	}
	return gpioDriver
}
