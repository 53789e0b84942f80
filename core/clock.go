package core

import "sync/atomic"

// ClockFreq is the nominal input tick rate. With the default prescaler
// (119) it yields a 100kHz sample grid, making one 2000-sample pulse cycle
// 20ms (50Hz).
const ClockFreq = 12000000

var systemTicks uint32 // atomic

// GetTime returns the current system time in ticks.
func GetTime() uint32 {
	return atomic.LoadUint32(&systemTicks)
}

// SetTime sets the current system time (testing and target integration).
func SetTime(ticks uint32) {
	atomic.StoreUint32(&systemTicks, ticks)
}

// AdvanceTime moves the system time forward by n ticks and returns the new
// time. Targets drive this from their tick loop.
func AdvanceTime(n uint32) uint32 {
	return atomic.AddUint32(&systemTicks, n)
}

// GetUptime returns the 64-bit uptime in ticks. The 32-bit tick counter is
// the only clock source here, so the high word is always 0 until a target
// provides a wider counter.
func GetUptime() uint64 {
	return uint64(GetTime())
}

// TimerFromUS converts microseconds to ticks.
func TimerFromUS(us uint32) uint32 {
	return us * (ClockFreq / 1000000)
}

// TimerToUS converts ticks to microseconds.
func TimerToUS(ticks uint32) uint32 {
	return ticks / (ClockFreq / 1000000)
}

// ProcessTimers runs all timers that are due at the current system time.
func ProcessTimers() {
	TimerDispatch(GetTime())
}
