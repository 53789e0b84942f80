package core

// DebugWriter is a function type for writing debug messages.
type DebugWriter func(string)

var (
	// debugPrintln is the global debug print function; targets point it at
	// stderr, a UART, or wherever their diagnostics go.
	debugPrintln DebugWriter = func(s string) {}

	// debugEnabled controls whether debug output is active. Disabled by
	// default so the tick loop pays nothing for it.
	debugEnabled bool
)

// SetDebugWriter sets the target-specific debug output function.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output.
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled.
func IsDebugEnabled() bool {
	return debugEnabled
}

// DebugPrintln writes a debug message using the configured writer.
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}
