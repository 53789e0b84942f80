package core

import (
	"sync/atomic"

	"github.com/FHW-Appel/asic-pwm-inout-test/protocol"
)

// FirmwareState holds the global firmware state.
type FirmwareState struct {
	configCRC  uint32 // atomic
	isShutdown uint32 // atomic bool
	moveCount  uint16
}

var globalState = &FirmwareState{
	moveCount: 16, // command queue size reported to the host
}

// InitCoreCommands registers the core protocol commands.
//
// Registration order matters for the bootstrap pair: the host hardcodes
// identify_response = ID 0 and identify = ID 1 before it has a dictionary.
func InitCoreCommands() {
	RegisterResponse("identify_response", "offset=%u data=%*s")       // ID 0
	RegisterCommand("identify", "offset=%u count=%c", handleIdentify) // ID 1

	RegisterCommand("get_uptime", "", handleGetUptime)
	RegisterCommand("get_clock", "", handleGetClock)
	RegisterCommand("get_config", "", handleGetConfig)
	RegisterCommand("config_reset", "", handleConfigReset)
	RegisterCommand("finalize_config", "crc=%u", handleFinalizeConfig)
	RegisterCommand("allocate_oids", "count=%c", handleAllocateOids)
	RegisterCommand("emergency_stop", "", handleEmergencyStop)
	RegisterCommand("reset", "", handleReset)

	// Response messages (MCU to host)
	RegisterResponse("clock", "clock=%u")
	RegisterResponse("uptime", "high=%u clock=%u")
	RegisterResponse("config", "is_config=%c crc=%u is_shutdown=%c move_count=%hu")

	RegisterConstant("CLOCK_FREQ", uint32(ClockFreq))
	RegisterConstant("MCU", "pwmio")
}

// handleIdentify returns chunks of the data dictionary.
func handleIdentify(data *[]byte) error {
	offset, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	count, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	chunk := GetGlobalDictionary().GetChunk(offset, uint8(count))

	SendResponse("identify_response", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQBytes(output, chunk)
	})

	return nil
}

func handleGetUptime(data *[]byte) error {
	uptime := GetUptime()

	SendResponse("uptime", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(uptime>>32))
		protocol.EncodeVLQUint(output, uint32(uptime))
	})

	return nil
}

func handleGetClock(data *[]byte) error {
	clock := GetTime()

	SendResponse("clock", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, clock)
	})

	return nil
}

func handleGetConfig(data *[]byte) error {
	crc := atomic.LoadUint32(&globalState.configCRC)
	isShutdown := atomic.LoadUint32(&globalState.isShutdown) != 0
	isConfig := crc != 0

	SendResponse("config", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQBool(output, isConfig)
		protocol.EncodeVLQUint(output, crc)
		protocol.EncodeVLQBool(output, isShutdown)
		protocol.EncodeVLQUint(output, uint32(globalState.moveCount))
	})

	return nil
}

func handleConfigReset(data *[]byte) error {
	atomic.StoreUint32(&globalState.configCRC, 0)
	return nil
}

func handleFinalizeConfig(data *[]byte) error {
	crc, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	atomic.StoreUint32(&globalState.configCRC, crc)
	return nil
}

func handleAllocateOids(data *[]byte) error {
	_, err := protocol.DecodeVLQUint(data)
	return err
}

// handleEmergencyStop halts all outputs: generators are held in reset and
// digital pins return to their default state.
func handleEmergencyStop(data *[]byte) error {
	atomic.StoreUint32(&globalState.isShutdown, 1)
	ShutdownAllPulseOut()
	ShutdownAllDigitalOut()
	ShutdownAllDutyIn()
	return nil
}

// TryShutdown triggers a firmware shutdown with a reason message. Used by
// safety mechanisms like the duty-input range check.
func TryShutdown(reason string) {
	atomic.StoreUint32(&globalState.isShutdown, 1)
	ShutdownAllPulseOut()
	ShutdownAllDigitalOut()
	ShutdownAllDutyIn()
	DebugPrintln("shutdown: " + reason)
}

// IsShutdown returns true if the firmware is in shutdown state.
func IsShutdown() bool {
	return atomic.LoadUint32(&globalState.isShutdown) != 0
}

// ResetFirmwareState clears the config/shutdown state for reconnection.
func ResetFirmwareState() {
	atomic.StoreUint32(&globalState.configCRC, 0)
	atomic.StoreUint32(&globalState.isShutdown, 0)
}

// SendResponse sends a response message using the global transport.
func SendResponse(responseName string, args func(output protocol.OutputBuffer)) {
	if globalTransport == nil {
		return
	}
	cmd, ok := globalRegistry.GetCommandByName(responseName)
	if !ok {
		// all responses are pre-registered at init
		panic("response not registered: " + responseName)
	}
	globalTransport.SendCommand(cmd.ID, args)
}

// Global transport for sending responses (set by the target main).
var globalTransport *protocol.Transport

// SetGlobalTransport sets the transport used for responses.
func SetGlobalTransport(transport *protocol.Transport) {
	globalTransport = transport
}

// resetPending is set when a reset command is received. The actual restart
// happens in the main loop after the ACK is sent.
var resetPending uint32 // atomic bool

// Global reset handler (set by target-specific code).
var globalResetHandler func()

// SetResetHandler sets the platform-specific restart handler.
func SetResetHandler(handler func()) {
	globalResetHandler = handler
}

func handleReset(_ *[]byte) error {
	atomic.StoreUint32(&resetPending, 1)
	return nil
}

// CheckPendingReset runs the restart handler if a reset was requested. Call
// from the main loop after pending messages are flushed.
func CheckPendingReset() {
	if atomic.LoadUint32(&resetPending) != 0 && globalResetHandler != nil {
		globalResetHandler()
	}
}
