package core

import (
	"bytes"
	"testing"

	"github.com/FHW-Appel/asic-pwm-inout-test/protocol"
)

func TestIdentifyServesDictionaryChunks(t *testing.T) {
	oldRegistry := globalRegistry
	oldDictionary := globalDictionary
	globalRegistry = NewCommandRegistry()
	globalDictionary = NewDictionary(globalRegistry)
	defer func() {
		globalRegistry = oldRegistry
		globalDictionary = oldDictionary
	}()

	InitCoreCommands()
	globalDictionary.BuildDictionary()

	out := protocol.NewScratchOutput()
	SetGlobalTransport(protocol.NewTransport(out, nil))
	defer SetGlobalTransport(nil)

	data := encodeArgs(0, 40)
	if err := handleIdentify(&data); err != nil {
		t.Fatalf("identify failed: %v", err)
	}

	// parse the emitted frame: header, payload, CRC, sync
	frame := out.Result()
	if len(frame) < protocol.MessageLengthMin {
		t.Fatalf("Frame too short: %d bytes", len(frame))
	}
	payload := frame[protocol.MessageHeaderSize : len(frame)-protocol.MessageTrailerSize]

	cmdID, err := protocol.DecodeVLQUint(&payload)
	if err != nil || cmdID != 0 {
		t.Fatalf("Expected identify_response ID 0, got %d (err %v)", cmdID, err)
	}
	offset, err := protocol.DecodeVLQUint(&payload)
	if err != nil || offset != 0 {
		t.Fatalf("Expected offset 0, got %d (err %v)", offset, err)
	}
	chunk, err := protocol.DecodeVLQBytes(&payload)
	if err != nil {
		t.Fatalf("Failed to decode chunk: %v", err)
	}

	want := globalDictionary.GetChunk(0, 40)
	if !bytes.Equal(chunk, want) {
		t.Error("identify_response chunk does not match the dictionary")
	}
}

func TestConfigCRCLifecycle(t *testing.T) {
	defer ResetFirmwareState()

	data := encodeArgs(0xDEAD)
	if err := handleFinalizeConfig(&data); err != nil {
		t.Fatalf("finalize_config failed: %v", err)
	}
	if got := globalState.configCRC; got != 0xDEAD {
		t.Errorf("Expected config CRC 0xDEAD, got 0x%X", got)
	}

	var empty []byte
	if err := handleConfigReset(&empty); err != nil {
		t.Fatalf("config_reset failed: %v", err)
	}
	if globalState.configCRC != 0 {
		t.Error("config_reset did not clear the CRC")
	}
}

func TestEmergencyStopShutsDownPeripherals(t *testing.T) {
	defer ResetFirmwareState()

	mock := NewMockGPIODriver()
	SetGPIODriver(mock)
	SetDutyInDriver(&MockDutyInDriver{samples: []uint32{0}})

	var empty []byte
	if err := handleEmergencyStop(&empty); err != nil {
		t.Fatalf("emergency_stop failed: %v", err)
	}
	if !IsShutdown() {
		t.Error("emergency_stop did not set shutdown state")
	}
}

func TestResetIsDeferred(t *testing.T) {
	var restarted bool
	SetResetHandler(func() { restarted = true })
	defer SetResetHandler(nil)

	var empty []byte
	if err := handleReset(&empty); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if restarted {
		t.Fatal("Reset ran before CheckPendingReset")
	}

	CheckPendingReset()
	if !restarted {
		t.Error("CheckPendingReset did not run the reset handler")
	}
}
