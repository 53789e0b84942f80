package core

import (
	"testing"

	"github.com/FHW-Appel/asic-pwm-inout-test/protocol"
)

func TestCommandRegistry(t *testing.T) {
	registry := NewCommandRegistry()

	// Register a command
	var called bool
	handler := func(data *[]byte) error {
		called = true
		return nil
	}

	id := registry.Register("test_command", "arg=%u", handler)

	if id != 0 {
		t.Errorf("Expected first command to have ID 0, got %d", id)
	}

	// Verify command can be retrieved
	cmd, ok := registry.GetCommand(id)
	if !ok {
		t.Error("Failed to retrieve registered command")
	}

	if cmd.Name != "test_command" {
		t.Errorf("Expected command name 'test_command', got '%s'", cmd.Name)
	}

	// Test dispatch
	var data []byte
	err := registry.Dispatch(id, &data)
	if err != nil {
		t.Errorf("Dispatch failed: %v", err)
	}

	if !called {
		t.Error("Command handler was not called")
	}

	// Test unknown command
	err = registry.Dispatch(999, &data)
	if err == nil {
		t.Error("Expected error for unknown command ID")
	}
}

func TestCommandRegistryMultiple(t *testing.T) {
	registry := NewCommandRegistry()

	id1 := registry.Register("command1", "arg1=%u", func(data *[]byte) error { return nil })
	id2 := registry.Register("command2", "arg2=%u", func(data *[]byte) error { return nil })
	id3 := registry.Register("command3", "arg3=%u", func(data *[]byte) error { return nil })

	if id1 != 0 || id2 != 1 || id3 != 2 {
		t.Errorf("Command IDs not sequential: %d, %d, %d", id1, id2, id3)
	}

	// Verify all commands exist
	for i := uint16(0); i < 3; i++ {
		if _, ok := registry.GetCommand(i); !ok {
			t.Errorf("Command %d not found", i)
		}
	}
}

func TestCommandRegistryDuplicateName(t *testing.T) {
	registry := NewCommandRegistry()

	id1 := registry.Register("same_name", "arg=%u", func(data *[]byte) error { return nil })
	id2 := registry.Register("same_name", "arg=%u", func(data *[]byte) error { return nil })

	if id1 != id2 {
		t.Errorf("Duplicate registration changed the ID: %d vs %d", id1, id2)
	}
	if registry.Count() != 1 {
		t.Errorf("Expected 1 registered command, got %d", registry.Count())
	}
}

func TestCommandsAndResponsesSplit(t *testing.T) {
	registry := NewCommandRegistry()

	registry.Register("do_thing", "arg=%u", func(data *[]byte) error { return nil })
	registry.Register("thing_state", "value=%u", nil)

	commands, responses := registry.GetCommandsAndResponses()

	if _, ok := commands["do_thing arg=%u"]; !ok {
		t.Errorf("Command missing from commands map: %v", commands)
	}
	if _, ok := responses["thing_state value=%u"]; !ok {
		t.Errorf("Response missing from responses map: %v", responses)
	}
	if _, ok := commands["thing_state value=%u"]; ok {
		t.Error("Response (nil handler) listed as a command")
	}
}

func TestResponseDispatchFails(t *testing.T) {
	registry := NewCommandRegistry()

	id := registry.Register("only_response", "value=%u", nil)

	var data []byte
	if err := registry.Dispatch(id, &data); err == nil {
		t.Error("Expected error dispatching a response ID")
	}
}

func TestCommandWithArguments(t *testing.T) {
	registry := NewCommandRegistry()

	var receivedValue uint32

	handler := func(data *[]byte) error {
		val, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return err
		}
		receivedValue = val
		return nil
	}

	id := registry.Register("test_args", "value=%u", handler)

	// Create test data
	output := protocol.NewScratchOutput()
	protocol.EncodeVLQUint(output, 12345)
	data := output.Result()

	err := registry.Dispatch(id, &data)
	if err != nil {
		t.Errorf("Dispatch failed: %v", err)
	}

	if receivedValue != 12345 {
		t.Errorf("Expected value 12345, got %d", receivedValue)
	}
}

func TestGlobalRegistry(t *testing.T) {
	id := RegisterCommand("global_test", "arg=%u", func(data *[]byte) error {
		return nil
	})

	cmd, ok := GetGlobalRegistry().GetCommand(id)
	if !ok || cmd.Name != "global_test" {
		t.Error("Global registry did not retain registered command")
	}
}
