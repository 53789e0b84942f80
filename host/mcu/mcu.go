// Package mcu implements the host side of an MCU connection: dictionary
// retrieval and command sending by name.
package mcu

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/FHW-Appel/asic-pwm-inout-test/host/serial"
	"github.com/FHW-Appel/asic-pwm-inout-test/protocol"
)

// MCU represents a connection to a pulse generator MCU
type MCU struct {
	transport *protocol.HostTransport
	port      serial.Port

	// Dictionary data
	dictionary     *Dictionary
	dictionaryData []byte

	connected bool
}

// Dictionary represents the parsed MCU dictionary
type Dictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]string         `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations,omitempty"`
}

// NewMCU creates a new MCU instance (not yet connected)
func NewMCU() *MCU {
	return &MCU{
		connected: false,
	}
}

// Connect connects to an MCU via serial port
func (m *MCU) Connect(device string) error {
	return m.ConnectWithConfig(serial.DefaultConfig(device))
}

// ConnectWithConfig connects to an MCU with a custom serial config
func (m *MCU) ConnectWithConfig(cfg *serial.Config) error {
	port, err := serial.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}

	// Give the MCU time to initialize if it just powered on
	m.ConnectPort(port)
	time.Sleep(100 * time.Millisecond)

	return nil
}

// ConnectPort attaches to an already-open port. Simulated targets use this
// to connect over in-memory pipes.
func (m *MCU) ConnectPort(port serial.Port) {
	m.port = port
	m.transport = protocol.NewHostTransport(port)
	m.connected = true

	m.transport.SetResponseHandler(m.handleResponse)
}

// Close closes the connection to the MCU
func (m *MCU) Close() error {
	if m.transport != nil {
		if err := m.transport.Close(); err != nil {
			return err
		}
	}
	m.connected = false
	return nil
}

// RetrieveDictionary retrieves the complete dictionary from the MCU. The
// dictionary arrives in chunks via identify; an empty chunk marks the end.
func (m *MCU) RetrieveDictionary() error {
	if !m.connected {
		return fmt.Errorf("not connected to MCU")
	}

	var dictBuffer bytes.Buffer
	offset := uint32(0)
	chunkSize := uint8(40)
	maxIterations := 1000 // safety limit

	for i := 0; i < maxIterations; i++ {
		chunk, err := m.sendIdentify(offset, chunkSize)
		if err != nil {
			return fmt.Errorf("failed to retrieve dictionary chunk at offset %d: %w", offset, err)
		}

		if len(chunk) == 0 {
			break
		}

		dictBuffer.Write(chunk)
		offset += uint32(len(chunk))

		if len(chunk) < int(chunkSize) {
			break
		}
	}

	m.dictionaryData = dictBuffer.Bytes()

	// The firmware serves the dictionary zlib-compressed
	decompressed, err := m.tryDecompress(m.dictionaryData)
	if err == nil && len(decompressed) > 0 {
		m.dictionaryData = decompressed
	}

	if err := m.parseDictionary(); err != nil {
		return fmt.Errorf("failed to parse dictionary: %w", err)
	}

	return nil
}

// sendIdentify sends an identify command and waits for response
func (m *MCU) sendIdentify(offset uint32, count uint8) ([]byte, error) {
	// identify is hardcoded to command ID 1; the dictionary that would name
	// it is what we are retrieving
	err := m.transport.SendCommand(1, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQUint(output, uint32(count))
	})

	if err != nil {
		return nil, fmt.Errorf("failed to send identify command: %w", err)
	}

	resp, err := m.transport.ReceiveResponse(1 * time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to receive identify response: %w", err)
	}

	payload := resp.Payload

	// identify_response is hardcoded to ID 0
	cmdID, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response command ID: %w", err)
	}

	if cmdID != 0 {
		return nil, fmt.Errorf("unexpected response command ID: %d (expected 0)", cmdID)
	}

	respOffset, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response offset: %w", err)
	}

	if respOffset != offset {
		return nil, fmt.Errorf("offset mismatch: expected %d, got %d", offset, respOffset)
	}

	data, err := protocol.DecodeVLQBytes(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response data: %w", err)
	}

	return data, nil
}

// tryDecompress decompresses a zlib-compressed dictionary. Uncompressed
// dictionaries pass through the caller unchanged.
func (m *MCU) tryDecompress(data []byte) ([]byte, error) {
	if len(data) < 2 || data[0] != 0x78 {
		return nil, fmt.Errorf("not zlib compressed")
	}

	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("invalid zlib stream: %w", err)
	}
	defer r.Close()

	return io.ReadAll(r)
}

// parseDictionary parses the dictionary JSON
func (m *MCU) parseDictionary() error {
	dict := &Dictionary{}
	if err := json.Unmarshal(m.dictionaryData, dict); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	m.dictionary = dict
	return nil
}

// handleResponse handles async responses from the MCU. Synchronous callers
// read from the response channel instead.
func (m *MCU) handleResponse(cmdID uint16, data *[]byte) error {
	return nil
}

// GetDictionary returns the parsed dictionary
func (m *MCU) GetDictionary() *Dictionary {
	return m.dictionary
}

// GetDictionaryRaw returns the raw dictionary data
func (m *MCU) GetDictionaryRaw() []byte {
	return m.dictionaryData
}

// PrintDictionary prints a summary of the dictionary
func (m *MCU) PrintDictionary() {
	if m.dictionary == nil {
		fmt.Println("No dictionary loaded")
		return
	}

	fmt.Println("=== MCU Dictionary ===")
	fmt.Printf("Version: %s\n", m.dictionary.Version)
	fmt.Printf("Build: %s\n", m.dictionary.BuildVersions)

	fmt.Println("\nConfig:")
	for k, v := range m.dictionary.Config {
		fmt.Printf("  %s = %s\n", k, v)
	}

	fmt.Printf("\nCommands (%d):\n", len(m.dictionary.Commands))
	for name, id := range m.dictionary.Commands {
		fmt.Printf("  [%d] %s\n", id, name)
	}

	fmt.Printf("\nResponses (%d):\n", len(m.dictionary.Responses))
	for name, id := range m.dictionary.Responses {
		fmt.Printf("  [%d] %s\n", id, name)
	}

	if len(m.dictionary.Enumerations) > 0 {
		fmt.Printf("\nEnumerations (%d):\n", len(m.dictionary.Enumerations))
		for name, values := range m.dictionary.Enumerations {
			fmt.Printf("  %s: %d values\n", name, len(values))
		}
	}
}

// CommandID looks up a command's ID by its name in the dictionary. Command
// names in the dictionary include the format string; matching is on the
// leading name token.
func (m *MCU) CommandID(name string) (uint16, bool) {
	if m.dictionary == nil {
		return 0, false
	}
	for fullName, id := range m.dictionary.Commands {
		if fullName == name || (len(fullName) > len(name) &&
			fullName[:len(name)] == name && fullName[len(name)] == ' ') {
			return uint16(id), true
		}
	}
	return 0, false
}

// ResponseName looks up a response's name token by ID.
func (m *MCU) ResponseName(id uint16) (string, bool) {
	if m.dictionary == nil {
		return "", false
	}
	for fullName, respID := range m.dictionary.Responses {
		if respID == int(id) {
			for i := 0; i < len(fullName); i++ {
				if fullName[i] == ' ' {
					return fullName[:i], true
				}
			}
			return fullName, true
		}
	}
	return "", false
}

// SendCommand sends a command to the MCU by name
func (m *MCU) SendCommand(name string, args func(output protocol.OutputBuffer)) error {
	if !m.connected {
		return fmt.Errorf("not connected to MCU")
	}

	cmdID, ok := m.CommandID(name)
	if !ok {
		return fmt.Errorf("unknown command: %s", name)
	}

	return m.transport.SendCommand(cmdID, args)
}

// ReceiveResponse waits for the next response message from the MCU
func (m *MCU) ReceiveResponse(timeout time.Duration) (*protocol.Message, error) {
	if !m.connected {
		return nil, fmt.Errorf("not connected to MCU")
	}
	return m.transport.ReceiveResponse(timeout)
}

// IsConnected returns whether the MCU is connected
func (m *MCU) IsConnected() bool {
	return m.connected
}
