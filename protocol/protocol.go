// Package protocol implements the framed host/MCU communication protocol:
// VLQ-encoded message payloads wrapped in length/sequence/CRC frames.
package protocol

// Version identifies the firmware build in the data dictionary.
const Version = "pwmio-0.1.0"

// Protocol constants
const (
	MessageMax     = 512 // Maximum output buffer size
	MessageMin     = 5   // Minimum message size (header + CRC)
	MessageHeader  = 2   // Message header size
	MessageTrailer = 3   // Message trailer size (CRC + sync)

	// Message sequence masks
	MessageSeqMask  = 0x0F
	MessageSeqShift = 4
)

// MessageBlock represents one framed message
type MessageBlock struct {
	Length   uint8
	Sequence uint8
	Data     []byte
	CRC      uint16
}
