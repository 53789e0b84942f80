package protocol

import "testing"

func TestCRC16Empty(t *testing.T) {
	if crc := CRC16([]byte{}); crc != 0xFFFF {
		t.Errorf("CRC16 of empty input: expected 0xFFFF, got 0x%04X", crc)
	}
}

func TestCRC16Consistency(t *testing.T) {
	// Test that same input produces same output
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05}

	crc1 := CRC16(data)
	crc2 := CRC16(data)

	if crc1 != crc2 {
		t.Errorf("CRC16 not consistent: first=%04X, second=%04X", crc1, crc2)
	}
}

func TestCRC16Different(t *testing.T) {
	// Test that different inputs produce different outputs
	data1 := []byte{0x01, 0x02, 0x03}
	data2 := []byte{0x01, 0x02, 0x04}

	crc1 := CRC16(data1)
	crc2 := CRC16(data2)

	if crc1 == crc2 {
		t.Errorf("CRC16 collision: both inputs produced %04X", crc1)
	}
}

func TestCRC16OrderSensitive(t *testing.T) {
	crc1 := CRC16([]byte{0x01, 0x02})
	crc2 := CRC16([]byte{0x02, 0x01})

	if crc1 == crc2 {
		t.Errorf("CRC16 ignores byte order: both orders produced %04X", crc1)
	}
}

func TestCRC16AckFrame(t *testing.T) {
	// The CRC over an ACK header must match what the frame parser
	// recomputes on receive
	header := []byte{5, MessageDest}
	crc := CRC16(header)

	frame := []byte{
		5,
		MessageDest,
		uint8((crc & 0xFF00) >> 8),
		uint8(crc & 0xFF),
		MessageValueSync,
	}

	frameCRC := uint16(frame[len(frame)-MessageTrailerCRC])<<8 |
		uint16(frame[len(frame)-MessageTrailerCRC+1])
	if frameCRC != CRC16(frame[:len(frame)-MessageTrailerSize]) {
		t.Error("ACK frame CRC does not verify")
	}
}
