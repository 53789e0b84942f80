package core

import (
	"testing"
)

// MockDutyInDriver serves a fixed sequence of duty samples.
type MockDutyInDriver struct {
	samples []uint32
	next    int
}

func (m *MockDutyInDriver) ConfigureChannel(ch DutyInChannel) error {
	return nil
}

func (m *MockDutyInDriver) ReadDuty(ch DutyInChannel) (uint32, error) {
	if m.next >= len(m.samples) {
		return m.samples[len(m.samples)-1], nil
	}
	v := m.samples[m.next]
	m.next++
	return v, nil
}

func TestConfigDutyIn(t *testing.T) {
	SetDutyInDriver(&MockDutyInDriver{samples: []uint32{0}})

	data := encodeArgs(20, 2)
	if err := handleConfigDutyIn(&data); err != nil {
		t.Fatalf("config_duty_in failed: %v", err)
	}

	din, exists := dutyInputs[20]
	if !exists {
		t.Fatal("Duty input not registered")
	}
	if din.Channel != 2 {
		t.Errorf("Expected channel 2, got %d", din.Channel)
	}
}

func TestQueryDutyInSamples(t *testing.T) {
	SetDutyInDriver(&MockDutyInDriver{samples: []uint32{40, 44, 48, 52}})

	data := encodeArgs(21, 3)
	if err := handleConfigDutyIn(&data); err != nil {
		t.Fatalf("config_duty_in failed: %v", err)
	}

	SetTime(10000)

	// oid clock sample_ticks sample_count rest_ticks max_value range_check_count
	data = encodeArgs(21, 10000, 10, 4, 1000, 0, 0)
	if err := handleQueryDutyIn(&data); err != nil {
		t.Fatalf("query_duty_in failed: %v", err)
	}

	din := dutyInputs[21]
	if din.State != DutyInStateSampling {
		t.Fatal("Duty input not sampling after query")
	}

	// four samples 10 ticks apart complete one reporting cycle
	for i := 0; i < 4; i++ {
		ProcessTimers()
		AdvanceTime(10)
	}

	if got := DutyInValue(); got != 46 {
		t.Errorf("Expected averaged duty 46, got %d", got)
	}

	UnscheduleTimer(&din.Timer)
}

func TestQueryDutyInZeroCountStops(t *testing.T) {
	SetDutyInDriver(&MockDutyInDriver{samples: []uint32{10}})

	data := encodeArgs(22, 0)
	if err := handleConfigDutyIn(&data); err != nil {
		t.Fatalf("config_duty_in failed: %v", err)
	}

	data = encodeArgs(22, 10000, 10, 0, 1000, 0, 0)
	if err := handleQueryDutyIn(&data); err != nil {
		t.Fatalf("query_duty_in failed: %v", err)
	}

	if dutyInputs[22].State != DutyInStateReady {
		t.Error("sample_count=0 should leave the channel idle")
	}
}

func TestDutyInRangeCheckShutsDown(t *testing.T) {
	defer ResetFirmwareState()

	SetGPIODriver(NewMockGPIODriver())
	SetDutyInDriver(&MockDutyInDriver{samples: []uint32{500, 500, 500, 500}})

	data := encodeArgs(23, 1)
	if err := handleConfigDutyIn(&data); err != nil {
		t.Fatalf("config_duty_in failed: %v", err)
	}

	SetTime(20000)

	// single-sample cycles, max_value 200, two strikes
	data = encodeArgs(23, 20000, 10, 1, 100, 200, 2)
	if err := handleQueryDutyIn(&data); err != nil {
		t.Fatalf("query_duty_in failed: %v", err)
	}

	ProcessTimers()
	if IsShutdown() {
		t.Fatal("Shutdown after a single out-of-range sample")
	}

	AdvanceTime(100)
	ProcessTimers()
	if !IsShutdown() {
		t.Error("No shutdown after repeated out-of-range samples")
	}

	UnscheduleTimer(&dutyInputs[23].Timer)
}
