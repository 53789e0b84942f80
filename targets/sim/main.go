// Simulated target: runs the firmware core with in-memory GPIO and a host
// connected over an in-memory pipe instead of a serial port. Useful for
// exercising the full command path and inspecting generated waveforms.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/FHW-Appel/asic-pwm-inout-test/core"
	"github.com/FHW-Appel/asic-pwm-inout-test/host/mcu"
	"github.com/FHW-Appel/asic-pwm-inout-test/protocol"
	"github.com/FHW-Appel/asic-pwm-inout-test/pwm"
	"github.com/FHW-Appel/asic-pwm-inout-test/trace"
)

var (
	pin       = flag.Uint("pin", 40, "Output pin number")
	prescaler = flag.Uint("prescaler", pwm.TestPrescalerMax, "Prescaler wrap value")
	duty      = flag.Uint("duty", 50, "Register-sourced duty value")
	invert    = flag.Bool("invert", false, "Invert output polarity")
	pinDuty   = flag.Uint("pin-duty", 0, "Pin-sourced duty value (selects the pin source when set)")
	reports   = flag.Int("reports", 5, "Number of pulse_out_state reports to collect")
	tracePath = flag.String("trace", "", "Write the output waveform to this WAV file")
	verbose   = flag.Bool("verbose", false, "Enable firmware debug output")
)

var (
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	transport    *protocol.Transport

	gpio    *SimGPIODriver
	devPort *pipePort
)

func main() {
	flag.Parse()

	gpio = NewSimGPIODriver()
	core.SetGPIODriver(gpio)
	core.SetDutyInDriver(&SimDutyInDriver{Value: uint32(*pinDuty)})

	core.SetDebugWriter(func(s string) { fmt.Fprintln(os.Stderr, s) })
	core.SetDebugEnabled(*verbose)

	core.InitCoreCommands()
	core.InitGPIOCommands()
	core.InitPulseOutCommands()
	core.InitDutyInCommands()
	core.GetGlobalDictionary().BuildDictionary()

	var hostPort *pipePort
	devPort, hostPort = newPipePair()

	inputBuffer = protocol.NewFifoBuffer(512)
	outputBuffer = protocol.NewScratchOutput()
	transport = protocol.NewTransport(outputBuffer, core.DispatchCommand)
	transport.SetFlushCallback(flushOutput)
	core.SetGlobalTransport(transport)

	// feed bytes from the host into the firmware input buffer
	rxChan := make(chan []byte, 16)
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := devPort.Read(buf)
			if err != nil {
				close(rxChan)
				return
			}
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			rxChan <- chunk
		}
	}()

	done := make(chan struct{})
	go runScenario(hostPort, done)

	var recorder *trace.Recorder
	if *tracePath != "" {
		rate := core.ClockFreq / (int(*prescaler) + 1)
		recorder = trace.NewRecorder(rate)
	}

	// tick loop: one iteration per sample tick
	step := uint32(*prescaler) + 1
	running := true
	for running {
		idle := true
		select {
		case chunk, ok := <-rxChan:
			if ok {
				inputBuffer.Write(chunk)
				transport.Receive(inputBuffer)
				idle = false
			}
		case <-done:
			running = false
		default:
		}

		core.AdvanceTime(step)
		core.TickPulseOuts(step)
		core.ProcessTimers()
		flushOutput()
		core.CheckPendingReset()

		if recorder != nil {
			level, _ := gpio.GetPin(core.GPIOPin(*pin))
			recorder.Append(level)
		}

		if idle {
			time.Sleep(10 * time.Microsecond)
		}
	}

	printSummary()

	if recorder != nil {
		if err := recorder.WriteWAV(*tracePath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Trace written: %s (%d samples at %dHz)\n",
			*tracePath, recorder.Len(), recorder.SampleRate())
	}
}

// flushOutput drains the firmware output buffer into the pipe.
func flushOutput() {
	data := outputBuffer.Result()
	if len(data) == 0 {
		return
	}
	out := make([]byte, len(data))
	copy(out, data)
	outputBuffer.Reset()
	_, _ = devPort.Write(out)
}

// runScenario plays the host side: configure a generator, start it, collect
// state reports, then stop the firmware.
func runScenario(port *pipePort, done chan struct{}) {
	defer close(done)

	m := mcu.NewMCU()
	m.ConnectPort(port)
	defer m.Close()

	if err := m.RetrieveDictionary(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	dict := m.GetDictionary()
	fmt.Printf("Firmware: %s (%d commands, %d responses)\n",
		dict.Version, len(dict.Commands), len(dict.Responses))

	send := func(name string, vals ...uint32) bool {
		err := m.SendCommand(name, func(output protocol.OutputBuffer) {
			for _, v := range vals {
				protocol.EncodeVLQUint(output, v)
			}
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", name, err)
			return false
		}
		return true
	}

	if !send("config_pulse_out", 0, uint32(*pin), uint32(*prescaler), boolArg(*invert)) {
		return
	}
	if !send("set_pulse_duty", 0, uint32(*duty)) {
		return
	}

	if *pinDuty != 0 {
		if !send("config_duty_in", 1, 0) {
			return
		}
		// sample the pin source every cycle
		cycle := uint32(pwm.CycleTicks) * (uint32(*prescaler) + 1)
		if !send("query_duty_in", 1, core.GetTime()+cycle, 10, 4, cycle, 0, 0) {
			return
		}
		if !send("set_pulse_control", 0, 1, boolArg(*invert)) {
			return
		}
	}

	// pulse reset so the generator latches the duty before starting
	if !send("set_pulse_reset", 0, 1) {
		return
	}
	if !send("set_pulse_reset", 0, 0) {
		return
	}

	// one report per pulse cycle
	restTicks := uint32(pwm.CycleTicks) * (uint32(*prescaler) + 1)
	if !send("query_pulse_out", 0, restTicks) {
		return
	}

	for i := 0; i < *reports; i++ {
		resp, err := m.ReceiveResponse(5 * time.Second)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return
		}
		printPulseState(resp)
	}

	send("query_pulse_out", 0, 0)
	send("emergency_stop")
}

func boolArg(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// printPulseState decodes and prints one pulse_out_state response.
func printPulseState(resp *protocol.Message) {
	payload := resp.Payload
	if _, err := protocol.DecodeVLQUint(&payload); err != nil {
		return
	}
	oid, _ := protocol.DecodeVLQUint(&payload)
	clock, _ := protocol.DecodeVLQUint(&payload)
	position, _ := protocol.DecodeVLQUint(&payload)
	duty, _ := protocol.DecodeVLQUint(&payload)
	level, _ := protocol.DecodeVLQUint(&payload)
	fmt.Printf("pulse_out_state: oid=%d clock=%d position=%d duty=%d level=%d\n",
		oid, clock, position, duty, level)
}

// printSummary reports the pulse widths measured on the output pin.
func printSummary() {
	transitions := gpio.Transitions(core.GPIOPin(*pin))
	fmt.Printf("Recorded %d edges on pin %d\n", len(transitions), *pin)

	sampleTicks := uint32(*prescaler) + 1
	shown := 0
	var riseTick uint32
	haveRise := false
	for _, tr := range transitions {
		if tr.Level {
			riseTick = tr.Tick
			haveRise = true
		} else if haveRise {
			width := (tr.Tick - riseTick) / sampleTicks
			fmt.Printf("  pulse width: %d sample ticks\n", width)
			haveRise = false
			shown++
			if shown >= 5 {
				break
			}
		}
	}
}
