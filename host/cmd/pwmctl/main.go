// pwmctl is an interactive console for a pulse generator MCU. It retrieves
// the data dictionary, then drives the pulse outputs from typed commands.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/shlex"

	"github.com/FHW-Appel/asic-pwm-inout-test/host/mcu"
	"github.com/FHW-Appel/asic-pwm-inout-test/host/serial"
	"github.com/FHW-Appel/asic-pwm-inout-test/protocol"
)

var (
	device = flag.String("device", "/dev/ttyACM0", "Serial device path")
	baud   = flag.Int("baud", 250000, "Baud rate (ignored for USB CDC)")
)

func main() {
	flag.Parse()

	mcuConn := mcu.NewMCU()

	cfg := serial.DefaultConfig(*device)
	cfg.Baud = *baud

	fmt.Printf("Connecting to MCU on %s...\n", *device)
	if err := mcuConn.ConnectWithConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer mcuConn.Close()

	if err := mcuConn.RetrieveDictionary(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to retrieve dictionary: %v\n", err)
		os.Exit(1)
	}

	dict := mcuConn.GetDictionary()
	fmt.Printf("Connected: %s (%d commands)\n", dict.Version, len(dict.Commands))

	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		tokens, err := shlex.Split(scanner.Text())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		if len(tokens) == 0 {
			continue
		}

		cmd, args := tokens[0], tokens[1:]

		switch cmd {
		case "quit", "exit", "q":
			return

		case "help", "?":
			printHelp()

		case "dict":
			mcuConn.PrintDictionary()

		case "raw":
			raw := mcuConn.GetDictionaryRaw()
			fmt.Printf("Raw dictionary data (%d bytes):\n%s\n", len(raw), string(raw))

		case "get_uptime", "get_clock", "get_config":
			if err := sendAndReport(mcuConn, cmd, nil); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		case "config":
			// config <oid> <pin> <prescaler> <invert>
			if err := sendUints(mcuConn, "config_pulse_out", args, 4); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		case "duty":
			// duty <oid> <value>
			if err := sendUints(mcuConn, "set_pulse_duty", args, 2); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		case "queue":
			// queue <oid> <clock> <value>
			if err := sendUints(mcuConn, "queue_pulse_duty", args, 3); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		case "control":
			// control <oid> <select_pin> <invert>
			if err := sendUints(mcuConn, "set_pulse_control", args, 3); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		case "reset":
			// reset <oid> <level>
			if err := sendUints(mcuConn, "set_pulse_reset", args, 2); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		case "query":
			// query <oid> <rest_ticks>
			if err := queryPulseOut(mcuConn, args); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		case "estop":
			if err := mcuConn.SendCommand("emergency_stop", nil); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		default:
			fmt.Printf("Unknown command: %s (type 'help' for available commands)\n", cmd)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  help                              - Show this help message")
	fmt.Println("  dict                              - Print dictionary summary")
	fmt.Println("  raw                               - Print raw dictionary data")
	fmt.Println("  get_uptime / get_clock / get_config")
	fmt.Println("  config <oid> <pin> <prescaler> <invert>")
	fmt.Println("  duty <oid> <value>                - Set register-sourced duty")
	fmt.Println("  queue <oid> <clock> <value>       - Schedule a duty write")
	fmt.Println("  control <oid> <select_pin> <invert>")
	fmt.Println("  reset <oid> <level>               - Drive the reset input")
	fmt.Println("  query <oid> <rest_ticks>          - Enable periodic state reports")
	fmt.Println("  estop                             - Emergency stop")
	fmt.Println("  quit/exit/q                       - Exit the program")
	fmt.Println()
}

// parseUints parses exactly want decimal arguments.
func parseUints(args []string, want int) ([]uint32, error) {
	if len(args) != want {
		return nil, fmt.Errorf("expected %d arguments, got %d", want, len(args))
	}
	vals := make([]uint32, len(args))
	for i, a := range args {
		v, err := strconv.ParseUint(a, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad argument %q: %w", a, err)
		}
		vals[i] = uint32(v)
	}
	return vals, nil
}

// sendUints sends a command whose arguments are all VLQ uints.
func sendUints(m *mcu.MCU, name string, args []string, want int) error {
	vals, err := parseUints(args, want)
	if err != nil {
		return err
	}
	return m.SendCommand(name, func(output protocol.OutputBuffer) {
		for _, v := range vals {
			protocol.EncodeVLQUint(output, v)
		}
	})
}

// sendAndReport sends a no-argument command and prints the next response.
func sendAndReport(m *mcu.MCU, name string, args func(protocol.OutputBuffer)) error {
	if err := m.SendCommand(name, args); err != nil {
		return err
	}

	resp, err := m.ReceiveResponse(1 * time.Second)
	if err != nil {
		return err
	}

	payload := resp.Payload
	cmdID, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return err
	}

	respName, _ := m.ResponseName(uint16(cmdID))
	fmt.Printf("%s:", respName)
	for len(payload) > 0 {
		v, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			break
		}
		fmt.Printf(" %d", v)
	}
	fmt.Println()
	return nil
}

// queryPulseOut enables periodic reports and prints the first one.
func queryPulseOut(m *mcu.MCU, args []string) error {
	vals, err := parseUints(args, 2)
	if err != nil {
		return err
	}

	err = m.SendCommand("query_pulse_out", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, vals[0])
		protocol.EncodeVLQUint(output, vals[1])
	})
	if err != nil {
		return err
	}

	if vals[1] == 0 {
		fmt.Println("Reports disabled")
		return nil
	}

	resp, err := m.ReceiveResponse(2 * time.Second)
	if err != nil {
		return err
	}

	payload := resp.Payload
	if _, err := protocol.DecodeVLQUint(&payload); err != nil {
		return err
	}
	oid, _ := protocol.DecodeVLQUint(&payload)
	clock, _ := protocol.DecodeVLQUint(&payload)
	position, _ := protocol.DecodeVLQUint(&payload)
	duty, _ := protocol.DecodeVLQUint(&payload)
	level, _ := protocol.DecodeVLQUint(&payload)
	fmt.Printf("pulse_out_state: oid=%d clock=%d position=%d duty=%d level=%d\n",
		oid, clock, position, duty, level)
	return nil
}
