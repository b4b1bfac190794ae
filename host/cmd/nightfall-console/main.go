package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"nightfall/host/mcu"
	"nightfall/host/serial"
	"nightfall/protocol"
)

var (
	device  = flag.String("device", "/dev/ttyUSB0", "Serial device path")
	baud    = flag.Int("baud", 115200, "Baud rate")
	verbose = flag.Bool("verbose", false, "Print every heartbeat")
)

// resendPeriod keeps the node's watchdog fed while a drive frame is held
const resendPeriod = 100 * time.Millisecond

// driveHold repeats the last drive frame until it is replaced
type driveHold struct {
	mu    sync.Mutex
	frame protocol.DriveFrame
	on    bool
}

func (d *driveHold) set(f protocol.DriveFrame) {
	d.mu.Lock()
	d.frame, d.on = f, !f.IsZero()
	d.mu.Unlock()
}

func (d *driveHold) get() (protocol.DriveFrame, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frame, d.on
}

func main() {
	flag.Parse()

	fmt.Println("Nightfall Console - serial link bench tool")
	fmt.Println("==========================================")
	fmt.Println()

	conn := mcu.NewMCU()
	cfg := serial.DefaultConfig(*device)
	cfg.Baud = *baud

	fmt.Printf("Connecting to node on %s...\n", *device)
	if err := conn.ConnectWithConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()
	fmt.Println("Connected successfully!")

	if *verbose {
		conn.OnHeartbeat = func(hb protocol.HeartbeatFrame) {
			fmt.Printf("\n< %s\n> ", heartbeatString(hb))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go conn.Listen(ctx)

	hold := &driveHold{}
	go resendLoop(ctx, conn, hold)

	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := parts[0]

		switch cmd {
		case "quit", "exit", "q":
			hold.set(protocol.DriveFrame{})
			conn.SendDrive(protocol.DriveFrame{})
			fmt.Println("Goodbye!")
			return

		case "help", "?":
			printHelp()

		case "drive", "d":
			frame, err := parseDrive(parts[1:])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				continue
			}
			hold.set(frame)
			if err := conn.SendDrive(frame); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		case "stop", "s":
			hold.set(protocol.DriveFrame{})
			if err := conn.SendCommand(protocol.LinkStop); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		case "estop":
			hold.set(protocol.DriveFrame{})
			if err := conn.SendCommand(protocol.LinkEmergencyStop); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		case "reset":
			if err := conn.SendCommand(protocol.LinkEmergencyReset); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		case "raw":
			// Send an arbitrary line, e.g. raw {"L":10}
			if err := sendRaw(conn, strings.TrimSpace(strings.TrimPrefix(line, cmd))); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		case "hb", "status":
			printStatus(conn)

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
	fmt.Println("  help              - Show this help message")
	fmt.Println("  drive L R [CL CR] - Hold a drive frame (centre groups default to L/R)")
	fmt.Println("  stop              - Release the held frame and send a stop")
	fmt.Println("  estop             - Send emergency_stop")
	fmt.Println("  reset             - Send emergency_reset")
	fmt.Println("  raw <line>        - Send one raw line")
	fmt.Println("  hb/status         - Show the last heartbeat and link counters")
	fmt.Println("  quit/exit/q       - Exit the program")
	fmt.Println()
}

func parseDrive(args []string) (protocol.DriveFrame, error) {
	var f protocol.DriveFrame
	if len(args) != 2 && len(args) != 4 {
		return f, fmt.Errorf("usage: drive L R [CL CR]")
	}
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return f, fmt.Errorf("bad speed %q", a)
		}
		f[i] = protocol.Clamp(v)
	}
	if len(args) == 2 {
		f[protocol.CenterLeft] = f[protocol.FrontLeft]
		f[protocol.CenterRight] = f[protocol.FrontRight]
	}
	return f, nil
}

func sendRaw(conn *mcu.MCU, line string) error {
	if line == "" {
		return fmt.Errorf("usage: raw <line>")
	}
	msg, err := protocol.DecodeLine([]byte(line))
	if err != nil {
		return err
	}
	switch msg.Kind {
	case protocol.KindDrive:
		return conn.SendDrive(msg.Drive.Resolve(protocol.DriveFrame{}, protocol.MissingAsZero))
	case protocol.KindLink:
		return conn.SendCommand(msg.Command)
	}
	return fmt.Errorf("cannot send a %s line", msg.Kind)
}

func resendLoop(ctx context.Context, conn *mcu.MCU, hold *driveHold) {
	ticker := time.NewTicker(resendPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if f, on := hold.get(); on {
				conn.SendDrive(f)
			}
		}
	}
}

func printStatus(conn *mcu.MCU) {
	heartbeats, decodeErrors, link := conn.Stats()
	fmt.Printf("Lines in=%d out=%d dropped=%d, heartbeats=%d, decode errors=%d\n",
		link.LinesIn, link.LinesOut, link.LinesDropped, heartbeats, decodeErrors)

	hb, at, ok := conn.LastHeartbeat()
	if !ok {
		fmt.Println("No heartbeat received yet")
		return
	}
	fmt.Printf("Last heartbeat %v ago: %s\n", time.Since(at).Round(time.Millisecond), heartbeatString(hb))
}

func heartbeatString(hb protocol.HeartbeatFrame) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s uptime=%dms", hb.Source, hb.Uptime)
	if hb.LeftSpeed != nil && hb.RightSpeed != nil {
		fmt.Fprintf(&b, " L=%d R=%d", *hb.LeftSpeed, *hb.RightSpeed)
	}
	if hb.Emergency {
		fmt.Fprintf(&b, " EMERGENCY (%s)", hb.Reason)
	}
	return b.String()
}
