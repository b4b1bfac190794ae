//go:build rp2040 || rp2350

package main

import (
	"machine"
	"time"

	"nightfall/protocol"
)

// Inter-controller UART wiring
var (
	linkUART = machine.UART1
	linkTX   = machine.GPIO20
	linkRX   = machine.GPIO21
)

// uartLink moves bytes between UART1 and the control loop. A reader
// goroutine fills rx; the loop drains it through Read without blocking.
type uartLink struct {
	uart *machine.UART
	rx   *protocol.FifoBuffer

	overruns    uint32
	writeErrors uint32
}

func newUARTLink(baud uint32) (*uartLink, error) {
	err := linkUART.Configure(machine.UARTConfig{
		BaudRate: baud,
		TX:       linkTX,
		RX:       linkRX,
	})
	if err != nil {
		return nil, err
	}
	return &uartLink{
		uart: linkUART,
		rx:   protocol.NewFifoBuffer(protocol.LineMax * 2),
	}, nil
}

// readerLoop copies received bytes into rx until the firmware stops
func (l *uartLink) readerLoop() {
	// Recover from panics to prevent a firmware crash
	defer func() {
		if r := recover(); r != nil {
			time.Sleep(100 * time.Millisecond)
			go l.readerLoop()
		}
	}()

	var buf [64]byte
	for {
		n := 0
		for n < len(buf) && l.uart.Buffered() > 0 {
			b, err := l.uart.ReadByte()
			if err != nil {
				break
			}
			buf[n] = b
			n++
		}
		if n > 0 {
			if written := l.rx.Write(buf[:n]); written < n {
				// Buffer full; the line assembler drops the torn line
				l.overruns++
			}
		}
		// Yield to avoid a busy loop
		time.Sleep(100 * time.Microsecond)
	}
}

// Read never blocks; it returns zero bytes when nothing is buffered
func (l *uartLink) Read(p []byte) (int, error) {
	return l.rx.Read(p), nil
}

func (l *uartLink) Write(p []byte) (int, error) {
	n, err := l.uart.Write(p)
	if err != nil {
		l.writeErrors++
	}
	return n, err
}
