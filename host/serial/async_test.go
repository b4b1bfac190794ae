package serial

import (
	"errors"
	"io"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for condition")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestAsyncReaderNonBlocking(t *testing.T) {
	pr, pw := io.Pipe()
	a := NewAsyncReader(pr, 64)

	buf := make([]byte, 16)
	n, err := a.Read(buf)
	if n != 0 || err != nil {
		t.Fatalf("Empty reader should return 0, nil; got %d, %v", n, err)
	}

	go pw.Write([]byte("{\"L\":1}\n"))
	waitFor(t, func() bool { return a.Buffered() == 8 })

	n, _ = a.Read(buf)
	if string(buf[:n]) != "{\"L\":1}\n" {
		t.Errorf("Unexpected data %q", buf[:n])
	}

	pw.Close()
	<-a.Done()
	if _, err := a.Read(buf); !errors.Is(err, io.EOF) {
		t.Errorf("Expected EOF after the source closed, got %v", err)
	}
}

func TestAsyncReaderOverrun(t *testing.T) {
	pr, pw := io.Pipe()
	a := NewAsyncReader(pr, 8)

	go func() {
		pw.Write([]byte("0123456789abcdef"))
		pw.Close()
	}()
	<-a.Done()

	// A FIFO of size 8 holds 7 bytes
	if a.Buffered() != 7 || a.Overrun() != 9 {
		t.Errorf("Expected 7 buffered / 9 overrun, got %d / %d", a.Buffered(), a.Overrun())
	}
}

func TestPipe(t *testing.T) {
	master, slave := Pipe()
	in := NewAsyncReader(slave, 0)

	if _, err := master.Write([]byte("{\"cmd\":\"stop\"}\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	waitFor(t, func() bool { return in.Buffered() > 0 })

	master.Close()
	<-in.Done()
	if in.Err() != io.EOF {
		t.Errorf("Expected EOF on the far end, got %v", in.Err())
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/dev/ttyUSB0")
	if cfg.Baud != 115200 || cfg.ReadTimeout != 100 {
		t.Errorf("Expected 115200 / 100 ms, got %d / %d", cfg.Baud, cfg.ReadTimeout)
	}
	if _, err := Open(nil); err == nil {
		t.Error("Expected error for nil config")
	}
}
