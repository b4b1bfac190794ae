package serial

import (
	"errors"
	"io"
	"sync"
	"time"

	"nightfall/protocol"
)

// DefaultAsyncBuffer is the receive FIFO size of an AsyncReader
const DefaultAsyncBuffer = 4096

// AsyncReader turns a blocking reader into the non-blocking reader the
// control loop polls. A goroutine copies bytes into a FIFO; Read returns
// whatever is buffered without waiting.
type AsyncReader struct {
	src io.Reader

	mu      sync.Mutex
	fifo    *protocol.FifoBuffer
	overrun uint32
	err     error

	done chan struct{}
}

// NewAsyncReader starts the reader goroutine
func NewAsyncReader(src io.Reader, size int) *AsyncReader {
	if size <= 0 {
		size = DefaultAsyncBuffer
	}
	a := &AsyncReader{
		src:  src,
		fifo: protocol.NewFifoBuffer(size),
		done: make(chan struct{}),
	}
	go a.readerLoop()
	return a
}

func (a *AsyncReader) readerLoop() {
	defer close(a.done)

	buf := make([]byte, 256)
	for {
		n, err := a.src.Read(buf)
		if n > 0 {
			a.mu.Lock()
			written := a.fifo.Write(buf[:n])
			if written < n {
				// The loop fell behind; the line assembler drops the torn line
				a.overrun += uint32(n - written)
			}
			a.mu.Unlock()
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				a.setErr(io.EOF)
				return
			}
			a.setErr(err)
			// Serial errors are usually transient (unplugged adapter, noise)
			time.Sleep(10 * time.Millisecond)
			continue
		}
	}
}

func (a *AsyncReader) setErr(err error) {
	a.mu.Lock()
	a.err = err
	a.mu.Unlock()
}

// Read copies buffered bytes into p and never blocks. Once the source has
// ended and the FIFO is empty it returns io.EOF.
func (a *AsyncReader) Read(p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := a.fifo.Read(p)
	if n == 0 && a.err == io.EOF {
		return 0, io.EOF
	}
	return n, nil
}

// Buffered returns the number of bytes waiting in the FIFO
func (a *AsyncReader) Buffered() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fifo.Available()
}

// Overrun returns how many bytes were discarded because the FIFO was full
func (a *AsyncReader) Overrun() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.overrun
}

// Err returns the last error reported by the source
func (a *AsyncReader) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Done is closed when the reader goroutine has exited
func (a *AsyncReader) Done() <-chan struct{} {
	return a.done
}
