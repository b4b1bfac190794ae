package protocol

// FifoBuffer is a circular buffer for serial I/O
type FifoBuffer struct {
	buf   []byte
	read  int
	write int
	size  int
}

// NewFifoBuffer creates a new FifoBuffer with the specified capacity
func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{
		buf:  make([]byte, capacity),
		size: capacity,
	}
}

// Write appends data to the FIFO buffer
func (f *FifoBuffer) Write(data []byte) int {
	written := 0
	for _, b := range data {
		nextWrite := (f.write + 1) % f.size
		if nextWrite == f.read {
			// Buffer full
			break
		}
		f.buf[f.write] = b
		f.write = nextWrite
		written++
	}
	return written
}

// Read reads up to len(data) bytes from the FIFO buffer
func (f *FifoBuffer) Read(data []byte) int {
	read := 0
	for i := range data {
		if f.read == f.write {
			break
		}
		data[i] = f.buf[f.read]
		f.read = (f.read + 1) % f.size
		read++
	}
	return read
}

// Available returns the number of bytes available for reading
func (f *FifoBuffer) Available() int {
	if f.write >= f.read {
		return f.write - f.read
	}
	return f.size - f.read + f.write
}

// Free returns the number of bytes available for writing
func (f *FifoBuffer) Free() int {
	return f.size - f.Available() - 1
}

// IsEmpty returns true if the buffer is empty
func (f *FifoBuffer) IsEmpty() bool {
	return f.read == f.write
}

// Reset clears the buffer
func (f *FifoBuffer) Reset() {
	f.read = 0
	f.write = 0
}

// LineAssembler accumulates bytes into newline-terminated lines.
// A partial line that does not complete within the timeout is discarded,
// as is any line longer than the configured maximum.
type LineAssembler struct {
	buf      []byte
	max      int
	timeout  uint32
	started  uint32
	partial  bool
	overflow bool
	dropped  uint32 // Lines discarded by timeout or overflow
}

// NewLineAssembler creates an assembler for lines up to max bytes
func NewLineAssembler(max int, timeoutMs uint32) *LineAssembler {
	if max <= 0 {
		max = LineMax
	}
	return &LineAssembler{
		buf:     make([]byte, 0, max),
		max:     max,
		timeout: timeoutMs,
	}
}

// Feed consumes data received at time now (ms), calling fn once per complete line.
// The slice passed to fn is only valid for the duration of the call.
func (a *LineAssembler) Feed(data []byte, now uint32, fn func(line []byte)) {
	a.Expire(now)

	for _, b := range data {
		if !a.partial {
			a.partial = true
			a.started = now
		}

		switch b {
		case LineTerminator:
			if a.overflow {
				a.dropped++
			} else if len(a.buf) > 0 {
				fn(a.buf)
			}
			a.clear()
		case '\r':
			// Ignored so CRLF senders work
		default:
			if len(a.buf) >= a.max {
				a.overflow = true
				continue
			}
			a.buf = append(a.buf, b)
		}
	}
}

// Expire discards a partial line older than the timeout, returning true if one was dropped
func (a *LineAssembler) Expire(now uint32) bool {
	if !a.partial || a.timeout == 0 {
		return false
	}
	if now-a.started < a.timeout {
		return false
	}
	if len(a.buf) > 0 || a.overflow {
		a.dropped++
	}
	a.clear()
	return true
}

// Pending returns the number of buffered bytes of the current partial line
func (a *LineAssembler) Pending() int {
	return len(a.buf)
}

// Dropped returns how many partial or oversized lines were discarded
func (a *LineAssembler) Dropped() uint32 {
	return a.dropped
}

// Reset discards any partial line
func (a *LineAssembler) Reset() {
	a.clear()
}

func (a *LineAssembler) clear() {
	a.buf = a.buf[:0]
	a.partial = false
	a.overflow = false
}
