package protocol

import "io"

// maxReadsPerPoll bounds the work one Poll call may do
const maxReadsPerPoll = 8

// Link is one end of the master <-> slave serial link.
// The reader must be non-blocking: Read returns immediately with whatever is
// buffered, possibly zero bytes.
type Link struct {
	r       io.Reader
	w       io.Writer
	asm     *LineAssembler
	scratch [64]byte

	linesIn  uint32
	linesOut uint32
	writeErr uint32
}

// NewLink wraps a non-blocking reader and a writer
func NewLink(r io.Reader, w io.Writer) *Link {
	return &Link{
		r:   r,
		w:   w,
		asm: NewLineAssembler(LineMax, LineTimeoutMs),
	}
}

// Poll drains buffered bytes and calls fn for every complete line.
// It never waits for more data; a line still incomplete after the line
// timeout is discarded on a later Poll.
func (l *Link) Poll(now uint32, fn func(line []byte)) {
	if l.r == nil {
		return
	}
	deliver := func(line []byte) {
		l.linesIn++
		fn(line)
	}
	for i := 0; i < maxReadsPerPoll; i++ {
		n, err := l.r.Read(l.scratch[:])
		if n > 0 {
			l.asm.Feed(l.scratch[:n], now, deliver)
		}
		if err != nil || n < len(l.scratch) {
			break
		}
	}
	l.asm.Expire(now)
}

// Send writes one already-terminated line
func (l *Link) Send(line []byte) error {
	if l.w == nil {
		return nil
	}
	if _, err := l.w.Write(line); err != nil {
		l.writeErr++
		return err
	}
	l.linesOut++
	return nil
}

// SendDrive encodes and writes a drive frame
func (l *Link) SendDrive(f DriveFrame) error {
	return l.Send(EncodeDrive(f))
}

// SendHeartbeat encodes and writes a heartbeat
func (l *Link) SendHeartbeat(h HeartbeatFrame) error {
	line, err := EncodeHeartbeat(h)
	if err != nil {
		return err
	}
	return l.Send(line)
}

// SendCommand writes a {"cmd":...} line
func (l *Link) SendCommand(cmd string) error {
	return l.Send(EncodeLinkCommand(cmd))
}

// LinkStats are the link counters
type LinkStats struct {
	LinesIn      uint32
	LinesOut     uint32
	LinesDropped uint32
	WriteErrors  uint32
}

// Stats returns the link counters
func (l *Link) Stats() LinkStats {
	return LinkStats{
		LinesIn:      l.linesIn,
		LinesOut:     l.linesOut,
		LinesDropped: l.asm.Dropped(),
		WriteErrors:  l.writeErr,
	}
}
