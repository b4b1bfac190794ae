package serial

import "io"

// pipePort is one end of an in-memory serial cable
type pipePort struct {
	r *io.PipeReader
	w *io.PipeWriter
}

// Pipe returns two connected ports: bytes written to one are read from the
// other. Writes block until the other side reads, so the reading side
// should be wrapped in an AsyncReader.
func Pipe() (Port, Port) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	return &pipePort{r: ar, w: aw}, &pipePort{r: br, w: bw}
}

func (p *pipePort) Read(b []byte) (int, error) {
	return p.r.Read(b)
}

func (p *pipePort) Write(b []byte) (int, error) {
	return p.w.Write(b)
}

// Close ends both directions; the peer sees io.EOF
func (p *pipePort) Close() error {
	p.w.Close()
	return p.r.Close()
}

func (p *pipePort) Flush() error {
	return nil
}
