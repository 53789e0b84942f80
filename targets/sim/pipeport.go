package main

import (
	"io"
)

// pipePort is one end of an in-memory duplex connection satisfying the
// host serial.Port interface.
type pipePort struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (p *pipePort) Read(b []byte) (int, error) {
	return p.r.Read(b)
}

func (p *pipePort) Write(b []byte) (int, error) {
	return p.w.Write(b)
}

func (p *pipePort) Close() error {
	p.r.Close()
	return p.w.Close()
}

func (p *pipePort) Flush() error {
	return nil
}

// newPipePair returns the two ends of a duplex in-memory connection.
func newPipePair() (*pipePort, *pipePort) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	return &pipePort{r: ar, w: aw}, &pipePort{r: br, w: bw}
}
