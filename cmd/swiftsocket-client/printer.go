package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/yourusername/swiftsocket/internal/client"
	"github.com/yourusername/swiftsocket/internal/protocol"
)

// printer serializes output from the read loop, the state machine and stdin
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out}
}

func (p *printer) printf(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

func (p *printer) envelope(env protocol.Envelope) {
	switch env.Type {
	case protocol.KindStatus:
		p.printf("* %s\n", env.Message)
	default:
		p.printf("%s: %s\n", env.DisplayName(), env.Message)
	}
}

func (p *printer) state(s client.State, attempt int) {
	switch s {
	case client.Connected:
		p.printf("-- connected\n")
	case client.Reconnecting:
		p.printf("-- reconnecting (attempt %d)\n", attempt)
	case client.GivenUp:
		p.printf("-- disconnected, type /reconnect to try again\n")
	}
}

func (p *printer) notice(format string, args ...interface{}) {
	p.printf("-- "+format+"\n", args...)
}
