// Package fakeserial emulates a device console from a script so the boot
// state machine can be tested without hardware.
//
// A script is a queue of buffers separated by triggers. Say appends text to
// the buffer being built; WaitFor and WaitForBreak close it and start a new
// one that becomes readable only once the trigger has been written (or the
// break sent). Reading past the end of the active buffer, or reaching a
// point marked with Timeout, reads zero bytes just like a serial port whose
// read timeout elapsed.
//
//	port := fakeserial.New()
//	port.Say("switch: ")     // readable straight away
//	port.WaitFor("set\n")    // wait for the host to send this
//	port.Say("MODEL_NUM=WS-C3850-12S\n")
//
// Building the script while the port is in use is not supported.
package fakeserial

import (
	"bytes"
	"errors"
	"fmt"
	"time"
)

// ErrUnexpectedBreak is returned by Break when the script is not waiting for one.
var ErrUnexpectedBreak = errors.New("got break but was not waiting for one")

type readEvent struct {
	b       byte
	timeout bool
}

type trigger struct {
	text []byte
	brk  bool
}

type Port struct {
	buffers  [][]readEvent
	triggers []trigger
	readIdx  int
	pending  []byte

	written  bytes.Buffer
	breaks   int
	timeouts []time.Duration
}

func New() *Port {
	return &Port{
		buffers: [][]readEvent{{}},
	}
}

// Say queues text for the device to print.
func (p *Port) Say(text string) {
	last := len(p.buffers) - 1
	for i := 0; i < len(text); i++ {
		p.buffers[last] = append(p.buffers[last], readEvent{b: text[i]})
	}
}

// SayBytes queues raw bytes, including ones that are not valid text.
func (p *Port) SayBytes(data []byte) {
	last := len(p.buffers) - 1
	for _, b := range data {
		p.buffers[last] = append(p.buffers[last], readEvent{b: b})
	}
}

// Timeout makes one read at this point of the script return zero bytes.
func (p *Port) Timeout() {
	last := len(p.buffers) - 1
	p.buffers[last] = append(p.buffers[last], readEvent{timeout: true})
}

// WaitFor holds back what is said next until text has been written.
func (p *Port) WaitFor(text string) {
	p.triggers = append(p.triggers, trigger{text: []byte(text)})
	p.buffers = append(p.buffers, []readEvent{})
}

// WaitForBreak holds back what is said next until a break is sent.
func (p *Port) WaitForBreak() {
	p.triggers = append(p.triggers, trigger{brk: true})
	p.buffers = append(p.buffers, []readEvent{})
}

func (p *Port) Read(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	active := p.buffers[0]
	if p.readIdx >= len(active) {
		return 0, nil
	}

	ev := active[p.readIdx]
	p.readIdx++
	if ev.timeout {
		return 0, nil
	}
	buf[0] = ev.b
	return 1, nil
}

func (p *Port) Write(data []byte) (int, error) {
	p.written.Write(data)
	for _, b := range data {
		p.pending = append(p.pending, b)
		if len(p.triggers) == 0 || p.triggers[0].brk {
			continue
		}
		if bytes.HasSuffix(p.pending, p.triggers[0].text) {
			p.advance()
		}
	}
	return len(data), nil
}

func (p *Port) Break(d time.Duration) error {
	if len(p.triggers) == 0 || !p.triggers[0].brk {
		return fmt.Errorf("%w (after writing %q)", ErrUnexpectedBreak, p.pending)
	}
	p.breaks++
	p.advance()
	return nil
}

func (p *Port) SetReadTimeout(t time.Duration) error {
	p.timeouts = append(p.timeouts, t)
	return nil
}

func (p *Port) advance() {
	p.triggers = p.triggers[1:]
	p.buffers = p.buffers[1:]
	p.pending = p.pending[:0]
	p.readIdx = 0
}

// Written returns everything the host wrote, in order.
func (p *Port) Written() string {
	return p.written.String()
}

func (p *Port) Breaks() int {
	return p.breaks
}

// ReadTimeouts lists every timeout the host configured, in order.
func (p *Port) ReadTimeouts() []time.Duration {
	return append([]time.Duration(nil), p.timeouts...)
}

// Done reports whether every trigger in the script has fired.
func (p *Port) Done() bool {
	return len(p.triggers) == 0
}

// Remaining describes the next trigger that has not fired yet.
func (p *Port) Remaining() string {
	if len(p.triggers) == 0 {
		return ""
	}
	if p.triggers[0].brk {
		return "<BREAK>"
	}
	return fmt.Sprintf("%q", p.triggers[0].text)
}
