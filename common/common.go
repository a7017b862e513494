package common

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/TotallyMonica/swinit/swlogging"
)

const (
	ClearTimeout  = 1 * time.Second
	BreakDuration = 250 * time.Millisecond
)

// ErrDeviceTimeout is returned when the transport delivers no data within the
// configured read timeout.
var ErrDeviceTimeout = errors.New("device timed out")

// Port is the raw transport. A Read returning zero bytes and no error means
// the read timeout elapsed. go.bug.st/serial ports satisfy it as is.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Break(d time.Duration) error
	SetReadTimeout(t time.Duration) error
}

// Console drives a device console one byte at a time. It is not safe for
// concurrent use; one session owns it at a time.
type Console struct {
	port    Port
	timeout time.Duration
	log     *swlogging.Logger
	sleep   func(time.Duration)
}

type Option func(*Console)

// WithSleep replaces time.Sleep, mostly so tests do not wait between breaks.
func WithSleep(sleep func(time.Duration)) Option {
	return func(c *Console) {
		c.sleep = sleep
	}
}

// NewConsole wraps port and applies the initial read timeout.
func NewConsole(port Port, timeout time.Duration, log *swlogging.Logger, opts ...Option) (*Console, error) {
	c := &Console{
		port:  port,
		log:   log,
		sleep: time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.SetTimeout(timeout); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Console) Logger() *swlogging.Logger {
	return c.log
}

func (c *Console) Timeout() time.Duration {
	return c.timeout
}

func (c *Console) SetTimeout(timeout time.Duration) error {
	if err := c.port.SetReadTimeout(timeout); err != nil {
		return fmt.Errorf("set read timeout to %s: %w", timeout, err)
	}
	c.timeout = timeout
	return nil
}

// WithTimeout runs fn with the read timeout temporarily set to timeout. The
// previous timeout is put back before WithTimeout returns, also when fn fails
// or panics.
func (c *Console) WithTimeout(timeout time.Duration, fn func() error) (err error) {
	old := c.timeout
	if err := c.SetTimeout(timeout); err != nil {
		return err
	}
	defer func() {
		if restoreErr := c.SetTimeout(old); restoreErr != nil && err == nil {
			err = restoreErr
		}
	}()

	return fn()
}

// ReadLine reads until the current line matches one of stops and returns the
// index of the first pattern that matched. CR and LF start a new line.
func (c *Console) ReadLine(stops ...Pattern) (int, error) {
	idx, _, err := c.readLine(stops, false)
	return idx, err
}

// ReadRestOfLine returns everything up to the next CR or LF.
func (c *Console) ReadRestOfLine() (string, error) {
	_, line, err := c.readLine(nil, true)
	return line, err
}

func (c *Console) readLine(stops []Pattern, rest bool) (int, string, error) {
	var line strings.Builder
	buf := make([]byte, 1)

	for {
		n, err := c.port.Read(buf)
		if err != nil {
			return -1, "", fmt.Errorf("read from device: %w", err)
		}
		if n == 0 {
			c.log.Debugf("TIMEOUT: %q", line.String())
			return -1, "", fmt.Errorf("%w after %s (partial line %q)", ErrDeviceTimeout, c.timeout, line.String())
		}

		b := buf[0]
		// Lone bytes outside ASCII never decode; line noise from the break
		// and baud mismatches ends up here.
		if b >= utf8.RuneSelf {
			continue
		}

		if b == '\n' || b == '\r' {
			if rest {
				c.log.Debugf("FROM DEVICE (rest): %s", line.String())
				return -1, line.String(), nil
			}
			if IsSyslog(line.String()) {
				c.log.Noticef("DEVICE LOG: %s", line.String())
			} else if line.Len() > 0 {
				c.log.Debugf("FROM DEVICE: %s", line.String())
			}
			line.Reset()
		} else {
			line.WriteByte(b)
		}

		current := line.String()
		for i, stop := range stops {
			if stop.Match(current) {
				c.log.Debugf("MATCHED %q: %s", stop.String(), current)
				return i, current, nil
			}
		}
	}
}

func (c *Console) Write(data []byte) error {
	c.log.Infof("TO DEVICE: %q", data)
	if _, err := c.port.Write(data); err != nil {
		return fmt.Errorf("write %q to device: %w", data, err)
	}
	return nil
}

// WriteLine sends cmd followed by a line feed.
func (c *Console) WriteLine(cmd string) error {
	return c.Write(FormatCommand(cmd))
}

// Poke sends a bare line feed to make an idle device print its prompt.
func (c *Console) Poke() error {
	return c.Write(FormatCommand(""))
}

// ClearBuffer drops everything the device has already sent.
func (c *Console) ClearBuffer() error {
	return c.WithTimeout(ClearTimeout, func() error {
		buf := make([]byte, 256)
		for {
			n, err := c.port.Read(buf)
			if err != nil {
				return fmt.Errorf("clear buffer: %w", err)
			}
			if n == 0 {
				return nil
			}
			c.log.Debugf("DISCARDED: %q", buf[:n])
		}
	})
}

func (c *Console) SendBreak() error {
	c.log.Debugf("TO DEVICE: <BREAK>")
	if err := c.port.Break(BreakDuration); err != nil {
		return fmt.Errorf("send break: %w", err)
	}
	return nil
}

func (c *Console) Sleep(d time.Duration) {
	c.sleep(d)
}

func FormatCommand(cmd string) []byte {
	return []byte(cmd + "\n")
}
