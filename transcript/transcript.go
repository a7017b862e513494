// Package transcript records everything exchanged with the console as a
// stream of CBOR entries, tagged with the session that was running.
package transcript

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/TotallyMonica/swinit/common"
)

// flushAt bounds how many received bytes are held before an entry is written.
const flushAt = 256

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("transcript encoder: %v", err))
	}

	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyQuiet,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("transcript decoder: %v", err))
	}
}

type Direction uint8

const (
	FromDevice Direction = iota
	ToDevice
	Break
	Timeout
)

func (d Direction) String() string {
	switch d {
	case FromDevice:
		return "IN"
	case ToDevice:
		return "OUT"
	case Break:
		return "BREAK"
	case Timeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

type Entry struct {
	Timestamp time.Time `cbor:"1,keyasint"`
	Session   string    `cbor:"2,keyasint,omitempty"`
	Direction Direction `cbor:"3,keyasint"`
	Data      []byte    `cbor:"4,keyasint,omitempty"`
}

func (e Entry) String() string {
	session := e.Session
	if len(session) > 8 {
		session = session[:8]
	}
	if session == "" {
		session = "-"
	}
	s := fmt.Sprintf("%s %-8s %-7s", e.Timestamp.Format("15:04:05.000"), session, e.Direction)
	if len(e.Data) > 0 {
		s += fmt.Sprintf(" %q", e.Data)
	}
	return s
}

// Recorder is a common.Port that records all traffic through it. Received
// bytes are merged into one entry per line.
type Recorder struct {
	port   common.Port
	enc    *cbor.Encoder
	closer io.Closer
	now    func() time.Time

	mu      sync.Mutex
	session string
	in      []byte
	err     error
}

var _ common.Port = (*Recorder)(nil)

func NewRecorder(port common.Port, w io.Writer) *Recorder {
	return &Recorder{
		port: port,
		enc:  encMode.NewEncoder(w),
		now:  time.Now,
	}
}

// OpenRecorder appends the transcript to the file at path.
func OpenRecorder(port common.Port, path string) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	r := NewRecorder(port, f)
	r.closer = f
	return r, nil
}

// SetSession tags entries recorded from now on.
func (r *Recorder) SetSession(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flush()
	r.session = id
}

func (r *Recorder) Read(p []byte) (int, error) {
	n, err := r.port.Read(p)

	r.mu.Lock()
	defer r.mu.Unlock()
	if n > 0 {
		for _, b := range p[:n] {
			r.in = append(r.in, b)
			if b == '\n' || len(r.in) >= flushAt {
				r.flush()
			}
		}
	}
	if n == 0 && err == nil {
		r.flush()
		r.record(Timeout, nil)
	}
	return n, err
}

func (r *Recorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	r.flush()
	r.record(ToDevice, p)
	r.mu.Unlock()

	return r.port.Write(p)
}

func (r *Recorder) Break(d time.Duration) error {
	r.mu.Lock()
	r.flush()
	r.record(Break, nil)
	r.mu.Unlock()

	return r.port.Break(d)
}

func (r *Recorder) SetReadTimeout(t time.Duration) error {
	return r.port.SetReadTimeout(t)
}

// Err returns the first error hit while writing the transcript. Recording
// failures never reach the console traffic.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close writes out pending data and closes the transcript file, if the
// recorder opened one. The port is left alone.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flush()
	if r.closer == nil {
		return r.err
	}
	closer := r.closer
	r.closer = nil
	if err := closer.Close(); err != nil && r.err == nil {
		r.err = err
	}
	return r.err
}

func (r *Recorder) flush() {
	if len(r.in) == 0 {
		return
	}
	r.record(FromDevice, r.in)
	r.in = nil
}

func (r *Recorder) record(dir Direction, data []byte) {
	entry := Entry{
		Timestamp: r.now(),
		Session:   r.session,
		Direction: dir,
		Data:      append([]byte(nil), data...),
	}
	if err := r.enc.Encode(entry); err != nil && r.err == nil {
		r.err = fmt.Errorf("record transcript: %w", err)
	}
}

type Reader struct {
	dec *cbor.Decoder
}

func NewReader(r io.Reader) *Reader {
	return &Reader{dec: decMode.NewDecoder(r)}
}

// Next returns io.EOF once every entry has been read.
func (r *Reader) Next() (Entry, error) {
	var e Entry
	if err := r.dec.Decode(&e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func ReadAll(r io.Reader) ([]Entry, error) {
	reader := NewReader(r)
	var entries []Entry
	for {
		e, err := reader.Next()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return entries, fmt.Errorf("read transcript entry %d: %w", len(entries), err)
		}
		entries = append(entries, e)
	}
}
