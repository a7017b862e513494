// Package events tells the technician what the bootstrapper is doing by
// playing sounds, since nobody watches the console while cabling switches.
package events

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/TotallyMonica/swinit/swlogging"
)

type State int

const (
	StateTimeout State = iota
	StateDetected
	StateUnsupported
)

func (s State) String() string {
	switch s {
	case StateTimeout:
		return "timeout"
	case StateDetected:
		return "detected"
	case StateUnsupported:
		return "unsupported"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type Player interface {
	Play(sound string) error
}

// Sounds names the file played for each announcement.
type Sounds struct {
	Detected          string
	Unsupported       string
	Reset             string
	UnsupportedRepeat int
}

func DefaultSounds() Sounds {
	return Sounds{
		Detected:          "detected.wav",
		Unsupported:       "reset.wav",
		Reset:             "reset.wav",
		UnsupportedRepeat: 3,
	}
}

// Events remembers the last announced state. Timeout and unsupported are
// only announced when they change the state; detected is announced every
// time since each one is a new device.
type Events struct {
	player Player
	sounds Sounds
	log    *swlogging.Logger

	mu   sync.Mutex
	last State
}

func New(player Player, sounds Sounds, log *swlogging.Logger) *Events {
	return &Events{
		player: player,
		sounds: sounds,
		log:    log,
		last:   StateTimeout,
	}
}

func (e *Events) Last() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Detected tells the operator we have it from here.
func (e *Events) Detected() {
	e.mu.Lock()
	e.last = StateDetected
	e.mu.Unlock()

	e.play(e.sounds.Detected)
}

// Unsupported tells the operator to take the device away.
func (e *Events) Unsupported() {
	if !e.transition(StateUnsupported) {
		return
	}
	for i := 0; i < e.sounds.UnsupportedRepeat; i++ {
		e.play(e.sounds.Unsupported)
	}
}

// Timeout tells the operator we are ready for the next device. It stays
// quiet if nothing was detected since the last timeout.
func (e *Events) Timeout() {
	if !e.transition(StateTimeout) {
		return
	}
	e.play(e.sounds.Reset)
}

func (e *Events) transition(to State) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == to {
		return false
	}
	e.last = to
	return true
}

// Sound playback failing must never stop the bootstrapper.
func (e *Events) play(sound string) {
	if sound == "" {
		return
	}
	if err := e.player.Play(sound); err != nil {
		e.log.Warnf("Unable to play %s: %v", sound, err)
	}
}

// AplayPlayer plays sounds with the ALSA aplay command.
type AplayPlayer struct {
	Dir     string
	Command string
}

func (p AplayPlayer) Play(sound string) error {
	command := p.Command
	if command == "" {
		command = "aplay"
	}
	path := sound
	if p.Dir != "" && !filepath.IsAbs(sound) {
		path = filepath.Join(p.Dir, sound)
	}

	out, err := exec.Command(command, "-q", path).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w (%s)", command, path, err, out)
	}
	return nil
}
