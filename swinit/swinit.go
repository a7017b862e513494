// Package swinit runs the boot state machine that takes one switch at a time
// from its bootloader to a state where auto install can configure it.
package swinit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TotallyMonica/swinit/common"
	"github.com/TotallyMonica/swinit/switches"
	"github.com/TotallyMonica/swinit/swlogging"
)

const DefaultBreakCount = 3

type State int

const (
	StateIdle State = iota
	StateAwaitingBootloader
	StateBootloaderEntered
	StateLearningModel
	StateDispatch
	StateStackRoleAssignment
	StateConfigErasure
	StateBoot
	StatePostBootPromptHandling
	StatePostBootConfigure
)

var stateNames = map[State]string{
	StateIdle:                   "idle",
	StateAwaitingBootloader:     "awaiting bootloader",
	StateBootloaderEntered:      "bootloader entered",
	StateLearningModel:          "learning model",
	StateDispatch:               "dispatch",
	StateStackRoleAssignment:    "stack role assignment",
	StateConfigErasure:          "config erasure",
	StateBoot:                   "boot",
	StatePostBootPromptHandling: "post boot prompt handling",
	StatePostBootConfigure:      "post boot configure",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type MgmtStatus int

const (
	MgmtUnknown MgmtStatus = iota
	MgmtUp
	MgmtDown
)

func (m MgmtStatus) String() string {
	switch m {
	case MgmtUp:
		return "up"
	case MgmtDown:
		return "down"
	default:
		return "unknown"
	}
}

// Notifier receives the lifecycle announcements. events.Events is the
// production implementation.
type Notifier interface {
	Detected()
	Unsupported()
	Timeout()
}

// Session is one device's trip through the state machine. It is never reused
// for the next device.
type Session struct {
	ID      uuid.UUID
	Started time.Time
	State   State
	Model   string
	Device  switches.Model

	console    *common.Console
	role       switches.StackRole
	mgmt       MgmtStatus
	roleProbed bool
}

func (s *Session) Role() switches.StackRole {
	return s.role
}

func (s *Session) Mgmt() MgmtStatus {
	return s.mgmt
}

// StackRole probes the management interface the first time it is called and
// returns the cached answer afterwards.
func (s *Session) StackRole() (switches.StackRole, error) {
	if s.roleProbed {
		return s.role, nil
	}
	role, err := s.Device.ProbeStackRole(s.console)
	if err != nil {
		return switches.RoleUnknown, err
	}

	s.role = role
	s.roleProbed = true
	if role == switches.RolePrimary {
		s.mgmt = MgmtUp
	} else {
		s.mgmt = MgmtDown
	}
	return role, nil
}

// Status is a snapshot of the orchestrator for display.
type Status struct {
	State       string    `json:"state"`
	SessionID   string    `json:"session_id,omitempty"`
	Started     time.Time `json:"started"`
	Model       string    `json:"model,omitempty"`
	Family      string    `json:"family,omitempty"`
	Role        string    `json:"role"`
	Mgmt        string    `json:"mgmt"`
	Completed   int       `json:"completed"`
	Unsupported int       `json:"unsupported"`
	Timeouts    int       `json:"timeouts"`
	LastEvent   string    `json:"last_event,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

type Orchestrator struct {
	console      *common.Console
	notify       Notifier
	log          *swlogging.Logger
	breakCount   int
	versionQuery bool
	onSession    func(id string)
	now          func() time.Time

	mu     sync.Mutex
	status Status
}

type Option func(*Orchestrator)

// WithBreakCount sets how many breaks are sent when a device is caught
// booting past its bootloader.
func WithBreakCount(n int) Option {
	return func(o *Orchestrator) {
		o.breakCount = n
	}
}

// WithVersionQuery controls whether the bootloader banner is requested while
// learning the model. 2950s only identify themselves in the banner.
func WithVersionQuery(enabled bool) Option {
	return func(o *Orchestrator) {
		o.versionQuery = enabled
	}
}

// WithSessionHook calls hook with the ID of every new session before any
// traffic for it is exchanged.
func WithSessionHook(hook func(id string)) Option {
	return func(o *Orchestrator) {
		o.onSession = hook
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

func New(console *common.Console, notify Notifier, log *swlogging.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		console:      console,
		notify:       notify,
		log:          log,
		breakCount:   DefaultBreakCount,
		versionQuery: true,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.status = Status{
		State: StateIdle.String(),
		Role:  switches.RoleUnknown.String(),
		Mgmt:  MgmtUnknown.String(),
	}
	return o
}

// Status returns a copy of the current status. Safe to call from any goroutine.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

func (o *Orchestrator) updateStatus(fn func(st *Status)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(&o.status)
}

// Run handles devices one after another until ctx is cancelled. Timeouts and
// unsupported devices end the current session only; any other failure means
// the console itself is gone and is returned.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		s, err := o.RunOnce()

		var unsupported *switches.UnsupportedDeviceError
		switch {
		case err == nil:
			o.log.Noticef("#### Configuration done, resetting state for new device ####")
			o.updateStatus(func(st *Status) {
				st.Completed++
				st.LastError = ""
			})
		case errors.As(err, &unsupported):
			o.log.Warnf("Unsupported device encountered, resetting state: %v", err)
			o.notify.Unsupported()
			o.updateStatus(func(st *Status) {
				st.Unsupported++
				st.LastEvent = "unsupported"
				st.LastError = err.Error()
			})
		case errors.Is(err, common.ErrDeviceTimeout):
			o.log.Warnf("Device timed out in state %s, resetting state: %v", s.State, err)
			o.notify.Timeout()
			o.updateStatus(func(st *Status) {
				st.Timeouts++
				st.LastEvent = "timeout"
				st.LastError = err.Error()
			})
		default:
			o.log.Errorf("Session %s failed in state %s: %v", s.ID, s.State, err)
			o.updateStatus(func(st *Status) {
				st.LastError = err.Error()
			})
			return fmt.Errorf("session %s: %w", s.ID, err)
		}

		o.enter(s, StateIdle)
	}
}

type step struct {
	state State
	run   func(o *Orchestrator, s *Session) error
}

var steps = []step{
	{StateIdle, (*Orchestrator).solicit},
	{StateAwaitingBootloader, (*Orchestrator).awaitBootloader},
	{StateLearningModel, (*Orchestrator).learnModel},
	{StateDispatch, (*Orchestrator).dispatch},
	{StateStackRoleAssignment, (*Orchestrator).assignStackRole},
	{StateConfigErasure, (*Orchestrator).clearConfig},
	{StateBoot, (*Orchestrator).boot},
	{StatePostBootPromptHandling, (*Orchestrator).waitForBootComplete},
	{StatePostBootConfigure, (*Orchestrator).configure},
}

// RunOnce takes a single device through every state. The returned session is
// never nil, also on failure, so callers can see where it stopped.
func (o *Orchestrator) RunOnce() (*Session, error) {
	s := o.newSession()

	for _, st := range steps {
		o.enter(s, st.state)
		if err := st.run(o, s); err != nil {
			return s, err
		}
	}
	return s, nil
}

func (o *Orchestrator) newSession() *Session {
	s := &Session{
		ID:      uuid.New(),
		Started: o.now(),
		State:   StateIdle,
		console: o.console,
	}
	if o.onSession != nil {
		o.onSession(s.ID.String())
	}
	o.log.Debugf("Starting session %s", s.ID)

	o.updateStatus(func(st *Status) {
		st.SessionID = s.ID.String()
		st.Started = s.Started
		st.Model = ""
		st.Family = ""
		st.Role = s.role.String()
		st.Mgmt = s.mgmt.String()
	})
	return s
}

func (o *Orchestrator) enter(s *Session, state State) {
	s.State = state
	o.updateStatus(func(st *Status) {
		st.State = state.String()
		st.Model = s.Model
		if s.Device != nil {
			st.Family = s.Device.Name()
		}
		st.Role = s.role.String()
		st.Mgmt = s.mgmt.String()
	})
}

// solicit pokes the console in case the device already sits at a prompt.
func (o *Orchestrator) solicit(s *Session) error {
	return s.console.Poke()
}

func (o *Orchestrator) awaitBootloader(s *Session) error {
	if err := switches.WaitForBootloader(s.console, o.breakCount); err != nil {
		return err
	}

	o.enter(s, StateBootloaderEntered)
	o.log.Infof("Detected bootloader")
	o.notify.Detected()
	o.updateStatus(func(st *Status) {
		st.LastEvent = "detected"
	})
	return nil
}

func (o *Orchestrator) learnModel(s *Session) error {
	model, err := switches.LearnModel(s.console, o.versionQuery)
	if err != nil {
		return err
	}
	o.log.Infof("Model is %q", model)
	s.Model = model
	return nil
}

func (o *Orchestrator) dispatch(s *Session) error {
	device, err := switches.Lookup(s.Model)
	if err != nil {
		return err
	}
	o.log.Infof("Handling device as %s", device.Name())
	s.Device = device
	return nil
}

func (o *Orchestrator) assignStackRole(s *Session) error {
	if !s.Device.Stackable() {
		return nil
	}

	role, err := s.StackRole()
	if err != nil {
		return err
	}
	o.enter(s, StateStackRoleAssignment)

	member, err := switches.MemberFor(role)
	if err != nil {
		return err
	}
	o.log.Infof("Switch is no %d (%s, priority %d)", member.Number, role, member.Priority)
	return s.Device.SetSwitchNumber(s.console, member)
}

func (o *Orchestrator) clearConfig(s *Session) error {
	o.log.Infof("Clearing configuration")
	return s.Device.ClearConfig(s.console)
}

func (o *Orchestrator) boot(s *Session) error {
	o.log.Infof("Booting")
	return s.Device.Boot(s.console)
}

func (o *Orchestrator) waitForBootComplete(s *Session) error {
	return s.Device.WaitForBootComplete(s.console)
}

// configure hands the device over to auto install. Stack members reload in
// here and come back through their bootloader.
func (o *Orchestrator) configure(s *Session) error {
	o.log.Infof("Configuring %s as %s", s.Device.Name(), s.role)
	return s.Device.Configure(s.console, s.role)
}
