package swinit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TotallyMonica/swinit/common"
	"github.com/TotallyMonica/swinit/events"
	"github.com/TotallyMonica/swinit/fakeserial"
	"github.com/TotallyMonica/swinit/switches"
	"github.com/TotallyMonica/swinit/swlogging"
)

const testTimeout = 600 * time.Second

type recordingNotifier struct {
	calls []string
}

func (n *recordingNotifier) Detected()    { n.calls = append(n.calls, "detected") }
func (n *recordingNotifier) Unsupported() { n.calls = append(n.calls, "unsupported") }
func (n *recordingNotifier) Timeout()     { n.calls = append(n.calls, "timeout") }

func newTestOrchestrator(t *testing.T, port *fakeserial.Port, notify Notifier, opts ...Option) *Orchestrator {
	t.Helper()
	log := swlogging.Discard("swinit_test")
	c, err := common.NewConsole(port, testTimeout, log, common.WithSleep(func(time.Duration) {}))
	require.NoError(t, err)
	return New(c, notify, log, opts...)
}

// scriptBootloader3850 covers everything up to and including the boot command.
func scriptBootloader3850(p *fakeserial.Port, mgmtUp bool) {
	p.WaitFor("\n")
	p.Say("switch: ")
	p.WaitFor("set\n")
	p.Say("MODEL_NUM=WS-C3850-12S\n")
	p.Say("switch: ")
	p.WaitFor("mgmt_init\n")
	if mgmtUp {
		p.Say("switch: ")
	} else {
		p.Say("Interface GE 0 link down***ERROR: PHY link is down")
		p.Say("\r\nswitch: ")
	}
	if mgmtUp {
		p.WaitFor("set SWITCH_NUMBER 1\n")
		p.Say("switch: ")
		p.WaitFor("set SWITCH_PRIORITY 14\n")
	} else {
		p.WaitFor("set SWITCH_NUMBER 2\n")
		p.Say("switch: ")
		p.WaitFor("set SWITCH_PRIORITY 13\n")
	}
	p.Say("switch: ")
	p.WaitFor("set SWITCH_IGNORE_STARTUP_CFG 1\n")
	p.Say("switch: ")
	p.WaitFor("set ENABLE_BREAK 1\n")
	p.Say("switch: ")
	p.WaitFor("boot\n")
	p.Say("Would you like to enter the initial configuration dialog? [yes/no]: ")
	p.WaitFor("no\n")
	p.Say("Press RETURN to get started!")
}

func scriptReload3850(p *fakeserial.Port) {
	p.Say("Interrupt the system within 5 seconds to intervene.")
	p.WaitForBreak()
	p.WaitForBreak()
	p.WaitForBreak()
	p.WaitFor("\n")
	p.Say("switch: ")
	p.WaitFor("set SWITCH_IGNORE_STARTUP_CFG 0\n")
	p.Say("switch: ")
	p.WaitFor("boot\n")
}

func assertScriptDone(t *testing.T, p *fakeserial.Port) {
	t.Helper()
	assert.True(t, p.Done(), "script not finished, waiting for %s", p.Remaining())
}

func Test3850PrimaryFlow(t *testing.T) {
	port := fakeserial.New()
	scriptBootloader3850(port, true)
	// The shell only answers the second RETURN
	port.WaitFor("\r")
	port.WaitFor("\r")
	port.Say("YUNKYUMNKYNKSwitch>YNKYUNK")
	port.WaitFor("reload\n")
	scriptReload3850(port)

	notify := &recordingNotifier{}
	o := newTestOrchestrator(t, port, notify)

	s, err := o.RunOnce()
	require.NoError(t, err)
	assertScriptDone(t, port)

	assert.Equal(t, switches.RolePrimary, s.Role())
	assert.Equal(t, MgmtUp, s.Mgmt())
	assert.Equal(t, "WS-C3850-12S", s.Model)
	assert.Equal(t, "Cisco 3850", s.Device.Name())
	assert.Contains(t, port.Written(), "set SWITCH_NUMBER 1\nset SWITCH_PRIORITY 14\n")
	assert.Contains(t, port.Written(), "en\nwr erase\n\nreload\n\n")
	assert.Equal(t, 1, strings.Count(port.Written(), "mgmt_init\n"))
	assert.Equal(t, 3, port.Breaks())
	assert.Equal(t, []string{"detected"}, notify.calls)
}

func Test3850SecondaryFlow(t *testing.T) {
	port := fakeserial.New()
	scriptBootloader3850(port, false)
	port.WaitFor("\r")
	port.Say("Switch>YNK")
	// The primary reloads the whole stack, this member only has to follow
	port.Timeout()
	scriptReload3850(port)

	notify := &recordingNotifier{}
	o := newTestOrchestrator(t, port, notify)

	s, err := o.RunOnce()
	require.NoError(t, err)
	assertScriptDone(t, port)

	assert.Equal(t, switches.RoleSecondary, s.Role())
	assert.Equal(t, MgmtDown, s.Mgmt())
	assert.Contains(t, port.Written(), "set SWITCH_NUMBER 2\nset SWITCH_PRIORITY 13\n")
	assert.NotContains(t, port.Written(), "wr erase")
	assert.NotContains(t, port.Written(), "reload")
	assert.NotContains(t, port.Written(), "en\n")
}

// script2950 covers a whole 2950 session, ending with the reload.
func script2950(port *fakeserial.Port) {
	port.WaitFor("\n")
	port.Say("switch: ")
	port.WaitFor("version\nset\n")
	port.Say("C2950 Boot Loader (C2950-HBOOT-M) Version 12.1(11r)EA1, RELEASE SOFTWARE (fc1)\r\n")
	port.Say("switch: ")
	port.WaitFor("flash_init\n")
	port.Say("Initializing Flash...\r\n...done Initializing Flash.\r\nswitch: ")
	for _, file := range switches.C2950ConfigFiles {
		port.WaitFor("del flash:/" + file + "\n")
		port.Say(`Are you sure you want to delete "flash:/` + file + `" (y/n)?`)
		port.WaitFor("y\n")
		port.Say("switch: ")
	}
	port.WaitFor("boot\n")
	port.Say("Press RETURN to get started!")
	port.WaitFor("\r")
	port.Say("Switch>")
	port.WaitFor("enable\n")
	port.Say("Switch#")
	for _, cmd := range switches.C2950BringUp {
		port.WaitFor(cmd + "\n")
		port.Say("\r\nSwitch(config)#")
	}
	port.WaitFor("reload\n")
	port.Say("Proceed with reload? [confirm]")
	port.WaitFor("\n")
}

func Test2950Flow(t *testing.T) {
	port := fakeserial.New()
	script2950(port)

	o := newTestOrchestrator(t, port, &recordingNotifier{})

	s, err := o.RunOnce()
	require.NoError(t, err)
	assertScriptDone(t, port)
	assert.Equal(t, "WS-C2950", s.Model)
	assert.Equal(t, switches.RoleUnknown, s.Role())
	assert.Equal(t, MgmtUnknown, s.Mgmt())
	assert.NotContains(t, port.Written(), "mgmt_init")
	assert.Equal(t, 0, port.Breaks())

	written := port.Written()
	bootAt := strings.Index(written, "boot\n")
	last := 0
	for _, file := range switches.C2950ConfigFiles {
		cmd := "del flash:/" + file + "\ny\n"
		at := strings.Index(written, cmd)
		require.GreaterOrEqual(t, at, 0, "%q never sent", cmd)
		assert.Greater(t, at, last, "%s deleted out of order", file)
		assert.Less(t, at, bootAt, "%s deleted after boot", file)
		last = at
	}
}

func TestUnsupportedDevice(t *testing.T) {
	port := fakeserial.New()
	port.WaitFor("\n")
	port.Say("switch: ")
	port.WaitFor("set\n")
	port.Say("MODEL_NUM=superswitch\n")
	port.Say("switch: ")

	o := newTestOrchestrator(t, port, &recordingNotifier{})

	s, err := o.RunOnce()
	var unsupported *switches.UnsupportedDeviceError
	require.True(t, errors.As(err, &unsupported), "got %v", err)
	assert.Equal(t, "superswitch", unsupported.Model)
	assert.Equal(t, StateDispatch, s.State)

	for _, cmd := range []string{"SWITCH_NUMBER", "SWITCH_PRIORITY", "SWITCH_IGNORE_STARTUP_CFG", "flash_init", "boot"} {
		assert.NotContains(t, port.Written(), cmd)
	}
}

func TestTimeoutInitially(t *testing.T) {
	port := fakeserial.New()
	notify := &recordingNotifier{}
	o := newTestOrchestrator(t, port, notify)

	s, err := o.RunOnce()
	assert.ErrorIs(t, err, common.ErrDeviceTimeout)
	assert.Equal(t, StateAwaitingBootloader, s.State)
	// Only the poke went out
	assert.Equal(t, "\n", port.Written())
	assert.Empty(t, notify.calls)
}

func TestBreakCountOption(t *testing.T) {
	port := fakeserial.New()
	port.WaitFor("\n")
	port.Say("Interrupt the system within 5 seconds to intervene.")
	port.WaitForBreak()
	port.WaitFor("\n")
	port.Say("switch: ")
	port.WaitFor("set\n")

	o := newTestOrchestrator(t, port, &recordingNotifier{}, WithBreakCount(1), WithVersionQuery(false))

	_, err := o.RunOnce()
	// The script stops answering once the model is asked for
	assert.ErrorIs(t, err, common.ErrDeviceTimeout)
	assert.Equal(t, 1, port.Breaks())
	assert.Equal(t, "\n\nset\n", port.Written())
}

func TestStackRoleProbedOnce(t *testing.T) {
	port := fakeserial.New()
	port.WaitFor("mgmt_init\n")
	port.Say("switch: ")
	o := newTestOrchestrator(t, port, &recordingNotifier{})

	s := o.newSession()
	s.Device = switches.Cisco3850{}

	for i := 0; i < 3; i++ {
		role, err := s.StackRole()
		require.NoError(t, err)
		assert.Equal(t, switches.RolePrimary, role)
	}
	assert.Equal(t, "mgmt_init\n", port.Written())
}

func TestRunRecoversUntilCancelled(t *testing.T) {
	port := fakeserial.New()
	// First device is unsupported, then nothing answers anymore
	port.WaitFor("\n")
	port.Say("switch: ")
	port.WaitFor("set\n")
	port.Say("MODEL_NUM=superswitch\nswitch: ")

	player := &recordingPlayer{}
	notify := events.New(player, events.DefaultSounds(), swlogging.Discard("swinit_test"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ids []string
	hook := func(id string) {
		ids = append(ids, id)
		if len(ids) == 3 {
			cancel()
		}
	}
	o := newTestOrchestrator(t, port, notify, WithSessionHook(hook))

	require.NoError(t, o.Run(ctx))

	require.Len(t, ids, 3)
	assert.NotEqual(t, ids[0], ids[1])
	assert.NotEqual(t, ids[1], ids[2])

	// detected, three times unsupported, one reset for the first timeout and
	// silence for the second
	assert.Equal(t, []string{"detected.wav", "reset.wav", "reset.wav", "reset.wav", "reset.wav"}, player.played)

	st := o.Status()
	assert.Equal(t, "idle", st.State)
	assert.Equal(t, ids[2], st.SessionID)
	assert.Equal(t, 1, st.Unsupported)
	assert.Equal(t, 2, st.Timeouts)
	assert.Equal(t, 0, st.Completed)
	assert.Equal(t, "timeout", st.LastEvent)
}

func TestEveryCompletedSessionIsDetected(t *testing.T) {
	port := fakeserial.New()
	script2950(port)
	script2950(port)

	player := &recordingPlayer{}
	notify := events.New(player, events.DefaultSounds(), swlogging.Discard("swinit_test"))
	o := newTestOrchestrator(t, port, notify)

	for i := 0; i < 2; i++ {
		_, err := o.RunOnce()
		require.NoError(t, err, "session %d", i)
	}
	assertScriptDone(t, port)

	assert.Equal(t, []string{"detected.wav", "detected.wav"}, player.played)
	assert.Equal(t, events.StateDetected, notify.Last())
}

func TestRunStopsOnTransportFailure(t *testing.T) {
	port := fakeserial.New()
	port.Say("Interrupt the system within 5 seconds to intervene.")
	// No break scripted, so sending one fails the session for good

	o := newTestOrchestrator(t, port, &recordingNotifier{})

	err := o.Run(context.Background())
	assert.ErrorIs(t, err, fakeserial.ErrUnexpectedBreak)
	assert.NotEmpty(t, o.Status().LastError)
}

func TestStatusAfterCompletedSession(t *testing.T) {
	port := fakeserial.New()
	scriptBootloader3850(port, true)
	port.WaitFor("\r")
	port.Say("Switch>")
	port.WaitFor("reload\n")
	scriptReload3850(port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sessions := 0
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	o := newTestOrchestrator(t, port, &recordingNotifier{},
		WithClock(func() time.Time { return now }),
		WithSessionHook(func(string) {
			sessions++
			if sessions == 2 {
				cancel()
			}
		}))

	require.NoError(t, o.Run(ctx))
	assertScriptDone(t, port)

	st := o.Status()
	assert.Equal(t, 1, st.Completed)
	assert.Equal(t, 1, st.Timeouts)
	assert.Equal(t, now, st.Started)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "post boot prompt handling", StatePostBootPromptHandling.String())
	assert.Equal(t, "State(42)", State(42).String())
}

type recordingPlayer struct {
	played []string
}

func (p *recordingPlayer) Play(sound string) error {
	p.played = append(p.played, sound)
	return nil
}
