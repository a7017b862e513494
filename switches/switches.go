package switches

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/TotallyMonica/swinit/common"
)

const (
	BreakDelay        = 1 * time.Second
	ShellRetryTimeout = 10 * time.Second
	ShellRetries      = 10
)

var (
	BootPrompt          = common.Prefix("switch: ")
	BreakPrompt         = common.Prefix("Interrupt the system within 5 seconds to intervene.")
	ModelNumMarker      = common.Prefix("MODEL_NUM=")
	C2950Marker         = common.Regex(".*C2950-HBOOT.*")
	InitialConfigPrompt = common.Prefix("Would you like to enter the initial configuration dialog? [yes/no]: ")
	PressReturnPrompt   = common.Regex(".*Press RETURN to get started.*")
	ShellPrompt         = common.Regex(".*Switch>")
)

// ErrNotStackable is returned when stack operations are asked of a family
// that cannot stack.
var ErrNotStackable = errors.New("switch family does not stack")

// UnsupportedDeviceError means the learned model string matched no known family.
type UnsupportedDeviceError struct {
	Model string
}

func (e *UnsupportedDeviceError) Error() string {
	if e.Model == "" {
		return "unsupported device: model could not be identified"
	}
	return fmt.Sprintf("unsupported device: %s", e.Model)
}

type StackRole int

const (
	RoleUnknown StackRole = iota
	RolePrimary
	RoleSecondary
)

func (r StackRole) String() string {
	switch r {
	case RolePrimary:
		return "primary"
	case RoleSecondary:
		return "secondary"
	default:
		return "unknown"
	}
}

// StackMember is the identity written to a stackable switch's bootloader.
type StackMember struct {
	Number   int
	Priority int
}

// Only stacks of two are handled: the primary always wins the election.
var stackMembers = map[StackRole]StackMember{
	RolePrimary:   {Number: 1, Priority: 14},
	RoleSecondary: {Number: 2, Priority: 13},
}

func MemberFor(role StackRole) (StackMember, error) {
	member, ok := stackMembers[role]
	if !ok {
		return StackMember{}, fmt.Errorf("no stack member number for role %s", role)
	}
	return member, nil
}

// Model is one supported switch family. Implementations hold no per-device
// state; everything they learn is returned to the caller.
type Model interface {
	Name() string
	Matches(model string) bool
	Stackable() bool
	// BreakCount is how many breaks to send when the family goes back into
	// its bootloader during Configure. The first bootloader entry of a
	// session uses the orchestrator's count, before the family is known.
	BreakCount() int
	ProbeStackRole(c *common.Console) (StackRole, error)
	SetSwitchNumber(c *common.Console, member StackMember) error
	ClearConfig(c *common.Console) error
	Boot(c *common.Console) error
	WaitForBootComplete(c *common.Console) error
	// Configure leaves the device ready for the provisioning tool.
	Configure(c *common.Console, role StackRole) error
}

var registered = []Model{
	Cisco3850{},
	Cisco2950{},
}

// Models lists the supported families in lookup order.
func Models() []Model {
	return append([]Model(nil), registered...)
}

// Lookup returns the first family whose predicate accepts model.
func Lookup(model string) (Model, error) {
	for _, m := range registered {
		if m.Matches(model) {
			return m, nil
		}
	}
	return nil, &UnsupportedDeviceError{Model: model}
}

// WaitForBootloader waits for the bootloader prompt. A device that is
// already booting past it gets breaks sent to drop it back into it.
func WaitForBootloader(c *common.Console, breaks int) error {
	hit, err := c.ReadLine(BreakPrompt, BootPrompt)
	if err != nil {
		return fmt.Errorf("wait for bootloader: %w", err)
	}

	if hit == 0 {
		c.Logger().Infof("Device is booting, sending %d breaks", breaks)
		for i := 0; i < breaks; i++ {
			c.Sleep(BreakDelay)
			if err := c.SendBreak(); err != nil {
				return err
			}
		}
		// Breaks leave garbage on the line
		if err := c.ClearBuffer(); err != nil {
			return err
		}
		if err := c.Poke(); err != nil {
			return err
		}
		if _, err := c.ReadLine(BootPrompt); err != nil {
			return fmt.Errorf("wait for bootloader after break: %w", err)
		}
	}

	c.Logger().Infof("Entered bootloader")
	return nil
}

// LearnModel asks the bootloader which model it is running on. An empty
// string means the device did not say.
func LearnModel(c *common.Console, versionQuery bool) (string, error) {
	if versionQuery {
		if err := c.WriteLine("version"); err != nil {
			return "", err
		}
	}
	if err := c.WriteLine("set"); err != nil {
		return "", err
	}

	hit, err := c.ReadLine(ModelNumMarker, C2950Marker)
	if err != nil {
		return "", fmt.Errorf("learn model: %w", err)
	}

	model := ""
	switch hit {
	case 0:
		model, err = c.ReadRestOfLine()
		if err != nil {
			return "", fmt.Errorf("learn model: %w", err)
		}
		model = strings.TrimSpace(model)
	case 1:
		model = "WS-C2950"
	}

	if _, err := c.ReadLine(BootPrompt); err != nil {
		return "", fmt.Errorf("learn model: %w", err)
	}
	return model, nil
}

// bootloaderCommand sends cmd and waits for the bootloader to come back.
func bootloaderCommand(c *common.Console, cmd string) error {
	if err := c.WriteLine(cmd); err != nil {
		return err
	}
	if _, err := c.ReadLine(BootPrompt); err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	return nil
}

// iosSwitch holds what both IOS families share once they leave the bootloader.
type iosSwitch struct{}

func (iosSwitch) Boot(c *common.Console) error {
	return c.WriteLine("boot")
}

// WaitForBootComplete declines the setup dialog and waits until the user
// exec prompt actually answers.
func (iosSwitch) WaitForBootComplete(c *common.Console) error {
	for {
		hit, err := c.ReadLine(InitialConfigPrompt, PressReturnPrompt, ShellPrompt)
		if err != nil {
			return fmt.Errorf("wait for boot: %w", err)
		}
		if hit != 0 {
			break
		}
		c.Logger().Infof("Getting out of initial configuration dialog")
		if err := c.WriteLine("no"); err != nil {
			return err
		}
	}

	// Even after asking for RETURN the console can take a while to wake up
	err := c.WithTimeout(ShellRetryTimeout, func() error {
		for i := 0; i < ShellRetries; i++ {
			if err := c.Write([]byte("\r")); err != nil {
				return err
			}
			_, err := c.ReadLine(ShellPrompt)
			if err == nil {
				return nil
			}
			if !errors.Is(err, common.ErrDeviceTimeout) {
				return err
			}
			c.Logger().Infof("Console not responsive yet, retrying (%d/%d)", i+1, ShellRetries)
		}
		return fmt.Errorf("shell prompt silent after %d attempts: %w", ShellRetries, common.ErrDeviceTimeout)
	})
	if err != nil {
		return err
	}

	c.Logger().Infof("We have booted up now")
	return c.ClearBuffer()
}
