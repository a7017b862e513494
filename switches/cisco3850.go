package switches

import (
	"fmt"
	"strings"

	"github.com/TotallyMonica/swinit/common"
)

var (
	MgmtUpPrompt   = BootPrompt
	MgmtDownPrompt = common.Regex(".*PHY link is down")
)

// Cisco3850 covers the stackable Catalyst 3850 family. The management port
// only has link on the switch cabled to the provisioning network, which is
// what makes it the stack primary.
type Cisco3850 struct {
	iosSwitch
}

func (Cisco3850) Name() string {
	return "Cisco 3850"
}

func (Cisco3850) Matches(model string) bool {
	return strings.HasPrefix(model, "WS-C3850-")
}

func (Cisco3850) Stackable() bool {
	return true
}

func (Cisco3850) BreakCount() int {
	return 3
}

func (Cisco3850) ProbeStackRole(c *common.Console) (StackRole, error) {
	if err := c.WriteLine("mgmt_init"); err != nil {
		return RoleUnknown, err
	}

	hit, err := c.ReadLine(MgmtUpPrompt, MgmtDownPrompt)
	if err != nil {
		return RoleUnknown, fmt.Errorf("probe management interface: %w", err)
	}
	if hit == 0 {
		return RolePrimary, nil
	}

	// The prompt still follows the link error
	if _, err := c.ReadLine(BootPrompt); err != nil {
		return RoleUnknown, fmt.Errorf("probe management interface: %w", err)
	}
	return RoleSecondary, nil
}

func (Cisco3850) SetSwitchNumber(c *common.Console, member StackMember) error {
	if err := bootloaderCommand(c, fmt.Sprintf("set SWITCH_NUMBER %d", member.Number)); err != nil {
		return err
	}
	return bootloaderCommand(c, fmt.Sprintf("set SWITCH_PRIORITY %d", member.Priority))
}

func (Cisco3850) ClearConfig(c *common.Console) error {
	if err := bootloaderCommand(c, "set SWITCH_IGNORE_STARTUP_CFG 1"); err != nil {
		return err
	}
	// Needed to get back into the bootloader after the reload in Configure
	return bootloaderCommand(c, "set ENABLE_BREAK 1")
}

// Configure undoes the password recovery state. Ignoring the startup config
// also shuts every interface, so the primary erases the stack config and
// reloads, and each member then boots normally for auto install.
func (m Cisco3850) Configure(c *common.Console, role StackRole) error {
	if role == RolePrimary {
		if err := c.ClearBuffer(); err != nil {
			return err
		}
		for _, cmd := range []string{"", "en", "wr erase", "", "reload", ""} {
			if err := c.WriteLine(cmd); err != nil {
				return err
			}
		}
	}

	if err := WaitForBootloader(c, m.BreakCount()); err != nil {
		return err
	}
	if err := bootloaderCommand(c, "set SWITCH_IGNORE_STARTUP_CFG 0"); err != nil {
		return err
	}
	return m.Boot(c)
}
