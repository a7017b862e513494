package switches

import (
	"fmt"
	"strings"

	"github.com/TotallyMonica/swinit/common"
)

var (
	FlashInitDone    = common.Regex(".*done Initializing Flash")
	YesNoPrompt      = common.Regex(`.*\(y/n\)\?`)
	PrivPrompt       = common.Regex(`.*Switch(\([a-z-]+\))?#`)
	SaveConfigPrompt = common.Regex(`.*Save\? \[yes/no\]`)
	ConfirmPrompt    = common.Regex(`.*\[confirm\]`)
)

// Files holding persistent configuration on a 2950, deleted in this order.
var C2950ConfigFiles = []string{
	"config.text",
	"vlan.dat",
	"private-config.text",
	"env_vars",
}

// Just enough for the switch to fetch its config over DHCP and TFTP.
var C2950BringUp = []string{
	"configure terminal",
	"snmp-server community public RO",
	"snmp-server community private RW",
	"no snmp-server system-shutdown",
	"boot host dhcp",
	"interface vlan 1",
	"ip address dhcp",
	"no shutdown",
	"exit",
	"end",
	"write memory",
}

// Cisco2950 covers the Catalyst 2950, which cannot stack and keeps its
// config as plain files on flash.
type Cisco2950 struct {
	iosSwitch
}

func (Cisco2950) Name() string {
	return "Cisco 2950"
}

func (Cisco2950) Matches(model string) bool {
	return strings.HasPrefix(model, "WS-C2950")
}

func (Cisco2950) Stackable() bool {
	return false
}

func (Cisco2950) BreakCount() int {
	return 1
}

func (Cisco2950) ProbeStackRole(*common.Console) (StackRole, error) {
	return RoleUnknown, ErrNotStackable
}

func (Cisco2950) SetSwitchNumber(*common.Console, StackMember) error {
	return ErrNotStackable
}

func (Cisco2950) ClearConfig(c *common.Console) error {
	if err := c.WriteLine("flash_init"); err != nil {
		return err
	}
	if _, err := c.ReadLine(FlashInitDone); err != nil {
		return fmt.Errorf("flash_init: %w", err)
	}
	if _, err := c.ReadLine(BootPrompt); err != nil {
		return fmt.Errorf("flash_init: %w", err)
	}

	for _, file := range C2950ConfigFiles {
		if err := c.WriteLine("del flash:/" + file); err != nil {
			return err
		}
		hit, err := c.ReadLine(YesNoPrompt, BootPrompt)
		if err != nil {
			return fmt.Errorf("delete %s: %w", file, err)
		}
		if hit == 1 {
			c.Logger().Infof("Nothing to delete for %s", file)
			continue
		}
		if err := bootloaderCommand(c, "y"); err != nil {
			return fmt.Errorf("delete %s: %w", file, err)
		}
	}
	return nil
}

func (Cisco2950) Configure(c *common.Console, _ StackRole) error {
	if err := c.WriteLine("enable"); err != nil {
		return err
	}
	if _, err := c.ReadLine(PrivPrompt); err != nil {
		return fmt.Errorf("enable: %w", err)
	}

	for _, cmd := range C2950BringUp {
		if err := c.WriteLine(cmd); err != nil {
			return err
		}
		if _, err := c.ReadLine(PrivPrompt); err != nil {
			return fmt.Errorf("%s: %w", cmd, err)
		}
	}

	if err := c.WriteLine("reload"); err != nil {
		return err
	}
	hit, err := c.ReadLine(SaveConfigPrompt, ConfirmPrompt)
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	if hit == 0 {
		if err := c.WriteLine("no"); err != nil {
			return err
		}
		if _, err := c.ReadLine(ConfirmPrompt); err != nil {
			return fmt.Errorf("reload: %w", err)
		}
	}
	return c.Poke()
}
