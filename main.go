package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "swinit",
	Short: "Bootstrap Cisco switches from their serial console",
	Long: `swinit waits on a console cable for a switch to boot, breaks into its
bootloader, clears its configuration and boots it far enough for auto install
to take over. It then waits for the next switch.

Examples:
  swinit run --serial /dev/ttyUSB0            # Handle switches until interrupted
  swinit run --config /etc/swinit.yaml --web :8080
  swinit ports                                # List serial ports
  swinit transcript dump console.cbor         # Show a recorded console session`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/swinit.yaml", "configuration file, defaults are used if it does not exist")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
