package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Args:  cobra.NoArgs,
	RunE:  runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return fmt.Errorf("list serial ports: %w", err)
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found!")
		return nil
	}

	for _, port := range ports {
		fmt.Printf("Found port %v\n", port.Name)
		fmt.Printf("\tDescription:\t%s\n", port.Product)
		if port.IsUSB {
			fmt.Printf("\tUSB ID\t\t%s:%s\n", port.VID, port.PID)
			fmt.Printf("\tUSB Serial\t%s\n", port.SerialNumber)
		}
	}
	return nil
}
