// File: cmd/devices.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/droidpilot/droidpilot-cli/internal/device"
)

// newDevicesCmd creates the `devices` command listing connected handsets.
func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "Lists Android devices visible to adb",
		RunE: func(cmd *cobra.Command, args []string) error {
			serials, err := device.ListDevices(cmd.Context(), cfg.Device)
			if err != nil {
				return fmt.Errorf("failed to list devices: %w", err)
			}
			if len(serials) == 0 {
				fmt.Println("No devices connected.")
				return nil
			}
			for _, serial := range serials {
				fmt.Println(serial)
			}
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(newDevicesCmd())
}
