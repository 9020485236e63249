package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moffa90/go-vmboot/bootloader"
	"github.com/moffa90/go-vmboot/protocol"
)

// version is set at build time via -ldflags "-X github.com/moffa90/go-vmboot/internal/cli.vmbootVersion=x.y.z"
var vmbootVersion = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show vmboot and bootloader versions",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "vmboot version %s\n", vmbootVersion)
		fmt.Fprintf(cmd.OutOrStdout(), "bootloader: %s (configured %s)\n", bootloader.DefaultVersion, cfg.Version)
		fmt.Fprintf(cmd.OutOrStdout(), "max payload: %d bytes, max image: %d bytes\n", protocol.MaxPayloadSize, protocol.MaxImageSize)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
