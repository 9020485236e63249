// Package cli implements the vmboot command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/moffa90/go-vmboot/config"
	"github.com/moffa90/go-vmboot/logging"
)

var (
	// Global flags
	cfgFile  string
	logLevel string
	portName string

	// Shared state set during PersistentPreRun
	cfg    *config.Config
	zapLog *zap.Logger
	logger logging.Logger
)

// rootCmd is the base command for vmboot.
var rootCmd = &cobra.Command{
	Use:   "vmboot",
	Short: "Serial bootloader emulator and flashing tool",
	Long: `vmboot speaks the framed serial bootloader protocol from both ends.
"serve" runs the device-side bootloader against a serial port with a
file-backed simulated flash page; "flash" programs an image into a device
over a serial port.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load configuration
		path := cfgFile
		if path == "" {
			path = config.DefaultPath()
		}
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Override config with flags
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		if portName != "" {
			cfg.Serial.Port = portName
		}

		zapLog, err = logging.New(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger = logging.FromZap(zapLog)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if zapLog != nil {
			_ = zapLog.Sync()
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// RootCmd returns the root cobra.Command for testing purposes.
func RootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.vmboot/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "serial port, overrides serial.port")
}
