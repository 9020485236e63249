package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/moffa90/go-vmboot/host"
	"github.com/moffa90/go-vmboot/image"
	"github.com/moffa90/go-vmboot/transport"
)

var (
	flashTimeout time.Duration
	flashRetries int
)

var flashCmd = &cobra.Command{
	Use:   "flash <image>",
	Short: "Program an image into a device over a serial port",
	Long: `Program a raw binary or Intel HEX image. The image is sent in a single
data packet, so it must not exceed the largest payload a frame can carry.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := image.Load(args[0])
		if err != nil {
			return fmt.Errorf("failed to load image: %w", err)
		}

		port, err := transport.OpenSerial(cfg.SerialConfig())
		if err != nil {
			return err
		}
		defer port.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		prog := host.New(port,
			host.WithLogger(logger),
			host.WithTimeout(flashTimeout),
			host.WithRetries(flashRetries),
			host.WithProgressCallback(func(p host.Progress) {
				fmt.Fprintf(out, "[%-9s] %5.1f%%  %d/%d bytes  %s\n",
					p.Phase, p.Percentage, p.BytesSent, p.TotalBytes, p.ElapsedTime.Round(time.Millisecond))
			}),
		)

		result, err := prog.Program(ctx, img.Data)
		if err != nil {
			return fmt.Errorf("flash failed: %w", err)
		}

		fmt.Fprintf(out, "Programmed %d bytes (%d with padding), hash %X.\n",
			result.ActualDataLength, result.BytesProgrammed, result.VerificationHash)
		return nil
	},
}

func init() {
	flashCmd.Flags().DurationVar(&flashTimeout, "timeout", 5*time.Second, "response timeout per request")
	flashCmd.Flags().IntVar(&flashRetries, "retries", 3, "restart the cycle this many times after lost or corrupted responses")
	rootCmd.AddCommand(flashCmd)
}
