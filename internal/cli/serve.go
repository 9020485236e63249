package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/moffa90/go-vmboot/bootloader"
	"github.com/moffa90/go-vmboot/flash"
	"github.com/moffa90/go-vmboot/session"
	"github.com/moffa90/go-vmboot/transport"
)

var (
	serveOnce  bool
	flashImage string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the device-side bootloader on a serial port",
	Long: `Run the bootloader runtime against a serial port. The target flash page
is simulated in memory and persisted to the flash image file after every
completed programming cycle.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flashImage != "" {
			cfg.FlashImage = flashImage
		}

		mem := flash.NewMemoryFor(cfg.Layout())
		if err := mem.Load(cfg.FlashImage); err != nil {
			return err
		}

		port, err := transport.OpenSerial(cfg.SerialConfig())
		if err != nil {
			return err
		}
		queue := transport.NewQueue(port, 0)
		defer queue.Close()

		opts := append(cfg.BootloaderOptions(),
			bootloader.WithLogger(logger),
			bootloader.WithStateChangeCallback(func(from, to session.Phase) {
				fmt.Fprintf(cmd.OutOrStdout(), "session: %s -> %s\n", from, to)
			}),
		)
		rt := bootloader.New(queue, mem, session.NewSystemClock(), opts...)
		if err := rt.Init(); err != nil {
			return err
		}
		defer rt.Cleanup()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Info("serving", "port", cfg.Serial.Port, "flash_image", cfg.FlashImage)
		for {
			result, err := rt.RunMainLoop(ctx)
			switch {
			case result == bootloader.RunComplete:
				if err := mem.Save(cfg.FlashImage); err != nil {
					return err
				}
				stats := rt.Stats()
				fmt.Fprintf(cmd.OutOrStdout(), "Programming complete: %d frames received, %d errors. Flash saved to %s.\n",
					stats.FramesReceived, stats.FrameErrors+stats.RequestErrors, cfg.FlashImage)
				if serveOnce {
					return nil
				}
			case result == bootloader.RunEmergencyShutdown:
				if errors.Is(err, ctx.Err()) {
					return nil
				}
				return err
			case err != nil:
				return fmt.Errorf("bootloader stopped (%s): %w", result, err)
			}

			select {
			case <-queue.Done():
				return fmt.Errorf("serial port closed: %v", queue.Err())
			default:
			}
		}
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveOnce, "once", false, "exit after the first completed programming cycle")
	serveCmd.Flags().StringVar(&flashImage, "flash-image", "", "file backing the simulated flash page, overrides flash_image")
	rootCmd.AddCommand(serveCmd)
}
