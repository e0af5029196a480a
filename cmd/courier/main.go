package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/staybridge/courier/internal/config"
	"github.com/staybridge/courier/internal/store"
	"github.com/staybridge/courier/internal/websocket"
)

var (
	// Build info (set via ldflags).
	Version = "dev"
	Build   = "unknown"
)

var (
	flagAddr    string
	flagDataDir string
	flagVerbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "courier",
		Short: "Real-time messaging transport",
		Long: `Courier is the real-time messaging transport for the booking platform:
a WebSocket server that routes chat messages and read receipts between
authenticated users, with a REST fallback for offline peers.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&flagAddr, "addr", "", "listen/connect address (overrides COURIER_ADDR)")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "data directory (overrides COURIER_DATA_DIR)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("courier %s (%s)\n", Version, Build)
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the transport server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger()

			if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
				return fmt.Errorf("create data directory: %w", err)
			}
			st, err := store.Open(cfg.DataDir)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer func() { _ = st.Close() }()

			server := websocket.NewServer(cfg, st, logger)
			server.SetDisconnectHook(func(userID string) {
				logger.Info("user went offline", "user_id", userID)
			})
			if err := server.Start(context.Background()); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			logger.Info("shutting down")
			return server.Stop()
		},
	}
}

// loadConfig resolves configuration from the environment with CLI flags on
// top.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flagAddr != "" {
		cfg.Addr = flagAddr
	}
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
