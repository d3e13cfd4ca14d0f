package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/a-essam23/go-classroom/internal/server"
	"github.com/a-essam23/go-classroom/pkg/config"
	"github.com/a-essam23/go-classroom/pkg/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

type serveFlags struct {
	configPath string
	addr       string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "go-classroom",
		Short:   "Websocket relay for shared whiteboard classrooms",
		Long:    `go-classroom relays host-admitted rooms: join requests, one two-party call per room, and shared whiteboard edits that every participant replays locally.`,
		Version: version,
	}
	root.SilenceErrors = true
	root.SilenceUsage = true
	root.AddCommand(newServeCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func newServeCmd() *cobra.Command {
	flags := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the relay server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), flags)
		},
	}
	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "path to a config file (default ./config.yaml when present)")
	cmd.Flags().StringVar(&flags.addr, "addr", "", "listen address, overrides server.address")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error; overrides log.level")
	return cmd
}

func serve(parent context.Context, flags *serveFlags) error {
	// .env is optional; real environment variables win over it
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	bootLogger := logging.New(logging.ParseLevel(flags.logLevel))
	cfg, err := config.Load(bootLogger, flags.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if flags.addr != "" {
		cfg.Server.Address = flags.addr
	}
	level := cfg.Log.Level
	if flags.logLevel != "" {
		level = flags.logLevel
	}

	logger := logging.New(logging.ParseLevel(level))
	slog.SetDefault(logger)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := server.NewApp(logger, ctx, cfg)
	if err := app.Run(); err != nil {
		return fmt.Errorf("application run failed: %w", err)
	}
	logger.Info("Application shut down successfully.")
	return nil
}
