package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cochaviz/opsipxeconfd/internal/backend"
	"github.com/cochaviz/opsipxeconfd/internal/backend/opsirpc"
	"github.com/cochaviz/opsipxeconfd/internal/config"
	"github.com/cochaviz/opsipxeconfd/internal/control"
	"github.com/cochaviz/opsipxeconfd/internal/logging"
	"github.com/cochaviz/opsipxeconfd/internal/model"
	"github.com/cochaviz/opsipxeconfd/internal/pidfile"
	"github.com/cochaviz/opsipxeconfd/internal/supervisor"
)

const version = "0.1.0"

const defaultConfFile = "/etc/opsi/opsipxeconfd.conf"

func main() {
	var levelVar slog.LevelVar
	levelVar.Set(logging.LevelFromVerbosity(4))

	logger := logging.NewCLI(os.Stderr, &levelVar)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(logger, &levelVar)
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("command interrupted", "error", err)
			os.Exit(130)
		}
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCommand(logger *slog.Logger, levelVar *slog.LevelVar) *cobra.Command {
	var (
		confFile   string
		loglevel   int
		noFork     bool
		socketPath string
	)

	resolveSocket := func() string {
		path := strings.TrimSpace(socketPath)
		if path == "" {
			return control.DefaultSocketPath
		}
		return path
	}

	root := &cobra.Command{
		Use:           "opsipxeconfd",
		Short:         "opsi PXE boot configuration daemon",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVarP(&confFile, "conffile", "c", defaultConfFile, "Path to the daemon's configuration file")
	root.PersistentFlags().IntVarP(&loglevel, "loglevel", "l", 4, "Log verbosity (0-9)")
	root.PersistentFlags().BoolVarP(&noFork, "no-fork", "F", false, "Run in the foreground, logging to stderr")
	root.PersistentFlags().StringVar(&socketPath, "socket", "", "Override the control socket path")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		levelVar.Set(logging.LevelFromVerbosity(loglevel))
		return nil
	}

	root.AddCommand(
		newVersionCommand(),
		newStartCommand(&confFile, &noFork, resolveSocket),
		newStopCommand(resolveSocket),
		newStatusCommand(resolveSocket),
		newUpdateCommand(resolveSocket),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the daemon's version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}
}

func newStartCommand(confFile *string, noFork *bool, socketPath func() string) *cobra.Command {
	var (
		depotID         string
		serviceURL      string
		serviceUsername string
		servicePassword string
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*confFile)
			if err != nil {
				return fmt.Errorf("configuration: %w", err)
			}

			level := logging.LevelFromVerbosity(cfg.LogLevel)
			if cmd.Flags().Changed("loglevel") {
				v, _ := cmd.Flags().GetInt("loglevel")
				level = logging.LevelFromVerbosity(v)
			}

			var daemonLogger *slog.Logger
			if *noFork {
				daemonLogger = logging.NewCLI(os.Stderr, level)
			} else {
				logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
				if err != nil {
					return fmt.Errorf("open log file %s: %w", cfg.LogFile, err)
				}
				defer logFile.Close()
				daemonLogger = logging.New(logging.ParseMode(cfg.LogFormat), logFile, level)
			}

			if err := pidfile.CheckLive(cfg.PIDFile); err != nil {
				if !errors.Is(err, pidfile.ErrStaleProcess) {
					return err
				}
				daemonLogger.Warn("removing stale pid file", "path", cfg.PIDFile)
				if err := pidfile.Remove(cfg.PIDFile); err != nil {
					return err
				}
			}
			if err := pidfile.Write(cfg.PIDFile); err != nil {
				return fmt.Errorf("write pid file: %w", err)
			}
			defer pidfile.Remove(cfg.PIDFile)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			factory := func(cfg config.Config, logger *slog.Logger) (backend.Port, error) {
				return opsirpc.New(serviceURL, serviceUsername, model.NewSecret(servicePassword), nil), nil
			}

			sup := supervisor.New(*confFile, socketPath(), depotID, factory, daemonLogger)

			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case <-hup:
						if err := sup.Reload(ctx); err != nil {
							daemonLogger.Error("reload failed", "error", err)
						}
					}
				}
			}()

			daemonLogger.Info("starting opsipxeconfd", "conffile", *confFile)
			return sup.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&depotID, "depot-id", "", "Depot id this daemon serves (defaults to the local hostname)")
	cmd.Flags().StringVar(&serviceURL, "service-url", "https://localhost:4447/rpc", "opsi configuration service RPC endpoint")
	cmd.Flags().StringVar(&serviceUsername, "service-username", "", "opsi configuration service username")
	cmd.Flags().StringVar(&servicePassword, "service-password", "", "opsi configuration service password")

	return cmd
}

func newStopCommand(socketPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Ask a running daemon to shut down",
		RunE: func(cmd *cobra.Command, args []string) error {
			reply, err := control.NewClient(socketPath()).Stop()
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return err
		},
	}
}

func newStatusCommand(socketPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the running daemon's status report",
		RunE: func(cmd *cobra.Command, args []string) error {
			reply, err := control.NewClient(socketPath()).Status()
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return err
		},
	}
}

func newUpdateCommand(socketPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "update <clientId> [<cachePath>]",
		Args:  cobra.RangeArgs(1, 2),
		Short: "Ask a running daemon to (re)write one client's boot configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cachePath := ""
			if len(args) == 2 {
				cachePath = args[1]
			}
			reply, err := control.NewClient(socketPath()).Update(args[0], cachePath)
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return err
		},
	}
}
