// Package main provides the CLI entry point for the hostbridge agent
// and its companion client commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/aurelia-ai/hostbridge/internal/agent"
	"github.com/aurelia-ai/hostbridge/internal/client"
	"github.com/aurelia-ai/hostbridge/internal/config"
	"github.com/aurelia-ai/hostbridge/internal/logging"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time
	Version = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hostbridge",
		Short: "Hostbridge - local host command bridge",
		Long: `Hostbridge runs a trusted agent on the local machine and lets
clients drive it over a single long-lived socket: execute shell
commands with streamed output, read and write files, open paths
with the host's default handler, and query host telemetry.

The agent binds the first free port from a fixed candidate list;
clients discover it by walking the same list.`,
		Version: Version,
	}

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(agentCmd())
	rootCmd.AddCommand(execCmd())
	rootCmd.AddCommand(readCmd())
	rootCmd.AddCommand(writeCmd())
	rootCmd.AddCommand(openCmd())
	rootCmd.AddCommand(telemetryCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	var configPath string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long:  "Write a default configuration file to the given path.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
			}

			if dir := filepath.Dir(configPath); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("failed to create %s: %w", dir, err)
				}
			}
			if err := os.WriteFile(configPath, []byte(config.Default().String()), 0o600); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}

			fmt.Printf("Wrote default configuration to %s\n", configPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "./config.yaml", "Path to configuration file")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	return cmd
}

func agentCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Run the host agent",
		Long:  "Start the host agent and serve bridge connections until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			logger := logging.NewLogger(cfg.Agent.LogLevel, cfg.Agent.LogFormat)

			srv, err := agent.NewServer(cfg, logger, nil)
			if err != nil {
				return fmt.Errorf("failed to create agent: %w", err)
			}

			port, err := srv.Listen()
			if err != nil {
				return err
			}
			fmt.Printf("Hostbridge agent listening on %s:%d\n", cfg.Bridge.Host, port)
			if cfg.Metrics.Enabled {
				fmt.Printf("Metrics: http://%s:%d/metrics\n", cfg.Bridge.Host, port)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Run(ctx) }()

			select {
			case <-ctx.Done():
				fmt.Println("\nShutting down...")
				srv.Shutdown()
				<-errCh
			case err := <-errCh:
				if err != nil {
					return err
				}
			}

			fmt.Println("Agent stopped.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "./config.yaml", "Path to configuration file")

	return cmd
}

func execCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "exec <command...>",
		Short: "Execute a shell command on the host",
		Long:  "Execute a shell command through the agent and print its output.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(configPath, func(ctx context.Context, mgr *client.Manager) error {
				res, err := mgr.Execute(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}

				fmt.Print(res.Output)
				if res.Errors != "" {
					fmt.Fprint(os.Stderr, res.Errors)
				}
				if code := res.ExitCode(); code != 0 {
					return fmt.Errorf("command exited with status %d", code)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "./config.yaml", "Path to configuration file")

	return cmd
}

func readCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "read <path>",
		Short: "Read a file from the host",
		Long:  "Read a file relative to the agent's working directory and print it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(configPath, func(ctx context.Context, mgr *client.Manager) error {
				content, err := mgr.ReadFile(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Print(content)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "./config.yaml", "Path to configuration file")

	return cmd
}

func writeCmd() *cobra.Command {
	var configPath string
	var fromFile string

	cmd := &cobra.Command{
		Use:   "write <path> [content]",
		Short: "Write a file on the host",
		Long: `Write a file relative to the agent's working directory. Content
comes from the second argument, from --from, or from stdin.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var content string
			switch {
			case len(args) == 2:
				content = args[1]
			case fromFile != "":
				data, err := os.ReadFile(fromFile)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", fromFile, err)
				}
				content = string(data)
			default:
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				content = string(data)
			}

			return withClient(configPath, func(ctx context.Context, mgr *client.Manager) error {
				if err := mgr.WriteFile(ctx, args[0], content); err != nil {
					return err
				}
				fmt.Printf("Wrote %s (%s)\n", args[0], humanize.Bytes(uint64(len(content))))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "./config.yaml", "Path to configuration file")
	cmd.Flags().StringVar(&fromFile, "from", "", "Local file to copy content from")

	return cmd
}

func openCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "open <target>",
		Short: "Open a path or URL on the host",
		Long:  "Ask the agent to open a path or URL with the host's default handler.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(configPath, func(ctx context.Context, mgr *client.Manager) error {
				if err := mgr.Open(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Opened %s\n", args[0])
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "./config.yaml", "Path to configuration file")

	return cmd
}

var (
	telemetryTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	telemetryLabel = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Width(10)
	telemetryValue = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
)

func telemetryCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "telemetry",
		Short: "Show host telemetry",
		Long:  "Request a fresh telemetry snapshot from the agent and display it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(configPath, func(ctx context.Context, mgr *client.Manager) error {
				snap, err := mgr.Telemetry(ctx)
				if err != nil {
					return err
				}

				admin := "no"
				if snap.IsAdmin != nil && *snap.IsAdmin {
					admin = "yes"
				}
				memory := "unknown"
				if snap.Memory > 0 {
					memory = humanize.IBytes(snap.Memory)
				}

				fmt.Println(telemetryTitle.Render("Host telemetry"))
				rows := []struct{ label, value string }{
					{"Hostname", snap.Hostname},
					{"Platform", snap.Platform},
					{"Arch", snap.Arch},
					{"Admin", admin},
					{"Memory", memory},
				}
				for _, r := range rows {
					fmt.Printf("%s %s\n",
						telemetryLabel.Render(r.label),
						telemetryValue.Render(r.value))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "./config.yaml", "Path to configuration file")

	return cmd
}

// loadConfig loads the config file, falling back to defaults when it
// does not exist so the zero-setup loopback case just works.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return config.Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// withClient connects a managed client, waits for authorization, runs
// fn, and tears the link down.
func withClient(configPath string, fn func(ctx context.Context, mgr *client.Manager) error) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Client commands keep the terminal quiet unless something is wrong.
	logger := logging.NewLogger("warn", cfg.Agent.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mgr := client.NewManager(cfg.Client, logger, nil)
	defer mgr.Close()

	runErr := make(chan error, 1)
	go func() { runErr <- mgr.Run(ctx) }()

	authCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := mgr.WaitAuthorized(authCtx); err != nil {
		select {
		case e := <-runErr:
			if e != nil && !errors.Is(e, context.Canceled) {
				return e
			}
		default:
		}
		return fmt.Errorf("could not reach agent: %w", err)
	}

	return fn(ctx, mgr)
}
