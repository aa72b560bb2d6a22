package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/stellarlinkco/webmux/internal/config"
	"github.com/stellarlinkco/webmux/internal/gateway"
)

var rootCmd = &cobra.Command{
	Use:   "webmux",
	Short: "webmux - browser-accessible terminal multiplexer gateway",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway (HTTP server, PTY bridge, chat-log watcher)",
	RunE:  runServe,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE:  runConfigShow,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file if one doesn't exist yet",
	RunE:  runInit,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the webmux version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

const version = "0.1.0"

func init() {
	rootCmd.AddCommand(serveCmd, configCmd, initCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	srv, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return srv.Run(ctx)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	out := colorableStdout()
	fmt.Fprintf(out, "%s\n", data)
	fmt.Fprintf(out, "# config file: %s\n", config.ConfigPath())
	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	path := config.ConfigPath()
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("config already exists: %s\n", path)
		return nil
	}

	if err := config.SaveConfig(config.DefaultConfig()); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	fmt.Printf("wrote default config: %s\n", path)
	return nil
}

// colorableStdout returns a writer that renders ANSI color on Windows
// terminals and passes bytes through unchanged everywhere else.
func colorableStdout() io.Writer {
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return colorable.NewColorableStdout()
	}
	return os.Stdout
}
