// Command callpipe runs the voice pipeline server: it terminates telephony
// media streams over websocket and drives each call through speech
// recognition, response generation, and synthesis.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chriscow/callpipe-go/internal/server"
	"github.com/chriscow/callpipe-go/pkg/config"
	"github.com/chriscow/callpipe-go/pkg/observe"
	"github.com/chriscow/callpipe-go/pkg/plugin"
	_ "github.com/chriscow/callpipe-go/pkg/plugin/fake"
	_ "github.com/chriscow/callpipe-go/pkg/plugin/openai"
	_ "github.com/chriscow/callpipe-go/pkg/plugin/silero"
	"github.com/chriscow/callpipe-go/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:          "callpipe",
	Short:        "Voice conversation pipeline for telephony media streams",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.GetVersionInfo())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the media-stream server",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")

		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}

		logger := setupLogger(cfg.Server.LogLevel)
		logger.Info("starting server",
			slog.String("version", version.Version),
			slog.String("addr", cfg.Server.ListenAddr),
			slog.Bool("metrics", cfg.Server.EnableMetrics))

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if cfg.Server.EnableMetrics {
			shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
				ServiceVersion: version.Version,
			})
			if err != nil {
				return fmt.Errorf("metrics setup: %w", err)
			}
			defer shutdown(context.Background())
		}

		return server.New(cfg, logger).Run(ctx)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration file and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		fmt.Printf("config ok: listening on %s, %d pipeline stages\n",
			cfg.Server.ListenAddr, len(cfg.Pipeline.Stages))
		return nil
	},
}

var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Provider plugin commands",
}

var pluginListCmd = &cobra.Command{
	Use:   "list [kind]",
	Short: "List registered provider plugins",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		kind := ""
		if len(args) > 0 {
			kind = args[0]
		}

		plugins := plugin.List(kind)
		if len(plugins) == 0 {
			fmt.Println("no plugins registered")
			return
		}

		fmt.Printf("%-6s %-12s %s\n", "KIND", "NAME", "DESCRIPTION")
		for _, p := range plugins {
			fmt.Printf("%-6s %-12s %s\n", p.Kind, p.Name, p.Description)
		}
	},
}

var pluginDownloadCmd = &cobra.Command{
	Use:   "download-files",
	Short: "Download missing model files for registered plugins",
	RunE: func(cmd *cobra.Command, args []string) error {
		var failed int
		for _, p := range plugin.List("") {
			if p.Downloader == nil {
				continue
			}
			if err := p.Downloader.Download(); err != nil {
				fmt.Fprintf(os.Stderr, "%s/%s: %v\n", p.Kind, p.Name, err)
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d downloads failed", failed)
		}
		return nil
	},
}

var pluginLoadCmd = &cobra.Command{
	Use:   "load [directory]",
	Short: "Load dynamic .so plugins (linux, -tags plugindyn)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := ""
		if len(args) > 0 {
			dir = args[0]
		}
		return plugin.LoadDynamicPlugins(dir)
	},
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func setupLogger(level config.LogLevel) *slog.Logger {
	opts := &slog.HandlerOptions{}
	switch level {
	case config.LogDebug:
		opts.Level = slog.LevelDebug
	case config.LogWarn:
		opts.Level = slog.LevelWarn
	case config.LogError:
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	var handler slog.Handler
	if os.Getenv("CALLPIPE_LOG_FORMAT") == "console" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func init() {
	serveCmd.Flags().String("config", "", "path to YAML configuration file")
	checkCmd.Flags().String("config", "", "path to YAML configuration file")
	pluginCmd.AddCommand(pluginListCmd, pluginDownloadCmd, pluginLoadCmd)
	rootCmd.AddCommand(versionCmd, serveCmd, checkCmd, pluginCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
