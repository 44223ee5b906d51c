package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"mirrorbot/internal/bus"
	"mirrorbot/internal/channel"
	"mirrorbot/internal/config"
	"mirrorbot/internal/journal"
	"mirrorbot/internal/mapping"
	"mirrorbot/internal/metrics"
	"mirrorbot/internal/notify"
	"mirrorbot/internal/relay"

	"github.com/spf13/cobra"
)

var (
	version    = "0.3.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "mirrorbot",
		Short: "Mirror Discord channels across servers",
		Long:  "mirrorbot relays messages from mapped channels on a source server to a target server, preserving author names and avatars through per-channel webhooks.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ~/.mirrorbot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(runCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
				return err
			}
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			logger.Info("fill in source.userToken, target.botToken, the server IDs, and relay.channelMapping, then run 'mirrorbot run'")
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the mirror (source listener + target relay)",
		Long:  "Connects both Discord sessions and relays mapped messages until interrupted. Press Ctrl+C to stop.",
		RunE:  runMirror,
	}
}

func runMirror(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = buildLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messageBus := bus.New(cfg.General.BusBuffer, logger)
	defer messageBus.Close()

	mappings := mapping.NewStore(cfg.Relay.ChannelMapping)

	var relayJournal *journal.Store
	if cfg.Journal.Enabled {
		relayJournal, err = journal.NewStore(config.ExpandPath(cfg.Journal.DBPath), logger)
		if err != nil {
			return fmt.Errorf("relay journal: %w", err)
		}
		defer relayJournal.Close()
	}

	var notifier *notify.Telegram
	if cfg.Notify.Telegram.Enabled {
		chatID, _ := strconv.ParseInt(cfg.Notify.Telegram.ChatID, 10, 64)
		notifier, err = notify.NewTelegram(cfg.Notify.Telegram.Token, chatID, logger)
		if err != nil {
			logger.Warn("telegram notifier disabled", "err", err)
			notifier = nil
		}
	}

	collector := metrics.Default
	if cfg.Metrics.Enabled {
		startMetricsServer(ctx, cfg, collector)
	}

	source, err := channel.NewSource(channel.SourceConfig{
		UserToken: cfg.Source.UserToken,
		ServerID:  cfg.Source.ServerID,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("source session: %w", err)
	}

	target, err := channel.NewTarget(channel.TargetConfig{
		BotToken: cfg.Target.BotToken,
		ServerID: cfg.Target.ServerID,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("target session: %w", err)
	}

	filter := relay.NewFilter(cfg.Source.ServerID, cfg.Relay.FilterBots, mappings, source.SelfID)
	webhooks := relay.NewDirectory(target.Session(), cfg.Relay.WebhookName, logger)
	fetcher := relay.NewFetcher(
		time.Duration(cfg.Relay.FetchTimeoutS)*time.Second,
		int64(cfg.Relay.MaxAttachmentMB)<<20,
		logger,
		collector,
	)

	var deliveryJournal relay.DeliveryJournal
	if relayJournal != nil {
		deliveryJournal = relayJournal
	}
	var notifyFn func(string)
	if notifier != nil {
		notifyFn = notifier.Notify
	}

	dispatcher := relay.NewDispatcher(relay.DispatcherConfig{
		Target:             target.Session(),
		Webhooks:           webhooks,
		Fetcher:            fetcher,
		Resolver:           relay.NewResolver(cfg.Relay.DebugAvatars, logger),
		Mappings:           mappings,
		SourceChannelName:  source.ChannelName,
		Journal:            deliveryJournal,
		Metrics:            collector,
		Notify:             notifyFn,
		PrefixFormat:       cfg.Relay.PrefixFormat,
		IncludeEmbeds:      cfg.Relay.IncludeEmbeds,
		IncludeAttachments: cfg.Relay.IncludeAttachments,
		LogMessages:        cfg.Relay.LogMessages,
		Logger:             logger,
	})

	admin := channel.NewAdmin(channel.AdminConfig{
		CommandPrefix: cfg.Relay.CommandPrefix,
		Client:        target.Session(),
		Mappings:      mappings,
		Webhooks:      webhooks,
		Journal:       adminJournal(relayJournal),
		SourceReady:   source.Ready,
		TargetReady:   target.Ready,
		Logger:        logger,
	})
	admin.Register(target.Session())

	go dispatcher.Run(ctx, messageBus)

	errCh := make(chan error, 2)
	go func() {
		if err := target.Start(ctx); err != nil {
			errCh <- fmt.Errorf("target session: %w", err)
		}
	}()
	go func() {
		if err := source.Start(ctx, messageBus, filter); err != nil {
			errCh <- fmt.Errorf("source session: %w", err)
		}
	}()

	logger.Info("mirror started. Press Ctrl+C to stop.",
		"source_server", cfg.Source.ServerID,
		"target_server", cfg.Target.ServerID,
		"mappings", mappings.Len(),
	)

	select {
	case err := <-errCh:
		stop()
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down mirror...")

	const shutdownTimeout = 10 * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		messageBus.Close()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
		return nil
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		return fmt.Errorf("shutdown timed out")
	}
}

// adminJournal converts a possibly-nil store into the interface the admin
// surface expects; a plain assignment would produce a non-nil interface
// wrapping a nil pointer.
func adminJournal(s *journal.Store) channel.JournalReader {
	if s == nil {
		return nil
	}
	return s
}

func buildLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.General.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	out := os.Stderr
	if cfg.General.LogFile != "" {
		path := config.ExpandPath(cfg.General.LogFile)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err == nil {
			if f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
				out = f
			}
		}
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

func startMetricsServer(ctx context.Context, cfg *config.Config, collector *metrics.Collector) {
	addr := net.JoinHostPort(cfg.Metrics.Host, strconv.Itoa(cfg.Metrics.Port))
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", collector.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Info("metrics server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false, "err", err)
				return nil
			}
			logger.Info("config", "path", cfgPath, "loaded", true)
			logger.Info("relay",
				"source_server", cfg.Source.ServerID,
				"target_server", cfg.Target.ServerID,
				"mappings", len(cfg.Relay.ChannelMapping),
				"webhook_name", cfg.Relay.WebhookName,
			)
			if cfg.Journal.Enabled {
				logger.Info("journal", "enabled", true, "db", config.ExpandPath(cfg.Journal.DBPath))
			} else {
				logger.Info("journal", "enabled", false)
			}
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. relay.webhookName)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. relay.filterBots false)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values (tokens masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			sanitized := config.Sanitize(cfg)
			data, _ := json.MarshalIndent(sanitized, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
