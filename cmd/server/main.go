package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/MegaGrindStone/promptstream"
	"github.com/MegaGrindStone/promptstream/internal/controller"
	"github.com/MegaGrindStone/promptstream/internal/handlers"
	"github.com/MegaGrindStone/promptstream/internal/models"
	"github.com/MegaGrindStone/promptstream/internal/services"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type flags struct {
	configPath string
	envFile    string
	port       string
	logLevel   string
	locale     string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "promptstream",
		Short: "Serve a page that streams a model's answer to a prompt",
		Long: `promptstream serves a single page with a prompt form. Each submitted prompt is sent as one
streaming request to the configured generative model and the answer is rendered as it arrives.

The API key is read once at startup from the config file or the environment (a .env file is loaded
first). Without it the page still loads but explains how to configure the key.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), f)
		},
	}

	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "config file path (default <user config dir>/promptstream/config.yaml)")
	cmd.Flags().StringVar(&f.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	cmd.Flags().StringVarP(&f.port, "port", "p", "", "port to listen on, overrides the config file")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error), overrides the config file")
	cmd.Flags().StringVar(&f.locale, "locale", "", "language of the page messages (en, nl), overrides the config file")

	return cmd
}

func defaultConfigPath() (string, error) {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("error getting user config dir: %w", err)
	}
	return filepath.Join(cfgDir, "promptstream", "config.yaml"), nil
}

func run(ctx context.Context, f flags) error {
	if err := godotenv.Load(f.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error loading env file: %w", err)
	}

	cfgPath := f.configPath
	if cfgPath == "" {
		p, err := defaultConfigPath()
		if err != nil {
			return err
		}
		cfgPath = p
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	if f.port != "" {
		cfg.Port = f.port
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.locale != "" {
		cfg.Locale = f.locale
	}

	level, err := parseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	logger.Info("Loaded config", slog.String("path", cfgPath), slog.String("model", cfg.LLM.modelName()))

	m, err := handlers.NewMain(handlerConfig(cfg, logger), logger)
	if err != nil {
		return fmt.Errorf("error creating handlers: %w", err)
	}

	// Serve static files
	staticFS, err := fs.Sub(promptstream.StaticFS, "static")
	if err != nil {
		return err
	}
	fileServer := http.FileServer(http.FS(staticFS))

	mux := http.NewServeMux()
	mux.Handle("/static/", http.StripPrefix("/static/", fileServer))
	mux.HandleFunc("/", m.HandleHome)
	mux.HandleFunc("/prompts", m.HandlePrompts)
	mux.HandleFunc("/sse", m.HandleSSE)
	mux.HandleFunc("/sessions/close", m.HandleCloseSession)
	mux.HandleFunc("/health", m.HandleHealth)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv.RegisterOnShutdown(func() {
		if err := m.Shutdown(context.Background()); err != nil {
			logger.Error("Failed to shutdown sse server", slog.String("err", err.Error()))
		}
	})

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	go func() {
		logger.Info("Server starting", slog.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		logger.Info("Start shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Graceful shutdown failed", slog.String("err", err.Error()))
			if err := srv.Close(); err != nil {
				logger.Error("Forcing server close", slog.String("err", err.Error()))
			}
		}
	}

	return nil
}

// handlerConfig resolves the API key once and builds the controller configuration shared by all pages.
func handlerConfig(cfg config, logger *slog.Logger) handlers.Config {
	key, env := cfg.LLM.apiKey()

	return handlers.Config{
		Controller: controller.Config{
			APIKey:      key,
			APIKeyEnv:   env,
			KeyOptional: cfg.LLM.keyOptional(),
			Model:       cfg.LLM.modelName(),
			Messages:    models.MessagesFor(models.ParseLocale(cfg.Locale)),
			Guidance:    services.NewGuidance(cfg.GuidanceStyle),
		},
		NewGenerator: cfg.LLM.generator(logger),
		SessionTTL:   cfg.SessionTTL,
	}
}
