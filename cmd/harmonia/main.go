// Package main provides the Harmonia CLI application entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"harmonia/internal/breaker"
	"harmonia/internal/core"
	"harmonia/internal/enrich"
	httpserver "harmonia/internal/http"
	"harmonia/internal/providers"
	"harmonia/internal/routing"
	"harmonia/internal/settings"
	"harmonia/internal/store"
)

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "harmonia",
	Short: "Harmonia - provider-routed music metadata service",
	Long: `Harmonia serves music metadata lookups and searches through a set of
installed providers, routing each capability to the best available one and
blending results when several sources can serve a search.`,
	RunE: runHarmonia,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("musicdex-base-url", "", "MusicDex mirror base URL")
	rootCmd.PersistentFlags().Int("musicdex-priority", core.DefaultMusicDexPriority, "MusicDex provider priority")
	rootCmd.PersistentFlags().String("streamcatalog-client-id", "", "stream catalog client ID")
	rootCmd.PersistentFlags().String("streamcatalog-client-secret", "", "stream catalog client secret")
	rootCmd.PersistentFlags().Int("streamcatalog-priority", core.DefaultStreamCatalogPriority, "stream catalog provider priority")
	rootCmd.PersistentFlags().String("enrich-provider", "none", "ranking backend (openai, anthropic, ollama, none)")
	rootCmd.PersistentFlags().String("enrich-model", "", "ranking model name")
	rootCmd.PersistentFlags().String("enrich-api-key", "", "ranking API key")
	rootCmd.PersistentFlags().String("settings-path", "", "provider settings database path")
	rootCmd.PersistentFlags().Int("server-port", core.DefaultServerPort, "HTTP server port")
	rootCmd.PersistentFlags().Int("breaker-threshold", core.DefaultBreakerThreshold, "circuit breaker failure threshold")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(".env")
		viper.SetConfigType("env")
	}

	viper.SetEnvPrefix("HARMONIA")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
			os.Exit(1)
		}
	}

	config = buildConfig()
	logger = buildLogger(config.Log.Level)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	if v := viper.GetString("musicdex-base-url"); v != "" {
		cfg.MusicDex.BaseURL = v
	}
	if v := viper.GetInt("musicdex-priority"); v > 0 {
		cfg.MusicDex.Priority = v
	}

	cfg.StreamCatalog.ClientID = viper.GetString("streamcatalog-client-id")
	cfg.StreamCatalog.ClientSecret = viper.GetString("streamcatalog-client-secret")
	if v := viper.GetInt("streamcatalog-priority"); v > 0 {
		cfg.StreamCatalog.Priority = v
	}

	cfg.Enrich.Provider = viper.GetString("enrich-provider")
	cfg.Enrich.Model = viper.GetString("enrich-model")
	cfg.Enrich.APIKey = viper.GetString("enrich-api-key")
	cfg.Enrich.BaseURL = viper.GetString("enrich-base-url")
	if v := viper.GetFloat64("enrich-threshold"); v > 0 {
		cfg.Enrich.Threshold = v
	}

	if v := viper.GetString("settings-path"); v != "" {
		cfg.Settings.Path = v
	}

	if v := viper.GetString("server-host"); v != "" {
		cfg.Server.Host = v
	}
	cfg.Server.Port = viper.GetInt("server-port")

	if v := viper.GetInt("breaker-threshold"); v > 0 {
		cfg.Breaker.FailureThreshold = v
	}

	cfg.Log.Level = viper.GetString("log-level")

	return cfg
}

func buildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	builtLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return builtLogger
}

// providerSource enumerates the installed providers and reports their
// persisted enabled state. Providers the user never toggled report false,
// which lets the router adopt them as defaults.
type providerSource struct {
	providers []routing.Provider
	states    map[string]bool
}

func (s *providerSource) Providers() []routing.Provider { return s.providers }
func (s *providerSource) Enabled(name string) bool      { return s.states[name] }

func runHarmonia(_ *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("Starting Harmonia",
		zap.String("enrich_provider", config.Enrich.Provider),
		zap.String("musicdex_url", config.MusicDex.BaseURL))

	settingsStore, err := settings.Open(config.Settings.Path, logger.Named("settings"))
	if err != nil {
		return fmt.Errorf("failed to open settings store: %w", err)
	}
	defer settingsStore.Close()

	states, err := settingsStore.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to load provider settings: %w", err)
	}

	breakers := breaker.NewRegistry(
		config.Breaker.FailureThreshold,
		config.Breaker.ResetTimeout,
		logger.Named("breaker"),
	)
	defer breakers.Stop()

	seen := store.NewSeenCache(10000, 0.001)

	router := routing.New(logger.Named("routing"))

	installed := []routing.Provider{
		providers.NewMusicDex(&config.MusicDex, breakers, logger.Named("musicdex")),
		providers.NewBlend(router, logger.Named("blend")),
	}

	if config.StreamCatalog.ClientID != "" && config.StreamCatalog.ClientSecret != "" {
		catalog, err := providers.NewStreamCatalog(ctx, &config.StreamCatalog, breakers, logger.Named("streamcatalog"))
		if err != nil {
			return fmt.Errorf("failed to create stream catalog provider: %w", err)
		}
		installed = append(installed, catalog)
	} else {
		logger.Info("Stream catalog credentials not configured, provider not installed")
	}

	ranker, err := enrich.NewProvider(&config.Enrich, logger.Named("enrich"))
	if err != nil {
		return fmt.Errorf("failed to create ranking provider: %w", err)
	}
	if ranker != nil {
		installed = append(installed, ranker)
	}

	httpServer := httpserver.NewServer(&config.Server, logger.Named("http"))

	router.OnStatusChange(func(ev routing.Event) {
		logger.Info("Active provider changed",
			zap.String("contract", ev.Contract),
			zap.String("provider", ev.Provider),
			zap.String("previous", ev.Previous))
		httpServer.RecordRoutingChange(ev.Contract)
	})

	router.SetSource(&providerSource{providers: installed, states: states})
	router.Initialize()

	dispatcher := routing.NewDispatcher(router, seen, httpServer, logger.Named("dispatch"))
	httpServer.SetDispatcher(dispatcher)
	httpServer.SetProviderAdmin(settingsStore, router)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return httpServer.Start(gCtx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				known, _ := router.Stats()
				httpServer.SetRegisteredProviders(known)
				httpServer.SetActiveProviders(router.ActiveContracts())
				httpServer.SetOpenBreakers(breakers.OpenCount())
			}
		}
	})

	logger.Info("Harmonia started successfully",
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)),
		zap.Int("providers", len(installed)))

	if err := g.Wait(); err != nil {
		logger.Error("Harmonia stopped with error", zap.Error(err))
		return err
	}

	logger.Info("Harmonia stopped gracefully")
	return nil
}
