package core

import (
	"time"
)

const (
	// DefaultServerPort is the default HTTP server port
	DefaultServerPort = 8080
	// DefaultBreakerThreshold is the failure count at which a breaker opens
	DefaultBreakerThreshold = 5
	// DefaultBreakerResetMinutes is how long an open breaker waits before auto-resetting
	DefaultBreakerResetMinutes = 5
	// DefaultMusicDexPriority ranks the community mirror above the streaming catalog
	DefaultMusicDexPriority = 50
	// DefaultStreamCatalogPriority ranks the streaming catalog as the secondary source
	DefaultStreamCatalogPriority = 40
	// DefaultEnrichPriority ranks the LLM ranking provider
	DefaultEnrichPriority = 10
)

type Config struct {
	Server        ServerConfig
	Log           LogConfig
	MusicDex      MusicDexConfig
	StreamCatalog StreamCatalogConfig
	Enrich        EnrichConfig
	Settings      SettingsConfig
	Breaker       BreakerConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type MusicDexConfig struct {
	BaseURL  string
	Priority int
	Timeout  time.Duration
}

type StreamCatalogConfig struct {
	ClientID     string
	ClientSecret string
	Priority     int
}

type EnrichConfig struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	Priority  int
	Threshold float64
}

type SettingsConfig struct {
	Path string
}

type BreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         DefaultServerPort,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		MusicDex: MusicDexConfig{
			BaseURL:  "https://api.musicdex.org/v1",
			Priority: DefaultMusicDexPriority,
			Timeout:  30 * time.Second,
		},
		StreamCatalog: StreamCatalogConfig{
			Priority: DefaultStreamCatalogPriority,
		},
		Enrich: EnrichConfig{
			Provider:  "none",
			Priority:  DefaultEnrichPriority,
			Threshold: 0.5,
		},
		Settings: SettingsConfig{
			Path: "./harmonia_settings.db",
		},
		Breaker: BreakerConfig{
			FailureThreshold: DefaultBreakerThreshold,
			ResetTimeout:     DefaultBreakerResetMinutes * time.Minute,
		},
	}
}
