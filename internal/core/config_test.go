package core

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Server.Port != DefaultServerPort {
		t.Errorf("Expected default server port %d, got %d", DefaultServerPort, config.Server.Port)
	}

	if config.Enrich.Provider != "none" {
		t.Errorf("Expected default enrich provider to be none (requiring explicit configuration), got %s", config.Enrich.Provider)
	}

	if config.Breaker.FailureThreshold != DefaultBreakerThreshold {
		t.Errorf("Expected default breaker threshold %d, got %d", DefaultBreakerThreshold, config.Breaker.FailureThreshold)
	}

	if config.Breaker.ResetTimeout != DefaultBreakerResetMinutes*time.Minute {
		t.Errorf("Expected default breaker reset %v, got %v", DefaultBreakerResetMinutes*time.Minute, config.Breaker.ResetTimeout)
	}

	if config.MusicDex.BaseURL == "" {
		t.Error("Expected a default MusicDex base URL")
	}
}

func TestConfigConstants(t *testing.T) {
	// Verify configuration constants are reasonable
	if DefaultServerPort <= 0 || DefaultServerPort > 65535 {
		t.Error("DefaultServerPort should be a valid port number")
	}

	if DefaultBreakerThreshold <= 0 {
		t.Error("DefaultBreakerThreshold should be positive")
	}

	if DefaultMusicDexPriority <= DefaultStreamCatalogPriority {
		t.Error("Community mirror should outrank the streaming catalog by default")
	}
}
