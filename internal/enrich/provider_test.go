package enrich

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"harmonia/internal/core"
)

type fakeRanker struct {
	content string
	err     error
}

func (f *fakeRanker) rank(ctx context.Context, system, payload string) (string, error) {
	return f.content, f.err
}

func testAlbums() []core.Album {
	return []core.Album{
		{ID: "r0", Artist: "Kraftwerk", Title: "Autobahn"},
		{ID: "r1", Artist: "Kraftwerk", Title: "The Mix"},
		{ID: "r2", Artist: "Kraftwerk", Title: "Computer World"},
	}
}

func TestNewProvider_NoneBackend(t *testing.T) {
	for _, backend := range []string{"none", ""} {
		p, err := NewProvider(&core.EnrichConfig{Provider: backend}, zap.NewNop())
		if err != nil {
			t.Errorf("Backend %q should not error: %v", backend, err)
		}
		if p != nil {
			t.Errorf("Backend %q should yield no provider", backend)
		}
	}
}

func TestNewProvider_UnsupportedBackend(t *testing.T) {
	if _, err := NewProvider(&core.EnrichConfig{Provider: "cohere"}, zap.NewNop()); err == nil {
		t.Error("Expected an error for an unsupported backend")
	}
}

func TestNewProvider_RequiresAPIKey(t *testing.T) {
	for _, backend := range []string{"openai", "anthropic"} {
		if _, err := NewProvider(&core.EnrichConfig{Provider: backend}, zap.NewNop()); err == nil {
			t.Errorf("Backend %q should require an API key", backend)
		}
	}
}

func TestNewProvider_OllamaNeedsNoKey(t *testing.T) {
	p, err := NewProvider(&core.EnrichConfig{Provider: "ollama", Priority: 10}, zap.NewNop())
	if err != nil {
		t.Fatalf("Ollama backend should not require credentials: %v", err)
	}
	if p.Name() != "enrich" {
		t.Errorf("Unexpected provider name %s", p.Name())
	}

	decls := p.Capabilities()
	if len(decls) != 1 || decls[0].Contract != core.ContractReleaseRank {
		t.Errorf("Expected a single release-rank declaration, got %+v", decls)
	}
}

func TestRankAlbums_MapsIndexesBack(t *testing.T) {
	p := &Provider{
		config: &core.EnrichConfig{Threshold: 0.5},
		logger: zap.NewNop(),
		client: &fakeRanker{content: `{
			"ranked": [
				{"index": 2, "confidence": 0.9, "reasoning": "studio release"},
				{"index": 0, "confidence": 0.8}
			]
		}`},
	}

	ranked, err := p.RankAlbums(context.Background(), "kraftwerk", testAlbums())
	if err != nil {
		t.Fatalf("RankAlbums failed: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("Expected 2 ranked albums, got %d", len(ranked))
	}
	if ranked[0].Album.ID != "r2" || ranked[1].Album.ID != "r0" {
		t.Errorf("Ranking order wrong: %+v", ranked)
	}
	if ranked[0].Reasoning != "studio release" {
		t.Errorf("Reasoning not carried through: %+v", ranked[0])
	}
}

func TestRankAlbums_FiltersInvalidEntries(t *testing.T) {
	p := &Provider{
		config: &core.EnrichConfig{Threshold: 0.5},
		logger: zap.NewNop(),
		client: &fakeRanker{content: `{
			"ranked": [
				{"index": 0, "confidence": 0.9},
				{"index": 0, "confidence": 0.9},
				{"index": 7, "confidence": 0.9},
				{"index": -1, "confidence": 0.9},
				{"index": 1, "confidence": 0.2}
			]
		}`},
	}

	ranked, err := p.RankAlbums(context.Background(), "kraftwerk", testAlbums())
	if err != nil {
		t.Fatalf("RankAlbums failed: %v", err)
	}
	if len(ranked) != 1 || ranked[0].Album.ID != "r0" {
		t.Errorf("Expected only the valid high-confidence entry, got %+v", ranked)
	}
}

func TestRankAlbums_MalformedResponse(t *testing.T) {
	p := &Provider{
		config: &core.EnrichConfig{Threshold: 0.5},
		logger: zap.NewNop(),
		client: &fakeRanker{content: "I cannot rank these albums."},
	}

	if _, err := p.RankAlbums(context.Background(), "kraftwerk", testAlbums()); err == nil {
		t.Error("Expected an error for a non-JSON response")
	}
}

func TestRankAlbums_EmptyInput(t *testing.T) {
	p := &Provider{
		config: &core.EnrichConfig{Threshold: 0.5},
		logger: zap.NewNop(),
		client: &fakeRanker{},
	}

	ranked, err := p.RankAlbums(context.Background(), "kraftwerk", nil)
	if err != nil {
		t.Fatalf("Empty input should be a no-op: %v", err)
	}
	if ranked != nil {
		t.Errorf("Expected no results for empty input, got %+v", ranked)
	}
}
