// Package enrich is the LLM-backed ranking provider. It serves exactly one
// contract: reordering album search results by relevance to the query.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"harmonia/internal/core"
	"harmonia/internal/routing"
)

const providerName = "enrich"

// rankerClient is the backend-specific piece: it sends the ranking prompt to
// one model API and returns the raw JSON content.
type rankerClient interface {
	rank(ctx context.Context, system, payload string) (string, error)
}

type Provider struct {
	config *core.EnrichConfig
	logger *zap.Logger
	client rankerClient
}

// NewProvider builds the ranking provider for the configured backend. A
// backend of "none" (or empty) returns nil without error: ranking is simply
// not installed.
func NewProvider(config *core.EnrichConfig, logger *zap.Logger) (*Provider, error) {
	var client rankerClient
	var err error

	switch config.Provider {
	case "openai":
		client, err = newOpenAIClient(config, logger)
	case "anthropic":
		client, err = newAnthropicClient(config, logger)
	case "ollama":
		client, err = newOllamaClient(config, logger)
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported enrich backend: %s", config.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", config.Provider, err)
	}

	return &Provider{
		config: config,
		logger: logger,
		client: client,
	}, nil
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) Capabilities() []routing.Declaration {
	return []routing.Declaration{
		{Contract: core.ContractReleaseRank, Priority: p.config.Priority},
	}
}

func (p *Provider) RankAlbums(ctx context.Context, query string, albums []core.Album) ([]core.RankedAlbum, error) {
	if len(albums) == 0 {
		return nil, nil
	}

	content, err := p.client.rank(ctx, rankSystemPrompt, buildRankPayload(query, albums))
	if err != nil {
		return nil, err
	}

	ranked, err := parseRankResponse(content, albums, p.config.Threshold)
	if err != nil {
		p.logger.Error("Failed to parse ranking response",
			zap.Error(err),
			zap.String("content", content))
		return nil, err
	}

	p.logger.Debug("Album ranking completed",
		zap.String("query", query),
		zap.Int("input", len(albums)),
		zap.Int("ranked", len(ranked)))

	return ranked, nil
}

const rankSystemPrompt = `You are a music metadata expert. You receive a search query and a numbered list of album releases. Rank the releases by how well they match the query.

Respond with a JSON object in this exact format:
{
  "ranked": [
    {
      "index": 0,
      "confidence": 0.85,
      "reasoning": "Brief explanation"
    }
  ]
}

Rules:
1. "index" refers to the release's number in the input list (0-based)
2. confidence should be between 0.0 and 1.0
3. Order by relevance (best match first)
4. Omit releases that clearly do not match the query
5. Prefer original studio releases over compilations and reissues when the query does not ask for them

Respond with valid JSON only.`

func buildRankPayload(query string, albums []core.Album) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Query: %q\n\nReleases:\n", query)
	for i, album := range albums {
		fmt.Fprintf(&sb, "%d. %s - %s (%s, %d)\n", i, album.Artist, album.Title, album.Type, album.Year)
	}
	return sb.String()
}

type rankResponse struct {
	Ranked []struct {
		Index      int     `json:"index"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning,omitempty"`
	} `json:"ranked"`
}

// parseRankResponse maps the model's index-based ranking back onto the input
// albums. Out-of-range indexes, duplicates, and entries below the confidence
// threshold are dropped.
func parseRankResponse(content string, albums []core.Album, threshold float64) ([]core.RankedAlbum, error) {
	var response rankResponse
	if err := json.Unmarshal([]byte(content), &response); err != nil {
		return nil, fmt.Errorf("failed to parse ranking response: %w", err)
	}

	used := make(map[int]bool, len(response.Ranked))
	ranked := make([]core.RankedAlbum, 0, len(response.Ranked))
	for _, entry := range response.Ranked {
		if entry.Index < 0 || entry.Index >= len(albums) || used[entry.Index] {
			continue
		}
		if entry.Confidence < threshold {
			continue
		}
		used[entry.Index] = true

		ranked = append(ranked, core.RankedAlbum{
			Album:      albums[entry.Index],
			Confidence: entry.Confidence,
			Reasoning:  entry.Reasoning,
		})
	}

	return ranked, nil
}
