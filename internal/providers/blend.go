package providers

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"harmonia/internal/core"
	"harmonia/internal/routing"
	"harmonia/pkg/fuzzy"
)

const (
	blendName = "blend"

	// blendPriority keeps the orchestrator below every real source so it
	// only wins contracts through the mixed-provider rule.
	blendPriority = 1
)

// FanoutSource yields the non-mixed providers currently serving a contract,
// best first. The router satisfies it.
type FanoutSource interface {
	FanoutFor(contract string) []routing.Provider
}

// Blend is the mixed search provider. It never answers from its own catalog:
// it fans a query out to every enabled source for the contract and merges
// their results, deduplicated across catalogs.
type Blend struct {
	source     FanoutSource
	logger     *zap.Logger
	normalizer *fuzzy.Normalizer
}

func NewBlend(source FanoutSource, logger *zap.Logger) *Blend {
	return &Blend{
		source:     source,
		logger:     logger,
		normalizer: fuzzy.NewNormalizer(),
	}
}

func (b *Blend) Name() string { return blendName }

func (b *Blend) Capabilities() []routing.Declaration {
	return []routing.Declaration{
		{Contract: core.ContractArtistSearch, Priority: blendPriority, Mixed: true},
		{Contract: core.ContractAlbumSearch, Priority: blendPriority, Mixed: true},
	}
}

func (b *Blend) SearchArtists(ctx context.Context, query string) ([]core.Artist, error) {
	targets := b.source.FanoutFor(core.ContractArtistSearch)
	if len(targets) == 0 {
		return nil, core.ErrNoProvider
	}

	results := make([][]core.Artist, len(targets))
	errs := make([]error, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	for i, target := range targets {
		searcher, ok := target.(core.ArtistSearcher)
		if !ok {
			errs[i] = fmt.Errorf("provider %s does not implement artist search", target.Name())
			continue
		}
		g.Go(func() error {
			artists, err := searcher.SearchArtists(gctx, query)
			if err != nil {
				// Individual source failures degrade the blend, they do
				// not abort it.
				errs[i] = err
				return nil
			}
			results[i] = artists
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := b.mergeArtists(targets, results, errs)
	if merged == nil {
		return nil, fmt.Errorf("all artist search sources failed: %w", errors.Join(errs...))
	}
	return merged, nil
}

func (b *Blend) SearchAlbums(ctx context.Context, query string) ([]core.Album, error) {
	targets := b.source.FanoutFor(core.ContractAlbumSearch)
	if len(targets) == 0 {
		return nil, core.ErrNoProvider
	}

	results := make([][]core.Album, len(targets))
	errs := make([]error, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	for i, target := range targets {
		searcher, ok := target.(core.AlbumSearcher)
		if !ok {
			errs[i] = fmt.Errorf("provider %s does not implement album search", target.Name())
			continue
		}
		g.Go(func() error {
			albums, err := searcher.SearchAlbums(gctx, query)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = albums
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := b.mergeAlbums(targets, results, errs)
	if merged == nil {
		return nil, fmt.Errorf("all album search sources failed: %w", errors.Join(errs...))
	}
	return merged, nil
}

// mergeArtists combines per-source result slices in priority order, keeping
// the first occurrence of each normalized artist name. A nil return means no
// source succeeded.
func (b *Blend) mergeArtists(targets []routing.Provider, results [][]core.Artist, errs []error) []core.Artist {
	merged := []core.Artist{}
	seen := make(map[string]bool)
	succeeded := 0

	for i, artists := range results {
		if errs[i] != nil {
			b.logger.Warn("Blend source failed for artist search",
				zap.String("provider", targets[i].Name()),
				zap.Error(errs[i]))
			continue
		}
		succeeded++

		for _, artist := range artists {
			key := b.normalizer.NormalizeArtist(artist.Name)
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, artist)
		}
	}

	if succeeded == 0 {
		return nil
	}
	return merged
}

// mergeAlbums does the same for albums, keyed by (artist, title).
func (b *Blend) mergeAlbums(targets []routing.Provider, results [][]core.Album, errs []error) []core.Album {
	merged := []core.Album{}
	seen := make(map[string]bool)
	succeeded := 0

	for i, albums := range results {
		if errs[i] != nil {
			b.logger.Warn("Blend source failed for album search",
				zap.String("provider", targets[i].Name()),
				zap.Error(errs[i]))
			continue
		}
		succeeded++

		for _, album := range albums {
			key := b.normalizer.Key(album.Artist, album.Title)
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, album)
		}
	}

	if succeeded == 0 {
		return nil
	}
	return merged
}
