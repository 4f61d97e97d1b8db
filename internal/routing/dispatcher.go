package routing

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"harmonia/internal/core"
)

// DispatchRecorder receives telemetry about capability dispatches. The HTTP
// server's metrics satisfy it; a nil recorder disables recording.
type DispatchRecorder interface {
	RecordDispatch(contract, provider, status string)
	ObserveDispatch(contract string, duration time.Duration)
}

// Library answers whether an album is already present in the managed
// library, so new-album discovery can skip what the user already has.
// Successful album lookups feed it through Add.
type Library interface {
	Has(albumID string) bool
	Add(albumID string)
}

// Dispatcher is the object outside callers invoke. It looks up the active
// provider for the capability being called and forwards the call, oblivious
// to how many candidates existed.
type Dispatcher struct {
	router   *Router
	library  Library
	recorder DispatchRecorder
	logger   *zap.Logger
}

func NewDispatcher(router *Router, library Library, recorder DispatchRecorder, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		router:   router,
		library:  library,
		recorder: recorder,
		logger:   logger,
	}
}

// LookupArtist resolves an artist by catalog identifier through the active
// artist-lookup provider.
func (d *Dispatcher) LookupArtist(ctx context.Context, id string) (*core.Artist, error) {
	p, resolver, err := activeAs[core.ArtistResolver](d, core.ContractArtistLookup)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	artist, err := resolver.ResolveArtist(ctx, id)
	d.record(core.ContractArtistLookup, p.Name(), start, err)
	if err != nil {
		return nil, fmt.Errorf("artist lookup via %s failed: %w", p.Name(), err)
	}
	return artist, nil
}

// LookupAlbum resolves an album by catalog identifier through the active
// album-lookup provider.
func (d *Dispatcher) LookupAlbum(ctx context.Context, id string) (*core.Album, error) {
	p, resolver, err := activeAs[core.AlbumResolver](d, core.ContractAlbumLookup)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	album, err := resolver.ResolveAlbum(ctx, id)
	d.record(core.ContractAlbumLookup, p.Name(), start, err)
	if err != nil {
		return nil, fmt.Errorf("album lookup via %s failed: %w", p.Name(), err)
	}

	// A looked-up album is one the caller is importing; remember it so
	// discovery searches stop suggesting it.
	if d.library != nil && album != nil {
		d.library.Add(album.ID)
	}
	return album, nil
}

// SearchArtists forwards an artist search to the active provider.
func (d *Dispatcher) SearchArtists(ctx context.Context, query string) ([]core.Artist, error) {
	p, searcher, err := activeAs[core.ArtistSearcher](d, core.ContractArtistSearch)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	artists, err := searcher.SearchArtists(ctx, query)
	d.record(core.ContractArtistSearch, p.Name(), start, err)
	if err != nil {
		return nil, fmt.Errorf("artist search via %s failed: %w", p.Name(), err)
	}
	return artists, nil
}

// SearchAlbums forwards an album search to the active provider and, when a
// ranking provider is available, reorders the results by relevance.
func (d *Dispatcher) SearchAlbums(ctx context.Context, query string) ([]core.Album, error) {
	p, searcher, err := activeAs[core.AlbumSearcher](d, core.ContractAlbumSearch)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	albums, err := searcher.SearchAlbums(ctx, query)
	d.record(core.ContractAlbumSearch, p.Name(), start, err)
	if err != nil {
		return nil, fmt.Errorf("album search via %s failed: %w", p.Name(), err)
	}

	return d.rank(ctx, query, albums), nil
}

// SearchNewAlbums is the discovery variant of SearchAlbums: albums already
// present in the library are filtered out of the results.
func (d *Dispatcher) SearchNewAlbums(ctx context.Context, query string) ([]core.Album, error) {
	albums, err := d.SearchAlbums(ctx, query)
	if err != nil {
		return nil, err
	}
	if d.library == nil {
		return albums, nil
	}

	fresh := albums[:0]
	for _, album := range albums {
		if !d.library.Has(album.ID) {
			fresh = append(fresh, album)
		}
	}
	return fresh, nil
}

// rank is best effort: ranking failures degrade to the provider's original
// ordering.
func (d *Dispatcher) rank(ctx context.Context, query string, albums []core.Album) []core.Album {
	if len(albums) < 2 {
		return albums
	}

	p, ranker, err := activeAs[core.ReleaseRanker](d, core.ContractReleaseRank)
	if err != nil {
		return albums
	}

	start := time.Now()
	ranked, err := ranker.RankAlbums(ctx, query, albums)
	d.record(core.ContractReleaseRank, p.Name(), start, err)
	if err != nil {
		d.logger.Warn("Result ranking failed, keeping provider order",
			zap.String("provider", p.Name()),
			zap.Error(err))
		return albums
	}
	if len(ranked) == 0 {
		return albums
	}

	ordered := make([]core.Album, 0, len(ranked))
	for _, ra := range ranked {
		ordered = append(ordered, ra.Album)
	}
	return ordered
}

func (d *Dispatcher) record(contract, provider string, start time.Time, err error) {
	if d.recorder == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	d.recorder.RecordDispatch(contract, provider, status)
	d.recorder.ObserveDispatch(contract, time.Since(start))
}

// activeAs resolves the active provider for a contract and asserts the
// matching capability interface.
func activeAs[T any](d *Dispatcher, contract string) (Provider, T, error) {
	var zero T

	p, ok := d.router.ActiveFor(contract)
	if !ok {
		return nil, zero, core.ErrNoProvider
	}

	capability, ok := p.(T)
	if !ok {
		// A declared contract without the matching interface is a provider
		// implementation bug.
		d.logger.Error("Active provider does not implement its declared capability",
			zap.String("provider", p.Name()),
			zap.String("contract", contract))
		return nil, zero, fmt.Errorf("provider %s does not implement %s", p.Name(), contract)
	}
	return p, capability, nil
}
