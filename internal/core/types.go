package core

import (
	"context"
	"errors"
)

// Capability contracts routed by the provider router. Each contract is one
// unit of behavior that several installed providers may compete to serve.
const (
	ContractArtistLookup = "artist.lookup"
	ContractAlbumLookup  = "album.lookup"
	ContractArtistSearch = "artist.search"
	ContractAlbumSearch  = "album.search"
	ContractReleaseRank  = "release.rank"
)

// ErrNoProvider is returned when no installed provider currently serves the
// requested capability. Callers must treat this as a normal outcome.
var ErrNoProvider = errors.New("no provider available for capability")

type Artist struct {
	ID       string
	Name     string
	SortName string
	Overview string
	Genres   []string
}

type Album struct {
	ID          string
	ArtistID    string
	Artist      string
	Title       string
	Type        string
	Year        int
	TrackCount  int
	ReleaseDate string
}

type RankedAlbum struct {
	Album      Album
	Confidence float64
	Reasoning  string
}

// ArtistResolver resolves a single artist by its catalog identifier.
type ArtistResolver interface {
	ResolveArtist(ctx context.Context, id string) (*Artist, error)
}

// AlbumResolver resolves a single album by its catalog identifier.
type AlbumResolver interface {
	ResolveAlbum(ctx context.Context, id string) (*Album, error)
}

// ArtistSearcher searches the provider's catalog for artists.
type ArtistSearcher interface {
	SearchArtists(ctx context.Context, query string) ([]Artist, error)
}

// AlbumSearcher searches the provider's catalog for albums.
type AlbumSearcher interface {
	SearchAlbums(ctx context.Context, query string) ([]Album, error)
}

// ReleaseRanker orders album search results by relevance to the query.
type ReleaseRanker interface {
	RankAlbums(ctx context.Context, query string, albums []Album) ([]RankedAlbum, error)
}
