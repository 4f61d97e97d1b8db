package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"

	"harmonia/internal/breaker"
	"harmonia/internal/core"
	"harmonia/internal/routing"
)

const (
	streamCatalogName = "streamcatalog"

	// maxCatalogResults limits search results per query.
	maxCatalogResults = 20
)

// StreamCatalog serves lookups and searches from the streaming service's
// public catalog. It authenticates with the client-credentials flow: no user
// account is involved, only catalog metadata is read.
type StreamCatalog struct {
	config *core.StreamCatalogConfig
	logger *zap.Logger
	client *spotify.Client
	guard  *breaker.Breaker
}

func NewStreamCatalog(ctx context.Context, config *core.StreamCatalogConfig, breakers *breaker.Registry, logger *zap.Logger) (*StreamCatalog, error) {
	if config.ClientID == "" || config.ClientSecret == "" {
		return nil, fmt.Errorf("stream catalog requires client credentials")
	}

	auth := &clientcredentials.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}

	token, err := auth.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("stream catalog authentication failed: %w", err)
	}
	logger.Info("Stream catalog authenticated", zap.Time("tokenExpiry", token.Expiry))

	client := spotify.New(auth.Client(ctx))

	return &StreamCatalog{
		config: config,
		logger: logger,
		client: client,
		guard:  breakers.ForProvider(streamCatalogName),
	}, nil
}

func (s *StreamCatalog) Name() string { return streamCatalogName }

func (s *StreamCatalog) Capabilities() []routing.Declaration {
	return []routing.Declaration{
		{Contract: core.ContractArtistLookup, Priority: s.config.Priority},
		{Contract: core.ContractArtistSearch, Priority: s.config.Priority},
		{Contract: core.ContractAlbumSearch, Priority: s.config.Priority},
	}
}

func (s *StreamCatalog) ResolveArtist(ctx context.Context, id string) (*core.Artist, error) {
	if s.guard.IsOpen() {
		return nil, fmt.Errorf("streamcatalog: %w", breaker.ErrOpen)
	}

	artist, err := s.client.GetArtist(ctx, spotify.ID(id))
	if err != nil {
		s.guard.RecordFailure()
		return nil, fmt.Errorf("failed to get artist: %w", err)
	}
	s.guard.RecordSuccess()

	converted := convertCatalogArtist(artist)
	return &converted, nil
}

func (s *StreamCatalog) SearchArtists(ctx context.Context, query string) ([]core.Artist, error) {
	if s.guard.IsOpen() {
		return nil, fmt.Errorf("streamcatalog: %w", breaker.ErrOpen)
	}

	results, err := s.client.Search(ctx, query, spotify.SearchTypeArtist, spotify.Limit(maxCatalogResults))
	if err != nil {
		s.guard.RecordFailure()
		return nil, fmt.Errorf("artist search failed: %w", err)
	}
	s.guard.RecordSuccess()

	if results.Artists == nil {
		return nil, nil
	}

	artists := make([]core.Artist, 0, len(results.Artists.Artists))
	for i := range results.Artists.Artists {
		artists = append(artists, convertCatalogArtist(&results.Artists.Artists[i]))
	}

	s.logger.Debug("Stream catalog artist search completed",
		zap.String("query", query),
		zap.Int("count", len(artists)))

	return artists, nil
}

func (s *StreamCatalog) SearchAlbums(ctx context.Context, query string) ([]core.Album, error) {
	if s.guard.IsOpen() {
		return nil, fmt.Errorf("streamcatalog: %w", breaker.ErrOpen)
	}

	results, err := s.client.Search(ctx, query, spotify.SearchTypeAlbum, spotify.Limit(maxCatalogResults))
	if err != nil {
		s.guard.RecordFailure()
		return nil, fmt.Errorf("album search failed: %w", err)
	}
	s.guard.RecordSuccess()

	if results.Albums == nil {
		return nil, nil
	}

	albums := make([]core.Album, 0, len(results.Albums.Albums))
	for i := range results.Albums.Albums {
		albums = append(albums, convertCatalogAlbum(&results.Albums.Albums[i]))
	}

	s.logger.Debug("Stream catalog album search completed",
		zap.String("query", query),
		zap.Int("count", len(albums)))

	return albums, nil
}

func convertCatalogArtist(artist *spotify.FullArtist) core.Artist {
	return core.Artist{
		ID:     string(artist.ID),
		Name:   artist.Name,
		Genres: artist.Genres,
	}
}

func convertCatalogAlbum(album *spotify.SimpleAlbum) core.Album {
	var artistID, artistName string
	if len(album.Artists) > 0 {
		artistID = string(album.Artists[0].ID)
		names := make([]string, 0, len(album.Artists))
		for _, a := range album.Artists {
			names = append(names, a.Name)
		}
		artistName = strings.Join(names, ", ")
	}

	return core.Album{
		ID:          string(album.ID),
		ArtistID:    artistID,
		Artist:      artistName,
		Title:       album.Name,
		Type:        album.AlbumType,
		Year:        album.ReleaseDateTime().Year(),
		ReleaseDate: album.ReleaseDate,
	}
}
