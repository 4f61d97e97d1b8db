// Package providers contains the installed capability providers: the
// MusicDex metadata mirror, the streaming catalog, and the blend
// orchestrator that combines them.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"harmonia/internal/breaker"
	"harmonia/internal/core"
	"harmonia/internal/routing"
)

const musicDexName = "musicdex"

// MusicDex talks to the community metadata mirror over its JSON API. All
// calls are guarded by a shared circuit breaker so a dead mirror fails fast
// instead of stalling every dispatch.
type MusicDex struct {
	config     *core.MusicDexConfig
	logger     *zap.Logger
	httpClient *http.Client
	baseURL    string
	guard      *breaker.Breaker
}

type musicDexArtist struct {
	ID       string   `json:"id"`
	Name     string   `json:"artistname"`
	SortName string   `json:"sortname"`
	Overview string   `json:"overview"`
	Genres   []string `json:"genres"`
}

type musicDexAlbum struct {
	ID          string `json:"id"`
	ArtistID    string `json:"artistid"`
	Artist      string `json:"artistname"`
	Title       string `json:"title"`
	Type        string `json:"type"`
	ReleaseDate string `json:"releasedate"`
	TrackCount  int    `json:"trackcount"`
}

func NewMusicDex(config *core.MusicDexConfig, breakers *breaker.Registry, logger *zap.Logger) *MusicDex {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://api.musicdex.org/v1"
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
	}

	return &MusicDex{
		config:     config,
		logger:     logger,
		httpClient: httpClient,
		baseURL:    baseURL,
		guard:      breakers.ForProvider(musicDexName),
	}
}

func (m *MusicDex) Name() string { return musicDexName }

func (m *MusicDex) Capabilities() []routing.Declaration {
	return []routing.Declaration{
		{Contract: core.ContractArtistLookup, Priority: m.config.Priority},
		{Contract: core.ContractAlbumLookup, Priority: m.config.Priority},
		{Contract: core.ContractArtistSearch, Priority: m.config.Priority},
		{Contract: core.ContractAlbumSearch, Priority: m.config.Priority},
	}
}

func (m *MusicDex) ResolveArtist(ctx context.Context, id string) (*core.Artist, error) {
	var wire musicDexArtist
	if err := m.get(ctx, "/artist/"+url.PathEscape(id), nil, &wire); err != nil {
		return nil, err
	}

	artist := convertMusicDexArtist(&wire)
	return &artist, nil
}

func (m *MusicDex) ResolveAlbum(ctx context.Context, id string) (*core.Album, error) {
	var wire musicDexAlbum
	if err := m.get(ctx, "/album/"+url.PathEscape(id), nil, &wire); err != nil {
		return nil, err
	}

	album := convertMusicDexAlbum(&wire)
	return &album, nil
}

func (m *MusicDex) SearchArtists(ctx context.Context, query string) ([]core.Artist, error) {
	var wire []musicDexArtist
	params := url.Values{"type": {"artist"}, "query": {query}}
	if err := m.get(ctx, "/search", params, &wire); err != nil {
		return nil, err
	}

	artists := make([]core.Artist, 0, len(wire))
	for i := range wire {
		artists = append(artists, convertMusicDexArtist(&wire[i]))
	}

	m.logger.Debug("MusicDex artist search completed",
		zap.String("query", query),
		zap.Int("count", len(artists)))

	return artists, nil
}

func (m *MusicDex) SearchAlbums(ctx context.Context, query string) ([]core.Album, error) {
	var wire []musicDexAlbum
	params := url.Values{"type": {"album"}, "query": {query}}
	if err := m.get(ctx, "/search", params, &wire); err != nil {
		return nil, err
	}

	albums := make([]core.Album, 0, len(wire))
	for i := range wire {
		albums = append(albums, convertMusicDexAlbum(&wire[i]))
	}

	m.logger.Debug("MusicDex album search completed",
		zap.String("query", query),
		zap.Int("count", len(albums)))

	return albums, nil
}

// get performs a breaker-guarded GET against the mirror and decodes the JSON
// body into out.
func (m *MusicDex) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if m.guard.IsOpen() {
		return fmt.Errorf("musicdex: %w", breaker.ErrOpen)
	}

	endpoint := m.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		m.guard.RecordFailure()
		return fmt.Errorf("MusicDex API call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		m.guard.RecordFailure()
		return fmt.Errorf("MusicDex API returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		m.guard.RecordFailure()
		return fmt.Errorf("failed to decode MusicDex response: %w", err)
	}

	m.guard.RecordSuccess()
	return nil
}

func convertMusicDexArtist(wire *musicDexArtist) core.Artist {
	return core.Artist{
		ID:       wire.ID,
		Name:     wire.Name,
		SortName: wire.SortName,
		Overview: wire.Overview,
		Genres:   wire.Genres,
	}
}

func convertMusicDexAlbum(wire *musicDexAlbum) core.Album {
	var year int
	if len(wire.ReleaseDate) >= 4 {
		if _, err := fmt.Sscanf(wire.ReleaseDate[:4], "%d", &year); err != nil {
			year = 0
		}
	}

	return core.Album{
		ID:          wire.ID,
		ArtistID:    wire.ArtistID,
		Artist:      wire.Artist,
		Title:       wire.Title,
		Type:        wire.Type,
		Year:        year,
		TrackCount:  wire.TrackCount,
		ReleaseDate: wire.ReleaseDate,
	}
}
