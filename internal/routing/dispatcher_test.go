package routing

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"harmonia/internal/core"
	"harmonia/internal/store"
)

type fakeCatalog struct {
	fakeProvider
	artists []core.Artist
	albums  []core.Album
	err     error
}

func (f *fakeCatalog) ResolveArtist(ctx context.Context, id string) (*core.Artist, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &f.artists[0], nil
}

func (f *fakeCatalog) ResolveAlbum(ctx context.Context, id string) (*core.Album, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.albums {
		if f.albums[i].ID == id {
			return &f.albums[i], nil
		}
	}
	return nil, errors.New("album not found")
}

func (f *fakeCatalog) SearchArtists(ctx context.Context, query string) ([]core.Artist, error) {
	return f.artists, f.err
}

func (f *fakeCatalog) SearchAlbums(ctx context.Context, query string) ([]core.Album, error) {
	return f.albums, f.err
}

type fakeRanker struct {
	fakeProvider
	err error
}

// RankAlbums reverses the input so tests can detect that ranking ran.
func (f *fakeRanker) RankAlbums(ctx context.Context, query string, albums []core.Album) ([]core.RankedAlbum, error) {
	if f.err != nil {
		return nil, f.err
	}
	ranked := make([]core.RankedAlbum, 0, len(albums))
	for i := len(albums) - 1; i >= 0; i-- {
		ranked = append(ranked, core.RankedAlbum{Album: albums[i], Confidence: float64(len(albums)-i) / float64(len(albums))})
	}
	return ranked, nil
}

type fakeLibrary struct {
	owned map[string]bool
}

func (f *fakeLibrary) Has(albumID string) bool { return f.owned[albumID] }
func (f *fakeLibrary) Add(albumID string)      { f.owned[albumID] = true }

func newTestDispatcher(t *testing.T, library Library, providers ...Provider) *Dispatcher {
	t.Helper()
	r := New(zap.NewNop())
	for _, p := range providers {
		if err := r.Register(p); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}
	return NewDispatcher(r, library, nil, zap.NewNop())
}

func TestDispatcher_NoProvider(t *testing.T) {
	d := newTestDispatcher(t, nil)

	if _, err := d.SearchAlbums(context.Background(), "query"); !errors.Is(err, core.ErrNoProvider) {
		t.Errorf("Expected ErrNoProvider, got %v", err)
	}
	if _, err := d.LookupArtist(context.Background(), "id"); !errors.Is(err, core.ErrNoProvider) {
		t.Errorf("Expected ErrNoProvider, got %v", err)
	}
}

func TestDispatcher_ForwardsToActiveProvider(t *testing.T) {
	catalog := &fakeCatalog{
		fakeProvider: fakeProvider{
			name: "catalog",
			decls: []Declaration{
				{Contract: core.ContractArtistSearch, Priority: 10},
				{Contract: core.ContractAlbumSearch, Priority: 10},
			},
		},
		artists: []core.Artist{{ID: "a1", Name: "Kraftwerk"}},
		albums:  []core.Album{{ID: "r1", Title: "Autobahn"}},
	}
	d := newTestDispatcher(t, nil, catalog)

	artists, err := d.SearchArtists(context.Background(), "kraftwerk")
	if err != nil {
		t.Fatalf("SearchArtists failed: %v", err)
	}
	if len(artists) != 1 || artists[0].Name != "Kraftwerk" {
		t.Errorf("Unexpected artist results: %+v", artists)
	}

	albums, err := d.SearchAlbums(context.Background(), "autobahn")
	if err != nil {
		t.Fatalf("SearchAlbums failed: %v", err)
	}
	if len(albums) != 1 || albums[0].Title != "Autobahn" {
		t.Errorf("Unexpected album results: %+v", albums)
	}
}

func TestDispatcher_WrapsProviderErrors(t *testing.T) {
	broken := errors.New("upstream down")
	catalog := &fakeCatalog{
		fakeProvider: fakeProvider{
			name:  "catalog",
			decls: []Declaration{{Contract: core.ContractAlbumSearch, Priority: 10}},
		},
		err: broken,
	}
	d := newTestDispatcher(t, nil, catalog)

	_, err := d.SearchAlbums(context.Background(), "query")
	if !errors.Is(err, broken) {
		t.Errorf("Expected wrapped provider error, got %v", err)
	}
}

func TestDispatcher_RanksSearchResults(t *testing.T) {
	catalog := &fakeCatalog{
		fakeProvider: fakeProvider{
			name:  "catalog",
			decls: []Declaration{{Contract: core.ContractAlbumSearch, Priority: 10}},
		},
		albums: []core.Album{{ID: "r1", Title: "First"}, {ID: "r2", Title: "Second"}},
	}
	ranker := &fakeRanker{
		fakeProvider: fakeProvider{
			name:  "ranker",
			decls: []Declaration{{Contract: core.ContractReleaseRank, Priority: 10}},
		},
	}
	d := newTestDispatcher(t, nil, catalog, ranker)

	albums, err := d.SearchAlbums(context.Background(), "query")
	if err != nil {
		t.Fatalf("SearchAlbums failed: %v", err)
	}
	if albums[0].ID != "r2" {
		t.Errorf("Expected ranker to reorder results, got %+v", albums)
	}
}

func TestDispatcher_RankingFailureKeepsOriginalOrder(t *testing.T) {
	catalog := &fakeCatalog{
		fakeProvider: fakeProvider{
			name:  "catalog",
			decls: []Declaration{{Contract: core.ContractAlbumSearch, Priority: 10}},
		},
		albums: []core.Album{{ID: "r1", Title: "First"}, {ID: "r2", Title: "Second"}},
	}
	ranker := &fakeRanker{
		fakeProvider: fakeProvider{
			name:  "ranker",
			decls: []Declaration{{Contract: core.ContractReleaseRank, Priority: 10}},
		},
		err: errors.New("model unavailable"),
	}
	d := newTestDispatcher(t, nil, catalog, ranker)

	albums, err := d.SearchAlbums(context.Background(), "query")
	if err != nil {
		t.Fatalf("SearchAlbums should tolerate ranking failures: %v", err)
	}
	if albums[0].ID != "r1" || albums[1].ID != "r2" {
		t.Errorf("Expected original provider order, got %+v", albums)
	}
}

func TestDispatcher_SearchNewAlbumsFiltersLibrary(t *testing.T) {
	catalog := &fakeCatalog{
		fakeProvider: fakeProvider{
			name:  "catalog",
			decls: []Declaration{{Contract: core.ContractAlbumSearch, Priority: 10}},
		},
		albums: []core.Album{{ID: "owned"}, {ID: "fresh"}},
	}
	library := &fakeLibrary{owned: map[string]bool{"owned": true}}
	d := newTestDispatcher(t, library, catalog)

	albums, err := d.SearchNewAlbums(context.Background(), "query")
	if err != nil {
		t.Fatalf("SearchNewAlbums failed: %v", err)
	}
	if len(albums) != 1 || albums[0].ID != "fresh" {
		t.Errorf("Expected only unowned albums, got %+v", albums)
	}
}

func TestDispatcher_LookupPopulatesLibrary(t *testing.T) {
	// The seen cache starts empty; album lookups are what fill it, so a
	// discovery search stops suggesting albums the caller already fetched.
	catalog := &fakeCatalog{
		fakeProvider: fakeProvider{
			name: "catalog",
			decls: []Declaration{
				{Contract: core.ContractAlbumLookup, Priority: 10},
				{Contract: core.ContractAlbumSearch, Priority: 10},
			},
		},
		albums: []core.Album{{ID: "owned", Title: "Autobahn"}, {ID: "fresh", Title: "Computer World"}},
	}
	seen := store.NewSeenCache(100, 0.001)
	d := newTestDispatcher(t, seen, catalog)

	albums, err := d.SearchNewAlbums(context.Background(), "query")
	if err != nil {
		t.Fatalf("SearchNewAlbums failed: %v", err)
	}
	if len(albums) != 2 {
		t.Fatalf("Expected both albums before any lookup, got %+v", albums)
	}

	if _, err := d.LookupAlbum(context.Background(), "owned"); err != nil {
		t.Fatalf("LookupAlbum failed: %v", err)
	}

	albums, err = d.SearchNewAlbums(context.Background(), "query")
	if err != nil {
		t.Fatalf("SearchNewAlbums failed: %v", err)
	}
	if len(albums) != 1 || albums[0].ID != "fresh" {
		t.Errorf("Expected the looked-up album to be filtered out, got %+v", albums)
	}
}

func TestDispatcher_MissingCapabilityInterface(t *testing.T) {
	// A provider can declare a contract without implementing the matching
	// interface; dispatch must fail cleanly instead of panicking.
	impostor := provider("impostor", Declaration{Contract: core.ContractAlbumSearch, Priority: 10})
	d := newTestDispatcher(t, nil, impostor)

	_, err := d.SearchAlbums(context.Background(), "query")
	if err == nil {
		t.Fatal("Expected an error for a provider without the capability interface")
	}
	if errors.Is(err, core.ErrNoProvider) {
		t.Error("Interface mismatch should be distinct from having no provider")
	}
}
