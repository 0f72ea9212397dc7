package servers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	nsChain    = "org.prometheusprotocol.metadata"
	nsOfficial = "com.remote-mcp-servers.metadata"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, NewStore(db).AutoMigrate())
	return db
}

func newServer(t *testing.T, id, name, ns string, meta map[string]any) Server {
	t.Helper()
	srv := Server{
		ID:            id,
		Name:          name,
		Description:   "description of " + name,
		Status:        StatusActive,
		LatestVersion: "1.0.0",
	}
	require.NoError(t, srv.SetRepository(&Repository{URL: "https://github.com/" + name, Source: "github"}))
	require.NoError(t, srv.SetRemotes([]Remote{{URL: "https://" + name + ".example.com/mcp", Type: TransportStreamableHTTP}}))
	require.NoError(t, srv.SetMeta(ns, meta))
	return srv
}

func countRows(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&Server{}).Count(&n).Error)
	return n
}

func TestUpsert_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	batch := func(at time.Time) Batch {
		return Batch{
			Source: "blockchain",
			Servers: []Server{
				newServer(t, "00000000-0000-5000-8000-000000000001", "a/one", nsChain, map[string]any{"category": "AI"}),
				newServer(t, "00000000-0000-5000-8000-000000000003", "a/three", nsChain, map[string]any{"category": "Dev"}),
			},
			SyncedAt: at,
		}
	}

	first := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	res, err := store.Upsert(ctx, batch(first))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Upserted)

	second := first.Add(6 * time.Hour)
	_, err = store.Upsert(ctx, batch(second))
	require.NoError(t, err)

	assert.Equal(t, int64(2), countRows(t, db))

	got, err := store.Get(ctx, "00000000-0000-5000-8000-000000000001")
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.Equal(second), "updated_at advances on every sync")
	assert.True(t, got.PublishedAt.Equal(first), "published_at keeps the first insert time")
	assert.Equal(t, "a/one", got.Name)
}

func TestUpsert_MergesMetaAcrossSources(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()
	id := "00000000-0000-5000-8000-0000000000aa"
	at := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	_, err := store.Upsert(ctx, Batch{
		Source:   "blockchain",
		Servers:  []Server{newServer(t, id, "acme/weather", nsChain, map[string]any{"wasm_id": "abc"})},
		SyncedAt: at,
	})
	require.NoError(t, err)

	_, err = store.Upsert(ctx, Batch{
		Source:   "official",
		Servers:  []Server{newServer(t, id, "acme/weather", nsOfficial, map[string]any{"is_official": true})},
		SyncedAt: at.Add(time.Hour),
	})
	require.NoError(t, err)

	// A second pass of the first source must not drop the other namespace.
	_, err = store.Upsert(ctx, Batch{
		Source:   "blockchain",
		Servers:  []Server{newServer(t, id, "acme/weather", nsChain, map[string]any{"wasm_id": "def"})},
		SyncedAt: at.Add(2 * time.Hour),
	})
	require.NoError(t, err)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)

	var chain map[string]any
	require.True(t, got.MetaNamespace(nsChain, &chain))
	assert.Equal(t, "def", chain["wasm_id"])

	var official map[string]any
	require.True(t, got.MetaNamespace(nsOfficial, &official))
	assert.Equal(t, true, official["is_official"])
	assert.Equal(t, int64(1), countRows(t, db))
}

func TestUpsert_NullColumnsRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	srv := newServer(t, "00000000-0000-5000-8000-0000000000bb", "bare/server", nsChain, nil)
	require.NoError(t, srv.SetRepository(nil))

	_, err := store.Upsert(ctx, Batch{Source: "blockchain", Servers: []Server{srv}, SyncedAt: time.Now()})
	require.NoError(t, err)

	got, err := store.Get(ctx, srv.ID)
	require.NoError(t, err)
	assert.Nil(t, got.RepositoryValue())
	assert.True(t, got.Packages.IsNull())
	assert.Nil(t, got.WebsiteURL)

	out, err := json.Marshal(got)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"repository":null`)
	assert.Contains(t, string(out), `"packages":null`)
}

func TestUpsert_DuplicateIDsInBatchKeepLast(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	id := "00000000-0000-5000-8000-0000000000cc"

	a := newServer(t, id, "dup/server", nsChain, nil)
	b := newServer(t, id, "dup/server", nsChain, nil)
	b.Description = "second copy"

	res, err := store.Upsert(context.Background(), Batch{Source: "blockchain", Servers: []Server{a, b}, SyncedAt: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Upserted)

	got, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "second copy", got.Description)
}

func TestUpsert_RetiresServersMissingFromSource(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()
	idA := "00000000-0000-5000-8000-000000000a01"
	idB := "00000000-0000-5000-8000-000000000b01"
	start := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	run := func(at time.Time, srv ...Server) *UpsertResult {
		res, err := store.Upsert(ctx, Batch{Source: "blockchain", Servers: srv, SyncedAt: at, RetireAfter: 2})
		require.NoError(t, err)
		return res
	}

	a := newServer(t, idA, "a/kept", nsChain, nil)
	b := newServer(t, idB, "b/gone", nsChain, nil)

	run(start, a, b)
	res := run(start.Add(time.Hour), a)
	assert.Equal(t, 0, res.Retired)

	res = run(start.Add(2*time.Hour), a)
	assert.Equal(t, 1, res.Retired)

	got, err := store.Get(ctx, idB)
	require.NoError(t, err)
	assert.Equal(t, StatusDeprecated, got.Status)

	kept, err := store.Get(ctx, idA)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, kept.Status)
}

func TestUpsert_DoesNotRetireServerSeenByOtherSource(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()
	id := "00000000-0000-5000-8000-000000000c01"
	start := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	shared := newServer(t, id, "shared/server", nsChain, nil)
	_, err := store.Upsert(ctx, Batch{Source: "blockchain", Servers: []Server{shared}, SyncedAt: start, RetireAfter: 1})
	require.NoError(t, err)

	fromOfficial := newServer(t, id, "shared/server", nsOfficial, nil)
	_, err = store.Upsert(ctx, Batch{Source: "official", Servers: []Server{fromOfficial}, SyncedAt: start.Add(time.Minute), RetireAfter: 1})
	require.NoError(t, err)

	// The chain source no longer lists it, but the official source still does.
	other := newServer(t, "00000000-0000-5000-8000-000000000c02", "other/server", nsChain, nil)
	res, err := store.Upsert(ctx, Batch{Source: "blockchain", Servers: []Server{other}, SyncedAt: start.Add(time.Hour), RetireAfter: 1})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Retired)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)
}

func TestUpsert_UnfetchedListingStaysPresent(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()
	idA := "00000000-0000-5000-8000-000000000d01"
	idB := "00000000-0000-5000-8000-000000000d02"
	never := "00000000-0000-5000-8000-000000000d03"
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	a := newServer(t, idA, "a/present", nsChain, nil)
	b := newServer(t, idB, "b/flaky", nsChain, nil)
	_, err := store.Upsert(ctx, Batch{Source: "blockchain", Servers: []Server{a, b}, SyncedAt: start, RetireAfter: 1})
	require.NoError(t, err)

	// b is still listed but its detail fetch failed; never has no row at all.
	res, err := store.Upsert(ctx, Batch{
		Source:       "blockchain",
		Servers:      []Server{a},
		UnfetchedIDs: []string{idB, never},
		SyncedAt:     start.Add(time.Hour),
		RetireAfter:  1,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Retired)

	got, err := store.Get(ctx, idB)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)

	var n int64
	require.NoError(t, db.Model(&Presence{}).Where("server_id = ?", never).Count(&n).Error)
	assert.Zero(t, n, "unfetched listings never create presence rows")
}

func TestUpsert_PresenceIgnoresStoredTimestampPrecision(t *testing.T) {
	db := setupTestDB(t)
	// Store presence timestamps at millisecond precision, like a datetime(3)
	// column does.
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:millis", func(tx *gorm.DB) {
		switch rows := tx.Statement.Dest.(type) {
		case *[]Presence:
			for i := range *rows {
				(*rows)[i].LastSeenAt = (*rows)[i].LastSeenAt.Truncate(time.Millisecond)
			}
		case []Presence:
			for i := range rows {
				rows[i].LastSeenAt = rows[i].LastSeenAt.Truncate(time.Millisecond)
			}
		}
	}))
	store := NewStore(db)
	ctx := context.Background()
	id := "00000000-0000-5000-8000-000000000e01"
	at := time.Date(2025, 6, 1, 12, 0, 0, 123456000, time.UTC)

	for i := range 3 {
		res, err := store.Upsert(ctx, Batch{
			Source:      "blockchain",
			Servers:     []Server{newServer(t, id, "live/server", nsChain, nil)},
			SyncedAt:    at.Add(time.Duration(i) * time.Hour),
			RetireAfter: 1,
		})
		require.NoError(t, err)
		assert.Equal(t, 0, res.Retired)
	}

	var p Presence
	require.NoError(t, db.First(&p, "server_id = ? AND source = ?", id, "blockchain").Error)
	assert.Zero(t, p.MissedSyncs)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)
}

func TestGet_NotFound(t *testing.T) {
	store := NewStore(setupTestDB(t))
	_, err := store.Get(context.Background(), "00000000-0000-5000-8000-000000000000")
	assert.ErrorIs(t, err, ErrServerNotFound)
}

func seedTimeline(t *testing.T, store *Store, n int) []string {
	t.Helper()
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	names := []string{"alpha/search", "beta/weather", "gamma/search_tools", "delta/files", "epsilon/maps"}
	var ids []string
	for i := 0; i < n; i++ {
		id := "00000000-0000-5000-8000-00000000100" + string(rune('0'+i))
		srv := newServer(t, id, names[i%len(names)], nsChain, map[string]any{"category": "AI"})
		_, err := store.Upsert(context.Background(), Batch{Servers: []Server{srv}, SyncedAt: base.Add(time.Duration(i) * time.Hour)})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func TestList_CursorPagination(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()
	ids := seedTimeline(t, store, 5)

	var seen []string
	cursor := ""
	pages := 0
	for {
		page, err := store.List(ctx, ListOptions{Limit: 2, Cursor: cursor})
		require.NoError(t, err)
		pages++
		for _, s := range page.Servers {
			seen = append(seen, s.ID)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	assert.Equal(t, 3, pages)
	assert.Equal(t, []string{ids[4], ids[3], ids[2], ids[1], ids[0]}, seen)
}

func TestList_SameTimestampOrdersByID(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	var batch []Server
	for _, id := range []string{
		"00000000-0000-5000-8000-000000000001",
		"00000000-0000-5000-8000-000000000002",
		"00000000-0000-5000-8000-000000000003",
	} {
		batch = append(batch, newServer(t, id, "same/"+id[len(id)-1:], nsChain, nil))
	}
	_, err := store.Upsert(ctx, Batch{Servers: batch, SyncedAt: at})
	require.NoError(t, err)

	first, err := store.List(ctx, ListOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Servers, 2)
	require.NotEmpty(t, first.NextCursor)
	assert.Equal(t, "00000000-0000-5000-8000-000000000003", first.Servers[0].ID)

	second, err := store.List(ctx, ListOptions{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Servers, 1)
	assert.Equal(t, "00000000-0000-5000-8000-000000000001", second.Servers[0].ID)
	assert.Empty(t, second.NextCursor)
}

func TestList_SearchAndUpdatedSince(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()
	seedTimeline(t, store, 5)

	page, err := store.List(ctx, ListOptions{Search: "SEARCH"})
	require.NoError(t, err)
	assert.Len(t, page.Servers, 2)

	// Underscore is matched literally, not as a wildcard.
	page, err = store.List(ctx, ListOptions{Search: "search_"})
	require.NoError(t, err)
	require.Len(t, page.Servers, 1)
	assert.Equal(t, "gamma/search_tools", page.Servers[0].Name)

	since := time.Date(2025, 5, 1, 3, 0, 0, 0, time.UTC)
	page, err = store.List(ctx, ListOptions{UpdatedSince: &since})
	require.NoError(t, err)
	assert.Len(t, page.Servers, 2)
}

func TestList_InvalidCursor(t *testing.T) {
	store := NewStore(setupTestDB(t))
	_, err := store.List(context.Background(), ListOptions{Cursor: "garbage!"})
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestPage_MetaFilters(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()
	at := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	servers := []Server{
		newServer(t, "00000000-0000-5000-8000-000000002001", "chain/ai", nsChain,
			map[string]any{"category": "AI", "is_official": false, "authentication_type": "Unknown"}),
		newServer(t, "00000000-0000-5000-8000-000000002002", "official/dev", nsOfficial,
			map[string]any{"category": "Uncategorized", "is_official": true, "authentication_type": "Unknown"}),
		newServer(t, "00000000-0000-5000-8000-000000002003", "chain/games", nsChain,
			map[string]any{"category": "Gaming", "is_official": false, "authentication_type": "oauth"}),
	}
	_, err := store.Upsert(ctx, Batch{Servers: servers, SyncedAt: at})
	require.NoError(t, err)
	namespaces := []string{nsChain, nsOfficial}

	rows, total, err := store.Page(ctx, PageOptions{Category: "AI", Namespaces: namespaces})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, rows, 1)
	assert.Equal(t, "chain/ai", rows[0].Name)

	official := true
	rows, total, err = store.Page(ctx, PageOptions{IsOfficial: &official, Namespaces: namespaces})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "official/dev", rows[0].Name)

	notOfficial := false
	_, total, err = store.Page(ctx, PageOptions{IsOfficial: &notOfficial, Namespaces: namespaces})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	rows, total, err = store.Page(ctx, PageOptions{AuthenticationType: "oauth", Namespaces: namespaces})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "chain/games", rows[0].Name)

	rows, total, err = store.Page(ctx, PageOptions{Page: 2, Limit: 2, Namespaces: namespaces})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, rows, 1)
}

func TestStats(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()
	at := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)

	deprecated := newServer(t, "00000000-0000-5000-8000-000000003003", "old/one", nsChain, nil)
	deprecated.Status = StatusDeprecated
	_, err := store.Upsert(ctx, Batch{Servers: []Server{
		newServer(t, "00000000-0000-5000-8000-000000003001", "chain/one", nsChain, nil),
		deprecated,
	}, SyncedAt: at})
	require.NoError(t, err)
	_, err = store.Upsert(ctx, Batch{Servers: []Server{
		newServer(t, "00000000-0000-5000-8000-000000003002", "official/one", nsOfficial, nil),
	}, SyncedAt: at.Add(time.Hour)})
	require.NoError(t, err)

	stats, err := store.Stats(ctx, nsChain, nsOfficial)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalActive)
	assert.Equal(t, int64(2), stats.ByNamespace[nsChain])
	assert.Equal(t, int64(1), stats.ByNamespace[nsOfficial])
	require.NotNil(t, stats.LastSynced)
	assert.Equal(t, "official/one", stats.LastSynced.Name)
}

func TestStats_EmptyTable(t *testing.T) {
	stats, err := NewStore(setupTestDB(t)).Stats(context.Background(), nsChain)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalActive)
	assert.Nil(t, stats.LastSynced)
}

func TestMetaString(t *testing.T) {
	srv := Server{Meta: []byte(`{"` + nsChain + `":{"category":null,"publisher":"acme"},"` + nsOfficial + `":{"category":"Search"}}`)}

	assert.Equal(t, "Search", srv.MetaString("category", nsChain, nsOfficial))
	assert.Equal(t, "acme", srv.MetaString("publisher", nsOfficial, nsChain))
	assert.Empty(t, srv.MetaString("missing", nsChain, nsOfficial))
	assert.Empty(t, (&Server{}).MetaString("category", nsChain))
}
