package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedmap/internal/storage"
)

func openTestRepo(t *testing.T) storage.Repository {
	t.Helper()
	repo, err := storage.New(context.Background(), storage.Config{
		Kind: "sqlite",
		DSN:  filepath.Join(t.TempDir(), "nested", "feedmap.db"),
	})
	require.NoError(t, err)
	t.Cleanup(repo.Close)
	require.NoError(t, repo.EnsureSchema(context.Background()))
	// Idempotent.
	require.NoError(t, repo.EnsureSchema(context.Background()))
	return repo
}

// TestRepo_Shops verifies create, lookup by id or name, ordering and the
// unique name constraint.
func TestRepo_Shops(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTestRepo(t)

	b, err := storage.NewShop("beta", "https://beta.example/feed.xml")
	require.NoError(t, err)
	_, err = repo.CreateShop(ctx, b)
	require.NoError(t, err)
	a, err := storage.NewShop("alpha", "")
	require.NoError(t, err)
	_, err = repo.CreateShop(ctx, a)
	require.NoError(t, err)

	dup, err := storage.NewShop("alpha", "")
	require.NoError(t, err)
	_, err = repo.CreateShop(ctx, dup)
	require.ErrorIs(t, err, storage.ErrDuplicate)

	shops, err := repo.ListShops(ctx)
	require.NoError(t, err)
	require.Len(t, shops, 2)
	assert.Equal(t, "alpha", shops[0].Name)
	assert.Equal(t, "beta", shops[1].Name)
	assert.True(t, b.CreatedAt.Equal(shops[1].CreatedAt))

	got, err := repo.GetShop(ctx, b.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "https://beta.example/feed.xml", got.FeedURL)

	got, err = repo.GetShop(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = repo.GetShop(ctx, "gamma")
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = repo.GetShop(ctx, uuid.NewString())
	require.ErrorIs(t, err, storage.ErrNotFound)
}

// TestRepo_Profiles verifies upsert by shop and name and missing shop handling.
func TestRepo_Profiles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTestRepo(t)

	shop, err := storage.NewShop("acme", "")
	require.NoError(t, err)
	_, err = repo.CreateShop(ctx, shop)
	require.NoError(t, err)

	_, err = repo.SaveProfile(ctx, storage.Profile{ShopID: shop.ID, Name: "google", Rules: []byte(`{"rules":[]}`)})
	require.NoError(t, err)
	saved, err := repo.SaveProfile(ctx, storage.Profile{ShopID: shop.ID, Name: "google", Rules: []byte("rules: []\n"), Format: "yaml"})
	require.NoError(t, err)
	_, err = repo.SaveProfile(ctx, storage.Profile{ShopID: shop.ID, Name: "bing", Rules: []byte(`{}`)})
	require.NoError(t, err)

	p, err := repo.GetProfile(ctx, shop.ID, "google")
	require.NoError(t, err)
	assert.Equal(t, "yaml", p.Format)
	assert.Equal(t, "rules: []\n", string(p.Rules))
	assert.WithinDuration(t, saved.UpdatedAt, p.UpdatedAt, time.Microsecond)

	list, err := repo.ListProfiles(ctx, shop.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "bing", list[0].Name)
	assert.Equal(t, "json", list[0].Format)

	_, err = repo.GetProfile(ctx, shop.ID, "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = repo.SaveProfile(ctx, storage.Profile{ShopID: uuid.New(), Name: "x", Rules: []byte("{}")})
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = repo.SaveProfile(ctx, storage.Profile{ShopID: shop.ID, Name: " ", Rules: []byte("{}")})
	require.Error(t, err)
}

func TestParseSQLiteTime_TableDriven(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		wantUTC string
		wantErr bool
	}{
		{name: "rfc3339nano", in: "2026-01-27T12:17:08.123456789Z", wantUTC: "2026-01-27T12:17:08.123456789Z"},
		{name: "rfc3339", in: "2026-01-27T12:17:08Z", wantUTC: "2026-01-27T12:17:08Z"},
		{name: "sqlite_space_tz", in: "2026-01-27 12:17:08+00:00", wantUTC: "2026-01-27T12:17:08Z"},
		{name: "sqlite_no_tz_assume_utc", in: "2026-01-27 12:17:08", wantUTC: "2026-01-27T12:17:08Z"},
		{name: "invalid", in: "not-a-time", wantErr: true},
		{name: "empty", in: " ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSQLiteTime(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantUTC, got.Format(time.RFC3339Nano))
		})
	}
}
