package storage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRegister_Panics verifies misuse of the registry fails fast.
func TestRegister_Panics(t *testing.T) {
	t.Parallel()

	f := func(context.Context, Config) (Repository, error) { return nil, nil }
	assert.Panics(t, func() { Register("", f) })
	assert.Panics(t, func() { Register("nil-factory", nil) })

	Register("test-dup", f)
	assert.Panics(t, func() { Register("test-dup", f) })
	assert.Contains(t, Kinds(), "test-dup")
}

// TestNew_Unknown verifies missing and unknown kinds are errors.
func TestNew_Unknown(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.Error(t, err)
	_, err = New(context.Background(), Config{Kind: "nosuch"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nosuch")
}

// TestNewShop verifies trimming and required names.
func TestNewShop(t *testing.T) {
	t.Parallel()

	s, err := NewShop("  Acme ", " https://acme.example/feed ")
	require.NoError(t, err)
	assert.Equal(t, "Acme", s.Name)
	assert.Equal(t, "https://acme.example/feed", s.FeedURL)
	assert.NotEqual(t, uuid.Nil, s.ID)
	assert.False(t, s.CreatedAt.IsZero())

	_, err = NewShop(" ", "")
	require.Error(t, err)
}

// TestPrepareProfile covers required fields and the default format.
func TestPrepareProfile(t *testing.T) {
	t.Parallel()

	p, err := PrepareProfile(Profile{ShopID: uuid.New(), Name: " default ", Rules: []byte("{}")})
	require.NoError(t, err)
	assert.Equal(t, "default", p.Name)
	assert.Equal(t, "json", p.Format)
	assert.False(t, p.UpdatedAt.IsZero())

	for _, bad := range []Profile{
		{Name: "x", Rules: []byte("{}")},
		{ShopID: uuid.New(), Rules: []byte("{}")},
		{ShopID: uuid.New(), Name: "x"},
	} {
		_, err := PrepareProfile(bad)
		assert.Error(t, err)
	}
}

// TestShopRef verifies IDs are told apart from names.
func TestShopRef(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	got, ok := ShopRef(id.String())
	require.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = ShopRef("acme")
	assert.False(t, ok)
}

// TestSentinels verifies wrapped errors keep their sentinel.
func TestSentinels(t *testing.T) {
	t.Parallel()

	assert.ErrorIs(t, NotFound("shop", "x"), ErrNotFound)
	assert.ErrorIs(t, Duplicate("shop", "x"), ErrDuplicate)
	assert.Contains(t, NotFound("shop", "x").Error(), `shop "x"`)
}
