// Package storage keeps shops and their saved mapping profiles.
//
// Backends register themselves by kind from an init function (see the
// sqlite, postgres and mssql subpackages) and are selected with New.
package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gitlab.com/tozd/go/errors"
)

var (
	// ErrNotFound is returned when a shop or profile does not exist.
	ErrNotFound = errors.Base("not found")
	// ErrDuplicate is returned when a shop name is already taken.
	ErrDuplicate = errors.Base("already exists")
)

// Config selects a backend and its connection string.
type Config struct {
	Kind string
	DSN  string
}

// Shop is a named source of product feeds.
type Shop struct {
	ID        uuid.UUID
	Name      string
	FeedURL   string
	CreatedAt time.Time
}

// Profile is a saved set of mapping rules for one shop. Rules holds the
// declaration document as written by the rules package, Format names its
// encoding ("json" or "yaml").
type Profile struct {
	ShopID    uuid.UUID
	Name      string
	Rules     []byte
	Format    string
	UpdatedAt time.Time
}

// Repository is implemented by every backend.
//
// Shop names are unique. SaveProfile inserts or replaces the profile with the
// same shop and name and fails with ErrNotFound when the shop is missing.
type Repository interface {
	// Close releases connections. Call once.
	Close()

	// EnsureSchema creates the tables if they do not exist.
	EnsureSchema(ctx context.Context) error

	CreateShop(ctx context.Context, shop Shop) (Shop, error)
	ListShops(ctx context.Context) ([]Shop, error)
	// GetShop accepts a shop ID or a shop name.
	GetShop(ctx context.Context, ref string) (Shop, error)

	SaveProfile(ctx context.Context, p Profile) (Profile, error)
	GetProfile(ctx context.Context, shopID uuid.UUID, name string) (Profile, error)
	ListProfiles(ctx context.Context, shopID uuid.UUID) ([]Profile, error)
}

// Factory opens a backend.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind.
//
// Panics if kind is empty, f is nil, or kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// Kinds lists the registered backends in order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New opens the backend registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, errors.New("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, errors.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// NewShop validates the input and assigns a fresh ID and creation time.
func NewShop(name, feedURL string) (Shop, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Shop{}, errors.New("shop name is required")
	}
	return Shop{
		ID:        uuid.New(),
		Name:      name,
		FeedURL:   strings.TrimSpace(feedURL),
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}, nil
}

// PrepareProfile checks a profile before it is written and stamps UpdatedAt.
func PrepareProfile(p Profile) (Profile, error) {
	p.Name = strings.TrimSpace(p.Name)
	switch {
	case p.ShopID == uuid.Nil:
		return Profile{}, errors.New("profile shop is required")
	case p.Name == "":
		return Profile{}, errors.New("profile name is required")
	case len(p.Rules) == 0:
		return Profile{}, errors.New("profile rules are empty")
	}
	if p.Format == "" {
		p.Format = "json"
	}
	p.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
	return p, nil
}

// ShopRef tells whether ref is a shop ID. Anything else is a name.
func ShopRef(ref string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(ref))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// NotFound wraps ErrNotFound with what was looked up.
func NotFound(what, ref string) error {
	return errors.Errorf("%s %q: %w", what, ref, ErrNotFound)
}

// Duplicate wraps ErrDuplicate with the conflicting name.
func Duplicate(what, ref string) error {
	return errors.Errorf("%s %q: %w", what, ref, ErrDuplicate)
}
