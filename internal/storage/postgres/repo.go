package postgres

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"gitlab.com/tozd/go/errors"

	"feedmap/internal/storage"
)

/*
Repo implements storage.Repository for Postgres.

Profiles are upserted with INSERT ... ON CONFLICT (shop_id, name) DO UPDATE,
inside a transaction that locks the owning shop row FOR SHARE so a concurrent
shop delete cannot orphan the profile.
*/
type Repo struct {
	pool *pgxpool.Pool
}

func init() {
	storage.Register("postgres", New)
}

// schemaStatements run in order by EnsureSchema.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS feedmap_shops (
	id         UUID PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	feed_url   TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS feedmap_profiles (
	shop_id    UUID NOT NULL REFERENCES feedmap_shops(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	rules      BYTEA NOT NULL,
	format     TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (shop_id, name)
)`,
}

// New creates a pooled Postgres repository.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, errors.Errorf("postgres: connect: %w", err)
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

func (r *Repo) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return errors.Errorf("postgres: ensure schema: %w", err)
		}
	}
	return nil
}

func (r *Repo) CreateShop(ctx context.Context, shop storage.Shop) (storage.Shop, error) {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO feedmap_shops (id, name, feed_url, created_at) VALUES ($1, $2, $3, $4)`,
		shop.ID.String(), shop.Name, shop.FeedURL, shop.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.Shop{}, storage.Duplicate("shop", shop.Name)
		}
		return storage.Shop{}, errors.Errorf("postgres: insert shop: %w", err)
	}
	return shop, nil
}

func (r *Repo) ListShops(ctx context.Context) ([]storage.Shop, error) {
	rows, err := r.pool.Query(ctx, `SELECT id::text, name, feed_url, created_at FROM feedmap_shops ORDER BY name`)
	if err != nil {
		return nil, errors.Errorf("postgres: list shops: %w", err)
	}
	defer rows.Close()

	var out []storage.Shop
	for rows.Next() {
		s, err := scanShop(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repo) GetShop(ctx context.Context, ref string) (storage.Shop, error) {
	q := `SELECT id::text, name, feed_url, created_at FROM feedmap_shops WHERE name = $1`
	arg := strings.TrimSpace(ref)
	if id, ok := storage.ShopRef(ref); ok {
		q = `SELECT id::text, name, feed_url, created_at FROM feedmap_shops WHERE id = $1`
		arg = id.String()
	}
	s, err := scanShop(r.pool.QueryRow(ctx, q, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Shop{}, storage.NotFound("shop", ref)
	}
	return s, err
}

func (r *Repo) SaveProfile(ctx context.Context, p storage.Profile) (storage.Profile, error) {
	p, err := storage.PrepareProfile(p)
	if err != nil {
		return storage.Profile{}, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return storage.Profile{}, errors.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var one int
	err = tx.QueryRow(ctx, `SELECT 1 FROM feedmap_shops WHERE id = $1 FOR SHARE`, p.ShopID.String()).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Profile{}, storage.NotFound("shop", p.ShopID.String())
	}
	if err != nil {
		return storage.Profile{}, errors.Errorf("postgres: lookup shop: %w", err)
	}

	if _, err := tx.Exec(ctx, upsertProfileSQL, p.ShopID.String(), p.Name, p.Rules, p.Format, p.UpdatedAt); err != nil {
		return storage.Profile{}, errors.Errorf("postgres: upsert profile: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return storage.Profile{}, errors.Errorf("postgres: commit: %w", err)
	}
	return p, nil
}

const upsertProfileSQL = `INSERT INTO feedmap_profiles (shop_id, name, rules, format, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (shop_id, name) DO UPDATE SET
	rules = EXCLUDED.rules,
	format = EXCLUDED.format,
	updated_at = EXCLUDED.updated_at`

func (r *Repo) GetProfile(ctx context.Context, shopID uuid.UUID, name string) (storage.Profile, error) {
	p, err := scanProfile(r.pool.QueryRow(ctx,
		`SELECT shop_id::text, name, rules, format, updated_at FROM feedmap_profiles WHERE shop_id = $1 AND name = $2`,
		shopID.String(), strings.TrimSpace(name),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Profile{}, storage.NotFound("profile", name)
	}
	return p, err
}

func (r *Repo) ListProfiles(ctx context.Context, shopID uuid.UUID) ([]storage.Profile, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT shop_id::text, name, rules, format, updated_at FROM feedmap_profiles WHERE shop_id = $1 ORDER BY name`,
		shopID.String(),
	)
	if err != nil {
		return nil, errors.Errorf("postgres: list profiles: %w", err)
	}
	defer rows.Close()

	var out []storage.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanShop(row pgx.Row) (storage.Shop, error) {
	var s storage.Shop
	var id string
	if err := row.Scan(&id, &s.Name, &s.FeedURL, &s.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.Shop{}, err
		}
		return storage.Shop{}, errors.Errorf("postgres: scan shop: %w", err)
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return storage.Shop{}, errors.Errorf("postgres: shop id %q: %w", id, err)
	}
	s.ID = uid
	s.CreatedAt = s.CreatedAt.UTC()
	return s, nil
}

func scanProfile(row pgx.Row) (storage.Profile, error) {
	var p storage.Profile
	var shopID string
	if err := row.Scan(&shopID, &p.Name, &p.Rules, &p.Format, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.Profile{}, err
		}
		return storage.Profile{}, errors.Errorf("postgres: scan profile: %w", err)
	}
	uid, err := uuid.Parse(shopID)
	if err != nil {
		return storage.Profile{}, errors.Errorf("postgres: profile shop id %q: %w", shopID, err)
	}
	p.ShopID = uid
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

// uniqueViolation is SQLSTATE unique_violation.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
