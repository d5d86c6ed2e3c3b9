package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gitlab.com/tozd/go/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"feedmap/internal/storage"
)

// Repo implements storage.Repository for SQLite.
//
// SQLite has no timestamp type, so times are stored as RFC3339Nano text and
// IDs as their canonical string form. The pool is limited to one connection
// so ":memory:" databases behave and writers never see SQLITE_BUSY.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS feedmap_shops (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	feed_url   TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS feedmap_profiles (
	shop_id    TEXT NOT NULL REFERENCES feedmap_shops(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	rules      BLOB NOT NULL,
	format     TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (shop_id, name)
);`

// New opens (and creates) the database file named by cfg.DSN.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	dsn := cfg.DSN
	if dsn == "" {
		return nil, errors.New("sqlite: empty dsn")
	}
	if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, errors.Errorf("sqlite: create dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Errorf("sqlite: ping: %w", err)
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

func (r *Repo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemaSQL); err != nil {
		return errors.Errorf("sqlite: create tables: %w", err)
	}
	return nil
}

func (r *Repo) CreateShop(ctx context.Context, shop storage.Shop) (storage.Shop, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO feedmap_shops (id, name, feed_url, created_at) VALUES (?, ?, ?, ?)`,
		shop.ID.String(), shop.Name, shop.FeedURL, formatSQLiteTime(shop.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.Shop{}, storage.Duplicate("shop", shop.Name)
		}
		return storage.Shop{}, errors.Errorf("sqlite: insert shop: %w", err)
	}
	return shop, nil
}

func (r *Repo) ListShops(ctx context.Context) ([]storage.Shop, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, feed_url, created_at FROM feedmap_shops ORDER BY name`)
	if err != nil {
		return nil, errors.Errorf("sqlite: list shops: %w", err)
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
	q := `SELECT id, name, feed_url, created_at FROM feedmap_shops WHERE name = ?`
	arg := strings.TrimSpace(ref)
	if id, ok := storage.ShopRef(ref); ok {
		q = `SELECT id, name, feed_url, created_at FROM feedmap_shops WHERE id = ?`
		arg = id.String()
	}
	s, err := scanShop(r.db.QueryRowContext(ctx, q, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Shop{}, storage.NotFound("shop", ref)
	}
	return s, err
}

func (r *Repo) SaveProfile(ctx context.Context, p storage.Profile) (storage.Profile, error) {
	p, err := storage.PrepareProfile(p)
	if err != nil {
		return storage.Profile{}, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Profile{}, errors.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM feedmap_shops WHERE id = ?`, p.ShopID.String()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Profile{}, storage.NotFound("shop", p.ShopID.String())
	}
	if err != nil {
		return storage.Profile{}, errors.Errorf("sqlite: lookup shop: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO feedmap_profiles (shop_id, name, rules, format, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (shop_id, name) DO UPDATE SET
	rules = excluded.rules,
	format = excluded.format,
	updated_at = excluded.updated_at`,
		p.ShopID.String(), p.Name, p.Rules, p.Format, formatSQLiteTime(p.UpdatedAt),
	)
	if err != nil {
		return storage.Profile{}, errors.Errorf("sqlite: upsert profile: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return storage.Profile{}, errors.Errorf("sqlite: commit: %w", err)
	}
	return p, nil
}

func (r *Repo) GetProfile(ctx context.Context, shopID uuid.UUID, name string) (storage.Profile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx,
		`SELECT shop_id, name, rules, format, updated_at FROM feedmap_profiles WHERE shop_id = ? AND name = ?`,
		shopID.String(), strings.TrimSpace(name),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Profile{}, storage.NotFound("profile", name)
	}
	return p, err
}

func (r *Repo) ListProfiles(ctx context.Context, shopID uuid.UUID) ([]storage.Profile, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT shop_id, name, rules, format, updated_at FROM feedmap_profiles WHERE shop_id = ? ORDER BY name`,
		shopID.String(),
	)
	if err != nil {
		return nil, errors.Errorf("sqlite: list profiles: %w", err)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanShop(row scanner) (storage.Shop, error) {
	var id, name, feedURL, created string
	if err := row.Scan(&id, &name, &feedURL, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Shop{}, err
		}
		return storage.Shop{}, errors.Errorf("sqlite: scan shop: %w", err)
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return storage.Shop{}, errors.Errorf("sqlite: shop id %q: %w", id, err)
	}
	ts, err := parseSQLiteTime(created)
	if err != nil {
		return storage.Shop{}, err
	}
	return storage.Shop{ID: uid, Name: name, FeedURL: feedURL, CreatedAt: ts}, nil
}

func scanProfile(row scanner) (storage.Profile, error) {
	var shopID, name, format, updated string
	var rules []byte
	if err := row.Scan(&shopID, &name, &rules, &format, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Profile{}, err
		}
		return storage.Profile{}, errors.Errorf("sqlite: scan profile: %w", err)
	}
	uid, err := uuid.Parse(shopID)
	if err != nil {
		return storage.Profile{}, errors.Errorf("sqlite: profile shop id %q: %w", shopID, err)
	}
	ts, err := parseSQLiteTime(updated)
	if err != nil {
		return storage.Profile{}, err
	}
	return storage.Profile{ShopID: uid, Name: name, Rules: rules, Format: format, UpdatedAt: ts}, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		// Extended codes carry the primary code in the low byte.
		return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseSQLiteTime also accepts the "YYYY-MM-DD HH:MM:SS" forms SQLite's own
// date functions produce, in case rows were written by hand.
func parseSQLiteTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty time string")
	}

	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05.999999999Z07:00",
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	if ts, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.UTC); err == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, errors.Errorf("unsupported time format: %q", s)
}
