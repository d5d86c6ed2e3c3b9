package mssql

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	mssql "github.com/microsoft/go-mssqldb"
	"gitlab.com/tozd/go/errors"

	"feedmap/internal/storage"
)

// Repo implements storage.Repository for Microsoft SQL Server.
//
// IDs are stored as NCHAR(36) text rather than UNIQUEIDENTIFIER, whose mixed
// byte order does not survive a round trip through uuid.UUID unchanged.
// Profiles are upserted with MERGE ... WITH (HOLDLOCK) so two writers of the
// same profile cannot both take the insert branch.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("mssql", New)
}

var schemaStatements = []string{
	`IF OBJECT_ID(N'dbo.feedmap_shops', N'U') IS NULL
CREATE TABLE dbo.feedmap_shops (
	id         NCHAR(36)      NOT NULL PRIMARY KEY,
	name       NVARCHAR(200)  NOT NULL CONSTRAINT uq_feedmap_shops_name UNIQUE,
	feed_url   NVARCHAR(2048) NOT NULL DEFAULT N'',
	created_at DATETIMEOFFSET NOT NULL
)`,
	`IF OBJECT_ID(N'dbo.feedmap_profiles', N'U') IS NULL
CREATE TABLE dbo.feedmap_profiles (
	shop_id    NCHAR(36)      NOT NULL REFERENCES dbo.feedmap_shops(id) ON DELETE CASCADE,
	name       NVARCHAR(200)  NOT NULL,
	rules      VARBINARY(MAX) NOT NULL,
	format     NVARCHAR(16)   NOT NULL,
	updated_at DATETIMEOFFSET NOT NULL,
	CONSTRAINT pk_feedmap_profiles PRIMARY KEY (shop_id, name)
)`,
}

const upsertProfileSQL = `MERGE dbo.feedmap_profiles WITH (HOLDLOCK) AS t
USING (SELECT @p1 AS shop_id, @p2 AS name) AS s
ON t.shop_id = s.shop_id AND t.name = s.name
WHEN MATCHED THEN
	UPDATE SET rules = @p3, format = @p4, updated_at = @p5
WHEN NOT MATCHED THEN
	INSERT (shop_id, name, rules, format, updated_at) VALUES (@p1, @p2, @p3, @p4, @p5);`

// New opens a SQL Server connection pool and validates it with a ping.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, errors.Errorf("mssql: open: %w", err)
	}
	db.SetMaxOpenConns(8)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Errorf("mssql: ping: %w", err)
	}
	return &Repo{db: db}, nil
}

// Close releases database resources held by this repository.
func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

func (r *Repo) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return errors.Errorf("mssql: ensure schema: %w", err)
		}
	}
	return nil
}

func (r *Repo) CreateShop(ctx context.Context, shop storage.Shop) (storage.Shop, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO dbo.feedmap_shops (id, name, feed_url, created_at) VALUES (@p1, @p2, @p3, @p4)`,
		shop.ID.String(), shop.Name, shop.FeedURL, shop.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.Shop{}, storage.Duplicate("shop", shop.Name)
		}
		return storage.Shop{}, errors.Errorf("mssql: insert shop: %w", err)
	}
	return shop, nil
}

func (r *Repo) ListShops(ctx context.Context) ([]storage.Shop, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, feed_url, created_at FROM dbo.feedmap_shops ORDER BY name`)
	if err != nil {
		return nil, errors.Errorf("mssql: list shops: %w", err)
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
	q := `SELECT id, name, feed_url, created_at FROM dbo.feedmap_shops WHERE name = @p1`
	arg := strings.TrimSpace(ref)
	if id, ok := storage.ShopRef(ref); ok {
		q = `SELECT id, name, feed_url, created_at FROM dbo.feedmap_shops WHERE id = @p1`
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
		return storage.Profile{}, errors.Errorf("mssql: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM dbo.feedmap_shops WITH (UPDLOCK, ROWLOCK) WHERE id = @p1`, p.ShopID.String(),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Profile{}, storage.NotFound("shop", p.ShopID.String())
	}
	if err != nil {
		return storage.Profile{}, errors.Errorf("mssql: lookup shop: %w", err)
	}

	if _, err := tx.ExecContext(ctx, upsertProfileSQL, p.ShopID.String(), p.Name, p.Rules, p.Format, p.UpdatedAt); err != nil {
		return storage.Profile{}, errors.Errorf("mssql: merge profile: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return storage.Profile{}, errors.Errorf("mssql: commit: %w", err)
	}
	return p, nil
}

func (r *Repo) GetProfile(ctx context.Context, shopID uuid.UUID, name string) (storage.Profile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx,
		`SELECT shop_id, name, rules, format, updated_at FROM dbo.feedmap_profiles WHERE shop_id = @p1 AND name = @p2`,
		shopID.String(), strings.TrimSpace(name),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Profile{}, storage.NotFound("profile", name)
	}
	return p, err
}

func (r *Repo) ListProfiles(ctx context.Context, shopID uuid.UUID) ([]storage.Profile, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT shop_id, name, rules, format, updated_at FROM dbo.feedmap_profiles WHERE shop_id = @p1 ORDER BY name`,
		shopID.String(),
	)
	if err != nil {
		return nil, errors.Errorf("mssql: list profiles: %w", err)
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

// rowScanner is a narrow adapter over *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanShop(row rowScanner) (storage.Shop, error) {
	var s storage.Shop
	var id string
	if err := row.Scan(&id, &s.Name, &s.FeedURL, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Shop{}, err
		}
		return storage.Shop{}, errors.Errorf("mssql: scan shop: %w", err)
	}
	uid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return storage.Shop{}, errors.Errorf("mssql: shop id %q: %w", id, err)
	}
	s.ID = uid
	s.CreatedAt = s.CreatedAt.UTC()
	return s, nil
}

func scanProfile(row rowScanner) (storage.Profile, error) {
	var p storage.Profile
	var shopID string
	if err := row.Scan(&shopID, &p.Name, &p.Rules, &p.Format, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Profile{}, err
		}
		return storage.Profile{}, errors.Errorf("mssql: scan profile: %w", err)
	}
	uid, err := uuid.Parse(strings.TrimSpace(shopID))
	if err != nil {
		return storage.Profile{}, errors.Errorf("mssql: profile shop id %q: %w", shopID, err)
	}
	p.ShopID = uid
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

// SQL Server error numbers for duplicate keys: 2627 is a violated PRIMARY
// KEY or UNIQUE constraint, 2601 a violated unique index.
func isUniqueViolation(err error) bool {
	var msErr mssql.Error
	if !errors.As(err, &msErr) {
		return false
	}
	return msErr.Number == 2627 || msErr.Number == 2601
}
