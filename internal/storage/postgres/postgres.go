package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/TimoDeg/margin-hunter/internal/config"
	"github.com/TimoDeg/margin-hunter/internal/models"
	"github.com/TimoDeg/margin-hunter/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg *config.Config) (*PostgresRepo, error) {
	const op = "storage.postgres.New"

	poolConfig, err := pgxpool.ParseConfig(dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%s: ping failed: %w", op, err)
	}

	if err := runMigrations(cfg); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: migrations: %w", op, err)
	}

	return &PostgresRepo{pool: pool}, nil
}

// SaveProduct inserts a new tracked product and returns its ID.
func (r *PostgresRepo) SaveProduct(ctx context.Context, p models.Product) (int64, error) {
	const op = "storage.postgres.SaveProduct"

	const query = `
		INSERT INTO products (name, category, brands, filters, price_min, price_max, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	brands, filters, err := marshalProductJSON(p)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	var id int64

	err = r.pool.QueryRow(ctx, query,
		p.Name, p.Category, brands, filters, p.PriceMin, p.PriceMax, p.Active,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to save product: %w", op, err)
	}

	return id, nil
}

// Products returns a page of products plus the total count, newest first.
func (r *PostgresRepo) Products(ctx context.Context, limit, offset int64) ([]models.Product, int64, error) {
	const op = "storage.postgres.Products"

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const query = `
		SELECT id, name, category, brands, filters, price_min, price_max, active, created_at, updated_at
		FROM products
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := tx.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: query: %w", op, err)
	}

	products, err := collectProducts(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: collect: %w", op, err)
	}

	var total int64
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%s: count: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, fmt.Errorf("%s: commit: %w", op, err)
	}

	return products, total, nil
}

// ActiveProducts returns all products with the active flag set, for the
// ingestion loop.
func (r *PostgresRepo) ActiveProducts(ctx context.Context) ([]models.Product, error) {
	const op = "storage.postgres.ActiveProducts"

	const query = `
		SELECT id, name, category, brands, filters, price_min, price_max, active, created_at, updated_at
		FROM products
		WHERE active = TRUE
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}

	products, err := collectProducts(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: collect: %w", op, err)
	}

	return products, nil
}

// ProductByID returns a product by ID.
func (r *PostgresRepo) ProductByID(ctx context.Context, productID int64) (models.Product, error) {
	const op = "storage.postgres.ProductByID"

	const query = `
		SELECT id, name, category, brands, filters, price_min, price_max, active, created_at, updated_at
		FROM products
		WHERE id = $1
	`

	p, err := scanProduct(r.pool.QueryRow(ctx, query, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Product{}, storage.ErrProductNotFound
		}

		return models.Product{}, fmt.Errorf("%s: failed to scan product: %w", op, err)
	}

	return p, nil
}

// UpdateProduct overwrites all mutable fields of a product.
func (r *PostgresRepo) UpdateProduct(ctx context.Context, p models.Product) error {
	const op = "storage.postgres.UpdateProduct"

	const query = `
		UPDATE products
		SET name = $1,
			category = $2,
			brands = $3,
			filters = $4,
			price_min = $5,
			price_max = $6,
			active = $7,
			updated_at = now()
		WHERE id = $8
	`

	brands, filters, err := marshalProductJSON(p)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	cmd, err := r.pool.Exec(ctx, query,
		p.Name, p.Category, brands, filters, p.PriceMin, p.PriceMax, p.Active, p.ID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmd.RowsAffected() == 0 {
		return storage.ErrProductNotFound
	}

	return nil
}

// DeleteProduct removes a product; offers and history rows go with it via
// cascade.
func (r *PostgresRepo) DeleteProduct(ctx context.Context, productID int64) error {
	const op = "storage.postgres.DeleteProduct"

	cmd, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, productID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmd.RowsAffected() == 0 {
		return storage.ErrProductNotFound
	}

	return nil
}

// Offers returns offers matching the filter, newest first.
func (r *PostgresRepo) Offers(ctx context.Context, filter models.OfferFilter) ([]models.Offer, error) {
	const op = "storage.postgres.Offers"

	query := `
		SELECT id, product_id, title, price, shipping, url, image_url, seller_name, location,
		       description, source, condition, seller_rating, status, margin_percent,
		       geizhals_price, first_seen_at, last_checked_at
		FROM offers
	`

	var (
		conditions []string
		args       []any
	)

	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.ProductID > 0 {
		args = append(args, filter.ProductID)
		conditions = append(conditions, fmt.Sprintf("product_id = $%d", len(args)))
	}
	if filter.MinMargin != nil {
		args = append(args, *filter.MinMargin)
		conditions = append(conditions, fmt.Sprintf("margin_percent >= $%d", len(args)))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY first_seen_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}

	offers, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.Offer])
	if err != nil {
		return nil, fmt.Errorf("%s: collect: %w", op, err)
	}

	return offers, nil
}

// OfferByID returns an offer by ID.
func (r *PostgresRepo) OfferByID(ctx context.Context, offerID int64) (models.Offer, error) {
	const op = "storage.postgres.OfferByID"

	const query = `
		SELECT id, product_id, title, price, shipping, url, image_url, seller_name, location,
		       description, source, condition, seller_rating, status, margin_percent,
		       geizhals_price, first_seen_at, last_checked_at
		FROM offers
		WHERE id = $1
	`

	rows, err := r.pool.Query(ctx, query, offerID)
	if err != nil {
		return models.Offer{}, fmt.Errorf("%s: query: %w", op, err)
	}

	offer, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[models.Offer])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Offer{}, storage.ErrOfferNotFound
		}

		return models.Offer{}, fmt.Errorf("%s: collect: %w", op, err)
	}

	return offer, nil
}

// OfferExistsByURL reports whether an offer with the given listing URL is
// already stored. URL is the sole deduplication key.
func (r *PostgresRepo) OfferExistsByURL(ctx context.Context, offerURL string) (bool, error) {
	const op = "storage.postgres.OfferExistsByURL"

	var exists bool

	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM offers WHERE url = $1)`, offerURL,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return exists, nil
}

// SaveOfferWithHistory inserts an offer together with its initial price
// history row in one transaction. A unique violation on the URL is reported
// as storage.ErrOfferExists so the caller can treat a concurrent insert as a
// duplicate rather than a failure.
func (r *PostgresRepo) SaveOfferWithHistory(ctx context.Context, o models.Offer) (int64, error) {
	const op = "storage.postgres.SaveOfferWithHistory"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const insertOffer = `
		INSERT INTO offers (product_id, title, price, shipping, url, image_url, seller_name,
		                    location, description, source, condition, seller_rating, status,
		                    margin_percent, geizhals_price, first_seen_at, last_checked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
		RETURNING id
	`

	var offerID int64

	err = tx.QueryRow(ctx, insertOffer,
		o.ProductID, o.Title, o.Price, o.Shipping, o.URL, o.ImageURL, o.SellerName,
		o.Location, o.Description, o.Source, o.Condition, o.SellerRating, o.Status,
		o.MarginPct, o.RefPrice, o.FirstSeenAt,
	).Scan(&offerID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == storage.UniqueViolation {
			return 0, storage.ErrOfferExists
		}

		return 0, fmt.Errorf("%s: insert offer: %w", op, err)
	}

	const insertHistory = `
		INSERT INTO price_history (offer_id, price, recorded_at)
		VALUES ($1, $2, $3)
	`

	if _, err := tx.Exec(ctx, insertHistory, offerID, o.Price, o.FirstSeenAt); err != nil {
		return 0, fmt.Errorf("%s: insert history: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%s: commit: %w", op, err)
	}

	return offerID, nil
}

// UpdateOfferStatus sets the lifecycle status and refreshes last_checked_at.
func (r *PostgresRepo) UpdateOfferStatus(ctx context.Context, offerID int64, status string) error {
	const op = "storage.postgres.UpdateOfferStatus"

	const query = `
		UPDATE offers
		SET status = $1,
			last_checked_at = now()
		WHERE id = $2
	`

	cmd, err := r.pool.Exec(ctx, query, status, offerID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmd.RowsAffected() == 0 {
		return storage.ErrOfferNotFound
	}

	return nil
}

// OfferHistory returns the price trajectory of an offer, newest first.
func (r *PostgresRepo) OfferHistory(ctx context.Context, offerID int64) ([]models.PriceHistory, error) {
	const op = "storage.postgres.OfferHistory"

	const query = `
		SELECT id, offer_id, price, recorded_at
		FROM price_history
		WHERE offer_id = $1
		ORDER BY recorded_at DESC
	`

	rows, err := r.pool.Query(ctx, query, offerID)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}

	history, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.PriceHistory])
	if err != nil {
		return nil, fmt.Errorf("%s: collect: %w", op, err)
	}

	return history, nil
}

// UpsertReferencePrice stores or refreshes a comparison price for a product.
func (r *PostgresRepo) UpsertReferencePrice(ctx context.Context, ref models.PriceReference) error {
	const op = "storage.postgres.UpsertReferencePrice"

	const query = `
		INSERT INTO price_references (product_id, source, price, url, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (product_id, source)
		DO UPDATE SET price = EXCLUDED.price, url = EXCLUDED.url, updated_at = now()
	`

	if _, err := r.pool.Exec(ctx, query, ref.ProductID, ref.Source, ref.Price, ref.URL); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return storage.ErrProductNotFound
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// LatestReferencePrice returns the most recently updated reference price for
// a product.
func (r *PostgresRepo) LatestReferencePrice(ctx context.Context, productID int64) (float64, error) {
	const op = "storage.postgres.LatestReferencePrice"

	const query = `
		SELECT price
		FROM price_references
		WHERE product_id = $1
		ORDER BY updated_at DESC
		LIMIT 1
	`

	var price float64

	err := r.pool.QueryRow(ctx, query, productID).Scan(&price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, storage.ErrReferenceNotFound
		}

		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return price, nil
}

// Close closes the connection pool.
func (r *PostgresRepo) Close() {
	r.pool.Close()
}

func marshalProductJSON(p models.Product) (brands, filters []byte, err error) {
	if p.Brands == nil {
		p.Brands = []string{}
	}
	if p.Filters == nil {
		p.Filters = map[string]string{}
	}

	brands, err = json.Marshal(p.Brands)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal brands: %w", err)
	}

	filters, err = json.Marshal(p.Filters)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal filters: %w", err)
	}

	return brands, filters, nil
}

func scanProduct(row pgx.Row) (models.Product, error) {
	var (
		p       models.Product
		brands  []byte
		filters []byte
	)

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Category,
		&brands,
		&filters,
		&p.PriceMin,
		&p.PriceMax,
		&p.Active,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return models.Product{}, err
	}

	if err := json.Unmarshal(brands, &p.Brands); err != nil {
		return models.Product{}, fmt.Errorf("unmarshal brands: %w", err)
	}
	if err := json.Unmarshal(filters, &p.Filters); err != nil {
		return models.Product{}, fmt.Errorf("unmarshal filters: %w", err)
	}

	return p, nil
}

func collectProducts(rows pgx.Rows) ([]models.Product, error) {
	defer rows.Close()

	var products []models.Product

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

// dsn builds the key=value connection string for the pool.
func dsn(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s",
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)
}

// migrateURL builds the URL form used by golang-migrate.
func migrateURL(cfg *config.Config) string {
	return fmt.Sprintf("pgx5://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.Postgres.User),
		url.QueryEscape(cfg.Postgres.Password),
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)
}
