package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
)

var typeMap = pgtype.NewMap()

type productRepository struct {
	q querier
}

const productColumns = `id, org_id, sku, name, price_minor, cost_minor, sizes, colors, active, created_at, updated_at`

func (r *productRepository) Create(ctx context.Context, product domain.Product) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		product.ID, product.OrgID, product.SKU, product.Name, product.PriceMinor, product.CostMinor,
		nonNil(product.Sizes), nonNil(product.Colors), product.Active, product.CreatedAt, product.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateSKU
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *productRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return scanProduct(r.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

func (r *productRepository) GetBySKU(ctx context.Context, orgID, sku string) (domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return scanProduct(r.q.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE org_id = $1 AND sku = $2`, orgID, sku))
}

func scanProduct(row *sql.Row) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(
		&p.ID, &p.OrgID, &p.SKU, &p.Name, &p.PriceMinor, &p.CostMinor,
		typeMap.SQLScanner(&p.Sizes), typeMap.SQLScanner(&p.Colors),
		&p.Active, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return p, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

var _ domain.ProductRepository = (*productRepository)(nil)
