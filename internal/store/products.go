package store

import (
	"context"
	"fmt"

	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
	"github.com/shopspring/decimal"
)

func CreateProduct(ctx context.Context, q database.Querier, name, description string) (*models.Product, error) {
	product := &models.Product{}

	query := `
		INSERT INTO products (name, description, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING id, name, description, created_at, updated_at`

	err := q.QueryRowContext(ctx, query, name, description).Scan(
		&product.ID,
		&product.Name,
		&product.Description,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

// CreateVariant inserts a variant with its opening stock. The opening stock
// is recorded as an inbound movement so the ledger explains the counter from
// the first row.
func CreateVariant(ctx context.Context, q database.Querier, productID int64, sku, optionsText string, price decimal.Decimal, stock int) (*models.ProductVariant, error) {
	var id int64
	err := q.QueryRowContext(ctx,
		`INSERT INTO product_variants (product_id, sku, options_text, price, stock_qty, created_at, updated_at, version)
		 VALUES ($1, $2, $3, $4, $5, NOW(), NOW(), 1)
		 RETURNING id`,
		productID, sku, optionsText, price, stock).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("create variant: %w", err)
	}

	if stock > 0 {
		_, err = q.ExecContext(ctx,
			`INSERT INTO inventory_movements (variant_id, direction, quantity, reason, created_at)
			 VALUES ($1, $2, $3, $4, NOW())`,
			id, models.MovementIn, stock, "opening stock")
		if err != nil {
			return nil, fmt.Errorf("record opening stock: %w", err)
		}
	}

	return scanVariant(ctx, q, variantSelect+` WHERE v.id = $1`, id)
}

const variantSelect = `
		SELECT v.id, v.product_id, p.name, v.sku, v.options_text, v.price, v.stock_qty,
		       v.created_at, v.updated_at, v.version
		FROM product_variants v
		JOIN products p ON p.id = v.product_id`

func scanVariant(ctx context.Context, q database.Querier, query string, id int64) (*models.ProductVariant, error) {
	variant := &models.ProductVariant{}

	err := q.QueryRowContext(ctx, query, id).Scan(
		&variant.ID,
		&variant.ProductID,
		&variant.ProductName,
		&variant.SKU,
		&variant.OptionsText,
		&variant.Price,
		&variant.StockQty,
		&variant.CreatedAt,
		&variant.UpdatedAt,
		&variant.Version,
	)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, database.ErrVariantNotFound
		}
		return nil, err
	}

	return variant, nil
}

func (t *pgTx) GetVariant(ctx context.Context, id int64) (*models.ProductVariant, error) {
	variant, err := scanVariant(ctx, t.q, variantSelect+` WHERE v.id = $1`, id)
	if err != nil && err != database.ErrVariantNotFound {
		return nil, fmt.Errorf("get variant: %w", err)
	}
	return variant, err
}

// LockVariant reads the current stock under a row lock. Concurrent checkouts
// touching the same variant queue here and see each other's debits.
func (t *pgTx) LockVariant(ctx context.Context, id int64) (*models.ProductVariant, error) {
	variant, err := scanVariant(ctx, t.q, variantSelect+` WHERE v.id = $1 FOR UPDATE OF v`, id)
	if err != nil && err != database.ErrVariantNotFound {
		return nil, fmt.Errorf("lock variant %d: %w", id, err)
	}
	return variant, err
}
