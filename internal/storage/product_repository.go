package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

const productColumns = `id, tenant_id, sku, name, description, category, price, currency, unit, in_stock, updated_at`

// ProductRepository persists catalog products.
type ProductRepository struct {
	db DB
}

// NewProductRepository creates a new product repository.
func NewProductRepository(db DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// Upsert inserts the product or updates the row with the same (tenant, sku).
func (r *ProductRepository) Upsert(ctx context.Context, p *Product) error {
	if p.TenantID == "" {
		return ErrInvalidTenant
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, sku) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			category = excluded.category,
			price = excluded.price,
			currency = excluded.currency,
			unit = excluded.unit,
			in_stock = excluded.in_stock,
			updated_at = excluded.updated_at
		RETURNING id`

	return r.db.QueryRowContext(ctx, query,
		p.ID, p.TenantID, p.SKU, p.Name, p.Description, p.Category, p.Price,
		p.Currency, p.Unit, boolToInt(p.InStock), toMillis(p.UpdatedAt),
	).Scan(&p.ID)
}

// GetByID retrieves a product with tenant scoping.
func (r *ProductRepository) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE tenant_id = ? AND id = ?`
	p, err := scanProduct(r.db.QueryRowContext(ctx, query, tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// ListByTenant returns every product of the tenant ordered by name.
func (r *ProductRepository) ListByTenant(ctx context.Context, tenantID string) ([]Product, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE tenant_id = ? ORDER BY name`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

// ListTenants returns every tenant that owns at least one product.
func (r *ProductRepository) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT tenant_id FROM products ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// Delete removes a product.
func (r *ProductRepository) Delete(ctx context.Context, tenantID string, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanProduct(row rowScanner) (*Product, error) {
	var (
		p         Product
		inStock   int
		updatedAt int64
	)
	if err := row.Scan(&p.ID, &p.TenantID, &p.SKU, &p.Name, &p.Description, &p.Category,
		&p.Price, &p.Currency, &p.Unit, &inStock, &updatedAt); err != nil {
		return nil, err
	}
	p.InStock = inStock != 0
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
