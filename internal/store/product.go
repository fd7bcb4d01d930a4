package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/graciadivina/tiendita/internal/schema"
)

// AddProduct inserts a new product and returns its assigned local id.
func (s *Store) AddProduct(ctx context.Context, p *schema.Product) (int64, error) {
	p.SetDefaults()
	if err := p.Validate(); err != nil {
		return 0, fmt.Errorf("invalid product: %w", err)
	}

	query := `
	INSERT INTO products (remote_key, name, category, sku, price, stock, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := s.conn.ExecContext(ctx, query,
		nullString(p.RemoteKey),
		p.Name,
		p.Category,
		p.SKU,
		p.Price,
		p.Stock,
		timeToNullString(p.CreatedAt),
		timeToNullString(p.UpdatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert product: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get product id: %w", err)
	}
	p.LocalID = id
	return id, nil
}

// UpdateProduct updates an existing product in place. The local id is
// never changed.
func (s *Store) UpdateProduct(ctx context.Context, p *schema.Product) error {
	if p.LocalID == 0 {
		return fmt.Errorf("product has no local id")
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid product: %w", err)
	}

	query := `
	UPDATE products SET
		remote_key = ?, name = ?, category = ?, sku = ?,
		price = ?, stock = ?, updated_at = ?
	WHERE id = ?
	`

	_, err := s.conn.ExecContext(ctx, query,
		nullString(p.RemoteKey),
		p.Name,
		p.Category,
		p.SKU,
		p.Price,
		p.Stock,
		timeToNullString(p.UpdatedAt),
		p.LocalID,
	)
	if err != nil {
		return fmt.Errorf("failed to update product %d: %w", p.LocalID, err)
	}
	return nil
}

// DeleteProduct removes a product. Returns nil if it doesn't exist
// (idempotent).
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	if _, err := s.conn.ExecContext(ctx, "DELETE FROM products WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete product %d: %w", id, err)
	}
	return nil
}

// GetProduct retrieves a single product by local id.
// Returns sql.ErrNoRows if not found.
func (s *Store) GetProduct(ctx context.Context, id int64) (*schema.Product, error) {
	row := s.conn.QueryRowContext(ctx, productSelect+" WHERE id = ?", id)
	return scanProduct(row)
}

// GetAllProducts retrieves every product ordered by name.
func (s *Store) GetAllProducts(ctx context.Context) ([]*schema.Product, error) {
	rows, err := s.conn.QueryContext(ctx, productSelect+" ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []*schema.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}
	return products, nil
}

const productSelect = `
	SELECT id, remote_key, name, category, sku, price, stock, created_at, updated_at
	FROM products`

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*schema.Product, error) {
	var p schema.Product
	var remoteKey, category, sku sql.NullString
	var createdAt, updatedAt sql.NullString

	err := row.Scan(
		&p.LocalID,
		&remoteKey,
		&p.Name,
		&category,
		&sku,
		&p.Price,
		&p.Stock,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.RemoteKey = remoteKey.String
	p.Category = category.String
	p.SKU = sku.String
	p.CreatedAt = nullStringToTime(createdAt)
	p.UpdatedAt = nullStringToTime(updatedAt)
	return &p, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}
