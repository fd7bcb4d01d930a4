package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/graciadivina/tiendita/internal/schema"
)

// AddSale records a completed sale and returns its assigned local id.
//
// Sales are create-only: there is deliberately no UpdateSale. The only
// other operation is DeleteSale (local void/cleanup).
func (s *Store) AddSale(ctx context.Context, sale *schema.Sale) (int64, error) {
	sale.SetDefaults()
	if err := sale.Validate(); err != nil {
		return 0, fmt.Errorf("invalid sale: %w", err)
	}

	itemsJSON, err := json.Marshal(sale.Items)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal sale items: %w", err)
	}

	query := `
	INSERT INTO sales (remote_key, ticket_number, items, total, payment_method, date, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := s.conn.ExecContext(ctx, query,
		nullString(sale.RemoteKey),
		sale.TicketNumber,
		string(itemsJSON),
		sale.Total,
		sale.PaymentMethod,
		timeToNullString(sale.Date),
		timeToNullString(sale.CreatedAt),
		timeToNullString(sale.UpdatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert sale: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get sale id: %w", err)
	}
	sale.LocalID = id
	return id, nil
}

// DeleteSale removes a sale. Returns nil if it doesn't exist
// (idempotent).
func (s *Store) DeleteSale(ctx context.Context, id int64) error {
	if _, err := s.conn.ExecContext(ctx, "DELETE FROM sales WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete sale %d: %w", id, err)
	}
	return nil
}

// GetAllSales retrieves every sale ordered by date descending.
func (s *Store) GetAllSales(ctx context.Context) ([]*schema.Sale, error) {
	query := `
	SELECT id, remote_key, ticket_number, items, total, payment_method, date, created_at, updated_at
	FROM sales
	ORDER BY date DESC
	`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sales: %w", err)
	}
	defer rows.Close()

	var sales []*schema.Sale
	for rows.Next() {
		var sale schema.Sale
		var remoteKey, paymentMethod sql.NullString
		var itemsJSON string
		var date, createdAt, updatedAt sql.NullString

		err := rows.Scan(
			&sale.LocalID,
			&remoteKey,
			&sale.TicketNumber,
			&itemsJSON,
			&sale.Total,
			&paymentMethod,
			&date,
			&createdAt,
			&updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}

		if itemsJSON != "" && itemsJSON != "null" {
			if err := json.Unmarshal([]byte(itemsJSON), &sale.Items); err != nil {
				return nil, fmt.Errorf("failed to unmarshal sale items: %w", err)
			}
		} else {
			sale.Items = []schema.SaleItem{}
		}

		sale.RemoteKey = remoteKey.String
		sale.PaymentMethod = paymentMethod.String
		sale.Date = nullStringToTime(date)
		sale.CreatedAt = nullStringToTime(createdAt)
		sale.UpdatedAt = nullStringToTime(updatedAt)

		sales = append(sales, &sale)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sales: %w", err)
	}
	return sales, nil
}
