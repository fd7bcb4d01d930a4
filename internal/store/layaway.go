package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/graciadivina/tiendita/internal/schema"
)

// AddLayaway inserts a new layaway and returns its assigned local id.
// Totals are recomputed from the payments array before writing.
func (s *Store) AddLayaway(ctx context.Context, l *schema.Layaway) (int64, error) {
	l.SetDefaults()
	if err := l.Validate(); err != nil {
		return 0, fmt.Errorf("invalid layaway: %w", err)
	}

	itemsJSON, paymentsJSON, err := marshalLayawayArrays(l)
	if err != nil {
		return 0, err
	}

	query := `
	INSERT INTO layaways (
		remote_key, customer_name, customer_phone, items, total,
		total_paid, pending_amount, status, date, payments, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := s.conn.ExecContext(ctx, query,
		nullString(l.RemoteKey),
		l.CustomerName,
		l.CustomerPhone,
		itemsJSON,
		l.Total,
		l.TotalPaid,
		l.PendingAmount,
		l.Status,
		timeToNullString(l.Date),
		paymentsJSON,
		timeToNullString(l.CreatedAt),
		timeToNullString(l.UpdatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert layaway: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get layaway id: %w", err)
	}
	l.LocalID = id
	return id, nil
}

// UpdateLayaway updates an existing layaway in place. The local id is
// never changed. Totals are recomputed from the payments array before
// writing; a caller-supplied aggregate is never trusted.
func (s *Store) UpdateLayaway(ctx context.Context, l *schema.Layaway) error {
	if l.LocalID == 0 {
		return fmt.Errorf("layaway has no local id")
	}
	l.RecalcTotals()
	if err := l.Validate(); err != nil {
		return fmt.Errorf("invalid layaway: %w", err)
	}

	itemsJSON, paymentsJSON, err := marshalLayawayArrays(l)
	if err != nil {
		return err
	}

	query := `
	UPDATE layaways SET
		remote_key = ?, customer_name = ?, customer_phone = ?, items = ?,
		total = ?, total_paid = ?, pending_amount = ?, status = ?,
		date = ?, payments = ?, updated_at = ?
	WHERE id = ?
	`

	_, err = s.conn.ExecContext(ctx, query,
		nullString(l.RemoteKey),
		l.CustomerName,
		l.CustomerPhone,
		itemsJSON,
		l.Total,
		l.TotalPaid,
		l.PendingAmount,
		l.Status,
		timeToNullString(l.Date),
		paymentsJSON,
		timeToNullString(l.UpdatedAt),
		l.LocalID,
	)
	if err != nil {
		return fmt.Errorf("failed to update layaway %d: %w", l.LocalID, err)
	}
	return nil
}

// DeleteLayaway removes a layaway. Only pending layaways may be
// deleted; a completed layaway is immutable.
func (s *Store) DeleteLayaway(ctx context.Context, id int64) error {
	res, err := s.conn.ExecContext(ctx,
		"DELETE FROM layaways WHERE id = ? AND status = ?", id, schema.LayawayPending)
	if err != nil {
		return fmt.Errorf("failed to delete layaway %d: %w", id, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Distinguish "absent" (idempotent, fine) from "completed".
		var status string
		err := s.conn.QueryRowContext(ctx, "SELECT status FROM layaways WHERE id = ?", id).Scan(&status)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to check layaway %d: %w", id, err)
		}
		return fmt.Errorf("layaway %d is %s and cannot be deleted", id, status)
	}
	return nil
}

// GetLayaway retrieves a single layaway by local id.
// Returns sql.ErrNoRows if not found.
func (s *Store) GetLayaway(ctx context.Context, id int64) (*schema.Layaway, error) {
	row := s.conn.QueryRowContext(ctx, layawaySelect+" WHERE id = ?", id)
	return scanLayaway(row)
}

// GetAllLayaways retrieves every layaway ordered by date descending.
func (s *Store) GetAllLayaways(ctx context.Context) ([]*schema.Layaway, error) {
	rows, err := s.conn.QueryContext(ctx, layawaySelect+" ORDER BY date DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query layaways: %w", err)
	}
	defer rows.Close()

	var layaways []*schema.Layaway
	for rows.Next() {
		l, err := scanLayaway(rows)
		if err != nil {
			return nil, err
		}
		layaways = append(layaways, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating layaways: %w", err)
	}
	return layaways, nil
}

const layawaySelect = `
	SELECT id, remote_key, customer_name, customer_phone, items, total,
	       total_paid, pending_amount, status, date, payments, created_at, updated_at
	FROM layaways`

func scanLayaway(row rowScanner) (*schema.Layaway, error) {
	var l schema.Layaway
	var remoteKey, phone sql.NullString
	var itemsJSON, paymentsJSON string
	var date, createdAt, updatedAt sql.NullString

	err := row.Scan(
		&l.LocalID,
		&remoteKey,
		&l.CustomerName,
		&phone,
		&itemsJSON,
		&l.Total,
		&l.TotalPaid,
		&l.PendingAmount,
		&l.Status,
		&date,
		&paymentsJSON,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if itemsJSON != "" && itemsJSON != "null" {
		if err := json.Unmarshal([]byte(itemsJSON), &l.Items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal layaway items: %w", err)
		}
	} else {
		l.Items = []schema.SaleItem{}
	}
	if paymentsJSON != "" && paymentsJSON != "null" {
		if err := json.Unmarshal([]byte(paymentsJSON), &l.Payments); err != nil {
			return nil, fmt.Errorf("failed to unmarshal layaway payments: %w", err)
		}
	} else {
		l.Payments = []schema.Payment{}
	}

	l.RemoteKey = remoteKey.String
	l.CustomerPhone = phone.String
	l.Date = nullStringToTime(date)
	l.CreatedAt = nullStringToTime(createdAt)
	l.UpdatedAt = nullStringToTime(updatedAt)
	return &l, nil
}

func marshalLayawayArrays(l *schema.Layaway) (items string, payments string, err error) {
	itemsJSON, err := json.Marshal(l.Items)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal layaway items: %w", err)
	}
	paymentsJSON, err := json.Marshal(l.Payments)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal layaway payments: %w", err)
	}
	return string(itemsJSON), string(paymentsJSON), nil
}
