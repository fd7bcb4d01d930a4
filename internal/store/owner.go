package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/graciadivina/tiendita/internal/schema"
)

// AddOwner inserts a new owner and returns its assigned local id.
func (s *Store) AddOwner(ctx context.Context, o *schema.Owner) (int64, error) {
	o.SetDefaults()
	if err := o.Validate(); err != nil {
		return 0, fmt.Errorf("invalid owner: %w", err)
	}

	query := `
	INSERT INTO owners (remote_key, name, created_at, updated_at)
	VALUES (?, ?, ?, ?)
	`

	res, err := s.conn.ExecContext(ctx, query,
		nullString(o.RemoteKey),
		o.Name,
		timeToNullString(o.CreatedAt),
		timeToNullString(o.UpdatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert owner: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get owner id: %w", err)
	}
	o.LocalID = id
	return id, nil
}

// UpdateOwner updates an existing owner (remote key stamping).
func (s *Store) UpdateOwner(ctx context.Context, o *schema.Owner) error {
	if o.LocalID == 0 {
		return fmt.Errorf("owner has no local id")
	}
	if err := o.Validate(); err != nil {
		return fmt.Errorf("invalid owner: %w", err)
	}

	query := `UPDATE owners SET remote_key = ?, name = ?, updated_at = ? WHERE id = ?`
	_, err := s.conn.ExecContext(ctx, query,
		nullString(o.RemoteKey),
		o.Name,
		timeToNullString(o.UpdatedAt),
		o.LocalID,
	)
	if err != nil {
		return fmt.Errorf("failed to update owner %d: %w", o.LocalID, err)
	}
	return nil
}

// DeleteOwner removes an owner. Returns nil if it doesn't exist
// (idempotent).
func (s *Store) DeleteOwner(ctx context.Context, id int64) error {
	if _, err := s.conn.ExecContext(ctx, "DELETE FROM owners WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete owner %d: %w", id, err)
	}
	return nil
}

// GetAllOwners retrieves every owner ordered by name.
func (s *Store) GetAllOwners(ctx context.Context) ([]*schema.Owner, error) {
	query := `SELECT id, remote_key, name, created_at, updated_at FROM owners ORDER BY name ASC`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query owners: %w", err)
	}
	defer rows.Close()

	var owners []*schema.Owner
	for rows.Next() {
		var o schema.Owner
		var remoteKey sql.NullString
		var createdAt, updatedAt sql.NullString

		if err := rows.Scan(&o.LocalID, &remoteKey, &o.Name, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan owner: %w", err)
		}

		o.RemoteKey = remoteKey.String
		o.CreatedAt = nullStringToTime(createdAt)
		o.UpdatedAt = nullStringToTime(updatedAt)
		owners = append(owners, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating owners: %w", err)
	}
	return owners, nil
}
