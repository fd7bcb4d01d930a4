package schema

import (
	"fmt"
	"time"
)

// Owner is a business owner/consignor whose merchandise is tracked in
// the catalog.
type Owner struct {
	LocalID   int64  `json:"-"`
	RemoteKey string `json:"remoteKey,omitempty"`

	Name string `json:"name"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks if the Owner has valid field values.
func (o *Owner) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (o *Owner) SetDefaults() {
	now := time.Now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = now
	}
}
