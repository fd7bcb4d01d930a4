package schema

import (
	"encoding/json"
	"fmt"
	"time"
)

// Setting is a key-value configuration entry. Settings have no LocalID;
// the key itself addresses the record both locally and remotely.
type Setting struct {
	Key       string          `json:"-"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Validate checks if the Setting has valid field values.
func (s *Setting) Validate() error {
	if s.Key == "" {
		return fmt.Errorf("key is required")
	}
	return nil
}
