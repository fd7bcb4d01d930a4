// Package backup exports and imports the whole local store as JSONL,
// one record per line with a collection tag. The format is a portable
// escape hatch: move a shop to a new till, seed a test fixture, keep a
// nightly dump.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/graciadivina/tiendita/internal/schema"
	"github.com/graciadivina/tiendita/internal/store"
)

// Line is one exported record: the collection it belongs to plus its
// JSON payload.
type Line struct {
	Collection string          `json:"collection"`
	Key        string          `json:"key,omitempty"`
	Record     json.RawMessage `json:"record"`
}

// Result contains statistics about an export or import run.
type Result struct {
	Products int
	Sales    int
	Layaways int
	Owners   int
	Settings int
	Errors   []string
}

// Total returns the number of records processed.
func (r *Result) Total() int {
	return r.Products + r.Sales + r.Layaways + r.Owners + r.Settings
}

// Export writes every record in every collection to path, atomically
// via a temp file.
func Export(ctx context.Context, st *store.Store, path string) (*Result, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	tmpPath := path + ".tmp"
	// #nosec G304 - controlled path from CLI
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	result := &Result{}

	products, err := st.GetAllProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read products: %w", err)
	}
	for _, p := range products {
		if err := writeLine(enc, schema.CollectionProducts, p.RemoteKey, p); err != nil {
			return nil, err
		}
		result.Products++
	}

	sales, err := st.GetAllSales(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read sales: %w", err)
	}
	for _, s := range sales {
		if err := writeLine(enc, schema.CollectionSales, s.RemoteKey, s); err != nil {
			return nil, err
		}
		result.Sales++
	}

	layaways, err := st.GetAllLayaways(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read layaways: %w", err)
	}
	for _, l := range layaways {
		if err := writeLine(enc, schema.CollectionLayaways, l.RemoteKey, l); err != nil {
			return nil, err
		}
		result.Layaways++
	}

	owners, err := st.GetAllOwners(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read owners: %w", err)
	}
	for _, o := range owners {
		if err := writeLine(enc, schema.CollectionOwners, o.RemoteKey, o); err != nil {
			return nil, err
		}
		result.Owners++
	}

	settings, err := st.GetAllSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	for _, s := range settings {
		if err := writeLine(enc, schema.CollectionSettings, s.Key, s); err != nil {
			return nil, err
		}
		result.Settings++
	}

	if err := file.Sync(); err != nil {
		return nil, fmt.Errorf("failed to sync export file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close export file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return nil, fmt.Errorf("failed to finalize export file: %w", err)
	}
	return result, nil
}

// Import reads a JSONL export and inserts its records into the store.
// Records land as fresh rows with their remote keys preserved, so the
// next sweep republishes them under their original identities. A bad
// line is recorded in Result.Errors and skipped; it never halts the
// rest of the file.
func Import(ctx context.Context, st *store.Store, path string) (*Result, error) {
	// #nosec G304 - controlled path from CLI
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open import file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	result := &Result{}
	lineNum := 0

	for {
		var line Line
		if err := decoder.Decode(&line); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("invalid JSON at line %d: %w", lineNum+1, err)
		}
		lineNum++

		if err := importLine(ctx, st, &line, result); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", lineNum, err))
		}
	}

	return result, nil
}

func importLine(ctx context.Context, st *store.Store, line *Line, result *Result) error {
	switch line.Collection {
	case schema.CollectionProducts:
		var p schema.Product
		if err := json.Unmarshal(line.Record, &p); err != nil {
			return err
		}
		if p.RemoteKey == "" {
			p.RemoteKey = line.Key
		}
		if _, err := st.AddProduct(ctx, &p); err != nil {
			return err
		}
		result.Products++

	case schema.CollectionSales:
		var s schema.Sale
		if err := json.Unmarshal(line.Record, &s); err != nil {
			return err
		}
		if s.RemoteKey == "" {
			s.RemoteKey = line.Key
		}
		if _, err := st.AddSale(ctx, &s); err != nil {
			return err
		}
		result.Sales++

	case schema.CollectionLayaways:
		var l schema.Layaway
		if err := json.Unmarshal(line.Record, &l); err != nil {
			return err
		}
		if l.RemoteKey == "" {
			l.RemoteKey = line.Key
		}
		if _, err := st.AddLayaway(ctx, &l); err != nil {
			return err
		}
		result.Layaways++

	case schema.CollectionOwners:
		var o schema.Owner
		if err := json.Unmarshal(line.Record, &o); err != nil {
			return err
		}
		if o.RemoteKey == "" {
			o.RemoteKey = line.Key
		}
		if _, err := st.AddOwner(ctx, &o); err != nil {
			return err
		}
		result.Owners++

	case schema.CollectionSettings:
		var s schema.Setting
		if err := json.Unmarshal(line.Record, &s); err != nil {
			return err
		}
		if s.Key == "" {
			s.Key = line.Key
		}
		if err := st.PutSetting(ctx, &s); err != nil {
			return err
		}
		result.Settings++

	default:
		return fmt.Errorf("unknown collection %q", line.Collection)
	}
	return nil
}

func writeLine(enc *json.Encoder, collection, key string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", collection, err)
	}
	if err := enc.Encode(Line{Collection: collection, Key: key, Record: data}); err != nil {
		return fmt.Errorf("failed to write %s record: %w", collection, err)
	}
	return nil
}
