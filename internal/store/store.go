// package store persists per-user documents backing the linking flow
// and the scheduled sync.
//
// The bottom layer is [Documents], a document-oriented key-value store
// partitioned by collection name and user id. Application code never
// touches it directly; the typed accessors on [Store] are the only
// operations expressible, so an invalid collection or a malformed
// record is a compile error rather than a runtime surprise.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gerrymanoim/to-listen/internal/shared"
)

// Documents is a document store over SQLite. Each document is a JSON
// object keyed by (collection, key).
type Documents struct {
	db *sql.DB
}

// NewDocuments creates a [Documents] store over the given database connection.
func NewDocuments(db *sql.DB) *Documents {
	return &Documents{db: db}
}

// Put writes a JSON document. When merge is true the value's top level
// fields are overlaid onto the existing document; otherwise the
// document is replaced wholesale.
func (d *Documents) Put(collection, key string, value any, merge bool) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	if merge {
		if data, err = d.merged(collection, key, data); err != nil {
			return err
		}
	}

	query := `
		INSERT INTO documents (collection, key, value, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (collection, key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`
	if _, err := d.db.Exec(query, collection, key, string(data)); err != nil {
		return fmt.Errorf("failed to write document %s/%s: %w", collection, key, err)
	}
	return nil
}

// Get reads a document into dest. Returns [shared.ErrNotFound] when no
// document exists for the key.
func (d *Documents) Get(collection, key string, dest any) error {
	var value string
	err := d.db.QueryRow("SELECT value FROM documents WHERE collection = ? AND key = ?", collection, key).Scan(&value)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s/%s", shared.ErrNotFound, collection, key)
	}
	if err != nil {
		return fmt.Errorf("failed to query document %s/%s: %w", collection, key, err)
	}

	if err := json.Unmarshal([]byte(value), dest); err != nil {
		return fmt.Errorf("failed to unmarshal document %s/%s: %w", collection, key, err)
	}
	return nil
}

// Keys lists all document keys in a collection.
func (d *Documents) Keys(collection string) ([]string, error) {
	rows, err := d.db.Query("SELECT key FROM documents WHERE collection = ? ORDER BY key", collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list collection %s: %w", collection, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return keys, nil
}

// merged overlays the incoming document's top level fields onto the
// stored document. The overlay is shallow: nested objects are replaced
// wholesale, not merged.
func (d *Documents) merged(collection, key string, incoming []byte) ([]byte, error) {
	existing := map[string]json.RawMessage{}
	if err := d.Get(collection, key, &existing); err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	overlay := map[string]json.RawMessage{}
	if err := json.Unmarshal(incoming, &overlay); err != nil {
		return nil, fmt.Errorf("merge requires a JSON object: %w", err)
	}

	for k, v := range overlay {
		existing[k] = v
	}

	data, err := json.Marshal(existing)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal merged document: %w", err)
	}
	return data, nil
}
