package catalog

import (
	"context"
	"encoding/json"
	"fmt"
)

// Source fetches the message tables from the backend, keyed by storage key.
type Source interface {
	FetchTables(ctx context.Context) (map[string]json.RawMessage, error)
}

// Writer is the write side of local storage.
type Writer interface {
	Set(key, value string) error
}

// Refresh copies every table the source returns as a JSON array into local
// storage. Tables that are missing, null or not arrays leave the cached copy
// alone.
// It reports how many tables were written.
func Refresh(ctx context.Context, src Source, w Writer) (int, error) {
	tables, err := src.FetchTables(ctx)
	if err != nil {
		return 0, fmt.Errorf("catalog: fetch tables: %w", err)
	}
	written := 0
	for _, k := range kinds {
		raw, ok := tables[k.StorageKey()]
		if !ok {
			continue
		}
		var entries []json.RawMessage
		if err := json.Unmarshal(raw, &entries); err != nil || entries == nil {
			continue
		}
		if err := w.Set(k.StorageKey(), string(raw)); err != nil {
			return written, fmt.Errorf("catalog: cache %s: %w", k.StorageKey(), err)
		}
		written++
	}
	return written, nil
}

// Stored resolves codes against the tables in storage at call time, so a
// Refresh finishing after construction is seen by the next lookup.
type Stored struct {
	r Reader
}

func NewStored(r Reader) *Stored {
	return &Stored{r: r}
}

// ResolveError loads the current tables and resolves code. An unreadable
// cache resolves to DefaultErrorText.
func (s *Stored) ResolveError(code string) string {
	c, _ := Load(s.r)
	return c.ResolveError(code)
}
