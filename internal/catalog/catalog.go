// Package catalog resolves status and error codes to display text using the
// message tables cached in local storage.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DefaultErrorText is shown when no cached error text exists for a code.
const DefaultErrorText = "Invalid credentials."

// ErrMalformedCatalog reports cached message data that is not valid JSON.
var ErrMalformedCatalog = errors.New("catalog: malformed cached message table")

// Kind selects one of the three message tables.
type Kind int

const (
	KindError Kind = iota
	KindInformation
	KindValidation
)

var kinds = []Kind{KindError, KindInformation, KindValidation}

// StorageKey is the local storage key holding the cached table.
func (k Kind) StorageKey() string {
	switch k {
	case KindError:
		return "user_error"
	case KindInformation:
		return "user_information"
	case KindValidation:
		return "user_validation"
	default:
		return ""
	}
}

func (k Kind) String() string {
	switch k {
	case KindError:
		return "error"
	case KindInformation:
		return "information"
	case KindValidation:
		return "validation"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) fields() (code, text string) {
	switch k {
	case KindError:
		return "error_code", "error_message"
	case KindInformation:
		return "information_code", "information_text"
	case KindValidation:
		return "validation_code", "validation_message"
	default:
		return "", ""
	}
}

// Table maps an uppercased code to its text.
type Table map[string]string

// Catalog holds the three message tables. The zero value is not usable; use
// Empty or Load.
type Catalog struct {
	tables map[Kind]Table
}

// Empty returns a catalog where every lookup misses.
func Empty() *Catalog {
	c := &Catalog{tables: make(map[Kind]Table, len(kinds))}
	for _, k := range kinds {
		c.tables[k] = Table{}
	}
	return c
}

// Reader is the read side of local storage.
type Reader interface {
	Get(key string) (string, bool, error)
}

// Load reads the cached tables. The returned catalog is never nil: a missing
// key gives an empty table for that kind, a JSON value that is not an array
// gives an empty table for that kind, and any unreadable or unparsable value
// resets all three tables and is reported through the error.
func Load(r Reader) (*Catalog, error) {
	c := Empty()
	for _, k := range kinds {
		raw, ok, err := r.Get(k.StorageKey())
		if err != nil {
			return Empty(), fmt.Errorf("%w: read %s: %v", ErrMalformedCatalog, k.StorageKey(), err)
		}
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		var entries any
		if err := json.Unmarshal([]byte(raw), &entries); err != nil {
			return Empty(), fmt.Errorf("%w: %s: %v", ErrMalformedCatalog, k.StorageKey(), err)
		}
		c.tables[k] = Normalize(entries, k)
	}
	return c, nil
}

// Normalize builds the code to text mapping for kind from decoded JSON.
// Anything that is not an array yields an empty table. Null entries, entries
// that are not objects and entries without a non-empty code are skipped;
// later duplicates win.
func Normalize(entries any, kind Kind) Table {
	table := Table{}
	list, ok := entries.([]any)
	if !ok {
		return table
	}
	codeField, textField := kind.fields()
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok || len(entry) == 0 {
			continue
		}
		code, _ := entry[codeField].(string)
		if code == "" {
			continue
		}
		text, _ := entry[textField].(string)
		table[strings.ToUpper(code)] = text
	}
	return table
}

// Lookup returns the text for code in the kind's table. Empty text counts as
// a miss.
func (c *Catalog) Lookup(kind Kind, code string) (string, bool) {
	if c == nil {
		return "", false
	}
	text := c.tables[kind][strings.ToUpper(code)]
	return text, text != ""
}

// ResolveError returns the cached error text for code or DefaultErrorText.
func (c *Catalog) ResolveError(code string) string {
	if text, ok := c.Lookup(KindError, code); ok {
		return text
	}
	return DefaultErrorText
}

func (c *Catalog) ResolveInformation(code, fallback string) string {
	if text, ok := c.Lookup(KindInformation, code); ok {
		return text
	}
	return fallback
}

func (c *Catalog) ResolveValidation(code, fallback string) string {
	if text, ok := c.Lookup(KindValidation, code); ok {
		return text
	}
	return fallback
}

// Len reports the number of entries in the kind's table.
func (c *Catalog) Len(kind Kind) int {
	if c == nil {
		return 0
	}
	return len(c.tables[kind])
}
