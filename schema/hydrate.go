package schema

import (
	"errors"
	"fmt"

	"github.com/ridoystarlord/schemasync/types"
)

var ErrUnknownColumn = errors.New("schema: unknown column")

// FromStorage converts a raw row, as yielded by a query iterator, into typed
// member values. Columns the entity does not declare pass through untouched.
func (e *EntityDeclaration) FromStorage(row map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(row))
	for k, v := range row {
		c, ok := e.table.Column(k)
		if !ok {
			out[k] = v
			continue
		}
		typed, err := types.FromStorage(c.Type, v)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", e.name, k, err)
		}
		out[k] = typed
	}
	return out, nil
}

// ToStorage converts member values into values bound for storage.
func (e *EntityDeclaration) ToStorage(members map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(members))
	for k, v := range members {
		c, ok := e.table.Column(k)
		if !ok {
			return nil, fmt.Errorf("%w %s.%s", ErrUnknownColumn, e.name, k)
		}
		stored, err := types.ToStorage(c.Type, v)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", e.name, k, err)
		}
		out[k] = stored
	}
	return out, nil
}

// FindWhere returns the storage-typed equality conditions locating the row
// with the same find keys as members.
func (e *EntityDeclaration) FindWhere(members map[string]any) (map[string]any, error) {
	keys := make(map[string]any, len(e.findKeys))
	for _, k := range e.findKeys {
		v, ok := members[k]
		if !ok {
			return nil, fmt.Errorf("%s: find key %s not set", e.name, k)
		}
		keys[k] = v
	}
	return e.ToStorage(keys)
}
