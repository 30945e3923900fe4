// Package externalid maps caller-supplied identifiers to internal primary keys.
package externalid

import (
	"context"

	"github.com/google/uuid"
)

type Mapping struct {
	Model      string
	ExternalID string
	PK         int64
	ImportUUID uuid.UUID
}

type Repository interface {
	// Lookup returns every mapping for model whose external id is in ids.
	// Callers detect ambiguous ids by counting matches per id.
	Lookup(ctx context.Context, model string, ids []string) ([]Mapping, error)
	CreateMany(ctx context.Context, mappings []Mapping) error
}

// GroupByID groups mappings by external id.
func GroupByID(mappings []Mapping) map[string][]Mapping {
	out := make(map[string][]Mapping, len(mappings))
	for _, m := range mappings {
		out[m.ExternalID] = append(out[m.ExternalID], m)
	}
	return out
}
