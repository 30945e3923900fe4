// Package record is the descriptor-driven persistence contract for the
// models the importer writes to.
package record

import (
	"context"
	"encoding/json"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/iota-uz/wholesale/modules/wholesale/domain/registry"
)

// NameKey is the comparison form of a name. Stores compare lower(column)
// against NameKey of the input, and in-memory matching uses the same key,
// so both sides agree on which names are equal.
func NameKey(name string) string {
	return cases.Lower(language.Und).String(name)
}

// Values maps declared field names to typed cell values. Foreign keys are
// keyed by field name and hold the target pk (int64) or nil.
type Values map[string]any

type Update struct {
	PK     int64
	Values Values
}

type NameMatch struct {
	PK   int64
	Name string
}

// Link is one through row of a many-to-many field.
type Link struct {
	Source int64
	Target int64
}

type Store interface {
	// CreateBulk inserts rows and returns their pks in input order.
	CreateBulk(ctx context.Context, model *registry.Model, rows []Values) ([]int64, error)
	// UpdateBulk writes the given fields of each row; fields absent from a
	// row's Values are left untouched.
	UpdateBulk(ctx context.Context, model *registry.Model, fields []string, rows []Update) error
	// Snapshots returns a JSON image of each existing row, keyed by pk.
	Snapshots(ctx context.Context, model *registry.Model, pks []int64) (map[int64]json.RawMessage, error)
	// FindByName returns the rows whose lower(model.NameField) equals
	// NameKey of one of names.
	FindByName(ctx context.Context, model *registry.Model, names []string) ([]NameMatch, error)
	ClearMembers(ctx context.Context, model *registry.Model, field string, pks []int64) error
	AddMembers(ctx context.Context, model *registry.Model, field string, links []Link) error
}
