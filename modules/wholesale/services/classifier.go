package services

import (
	"strings"

	"github.com/iota-uz/wholesale/modules/wholesale/domain/registry"
)

const (
	ExternalSuffix = "__external"
	ExternalPK     = registry.PrimaryKey + ExternalSuffix
)

type Category int

const (
	CategoryExternalPK Category = iota + 1
	CategoryBool
	CategoryInt
	CategoryDecimal
	CategoryString
	CategoryDate
	CategoryJSON
	CategoryManyToMany
	CategorySingleRelation
)

func (c Category) String() string {
	switch c {
	case CategoryExternalPK:
		return "external_pk"
	case CategoryBool:
		return "bool"
	case CategoryInt:
		return "int"
	case CategoryDecimal:
		return "decimal"
	case CategoryString:
		return "string"
	case CategoryDate:
		return "date"
	case CategoryJSON:
		return "json"
	case CategoryManyToMany:
		return "many_to_many"
	case CategorySingleRelation:
		return "relation"
	default:
		return "unknown"
	}
}

func (c Category) IsRelation() bool {
	return c == CategoryManyToMany || c == CategorySingleRelation
}

// Column is the classified form of one "Model.field" header cell.
type Column struct {
	Header string
	Model  string
	// Field is the header's field part as written, including any suffix.
	Field string
	// Actual is the declared field the column writes to.
	Actual   string
	External bool
	Category Category
	Related  string
	Nullable bool
}

// Policy is the allowlist/denylist the classifier enforces.
type Policy interface {
	ModelAllowed(model string) bool
	FieldAllowed(model, field string) bool
}

type Classifier struct {
	meta   *Metadata
	policy Policy
}

func NewClassifier(meta *Metadata, policy Policy) *Classifier {
	return &Classifier{meta: meta, policy: policy}
}

func (c *Classifier) Classify(header string) (Column, error) {
	parts := strings.Split(strings.TrimSpace(header), ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Column{}, stopf("Column %q is not in expected format Model.field", header)
	}
	modelName, fieldName := parts[0], parts[1]

	if !c.policy.ModelAllowed(modelName) {
		return Column{}, stopf("Model %s is not allowed for wholesale import", modelName)
	}
	model, err := c.meta.Model(modelName)
	if err != nil {
		return Column{}, err
	}

	col := Column{Header: header, Model: modelName, Field: fieldName}
	if fieldName == ExternalPK {
		col.Actual = registry.PrimaryKey
		col.External = true
		col.Category = CategoryExternalPK
		return col, nil
	}

	actual, external := strings.CutSuffix(fieldName, ExternalSuffix)
	col.Actual, col.External = actual, external
	if !c.policy.FieldAllowed(modelName, actual) {
		return Column{}, stopf("Field %s.%s is not allowed for wholesale import", modelName, actual)
	}
	f, err := c.meta.Field(model, actual)
	if err != nil {
		return Column{}, err
	}
	col.Nullable = f.Nullable

	if c.meta.IsRelationField(model, f) {
		col.Related = f.Target
		if f.Kind == registry.KindManyToMany {
			col.Category = CategoryManyToMany
		} else {
			col.Category = CategorySingleRelation
		}
		return col, nil
	}
	if external {
		return Column{}, stopf("Field %s.%s is not a relation and cannot be referenced by external id", modelName, actual)
	}

	cat, ok := categoryOf(f.Kind)
	if !ok || f.Reverse || f.Kind.IsRelation() {
		return Column{}, stopf("Field %s.%s has unsupported type %s", modelName, actual, describeKind(f))
	}
	col.Category = cat
	return col, nil
}

func categoryOf(k registry.Kind) (Category, bool) {
	switch k {
	case registry.KindBoolean:
		return CategoryBool, true
	case registry.KindAuto, registry.KindInteger:
		return CategoryInt, true
	case registry.KindDecimal:
		return CategoryDecimal, true
	case registry.KindString, registry.KindText:
		return CategoryString, true
	case registry.KindDate:
		return CategoryDate, true
	case registry.KindJSON:
		return CategoryJSON, true
	default:
		return 0, false
	}
}

func describeKind(f registry.Field) string {
	if f.Reverse {
		return "reverse " + f.Kind.String()
	}
	return f.Kind.String()
}

// BuildColumns classifies a whole header row. Each model's columns must be
// contiguous, and relations to models also present in the header may only
// point at models whose columns come earlier.
func (c *Classifier) BuildColumns(headers []string) ([]Column, error) {
	if len(headers) == 0 {
		return nil, stopf("The file has no columns")
	}
	cols := make([]Column, 0, len(headers))
	seen := map[string]struct{}{}
	blockOf := map[string]int{}
	current := ""
	for _, h := range headers {
		col, err := c.Classify(h)
		if err != nil {
			return nil, err
		}
		key := col.Model + "." + col.Field
		if _, dup := seen[key]; dup {
			return nil, stopf("Column %s appears more than once", key)
		}
		seen[key] = struct{}{}

		if col.Model != current {
			if _, again := blockOf[col.Model]; again {
				return nil, stopf("Columns for %s must be next to each other", col.Model)
			}
			blockOf[col.Model] = len(blockOf)
			current = col.Model
		}
		cols = append(cols, col)
	}

	for _, col := range cols {
		if !col.Category.IsRelation() {
			continue
		}
		target, inJob := blockOf[col.Related]
		if inJob && target >= blockOf[col.Model] {
			return nil, stopf(
				"%s refers to %s, so %s columns must come before %s columns",
				col.Header, col.Related, col.Related, col.Model,
			)
		}
	}
	return cols, nil
}

// block is the contiguous column range [start, end) of one model.
type block struct {
	model string
	start int
	end   int
}

func blocksOf(cols []Column) []block {
	var out []block
	for i, col := range cols {
		if len(out) == 0 || out[len(out)-1].model != col.Model {
			out = append(out, block{model: col.Model, start: i, end: i + 1})
			continue
		}
		out[len(out)-1].end = i + 1
	}
	return out
}

// ModelsOf returns the model prefixes of a header row in first-seen order,
// without validating them.
func ModelsOf(headers []string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, h := range headers {
		model, _, _ := strings.Cut(strings.TrimSpace(h), ".")
		if model == "" {
			continue
		}
		if _, ok := seen[model]; ok {
			continue
		}
		seen[model] = struct{}{}
		out = append(out, model)
	}
	return out
}
