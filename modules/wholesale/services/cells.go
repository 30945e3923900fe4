package services

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iota-uz/wholesale/modules/wholesale/domain/importjob"
	"github.com/iota-uz/wholesale/modules/wholesale/domain/registry"
)

const (
	DateLayout          = "2006-01-02"
	DefaultM2MDelimiter = ","
)

var (
	trueValues  = []string{"true", "yes", "checked", "t", "y"}
	falseValues = []string{"false", "no", "unchecked", "f", "n"}
)

// CellResult is the outcome of parsing one cell: a value, an omitted cell,
// or a reason to skip the current row for the current model.
type CellResult struct {
	Value any
	Omit  bool
	Skip  string
}

func Ok(v any) CellResult { return CellResult{Value: v} }

func Omitted() CellResult { return CellResult{Omit: true} }

func SkipRow(format string, args ...any) CellResult {
	return CellResult{Skip: fmt.Sprintf(format, args...)}
}

func (r CellResult) Skipped() bool { return r.Skip != "" }

type RefKind int

const (
	RefPK RefKind = iota + 1
	RefName
	RefExternal
)

// Reference is one relation target named by a cell.
type Reference struct {
	Kind  RefKind
	PK    int64
	Value string
}

type CellParser struct {
	Delimiter string
}

func NewCellParser(delimiter string) CellParser {
	if delimiter == "" {
		delimiter = DefaultM2MDelimiter
	}
	return CellParser{Delimiter: delimiter}
}

// Parse converts raw into the typed value for col. Relation cells yield
// *Reference (nil for null) and many-to-many cells yield []Reference.
func (p CellParser) Parse(col Column, raw string, action importjob.Action) CellResult {
	value := strings.TrimSpace(raw)
	blank := value == ""

	switch col.Category {
	case CategoryExternalPK:
		if blank {
			return SkipRow("%s: external id must not be blank", col.Header)
		}
		return Ok(value)
	case CategoryManyToMany:
		return p.parseMany(col, value)
	}

	if blank {
		if action == importjob.ActionAdd {
			return Omitted()
		}
		return blankOnUpdate(col)
	}

	switch col.Category {
	case CategoryBool:
		return parseBool(col, value)
	case CategoryInt:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return SkipRow("%s: %q is not a valid integer", col.Header, value)
		}
		return Ok(n)
	case CategoryDecimal:
		d, err := decimal.NewFromString(value)
		if err != nil {
			return SkipRow("%s: %q is not a valid decimal", col.Header, value)
		}
		return Ok(d)
	case CategoryString:
		return Ok(value)
	case CategoryDate:
		d, err := time.Parse(DateLayout, value)
		if err != nil {
			return SkipRow("%s: %q is not a valid date (expected YYYY-MM-DD)", col.Header, value)
		}
		return Ok(d)
	case CategoryJSON:
		return parseJSON(col, value)
	case CategorySingleRelation:
		ref := parseReference(col, value)
		return Ok(&ref)
	default:
		return SkipRow("%s: unsupported column type %s", col.Header, col.Category)
	}
}

func blankOnUpdate(col Column) CellResult {
	switch {
	case col.Category == CategoryString:
		return Ok("")
	case col.Category == CategorySingleRelation:
		if !col.Nullable {
			return SkipRow("%s: a value is required", col.Header)
		}
		return Ok((*Reference)(nil))
	case col.Actual == registry.PrimaryKey:
		return Ok(nil)
	case !col.Nullable:
		return SkipRow("%s: a value is required", col.Header)
	default:
		return Ok(nil)
	}
}

func parseBool(col Column, value string) CellResult {
	lower := strings.ToLower(value)
	for _, t := range trueValues {
		if lower == t {
			return Ok(true)
		}
	}
	for _, f := range falseValues {
		if lower == f {
			return Ok(false)
		}
	}
	return SkipRow(
		"%s: %q is not a valid boolean (use one of %s or %s)",
		col.Header, value, strings.Join(trueValues, ", "), strings.Join(falseValues, ", "),
	)
}

func parseJSON(col Column, value string) CellResult {
	var v any
	if err := json.Unmarshal([]byte(value), &v); err == nil {
		return Ok(json.RawMessage(value))
	}
	lit, err := parseLiteral(value)
	if err != nil {
		return SkipRow("%s: %q is not valid JSON", col.Header, value)
	}
	raw, err := json.Marshal(lit)
	if err != nil {
		return SkipRow("%s: %q is not valid JSON", col.Header, value)
	}
	return Ok(json.RawMessage(raw))
}

func parseReference(col Column, value string) Reference {
	if col.External {
		return Reference{Kind: RefExternal, Value: value}
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return Reference{Kind: RefPK, PK: n, Value: value}
	}
	return Reference{Kind: RefName, Value: value}
}

func (p CellParser) parseMany(col Column, value string) CellResult {
	refs := make([]Reference, 0)
	if value == "" {
		return Ok(refs)
	}
	for _, token := range strings.Split(value, p.Delimiter) {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		refs = append(refs, parseReference(col, token))
	}
	return Ok(refs)
}
