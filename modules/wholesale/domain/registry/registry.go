// Package registry holds the static model/field metadata the import engine
// dispatches on instead of runtime reflection.
package registry

import (
	"errors"
	"fmt"
	"sort"
)

type Kind int

const (
	KindAuto Kind = iota + 1
	KindBoolean
	KindInteger
	KindDecimal
	KindString
	KindText
	KindDate
	KindDateTime
	KindJSON
	KindForeignKey
	KindOneToOne
	KindManyToMany
)

var kindNames = map[Kind]string{
	KindAuto:       "AutoField",
	KindBoolean:    "BooleanField",
	KindInteger:    "IntegerField",
	KindDecimal:    "DecimalField",
	KindString:     "CharField",
	KindText:       "TextField",
	KindDate:       "DateField",
	KindDateTime:   "DateTimeField",
	KindJSON:       "JSONField",
	KindForeignKey: "ForeignKey",
	KindOneToOne:   "OneToOneField",
	KindManyToMany: "ManyToManyField",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// IsRelation reports whether values of this kind point at another row.
func (k Kind) IsRelation() bool {
	return k == KindForeignKey || k == KindOneToOne || k == KindManyToMany
}

const PrimaryKey = "id"

var (
	ErrUnknownModel = errors.New("unknown model")
	ErrUnknownField = errors.New("unknown field")
)

// Through describes the join table materializing a many-to-many field.
type Through struct {
	Table        string
	SourceColumn string
	TargetColumn string
}

type Field struct {
	Name     string
	Column   string
	Kind     Kind
	Target   string
	Nullable bool
	Through  *Through

	// RelatedName overrides the name of the synthesized reverse field.
	RelatedName string

	// Reverse marks the synthesized inverse side of a relation declared on Target.
	Reverse bool
}

type Model struct {
	Name      string
	Group     string
	Table     string
	NameField string
	Fields    []Field

	byName map[string]int
}

func (m *Model) Field(name string) (Field, bool) {
	i, ok := m.byName[name]
	if !ok {
		return Field{}, false
	}
	return m.Fields[i], true
}

// Forward returns the declared (non-reverse) fields in declaration order.
func (m *Model) Forward() []Field {
	out := make([]Field, 0, len(m.Fields))
	for _, f := range m.Fields {
		if !f.Reverse {
			out = append(out, f)
		}
	}
	return out
}

func (m *Model) FieldNames() []string {
	out := make([]string, 0, len(m.Fields))
	for _, f := range m.Fields {
		out = append(out, f.Name)
	}
	return out
}

type Registry struct {
	models map[string]*Model
	order  []string
}

// New validates the registration table and synthesizes reverse fields.
func New(models ...Model) (*Registry, error) {
	r := &Registry{models: make(map[string]*Model, len(models))}
	for i := range models {
		m := models[i]
		if m.Name == "" || m.Table == "" {
			return nil, fmt.Errorf("model #%d: name and table are required", i)
		}
		if _, dup := r.models[m.Name]; dup {
			return nil, fmt.Errorf("model %s registered twice", m.Name)
		}
		m.Fields = append([]Field(nil), m.Fields...)
		r.models[m.Name] = &m
		r.order = append(r.order, m.Name)
	}

	for _, name := range r.order {
		m := r.models[name]
		for i := range m.Fields {
			f := &m.Fields[i]
			if f.Reverse {
				continue
			}
			if f.Column == "" {
				switch f.Kind {
				case KindForeignKey, KindOneToOne:
					f.Column = f.Name + "_id"
				case KindManyToMany:
				default:
					f.Column = f.Name
				}
			}
			if !f.Kind.IsRelation() {
				continue
			}
			target, ok := r.models[f.Target]
			if !ok {
				return nil, fmt.Errorf("%s.%s: %w %q", m.Name, f.Name, ErrUnknownModel, f.Target)
			}
			if f.Kind == KindManyToMany && f.Through == nil {
				return nil, fmt.Errorf("%s.%s: many-to-many field needs a through table", m.Name, f.Name)
			}
			if target == m {
				continue
			}
			target.Fields = append(target.Fields, Field{
				Name:    reverseName(m, f),
				Kind:    f.Kind,
				Target:  m.Name,
				Reverse: true,
			})
		}
	}

	for _, name := range r.order {
		m := r.models[name]
		m.byName = make(map[string]int, len(m.Fields))
		for i, f := range m.Fields {
			if _, dup := m.byName[f.Name]; dup {
				return nil, fmt.Errorf("%s: duplicate field %q", m.Name, f.Name)
			}
			m.byName[f.Name] = i
		}
		if m.NameField != "" {
			if _, ok := m.byName[m.NameField]; !ok {
				return nil, fmt.Errorf("%s: name field %q is not declared", m.Name, m.NameField)
			}
		}
	}
	return r, nil
}

func reverseName(source *Model, f *Field) string {
	if f.RelatedName != "" {
		return f.RelatedName
	}
	base := toSnake(source.Name)
	if f.Kind == KindOneToOne {
		return base
	}
	return base + "_set"
}

func toSnake(s string) string {
	out := make([]byte, 0, len(s)+4)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			if i > 0 {
				out = append(out, '_')
			}
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

func (r *Registry) Model(name string) (*Model, bool) {
	m, ok := r.models[name]
	return m, ok
}

// Models returns the models registered in group, in registration order.
func (r *Registry) Models(group string) []*Model {
	out := make([]*Model, 0, len(r.order))
	for _, name := range r.order {
		if m := r.models[name]; m.Group == group {
			out = append(out, m)
		}
	}
	return out
}

// Names returns every registered model name, sorted.
func (r *Registry) Names() []string {
	out := append([]string(nil), r.order...)
	sort.Strings(out)
	return out
}
