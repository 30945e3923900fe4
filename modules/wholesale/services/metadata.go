package services

import (
	"github.com/iota-uz/wholesale/modules/wholesale/domain/registry"
)

// Metadata answers model/field introspection questions for one model group.
type Metadata struct {
	reg   *registry.Registry
	group string
}

func NewMetadata(reg *registry.Registry, group string) *Metadata {
	return &Metadata{reg: reg, group: group}
}

func (m *Metadata) Group() string {
	return m.group
}

func (m *Metadata) ListModels(group string) []*registry.Model {
	return m.reg.Models(group)
}

// Model resolves a model of the configured group by name.
func (m *Metadata) Model(name string) (*registry.Model, error) {
	model, ok := m.reg.Model(name)
	if !ok || model.Group != m.group {
		names := make([]string, 0)
		for _, c := range m.reg.Models(m.group) {
			names = append(names, c.Name)
		}
		return nil, stopf("Unknown model %q%s", name, didYouMean(name, names))
	}
	return model, nil
}

func (m *Metadata) FieldsOf(model *registry.Model) []registry.Field {
	return model.Fields
}

func (m *Metadata) Field(model *registry.Model, name string) (registry.Field, error) {
	f, ok := model.Field(name)
	if !ok {
		return registry.Field{}, stopf("%s has no field %q%s", model.Name, name, didYouMean(name, model.FieldNames()))
	}
	return f, nil
}

// IsRelationField is true only for forward relations to a different model.
func (m *Metadata) IsRelationField(model *registry.Model, f registry.Field) bool {
	return f.Kind.IsRelation() && !f.Reverse && f.Target != model.Name
}

func IsReverseRelation(f registry.Field) bool {
	return f.Reverse
}

// Dependencies lists the distinct models model points at through forward
// relations, in declaration order.
func (m *Metadata) Dependencies(model *registry.Model) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, f := range model.Fields {
		if !m.IsRelationField(model, f) {
			continue
		}
		if _, ok := seen[f.Target]; ok {
			continue
		}
		seen[f.Target] = struct{}{}
		out = append(out, f.Target)
	}
	return out
}
