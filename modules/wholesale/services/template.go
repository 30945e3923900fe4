package services

import (
	"io"
	"slices"
	"strings"

	"github.com/pkg/errors"

	"github.com/iota-uz/wholesale/modules/wholesale/domain/registry"
)

// Template is an empty import file for a set of models, ordered so every
// model comes after the models it references.
type Template struct {
	Models  []string
	Headers []string
}

func (t *Template) WriteCSV(w io.Writer) error {
	return WriteTable(w, &Table{Header: t.Headers})
}

type TemplateBuilder struct {
	meta   *Metadata
	policy Policy
}

func NewTemplateBuilder(meta *Metadata, policy Policy) *TemplateBuilder {
	return &TemplateBuilder{meta: meta, policy: policy}
}

func (b *TemplateBuilder) Build(names []string) (*Template, error) {
	if len(names) == 0 {
		return nil, stopf("Select at least one model")
	}
	var models []*registry.Model
	seen := map[string]int{}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if _, dup := seen[n]; dup {
			continue
		}
		if !b.policy.ModelAllowed(n) {
			return nil, stopf("Model %s is not allowed for wholesale import", n)
		}
		m, err := b.meta.Model(n)
		if err != nil {
			return nil, err
		}
		seen[n] = len(models)
		models = append(models, m)
	}

	deps := make([][]int, len(models))
	for i, m := range models {
		for _, d := range b.meta.Dependencies(m) {
			if j, ok := seen[d]; ok {
				deps[i] = append(deps[i], j)
			}
		}
	}
	order, err := kahn(deps)
	if err != nil {
		var cyclic []string
		for i, m := range models {
			if !slices.Contains(order, i) {
				cyclic = append(cyclic, m.Name)
			}
		}
		return nil, stopf("Models %s depend on each other and cannot be ordered", strings.Join(cyclic, ", "))
	}

	t := &Template{}
	for _, i := range order {
		m := models[i]
		t.Models = append(t.Models, m.Name)
		t.Headers = append(t.Headers, b.headings(m)...)
	}
	return t, nil
}

func (b *TemplateBuilder) headings(m *registry.Model) []string {
	var out []string
	for _, f := range m.Forward() {
		if f.Name == registry.PrimaryKey {
			out = append(out, m.Name+"."+ExternalPK)
			continue
		}
		if !b.policy.FieldAllowed(m.Name, f.Name) {
			continue
		}
		if b.meta.IsRelationField(m, f) {
			out = append(out, m.Name+"."+f.Name, m.Name+"."+f.Name+ExternalSuffix)
			continue
		}
		if _, ok := categoryOf(f.Kind); ok && !f.Kind.IsRelation() {
			out = append(out, m.Name+"."+f.Name)
		}
	}
	return out
}

var errCycle = errors.New("dependency cycle")

// kahn orders the nodes so that each comes after its dependencies, always
// picking the lowest ready index. On a cycle it returns the partial order.
func kahn(deps [][]int) ([]int, error) {
	pending := make([]int, len(deps))
	dependents := make([][]int, len(deps))
	for i, ds := range deps {
		pending[i] = len(ds)
		for _, d := range ds {
			dependents[d] = append(dependents[d], i)
		}
	}
	done := make([]bool, len(deps))
	order := make([]int, 0, len(deps))
	for len(order) < len(deps) {
		next := -1
		for i := range deps {
			if !done[i] && pending[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			return order, errCycle
		}
		done[next] = true
		order = append(order, next)
		for _, d := range dependents[next] {
			pending[d]--
		}
	}
	return order, nil
}
