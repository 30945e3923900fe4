package services

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/wholesale/modules/wholesale/catalog"
	"github.com/iota-uz/wholesale/modules/wholesale/domain/policy"
	"github.com/iota-uz/wholesale/modules/wholesale/domain/registry"
)

func testTemplates(t *testing.T) *TemplateBuilder {
	t.Helper()
	reg, err := catalog.Registry()
	require.NoError(t, err)
	return NewTemplateBuilder(NewMetadata(reg, catalog.GroupCore), testPolicy(t, reg))
}

func TestTemplate_OrdersByDependency(t *testing.T) {
	t.Parallel()
	b := testTemplates(t)

	tpl, err := b.Build([]string{"PersonAlias", "Trait", "Person"})
	require.NoError(t, err)
	require.Equal(t, []string{"Trait", "Person", "PersonAlias"}, tpl.Models)
	require.Equal(t, []string{
		"Trait.id__external", "Trait.name",
		"Person.id__external", "Person.name", "Person.for_admin_only", "Person.is_law_enforcement",
		"Person.birth_date", "Person.notes", "Person.traits", "Person.traits__external",
		"PersonAlias.id__external", "PersonAlias.name", "PersonAlias.person", "PersonAlias.person__external",
	}, tpl.Headers)

	var buf bytes.Buffer
	require.NoError(t, tpl.WriteCSV(&buf))
	require.True(t, strings.HasPrefix(buf.String(), "Trait.id__external,Trait.name,Person.id__external,"))
	require.True(t, bytes.HasSuffix(buf.Bytes(), []byte("PersonAlias.person__external\r\n")))
}

func TestTemplate_Idempotent(t *testing.T) {
	t.Parallel()
	b := testTemplates(t)
	models := []string{"ContentPerson", "Content", "Person", "ContentType", "Incident"}

	first, err := b.Build(models)
	require.NoError(t, err)
	second, err := b.Build(models)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, []string{"Person", "ContentType", "Incident", "Content", "ContentPerson"}, first.Models)
}

func TestTemplate_OmitsDeniedAndUnsupportedFields(t *testing.T) {
	t.Parallel()
	b := testTemplates(t)

	tpl, err := b.Build([]string{"Grouping"})
	require.NoError(t, err)
	require.NotContains(t, tpl.Headers, "Grouping.updated_at")
	require.NotContains(t, tpl.Headers, "Grouping.id")
	require.NotContains(t, tpl.Headers, "Grouping.person_grouping_set")
	require.Contains(t, tpl.Headers, "Grouping.counties__external")
}

func TestTemplate_HardStops(t *testing.T) {
	t.Parallel()
	b := testTemplates(t)

	_, err := b.Build(nil)
	require.True(t, IsStop(err))

	_, err = b.Build([]string{"Person", "Nope"})
	require.ErrorContains(t, err, "Model Nope is not allowed")
}

func TestTemplate_CycleHardStops(t *testing.T) {
	t.Parallel()

	reg, err := registry.New(
		registry.Model{Name: "A", Group: "g", Table: "a", Fields: []registry.Field{
			{Name: "id", Kind: registry.KindAuto},
			{Name: "b", Kind: registry.KindForeignKey, Target: "B", RelatedName: "as"},
		}},
		registry.Model{Name: "B", Group: "g", Table: "b", Fields: []registry.Field{
			{Name: "id", Kind: registry.KindAuto},
			{Name: "a", Kind: registry.KindForeignKey, Target: "A", RelatedName: "bs"},
		}},
		registry.Model{Name: "C", Group: "g", Table: "c", Fields: []registry.Field{
			{Name: "id", Kind: registry.KindAuto},
		}},
	)
	require.NoError(t, err)
	pol, err := policy.New([]string{"A", "B", "C"}, nil)
	require.NoError(t, err)
	b := NewTemplateBuilder(NewMetadata(reg, "g"), pol)

	_, err = b.Build([]string{"A", "C", "B"})
	require.True(t, IsStop(err))
	require.ErrorContains(t, err, "Models A, B depend on each other")
}

func TestKahn_StableOrder(t *testing.T) {
	t.Parallel()

	order, err := kahn([][]int{{2}, {}, {1}, {}})
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 0, 3}, order)
}
