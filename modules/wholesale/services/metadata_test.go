package services

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetadata(t *testing.T) {
	t.Parallel()
	meta := testMetadata(t)

	person, err := meta.Model("Person")
	require.NoError(t, err)
	require.Equal(t, []string{"Trait"}, meta.Dependencies(person))

	alias, err := meta.Model("PersonAlias")
	require.NoError(t, err)
	f, err := meta.Field(alias, "person")
	require.NoError(t, err)
	require.True(t, meta.IsRelationField(alias, f))

	rev, err := meta.Field(person, "person_alias_set")
	require.NoError(t, err)
	require.True(t, IsReverseRelation(rev))
	require.False(t, meta.IsRelationField(person, rev))

	_, err = meta.Model("Persom")
	require.ErrorContains(t, err, "did you mean Person?")
	_, err = meta.Field(person, "nope")
	require.True(t, IsStop(err))

	require.NotEmpty(t, meta.ListModels(meta.Group()))
	require.Empty(t, meta.ListModels("other"))
}
