package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	p, err := Parse([]byte(`
version: 1
allowed_models: [Person, Incident]
denied_fields:
  - created_at
  - Person.notes
`))
	require.NoError(t, err)

	require.True(t, p.ModelAllowed("Person"))
	require.False(t, p.ModelAllowed("Grouping"))

	require.False(t, p.FieldAllowed("Person", "notes"))
	require.True(t, p.FieldAllowed("Incident", "notes"))
	require.False(t, p.FieldAllowed("Incident", "created_at"))
	require.Equal(t, []string{"Incident", "Person"}, p.AllowedModels())
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"version":     "version: 2\nallowed_models: [Person]\n",
		"empty model": "version: 1\nallowed_models: ['']\n",
		"bad denied":  "version: 1\ndenied_fields: ['Person.']\n",
		"nested":      "version: 1\ndenied_fields: ['Person.a.b']\n",
		"yaml":        "version: [",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(raw))
			require.Error(t, err)
		})
	}
}

func TestLoad_NotFound(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, ErrPolicyNotFound)
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\nallowed_models: [Trait]\n"), 0o644))

	p, err := Load(path)
	require.NoError(t, err)
	require.True(t, p.ModelAllowed("Trait"))
}

func TestLoad_RepoPolicy(t *testing.T) {
	p, err := Load(ResolvePath(DefaultPath))
	require.NoError(t, err)
	require.True(t, p.ModelAllowed("Person"))
	require.False(t, p.FieldAllowed("Grouping", "updated_at"))
}
