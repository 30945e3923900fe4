package record

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNameKey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		a, b  string
		equal bool
	}{
		{"Jane DOE", "jane doe", true},
		{"ÉCOLE", "école", true},
		{"Brave", "Brave ", false},
		// lower() keeps ß, so it must not match its upper-case spelling.
		{"STRASSE", "straße", false},
	}
	for _, tc := range cases {
		t.Run(tc.a+"/"+tc.b, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.equal, NameKey(tc.a) == NameKey(tc.b))
		})
	}
}
