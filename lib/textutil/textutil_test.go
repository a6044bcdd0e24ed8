package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	cases := []struct {
		in, out string
	}{
		{in: "  Providence Park ", out: "providencepark"},
		{in: "Estádio  Nacional", out: "estadionacional"},
		{in: "123 Main St", out: "123mainst"},
		{in: "", out: ""},
	}
	for _, c := range cases {
		require.Equal(t, c.out, NormalizeName(c.in), c.in)
	}
}

func TestSlug(t *testing.T) {
	require.Equal(t, "providence-park", Slug("Providence Park"))
	require.Equal(t, "audi-field-washington-d-c", Slug("Audi Field, Washington, D.C."))
	require.Equal(t, "estadio", Slug("  Estádio "))
}

func TestCollapseSpace(t *testing.T) {
	require.Equal(t, "Sophia Smith", CollapseSpace("\n Sophia \t Smith  "))
}
