package relations

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogValidates(t *testing.T) {
	c := Default()
	require.NotEmpty(t, c.Relations)
	for _, r := range c.Relations {
		require.NoError(t, r.Validate(), "relation %s", r.ID)
	}
	rel, ok := c.Get("adj_mod")
	require.True(t, ok)
	require.Equal(t, 2, rel.HeadIndex)
	_, ok = c.Get("missing")
	require.False(t, ok)
}

func TestValidateRejectsBadRelations(t *testing.T) {
	cases := []Relation{
		{},
		{ID: "w"},                             // window relation without window
		{ID: "p", Pattern: "[", HeadIndex: 1}, // bad pattern
		{ID: "x", Pattern: "[tag=NN]", HeadIndex: 1, CollocateIndex: 1},
		{ID: "y", Pattern: "[tag=NN] [tag=NN]", HeadIndex: 1, CollocateIndex: 3},
		{ID: "z", Pattern: "[tag=NN] [tag=NN]", HeadIndex: 0, CollocateIndex: 2},
	}
	for i, r := range cases {
		require.Error(t, r.Validate(), "case %d", i)
	}
}

func TestLoadCatalogYAML(t *testing.T) {
	doc := `relations:
  - id: adj_mod
    name: adjective modifier
    head_pos: noun
    collocate_pos: adj
    pattern: "[tag=JJ] [tag=NN]"
    head_index: 2
    collocate_index: 1
    window: 1
    dual: true
  - id: near
    name: nearby
    window: 5
`
	path := filepath.Join(t.TempDir(), "relations.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	require.Len(t, c.Relations, 2)

	rel, ok := c.Get("adj_mod")
	require.True(t, ok)
	require.True(t, rel.Dual)
	require.Equal(t, "[tag=JJ] [tag=NN]", rel.Pattern)

	near, ok := c.Get("near")
	require.True(t, ok)
	require.True(t, near.WindowBased())
}

func TestDuplicateIDRejected(t *testing.T) {
	_, err := NewCatalog([]Relation{
		{ID: "a", Window: 1},
		{ID: "a", Window: 2},
	})
	require.Error(t, err)
}
