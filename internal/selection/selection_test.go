package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsearch/internal/domain"
)

var (
	figure = domain.Region{ID: 1, PageID: 7, Label: "Figure 2", Box: domain.BoundingBox{X0: 10.4, Y0: 20.5, X1: 110.6, Y1: 220.49}}
	table  = domain.Region{ID: 2, PageID: 7, Label: "Table 1", Box: domain.BoundingBox{X0: 0, Y0: 0, X1: 50, Y1: 50}}
)

func TestSelect_Toggle(t *testing.T) {
	c := New()

	assert.True(t, c.Select(figure))
	assert.False(t, c.Select(figure))

	_, ok := c.Current()
	assert.False(t, ok)
	assert.Nil(t, c.Annotation())
}

func TestSelect_Replace(t *testing.T) {
	c := New()
	c.Select(figure)

	assert.True(t, c.Select(table))
	cur, ok := c.Current()
	require.True(t, ok)
	assert.Equal(t, table.ID, cur.ID)
}

func TestAnnotation_RoundsCorners(t *testing.T) {
	c := New()
	c.Select(figure)

	a := c.Annotation()
	require.NotNil(t, a)
	assert.Equal(t, `[Region: "Figure 2" at (10,21)-(111,220)]`, a.String())
}

func TestTake_ClearsSelection(t *testing.T) {
	c := New()
	c.Select(table)

	a := c.Take()
	require.NotNil(t, a)
	assert.Equal(t, "Table 1", a.Label)

	_, ok := c.Current()
	assert.False(t, ok)
	assert.Nil(t, c.Take())
}

func TestInvalidatePage(t *testing.T) {
	c := New()
	c.Select(figure)

	c.InvalidatePage(7)
	_, ok := c.Current()
	assert.True(t, ok, "selection on the displayed page survives")

	c.InvalidatePage(8)
	_, ok = c.Current()
	assert.False(t, ok)
}

func TestAnnotation_EscapesQuotesInLabel(t *testing.T) {
	c := New()
	c.Select(domain.Region{ID: 3, PageID: 7, Label: `Table "A"`, Box: domain.BoundingBox{X1: 5, Y1: 5}})

	assert.Equal(t, `[Region: "Table \"A\"" at (0,0)-(5,5)]`, c.Annotation().String())
}

func TestRetain(t *testing.T) {
	c := New()
	c.Select(figure)

	c.Retain([]domain.Region{figure, table})
	_, ok := c.Current()
	assert.True(t, ok)

	c.Retain([]domain.Region{table})
	_, ok = c.Current()
	assert.False(t, ok)
}
