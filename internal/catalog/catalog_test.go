package catalog

import (
	"testing"

	"github.com/ariefcatur/go-pcparts-orders/internal/compat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Get(t *testing.T) {
	c := Default()

	p, err := c.Get("P001")
	require.NoError(t, err)
	assert.Equal(t, "199.99", p.Price.StringFixed(2))
	assert.Equal(t, compat.PartDescriptor{Name: "cpu", Socket: "AM4"}, p.Part())

	_, err = c.Get("P999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList_FiltersByCategory(t *testing.T) {
	c := Default()

	cpus := c.List("CPU")
	require.Len(t, cpus, 2)
	assert.Equal(t, "P001", cpus[0].ID)
	assert.Equal(t, "P004", cpus[1].ID)

	assert.Len(t, c.List(""), 4)
	assert.Empty(t, c.List("psu"))
}

func TestSeedStock_CoversCatalog(t *testing.T) {
	c := Default()
	for id := range SeedStock() {
		_, err := c.Get(id)
		assert.NoError(t, err, id)
	}
}
