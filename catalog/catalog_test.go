package catalog

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestGetReturnsNilWhenUnmapped(t *testing.T) {
	c := New(nil)
	assert.Nil(t, c.Get("Adapter!IS-FQ"))
	assert.Equal(t, 0, c.Len())
}

func TestGetReturnsDescriptor(t *testing.T) {
	id := uuid.New()
	c := New([]*Descriptor{
		{SignalID: id, Key: "D7:FQ", SignalReference: "Adapter!IS-FQ", Adder: 0, Multiplier: 1},
	})

	d := c.Get("Adapter!IS-FQ")
	assert.NotNil(t, d)
	assert.Equal(t, id, d.SignalID)
	assert.Equal(t, 1, c.Len())
}

func TestNilCatalogIsSafe(t *testing.T) {
	var c *Catalog
	assert.Nil(t, c.Get("anything"))
	assert.Equal(t, 0, c.Len())
}
