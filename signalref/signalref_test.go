package signalref

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScalarCacheIsStable(t *testing.T) {
	c := New("Adapter")

	first := c.Scalar(Frequency)
	second := c.Scalar(Frequency)

	require.Equal(t, first, second)
	assert.Equal(t, "Adapter!IS-FQ", first)
}

func TestIndexedCacheDistinctAndStable(t *testing.T) {
	c := New("Adapter")

	refs := make([]string, 3)
	for i := 0; i < 3; i++ {
		refs[i] = c.Indexed(Angle, i, 3)
	}

	assert.ElementsMatch(t, []string{"Adapter!IS-PA1", "Adapter!IS-PA2", "Adapter!IS-PA3"}, refs)

	for i := 0; i < 3; i++ {
		assert.Equal(t, refs[i], c.Indexed(Angle, i, 3))
	}
}

func TestIndexedCacheInvalidatesOnCountChange(t *testing.T) {
	c := New("Adapter")

	firstGen := c.Indexed(Magnitude, 0, 2)
	require.Equal(t, "Adapter!IS-PM1", firstGen)

	// Count changed from 2 to 3: the whole array is discarded and
	// resynthesized, even though index 0 is the same ordinal.
	afterResize := c.Indexed(Magnitude, 0, 3)
	assert.Equal(t, "Adapter!IS-PM1", afterResize)
	assert.Equal(t, "Adapter!IS-PM3", c.Indexed(Magnitude, 2, 3))
}
