package imgproc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGammaLUTCache_HitReturnsSameTable(t *testing.T) {
	c := newGammaLUTCache(8)
	a := c.get(1.15)
	b := c.get(1.15)
	assert.Same(t, a, b)
	assert.Equal(t, 1, c.len())
}

func TestGammaLUTCache_CachedMatchesFresh(t *testing.T) {
	c := newGammaLUTCache(8)
	got := c.get(1.3)
	want := buildGammaTable(1.3)
	assert.Equal(t, *want, *got)
}

func TestGammaLUTCache_EvictionBoundsSize(t *testing.T) {
	c := newGammaLUTCache(4)
	for i := 0; i < 20; i++ {
		c.get(0.70 + float64(i)*0.05)
	}
	assert.Equal(t, 4, c.len())
}

func TestGammaLUTCache_QuantizationCollapsesNoise(t *testing.T) {
	c := newGammaLUTCache(8)
	a := c.get(1.15)
	b := c.get(1.15 + 1e-9)
	assert.Same(t, a, b)
}

func TestGammaLUTCache_ConcurrentAccess(t *testing.T) {
	c := newGammaLUTCache(8)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				g := 0.70 + float64((i+j)%19)*0.05
				assert.NotNil(t, c.get(g))
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.len(), 8)
}
