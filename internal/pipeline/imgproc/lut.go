package imgproc

import (
	"container/list"
	"math"
	"sync"
)

// gammaLUTCache is a small LRU of gamma lookup tables. The controller moves
// on a fixed step lattice between its bounds, so only a handful of distinct
// gamma values ever occur and hits dominate after the first few commits.
type gammaLUTCache struct {
	mu       sync.Mutex
	capacity int
	items    map[int64]*list.Element
	order    *list.List
}

type lutEntry struct {
	key   int64
	table *[256]uint8
}

func newGammaLUTCache(capacity int) *gammaLUTCache {
	return &gammaLUTCache{
		capacity: capacity,
		items:    make(map[int64]*list.Element, capacity),
		order:    list.New(),
	}
}

// lutKey quantizes gamma so float noise below any plausible step size maps
// to the same table.
func lutKey(gamma float64) int64 {
	return int64(math.Round(gamma * 1e6))
}

// get returns the lookup table for gamma, building and retaining it on miss.
func (c *gammaLUTCache) get(gamma float64) *[256]uint8 {
	key := lutKey(gamma)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		return elem.Value.(*lutEntry).table
	}

	table := buildGammaTable(gamma)
	if c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*lutEntry).key)
		}
	}
	c.items[key] = c.order.PushFront(&lutEntry{key: key, table: table})
	return table
}

func (c *gammaLUTCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func buildGammaTable(gamma float64) *[256]uint8 {
	var table [256]uint8
	inv := 1.0 / gamma
	for i := 0; i < 256; i++ {
		table[i] = uint8(math.Round(math.Pow(float64(i)/255.0, inv) * 255.0))
	}
	return &table
}

var gammaLUTs = newGammaLUTCache(64)
