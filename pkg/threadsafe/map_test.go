package threadsafe

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMap(t *testing.T) {
	m := NewMap[int, string]()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Set(i, "node")
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, m.Len())

	value, ok := m.Get(7)
	assert.True(t, ok)
	assert.Equal(t, "node", value)

	_, ok = m.Get(50)
	assert.False(t, ok)

	visited := 0
	m.Range(func(int, string) bool {
		visited++
		return visited < 10
	})
	assert.Equal(t, 10, visited)
}
