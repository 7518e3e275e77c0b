package contact

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlockList_IsDirectional(t *testing.T) {
	b := NewBlockList()

	b.Set("bob", "alice", true)

	assert.True(t, b.Blocked("bob", "alice"))
	assert.False(t, b.Blocked("alice", "bob"))

	b.Set("bob", "alice", false)
	assert.False(t, b.Blocked("bob", "alice"))
	assert.Empty(t, b.blocks)
}

func TestBlockList_ConcurrentReadersAndWriters(t *testing.T) {
	b := NewBlockList()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				b.Set("bob", "alice", j%2 == 0)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = b.Blocked("bob", "alice")
			}
		}()
	}
	wg.Wait()
}
