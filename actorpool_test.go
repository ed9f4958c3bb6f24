package titanircd

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMailboxPreservesEnqueueOrder(t *testing.T) {
	p := NewActorPool(4)
	m := newMailbox(p)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		i := i
		m.enqueue(func() {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestSingleActorRunsTasksSequentially(t *testing.T) {
	a := newSingleActor(8)

	var mu sync.Mutex
	count := 0
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		a.enqueue(func() {
			defer wg.Done()
			mu.Lock()
			count++
			mu.Unlock()
		})
	}

	wg.Wait()
	assert.Equal(t, 20, count)
}
