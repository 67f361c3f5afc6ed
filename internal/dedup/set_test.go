package dedup

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet_SeenAfterMark(t *testing.T) {
	s := New(0)
	for _, id := range []string{"E1", "Ev0A1B2C3", ""} {
		assert.False(t, s.Seen(id))
		s.Mark(id)
		assert.True(t, s.Seen(id))
	}
}

func TestSet_CheckAndMark(t *testing.T) {
	s := New(10)
	assert.False(t, s.CheckAndMark("E1"), "first delivery is not a duplicate")
	assert.True(t, s.CheckAndMark("E1"), "replay is a duplicate")
	assert.Equal(t, 1, s.Len())
}

func TestSet_ClearsWholesalePastCapacity(t *testing.T) {
	s := New(DefaultCapacity)
	for i := 0; i < DefaultCapacity; i++ {
		s.Mark(fmt.Sprintf("E%d", i))
	}
	require.Equal(t, DefaultCapacity, s.Len())
	require.True(t, s.Seen("E0"))

	s.Mark("E-overflow")

	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 1, s.Resets())
	assert.False(t, s.Seen("E0"), "ids marked before the reset are unseen again")
	assert.False(t, s.CheckAndMark("E0"), "a replay after reset is processed again")
}

func TestSet_ConcurrentCheckAndMark(t *testing.T) {
	s := New(0)
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fresh int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !s.CheckAndMark("E1") {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, fresh, "exactly one caller wins the mark")
}
