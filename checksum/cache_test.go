package checksum

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCache_CollapsesConcurrentRequests(t *testing.T) {
	cache := NewCache()

	var builds int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	results := make([]interface{}, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			v, err, _ := cache.Get("fp-a", func() (interface{}, error) {
				atomic.AddInt32(&builds, 1)
				return "built-once", nil
			})
			require.NoError(t, err)
			results[i] = v
		}(i)
	}

	close(start)
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&builds))
	for _, r := range results {
		require.Equal(t, "built-once", r)
	}
}
