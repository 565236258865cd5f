// pkg/utils/id_generator_test.go
package utils

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderIDFormat(t *testing.T) {
	g := NewIDGenerator()
	at := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)

	id := g.OrderID(PrefixRechargeOrder, at)
	require.True(t, strings.HasPrefix(id, "RO"))
	assert.Len(t, id, 2+26)

	parsed, err := ulid.Parse(strings.TrimPrefix(id, "RO"))
	require.NoError(t, err)
	assert.Equal(t, ulid.Timestamp(at), parsed.Time())
}

func TestOrderIDMonotonicAndUnique(t *testing.T) {
	g := NewIDGenerator()
	at := time.Now()

	const n = 500
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]struct{}, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := g.OrderID(PrefixVIPOrder, at)
			mu.Lock()
			seen[id] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, n)

	a := g.OrderID(PrefixVIPOrder, at)
	b := g.OrderID(PrefixVIPOrder, at)
	assert.Less(t, a, b)
}

func TestEventID(t *testing.T) {
	_, err := uuid.Parse(EventID())
	assert.NoError(t, err)
	assert.NotEqual(t, EventID(), EventID())
}
