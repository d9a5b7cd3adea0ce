package action

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextPutGet(t *testing.T) {
	ec := NewContext()
	_, ok := ec.Get("user")
	assert.False(t, ok)

	ec.Put("user", "ada")
	v, ok := ec.Get("user")
	require.True(t, ok)
	assert.Equal(t, "ada", v)
	assert.True(t, ec.Contains("user"))

	ec.Put("user", "grace")
	v, _ = ec.Get("user")
	assert.Equal(t, "grace", v)

	ec.Remove("user")
	assert.False(t, ec.Contains("user"))
}

func TestContextKeysSorted(t *testing.T) {
	ec := NewContext()
	ec.Put("orders", 3)
	ec.Put("user", "ada")
	ec.Put("amount", 9.5)
	assert.Equal(t, []string{"amount", "orders", "user"}, ec.Keys())
	assert.Equal(t, 3, ec.Len())
}

func TestContextSnapshotIsIsolated(t *testing.T) {
	ec := NewContext()
	ec.Put("user", "ada")
	snap := ec.Snapshot()
	snap["user"] = "mallory"
	snap["extra"] = true

	v, _ := ec.Get("user")
	assert.Equal(t, "ada", v)
	assert.False(t, ec.Contains("extra"))
}

func TestContextTypedValue(t *testing.T) {
	ec := NewContext()
	ec.Put("count", int64(7))

	n, ok, err := Value[int64](ec, "count")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(7), n)

	_, ok, err = Value[int64](ec, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = Value[string](ec, "count")
	require.True(t, ok)
	var te *TypeError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "count", te.Key)
	assert.Equal(t, "string", te.Want)
	assert.Equal(t, "int64", te.Got)
	assert.Equal(t, CodeContextType, te.Code())
	assert.Contains(t, err.Error(), `context key "count" holds int64, not string`)
}

func TestContextConcurrentAccess(t *testing.T) {
	ec := NewContext()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", n%4)
			ec.Put(key, n)
			ec.Get(key)
			ec.Keys()
			ec.Snapshot()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 4, ec.Len())
}
