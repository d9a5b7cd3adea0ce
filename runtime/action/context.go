package action

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Context is the shared typed key-value store a plan run threads through
// its actions. Producers publish results under their context key and later
// actions consume them through fromContext bindings. Safe for concurrent
// use.
type Context struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewContext returns an empty execution context.
func NewContext() *Context {
	return &Context{values: make(map[string]any)}
}

// Put stores value under key, replacing any previous value.
func (c *Context) Put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// Get returns the value stored under key.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// Contains reports whether key is present.
func (c *Context) Contains(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.values[key]
	return ok
}

// Remove deletes key from the context.
func (c *Context) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
}

// Keys returns the stored keys in sorted order.
func (c *Context) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of stored keys.
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.values)
}

// Snapshot returns a shallow copy of the stored values.
func (c *Context) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := make(map[string]any, len(c.values))
	for k, v := range c.values {
		snap[k] = v
	}
	return snap
}

// Value retrieves key and asserts its type. The boolean reports presence;
// a present value of a different type returns a TypeError.
func Value[T any](c *Context, key string) (T, bool, error) {
	var zero T
	v, ok := c.Get(key)
	if !ok {
		return zero, false, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, true, &TypeError{
			Key:  key,
			Want: reflect.TypeFor[T]().String(),
			Got:  fmt.Sprintf("%T", v),
		}
	}
	return t, true, nil
}
