package debounce

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	UserCapacity = 5000
	UserTTL      = time.Minute

	// SweepKey is the single key guarding the unmute sweep against overlapping runs.
	SweepKey = "unmute"
	SweepTTL = time.Second
)

// Filter suppresses repeated work for the same key within a fixed window. When the cache
// is full the oldest key is evicted.
type Filter struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, struct{}]
}

func NewFilter(capacity int, ttl time.Duration) *Filter {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = UserTTL
	}

	return &Filter{
		cache: expirable.NewLRU[string, struct{}](capacity, nil, ttl),
	}
}

func NewUserFilter() *Filter {
	return NewFilter(UserCapacity, UserTTL)
}

func NewSweepFilter() *Filter {
	return NewFilter(1, SweepTTL)
}

// ShouldDebounce reports whether key was seen within the window. A key that was not seen
// is recorded and false is returned.
func (f *Filter) ShouldDebounce(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.cache.Peek(key); ok {
		return true
	}
	f.cache.Add(key, struct{}{})
	return false
}

func (f *Filter) Len() int {
	return f.cache.Len()
}
