package tts

import (
	"context"
	"sync"
	"unicode/utf8"

	"github.com/MrWong99/chica/pkg/audio"
)

// Cache defaults.
const (
	DefaultCacheSize    = 50
	DefaultCacheMaxText = 100
)

var _ Provider = (*Cache)(nil)

// CacheOption is a functional option for [NewCache].
type CacheOption func(*Cache)

// WithCacheSize sets the number of entries kept. Non-positive values are
// ignored.
func WithCacheSize(n int) CacheOption {
	return func(c *Cache) {
		if n > 0 {
			c.size = n
		}
	}
}

// WithCacheMaxText sets the rune length below which a text is cacheable.
func WithCacheMaxText(n int) CacheOption {
	return func(c *Cache) {
		if n > 0 {
			c.maxText = n
		}
	}
}

// Cache is a [Provider] decorator that remembers the audio of short phrases.
// Entries are keyed on text, voice and language; when full, the oldest
// inserted entry is evicted. Texts at or above the length limit bypass the
// cache entirely.
type Cache struct {
	next    Provider
	size    int
	maxText int

	mu      sync.Mutex
	entries map[string]audio.Clip
	order   []string
	hits    int
	misses  int
}

// NewCache wraps next with a phrase cache.
func NewCache(next Provider, opts ...CacheOption) *Cache {
	c := &Cache{
		next:    next,
		size:    DefaultCacheSize,
		maxText: DefaultCacheMaxText,
		entries: make(map[string]audio.Clip),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Synthesize returns the cached clip for short texts or delegates to the
// wrapped provider and stores the result. Errors are never cached.
func (c *Cache) Synthesize(ctx context.Context, text string, voice VoiceProfile) (audio.Clip, error) {
	if utf8.RuneCountInString(text) >= c.maxText {
		return c.next.Synthesize(ctx, text, voice)
	}

	key := text + "_" + voice.CacheKey()
	c.mu.Lock()
	clip, ok := c.entries[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()
	if ok {
		return clip, nil
	}

	clip, err := c.next.Synthesize(ctx, text, voice)
	if err != nil {
		return audio.Clip{}, err
	}
	c.store(key, clip)
	return clip, nil
}

func (c *Cache) store(key string, clip audio.Clip) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		c.entries[key] = clip
		return
	}
	for len(c.order) >= c.size {
		delete(c.entries, c.order[0])
		c.order = c.order[1:]
	}
	c.entries[key] = clip
	c.order = append(c.order, key)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns the hit and miss counts since creation.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Purge drops all entries. The app calls it when the voice is reloaded, since
// clips of the old voice would otherwise sit in the cache until evicted.
func (c *Cache) Purge() {
	c.mu.Lock()
	clear(c.entries)
	c.order = nil
	c.mu.Unlock()
}
