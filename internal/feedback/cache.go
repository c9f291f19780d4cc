package feedback

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

type translation struct {
	primary, secondary string
}

// CachedTranslator memoizes another translator's results in a bounded LRU.
type CachedTranslator struct {
	inner Translator
	cache *lru.Cache[string, translation]
}

// NewCachedTranslator wraps inner with an LRU holding up to size entries.
func NewCachedTranslator(inner Translator, size int) (*CachedTranslator, error) {
	cache, err := lru.New[string, translation](size)
	if err != nil {
		return nil, err
	}
	return &CachedTranslator{inner: inner, cache: cache}, nil
}

func (c *CachedTranslator) Translate(id string) (string, string) {
	if t, ok := c.cache.Get(id); ok {
		return t.primary, t.secondary
	}
	p, s := c.inner.Translate(id)
	c.cache.Add(id, translation{p, s})
	return p, s
}
