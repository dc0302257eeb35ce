package handshake

import (
	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/jxsl13/gamenet/crypt"
	"github.com/jxsl13/gamenet/network"
)

type tokenUse struct {
	endpoint       network.Endpoint
	expirationTime uint64
}

// TokenCache remembers the signatures of redeemed connect tokens.
// At capacity the least recently added or looked up signature is forgotten.
type TokenCache struct {
	lru *simplelru.LRU[crypt.Signature, tokenUse]
}

func NewTokenCache(capacity int) *TokenCache {
	lru, err := simplelru.NewLRU[crypt.Signature, tokenUse](capacity, nil)
	if err != nil {
		// only fails for a capacity <= 0
		panic(err)
	}
	return &TokenCache{lru: lru}
}

// Add records a redeemed token. It reports whether an older entry was evicted.
func (c *TokenCache) Add(sig crypt.Signature, ep network.Endpoint, expiration uint64) bool {
	return c.lru.Add(sig, tokenUse{endpoint: ep, expirationTime: expiration})
}

// Find reports whether sig was redeemed and by whom. A hit refreshes the entry.
func (c *TokenCache) Find(sig crypt.Signature) (network.Endpoint, bool) {
	u, ok := c.lru.Get(sig)
	return u.endpoint, ok
}

// Contains is like Find without refreshing the entry.
func (c *TokenCache) Contains(sig crypt.Signature) bool {
	return c.lru.Contains(sig)
}

// RemoveExpired forgets every token that expired at now.
// An expired token is rejected by its expiration time anyway.
func (c *TokenCache) RemoveExpired(now uint64) int {
	removed := 0
	for _, sig := range c.lru.Keys() {
		u, ok := c.lru.Peek(sig)
		if ok && u.expirationTime <= now {
			c.lru.Remove(sig)
			removed++
		}
	}
	return removed
}

func (c *TokenCache) Len() int {
	return c.lru.Len()
}

func (c *TokenCache) Clear() {
	c.lru.Purge()
}
