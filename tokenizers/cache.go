package tokenizers

import (
	"encoding/binary"

	"github.com/VictoriaMetrics/fastcache"
)

// Cached wraps a Tokenizer with a fastcache-backed encode cache, so the same
// sentence encoded across paradigms (source text and annotation targets share
// most of their tokens with the raw sentence) or across runs is only pushed
// through the subword model once. Decode and special-token lookups pass
// through.
type Cached struct {
	inner Tokenizer
	cache *fastcache.Cache
}

// NewCached creates an encode cache of at most maxBytes (fastcache rounds
// small values up to its 32MB minimum).
func NewCached(inner Tokenizer, maxBytes int) *Cached {
	return &Cached{
		inner: inner,
		cache: fastcache.New(maxBytes),
	}
}

var _ Tokenizer = &Cached{}

// Encode returns the cached id sequence for text, encoding on miss.
func (c *Cached) Encode(text string) []int {
	key := []byte(text)
	if buf := c.cache.Get(nil, key); len(buf) > 0 || c.cache.Has(key) {
		return decodeIDs(buf)
	}
	ids := c.inner.Encode(text)
	c.cache.Set(key, encodeIDs(ids))
	return ids
}

func (c *Cached) Decode(ids []int) string {
	return c.inner.Decode(ids)
}

func (c *Cached) SpecialTokenID(token SpecialToken) (int, error) {
	return c.inner.SpecialTokenID(token)
}

// encodeIDs packs ids as little-endian uint32, the fastcache value format.
func encodeIDs(ids []int) []byte {
	buf := make([]byte, 4*len(ids))
	for i, id := range ids {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(id))
	}
	return buf
}

func decodeIDs(buf []byte) []int {
	ids := make([]int, len(buf)/4)
	for i := range ids {
		ids[i] = int(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return ids
}
