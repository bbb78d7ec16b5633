package hostname

import (
	"time"

	"github.com/karlseguin/ccache/v2"
)

// Hostnames are attacker controlled, so the memo must stay bounded.
const memoTTL = time.Hour

// Codec memoizes successful decodes for one base domain in an LRU cache.
type Codec struct {
	baseDomain string
	cache      *ccache.Cache
}

func NewCodec(baseDomain string, maxSize int64) *Codec {
	return &Codec{
		baseDomain: baseDomain,
		cache:      ccache.New(ccache.Configure().MaxSize(maxSize).ItemsToPrune(uint32(maxSize/10 + 1))),
	}
}

func (c *Codec) Decode(hostname string) (Target, error) {
	if item := c.cache.Get(hostname); item != nil && !item.Expired() {
		return item.Value().(Target), nil
	}

	target, err := Decode(c.baseDomain, hostname)
	if err != nil {
		return Target{}, err
	}
	c.cache.Set(hostname, target, memoTTL)
	return target, nil
}

func (c *Codec) Encode(target Target) string {
	return Encode(c.baseDomain, target)
}

// Len reports the number of memoized hostnames.
func (c *Codec) Len() int {
	return c.cache.ItemCount()
}

func (c *Codec) Stop() {
	c.cache.Stop()
}
