// Package ident reconciles domain record identifiers with the identifier
// space the engine accepts: unsigned integers or UUID strings. Derivation is
// deterministic, so the per-session cache is an optimization only; a miss
// simply re-derives the same engine identifier.
package ident

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vormdb/vorm/internal/engine"
)

var canonicalUUID = regexp.MustCompile(
	`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`,
)

// EngineID converts a domain identifier to its engine form:
// UUIDs and canonical UUID strings pass through, non-negative integers pass
// through, and anything else derives a name-based UUID (version 5, DNS
// namespace) from its string form. Same input, same output.
func EngineID(v any) engine.PointID {
	switch id := v.(type) {
	case engine.PointID:
		return id
	case uuid.UUID:
		return engine.TextID(id.String())
	case string:
		if canonicalUUID.MatchString(id) {
			return engine.TextID(id)
		}
		return derive(id)
	case int:
		if id >= 0 {
			return engine.NumID(uint64(id))
		}
	case int32:
		if id >= 0 {
			return engine.NumID(uint64(id))
		}
	case int64:
		if id >= 0 {
			return engine.NumID(uint64(id))
		}
	case uint:
		return engine.NumID(uint64(id))
	case uint32:
		return engine.NumID(uint64(id))
	case uint64:
		return engine.NumID(id)
	}
	return derive(fmt.Sprint(v))
}

func derive(s string) engine.PointID {
	return engine.TextID(uuid.NewSHA1(uuid.NameSpaceDNS, []byte(s)).String())
}

// NewDomainID generates a fresh random identifier for records inserted
// without a primary-key value.
func NewDomainID() string { return uuid.NewString() }

// DefaultCacheSize bounds the per-session identifier cache.
const DefaultCacheSize = 4096

type cacheKey struct {
	collection string
	domainID   string
}

// keyFor qualifies the rendered id with its dynamic type so values that
// print alike, such as int 42 and string "42", stay distinct entries.
func keyFor(collection string, domainID any) cacheKey {
	return cacheKey{collection, fmt.Sprintf("%T %v", domainID, domainID)}
}

// Cache is a size-bounded (collection, domain id) → engine id mapping.
// Because derivation is deterministic, eviction never affects correctness.
type Cache struct {
	entries *lru.Cache[cacheKey, engine.PointID]
}

// NewCache creates a cache holding up to size mappings; size <= 0 uses
// DefaultCacheSize.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, _ := lru.New[cacheKey, engine.PointID](size)
	return &Cache{entries: entries}
}

// Remember records the mapping for a freshly inserted record.
func (c *Cache) Remember(collection string, domainID any, id engine.PointID) {
	c.entries.Add(keyFor(collection, domainID), id)
}

// Resolve returns the cached engine identifier or re-derives it on a miss.
func (c *Cache) Resolve(collection string, domainID any) engine.PointID {
	if id, ok := c.entries.Get(keyFor(collection, domainID)); ok {
		return id
	}
	return EngineID(domainID)
}

// Len reports the number of cached mappings.
func (c *Cache) Len() int { return c.entries.Len() }
