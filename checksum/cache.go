package checksum

import (
	"fmt"

	"golang.org/x/sync/singleflight"
)

// Cache collapses concurrent requests for the same (height|hash,
// include_transactions) fingerprint into a single in-flight computation;
// every waiter receives the same result. Built directly on
// golang.org/x/sync/singleflight, which is exactly the "fingerprint →
// shared-future handle" primitive the design notes call for.
type Cache struct {
	group singleflight.Group
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{}
}

// Fingerprint builds the cache key for a block reference plus the
// include_transactions flag.
func Fingerprint(heightOrHash string, includeTransactions bool) string {
	return fmt.Sprintf("%s|%t", heightOrHash, includeTransactions)
}

// Get runs build at most once per fingerprint among concurrent callers;
// everyone who called Get with the same fingerprint while a build was in
// flight receives that build's result.
func (c *Cache) Get(fingerprint string, build func() (interface{}, error)) (interface{}, error, bool) {
	v, err, shared := c.group.Do(fingerprint, build)
	return v, err, shared
}
