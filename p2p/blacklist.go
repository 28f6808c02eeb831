package p2p

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/ordishs/gocore"
)

const (
	// DefaultExpiry is how long a temporary blacklist entry lives.
	DefaultExpiry = 24 * time.Hour
	// PurgeWindow is the escalation window for transient "reconnect" entries.
	PurgeWindow = 30 * time.Second
	// permanentAttemptThreshold escalates a peer to permanent status after
	// this many attempts inside PurgeWindow.
	permanentAttemptThreshold = 3
	// capacityCircuitBreaker floods-drops newly-connecting peers once the
	// blacklist grows past this size.
	capacityCircuitBreaker = 250
)

// Reason is why a peer or address was blacklisted.
type Reason string

const (
	ReasonBadChecksum    Reason = "bad_checksum"
	ReasonBadSignature   Reason = "bad_signature"
	ReasonBadBehavior    Reason = "bad_behavior"
	ReasonInvalidChain   Reason = "invalid_chain"
	ReasonAuthFailed     Reason = "auth_failed"
	ReasonReconnect      Reason = "reconnect"
)

// permanent reports whether a reason always blacklists permanently,
// regardless of attempt count, per spec.md §4.5.
func (r Reason) permanent() bool {
	switch r {
	case ReasonBadChecksum, ReasonBadSignature, ReasonBadBehavior, ReasonInvalidChain, ReasonAuthFailed:
		return true
	default:
		return false
	}
}

type entry struct {
	permanent bool
	attempts  int
	windowAt  time.Time
}

// Blacklist tracks peer ids and host addresses under temporary or
// permanent exclusion, grounded on spec.md §4.5's blacklist policy:
// transient "reconnect" reasons escalate to permanent after 3 attempts
// inside a 30s window; every other "permanent" reason blacklists
// immediately; a capacity circuit-breaker flood-drops once the set grows
// past 250 entries.
type Blacklist struct {
	mu       sync.Mutex
	cache    *ttlcache.Cache[string, *entry]
	capacity int
}

// NewBlacklist builds a Blacklist backed by a TTL cache so temporary
// entries self-expire without an explicit sweep goroutine doing the
// eviction bookkeeping by hand.
func NewBlacklist() *Blacklist {
	cache := ttlcache.New[string, *entry](
		ttlcache.WithTTL[string, *entry](DefaultExpiry),
	)
	go cache.Start()

	return &Blacklist{cache: cache, capacity: defaultCapacityFromConfig()}
}

// Add blacklists key (a peer id or host address) for reason. Returns
// whether the entry is now permanent.
func (b *Blacklist) Add(key string, reason Reason) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()

	if reason.permanent() {
		b.cache.Set(key, &entry{permanent: true}, ttlcache.NoTTL)
		return true
	}

	item := b.cache.Get(key)
	e := &entry{}
	if item != nil {
		e = item.Value()
	}

	if e.permanent {
		return true
	}

	if now.Sub(e.windowAt) > PurgeWindow {
		e.attempts = 0
		e.windowAt = now
	}
	e.attempts++

	if e.attempts >= permanentAttemptThreshold {
		e.permanent = true
		b.cache.Set(key, e, ttlcache.NoTTL)
		return true
	}

	b.cache.Set(key, e, PurgeWindow)
	return false
}

// IsBlacklisted reports whether key currently has an active entry.
func (b *Blacklist) IsBlacklisted(key string) bool {
	item := b.cache.Get(key)
	return item != nil
}

// AtCapacity reports whether the blacklist has grown past the
// capacity circuit-breaker threshold; new connections should be
// flood-dropped without further processing while this holds.
func (b *Blacklist) AtCapacity() bool {
	return b.cache.Len() > b.capacity
}

// defaultCapacityFromConfig allows operators to override the breaker
// threshold, matching the teacher's config-driven-tunable convention.
func defaultCapacityFromConfig() int {
	capacity, _ := gocore.Config().GetInt("p2p_blacklist_capacity", capacityCircuitBreaker)
	return capacity
}
