// Package cache provides an in-memory TTL cache with bounded size used as the
// read-through layer in front of the subscription snapshot table.
//
// The cache is advisory: every read path must tolerate a miss and fall back to
// the snapshot or event store. Entries expire after a per-entry TTL (default
// five minutes) and the item count is bounded (default 1000). Cleanup is lazy:
// it runs on write when either five minutes of wall time have passed since the
// last sweep or the size exceeds 120% of the bound. Expired entries are
// removed first, then the entries closest to expiry until the cache is back
// under its bound.
//
// The cache is process-local, not distributed. Multiple service instances hold
// independent caches that diverge within the TTL window; the snapshot table is
// the cross-instance source of near-truth.
//
//	c := cache.New[Snapshot]()
//	c.Set("sub:"+id, snap)
//	if snap, ok := c.Get("sub:" + id); ok { ... }
package cache
