// Package instrument caches the tradable instrument universe.
//
// Lookups are served from memory. A durable snapshot (file or Redis) lets a
// restarted process skip the origin fetch while the snapshot is within its
// TTL, and keeps the cache usable when the origin is unreachable.
package instrument
