// Package cache implements the on-disk TTL file cache that backs survey
// sessions. A cache root holds arbitrary data files plus two reserved control
// files: a JSON snapshot of every tracked entry and a plain-text session
// counter. The snapshot is rewritten wholesale after each mutating batch and
// rebuilt from a directory scan when it is missing or unreadable, so a crash
// between a data write and an index save is reconciled on the next Open.
// Callers hold one *Cache per directory; every public method serialises on a
// single mutex. Two processes sharing one directory are not coordinated.
package cache
