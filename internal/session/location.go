package session

import "sync"

// LocationProvider 提供最近一次已知位置；尚无定位时 ok 为 false。
type LocationProvider interface {
	Latest() (loc Location, ok bool)
}

// LatestLocation 是并发安全的位置缓存，由定位回调更新、由记录器读取。
type LatestLocation struct {
	mu  sync.RWMutex
	loc Location
	set bool
}

// Update 记录新的位置。
func (l *LatestLocation) Update(loc Location) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loc = loc
	l.set = true
}

// Latest 实现 LocationProvider。
func (l *LatestLocation) Latest() (Location, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loc, l.set
}
