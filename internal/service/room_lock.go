package service

import "sync"

// roomLocks serialises work per room id. Entries are dropped once no goroutine
// holds or waits for them.
type roomLocks struct {
	mu      sync.Mutex
	entries map[uint]*roomLockEntry
}

type roomLockEntry struct {
	mu   sync.Mutex
	refs int
}

func newRoomLocks() *roomLocks {
	return &roomLocks{entries: make(map[uint]*roomLockEntry)}
}

// Lock acquires the lock of the room and returns its release function.
func (l *roomLocks) Lock(roomID uint) func() {
	l.mu.Lock()
	entry, ok := l.entries[roomID]
	if !ok {
		entry = &roomLockEntry{}
		l.entries[roomID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.mu.Unlock()

			l.mu.Lock()
			entry.refs--
			if entry.refs == 0 {
				delete(l.entries, roomID)
			}
			l.mu.Unlock()
		})
	}
}

func (l *roomLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
