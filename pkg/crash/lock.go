package crash

import (
	"context"
	"sync"
)

// crashLock serializes crash reports. It is re-entrant: a report that
// faults again and calls ProcessSignal with the context it was given
// acquires the lock again instead of deadlocking.
type crashLock struct {
	mu sync.Mutex

	ownerMu sync.Mutex
	owner   *lockOwner
}

type lockOwner struct {
	l     *crashLock
	depth int
}

type lockKey struct{}

// acquire takes the lock, or increases its depth if ctx already owns it,
// and returns the context of the owner and a function releasing one level.
func (l *crashLock) acquire(ctx context.Context) (context.Context, func()) {
	if o, ok := ctx.Value(lockKey{}).(*lockOwner); ok && o.l == l {
		l.ownerMu.Lock()
		if l.owner == o {
			o.depth++
			l.ownerMu.Unlock()
			return ctx, func() { l.release(o) }
		}
		l.ownerMu.Unlock()
	}

	l.mu.Lock()
	o := &lockOwner{l: l, depth: 1}
	l.ownerMu.Lock()
	l.owner = o
	l.ownerMu.Unlock()
	return context.WithValue(ctx, lockKey{}, o), func() { l.release(o) }
}

func (l *crashLock) release(o *lockOwner) {
	l.ownerMu.Lock()
	defer l.ownerMu.Unlock()
	if l.owner != o {
		return
	}
	o.depth--
	if o.depth == 0 {
		l.owner = nil
		l.mu.Unlock()
	}
}

// forceRelease releases the lock whatever its depth.
func (l *crashLock) forceRelease() {
	l.ownerMu.Lock()
	defer l.ownerMu.Unlock()
	if l.owner == nil {
		return
	}
	l.owner = nil
	l.mu.Unlock()
}
