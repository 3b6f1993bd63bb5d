package reactor

import (
	"time"

	"github.com/twnesss/maybetls/adapter"
)

var _ adapter.Timer = (*Timer)(nil)

// Timer is a cancelable deferred execution handle bound to a Loop. All
// methods must be called from the loop goroutine; expiry is delivered back
// onto the loop, so handlers never run concurrently with other work on the
// same connection.
type Timer struct {
	loop    *Loop
	expiry  time.Time
	waiters []adapter.ErrorHandler
	pending *time.Timer
	seq     uint64
}

func NewTimer(loop *Loop) *Timer {
	return &Timer{loop: loop}
}

// ExpiresAfter sets the expiry relative to now, canceling outstanding waits.
func (t *Timer) ExpiresAfter(d time.Duration) {
	t.ExpiresAt(time.Now().Add(d))
}

// ExpiresAt sets the absolute expiry, canceling outstanding waits.
func (t *Timer) ExpiresAt(expiry time.Time) {
	t.abortWaiters()
	t.expiry = expiry
}

func (t *Timer) Expiry() time.Time {
	return t.expiry
}

// AsyncWait schedules handler to run on the loop at expiry, or with
// ErrCanceled if the wait is canceled first.
func (t *Timer) AsyncWait(handler adapter.ErrorHandler) {
	t.waiters = append(t.waiters, handler)
	if t.pending != nil {
		return
	}
	seq := t.seq
	delay := time.Until(t.expiry)
	if delay < 0 {
		delay = 0
	}
	t.pending = time.AfterFunc(delay, func() {
		t.loop.Post(func() {
			t.fire(seq)
		})
	})
}

// Cancel aborts outstanding waits. Waiters observe ErrCanceled from the loop
// context.
func (t *Timer) Cancel() {
	t.abortWaiters()
}

func (t *Timer) fire(seq uint64) {
	if seq != t.seq {
		// canceled or re-armed after this expiry was scheduled
		return
	}
	t.pending = nil
	waiters := t.waiters
	t.waiters = nil
	for _, handler := range waiters {
		handler(nil)
	}
}

func (t *Timer) abortWaiters() {
	t.seq++
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
	if len(t.waiters) == 0 {
		return
	}
	waiters := t.waiters
	t.waiters = nil
	t.loop.Post(func() {
		for _, handler := range waiters {
			handler(ErrCanceled)
		}
	})
}
