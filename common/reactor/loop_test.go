package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoopSerializesTasks(t *testing.T) {
	t.Parallel()
	loop := New()
	go loop.Run()
	defer loop.Close()

	var order []int
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		i := i
		loop.Post(func() {
			order = append(order, i)
		})
	}
	loop.Post(func() {
		close(done)
	})
	<-done
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestLoopPostAfterClose(t *testing.T) {
	t.Parallel()
	// the drop must be deterministic, not a select race against the
	// buffered task channel
	for i := 0; i < 200; i++ {
		loop := New()
		loop.Close()
		loop.Post(func() {
			t.Error("task executed after close")
		})
		loop.Run()
	}
}

func TestTimerFires(t *testing.T) {
	t.Parallel()
	loop := New()
	go loop.Run()
	defer loop.Close()

	fired := make(chan error, 1)
	loop.Post(func() {
		timer := NewTimer(loop)
		timer.ExpiresAfter(10 * time.Millisecond)
		timer.AsyncWait(func(err error) {
			fired <- err
		})
	})
	select {
	case err := <-fired:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestTimerCancelAbortsWaiters(t *testing.T) {
	t.Parallel()
	loop := New()
	go loop.Run()
	defer loop.Close()

	fired := make(chan error, 1)
	loop.Post(func() {
		timer := NewTimer(loop)
		timer.ExpiresAfter(time.Hour)
		timer.AsyncWait(func(err error) {
			fired <- err
		})
		timer.Cancel()
	})
	select {
	case err := <-fired:
		require.ErrorIs(t, err, ErrCanceled)
	case <-time.After(time.Second):
		t.Fatal("canceled waiter was not notified")
	}
}

func TestTimerCancelAndRewaitSameExpiry(t *testing.T) {
	t.Parallel()
	loop := New()
	go loop.Run()
	defer loop.Close()

	// The quota deferral path cancels the periodic wait and re-attaches a
	// continuation at the original expiry.
	canceled := make(chan error, 1)
	resumed := make(chan error, 1)
	loop.Post(func() {
		timer := NewTimer(loop)
		timer.ExpiresAfter(20 * time.Millisecond)
		timer.AsyncWait(func(err error) {
			canceled <- err
		})
		timer.Cancel()
		timer.ExpiresAt(timer.Expiry())
		timer.AsyncWait(func(err error) {
			resumed <- err
		})
	})
	require.ErrorIs(t, <-canceled, ErrCanceled)
	select {
	case err := <-resumed:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("continuation did not fire at the original expiry")
	}
}

func TestTimerStaleFireIsNoOp(t *testing.T) {
	t.Parallel()
	loop := New()
	go loop.Run()
	defer loop.Close()

	fired := make(chan struct{}, 2)
	loop.Post(func() {
		timer := NewTimer(loop)
		timer.ExpiresAfter(5 * time.Millisecond)
		timer.AsyncWait(func(err error) {
			if err == nil {
				fired <- struct{}{}
			}
		})
		// re-arm before the first expiry; the original schedule must not
		// deliver a second completion
		timer.ExpiresAfter(15 * time.Millisecond)
		timer.AsyncWait(func(err error) {
			if err == nil {
				fired <- struct{}{}
			}
		})
	})
	<-fired
	select {
	case <-fired:
		t.Fatal("stale expiry delivered a completion")
	case <-time.After(100 * time.Millisecond):
	}
}
