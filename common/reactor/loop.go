// Package reactor provides the serialized execution context that drives all
// completion handlers for a connection. One goroutine runs the loop; posting
// is safe from any goroutine.
package reactor

import (
	"sync"

	C "github.com/twnesss/maybetls/constant"

	E "github.com/sagernet/sing/common/exceptions"
)

// ErrCanceled is delivered to timer waiters whose wait was canceled before
// expiry.
var ErrCanceled = E.New("reactor: operation canceled")

var ErrClosed = E.New("reactor: loop closed")

type Loop struct {
	tasks     chan func()
	done      chan struct{}
	closeOnce sync.Once
}

func New() *Loop {
	return &Loop{
		tasks: make(chan func(), C.TaskBacklog),
		done:  make(chan struct{}),
	}
}

// Post queues task for execution on the loop goroutine. Tasks posted after
// Close are dropped.
func (l *Loop) Post(task func()) {
	// a two-case select picks at random when both are ready, so the closed
	// check must come first
	select {
	case <-l.done:
		return
	default:
	}
	select {
	case <-l.done:
	case l.tasks <- task:
	}
}

// Run executes tasks until Close is called. It is the single execution
// context for every adaptor bound to this loop.
func (l *Loop) Run() {
	for {
		select {
		case task := <-l.tasks:
			task()
		case <-l.done:
			// drain tasks already queued so completions are not lost
			for {
				select {
				case task := <-l.tasks:
					task()
				default:
					return
				}
			}
		}
	}
}

func (l *Loop) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
	})
	return nil
}
