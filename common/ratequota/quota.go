// Package ratequota tracks bytes delivered against a per-window byte budget.
package ratequota

import (
	"math"

	"github.com/sagernet/sing/common/atomic"
)

// Quota is a per-window byte budget. The quota value may be updated from any
// goroutine; the usage counter must only be touched from the reactor loop
// driving the connection.
type Quota struct {
	quota atomic.TypedValue[uint64]
	used  uint64
}

// SetQuota installs a new budget. A quota of zero disables limiting.
func (q *Quota) SetQuota(bytesPerWindow uint64) {
	q.quota.Store(bytesPerWindow)
}

func (q *Quota) Value() uint64 {
	return q.quota.Load()
}

// RecordUsage accounts n bytes against the current window.
func (q *Quota) RecordUsage(n int) {
	if n > 0 {
		q.used += uint64(n)
	}
}

// Remaining reports the budget left in the current window. Zero means
// exhausted; an unconfigured quota never exhausts.
func (q *Quota) Remaining() uint64 {
	quota := q.quota.Load()
	if quota == 0 {
		return math.MaxUint64
	}
	if q.used >= quota {
		return 0
	}
	return quota - q.used
}

// Refresh starts a new window. Unused allowance does not carry forward.
func (q *Quota) Refresh() {
	q.used = 0
}
