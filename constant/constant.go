package constant

import "time"

const (
	// QuotaRefreshInterval is the window over which read rate quotas are
	// tracked before being reset.
	QuotaRefreshInterval = time.Second

	TaskBacklog = 256
)
