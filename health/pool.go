package health

import (
	"context"
	"fmt"

	"github.com/jonwraymond/vspherebroker/vcenter"
)

// PoolStatser reports session pool state. *vcenter.Pool implements it.
type PoolStatser interface {
	Stats() vcenter.PoolStats
}

// PoolChecker reports on the vCenter session pool.
//
//   - unhealthy once the pool is closed
//   - degraded while any host is disabled after rejected credentials
//   - healthy otherwise, including before the first login
type PoolChecker struct {
	pool PoolStatser
}

// NewPoolChecker creates a checker over pool.
func NewPoolChecker(pool PoolStatser) *PoolChecker {
	return &PoolChecker{pool: pool}
}

// Name returns "vcenter_sessions".
func (c *PoolChecker) Name() string { return "vcenter_sessions" }

// Check inspects the pool without contacting vCenter.
func (c *PoolChecker) Check(_ context.Context) Result {
	st := c.pool.Stats()
	details := map[string]any{
		"sessions": st.Sessions,
		"hosts":    st.Hosts,
	}
	if len(st.Failed) > 0 {
		details["failed"] = st.Failed
	}

	switch {
	case st.Closed:
		return Unhealthy("session pool closed", ErrPoolClosed).WithDetails(details)
	case len(st.Failed) > 0:
		return Degraded(fmt.Sprintf("credentials rejected for %d host(s)", len(st.Failed))).WithDetails(details)
	default:
		return Healthy(fmt.Sprintf("%d active session(s)", st.Sessions)).WithDetails(details)
	}
}

var _ Checker = (*PoolChecker)(nil)
