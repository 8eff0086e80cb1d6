// Package health reports whether the broker can serve calls.
//
// A Checker reports Healthy, Degraded or Unhealthy. The Aggregator runs its
// checkers concurrently under one timeout and the worst status wins.
// PoolChecker inspects the vCenter session pool: a host whose credentials
// were rejected makes the pool Degraded until an operator resets it.
//
//	agg := health.NewAggregator()
//	agg.Register("vcenter_sessions", health.NewPoolChecker(pool))
//	health.RegisterHandlers(mux, agg)
package health
