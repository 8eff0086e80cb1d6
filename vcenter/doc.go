// Package vcenter is the connection layer to the vCenter REST API.
//
// A Pool keeps one authenticated Session per host and creates it on first
// use. An Executor runs requests against pooled sessions: it retries
// transient failures with backoff, renews a session once when vCenter
// answers 401, and normalizes every failure with Classify.
//
// Both API surfaces are supported. ModeAPI calls /api/... and reports
// errors as {"error_type": ...}; ModeREST calls /rest/..., wraps request
// bodies in {"spec": ...}, unwraps {"value": ...} and reports errors as
// {"type": "com.vmware.vapi.std.errors.*"}.
//
//	pool, _ := vcenter.NewPool(vcenter.PoolConfig{Credentials: creds, Client: client})
//	exec := vcenter.NewExecutor(pool, vcenter.ExecutorConfig{Timeout: 20 * time.Second})
//	resp, err := exec.Run(ctx, "vc01.example.com", vcenter.Request{Method: "GET", Path: "/vcenter/vm"})
//	if vcenter.IsNotFound(err) {
//	    ...
//	}
//	defer pool.Shutdown(ctx)
package vcenter
