package health_test

import (
	"context"
	"fmt"

	"github.com/jonwraymond/vspherebroker/health"
	"github.com/jonwraymond/vspherebroker/vcenter"
)

type staticPool vcenter.PoolStats

func (p staticPool) Stats() vcenter.PoolStats { return vcenter.PoolStats(p) }

func ExampleNewPoolChecker() {
	pool := staticPool{
		Sessions: 1,
		Hosts:    []string{"vc1.example.com"},
		Failed:   map[string]string{"vc2.example.com": "authentication failed"},
	}
	r := health.NewPoolChecker(pool).Check(context.Background())
	fmt.Println(r.Status, r.Message)
	// Output: degraded credentials rejected for 1 host(s)
}

func ExampleAggregator() {
	agg := health.NewAggregator()
	agg.Register("vcenter_sessions", health.NewPoolChecker(staticPool{}))
	agg.Register("audit", health.NewCheckerFunc("audit", func(context.Context) health.Result {
		return health.Healthy("writable")
	}))

	results := agg.CheckAll(context.Background())
	fmt.Println(health.OverallStatus(results))
	// Output: healthy
}
