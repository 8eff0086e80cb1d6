package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/vspherebroker/vcenter"
)

func result(c vcenter.Caller, kv ...any) Result {
	r := Result{
		"ok":   true,
		"meta": map[string]any{"host": c.Host()},
	}
	for i := 0; i+1 < len(kv); i += 2 {
		r[kv[i].(string)] = kv[i+1]
	}
	return r
}

// fetch issues a GET and decodes the payload.
func fetch(ctx context.Context, c vcenter.Caller, path string) (any, error) {
	resp, err := c.Call(ctx, vcenter.Request{Method: http.MethodGet, Path: path})
	if err != nil {
		return nil, err
	}
	var v any
	if err := resp.Decode(&v); err != nil {
		return nil, fmt.Errorf("tools: decode %s: %w", path, err)
	}
	return v, nil
}

// fetchList issues a GET for a collection. A non-array payload decodes as empty.
func fetchList(ctx context.Context, c vcenter.Caller, path string) ([]any, error) {
	v, err := fetch(ctx, c, path)
	if err != nil {
		return nil, err
	}
	items, _ := v.([]any)
	if items == nil {
		items = []any{}
	}
	return items, nil
}

func vmPath(vm string, parts ...string) string {
	p := "/vcenter/vm/" + url.PathEscape(vm)
	for _, s := range parts {
		p += "/" + s
	}
	return p
}

func listTool(name, desc, path, key string) Tool {
	return Tool{
		Name:        name,
		Description: desc,
		Run: func(ctx context.Context, c vcenter.Caller, _ Args) (Result, error) {
			items, err := fetchList(ctx, c, path)
			if err != nil {
				return nil, err
			}
			return result(c, "count", len(items), key, items), nil
		},
	}
}

func getVMTool() Tool {
	return Tool{
		Name:        "get_vm_details",
		Description: "Get the configuration and runtime state of one virtual machine",
		Run: func(ctx context.Context, c vcenter.Caller, args Args) (Result, error) {
			vm, err := args.RequireString("vm_id")
			if err != nil {
				return nil, err
			}
			v, err := fetch(ctx, c, vmPath(vm))
			if err != nil {
				return nil, err
			}
			return result(c, "vm", v), nil
		},
	}
}

// datastoreUsageTool lists datastores with capacity totals derived from the
// capacity and free_space fields of each summary.
func datastoreUsageTool() Tool {
	return Tool{
		Name:        "get_datastore_usage",
		Description: "Report datastore capacity and free space",
		Run: func(ctx context.Context, c vcenter.Caller, _ Args) (Result, error) {
			items, err := fetchList(ctx, c, "/vcenter/datastore")
			if err != nil {
				return nil, err
			}
			var capacity, free float64
			for _, it := range items {
				ds, ok := it.(map[string]any)
				if !ok {
					continue
				}
				if v, ok := ds["capacity"].(float64); ok {
					capacity += v
				}
				if v, ok := ds["free_space"].(float64); ok {
					free += v
				}
			}
			totals := map[string]any{
				"capacity":   capacity,
				"free_space": free,
				"used":       capacity - free,
			}
			if capacity > 0 {
				totals["used_pct"] = (capacity - free) / capacity * 100
			}
			return result(c, "count", len(items), "datastores", items, "totals", totals), nil
		},
	}
}

// utilizationSummaryTool counts inventory objects. The collections are
// fetched concurrently; the first failure cancels the rest.
func utilizationSummaryTool() Tool {
	collections := []struct{ key, path string }{
		{"vms", "/vcenter/vm"},
		{"hosts", "/vcenter/host"},
		{"datastores", "/vcenter/datastore"},
		{"networks", "/vcenter/network"},
		{"datacenters", "/vcenter/datacenter"},
	}
	return Tool{
		Name:        "get_resource_utilization_summary",
		Description: "Count virtual machines, hosts, datastores, networks and datacenters",
		Run: func(ctx context.Context, c vcenter.Caller, _ Args) (Result, error) {
			counts := make([]int, len(collections))
			g, gctx := errgroup.WithContext(ctx)
			for i, col := range collections {
				g.Go(func() error {
					items, err := fetchList(gctx, c, col.path)
					if err != nil {
						return err
					}
					counts[i] = len(items)
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return nil, err
			}
			summary := make(map[string]any, len(collections))
			for i, col := range collections {
				summary[col.key] = counts[i]
			}
			return result(c, "summary", summary), nil
		},
	}
}
