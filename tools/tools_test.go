package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/vspherebroker/vcenter"
)

// fakeCaller answers requests from a route table keyed by "METHOD path".
type fakeCaller struct {
	host   string
	routes map[string]func(vcenter.Request) (*vcenter.Response, error)

	mu   sync.Mutex
	seen []vcenter.Request
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{
		host:   "vc01.example.com",
		routes: map[string]func(vcenter.Request) (*vcenter.Response, error){},
	}
}

func (f *fakeCaller) Host() string { return f.host }

func (f *fakeCaller) Call(_ context.Context, req vcenter.Request) (*vcenter.Response, error) {
	f.mu.Lock()
	f.seen = append(f.seen, req)
	f.mu.Unlock()
	h, ok := f.routes[req.Method+" "+req.Path]
	if !ok {
		return nil, &vcenter.APIError{Status: http.StatusNotFound, Kind: vcenter.KindNotFound, Method: req.Method, Path: req.Path}
	}
	return h(req)
}

func (f *fakeCaller) json(method, path string, v any) {
	data, _ := json.Marshal(v)
	f.routes[method+" "+path] = func(vcenter.Request) (*vcenter.Response, error) {
		return &vcenter.Response{Status: http.StatusOK, Body: data}, nil
	}
}

func (f *fakeCaller) empty(method, path string) {
	f.routes[method+" "+path] = func(vcenter.Request) (*vcenter.Response, error) {
		return &vcenter.Response{Status: http.StatusNoContent}, nil
	}
}

func (f *fakeCaller) requests() []vcenter.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]vcenter.Request(nil), f.seen...)
}

func run(t *testing.T, c *fakeCaller, name string, args Args) (Result, error) {
	t.Helper()
	tool, err := Default().Get(name)
	require.NoError(t, err)
	return tool.Run(context.Background(), c, args)
}

func TestDefault_Catalog(t *testing.T) {
	c := Default()

	assert.Len(t, c.Names(), 16)
	assert.True(t, sort.StringsAreSorted(c.Names()))
	assert.Equal(t, []string{"delete_vm", "delete_vm_snapshot", "modify_vm_resources"}, c.DestructiveNames())

	_, err := c.Get("format_datastore")
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestNewCatalog_Rejects(t *testing.T) {
	noop := func(context.Context, vcenter.Caller, Args) (Result, error) { return nil, nil }

	_, err := NewCatalog(Tool{Name: "a", Run: noop}, Tool{Name: "a", Run: noop})
	assert.ErrorContains(t, err, "duplicate")

	_, err = NewCatalog(Tool{Run: noop})
	assert.Error(t, err)

	_, err = NewCatalog(Tool{Name: "b"})
	assert.Error(t, err)
}

func TestListTools(t *testing.T) {
	tests := []struct {
		tool, path, key string
	}{
		{"list_vms", "/vcenter/vm", "vms"},
		{"list_hosts", "/vcenter/host", "hosts"},
		{"list_datastores", "/vcenter/datastore", "datastores"},
		{"list_networks", "/vcenter/network", "networks"},
		{"list_datacenters", "/vcenter/datacenter", "datacenters"},
	}
	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			c := newFakeCaller()
			c.json(http.MethodGet, tt.path, []map[string]any{{"name": "a"}, {"name": "b"}})

			res, err := run(t, c, tt.tool, nil)

			require.NoError(t, err)
			assert.Equal(t, true, res["ok"])
			assert.Equal(t, map[string]any{"host": "vc01.example.com"}, res["meta"])
			assert.Equal(t, 2, res["count"])
			assert.Len(t, res[tt.key], 2)
		})
	}
}

func TestGetVMDetails(t *testing.T) {
	c := newFakeCaller()
	c.json(http.MethodGet, "/vcenter/vm/vm-42", map[string]any{"name": "web01", "power_state": "POWERED_ON"})

	res, err := run(t, c, "get_vm_details", Args{"vm_id": "vm-42"})

	require.NoError(t, err)
	assert.Equal(t, "web01", res["vm"].(map[string]any)["name"])
}

func TestVMTools_RequireVMID(t *testing.T) {
	for _, name := range []string{
		"get_vm_details", "power_on_vm", "power_off_vm", "restart_vm",
		"list_vm_snapshots", "create_vm_snapshot", "delete_vm_snapshot",
		"delete_vm", "modify_vm_resources",
	} {
		t.Run(name, func(t *testing.T) {
			c := newFakeCaller()
			_, err := run(t, c, name, Args{"vm_id": "  "})

			var argErr *ArgumentError
			require.ErrorAs(t, err, &argErr)
			assert.Equal(t, "vm_id", argErr.Arg)
			assert.ErrorIs(t, err, ErrInvalidArgument)
			assert.Empty(t, c.requests(), "no remote call on invalid arguments")
		})
	}
}

func TestPowerTools(t *testing.T) {
	tests := map[string]string{
		"power_on_vm":  "/vcenter/vm/vm-1/power/start",
		"power_off_vm": "/vcenter/vm/vm-1/power/stop",
		"restart_vm":   "/vcenter/vm/vm-1/power/reset",
	}
	for name, path := range tests {
		t.Run(name, func(t *testing.T) {
			c := newFakeCaller()
			c.empty(http.MethodPost, path)

			res, err := run(t, c, name, Args{"vm_id": "vm-1"})

			require.NoError(t, err)
			assert.Equal(t, map[string]any{}, res["result"])
			reqs := c.requests()
			require.Len(t, reqs, 1)
			assert.Equal(t, []int{http.StatusOK, http.StatusNoContent}, reqs[0].Expect)
		})
	}
}

func TestVMPathEscapes(t *testing.T) {
	c := newFakeCaller()
	c.json(http.MethodGet, "/vcenter/vm/vm%2F1", map[string]any{})

	_, err := run(t, c, "get_vm_details", Args{"vm_id": "vm/1"})
	require.NoError(t, err)
}

func TestSnapshots(t *testing.T) {
	c := newFakeCaller()
	c.json(http.MethodGet, "/vcenter/vm/vm-1/snapshot", []map[string]any{{"snapshot": "s-1"}})
	c.json(http.MethodPost, "/vcenter/vm/vm-1/snapshot", "s-2")
	c.empty(http.MethodDelete, "/vcenter/vm/vm-1/snapshot/s-1")

	res, err := run(t, c, "list_vm_snapshots", Args{"vm_id": "vm-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, res["count"])

	res, err = run(t, c, "create_vm_snapshot", Args{
		"vm_id":         "vm-1",
		"snapshot_name": "before-upgrade",
		"memory":        true,
	})
	require.NoError(t, err)
	assert.Equal(t, "s-2", res["result"])
	body := c.requests()[1].Body.(map[string]any)
	assert.Equal(t, "before-upgrade", body["name"])
	assert.Equal(t, true, body["memory"])
	assert.Equal(t, false, body["quiesce"])
	assert.Equal(t, "", body["description"])

	_, err = run(t, c, "create_vm_snapshot", Args{"vm_id": "vm-1"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = run(t, c, "delete_vm_snapshot", Args{"vm_id": "vm-1", "snapshot_id": "s-1"})
	require.NoError(t, err)
}

func TestListSnapshots_NonListCount(t *testing.T) {
	c := newFakeCaller()
	c.json(http.MethodGet, "/vcenter/vm/vm-1/snapshot", map[string]any{"current": "s-1"})

	res, err := run(t, c, "list_vm_snapshots", Args{"vm_id": "vm-1"})

	require.NoError(t, err)
	assert.Nil(t, res["count"])
}

func TestDeleteVM_PropagatesRemoteError(t *testing.T) {
	c := newFakeCaller()

	_, err := run(t, c, "delete_vm", Args{"vm_id": "vm-404"})

	assert.True(t, vcenter.IsNotFound(err))
}

func TestModifyVMResources(t *testing.T) {
	c := newFakeCaller()
	c.empty(http.MethodPatch, "/vcenter/vm/vm-1/hardware/cpu")
	c.empty(http.MethodPatch, "/vcenter/vm/vm-1/hardware/memory")

	res, err := run(t, c, "modify_vm_resources", Args{"vm_id": "vm-1", "cpu_count": float64(4), "memory_gb": 1.5})

	require.NoError(t, err)
	reqs := c.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, map[string]any{"count": 4}, reqs[0].Body)
	assert.Equal(t, map[string]any{"size_MiB": 1536}, reqs[1].Body)
	assert.Contains(t, res["result"], "cpu")
	assert.Contains(t, res["result"], "memory")
}

func TestModifyVMResources_SmallestMemory(t *testing.T) {
	c := newFakeCaller()
	c.empty(http.MethodPatch, "/vcenter/vm/vm-1/hardware/memory")

	_, err := run(t, c, "modify_vm_resources", Args{"vm_id": "vm-1", "memory_gb": 1.0 / 1024})

	require.NoError(t, err)
	reqs := c.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, map[string]any{"size_MiB": 1}, reqs[0].Body)
}

func TestModifyVMResources_Validation(t *testing.T) {
	tests := []struct {
		name string
		args Args
		arg  string
	}{
		{"neither", Args{"vm_id": "vm-1"}, "cpu_count"},
		{"fractional cpu", Args{"vm_id": "vm-1", "cpu_count": 1.5}, "cpu_count"},
		{"zero cpu", Args{"vm_id": "vm-1", "cpu_count": float64(0)}, "cpu_count"},
		{"negative memory", Args{"vm_id": "vm-1", "memory_gb": float64(-2)}, "memory_gb"},
		{"memory under one MiB", Args{"vm_id": "vm-1", "memory_gb": 0.0004}, "memory_gb"},
		{"string memory", Args{"vm_id": "vm-1", "cpu_count": float64(2), "memory_gb": "lots"}, "memory_gb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newFakeCaller()
			_, err := run(t, c, "modify_vm_resources", tt.args)

			var argErr *ArgumentError
			require.ErrorAs(t, err, &argErr)
			assert.Equal(t, tt.arg, argErr.Arg)
			assert.Empty(t, c.requests())
		})
	}
}

func TestDatastoreUsage(t *testing.T) {
	c := newFakeCaller()
	c.json(http.MethodGet, "/vcenter/datastore", []map[string]any{
		{"name": "ds1", "capacity": 1000, "free_space": 250},
		{"name": "ds2", "capacity": 1000, "free_space": 750},
	})

	res, err := run(t, c, "get_datastore_usage", nil)

	require.NoError(t, err)
	totals := res["totals"].(map[string]any)
	assert.Equal(t, float64(2000), totals["capacity"])
	assert.Equal(t, float64(1000), totals["used"])
	assert.InDelta(t, 50.0, totals["used_pct"], 0.001)
}

func TestUtilizationSummary(t *testing.T) {
	c := newFakeCaller()
	c.json(http.MethodGet, "/vcenter/vm", []int{1, 2, 3})
	c.json(http.MethodGet, "/vcenter/host", []int{1})
	c.json(http.MethodGet, "/vcenter/datastore", []int{1, 2})
	c.json(http.MethodGet, "/vcenter/network", []int{})
	c.json(http.MethodGet, "/vcenter/datacenter", []int{1})

	res, err := run(t, c, "get_resource_utilization_summary", nil)

	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"vms": 3, "hosts": 1, "datastores": 2, "networks": 0, "datacenters": 1,
	}, res["summary"])
}

func TestUtilizationSummary_FailsOnAnyCollection(t *testing.T) {
	c := newFakeCaller()
	c.json(http.MethodGet, "/vcenter/vm", []int{1})
	boom := errors.New("boom")
	c.routes["GET /vcenter/host"] = func(vcenter.Request) (*vcenter.Response, error) { return nil, boom }

	_, err := run(t, c, "get_resource_utilization_summary", nil)

	assert.Error(t, err)
}

func TestArgs_Redacted(t *testing.T) {
	args := Args{"vm_id": "vm-1", "token": "t", "admin_password": "p", "Access_Token": "x"}

	got := args.Redacted()

	assert.Equal(t, map[string]any{
		"vm_id": "vm-1", "token": "***", "admin_password": "***", "Access_Token": "***",
	}, got)
	assert.Equal(t, "t", args["token"], "original untouched")
}

func TestArgs_Numbers(t *testing.T) {
	args := Args{"a": float64(3), "b": json.Number("2.5"), "c": 7, "d": nil}

	v, ok, err := args.Int("a")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	f, ok, err := args.Float("b")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2.5, f)

	v, _, err = args.Int("c")
	assert.NoError(t, err)
	assert.Equal(t, 7, v)

	_, ok, err = args.Int("d")
	assert.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = args.Int("missing")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestArgs_RequireStringType(t *testing.T) {
	_, err := Args{"vm_id": 12}.RequireString("vm_id")

	var argErr *ArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "must be a string", argErr.Reason)
}
