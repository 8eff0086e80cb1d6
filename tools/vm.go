package tools

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"net/http"

	"github.com/jonwraymond/vspherebroker/vcenter"
)

// Statuses accepted for calls that may answer without a body.
var (
	expectAction = []int{http.StatusOK, http.StatusNoContent}
	expectCreate = []int{http.StatusOK, http.StatusCreated}
)

// send issues a mutating call and decodes the body if there is one.
func send(ctx context.Context, c vcenter.Caller, req vcenter.Request) (any, error) {
	resp, err := c.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Value) == 0 && len(bytes.TrimSpace(resp.Body)) == 0 {
		return map[string]any{}, nil
	}
	var v any
	if err := resp.Decode(&v); err != nil {
		return nil, fmt.Errorf("tools: decode %s %s: %w", req.Method, req.Path, err)
	}
	return v, nil
}

func powerTool(name, desc, action string) Tool {
	return Tool{
		Name:        name,
		Description: desc,
		Run: func(ctx context.Context, c vcenter.Caller, args Args) (Result, error) {
			vm, err := args.RequireString("vm_id")
			if err != nil {
				return nil, err
			}
			out, err := send(ctx, c, vcenter.Request{
				Method: http.MethodPost,
				Path:   vmPath(vm, "power", action),
				Expect: expectAction,
			})
			if err != nil {
				return nil, err
			}
			return result(c, "result", out), nil
		},
	}
}

func listSnapshotsTool() Tool {
	return Tool{
		Name:        "list_vm_snapshots",
		Description: "List snapshots of a virtual machine",
		Run: func(ctx context.Context, c vcenter.Caller, args Args) (Result, error) {
			vm, err := args.RequireString("vm_id")
			if err != nil {
				return nil, err
			}
			v, err := fetch(ctx, c, vmPath(vm, "snapshot"))
			if err != nil {
				return nil, err
			}
			var count any
			if items, ok := v.([]any); ok {
				count = len(items)
			}
			return result(c, "count", count, "snapshots", v), nil
		},
	}
}

func createSnapshotTool() Tool {
	return Tool{
		Name:        "create_vm_snapshot",
		Description: "Create a snapshot of a virtual machine",
		Run: func(ctx context.Context, c vcenter.Caller, args Args) (Result, error) {
			vm, err := args.RequireString("vm_id")
			if err != nil {
				return nil, err
			}
			name, err := args.RequireString("snapshot_name")
			if err != nil {
				return nil, err
			}
			desc, _ := args.String("description")
			out, err := send(ctx, c, vcenter.Request{
				Method: http.MethodPost,
				Path:   vmPath(vm, "snapshot"),
				Body: map[string]any{
					"name":        name,
					"description": desc,
					"memory":      args.Bool("memory"),
					"quiesce":     args.Bool("quiesce"),
				},
				Expect: expectCreate,
			})
			if err != nil {
				return nil, err
			}
			return result(c, "result", out), nil
		},
	}
}

func deleteSnapshotTool() Tool {
	return Tool{
		Name:        "delete_vm_snapshot",
		Description: "Delete a snapshot of a virtual machine",
		Destructive: true,
		Run: func(ctx context.Context, c vcenter.Caller, args Args) (Result, error) {
			vm, err := args.RequireString("vm_id")
			if err != nil {
				return nil, err
			}
			snap, err := args.RequireString("snapshot_id")
			if err != nil {
				return nil, err
			}
			out, err := send(ctx, c, vcenter.Request{
				Method: http.MethodDelete,
				Path:   vmPath(vm, "snapshot", snap),
				Expect: expectAction,
			})
			if err != nil {
				return nil, err
			}
			return result(c, "result", out), nil
		},
	}
}

func deleteVMTool() Tool {
	return Tool{
		Name:        "delete_vm",
		Description: "Delete a virtual machine",
		Destructive: true,
		Run: func(ctx context.Context, c vcenter.Caller, args Args) (Result, error) {
			vm, err := args.RequireString("vm_id")
			if err != nil {
				return nil, err
			}
			out, err := send(ctx, c, vcenter.Request{
				Method: http.MethodDelete,
				Path:   vmPath(vm),
				Expect: expectAction,
			})
			if err != nil {
				return nil, err
			}
			return result(c, "result", out), nil
		},
	}
}

// modifyResourcesTool changes CPU count and/or memory. memory_gb is converted
// to MiB. Arguments are validated before any call so a bad memory value
// never leaves a half-applied CPU change.
func modifyResourcesTool() Tool {
	return Tool{
		Name:        "modify_vm_resources",
		Description: "Change the CPU count and/or memory size of a virtual machine",
		Destructive: true,
		Run: func(ctx context.Context, c vcenter.Caller, args Args) (Result, error) {
			vm, err := args.RequireString("vm_id")
			if err != nil {
				return nil, err
			}
			cpu, hasCPU, err := args.Int("cpu_count")
			if err != nil {
				return nil, err
			}
			memGB, hasMem, err := args.Float("memory_gb")
			if err != nil {
				return nil, err
			}
			if !hasCPU && !hasMem {
				return nil, &ArgumentError{Arg: "cpu_count", Reason: "or memory_gb is required"}
			}
			if hasCPU && cpu < 1 {
				return nil, &ArgumentError{Arg: "cpu_count", Reason: "must be at least 1"}
			}
			memMiB := int(math.Round(memGB * 1024))
			if hasMem && memMiB < 1 {
				return nil, &ArgumentError{Arg: "memory_gb", Reason: "must be at least 1 MiB (1/1024 GB)"}
			}

			out := map[string]any{}
			if hasCPU {
				v, err := send(ctx, c, vcenter.Request{
					Method: http.MethodPatch,
					Path:   vmPath(vm, "hardware", "cpu"),
					Body:   map[string]any{"count": cpu},
					Expect: expectAction,
				})
				if err != nil {
					return nil, err
				}
				out["cpu"] = v
			}
			if hasMem {
				v, err := send(ctx, c, vcenter.Request{
					Method: http.MethodPatch,
					Path:   vmPath(vm, "hardware", "memory"),
					Body:   map[string]any{"size_MiB": memMiB},
					Expect: expectAction,
				})
				if err != nil {
					return nil, err
				}
				out["memory"] = v
			}
			return result(c, "result", out), nil
		},
	}
}
