package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jonwraymond/vspherebroker/vcenter"
)

// ErrUnknownTool is returned when a name is not in the catalog.
var ErrUnknownTool = errors.New("tools: unknown tool")

// Result is the JSON-shaped output of a tool. Every result carries
// "ok": true and "meta": {"host": ...}.
type Result map[string]any

// Func runs one remote operation through a caller already bound to its host.
type Func func(ctx context.Context, c vcenter.Caller, args Args) (Result, error)

// Tool is a named remote operation.
type Tool struct {
	Name        string
	Description string
	// Destructive marks tools that belong in the default confirmation set.
	Destructive bool
	Run         Func
}

// Catalog is an immutable set of tools keyed by name.
type Catalog struct {
	byName map[string]Tool
	names  []string
}

// NewCatalog builds a catalog. Tools must have a name and a Run function and
// names must be unique.
func NewCatalog(tools ...Tool) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if t.Name == "" {
			return nil, errors.New("tools: tool name is required")
		}
		if t.Run == nil {
			return nil, fmt.Errorf("tools: %s: run function is required", t.Name)
		}
		if _, dup := c.byName[t.Name]; dup {
			return nil, fmt.Errorf("tools: duplicate tool %q", t.Name)
		}
		c.byName[t.Name] = t
		c.names = append(c.names, t.Name)
	}
	sort.Strings(c.names)
	return c, nil
}

// Get returns the named tool or ErrUnknownTool.
func (c *Catalog) Get(name string) (Tool, error) {
	t, ok := c.byName[name]
	if !ok {
		return Tool{}, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return t, nil
}

// Names returns the tool names in sorted order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

// All returns the tools sorted by name.
func (c *Catalog) All() []Tool {
	out := make([]Tool, 0, len(c.names))
	for _, n := range c.names {
		out = append(out, c.byName[n])
	}
	return out
}

// DestructiveNames returns the names of tools flagged Destructive.
func (c *Catalog) DestructiveNames() []string {
	var out []string
	for _, n := range c.names {
		if c.byName[n].Destructive {
			out = append(out, n)
		}
	}
	return out
}

// Default returns the vCenter operation catalog.
func Default() *Catalog {
	c, err := NewCatalog(
		listTool("list_vms", "List virtual machines", "/vcenter/vm", "vms"),
		getVMTool(),
		listTool("list_hosts", "List ESXi hosts", "/vcenter/host", "hosts"),
		listTool("list_datastores", "List datastores", "/vcenter/datastore", "datastores"),
		listTool("list_networks", "List networks", "/vcenter/network", "networks"),
		listTool("list_datacenters", "List datacenters", "/vcenter/datacenter", "datacenters"),
		powerTool("power_on_vm", "Power on a virtual machine", "start"),
		powerTool("power_off_vm", "Power off a virtual machine", "stop"),
		powerTool("restart_vm", "Hard-reset a virtual machine", "reset"),
		listSnapshotsTool(),
		createSnapshotTool(),
		deleteSnapshotTool(),
		deleteVMTool(),
		modifyResourcesTool(),
		datastoreUsageTool(),
		utilizationSummaryTool(),
	)
	if err != nil {
		panic(err)
	}
	return c
}
