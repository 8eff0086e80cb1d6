package mcpserver

import "github.com/jonwraymond/vspherebroker/tools"

// callInput is implemented by every tool input type.
type callInput interface {
	call() invocation
}

type invocation struct {
	token   string
	host    string
	confirm bool
	args    tools.Args
}

type hostInput struct {
	Token    string `json:"token,omitempty" jsonschema:"caller token; defaults to the connection's bearer token"`
	Hostname string `json:"hostname,omitempty" jsonschema:"target vCenter host; defaults to the configured host"`
}

func (in hostInput) call() invocation {
	return invocation{token: in.Token, host: in.Hostname, args: tools.Args{}}
}

type vmInput struct {
	Token    string `json:"token,omitempty" jsonschema:"caller token; defaults to the connection's bearer token"`
	Hostname string `json:"hostname,omitempty" jsonschema:"target vCenter host; defaults to the configured host"`
	VMID     string `json:"vm_id" jsonschema:"virtual machine id, e.g. vm-42"`
	Confirm  bool   `json:"confirm,omitempty" jsonschema:"must be true for destructive operations"`
}

func (in vmInput) call() invocation {
	return invocation{token: in.Token, host: in.Hostname, confirm: in.Confirm, args: tools.Args{"vm_id": in.VMID}}
}

type createSnapshotInput struct {
	Token        string `json:"token,omitempty" jsonschema:"caller token; defaults to the connection's bearer token"`
	Hostname     string `json:"hostname,omitempty" jsonschema:"target vCenter host; defaults to the configured host"`
	VMID         string `json:"vm_id" jsonschema:"virtual machine id, e.g. vm-42"`
	SnapshotName string `json:"snapshot_name" jsonschema:"name of the new snapshot"`
	Description  string `json:"description,omitempty" jsonschema:"snapshot description"`
	Memory       bool   `json:"memory,omitempty" jsonschema:"include guest memory"`
	Quiesce      bool   `json:"quiesce,omitempty" jsonschema:"quiesce the guest file system"`
	Confirm      bool   `json:"confirm,omitempty" jsonschema:"must be true for destructive operations"`
}

func (in createSnapshotInput) call() invocation {
	return invocation{
		token:   in.Token,
		host:    in.Hostname,
		confirm: in.Confirm,
		args: tools.Args{
			"vm_id":         in.VMID,
			"snapshot_name": in.SnapshotName,
			"description":   in.Description,
			"memory":        in.Memory,
			"quiesce":       in.Quiesce,
		},
	}
}

type deleteSnapshotInput struct {
	Token      string `json:"token,omitempty" jsonschema:"caller token; defaults to the connection's bearer token"`
	Hostname   string `json:"hostname,omitempty" jsonschema:"target vCenter host; defaults to the configured host"`
	VMID       string `json:"vm_id" jsonschema:"virtual machine id, e.g. vm-42"`
	SnapshotID string `json:"snapshot_id" jsonschema:"snapshot id"`
	Confirm    bool   `json:"confirm,omitempty" jsonschema:"must be true for destructive operations"`
}

func (in deleteSnapshotInput) call() invocation {
	return invocation{
		token:   in.Token,
		host:    in.Hostname,
		confirm: in.Confirm,
		args:    tools.Args{"vm_id": in.VMID, "snapshot_id": in.SnapshotID},
	}
}

// modifyResourcesInput keeps numbers loose so range and integrality are
// reported as InvalidArgument by the tool itself.
type modifyResourcesInput struct {
	Token    string   `json:"token,omitempty" jsonschema:"caller token; defaults to the connection's bearer token"`
	Hostname string   `json:"hostname,omitempty" jsonschema:"target vCenter host; defaults to the configured host"`
	VMID     string   `json:"vm_id" jsonschema:"virtual machine id, e.g. vm-42"`
	CPUCount *float64 `json:"cpu_count,omitempty" jsonschema:"new vCPU count (whole number)"`
	MemoryGB *float64 `json:"memory_gb,omitempty" jsonschema:"new memory size in GiB"`
	Confirm  bool     `json:"confirm,omitempty" jsonschema:"must be true for destructive operations"`
}

func (in modifyResourcesInput) call() invocation {
	args := tools.Args{"vm_id": in.VMID}
	if in.CPUCount != nil {
		args["cpu_count"] = *in.CPUCount
	}
	if in.MemoryGB != nil {
		args["memory_gb"] = *in.MemoryGB
	}
	return invocation{token: in.Token, host: in.Hostname, confirm: in.Confirm, args: args}
}

// genericInput serves catalog tools without a dedicated input type.
type genericInput struct {
	Token    string         `json:"token,omitempty" jsonschema:"caller token; defaults to the connection's bearer token"`
	Hostname string         `json:"hostname,omitempty" jsonschema:"target vCenter host; defaults to the configured host"`
	Confirm  bool           `json:"confirm,omitempty" jsonschema:"must be true for destructive operations"`
	Args     map[string]any `json:"args,omitempty" jsonschema:"tool arguments"`
}

func (in genericInput) call() invocation {
	args := tools.Args{}
	for k, v := range in.Args {
		args[k] = v
	}
	return invocation{token: in.Token, host: in.Hostname, confirm: in.Confirm, args: args}
}
