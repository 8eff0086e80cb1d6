// Package mcpserver exposes the broker's tool catalog over the Model Context
// Protocol.
//
// Every catalog tool becomes one MCP tool. Calls go through Broker.Invoke, so
// authorization, rate limiting and audit apply exactly as for any other
// caller. The caller token is taken from the "token" argument, then from the
// Authorization: Bearer header of the SSE connection.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jonwraymond/vspherebroker/auth"
	"github.com/jonwraymond/vspherebroker/broker"
	"github.com/jonwraymond/vspherebroker/observe"
	"github.com/jonwraymond/vspherebroker/tools"
)

// Invoker is the broker surface the server needs. *broker.Broker implements it.
type Invoker interface {
	Invoke(ctx context.Context, call broker.Call) (tools.Result, error)
	Catalog() *tools.Catalog
	Policy() *auth.PolicyAuthorizer
}

// Config names the MCP implementation.
type Config struct {
	// Name is reported to clients.
	// Default: "vspherebroker"
	Name string

	// Version is reported to clients.
	// Default: "dev"
	Version string

	Logger observe.Logger
}

// Server builds MCP servers over one Invoker.
type Server struct {
	invoker Invoker
	impl    *mcp.Implementation
	logger  observe.Logger
	server  *mcp.Server
	handler http.Handler
}

// New registers every catalog tool.
func New(invoker Invoker, cfg Config) *Server {
	if cfg.Name == "" {
		cfg.Name = "vspherebroker"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}

	s := &Server{
		invoker: invoker,
		impl:    &mcp.Implementation{Name: cfg.Name, Version: cfg.Version},
		logger:  cfg.Logger,
	}
	s.server = s.build("")
	s.handler = mcp.NewSSEHandler(func(r *http.Request) *mcp.Server {
		token := auth.ParseBearer(r.Header.Get("Authorization"))
		s.logger.Info(r.Context(), "mcp session opened",
			observe.Field{Key: "remote", Value: r.RemoteAddr},
			observe.Field{Key: "bearer", Value: token != ""})
		return s.build(token)
	}, nil)
	return s
}

// Handler returns the SSE transport handler. Each connection gets a server
// bound to the connection's bearer token.
func (s *Server) Handler() http.Handler { return s.handler }

// Run serves one transport, such as &mcp.StdioTransport{}, until ctx ends.
func (s *Server) Run(ctx context.Context, t mcp.Transport) error {
	return s.server.Run(ctx, t)
}

// build returns an MCP server whose calls default to connToken.
func (s *Server) build(connToken string) *mcp.Server {
	srv := mcp.NewServer(s.impl, nil)
	policy := s.invoker.Policy()
	for _, t := range s.invoker.Catalog().All() {
		desc := t.Description
		if policy.IsDestructive(t.Name) {
			desc += " (destructive: requires confirm=true)"
		}
		mt := &mcp.Tool{Name: t.Name, Description: desc}

		switch t.Name {
		case "list_vms", "list_hosts", "list_datastores", "list_networks", "list_datacenters",
			"get_datastore_usage", "get_resource_utilization_summary":
			addTool[hostInput](s, srv, mt, connToken)
		case "get_vm_details", "list_vm_snapshots", "power_on_vm", "power_off_vm", "restart_vm", "delete_vm":
			addTool[vmInput](s, srv, mt, connToken)
		case "create_vm_snapshot":
			addTool[createSnapshotInput](s, srv, mt, connToken)
		case "delete_vm_snapshot":
			addTool[deleteSnapshotInput](s, srv, mt, connToken)
		case "modify_vm_resources":
			addTool[modifyResourcesInput](s, srv, mt, connToken)
		default:
			addTool[genericInput](s, srv, mt, connToken)
		}
	}
	return srv
}

func addTool[In callInput](s *Server, srv *mcp.Server, mt *mcp.Tool, connToken string) {
	name := mt.Name
	mcp.AddTool(srv, mt, func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, any, error) {
		inv := in.call()
		token := inv.token
		if token == "" {
			token = connToken
		}
		if token == "" {
			token = auth.BearerToken(ctx)
		}
		res, err := s.invoker.Invoke(ctx, broker.Call{
			Token:   token,
			Tool:    name,
			Host:    inv.host,
			Args:    inv.args,
			Confirm: inv.confirm,
		})
		if err != nil {
			return errorResult(err), nil, nil
		}
		return jsonResult(res)
	})
}

// errorBody is the payload of a failed call.
type errorBody struct {
	OK    bool        `json:"ok"`
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Remote  string `json:"remote_kind,omitempty"`
	Status  int    `json:"status,omitempty"`
	Host    string `json:"host,omitempty"`
	Message string `json:"message"`
}

func errorResult(err error) *mcp.CallToolResult {
	detail := errorDetail{Kind: string(broker.KindOf(err)), Message: err.Error()}
	var be *broker.Error
	if errors.As(err, &be) {
		detail.Message = be.Err.Error()
		detail.Host = be.Host
		detail.Status = be.Status()
		if be.Kind == broker.KindRemote {
			detail.Remote = string(be.RemoteKind())
		}
	}
	data, mErr := json.Marshal(errorBody{Error: detail})
	if mErr != nil {
		data = []byte(err.Error())
	}
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}
