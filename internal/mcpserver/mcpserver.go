// Package mcpserver binds the core's invoke(endpoint_id, args, user) seam
// (C11, spec §1/§4.11) to the actual MCP wire transport. The transport and
// its framing are an explicit out-of-scope external collaborator (spec §1:
// "treated as a message source/sink yielding invoke(...) calls"); this
// package is the concrete adapter that makes that collaborator real,
// registering every enabled tool/resource/prompt from the current registry
// snapshot as an mcp-go handler that delegates straight into the
// orchestrator.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/raw-labs/mxcp/internal/endpoint"
	"github.com/raw-labs/mxcp/internal/identity"
	"github.com/raw-labs/mxcp/internal/logger"
	"github.com/raw-labs/mxcp/internal/orchestrator"
	"github.com/raw-labs/mxcp/internal/registry"
)

// IdentityResolver extracts a UserContext from an incoming MCP request's
// context, standing in for the Identity Provider collaborator (spec §1):
// in production this reads whatever the transport's auth middleware placed
// on ctx; the default here falls back to identity.Anonymous().
type IdentityResolver func(ctx context.Context) *identity.UserContext

// Adapter owns the mcp-go server instance and keeps its registered
// handlers in sync with registry snapshots across reloads.
type Adapter struct {
	MCP          *server.MCPServer
	Orchestrator *orchestrator.Orchestrator
	Registry     *registry.Registry
	Identity     IdentityResolver

	registered map[string]struct{}
}

// New builds an Adapter and performs the initial registration pass against
// the registry's current snapshot.
func New(name, version string, orch *orchestrator.Orchestrator, reg *registry.Registry, identityFn IdentityResolver) *Adapter {
	if identityFn == nil {
		identityFn = func(context.Context) *identity.UserContext { return identity.Anonymous() }
	}
	a := &Adapter{
		MCP: server.NewMCPServer(name, version,
			server.WithToolCapabilities(true),
			server.WithResourceCapabilities(true, true),
			server.WithPromptCapabilities(true),
		),
		Orchestrator: orch,
		Registry:     reg,
		Identity:     identityFn,
		registered:   map[string]struct{}{},
	}
	a.Resync()
	return a
}

// Resync registers every enabled endpoint in the registry's current
// snapshot that hasn't been registered yet. New calls it once at startup;
// nothing calls it after a reload, so endpoints that a later snapshot adds
// are not served over MCP until Resync runs again. mcp-go has no bulk
// "replace all tools" call, so this adapter only grows its registration set
// — a reload that drops an endpoint leaves a stale (but now unreachable,
// since C11 looks it up in the fresh snapshot first) handler registered,
// which is harmless because every handler re-resolves the endpoint from the
// live snapshot on each call rather than closing over the old one.
func (a *Adapter) Resync() {
	snap := a.Registry.Current()
	for id, ep := range snap.Endpoints {
		if _, done := a.registered[id]; done {
			continue
		}
		if !ep.Enabled {
			continue
		}
		switch ep.Kind {
		case endpoint.KindTool:
			a.registerTool(ep)
		case endpoint.KindResource:
			a.registerResource(ep)
		case endpoint.KindPrompt:
			a.registerPrompt(ep)
		}
		a.registered[id] = struct{}{}
	}
}

func (a *Adapter) registerTool(ep *endpoint.Endpoint) {
	opts := []mcp.ToolOption{mcp.WithDescription(ep.Description)}
	for _, p := range ep.Parameters {
		opts = append(opts, paramOption(p))
	}
	if ep.Annotations.ReadOnly {
		opts = append(opts, mcp.WithReadOnlyHintAnnotation(true))
	}
	if ep.Annotations.Destructive {
		opts = append(opts, mcp.WithDestructiveHintAnnotation(true))
	}
	if ep.Annotations.Idempotent {
		opts = append(opts, mcp.WithIdempotentHintAnnotation(true))
	}
	if ep.Annotations.OpenWorld {
		opts = append(opts, mcp.WithOpenWorldHintAnnotation(true))
	}
	tool := mcp.NewTool(ep.Name, opts...)
	id := ep.ID
	a.MCP.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := req.Params.Arguments.(map[string]any)
		result := a.Orchestrator.Invoke(ctx, id, args, a.Identity(ctx), time.Time{})
		if result.Err != nil {
			return mcp.NewToolResultError(result.Err.Error()), nil
		}
		return toolResultFor(result.Value)
	})
}

func (a *Adapter) registerResource(ep *endpoint.Endpoint) {
	res := mcp.NewResource(ep.URITemplate, ep.Name,
		mcp.WithResourceDescription(ep.Description),
		mcp.WithMIMEType(ep.MIMEType),
	)
	id := ep.ID
	uriTemplate := ep.URITemplate
	mimeType := ep.MIMEType
	a.MCP.AddResource(res, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		args, err := endpoint.ExtractTemplateParams(uriTemplate, req.Params.URI)
		if err != nil {
			return nil, err
		}
		result := a.Orchestrator.Invoke(ctx, id, args, a.Identity(ctx), time.Time{})
		if result.Err != nil {
			return nil, result.Err
		}
		text, err := json.Marshal(result.Value)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: mimeType, Text: string(text)},
		}, nil
	})
}

func (a *Adapter) registerPrompt(ep *endpoint.Endpoint) {
	opts := []mcp.PromptOption{mcp.WithPromptDescription(ep.Description)}
	for _, p := range ep.Parameters {
		if !p.Spec.HasDefault {
			opts = append(opts, mcp.WithArgument(p.Name, mcp.ArgumentDescription(p.Spec.Description), mcp.RequiredArgument()))
		} else {
			opts = append(opts, mcp.WithArgument(p.Name, mcp.ArgumentDescription(p.Spec.Description)))
		}
	}
	prompt := mcp.NewPrompt(ep.Name, opts...)
	id := ep.ID
	a.MCP.AddPrompt(prompt, func(_ context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		endpointRef, ok := a.Registry.Current().Lookup(id)
		if !ok {
			return nil, fmt.Errorf("prompt %s is unknown or disabled", id)
		}
		args := make(map[string]any, len(req.Params.Arguments))
		for k, v := range req.Params.Arguments {
			args[k] = v
		}
		messages, err := endpoint.RenderMessages(endpointRef, args)
		if err != nil {
			return nil, err
		}
		out := make([]mcp.PromptMessage, len(messages))
		for i, m := range messages {
			out[i] = mcp.PromptMessage{Role: mcp.Role(m.Role), Content: mcp.TextContent{Type: "text", Text: m.TemplateText}}
		}
		return &mcp.GetPromptResult{Description: endpointRef.Description, Messages: out}, nil
	})
}

func paramOption(p endpoint.Parameter) mcp.ToolOption {
	opts := propOpts(p)
	switch p.Spec.Kind {
	case "string":
		return mcp.WithString(p.Name, opts...)
	case "number", "integer":
		return mcp.WithNumber(p.Name, opts...)
	case "boolean":
		return mcp.WithBoolean(p.Name, opts...)
	case "array":
		return mcp.WithArray(p.Name, opts...)
	default:
		return mcp.WithObject(p.Name, opts...)
	}
}

func propOpts(p endpoint.Parameter) []mcp.PropertyOption {
	opts := []mcp.PropertyOption{mcp.Description(p.Spec.Description)}
	if !p.Spec.HasDefault {
		opts = append(opts, mcp.Required())
	}
	return opts
}

func toolResultFor(value any) (*mcp.CallToolResult, error) {
	switch v := value.(type) {
	case string:
		return mcp.NewToolResultText(v), nil
	default:
		text, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshaling tool result: %w", err)
		}
		return mcp.NewToolResultText(string(text)), nil
	}
}

// ServeStdio starts the adapter's MCP server over stdio, blocking until the
// transport closes (mirrors mcp-go's own ServeStdio convenience, used by
// cmd/mxcpd).
func ServeStdio(a *Adapter) error {
	logger.Info("mcpserver: serving over stdio")
	return server.ServeStdio(a.MCP)
}
