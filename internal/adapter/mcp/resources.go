package mcp

import (
	"context"
	"encoding/json"
	"errors"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/Strob0t/CareForge/internal/dispatch"
	"github.com/Strob0t/CareForge/internal/domain/role"
	"github.com/Strob0t/CareForge/internal/service"
)

const rolesURI = "careforge://roles"

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			rolesURI,
			"Roles",
			mcplib.WithResourceDescription("Roles that can be assigned to CareForge users"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleRolesResource,
	)
}

func (s *Server) handleRolesResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Dispatcher == nil {
		return nil, errors.New("dispatcher not configured")
	}
	res := dispatch.Send[[]role.Role](ctx, s.deps.Dispatcher, service.ListRoles{})
	if res.IsFailure() {
		return nil, res.Err()
	}
	data, err := json.Marshal(res.Value())
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
