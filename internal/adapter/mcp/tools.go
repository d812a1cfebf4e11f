package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/CareForge/internal/dispatch"
	"github.com/Strob0t/CareForge/internal/domain/member"
	"github.com/Strob0t/CareForge/internal/domain/pharmacy"
	"github.com/Strob0t/CareForge/internal/domain/prescription"
	"github.com/Strob0t/CareForge/internal/service"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.getMemberTool(),
		s.listMembersTool(),
		s.listPharmaciesTool(),
		s.getPrescriptionTool(),
		s.listMemberPrescriptionsTool(),
	)
}

func (s *Server) getMemberTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_member",
		mcplib.WithDescription("Get an enrolled member by ID"),
		mcplib.WithString("member_id",
			mcplib.Required(),
			mcplib.Description("The member ID to look up"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleGetMember}
}

func (s *Server) listMembersTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_members",
		mcplib.WithDescription("List members ordered by name"),
		mcplib.WithNumber("limit", mcplib.Description("Page size, default 50")),
		mcplib.WithNumber("offset", mcplib.Description("Number of members to skip")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleListMembers}
}

func (s *Server) listPharmaciesTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_pharmacies",
		mcplib.WithDescription("List pharmacies in the network"),
		mcplib.WithNumber("limit", mcplib.Description("Page size, default 50")),
		mcplib.WithNumber("offset", mcplib.Description("Number of pharmacies to skip")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleListPharmacies}
}

func (s *Server) getPrescriptionTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_prescription",
		mcplib.WithDescription("Get a prescription and its workflow status by ID"),
		mcplib.WithString("prescription_id",
			mcplib.Required(),
			mcplib.Description("The prescription ID to look up"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleGetPrescription}
}

func (s *Server) listMemberPrescriptionsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_member_prescriptions",
		mcplib.WithDescription("List the prescriptions written for a member"),
		mcplib.WithString("member_id",
			mcplib.Required(),
			mcplib.Description("The member whose prescriptions to list"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleListMemberPrescriptions}
}

func (s *Server) handleGetMember(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	id, ok := stringArg(req, "member_id")
	if !ok {
		return mcplib.NewToolResultError("member_id is required"), nil
	}
	return dispatchTool[member.Member](ctx, s.deps.Dispatcher, service.GetMember{ID: id}), nil
}

func (s *Server) handleListMembers(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	return dispatchTool[[]member.Member](ctx, s.deps.Dispatcher, service.ListMembers{
		Limit:  intArg(req, "limit"),
		Offset: intArg(req, "offset"),
	}), nil
}

func (s *Server) handleListPharmacies(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	return dispatchTool[[]pharmacy.Pharmacy](ctx, s.deps.Dispatcher, service.ListPharmacies{
		Limit:  intArg(req, "limit"),
		Offset: intArg(req, "offset"),
	}), nil
}

func (s *Server) handleGetPrescription(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	id, ok := stringArg(req, "prescription_id")
	if !ok {
		return mcplib.NewToolResultError("prescription_id is required"), nil
	}
	return dispatchTool[prescription.Prescription](ctx, s.deps.Dispatcher, service.GetPrescription{ID: id}), nil
}

func (s *Server) handleListMemberPrescriptions(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	id, ok := stringArg(req, "member_id")
	if !ok {
		return mcplib.NewToolResultError("member_id is required"), nil
	}
	return dispatchTool[[]prescription.Prescription](ctx, s.deps.Dispatcher, service.ListMemberPrescriptions{MemberID: id}), nil
}

// dispatchTool sends req and renders the outcome. Failures become tool
// errors carrying the outcome code so the model can react to them.
func dispatchTool[R any](ctx context.Context, d *dispatch.Dispatcher, req dispatch.Request[R]) *mcplib.CallToolResult {
	if d == nil {
		return mcplib.NewToolResultError("dispatcher not configured")
	}
	res := dispatch.Send[R](ctx, d, req)
	if res.IsFailure() {
		e := res.Err()
		return mcplib.NewToolResultError(fmt.Sprintf("%s: %s", e.Code, e.Message))
	}
	data, err := json.Marshal(res.Value())
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal result", err)
	}
	return toolResultJSON(string(data))
}

func toolResultJSON(text string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(text)
}

func stringArg(req mcplib.CallToolRequest, key string) (string, bool) { //nolint:gocritic // hugeParam: mcp-go request type
	v, ok := req.GetArguments()[key].(string)
	return v, ok && v != ""
}

// intArg reads an optional numeric argument. JSON numbers arrive as
// float64; a missing argument is zero.
func intArg(req mcplib.CallToolRequest, key string) int { //nolint:gocritic // hugeParam: mcp-go request type
	switch v := req.GetArguments()[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
