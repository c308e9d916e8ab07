package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/medhelp-assistant/internal/core/domain"
	"github.com/kirillkom/medhelp-assistant/internal/core/ports"
)

const (
	toolMedicalAnswer   = "medical_answer"
	toolUnansweredQuery = "unanswered_recent"
)

// Server exposes the answer pipeline as MCP tools.
type Server struct {
	answers    ports.AnswerService
	unanswered ports.UnansweredReader
}

// New builds the tool handlers. unanswered may be nil.
func New(answers ports.AnswerService, unanswered ports.UnansweredReader) *Server {
	return &Server{answers: answers, unanswered: unanswered}
}

func (s *Server) MCPServer(name, version string) *server.MCPServer {
	srv := server.NewMCPServer(name, version, server.WithToolCapabilities(false))

	srv.AddTool(mcp.NewTool(toolMedicalAnswer,
		mcp.WithDescription("Answer a health question, grounded in the curated knowledge base when it is confident enough. Returns the response text, sources and decision metadata as JSON."),
		mcp.WithString("question", mcp.Required(), mcp.Description("The user's current question.")),
		mcp.WithArray("recent_turns",
			mcp.Description("Prior conversation turns, oldest first."),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"role":    map[string]any{"type": "string", "enum": []string{"user", "assistant"}},
					"content": map[string]any{"type": "string"},
				},
				"required": []string{"role", "content"},
			}),
		),
	), s.handleMedicalAnswer)

	if s.unanswered != nil {
		srv.AddTool(mcp.NewTool(toolUnansweredQuery,
			mcp.WithDescription("List the most recent questions that could not be answered from the knowledge base."),
			mcp.WithNumber("limit", mcp.Description("Maximum records to return (default 20, max 200).")),
		), s.handleUnanswered)
	}
	return srv
}

func (s *Server) handleMedicalAnswer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil || strings.TrimSpace(question) == "" {
		return mcp.NewToolResultError("question is required"), nil
	}
	turns, err := parseTurns(req.GetArguments()["recent_turns"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	decision := s.answers.Answer(ctx, strings.TrimSpace(question), turns)
	slog.Info("mcp_answer",
		"in_domain", decision.Metadata.IsInDomain,
		"grounded", decision.Metadata.UsedGroundedContext,
		"error", decision.Metadata.Error,
	)
	return jsonResult(decision)
}

func (s *Server) handleUnanswered(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.unanswered.ListRecent(ctx, req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list unanswered queries: %v", err)), nil
	}
	if items == nil {
		items = []domain.UnansweredQuery{}
	}
	return jsonResult(map[string]any{"items": items, "count": len(items)})
}

func parseTurns(raw any) ([]domain.Turn, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("recent_turns must be an array")
	}
	turns := make([]domain.Turn, 0, len(list))
	for i, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("recent_turns[%d] must be an object", i)
		}
		roleRaw, _ := obj["role"].(string)
		role, ok := domain.ParseRole(roleRaw)
		if !ok {
			return nil, fmt.Errorf("recent_turns[%d].role must be user or assistant", i)
		}
		content, _ := obj["content"].(string)
		turns = append(turns, domain.Turn{Role: role, Content: content})
	}
	return turns, nil
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
