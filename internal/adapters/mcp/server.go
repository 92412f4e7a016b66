package mcpadapter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
	"github.com/kirillkom/course-rag-assistant/internal/core/ports"
)

const (
	ServerName    = "course-rag-assistant"
	ServerVersion = "0.1.0"

	toolAskQuestion = "ask_question"
	toolGetRun      = "get_ingestion_run"
)

// Handlers serves the MCP tools on top of the inbound ports.
type Handlers struct {
	answerer ports.QuestionAnswerer
	runs     ports.RunReader
}

// NewServer builds an MCP server exposing ask_question and, when runs is not
// nil, get_ingestion_run.
func NewServer(answerer ports.QuestionAnswerer, runs ports.RunReader) *mcpserver.MCPServer {
	server := mcpserver.NewMCPServer(ServerName, ServerVersion)
	RegisterTools(server, answerer, runs)
	return server
}

func RegisterTools(server *mcpserver.MCPServer, answerer ports.QuestionAnswerer, runs ports.RunReader) *Handlers {
	h := &Handlers{answerer: answerer, runs: runs}

	server.AddTool(mcp.Tool{
		Name:        toolAskQuestion,
		Description: "Answer a question about the course using course material and forum posts. Returns the answer with source links.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"question": map[string]any{
					"type":        "string",
					"description": "The student question",
				},
				"image": map[string]any{
					"type":        "string",
					"description": "Optional base64 screenshot; text found in it is added to the question",
				},
			},
			Required: []string{"question"},
		},
	}, h.AskQuestion)

	if runs != nil {
		server.AddTool(mcp.Tool{
			Name:        toolGetRun,
			Description: "Get the status and report of an ingestion run.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"run_id": map[string]any{
						"type":        "string",
						"description": "Ingestion run id",
					},
				},
				Required: []string{"run_id"},
			},
		}, h.GetIngestionRun)
	}

	return h
}

func (h *Handlers) AskQuestion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("question argument is required and must be a string"), nil
	}

	var image []byte
	if raw := strings.TrimSpace(request.GetString("image", "")); raw != "" {
		if idx := strings.Index(raw, ","); strings.HasPrefix(raw, "data:") && idx >= 0 {
			raw = raw[idx+1:]
		}
		image, err = base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return mcp.NewToolResultError("image must be base64 encoded"), nil
		}
	}

	answer, err := h.answerer.Ask(ctx, domain.Question{Text: question, ImageData: image})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ask failed (%s): %v", domain.KindLabel(err), err)), nil
	}
	return jsonResult(answer)
}

func (h *Handlers) GetIngestionRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := request.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError("run_id argument is required and must be a string"), nil
	}

	run, err := h.runs.GetByID(ctx, runID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get run failed (%s): %v", domain.KindLabel(err), err)), nil
	}
	return jsonResult(run)
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}
