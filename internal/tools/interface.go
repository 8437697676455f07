// Package tools defines the HR tools the agent can invoke during a
// conversation: policy document search and the HRIS actions (PTO balance,
// leave submission). Each tool satisfies both this package's HRTool
// interface and Eino's tool.InvokableTool so they can be registered directly
// with the ReAct agent.
package tools

import (
	"context"
	"encoding/json"

	"github.com/cloudwego/eino/components/tool"

	"github.com/54b3r/hrassist-go/internal/hris"
	"github.com/54b3r/hrassist-go/internal/rag"
)

// HRTool is implemented by every tool in this package. Name lets the agent
// log and route tool calls without type assertions.
type HRTool interface {
	tool.InvokableTool

	// Name returns the unique tool name registered with the agent.
	Name() string

	// Description returns the LLM-facing description of the tool.
	Description() string
}

// PolicySearcher retrieves policy excerpts for a query. *pipeline.Pipeline
// satisfies it.
type PolicySearcher interface {
	Retrieve(ctx context.Context, question string, k int) (rag.RetrievalResult, error)
}

// All returns the full tool set in registration order.
func All(searcher PolicySearcher, client hris.Client, employeeID string, topK int) []tool.BaseTool {
	return []tool.BaseTool{
		NewPolicySearchTool(searcher, topK),
		NewPTOBalanceTool(client, employeeID),
		NewLeaveRequestTool(client, employeeID),
	}
}

// toolError renders a recoverable failure as a JSON result so the model can
// read it and respond, instead of aborting the agent loop.
func toolError(msg string) (string, error) {
	out, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// jsonResult marshals v as the tool output.
func jsonResult(v any) (string, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
