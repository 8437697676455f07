package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/hrassist-go/internal/rag"
)

// PolicySearchTool searches the indexed HR policy documents.
type PolicySearchTool struct {
	searcher PolicySearcher
	topK     int
}

type policyInput struct {
	Query string `json:"query"`
}

// NewPolicySearchTool returns a tool that retrieves topK excerpts per call.
func NewPolicySearchTool(searcher PolicySearcher, topK int) *PolicySearchTool {
	if topK <= 0 {
		topK = rag.DefaultTopK
	}
	return &PolicySearchTool{searcher: searcher, topK: topK}
}

// Name returns the tool name registered with the agent.
func (t *PolicySearchTool) Name() string { return "policy_search" }

// Description returns the LLM-facing description of this tool.
func (t *PolicySearchTool) Description() string {
	return "Searches the official HR policy documents and returns the most relevant excerpts with their source. " +
		"Use this ONLY for general policy questions (e.g. 'What is the work from home policy?'), " +
		"never for an employee's personal balances or requests."
}

// Info returns the Eino tool metadata including the JSON input schema.
func (t *PolicySearchTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: t.Name(),
		Desc: t.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     "The policy question to search for.",
				Required: true,
			},
		}),
	}, nil
}

// InvokableRun retrieves excerpts for the query and formats them as
// numbered, attributed blocks.
func (t *PolicySearchTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var input policyInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return "", fmt.Errorf("policy_search: invalid input: %w", err)
	}
	if strings.TrimSpace(input.Query) == "" {
		return toolError("query is required")
	}

	result, err := t.searcher.Retrieve(ctx, input.Query, t.topK)
	if err != nil {
		return "", fmt.Errorf("policy_search: %w", err)
	}
	if len(result) == 0 {
		return "No relevant policy excerpts were found in the indexed HR documents.", nil
	}

	var sb strings.Builder
	for i, c := range result {
		fmt.Fprintf(&sb, "[%d] %s", i+1, c.Source)
		if c.Page > 0 {
			fmt.Fprintf(&sb, ", page %d", c.Page)
		}
		fmt.Fprintf(&sb, " (score %.3f)\n%s\n\n", c.Score, c.Text)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}
