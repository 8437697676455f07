package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/54b3r/hrassist-go/internal/hris"
)

// AskInput is the input schema for ask_policy.
type AskInput struct {
	Question string `json:"question" jsonschema:"the employee's HR policy question"`
	TopK     int    `json:"top_k,omitempty" jsonschema:"number of policy excerpts to retrieve (default 3)"`
}

// AskOutput is the output schema for ask_policy.
type AskOutput struct {
	Answer   string         `json:"answer"`
	Grounded bool           `json:"grounded"`
	Sources  []SourceOutput `json:"sources"`
}

// SourceOutput is one policy excerpt the answer was drawn from.
type SourceOutput struct {
	Source  string  `json:"source"`
	Page    int     `json:"page,omitempty"`
	Score   float32 `json:"score"`
	Excerpt string  `json:"excerpt"`
}

// BalanceInput is the input schema for check_pto_balance.
type BalanceInput struct {
	EmployeeID string `json:"employee_id,omitempty" jsonschema:"employee ID; defaults to the configured employee"`
}

// LeaveInput is the input schema for submit_leave_request.
type LeaveInput struct {
	EmployeeID string `json:"employee_id,omitempty" jsonschema:"employee ID; defaults to the configured employee"`
	StartDate  string `json:"start_date" jsonschema:"first day of leave, YYYY-MM-DD"`
	EndDate    string `json:"end_date" jsonschema:"last day of leave, YYYY-MM-DD"`
	LeaveType  string `json:"leave_type" jsonschema:"vacation, sick, or casual"`
}

// maxExcerpt bounds each excerpt returned to the client, in runes.
const maxExcerpt = 500

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask_policy",
		Description: "Answer an HR policy question using only the ingested policy documents, with the excerpts used as sources",
	}, s.handleAsk)

	if s.deps.HRIS == nil {
		return
	}
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "check_pto_balance",
		Description: "Look up an employee's remaining vacation, sick, and casual days in the HRIS",
	}, s.handleBalance)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "submit_leave_request",
		Description: "Submit a leave request to the HRIS for manager approval",
	}, s.handleLeave)
}

func (s *Server) handleAsk(ctx context.Context, _ *mcp.CallToolRequest, in AskInput) (*mcp.CallToolResult, AskOutput, error) {
	k := in.TopK
	if k <= 0 {
		k = s.deps.TopK
	}
	answer, err := s.deps.Policy.Answer(ctx, in.Question, k)
	if err != nil {
		s.log.Error("mcp: ask_policy failed", slog.Any("error", err))
		return nil, AskOutput{}, err
	}

	out := AskOutput{
		Answer:   answer.Text,
		Grounded: answer.Grounded,
		Sources:  make([]SourceOutput, len(answer.Sources)),
	}
	for i, src := range answer.Sources {
		out.Sources[i] = SourceOutput{
			Source:  src.Source,
			Page:    src.Page,
			Score:   src.Score,
			Excerpt: truncate(src.Text, maxExcerpt),
		}
	}
	return nil, out, nil
}

func (s *Server) handleBalance(ctx context.Context, _ *mcp.CallToolRequest, in BalanceInput) (*mcp.CallToolResult, hris.Balance, error) {
	id := s.employee(in.EmployeeID)
	b, err := s.deps.HRIS.Balance(ctx, id)
	if errors.Is(err, hris.ErrEmployeeNotFound) {
		return nil, hris.Balance{}, fmt.Errorf("employee %q not found", id)
	}
	if err != nil {
		return nil, hris.Balance{}, err
	}
	return nil, b, nil
}

// handleLeave validates before submitting. An HRIS rejection is a normal
// result with status "error".
func (s *Server) handleLeave(ctx context.Context, _ *mcp.CallToolRequest, in LeaveInput) (*mcp.CallToolResult, hris.LeaveResult, error) {
	req := hris.LeaveRequest{
		EmployeeID: s.employee(in.EmployeeID),
		StartDate:  strings.TrimSpace(in.StartDate),
		EndDate:    strings.TrimSpace(in.EndDate),
		LeaveType:  strings.ToLower(strings.TrimSpace(in.LeaveType)),
	}
	if err := req.Validate(); err != nil {
		return nil, hris.LeaveResult{}, err
	}
	res, err := s.deps.HRIS.SubmitLeave(ctx, req)
	if err != nil {
		return nil, hris.LeaveResult{}, err
	}
	s.log.Info("mcp: leave request submitted",
		slog.String("employee", req.EmployeeID),
		slog.String("status", res.Status),
	)
	return nil, res, nil
}

func (s *Server) employee(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return s.deps.EmployeeID
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
