package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/hrassist-go/internal/hris"
)

// PTOBalanceTool looks up an employee's remaining paid time off.
type PTOBalanceTool struct {
	client     hris.Client
	employeeID string
}

type balanceInput struct {
	EmployeeID string `json:"employee_id,omitempty"`
}

// NewPTOBalanceTool returns a tool that defaults to employeeID when the model
// supplies none.
func NewPTOBalanceTool(client hris.Client, employeeID string) *PTOBalanceTool {
	return &PTOBalanceTool{client: client, employeeID: employeeID}
}

// Name returns the tool name registered with the agent.
func (t *PTOBalanceTool) Name() string { return "check_pto_balance" }

// Description returns the LLM-facing description of this tool.
func (t *PTOBalanceTool) Description() string {
	return "Retrieves the employee's current paid time off (PTO) balance, " +
		"including vacation, sick, and casual days, from the HRIS."
}

// Info returns the Eino tool metadata including the JSON input schema.
func (t *PTOBalanceTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: t.Name(),
		Desc: t.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"employee_id": {
				Type: schema.String,
				Desc: fmt.Sprintf("Employee ID. Defaults to the current employee (%s).", t.employeeID),
			},
		}),
	}, nil
}

// InvokableRun returns the balance as JSON. An unknown employee is reported
// to the model as an error result.
func (t *PTOBalanceTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var input balanceInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return "", fmt.Errorf("check_pto_balance: invalid input: %w", err)
	}
	id := firstNonBlank(input.EmployeeID, t.employeeID)

	b, err := t.client.Balance(ctx, id)
	if errors.Is(err, hris.ErrEmployeeNotFound) {
		return toolError("Employee ID not found or API failure.")
	}
	if err != nil {
		return "", fmt.Errorf("check_pto_balance: %w", err)
	}
	return jsonResult(b)
}

// LeaveRequestTool submits a leave request for manager approval.
type LeaveRequestTool struct {
	client     hris.Client
	employeeID string
}

type leaveInput struct {
	EmployeeID string `json:"employee_id,omitempty"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	LeaveType  string `json:"leave_type"`
}

// NewLeaveRequestTool returns a tool that defaults to employeeID when the
// model supplies none.
func NewLeaveRequestTool(client hris.Client, employeeID string) *LeaveRequestTool {
	return &LeaveRequestTool{client: client, employeeID: employeeID}
}

// Name returns the tool name registered with the agent.
func (t *LeaveRequestTool) Name() string { return "submit_leave_request" }

// Description returns the LLM-facing description of this tool.
func (t *LeaveRequestTool) Description() string {
	return "Submits a formal leave request to the HRIS for manager approval. " +
		"Only call this when the employee explicitly asks to book leave and has given both dates."
}

// Info returns the Eino tool metadata including the JSON input schema.
func (t *LeaveRequestTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: t.Name(),
		Desc: t.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"employee_id": {
				Type: schema.String,
				Desc: fmt.Sprintf("Employee ID. Defaults to the current employee (%s).", t.employeeID),
			},
			"start_date": {
				Type:     schema.String,
				Desc:     "First day of leave, YYYY-MM-DD.",
				Required: true,
			},
			"end_date": {
				Type:     schema.String,
				Desc:     "Last day of leave, YYYY-MM-DD.",
				Required: true,
			},
			"leave_type": {
				Type:     schema.String,
				Desc:     "Kind of leave: vacation, sick, or casual.",
				Enum:     hris.LeaveTypes,
				Required: true,
			},
		}),
	}, nil
}

// InvokableRun validates and submits the request. Validation failures and
// HRIS rejections are returned to the model as results.
func (t *LeaveRequestTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var input leaveInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return "", fmt.Errorf("submit_leave_request: invalid input: %w", err)
	}
	req := hris.LeaveRequest{
		EmployeeID: firstNonBlank(input.EmployeeID, t.employeeID),
		StartDate:  strings.TrimSpace(input.StartDate),
		EndDate:    strings.TrimSpace(input.EndDate),
		LeaveType:  strings.ToLower(strings.TrimSpace(input.LeaveType)),
	}
	if err := req.Validate(); err != nil {
		return toolError(err.Error())
	}

	res, err := t.client.SubmitLeave(ctx, req)
	if err != nil {
		return "", fmt.Errorf("submit_leave_request: %w", err)
	}
	return jsonResult(res)
}

func firstNonBlank(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
