package hris

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Mock is an in-memory HRIS seeded with DefaultEmployeeID. Only vacation
// requests are accepted, and every accepted request is kept for inspection.
type Mock struct {
	mu        sync.Mutex
	balances  map[string]Balance
	submitted []LeaveRequest
}

var _ Client = (*Mock)(nil)

// NewMock returns a Mock with the default employee record.
func NewMock() *Mock {
	return &Mock{
		balances: map[string]Balance{
			DefaultEmployeeID: {EmployeeID: DefaultEmployeeID, Vacation: 15, Sick: 8, Casual: 3},
		},
	}
}

// Balance returns the seeded balance or ErrEmployeeNotFound.
func (m *Mock) Balance(ctx context.Context, employeeID string) (Balance, error) {
	if err := ctx.Err(); err != nil {
		return Balance{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[employeeID]
	if !ok {
		return Balance{}, fmt.Errorf("%w: %s", ErrEmployeeNotFound, employeeID)
	}
	return b, nil
}

// SubmitLeave accepts vacation requests and rejects every other leave type.
func (m *Mock) SubmitLeave(ctx context.Context, req LeaveRequest) (LeaveResult, error) {
	if err := ctx.Err(); err != nil {
		return LeaveResult{}, err
	}
	if err := req.Validate(); err != nil {
		return LeaveResult{}, err
	}
	if !strings.EqualFold(req.LeaveType, "vacation") {
		return LeaveResult{Status: "error", Message: "Submission failed. Check dates."}, nil
	}

	m.mu.Lock()
	m.submitted = append(m.submitted, req)
	m.mu.Unlock()

	return LeaveResult{
		Status:  "success",
		Message: fmt.Sprintf("Vacation request for %s to %s submitted for approval.", req.StartDate, req.EndDate),
	}, nil
}

// Submitted returns a copy of the accepted requests.
func (m *Mock) Submitted() []LeaveRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LeaveRequest(nil), m.submitted...)
}
