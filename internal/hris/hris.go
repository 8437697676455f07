// Package hris provides access to the HR information system: PTO balances
// and leave request submission. A mock backend serves development and demos;
// the HTTP backend is used when HRIS_API_URL is configured.
package hris

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultEmployeeID is the employee the mock backend knows about and the
// identity assumed when no session identity is available.
const DefaultEmployeeID = "E1001"

// dateLayout is the ISO date format leave requests use.
const dateLayout = "2006-01-02"

// ErrEmployeeNotFound is returned when the HRIS has no record for an employee.
var ErrEmployeeNotFound = errors.New("hris: employee not found")

// LeaveTypes lists the leave kinds a request may name.
var LeaveTypes = []string{"vacation", "sick", "casual"}

var validate = newValidator()

// newValidator reports fields by their JSON names and adds the leavetype
// rule, which matches LeaveTypes case-insensitively.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	if err := v.RegisterValidation("leavetype", func(fl validator.FieldLevel) bool {
		return slices.Contains(LeaveTypes, strings.ToLower(fl.Field().String()))
	}); err != nil {
		panic(err)
	}
	return v
}

// Balance is an employee's remaining paid time off, in days.
type Balance struct {
	EmployeeID string `json:"employeeId"`
	Vacation   int    `json:"vacation"`
	Sick       int    `json:"sick"`
	Casual     int    `json:"casual"`
}

// LeaveRequest is a request for time off submitted for manager approval.
type LeaveRequest struct {
	EmployeeID string `json:"employeeId" validate:"required"`
	StartDate  string `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate    string `json:"endDate" validate:"required,datetime=2006-01-02"`
	LeaveType  string `json:"leaveType" validate:"required,leavetype"`
}

// Validate checks the request fields before submission. The error names
// the first offending field.
func (r LeaveRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return describeValidation(err)
	}
	start, _ := time.Parse(dateLayout, r.StartDate)
	end, _ := time.Parse(dateLayout, r.EndDate)
	if end.Before(start) {
		return fmt.Errorf("hris: end date %s is before start date %s", r.EndDate, r.StartDate)
	}
	return nil
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("hris: %w", err)
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("hris: %s is required", fe.Field())
	case "datetime":
		return fmt.Errorf("hris: %s %q must be YYYY-MM-DD", fe.Field(), fe.Value())
	case "leavetype":
		return fmt.Errorf("hris: leave type %q must be one of %s", fe.Value(), strings.Join(LeaveTypes, ", "))
	}
	return fmt.Errorf("hris: %s failed %s", fe.Field(), fe.Tag())
}

// LeaveResult is the HRIS response to a leave request. A rejected request is
// a result with Status "error", not a Go error.
type LeaveResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Accepted reports whether the HRIS accepted the request.
func (r LeaveResult) Accepted() bool { return r.Status == "success" }

// Client is the HRIS surface used by the agent tools.
type Client interface {
	// Balance returns the PTO balance for employeeID.
	Balance(ctx context.Context, employeeID string) (Balance, error)

	// SubmitLeave submits req for approval.
	SubmitLeave(ctx context.Context, req LeaveRequest) (LeaveResult, error)
}

// NewFromEnv returns the HTTP client when HRIS_API_URL is set and the mock
// otherwise.
func NewFromEnv(log *slog.Logger) Client {
	if u := os.Getenv("HRIS_API_URL"); u != "" {
		log.Info("hris: using HTTP backend", "url", u)
		return NewHTTPClient(u, os.Getenv("HRIS_API_KEY"))
	}
	log.Info("hris: HRIS_API_URL not set, using mock backend")
	return NewMock()
}

// EmployeeIDFromEnv returns HRIS_EMPLOYEE_ID or DefaultEmployeeID.
func EmployeeIDFromEnv() string {
	if id := os.Getenv("HRIS_EMPLOYEE_ID"); id != "" {
		return id
	}
	return DefaultEmployeeID
}
