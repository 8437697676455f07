package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/54b3r/hrassist-go/internal/hris"
	"github.com/54b3r/hrassist-go/internal/rag"
)

type stubSearcher struct {
	result rag.RetrievalResult
	err    error
	gotK   int
}

func (s *stubSearcher) Retrieve(_ context.Context, _ string, k int) (rag.RetrievalResult, error) {
	s.gotK = k
	return s.result, s.err
}

func TestAll_NamesAndSchemas(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	want := []string{"policy_search", "check_pto_balance", "submit_leave_request"}

	got := All(&stubSearcher{}, hris.NewMock(), hris.DefaultEmployeeID, 0)
	if len(got) != len(want) {
		t.Fatalf("All returned %d tools, want %d", len(got), len(want))
	}
	for i, bt := range got {
		info, err := bt.Info(ctx)
		if err != nil {
			t.Fatalf("Info: %v", err)
		}
		if info.Name != want[i] {
			t.Errorf("tool %d = %q, want %q", i, info.Name, want[i])
		}
		if info.Desc == "" {
			t.Errorf("%s has no description", info.Name)
		}
	}
}

func TestPolicySearchTool(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := &stubSearcher{result: rag.RetrievalResult{
		{Chunk: rag.Chunk{Source: "handbook.pdf", Page: 4, Text: "Remote work requires manager approval."}, Score: 0.91},
		{Chunk: rag.Chunk{Source: "faq.md", Text: "Core hours are 10 to 3."}, Score: 0.72},
	}}
	tl := NewPolicySearchTool(s, 0)

	out, err := tl.InvokableRun(ctx, `{"query":"Can I work from home?"}`)
	if err != nil {
		t.Fatalf("InvokableRun: %v", err)
	}
	if s.gotK != rag.DefaultTopK {
		t.Errorf("k = %d, want %d", s.gotK, rag.DefaultTopK)
	}
	for _, want := range []string{"[1] handbook.pdf, page 4", "[2] faq.md (score", "Core hours"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, err = NewPolicySearchTool(&stubSearcher{}, 2).InvokableRun(ctx, `{"query":"parking"}`)
	if err != nil || !strings.Contains(out, "No relevant policy") {
		t.Errorf("empty result = %q, %v", out, err)
	}

	out, err = tl.InvokableRun(ctx, `{"query":"  "}`)
	if err != nil || !strings.Contains(out, "error") {
		t.Errorf("blank query = %q, %v", out, err)
	}

	failing := NewPolicySearchTool(&stubSearcher{err: errors.New("index down")}, 2)
	if _, err := failing.InvokableRun(ctx, `{"query":"x"}`); err == nil {
		t.Error("want error when retrieval fails")
	}
	if _, err := tl.InvokableRun(ctx, `not json`); err == nil {
		t.Error("want error for invalid JSON")
	}
}

func TestPTOBalanceTool(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tl := NewPTOBalanceTool(hris.NewMock(), hris.DefaultEmployeeID)

	tests := []struct {
		name    string
		args    string
		wantKey string
	}{
		{name: "default employee", args: `{}`, wantKey: "vacation"},
		{name: "explicit employee", args: `{"employee_id":"E1001"}`, wantKey: "vacation"},
		{name: "unknown employee", args: `{"employee_id":"E404"}`, wantKey: "error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			out, err := tl.InvokableRun(ctx, tc.args)
			if err != nil {
				t.Fatalf("InvokableRun: %v", err)
			}
			var got map[string]any
			if err := json.Unmarshal([]byte(out), &got); err != nil {
				t.Fatalf("output is not JSON: %q", out)
			}
			if _, ok := got[tc.wantKey]; !ok {
				t.Errorf("output %s has no %q key", out, tc.wantKey)
			}
		})
	}
}

func TestLeaveRequestTool(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mock := hris.NewMock()
	tl := NewLeaveRequestTool(mock, hris.DefaultEmployeeID)

	tests := []struct {
		name string
		args string
		want string
	}{
		{
			name: "vacation accepted",
			args: `{"start_date":"2026-12-21","end_date":"2026-12-24","leave_type":"Vacation"}`,
			want: `"status":"success"`,
		},
		{
			name: "sick rejected",
			args: `{"start_date":"2026-12-21","end_date":"2026-12-22","leave_type":"sick"}`,
			want: `"status":"error"`,
		},
		{
			name: "bad dates reported to the model",
			args: `{"start_date":"tomorrow","end_date":"2026-12-22","leave_type":"vacation"}`,
			want: `"error"`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := tl.InvokableRun(ctx, tc.args)
			if err != nil {
				t.Fatalf("InvokableRun: %v", err)
			}
			if !strings.Contains(out, tc.want) {
				t.Errorf("output %s does not contain %s", out, tc.want)
			}
		})
	}

	if got := len(mock.Submitted()); got != 1 {
		t.Errorf("accepted requests = %d, want 1", got)
	}
}
