package store

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func Test_Store_AppendAndRecent(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, "alice", RoleUser, "How many sick days do I have?"); err != nil {
		t.Fatalf("append user: %v", err)
	}
	if err := s.Append(ctx, "alice", RoleAssistant, "You have 8 sick days."); err != nil {
		t.Fatalf("append assistant: %v", err)
	}

	msgs, err := s.Recent(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("want 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[1].Role != RoleAssistant {
		t.Errorf("roles = %s, %s; want user, assistant", msgs[0].Role, msgs[1].Role)
	}
	if msgs[0].CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func Test_Store_RecentTail(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	contents := []string{"one", "two", "three", "four", "five", "six"}
	for _, c := range contents {
		if err := s.Append(ctx, "bob", RoleUser, c); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	tests := []struct {
		n    int
		want []string
	}{
		{n: 4, want: []string{"three", "four", "five", "six"}},
		{n: 10, want: contents},
		{n: 0, want: nil},
		{n: -1, want: nil},
	}
	for _, tc := range tests {
		msgs, err := s.Recent(ctx, "bob", tc.n)
		if err != nil {
			t.Fatalf("recent(%d): %v", tc.n, err)
		}
		if len(msgs) != len(tc.want) {
			t.Fatalf("recent(%d) = %d messages, want %d", tc.n, len(msgs), len(tc.want))
		}
		for i, want := range tc.want {
			if msgs[i].Content != want {
				t.Errorf("recent(%d)[%d] = %q, want %q", tc.n, i, msgs[i].Content, want)
			}
		}
	}
}

func Test_Store_SessionIsolation(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	_ = s.Append(ctx, "x", RoleUser, "from x")
	_ = s.Append(ctx, "y", RoleUser, "from y")

	msgsX, err := s.Recent(ctx, "x", 10)
	if err != nil {
		t.Fatalf("recent x: %v", err)
	}
	if len(msgsX) != 1 || msgsX[0].Content != "from x" {
		t.Errorf("session x = %v", msgsX)
	}
}

func Test_Store_BlankSessionUsesDefault(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, "  ", RoleUser, "hi"); err != nil {
		t.Fatalf("append: %v", err)
	}
	msgs, err := s.Recent(ctx, DefaultSession, 5)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(msgs) != 1 {
		t.Errorf("default session has %d messages, want 1", len(msgs))
	}
}

func Test_Store_SessionsAndClear(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	_ = s.Append(ctx, "a", RoleUser, "1")
	_ = s.Append(ctx, "a", RoleAssistant, "2")
	_ = s.Append(ctx, "b", RoleUser, "3")

	sessions, err := s.Sessions(ctx)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	counts := map[string]int{}
	for _, sess := range sessions {
		counts[sess.ID] = sess.Messages
	}
	if counts["a"] != 2 || counts["b"] != 1 {
		t.Errorf("counts = %v", counts)
	}

	if err := s.Clear(ctx, "a"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	msgs, _ := s.Recent(ctx, "a", 10)
	if len(msgs) != 0 {
		t.Errorf("session a has %d messages after clear", len(msgs))
	}
}

func Test_Store_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Append(ctx, "c", RoleUser, "remember me"); err != nil {
		t.Fatalf("append: %v", err)
	}
	_ = s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	msgs, err := s.Recent(ctx, "c", 1)
	if err != nil || len(msgs) != 1 || msgs[0].Content != "remember me" {
		t.Errorf("after reopen = %v, %v", msgs, err)
	}
}
