// Package agent wires the Eino ReAct agent to the HR tools to form the
// conversational HR assistant. The agent decides per turn whether the
// employee needs a personalised HRIS action (PTO balance, leave submission)
// or a general policy answer, calls the matching tool, and responds once the
// tool steps are complete.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/hrassist-go/internal/budget"
	"github.com/54b3r/hrassist-go/internal/logging"
	"github.com/54b3r/hrassist-go/internal/store"
)

// systemPromptTemplate is formatted with the current employee ID and date.
const systemPromptTemplate = `You are the HR Assistant Agent. Your role is to provide quick, accurate, and
confidential support to employees. Your primary goal is to determine the
user's intent:

1. Personalised action (HRIS tools): if the user asks about their own PTO,
   wants to submit leave, or asks for other personal data, ALWAYS use the
   matching HRIS tool (check_pto_balance, submit_leave_request). The current
   employee ID is %s.
2. General policy: if the user asks about company rules, benefits, or
   procedures, ALWAYS use the policy_search tool and base your answer only on
   the excerpts it returns. Cite excerpts by their [n] label. If the excerpts
   do not cover the question, say that the policy documents do not cover it.

Never invent balances, dates, or policy text. Ask for missing leave dates
instead of guessing them. Today is %s.

Answer concisely and clearly. Do not produce a final answer until the
necessary tool steps are complete.`

const (
	// defaultMaxIterations bounds tool-call rounds per turn.
	defaultMaxIterations = 15
	// defaultHistoryDepth is the number of prior user+assistant pairs replayed.
	defaultHistoryDepth = 10
)

// Config holds the dependencies required to construct an HRAgent.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	ChatModel model.ToolCallingChatModel

	// Tools is the tool set available to the agent (see tools.All).
	Tools []tool.BaseTool

	// EmployeeID is the identity the agent acts for.
	EmployeeID string

	// History is the optional conversation store. If nil, each query is
	// stateless.
	History store.ConversationStore

	// HistoryDepth is the number of prior turns (user+assistant pairs) to
	// inject per query. Defaults to 10 if zero.
	HistoryDepth int

	// MaxContextTokens is the estimated token budget for system prompt,
	// history and user message. History is trimmed oldest-first to fit.
	// Defaults to budget.DefaultMaxContextTokens if zero.
	MaxContextTokens int

	// MaxIterations bounds model↔tool rounds per turn. Defaults to 15.
	MaxIterations int

	// Now returns the current time for the system prompt. Defaults to time.Now.
	Now func() time.Time
}

// HRAgent wraps the Eino ReAct agent with HR-specific prompting and
// session-scoped history.
type HRAgent struct {
	reactAgent       *react.Agent
	employeeID       string
	history          store.ConversationStore
	historyDepth     int
	maxContextTokens int
	now              func() time.Time
}

// New constructs an HRAgent from cfg.
func New(ctx context.Context, cfg *Config) (*HRAgent, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("agent: ChatModel must not be nil")
	}
	if strings.TrimSpace(cfg.EmployeeID) == "" {
		return nil, fmt.Errorf("agent: EmployeeID must not be empty")
	}

	iterations := cfg.MaxIterations
	if iterations <= 0 {
		iterations = defaultMaxIterations
	}

	reactAgent, err := react.NewAgent(ctx, &react.AgentConfig{
		ToolCallingModel: cfg.ChatModel,
		ToolsConfig: compose.ToolsNodeConfig{
			Tools: cfg.Tools,
		},
		// Each round is one model node and one tools node, plus the final answer.
		MaxStep: iterations*2 + 1,
	})
	if err != nil {
		return nil, fmt.Errorf("agent: failed to create ReAct agent: %w", err)
	}

	depth := cfg.HistoryDepth
	if depth <= 0 {
		depth = defaultHistoryDepth
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &HRAgent{
		reactAgent:       reactAgent,
		employeeID:       cfg.EmployeeID,
		history:          cfg.History,
		historyDepth:     depth,
		maxContextTokens: maxCtx,
		now:              now,
	}, nil
}

// Query runs one agent turn for session. Content chunks are written to w as
// they stream in; the full reply is returned. When a history store is
// configured, prior turns are replayed and the new pair is persisted after a
// successful reply.
func (a *HRAgent) Query(ctx context.Context, session, userMessage string, w io.Writer) (string, error) {
	if strings.TrimSpace(userMessage) == "" {
		return "", fmt.Errorf("agent: message must not be empty")
	}
	session = store.SessionOrDefault(session)
	log := logging.FromContext(ctx)

	messages := a.buildMessages(ctx, session, userMessage)

	sr, err := a.reactAgent.Stream(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("agent: stream failed: %w", err)
	}
	defer sr.Close()

	var reply strings.Builder
	for {
		msg, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return reply.String(), fmt.Errorf("agent: stream receive error: %w", err)
		}
		if msg == nil || msg.Content == "" {
			continue
		}
		reply.WriteString(msg.Content)
		if _, err := io.WriteString(w, msg.Content); err != nil {
			return reply.String(), fmt.Errorf("agent: write error: %w", err)
		}
	}

	answer := reply.String()
	if strings.TrimSpace(answer) == "" {
		return "", fmt.Errorf("agent: model returned an empty reply")
	}

	if a.history != nil {
		if err := a.history.Append(ctx, session, store.RoleUser, userMessage); err != nil {
			log.Warn("history: failed to persist user message", slog.Any("error", err))
		}
		if err := a.history.Append(ctx, session, store.RoleAssistant, answer); err != nil {
			log.Warn("history: failed to persist assistant message", slog.Any("error", err))
		}
	}
	return answer, nil
}

// buildMessages assembles [system, ...history, user], trimming history
// oldest-first to the token budget.
func (a *HRAgent) buildMessages(ctx context.Context, session, userMessage string) []*schema.Message {
	log := logging.FromContext(ctx)
	system := schema.SystemMessage(fmt.Sprintf(systemPromptTemplate, a.employeeID, a.now().Format("Monday, 2006-01-02")))
	user := schema.UserMessage(userMessage)

	var historyMsgs []*schema.Message
	if a.history != nil {
		prior, err := a.history.Recent(ctx, session, a.historyDepth*2)
		if err != nil {
			log.Warn("history: failed to load prior messages", slog.Any("error", err))
		}
		for _, m := range prior {
			switch m.Role {
			case store.RoleUser:
				historyMsgs = append(historyMsgs, schema.UserMessage(m.Content))
			case store.RoleAssistant:
				historyMsgs = append(historyMsgs, schema.AssistantMessage(m.Content, nil))
			}
		}
	}

	before := len(historyMsgs)
	historyMsgs = budget.TrimHistory([]*schema.Message{system, user}, historyMsgs, a.maxContextTokens)
	if dropped := before - len(historyMsgs); dropped > 0 {
		log.Warn("budget: dropped history messages to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(historyMsgs)),
			slog.Int("max_tokens", a.maxContextTokens),
		)
	}

	out := make([]*schema.Message, 0, len(historyMsgs)+2)
	out = append(out, system)
	out = append(out, historyMsgs...)
	return append(out, user)
}
