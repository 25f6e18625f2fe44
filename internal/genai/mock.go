package genai

import (
	"context"
	"strings"

	"github.com/openai/openai-go"
)

// MockClient is a mock implementation of ClientInterface for testing.
type MockClient struct {
	// Reply is returned from every generation call when Err is nil.
	Reply string
	// Err, when set, is returned from every generation call.
	Err error

	// SystemPrompts records the system prompt of each call, in order.
	SystemPrompts []string
	// UserPrompts records the final user message of each call, in order.
	UserPrompts []string
}

// GeneratePrompt records the prompts and returns the configured reply.
func (m *MockClient) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	m.SystemPrompts = append(m.SystemPrompts, systemPrompt)
	m.UserPrompts = append(m.UserPrompts, userPrompt)
	return m.Reply, nil
}

// GenerateWithMessages records the first system message and last user
// message from the array and returns the configured reply.
func (m *MockClient) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	var system, user string
	for _, msg := range messages {
		if sys := msg.OfSystem; sys != nil {
			if system == "" {
				system = sys.Content.OfString.Value
			}
			continue
		}
		if u := msg.OfUser; u != nil {
			user = u.Content.OfString.Value
		}
	}
	m.SystemPrompts = append(m.SystemPrompts, system)
	m.UserPrompts = append(m.UserPrompts, user)
	return m.Reply, nil
}

// LastSystemPrompt returns the system prompt of the most recent call, or "".
func (m *MockClient) LastSystemPrompt() string {
	if len(m.SystemPrompts) == 0 {
		return ""
	}
	return m.SystemPrompts[len(m.SystemPrompts)-1]
}

// SystemPromptContains reports whether the most recent system prompt
// contains the given substring.
func (m *MockClient) SystemPromptContains(substr string) bool {
	return strings.Contains(m.LastSystemPrompt(), substr)
}
