package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mindscope/internal/config"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

// LLMResponder generates replies through a configured chat model. When
// search tools are available a react agent routes the call so the model can
// look up support resources.
type LLMResponder struct {
	chatModel model.ToolCallingChatModel
	agent     *react.Agent
}

// NewLLMResponder builds the responder for the named provider entry.
func NewLLMResponder(ctx context.Context, cfg *config.Config, provider string) (*LLMResponder, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	provCfg, ok := cfg.Providers[provider]
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", provider)
	}

	var (
		chatModel model.ToolCallingChatModel
		err       error
	)
	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   provCfg.Model,
			APIKey:  provCfg.APIKey,
		})
	case "gemini":
		var client *genai.Client
		client, err = genai.NewClient(ctx, &genai.ClientConfig{APIKey: provCfg.APIKey})
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  provCfg.Model,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     provCfg.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: 3000,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}

	resp := &LLMResponder{chatModel: chatModel}
	if tools := initSupportTools(ctx); len(tools) > 0 {
		agent, err := react.NewAgent(ctx, &react.AgentConfig{
			ToolCallingModel: chatModel,
			ToolsConfig: compose.ToolsNodeConfig{
				Tools: tools,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("init react agent: %w", err)
		}
		resp.agent = agent
	}
	return resp, nil
}

// Reply runs one generation over the session history plus the prepared
// prompt for this turn.
func (r *LLMResponder) Reply(ctx context.Context, history []Exchange, prompt string) (string, error) {
	messages := make([]*schema.Message, 0, len(history)+1)
	for _, ex := range history {
		role := schema.User
		if ex.Role == "assistant" {
			role = schema.Assistant
		}
		messages = append(messages, &schema.Message{Role: role, Content: ex.Content})
	}
	messages = append(messages, schema.UserMessage(prompt))

	var (
		out *schema.Message
		err error
	)
	if r.agent != nil {
		out, err = r.agent.Generate(ctx, messages)
	} else {
		out, err = r.chatModel.Generate(ctx, messages)
	}
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return "", errors.New("model returned empty reply")
	}
	return out.Content, nil
}
