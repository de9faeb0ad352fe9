package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"senabot/core"

	"github.com/bytedance/sonic"
	openai "github.com/sashabaranov/go-openai"
)

type Config struct {
	APIKey      string  `json:"api_key"`
	BaseURL     string  `json:"base_url"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float32 `json:"temperature"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() Config {
	return Config{
		Model:       openai.GPT4oMini,
		MaxTokens:   512,
		Temperature: 0.7,
	}
}

// OpenAILLMService streams chat completions from OpenAI or any
// OpenAI-compatible endpoint (Groq, Together, Mistral and friends via
// BaseURL).
type OpenAILLMService struct {
	config Config
	logger *core.Logger
	client *openai.Client

	mu        sync.Mutex
	ctx       context.Context
	runCancel context.CancelFunc
}

func NewOpenAILLMService(config Config, logger *core.Logger) *OpenAILLMService {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &OpenAILLMService{
		config: config,
		logger: logger,
	}
}

func (s *OpenAILLMService) Initialize(ctx context.Context) error {
	if s.config.APIKey == "" {
		return errors.New("openai: missing API key")
	}
	clientConfig := openai.DefaultConfig(s.config.APIKey)
	if s.config.BaseURL != "" {
		clientConfig.BaseURL = s.config.BaseURL
	}
	s.client = openai.NewClientWithConfig(clientConfig)
	s.ctx = ctx
	return nil
}

func (s *OpenAILLMService) Cleanup() error {
	return s.Reset()
}

// Reset cancels the in-flight completion, if any.
func (s *OpenAILLMService) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCancel != nil {
		s.runCancel()
		s.runCancel = nil
	}
	return nil
}

func (s *OpenAILLMService) RunCompletion(
	llmContext core.LLMContext,
	chunkChan chan<- string,
	toolCallChan chan<- core.LLMToolCall,
	fatalChan chan<- error,
	doneChan chan<- bool,
) error {
	if s.client == nil {
		return errors.New("openai: service not initialized")
	}

	request := openai.ChatCompletionRequest{
		Model:       s.config.Model,
		Messages:    buildMessages(llmContext.Messages),
		Tools:       buildTools(llmContext.Tools),
		MaxTokens:   s.config.MaxTokens,
		Temperature: s.config.Temperature,
		Stream:      true,
	}

	s.mu.Lock()
	if s.runCancel != nil {
		s.runCancel()
	}
	runCtx, cancel := context.WithCancel(s.ctx)
	s.runCancel = cancel
	s.mu.Unlock()

	go s.streamCompletion(runCtx, request, chunkChan, toolCallChan, fatalChan, doneChan)
	return nil
}

func (s *OpenAILLMService) streamCompletion(
	ctx context.Context,
	request openai.ChatCompletionRequest,
	chunkChan chan<- string,
	toolCallChan chan<- core.LLMToolCall,
	fatalChan chan<- error,
	doneChan chan<- bool,
) {
	stream, err := s.client.CreateChatCompletionStream(ctx, request)
	if err != nil {
		if ctx.Err() == nil {
			fatalChan <- fmt.Errorf("openai: create stream: %w", err)
		}
		return
	}
	defer stream.Close()

	toolCalls := map[int]*pendingToolCall{}

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return // cancelled
			}
			fatalChan <- fmt.Errorf("openai: stream: %w", err)
			return
		}
		if len(response.Choices) == 0 {
			continue
		}

		delta := response.Choices[0].Delta
		if delta.Content != "" {
			select {
			case chunkChan <- delta.Content:
			case <-ctx.Done():
				return
			}
		}
		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			pending, ok := toolCalls[idx]
			if !ok {
				pending = &pendingToolCall{}
				toolCalls[idx] = pending
			}
			if tc.Function.Name != "" {
				pending.name += tc.Function.Name
			}
			pending.arguments += tc.Function.Arguments
		}
	}

	for _, pending := range toolCalls {
		call, err := pending.toToolCall()
		if err != nil {
			s.logger.With(map[string]any{"tool": pending.name, "error": err}).Warn("dropping malformed tool call")
			continue
		}
		select {
		case toolCallChan <- call:
		case <-ctx.Done():
			return
		}
	}

	select {
	case doneChan <- true:
	case <-ctx.Done():
	}
}

type pendingToolCall struct {
	name      string
	arguments string
}

func (p *pendingToolCall) toToolCall() (core.LLMToolCall, error) {
	call := core.LLMToolCall{ToolId: p.name}
	if p.arguments != "" {
		params := map[string]any{}
		if err := sonic.Unmarshal([]byte(p.arguments), &params); err != nil {
			return call, fmt.Errorf("parse tool arguments: %w", err)
		}
		call.Parameters = &params
	}
	return call, nil
}

func buildMessages(messages []core.LLMMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		role := openai.ChatMessageRoleUser
		switch msg.Role {
		case core.LLMMessageRoleAssistant:
			role = openai.ChatMessageRoleAssistant
		case core.LLMMessageRoleSystem:
			role = openai.ChatMessageRoleSystem
		case core.LLMMessageRoleTool:
			// Tool results go back as user-visible context; the simplified
			// history does not track tool call ids.
			role = openai.ChatMessageRoleUser
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: msg.Message})
	}
	return out
}

func buildTools(tools []core.LLMTool) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(tools))
	for _, tool := range tools {
		properties := map[string]any{}
		required := []string{}
		for _, param := range tool.Parameters {
			properties[param.Name] = map[string]any{
				"type":        string(param.Type),
				"description": param.Description,
			}
			if param.Required {
				required = append(required, param.Name)
			}
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.ToolId,
				Description: tool.Description,
				Parameters: map[string]any{
					"type":       "object",
					"properties": properties,
					"required":   required,
				},
			},
		})
	}
	return out
}
