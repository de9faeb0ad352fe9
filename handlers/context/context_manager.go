package contextmanager

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"senabot/core"
	llmevents "senabot/events/llm"
	sttevents "senabot/events/stt"
	transportevents "senabot/events/transport"
	vadevents "senabot/events/vad"
)

// EndCallToolId is handled by the aggregator itself instead of a registered
// tool handler: invoking it terminates the session.
const EndCallToolId = "end_call"

// ToolHandler executes one tool invocation and returns the result text that
// goes back into the conversation.
type ToolHandler func(params *map[string]any) (string, error)

// ContextManager owns the conversation history, the turn counter, and the
// registered tools. It is shared by the user-side and assistant-side
// aggregators that bracket the LLM stage.
type ContextManager struct {
	config ContextConfig
	logger *core.Logger

	mu           sync.Mutex
	context      core.LLMContext
	turns        core.TurnCounter
	toolHandlers map[string]ToolHandler
	introduced   bool
}

func NewContextManager(config ContextConfig, logger *core.Logger) *ContextManager {
	if logger == nil {
		logger = core.GetLogger()
	}
	m := &ContextManager{
		config:       config,
		logger:       logger,
		toolHandlers: make(map[string]ToolHandler),
	}
	if config.SystemInstruction != "" {
		m.context.AddSystemMessage(config.SystemInstruction)
	}
	if config.InitialBotMessage != "" {
		m.context.AddAssistantMessage(config.InitialBotMessage)
	}
	return m
}

// SetContext replaces the conversation wholesale. Used to seed scripted
// openings before the session starts.
func (m *ContextManager) SetContext(ctx core.LLMContext) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.context = ctx
}

// RegisterToolHandler exposes a tool to the model and binds its executor.
func (m *ContextManager) RegisterToolHandler(tool core.LLMTool, handler ToolHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.context.Tools = append(m.context.Tools, tool)
	m.toolHandlers[tool.ToolId] = handler
}

// Snapshot returns a deep copy of the conversation safe for a concurrent
// generation.
func (m *ContextManager) Snapshot() core.LLMContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.context.Clone()
}

// Turns exposes the session turn counter.
func (m *ContextManager) Turns() *core.TurnCounter {
	return &m.turns
}

func (m *ContextManager) GetUserContextAggregator() *UserContextAggregator {
	return &UserContextAggregator{
		BaseHandler: *core.NewBaseHandler(&noopService{}, nil, m.logger),
		manager:     m,
	}
}

func (m *ContextManager) GetAssistantContextAggregator() *AssistantContextAggregator {
	return &AssistantContextAggregator{
		BaseHandler: *core.NewBaseHandler(&noopService{}, nil, m.logger),
		manager:     m,
	}
}

// UserContextAggregator appends finalized user transcripts to the
// conversation and mints a fresh turn for each generation it triggers. It is
// the only place turns are minted, so a newer user utterance always
// supersedes everything in flight.
type UserContextAggregator struct {
	core.BaseHandler
	manager *ContextManager
}

func (h *UserContextAggregator) Initialize(
	inputChan <-chan *core.EventPacket,
	outputNextChan chan<- *core.EventPacket,
	outputTopChan chan<- *core.EventPacket,
	ctx context.Context,
) error {
	if err := h.BaseHandler.Initialize(inputChan, outputNextChan, outputTopChan, ctx); err != nil {
		return err
	}
	h.SetHandleEventFunc(h.HandleEvent)
	return nil
}

func (h *UserContextAggregator) HandleEvent(packet *core.EventPacket) error {
	switch event := packet.Event.(type) {
	case *sttevents.STTFinalOutputEvent:
		text := strings.TrimSpace(event.Text)
		if text == "" {
			return nil
		}
		m := h.manager
		m.mu.Lock()
		m.context.AddUserMessage(text)
		snapshot := m.context.Clone()
		m.mu.Unlock()
		turn := m.turns.Mint()

		h.Logger.With(map[string]any{"turn": turn, "text": text}).Info("user turn committed")
		h.SendPacket(core.NewEventPacket(&llmevents.LLMGenerateResponseEvent{
			Context: snapshot,
			Turn:    turn,
		}, core.EventRelayDestinationNextService, "UserContextAggregator"))
		return nil

	case *transportevents.ClientConnectedEvent:
		h.triggerIntroduction()
	}

	h.SendPacket(packet)
	return nil
}

func (h *UserContextAggregator) triggerIntroduction() {
	m := h.manager
	if m.config.IntroductionTrigger == "" {
		return
	}

	m.mu.Lock()
	if m.introduced {
		m.mu.Unlock()
		return
	}
	m.introduced = true
	m.context.AddUserMessage(m.config.IntroductionTrigger)
	snapshot := m.context.Clone()
	m.mu.Unlock()
	turn := m.turns.Mint()

	h.Logger.With(map[string]any{"turn": turn}).Info("triggering introduction")
	h.SendPacket(core.NewEventPacket(&llmevents.LLMGenerateResponseEvent{
		Context: snapshot,
		Turn:    turn,
	}, core.EventRelayDestinationNextService, "UserContextAggregator"))
}

// AssistantContextAggregator accumulates streamed reply chunks and commits
// the full reply to the conversation once the generation for the live turn
// completes. It also executes tool invocations and feeds their results back
// into a follow-up generation on the same turn.
type AssistantContextAggregator struct {
	core.BaseHandler
	manager *ContextManager

	mu       sync.Mutex
	replyBuf strings.Builder
	bufTurn  uint64
}

func (h *AssistantContextAggregator) Initialize(
	inputChan <-chan *core.EventPacket,
	outputNextChan chan<- *core.EventPacket,
	outputTopChan chan<- *core.EventPacket,
	ctx context.Context,
) error {
	if err := h.BaseHandler.Initialize(inputChan, outputNextChan, outputTopChan, ctx); err != nil {
		return err
	}
	h.SetHandleEventFunc(h.HandleEvent)
	return nil
}

func (h *AssistantContextAggregator) HandleEvent(packet *core.EventPacket) error {
	m := h.manager

	switch event := packet.Event.(type) {
	case *llmevents.LLMResponseStartedEvent:
		if m.turns.IsStale(event.Turn) {
			return nil
		}
		h.mu.Lock()
		h.replyBuf.Reset()
		h.bufTurn = event.Turn
		h.mu.Unlock()

	case *llmevents.LLMResponseChunkEvent:
		if m.turns.IsStale(event.Turn) {
			return nil
		}
		h.mu.Lock()
		if h.bufTurn == event.Turn {
			h.replyBuf.WriteString(event.Chunk)
		}
		h.mu.Unlock()

	case *llmevents.LLMResponseCompletedEvent:
		if m.turns.IsStale(event.Turn) {
			return nil
		}
		text := event.FullText
		if text == "" {
			h.mu.Lock()
			text = h.replyBuf.String()
			h.mu.Unlock()
		}
		if strings.TrimSpace(text) != "" {
			m.mu.Lock()
			m.context.AddAssistantMessage(text)
			m.mu.Unlock()
		}
		h.mu.Lock()
		h.replyBuf.Reset()
		h.bufTurn = 0
		h.mu.Unlock()

	case *llmevents.LLMToolInvocationRequestedEvent:
		if m.turns.IsStale(event.Turn) {
			return nil
		}
		return h.invokeTool(event)

	case *vadevents.VadInterruptionDetectedEvent:
		h.mu.Lock()
		h.replyBuf.Reset()
		h.bufTurn = 0
		h.mu.Unlock()
	}

	h.SendPacket(packet)
	return nil
}

func (h *AssistantContextAggregator) invokeTool(event *llmevents.LLMToolInvocationRequestedEvent) error {
	m := h.manager

	if event.ToolId == EndCallToolId {
		h.Logger.With(map[string]any{"turn": event.Turn}).Info("model requested call end")
		h.SendPacket(core.NewEventPacket(&core.EndCallEvent{Reason: "tool"}, core.EventRelayDestinationTopService, "AssistantContextAggregator"))
		return nil
	}

	m.mu.Lock()
	handler, ok := m.toolHandlers[event.ToolId]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("no handler registered for tool %q", event.ToolId)
	}

	result, err := handler(event.Params)
	if err != nil {
		h.Logger.With(map[string]any{"tool": event.ToolId, "error": err}).Warn("tool invocation failed")
		result = fmt.Sprintf("tool %s failed: %v", event.ToolId, err)
	}

	m.mu.Lock()
	m.context.AddToolMessage(result)
	snapshot := m.context.Clone()
	m.mu.Unlock()

	h.SendPacket(core.NewEventPacket(&llmevents.LLMToolInvocationResultEvent{
		ToolId: event.ToolId,
		Result: result,
		Turn:   event.Turn,
	}, core.EventRelayDestinationNextService, "AssistantContextAggregator"))

	// Feed the tool result back for a follow-up generation on the same turn.
	// The runner echoes top-bound non-control events into the head of the
	// pipeline, which relays this back down to the LLM stage.
	h.SendPacket(core.NewEventPacket(&llmevents.LLMGenerateResponseEvent{
		Context: snapshot,
		Turn:    event.Turn,
	}, core.EventRelayDestinationTopService, "AssistantContextAggregator"))
	return nil
}

type noopService struct{}

func (s *noopService) Initialize(context.Context) error { return nil }
func (s *noopService) Cleanup() error                   { return nil }
func (s *noopService) Reset() error                     { return nil }
