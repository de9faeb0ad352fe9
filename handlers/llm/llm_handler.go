package llm

import (
	"context"
	"strings"
	"sync"

	"senabot/core"
	llmevents "senabot/events/llm"
	vadevents "senabot/events/vad"
)

// LLMService streams one completion at a time. RunCompletion must not block:
// it starts the request and delivers output on the given channels until the
// stream finishes or Reset cancels it. doneChan receives exactly one value
// per completed (not cancelled) run.
type LLMService interface {
	core.IService
	RunCompletion(
		llmContext core.LLMContext,
		chunkChan chan<- string,
		toolCallChan chan<- core.LLMToolCall,
		fatalChan chan<- error,
		doneChan chan<- bool,
	) error
}

// LLMHandler drives response generation. Each generation gets its own output
// channels and pump goroutine, both bound to the turn the generation was
// requested for, so output a superseded or cancelled run already produced can
// never be attributed to a later turn.
type LLMHandler struct {
	core.BaseHandler
	config LLMConfig

	mu         sync.Mutex
	activeTurn uint64
	discarding bool
	generating bool
}

func NewLLMHandler(service LLMService, backupServices []core.IService, config LLMConfig, logger *core.Logger) *LLMHandler {
	return &LLMHandler{
		BaseHandler: *core.NewBaseHandler(service, backupServices, logger),
		config:      config,
	}
}

func (h *LLMHandler) Initialize(
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

// live reports whether output produced for the given turn should still be
// emitted.
func (h *LLMHandler) live(turn uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return turn == h.activeTurn && !h.discarding
}

// pumpOutput drains one generation's channels. turn is fixed at the minting
// turn for the whole run: output from a run that has been superseded or
// cancelled fails the liveness check and is dropped, never re-tagged.
func (h *LLMHandler) pumpOutput(
	turn uint64,
	chunkChan <-chan string,
	toolCallChan <-chan core.LLMToolCall,
	doneChan <-chan bool,
) {
	var fullText strings.Builder
	for {
		select {
		case chunk := <-chunkChan:
			if !h.live(turn) {
				continue
			}
			fullText.WriteString(chunk)
			h.SendPacket(core.NewEventPacket(&llmevents.LLMResponseChunkEvent{
				Chunk: chunk,
				Turn:  turn,
			}, core.EventRelayDestinationNextService, "LLMHandler"))

		case toolCall := <-toolCallChan:
			if !h.live(turn) {
				continue
			}
			h.SendPacket(core.NewEventPacket(&llmevents.LLMToolInvocationRequestedEvent{
				ToolId: toolCall.ToolId,
				Params: toolCall.Parameters,
				Turn:   turn,
			}, core.EventRelayDestinationNextService, "LLMHandler"))

		case <-doneChan:
			h.mu.Lock()
			emit := turn == h.activeTurn && !h.discarding
			if turn == h.activeTurn {
				h.generating = false
			}
			h.mu.Unlock()
			if emit {
				h.SendPacket(core.NewEventPacket(&llmevents.LLMResponseCompletedEvent{
					FullText: fullText.String(),
					Turn:     turn,
				}, core.EventRelayDestinationNextService, "LLMHandler"))
			}
			return

		case <-h.Ctx.Done():
			return
		}
	}
}

func (h *LLMHandler) HandleEvent(packet *core.EventPacket) error {
	switch event := packet.Event.(type) {
	case *llmevents.LLMGenerateResponseEvent:
		return h.startGeneration(event)

	case *vadevents.VadInterruptionDetectedEvent:
		h.cancelGeneration()
	}

	h.SendPacket(packet)
	return nil
}

func (h *LLMHandler) startGeneration(event *llmevents.LLMGenerateResponseEvent) error {
	h.mu.Lock()
	wasGenerating := h.generating
	h.activeTurn = event.Turn
	h.discarding = false
	h.generating = true
	h.mu.Unlock()

	// A newer turn supersedes whatever is still streaming. The superseded
	// run's pump keeps its own turn and drains into the void.
	if wasGenerating {
		if err := h.Service.Reset(); err != nil {
			h.Logger.With(map[string]any{"error": err}).Warn("cancelling previous generation failed")
		}
	}

	queueSize := h.config.ChunkQueueSize
	if queueSize <= 0 {
		queueSize = DefaultConfig().ChunkQueueSize
	}
	chunkChan := make(chan string, queueSize)
	toolCallChan := make(chan core.LLMToolCall, 4)
	doneChan := make(chan bool, 2)
	go h.pumpOutput(event.Turn, chunkChan, toolCallChan, doneChan)

	h.Logger.With(map[string]any{"turn": event.Turn}).Info("starting generation")
	h.SendPacket(core.NewEventPacket(&llmevents.LLMResponseStartedEvent{
		Turn: event.Turn,
	}, core.EventRelayDestinationNextService, "LLMHandler"))

	if err := h.Service.(LLMService).RunCompletion(
		event.Context, chunkChan, toolCallChan, h.FatalServiceErrorChan, doneChan,
	); err != nil {
		h.FatalServiceErrorChan <- err
		return err
	}
	return nil
}

func (h *LLMHandler) cancelGeneration() {
	h.mu.Lock()
	if !h.generating {
		h.mu.Unlock()
		return
	}
	turn := h.activeTurn
	h.discarding = true
	h.generating = false
	h.mu.Unlock()

	if err := h.Service.Reset(); err != nil {
		h.Logger.With(map[string]any{"error": err}).Warn("generation cancel failed")
	}
	h.Logger.With(map[string]any{"turn": turn}).Info("generation cancelled")
	h.SendPacket(core.NewEventPacket(&core.TurnCancelledEvent{
		Turn:  turn,
		Stage: "llm",
	}, core.EventRelayDestinationTopService, "LLMHandler"))
}
