package tts

import (
	"context"
	"sync"

	"senabot/core"
	llmevents "senabot/events/llm"
	ttsevents "senabot/events/tts"
	vadevents "senabot/events/vad"
)

// TTSService synthesizes buffered text into audio. StartTTSSession must not
// block: synthesized chunks arrive on audioChan, and doneChan signals that
// playout for everything flushed so far has been fully synthesized. Reset
// abandons whatever is being synthesized.
type TTSService interface {
	core.IService
	StartTTSSession(audioChan chan<- core.AudioChunk, fatalChan chan<- error, doneChan chan<- bool) error
	BufferText(text string) error
	Flush() error
}

// TTSHandler streams reply text into the synthesizer as it arrives and tags
// every audio chunk with the turn it belongs to. A confirmed interruption
// abandons synthesis and acknowledges with a turn-cancelled event.
type TTSHandler struct {
	core.BaseHandler
	config TTSConfig

	audioChan chan core.AudioChunk
	doneChan  chan bool

	mu         sync.Mutex
	activeTurn uint64
	active     bool
	discarding bool
}

func NewTTSHandler(service TTSService, backupServices []core.IService, config TTSConfig, logger *core.Logger) *TTSHandler {
	return &TTSHandler{
		BaseHandler: *core.NewBaseHandler(service, backupServices, logger),
		config:      config,
	}
}

func (h *TTSHandler) Initialize(
	inputChan <-chan *core.EventPacket,
	outputNextChan chan<- *core.EventPacket,
	outputTopChan chan<- *core.EventPacket,
	ctx context.Context,
) error {
	queueSize := h.config.AudioQueueSize
	if queueSize <= 0 {
		queueSize = DefaultConfig().AudioQueueSize
	}
	h.audioChan = make(chan core.AudioChunk, queueSize)
	h.doneChan = make(chan bool, 2)

	if err := h.BaseHandler.Initialize(inputChan, outputNextChan, outputTopChan, ctx); err != nil {
		return err
	}
	h.SetHandleEventFunc(h.HandleEvent)
	return nil
}

func (h *TTSHandler) Start() error {
	if err := h.Service.(TTSService).StartTTSSession(h.audioChan, h.FatalServiceErrorChan, h.doneChan); err != nil {
		return err
	}
	go h.outputLoop()
	return h.BaseHandler.Start()
}

func (h *TTSHandler) outputLoop() {
	for {
		select {
		case chunk := <-h.audioChan:
			h.mu.Lock()
			turn := h.activeTurn
			discard := h.discarding
			h.mu.Unlock()
			if discard {
				continue
			}
			h.SendPacket(core.NewEventPacket(&ttsevents.TTSOutputEvent{
				AudioChunk: chunk,
				Turn:       turn,
			}, core.EventRelayDestinationNextService, "TTSHandler"))

		case <-h.doneChan:
			h.mu.Lock()
			turn := h.activeTurn
			discard := h.discarding
			h.active = false
			h.mu.Unlock()
			if discard {
				continue
			}
			h.SendPacket(core.NewEventPacket(&ttsevents.TTSSpeakingEndedEvent{
				Turn: turn,
			}, core.EventRelayDestinationTopService, "TTSHandler"))

		case <-h.Ctx.Done():
			return
		}
	}
}

func (h *TTSHandler) HandleEvent(packet *core.EventPacket) error {
	switch event := packet.Event.(type) {
	case *llmevents.LLMResponseStartedEvent:
		h.mu.Lock()
		h.activeTurn = event.Turn
		h.active = true
		h.discarding = false
		h.mu.Unlock()

	case *llmevents.LLMResponseChunkEvent:
		return h.bufferChunk(event.Chunk, event.Turn, false)

	case *llmevents.LLMResponseCompletedEvent:
		h.mu.Lock()
		stale := event.Turn != h.activeTurn || h.discarding
		h.mu.Unlock()
		if stale {
			return nil
		}
		if err := h.Service.(TTSService).Flush(); err != nil {
			h.FatalServiceErrorChan <- err
			return err
		}

	case *ttsevents.TTSSpeakEvent:
		h.mu.Lock()
		h.activeTurn = event.Turn
		h.active = true
		h.discarding = false
		h.mu.Unlock()
		return h.bufferChunk(event.Text, event.Turn, true)

	case *vadevents.VadInterruptionDetectedEvent:
		h.cancelSynthesis()
	}

	h.SendPacket(packet)
	return nil
}

func (h *TTSHandler) bufferChunk(text string, turn uint64, flush bool) error {
	h.mu.Lock()
	stale := turn != h.activeTurn || h.discarding
	h.mu.Unlock()
	if stale {
		return nil
	}

	if h.config.NormalizeText {
		if flush {
			text = normalizeTextForTTS(text)
		} else {
			// Streaming chunks keep their whitespace: trimming here would
			// glue words split across chunk boundaries together.
			text = removeEmojis(removeMarkdown(text))
		}
	}
	if text == "" {
		return nil
	}

	svc := h.Service.(TTSService)
	if err := svc.BufferText(text); err != nil {
		h.FatalServiceErrorChan <- err
		return err
	}
	if flush {
		if err := svc.Flush(); err != nil {
			h.FatalServiceErrorChan <- err
			return err
		}
	}
	return nil
}

func (h *TTSHandler) cancelSynthesis() {
	h.mu.Lock()
	if !h.active {
		h.mu.Unlock()
		return
	}
	turn := h.activeTurn
	h.active = false
	h.discarding = true
	h.mu.Unlock()

	if err := h.Service.Reset(); err != nil {
		h.Logger.With(map[string]any{"error": err}).Warn("synthesis cancel failed")
	}
	h.Logger.With(map[string]any{"turn": turn}).Info("synthesis cancelled")
	h.SendPacket(core.NewEventPacket(&core.TurnCancelledEvent{
		Turn:  turn,
		Stage: "tts",
	}, core.EventRelayDestinationTopService, "TTSHandler"))
}
