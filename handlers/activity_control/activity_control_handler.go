package activitycontrol

import (
	"context"
	"sync"
	"time"

	"senabot/core"
	llmevents "senabot/events/llm"
	transportevents "senabot/events/transport"
	ttsevents "senabot/events/tts"
	vadevents "senabot/events/vad"
)

type gateState int

const (
	gateIdle gateState = iota
	gateBotSpeaking
	gateSuspended
	gateInterrupted
)

// cancelStages is how many stages must acknowledge a cancelled turn before
// the gate considers the interruption fully propagated.
const cancelStages = 2

// ActivityControlHandler sits between the synthesizer and the transport
// output and decides whether bot audio reaches the caller. It implements the
// two-phase interruption protocol: on a suspected interruption playout is
// suspended and cached, on a confirmed one the live turn is cancelled
// everywhere and the provider's playout buffer flushed.
type ActivityControlHandler struct {
	core.BaseHandler
	config ActivityControlConfig

	mu    sync.Mutex
	state gateState
	turn  uint64
	cache []*core.EventPacket
	acks  map[string]bool
	// cancelledThrough is the highest turn whose playout was cancelled.
	// Audio for it stays blocked even after the gate goes back to idle, so
	// chunks still queued when the acks land cannot slip through.
	cancelledThrough uint64

	confirmTimer *time.Timer
	graceTimer   *time.Timer
}

func NewActivityControlHandler(config ActivityControlConfig, logger *core.Logger) *ActivityControlHandler {
	return &ActivityControlHandler{
		BaseHandler: *core.NewBaseHandler(&noopService{}, nil, logger),
		config:      config,
		acks:        make(map[string]bool),
	}
}

func (h *ActivityControlHandler) Initialize(
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

func (h *ActivityControlHandler) HandleEvent(packet *core.EventPacket) error {
	switch event := packet.Event.(type) {
	case *ttsevents.TTSOutputEvent:
		return h.gateAudio(packet, event)

	case *llmevents.LLMResponseStartedEvent:
		h.onNewTurn(event.Turn)

	case *ttsevents.TTSSpeakingEndedEvent:
		h.mu.Lock()
		if event.Turn == h.turn && h.state == gateBotSpeaking {
			h.state = gateIdle
		}
		h.mu.Unlock()

	case *vadevents.VadInterruptionSuspectedEvent:
		h.onSuspected()

	case *vadevents.VadInterruptionDetectedEvent:
		h.onConfirmed()

	case *core.TurnCancelledEvent:
		h.onTurnCancelled(event)
	}

	h.SendPacket(packet)
	return nil
}

func (h *ActivityControlHandler) gateAudio(packet *core.EventPacket, event *ttsevents.TTSOutputEvent) error {
	h.mu.Lock()

	if event.Turn <= h.cancelledThrough || event.Turn < h.turn {
		h.mu.Unlock()
		return nil
	}
	if event.Turn > h.turn {
		// Audio can outrun the response-started event; adopt the newer turn.
		h.resetForTurnLocked(event.Turn)
	}

	switch h.state {
	case gateInterrupted:
		h.mu.Unlock()
		return nil

	case gateSuspended:
		h.cache = append(h.cache, packet)
		h.mu.Unlock()
		return nil

	case gateIdle:
		h.state = gateBotSpeaking
		turn := h.turn
		h.mu.Unlock()
		h.SendPacket(core.NewEventPacket(&ttsevents.TTSSpeakingStartedEvent{Turn: turn}, core.EventRelayDestinationTopService, "ActivityControlHandler"))

	default:
		h.mu.Unlock()
	}

	h.SendPacket(packet)
	return nil
}

func (h *ActivityControlHandler) onNewTurn(turn uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if turn <= h.turn {
		return
	}
	h.resetForTurnLocked(turn)
}

// resetForTurnLocked adopts a newer turn and clears any leftover
// interruption state. Caller holds the mutex.
func (h *ActivityControlHandler) resetForTurnLocked(turn uint64) {
	h.turn = turn
	h.state = gateIdle
	h.cache = nil
	h.acks = make(map[string]bool)
	h.stopTimersLocked()
}

func (h *ActivityControlHandler) onSuspected() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != gateBotSpeaking {
		return
	}
	h.state = gateSuspended
	turn := h.turn

	h.Logger.With(map[string]any{"turn": turn}).Info("playout suspended on suspected interruption")
	h.confirmTimer = time.AfterFunc(h.config.ConfirmTimeout, func() {
		h.dismissSuspicion(turn)
	})
}

// dismissSuspicion runs when no confirmation arrived inside the window: the
// speech burst was a false positive and cached playout resumes.
func (h *ActivityControlHandler) dismissSuspicion(turn uint64) {
	h.mu.Lock()
	if h.state != gateSuspended || h.turn != turn {
		h.mu.Unlock()
		return
	}
	h.state = gateBotSpeaking
	cached := h.cache
	h.cache = nil
	h.mu.Unlock()

	h.Logger.With(map[string]any{"turn": turn, "cached": len(cached)}).Info("interruption dismissed, resuming playout")
	for _, packet := range cached {
		h.SendPacket(packet)
	}
}

func (h *ActivityControlHandler) onConfirmed() {
	h.mu.Lock()
	if h.state != gateSuspended && h.state != gateBotSpeaking {
		h.mu.Unlock()
		return
	}
	h.state = gateInterrupted
	h.cache = nil
	h.acks = make(map[string]bool)
	h.stopTimersLocked()
	h.cancelledThrough = h.turn
	turn := h.turn

	h.graceTimer = time.AfterFunc(h.config.CancelGraceTimeout, func() {
		h.onGraceExpired(turn)
	})
	h.mu.Unlock()

	h.Logger.With(map[string]any{"turn": turn}).Info("interruption confirmed, cancelling turn")
	h.SendPacket(core.NewEventPacket(&transportevents.FlushPlayoutEvent{Turn: turn}, core.EventRelayDestinationTopService, "ActivityControlHandler"))
}

func (h *ActivityControlHandler) onTurnCancelled(event *core.TurnCancelledEvent) {
	h.mu.Lock()
	if h.state != gateInterrupted || event.Turn != h.turn {
		h.mu.Unlock()
		return
	}
	h.acks[event.Stage] = true
	if len(h.acks) < cancelStages {
		h.mu.Unlock()
		return
	}
	h.completeCancellationLocked()
	turn := h.turn
	h.mu.Unlock()

	h.Logger.With(map[string]any{"turn": turn}).Info("turn cancellation complete")
	h.SendPacket(core.NewEventPacket(&ttsevents.TTSSpeakingEndedEvent{Turn: turn}, core.EventRelayDestinationTopService, "ActivityControlHandler"))
}

func (h *ActivityControlHandler) onGraceExpired(turn uint64) {
	h.mu.Lock()
	if h.state != gateInterrupted || h.turn != turn {
		h.mu.Unlock()
		return
	}
	h.completeCancellationLocked()
	h.mu.Unlock()

	h.Logger.With(map[string]any{"turn": turn}).Warn("cancellation acknowledgements missing, forcing gate back to idle")
	h.SendPacket(core.NewEventPacket(&ttsevents.TTSSpeakingEndedEvent{Turn: turn}, core.EventRelayDestinationTopService, "ActivityControlHandler"))
}

func (h *ActivityControlHandler) completeCancellationLocked() {
	h.state = gateIdle
	h.cache = nil
	h.acks = make(map[string]bool)
	h.stopTimersLocked()
}

func (h *ActivityControlHandler) stopTimersLocked() {
	if h.confirmTimer != nil {
		h.confirmTimer.Stop()
		h.confirmTimer = nil
	}
	if h.graceTimer != nil {
		h.graceTimer.Stop()
		h.graceTimer = nil
	}
}

func (h *ActivityControlHandler) Reset() error {
	h.mu.Lock()
	h.state = gateIdle
	h.turn = 0
	h.cache = nil
	h.acks = make(map[string]bool)
	h.cancelledThrough = 0
	h.stopTimersLocked()
	h.mu.Unlock()
	return h.BaseHandler.Reset()
}

type noopService struct{}

func (s *noopService) Initialize(context.Context) error { return nil }
func (s *noopService) Cleanup() error                   { return nil }
func (s *noopService) Reset() error                     { return nil }
