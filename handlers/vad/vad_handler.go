package vad

import (
	"context"
	"sync"

	"senabot/core"
	transportevents "senabot/events/transport"
	ttsevents "senabot/events/tts"
	vadevents "senabot/events/vad"
)

// VADService classifies one audio chunk at a time. Implementations may buffer
// internally; a result with Ready=false means the detector has not yet seen
// enough audio for a verdict.
type VADService interface {
	core.IService
	ProcessAudio(chunk core.AudioChunk) (core.VADResult, error)
}

// VADHandler segments inbound caller audio into speech and silence and drives
// the interruption protocol: a suspected interruption the moment speech starts
// over bot playback, and a confirmed one once the speech sustains past the
// debounce window.
type VADHandler struct {
	core.BaseHandler
	config VADConfig

	mu          sync.Mutex
	speechRun   int
	silenceRun  int
	speaking    bool
	botSpeaking bool
	suspected   bool
	confirmRun  int
}

func NewVADHandler(service VADService, backupServices []core.IService, config VADConfig, logger *core.Logger) *VADHandler {
	return &VADHandler{
		BaseHandler: *core.NewBaseHandler(service, backupServices, logger),
		config:      config,
	}
}

func (h *VADHandler) Initialize(
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

func (h *VADHandler) HandleEvent(packet *core.EventPacket) error {
	switch event := packet.Event.(type) {
	case *transportevents.TransportAudioInputEvent:
		return h.processAudio(event.AudioChunk)

	case *ttsevents.TTSSpeakingStartedEvent:
		h.mu.Lock()
		h.botSpeaking = true
		h.mu.Unlock()

	case *ttsevents.TTSSpeakingEndedEvent:
		h.mu.Lock()
		h.botSpeaking = false
		h.suspected = false
		h.confirmRun = 0
		h.mu.Unlock()
	}

	h.SendPacket(packet)
	return nil
}

func (h *VADHandler) processAudio(chunk core.AudioChunk) error {
	result, err := h.Service.(VADService).ProcessAudio(chunk)
	if err != nil {
		h.FatalServiceErrorChan <- err
		return err
	}
	if !result.Ready {
		return nil
	}

	isSpeech := result.Confidence >= h.config.MinConfidence

	// Decisions are made under the lock, but packets are sent after it is
	// released: the downstream queue is bounded, and a blocked send must not
	// hold up broadcast-delivered events that need this mutex.
	var packets []*core.EventPacket

	h.mu.Lock()

	if isSpeech {
		h.speechRun++
		h.silenceRun = 0
	} else {
		h.silenceRun++
		h.speechRun = 0
	}

	if !h.speaking && isSpeech && h.speechRun >= h.config.ActivationChunks {
		h.speaking = true
		packets = append(packets, core.NewEventPacket(&vadevents.VadUserSpeechStartedEvent{}, core.EventRelayDestinationNextService, "VADHandler"))

		if h.botSpeaking && h.config.AllowInterruptions && !h.suspected {
			h.suspected = true
			h.confirmRun = 0
			packets = append(packets, core.NewEventPacket(&vadevents.VadInterruptionSuspectedEvent{}, core.EventRelayDestinationTopService, "VADHandler"))
		}
	}

	if h.speaking && !isSpeech && h.silenceRun >= h.config.HangoverChunks {
		h.speaking = false
		h.suspected = false
		h.confirmRun = 0
		packets = append(packets, core.NewEventPacket(&vadevents.VadUserSpeechEndedEvent{}, core.EventRelayDestinationNextService, "VADHandler"))
	}

	if h.suspected && isSpeech {
		h.confirmRun++
		if h.confirmRun >= h.config.ConfirmChunks {
			h.suspected = false
			h.confirmRun = 0
			packets = append(packets, core.NewEventPacket(&vadevents.VadInterruptionDetectedEvent{}, core.EventRelayDestinationTopService, "VADHandler"))
		}
	}

	if h.speaking {
		packets = append(packets, core.NewEventPacket(&vadevents.VADUserSpeechChunkEvent{AudioChunk: chunk}, core.EventRelayDestinationNextService, "VADHandler"))
	} else {
		packets = append(packets, core.NewEventPacket(&vadevents.VADSilenceChunkEvent{AudioChunk: chunk}, core.EventRelayDestinationNextService, "VADHandler"))
	}

	h.mu.Unlock()

	for _, packet := range packets {
		h.SendPacket(packet)
	}
	return nil
}

func (h *VADHandler) Reset() error {
	h.mu.Lock()
	h.speechRun = 0
	h.silenceRun = 0
	h.speaking = false
	h.suspected = false
	h.confirmRun = 0
	h.mu.Unlock()
	return h.BaseHandler.Reset()
}
