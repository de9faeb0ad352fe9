package transport

import (
	"context"

	"senabot/core"
	transportevents "senabot/events/transport"
	ttsevents "senabot/events/tts"
	"senabot/utils/audio"
)

type ITransportService interface {
	core.IService
	Connect() error
	StartReceiving(audioChan chan<- core.AudioChunk, lifecycleChan chan<- LifecycleEvent, errorChan chan<- error)
	SendAudio(chunk core.AudioChunk) error
	ClearPlayout() error
}

// TransportHandlerWrapper holds the state shared between the input and output
// handlers that bracket the pipeline. Both sides talk to the same websocket
// service, so connection setup happens exactly once.
type TransportHandlerWrapper struct {
	service TransportHandlersService
	config  TransportConfig
	logger  *core.Logger

	connected bool
}

// TransportHandlersService is the subset of ITransportService the handlers
// need; kept as an alias point so tests can supply fakes.
type TransportHandlersService = ITransportService

func NewTransportHandlerWrapper(service TransportHandlersService, config TransportConfig, logger *core.Logger) *TransportHandlerWrapper {
	return &TransportHandlerWrapper{
		service: service,
		config:  config,
		logger:  logger,
	}
}

func (w *TransportHandlerWrapper) GetInputHandler() *TransportInputHandler {
	return &TransportInputHandler{
		BaseHandler: *core.NewBaseHandler(w.service, nil, w.logger),
		config:      w.config,
		wrapper:     w,
	}
}

func (w *TransportHandlerWrapper) GetOutputHandler() *TransportOutputHandler {
	return &TransportOutputHandler{
		BaseHandler: *core.NewBaseHandler(w.service, nil, w.logger),
		config:      w.config,
		wrapper:     w,
	}
}

// TransportInputHandler turns received audio into pipeline events and reports
// stream lifecycle on the control channel.
type TransportInputHandler struct {
	core.BaseHandler
	config  TransportConfig
	wrapper *TransportHandlerWrapper

	audioChan     chan core.AudioChunk
	lifecycleChan chan LifecycleEvent
	errorChan     chan error
}

func (h *TransportInputHandler) Initialize(
	inputChan <-chan *core.EventPacket,
	outputNextChan chan<- *core.EventPacket,
	outputTopChan chan<- *core.EventPacket,
	ctx context.Context,
) error {
	h.audioChan = make(chan core.AudioChunk, 32)
	h.lifecycleChan = make(chan LifecycleEvent, 4)
	h.errorChan = make(chan error, 4)

	if err := h.BaseHandler.Initialize(inputChan, outputNextChan, outputTopChan, ctx); err != nil {
		return err
	}

	if !h.wrapper.connected {
		if err := h.Service.(ITransportService).Connect(); err != nil {
			return err
		}
		h.wrapper.connected = true
	}
	return nil
}

func (h *TransportInputHandler) Start() error {
	h.Service.(ITransportService).StartReceiving(h.audioChan, h.lifecycleChan, h.errorChan)
	go h.receiveLoop()
	return h.BaseHandler.Start()
}

func (h *TransportInputHandler) receiveLoop() {
	for {
		select {
		case chunk := <-h.audioChan:
			h.SendPacket(core.NewEventPacket(&transportevents.TransportAudioInputEvent{
				AudioChunk: chunk,
			}, core.EventRelayDestinationNextService, "TransportInputHandler"))

		case lifecycle := <-h.lifecycleChan:
			switch lifecycle.Kind {
			case LifecycleConnected:
				h.Logger.With(map[string]any{"stream_id": lifecycle.StreamID, "call_id": lifecycle.CallID}).Info("client connected")
				h.SendPacket(core.NewEventPacket(&transportevents.ClientConnectedEvent{
					StreamID: lifecycle.StreamID,
					CallID:   lifecycle.CallID,
				}, core.EventRelayDestinationTopService, "TransportInputHandler"))
			case LifecycleDisconnected:
				h.Logger.With(map[string]any{"reason": lifecycle.Reason}).Info("client disconnected")
				h.SendPacket(core.NewEventPacket(&transportevents.ClientDisconnectedEvent{
					Reason: lifecycle.Reason,
				}, core.EventRelayDestinationTopService, "TransportInputHandler"))
			}

		case err := <-h.errorChan:
			h.FatalServiceErrorChan <- err

		case <-h.Ctx.Done():
			return
		}
	}
}

func (h *TransportInputHandler) HandleEvent(packet *core.EventPacket) error {
	h.SendPacket(packet)
	return nil
}

// TransportOutputHandler delivers gated TTS audio to the caller and executes
// playout flushes on interruption.
type TransportOutputHandler struct {
	core.BaseHandler
	config  TransportConfig
	wrapper *TransportHandlerWrapper
}

func (h *TransportOutputHandler) Initialize(
	inputChan <-chan *core.EventPacket,
	outputNextChan chan<- *core.EventPacket,
	outputTopChan chan<- *core.EventPacket,
	ctx context.Context,
) error {
	if err := h.BaseHandler.Initialize(inputChan, outputNextChan, outputTopChan, ctx); err != nil {
		return err
	}
	h.SetHandleEventFunc(h.HandleEvent)

	if !h.wrapper.connected {
		if err := h.Service.(ITransportService).Connect(); err != nil {
			return err
		}
		h.wrapper.connected = true
	}
	return nil
}

func (h *TransportOutputHandler) HandleEvent(packet *core.EventPacket) error {
	switch event := packet.Event.(type) {
	case *ttsevents.TTSOutputEvent:
		converted, err := audio.ConvertAudioChunk(
			event.AudioChunk, h.config.OutAudioFormat, h.config.OutChannels, h.config.OutSampleRate,
		)
		if err != nil {
			h.Logger.With(map[string]any{"error": err}).Warn("dropping unconvertible audio chunk")
			return nil
		}
		if err := h.Service.(ITransportService).SendAudio(converted); err != nil {
			h.FatalServiceErrorChan <- err
			return err
		}

	case *transportevents.FlushPlayoutEvent:
		if err := h.Service.(ITransportService).ClearPlayout(); err != nil {
			h.Logger.With(map[string]any{"error": err}).Warn("playout flush failed")
		}
	}

	h.SendPacket(packet)
	return nil
}
