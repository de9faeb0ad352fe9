package core

import (
	"context"
	"errors"
)

type IService interface {
	Initialize(ctx context.Context) error
	Cleanup() error
	Reset() error
}

type IHandler interface {
	Initialize(
		inputChan <-chan *EventPacket,
		outputNextChan chan<- *EventPacket,
		outputTopChan chan<- *EventPacket,
		ctx context.Context,
	) error
	Start() error // Starts the handler's main logic. Must not block; long-running work belongs in goroutines.
	HandleEvent(packet *EventPacket) error

	Cleanup() error // Cleans up resources used by the handler and its service.
	Reset() error   // Resets the handler to its initial state.
}

type BaseHandler struct {
	Service               IService
	BackupServices        []IService
	Logger                *Logger
	Ctx                   context.Context
	InputChan             <-chan *EventPacket
	outputNextChan        chan<- *EventPacket
	outputTopChan         chan<- *EventPacket
	FatalServiceErrorChan chan error

	handleEventFunc func(packet *EventPacket) error
}

func NewBaseHandler(service IService, backupServices []IService, logger *Logger) *BaseHandler {
	if logger == nil {
		logger = GetLogger()
	}
	return &BaseHandler{
		Service:        service,
		BackupServices: backupServices,
		Logger:         logger,
	}
}

func (h *BaseHandler) Initialize(
	inputChan <-chan *EventPacket,
	outputNextChan chan<- *EventPacket,
	outputTopChan chan<- *EventPacket,
	ctx context.Context,
) error {
	h.InputChan = inputChan
	h.outputNextChan = outputNextChan
	h.outputTopChan = outputTopChan
	h.FatalServiceErrorChan = make(chan error, 4)
	h.Ctx = ctx
	go h.fatalErrorHandlerLoop()
	return h.Service.Initialize(ctx)
}

// SetHandleEventFunc points the base event loop at the embedding handler's
// HandleEvent override. Handlers that override HandleEvent must call this
// during Initialize, otherwise the loop falls back to plain relaying.
func (h *BaseHandler) SetHandleEventFunc(fn func(packet *EventPacket) error) {
	h.handleEventFunc = fn
}

func (h *BaseHandler) Start() error {
	go h.eventLoop()
	return nil
}

func (h *BaseHandler) eventLoop() {
	for {
		select {
		case packet := <-h.InputChan:
			fn := h.handleEventFunc
			if fn == nil {
				fn = h.HandleEvent
			}
			if err := fn(packet); err != nil {
				h.Logger.With(map[string]any{"event": packet.Event.GetId(), "error": err}).Warn("event handling failed")
			}
		case <-h.Ctx.Done():
			return
		}
	}
}

func (h *BaseHandler) HandleEvent(packet *EventPacket) error {
	h.SendPacket(packet)
	return nil
}

func (h *BaseHandler) Cleanup() error {
	return h.Service.Cleanup()
}

func (h *BaseHandler) Reset() error {
	return h.Service.Reset()
}

func (h *BaseHandler) SwitchToBackupService() error {
	if len(h.BackupServices) == 0 {
		return errors.New("no backup services available")
	}
	// Switch to the next backup service in the list.
	h.Service = h.BackupServices[0]
	if err := h.Service.Initialize(h.Ctx); err != nil {
		return err
	}
	h.BackupServices = h.BackupServices[1:]
	return nil
}

func (h *BaseHandler) SendPacket(packet *EventPacket) {
	switch packet.Destination {
	case EventRelayDestinationNextService:
		h.outputNextChan <- packet
	case EventRelayDestinationTopService:
		h.outputTopChan <- packet
	case EventRelayDestinationBroadcast:
		// Already delivered out-of-band by the runner.
	default:
		h.outputNextChan <- packet
	}
}

func (h *BaseHandler) HandleError(err error) {
	h.FatalServiceErrorChan <- err
}

// fatalErrorHandlerLoop drains fatal service errors, failing over to backup
// services when available. When no backup remains the error escalates to a
// CriticalErrorEvent on the control channel and the runner tears the session
// down.
func (h *BaseHandler) fatalErrorHandlerLoop() {
	for {
		select {
		case err := <-h.FatalServiceErrorChan:
			h.Logger.With(map[string]any{"error": err}).Error("fatal service error")
			if switchErr := h.SwitchToBackupService(); switchErr != nil {
				h.SendPacket(
					NewEventPacket(&CriticalErrorEvent{Error: err.Error()}, EventRelayDestinationTopService, "BaseHandler"),
				)
				return
			}
			h.Logger.Info("switched to backup service after fatal error")
			h.SendPacket(
				NewEventPacket(&WarningEvent{Error: err.Error()}, EventRelayDestinationTopService, "BaseHandler"),
			)
		case <-h.Ctx.Done():
			return
		}
	}
}
