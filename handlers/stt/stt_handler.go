package stt

import (
	"context"

	"senabot/core"
	sttevents "senabot/events/stt"
	vadevents "senabot/events/vad"
	"senabot/utils/audio"
)

// TranscriptOutput is one hypothesis from the transcription service. Final
// results close the current utterance; interim results only inform logging
// and barge-in heuristics.
type TranscriptOutput struct {
	Text    string
	IsFinal bool
}

type ISTTService interface {
	core.IService
	// StartTranscriptionSession opens the vendor stream and begins delivering
	// transcripts on outChan. Unrecoverable stream errors go to fatalChan.
	StartTranscriptionSession(outChan chan<- TranscriptOutput, fatalChan chan<- error) error
	SendTranscriptionAudio(data []byte) error
	// Flush asks the service to finalize whatever audio it has buffered.
	Flush() error
}

// STTHandler feeds user speech audio to the transcription service and turns
// its hypotheses into interim and final transcript events.
type STTHandler struct {
	core.BaseHandler
	config STTConfig

	transcriptChan chan TranscriptOutput
}

func NewSTTHandler(service ISTTService, backupServices []core.IService, config STTConfig, logger *core.Logger) *STTHandler {
	return &STTHandler{
		BaseHandler: *core.NewBaseHandler(service, backupServices, logger),
		config:      config,
	}
}

func (h *STTHandler) Initialize(
	inputChan <-chan *core.EventPacket,
	outputNextChan chan<- *core.EventPacket,
	outputTopChan chan<- *core.EventPacket,
	ctx context.Context,
) error {
	h.transcriptChan = make(chan TranscriptOutput, 16)
	if err := h.BaseHandler.Initialize(inputChan, outputNextChan, outputTopChan, ctx); err != nil {
		return err
	}
	h.SetHandleEventFunc(h.HandleEvent)
	return nil
}

func (h *STTHandler) Start() error {
	if err := h.Service.(ISTTService).StartTranscriptionSession(h.transcriptChan, h.FatalServiceErrorChan); err != nil {
		return err
	}
	go h.transcriptLoop()
	return h.BaseHandler.Start()
}

func (h *STTHandler) transcriptLoop() {
	for {
		select {
		case out := <-h.transcriptChan:
			if out.Text == "" {
				continue
			}
			if out.IsFinal {
				h.Logger.With(map[string]any{"text": out.Text}).Info("final transcript")
				h.SendPacket(core.NewEventPacket(&sttevents.STTFinalOutputEvent{Text: out.Text}, core.EventRelayDestinationNextService, "STTHandler"))
			} else {
				h.Logger.With(map[string]any{"text": out.Text}).Debug("interim transcript")
				h.SendPacket(core.NewEventPacket(&sttevents.STTInterimOutputEvent{Text: out.Text}, core.EventRelayDestinationNextService, "STTHandler"))
			}
		case <-h.Ctx.Done():
			return
		}
	}
}

func (h *STTHandler) HandleEvent(packet *core.EventPacket) error {
	switch event := packet.Event.(type) {
	case *vadevents.VADUserSpeechChunkEvent:
		converted, err := audio.ConvertAudioChunk(
			event.AudioChunk, h.config.AudioFormat, h.config.Channels, h.config.SampleRate,
		)
		if err != nil {
			h.Logger.With(map[string]any{"error": err}).Warn("dropping unconvertible audio chunk")
			return nil
		}
		if err := h.Service.(ISTTService).SendTranscriptionAudio(*converted.Data); err != nil {
			h.FatalServiceErrorChan <- err
			return err
		}
		return nil

	case *vadevents.VadUserSpeechEndedEvent:
		if err := h.Service.(ISTTService).Flush(); err != nil {
			h.Logger.With(map[string]any{"error": err}).Warn("transcription flush failed")
		}

	case *vadevents.VADSilenceChunkEvent:
		// Silence never reaches the vendor; keeping the stream lean avoids
		// phantom transcripts.
		return nil
	}

	h.SendPacket(packet)
	return nil
}
