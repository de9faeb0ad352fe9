package stt

import (
	"context"
	"testing"
	"time"

	"senabot/core"
	sttevents "senabot/events/stt"
	vadevents "senabot/events/vad"
)

type fakeSTTService struct {
	outChan   chan<- TranscriptOutput
	audio     [][]byte
	flushed   int
	sessionOn bool
}

func (s *fakeSTTService) Initialize(context.Context) error { return nil }
func (s *fakeSTTService) Cleanup() error                   { return nil }
func (s *fakeSTTService) Reset() error                     { return nil }

func (s *fakeSTTService) StartTranscriptionSession(outChan chan<- TranscriptOutput, _ chan<- error) error {
	s.outChan = outChan
	s.sessionOn = true
	return nil
}

func (s *fakeSTTService) SendTranscriptionAudio(data []byte) error {
	s.audio = append(s.audio, data)
	return nil
}

func (s *fakeSTTService) Flush() error {
	s.flushed++
	return nil
}

func newTestHandler(t *testing.T) (*STTHandler, *fakeSTTService, chan *core.EventPacket) {
	t.Helper()
	svc := &fakeSTTService{}
	h := NewSTTHandler(svc, nil, DefaultConfig(), core.GetLogger())
	inputChan := make(chan *core.EventPacket, 16)
	nextChan := make(chan *core.EventPacket, 16)
	topChan := make(chan *core.EventPacket, 16)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := h.Initialize(inputChan, nextChan, topChan, ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := h.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return h, svc, nextChan
}

func speechChunk() *core.EventPacket {
	data := make([]byte, 320)
	return core.NewEventPacket(&vadevents.VADUserSpeechChunkEvent{
		AudioChunk: core.AudioChunk{Data: &data, SampleRate: 16000, Channels: 1, Format: core.PCM, Timestamp: time.Now()},
	}, core.EventRelayDestinationNextService, "test")
}

func waitForPacket(t *testing.T, ch chan *core.EventPacket) *core.EventPacket {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for packet")
		return nil
	}
}

func TestSpeechAudioReachesService(t *testing.T) {
	h, svc, _ := newTestHandler(t)

	if err := h.HandleEvent(speechChunk()); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(svc.audio) != 1 {
		t.Fatalf("expected 1 audio frame at service, got %d", len(svc.audio))
	}
}

func TestSpeechEndTriggersFlush(t *testing.T) {
	h, svc, _ := newTestHandler(t)

	h.HandleEvent(core.NewEventPacket(&vadevents.VadUserSpeechEndedEvent{}, core.EventRelayDestinationNextService, "test"))
	if svc.flushed != 1 {
		t.Fatalf("expected 1 flush, got %d", svc.flushed)
	}
}

func TestSilenceNeverReachesService(t *testing.T) {
	h, svc, _ := newTestHandler(t)

	data := make([]byte, 320)
	h.HandleEvent(core.NewEventPacket(&vadevents.VADSilenceChunkEvent{
		AudioChunk: core.AudioChunk{Data: &data, SampleRate: 16000, Channels: 1, Format: core.PCM},
	}, core.EventRelayDestinationNextService, "test"))

	if len(svc.audio) != 0 {
		t.Fatalf("silence chunk was forwarded to the service")
	}
}

func TestTranscriptsBecomeEvents(t *testing.T) {
	_, svc, nextChan := newTestHandler(t)

	svc.outChan <- TranscriptOutput{Text: "hello", IsFinal: false}
	p := waitForPacket(t, nextChan)
	interim, ok := p.Event.(*sttevents.STTInterimOutputEvent)
	if !ok {
		t.Fatalf("expected interim event, got %T", p.Event)
	}
	if interim.Text != "hello" {
		t.Fatalf("unexpected interim text %q", interim.Text)
	}

	svc.outChan <- TranscriptOutput{Text: "hello there", IsFinal: true}
	p = waitForPacket(t, nextChan)
	final, ok := p.Event.(*sttevents.STTFinalOutputEvent)
	if !ok {
		t.Fatalf("expected final event, got %T", p.Event)
	}
	if final.Text != "hello there" {
		t.Fatalf("unexpected final text %q", final.Text)
	}
}

func TestEmptyTranscriptsDropped(t *testing.T) {
	_, svc, nextChan := newTestHandler(t)

	svc.outChan <- TranscriptOutput{Text: "", IsFinal: true}
	select {
	case p := <-nextChan:
		t.Fatalf("unexpected packet for empty transcript: %s", p.Event.GetId())
	case <-time.After(50 * time.Millisecond):
	}
}
