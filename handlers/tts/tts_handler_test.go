package tts

import (
	"context"
	"strings"
	"testing"
	"time"

	"senabot/core"
	llmevents "senabot/events/llm"
	ttsevents "senabot/events/tts"
	vadevents "senabot/events/vad"
)

type fakeTTSService struct {
	audioChan chan<- core.AudioChunk
	doneChan  chan<- bool
	buffered  []string
	flushes   int
	resets    int
}

func (s *fakeTTSService) Initialize(context.Context) error { return nil }
func (s *fakeTTSService) Cleanup() error                   { return nil }
func (s *fakeTTSService) Reset() error {
	s.resets++
	return nil
}

func (s *fakeTTSService) StartTTSSession(audioChan chan<- core.AudioChunk, _ chan<- error, doneChan chan<- bool) error {
	s.audioChan = audioChan
	s.doneChan = doneChan
	return nil
}

func (s *fakeTTSService) BufferText(text string) error {
	s.buffered = append(s.buffered, text)
	return nil
}

func (s *fakeTTSService) Flush() error {
	s.flushes++
	return nil
}

func newTestHandler(t *testing.T) (*TTSHandler, *fakeTTSService, chan *core.EventPacket, chan *core.EventPacket) {
	t.Helper()
	svc := &fakeTTSService{}
	h := NewTTSHandler(svc, nil, DefaultConfig(), core.GetLogger())
	inputChan := make(chan *core.EventPacket, 32)
	nextChan := make(chan *core.EventPacket, 32)
	topChan := make(chan *core.EventPacket, 32)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := h.Initialize(inputChan, nextChan, topChan, ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := h.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return h, svc, nextChan, topChan
}

func startTurn(h *TTSHandler, turn uint64) {
	h.HandleEvent(core.NewEventPacket(&llmevents.LLMResponseStartedEvent{Turn: turn}, core.EventRelayDestinationNextService, "test"))
}

func chunk(h *TTSHandler, text string, turn uint64) {
	h.HandleEvent(core.NewEventPacket(&llmevents.LLMResponseChunkEvent{Chunk: text, Turn: turn}, core.EventRelayDestinationNextService, "test"))
}

func waitFor[T core.IEvent](t *testing.T, ch chan *core.EventPacket) T {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case p := <-ch:
			if event, ok := p.Event.(T); ok {
				return event
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

func TestChunksBufferedAndFlushedOnCompletion(t *testing.T) {
	h, svc, _, _ := newTestHandler(t)

	startTurn(h, 1)
	chunk(h, "Hello ", 1)
	chunk(h, "there.", 1)
	h.HandleEvent(core.NewEventPacket(&llmevents.LLMResponseCompletedEvent{FullText: "Hello there.", Turn: 1}, core.EventRelayDestinationNextService, "test"))

	if got := strings.Join(svc.buffered, ""); got != "Hello there." {
		t.Fatalf("buffered text = %q", got)
	}
	if svc.flushes != 1 {
		t.Fatalf("flushes = %d, want 1", svc.flushes)
	}
}

func TestStaleTurnChunksDropped(t *testing.T) {
	h, svc, _, _ := newTestHandler(t)

	startTurn(h, 2)
	chunk(h, "old text", 1)

	if len(svc.buffered) != 0 {
		t.Fatalf("stale chunk was buffered: %v", svc.buffered)
	}
}

func TestAudioTaggedWithActiveTurn(t *testing.T) {
	h, svc, nextChan, topChan := newTestHandler(t)

	startTurn(h, 4)
	data := make([]byte, 160)
	svc.audioChan <- core.AudioChunk{Data: &data, SampleRate: 8000, Channels: 1, Format: core.ULAW}

	out := waitFor[*ttsevents.TTSOutputEvent](t, nextChan)
	if out.Turn != 4 {
		t.Fatalf("audio turn = %d, want 4", out.Turn)
	}

	svc.doneChan <- true
	ended := waitFor[*ttsevents.TTSSpeakingEndedEvent](t, topChan)
	if ended.Turn != 4 {
		t.Fatalf("ended turn = %d, want 4", ended.Turn)
	}
}

func TestInterruptionCancelsSynthesis(t *testing.T) {
	h, svc, nextChan, topChan := newTestHandler(t)

	startTurn(h, 7)
	chunk(h, "long reply", 7)

	h.HandleEvent(core.NewEventPacket(&vadevents.VadInterruptionDetectedEvent{}, core.EventRelayDestinationBroadcast, "test"))

	ack := waitFor[*core.TurnCancelledEvent](t, topChan)
	if ack.Turn != 7 || ack.Stage != "tts" {
		t.Fatalf("unexpected ack %+v", ack)
	}
	if svc.resets != 1 {
		t.Fatalf("resets = %d, want 1", svc.resets)
	}

	// Audio arriving after the cancel is dropped.
	data := make([]byte, 160)
	svc.audioChan <- core.AudioChunk{Data: &data, SampleRate: 8000, Channels: 1, Format: core.ULAW}
	select {
	case p := <-nextChan:
		if _, ok := p.Event.(*ttsevents.TTSOutputEvent); ok {
			t.Fatal("audio leaked after cancellation")
		}
	case <-time.After(100 * time.Millisecond):
	}

	// Further chunks for the cancelled turn are ignored.
	chunk(h, "more", 7)
	if len(svc.buffered) != 1 {
		t.Fatalf("chunk buffered after cancellation: %v", svc.buffered)
	}
}

func TestSpeakEventBuffersAndFlushesImmediately(t *testing.T) {
	h, svc, _, _ := newTestHandler(t)

	h.HandleEvent(core.NewEventPacket(&ttsevents.TTSSpeakEvent{Text: "Goodbye!", Turn: 9}, core.EventRelayDestinationNextService, "test"))

	if len(svc.buffered) != 1 || svc.buffered[0] != "Goodbye!" {
		t.Fatalf("buffered = %v", svc.buffered)
	}
	if svc.flushes != 1 {
		t.Fatalf("flushes = %d, want 1", svc.flushes)
	}
}
