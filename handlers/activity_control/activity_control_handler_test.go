package activitycontrol

import (
	"context"
	"testing"
	"time"

	"senabot/core"
	llmevents "senabot/events/llm"
	transportevents "senabot/events/transport"
	ttsevents "senabot/events/tts"
	vadevents "senabot/events/vad"
)

func newTestHandler(t *testing.T, config ActivityControlConfig) (*ActivityControlHandler, chan *core.EventPacket, chan *core.EventPacket) {
	t.Helper()
	h := NewActivityControlHandler(config, core.GetLogger())
	inputChan := make(chan *core.EventPacket, 64)
	nextChan := make(chan *core.EventPacket, 64)
	topChan := make(chan *core.EventPacket, 64)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := h.Initialize(inputChan, nextChan, topChan, ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return h, nextChan, topChan
}

func startTurn(h *ActivityControlHandler, turn uint64) {
	h.HandleEvent(core.NewEventPacket(&llmevents.LLMResponseStartedEvent{Turn: turn}, core.EventRelayDestinationNextService, "test"))
}

func audio(h *ActivityControlHandler, turn uint64) {
	data := make([]byte, 160)
	h.HandleEvent(core.NewEventPacket(&ttsevents.TTSOutputEvent{
		AudioChunk: core.AudioChunk{Data: &data, SampleRate: 8000, Channels: 1, Format: core.ULAW},
		Turn:       turn,
	}, core.EventRelayDestinationNextService, "test"))
}

func countAudio(ch chan *core.EventPacket) int {
	n := 0
	for {
		select {
		case p := <-ch:
			if _, ok := p.Event.(*ttsevents.TTSOutputEvent); ok {
				n++
			}
		default:
			return n
		}
	}
}

func expectTop[T core.IEvent](t *testing.T, ch chan *core.EventPacket) T {
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

func TestFirstAudioChunkMarksBotSpeaking(t *testing.T) {
	h, nextChan, topChan := newTestHandler(t, DefaultConfig())

	startTurn(h, 1)
	audio(h, 1)
	audio(h, 1)

	started := expectTop[*ttsevents.TTSSpeakingStartedEvent](t, topChan)
	if started.Turn != 1 {
		t.Fatalf("speaking started turn = %d, want 1", started.Turn)
	}
	if got := countAudio(nextChan); got != 2 {
		t.Fatalf("forwarded audio = %d, want 2", got)
	}
}

func TestStaleTurnAudioDropped(t *testing.T) {
	h, nextChan, _ := newTestHandler(t, DefaultConfig())

	startTurn(h, 2)
	audio(h, 1)

	if got := countAudio(nextChan); got != 0 {
		t.Fatalf("stale audio forwarded: %d", got)
	}
}

func TestSuspectedInterruptionCachesAudio(t *testing.T) {
	h, nextChan, _ := newTestHandler(t, ActivityControlConfig{ConfirmTimeout: time.Hour, CancelGraceTimeout: time.Hour})

	startTurn(h, 1)
	audio(h, 1)
	countAudio(nextChan)

	h.HandleEvent(core.NewEventPacket(&vadevents.VadInterruptionSuspectedEvent{}, core.EventRelayDestinationBroadcast, "test"))
	audio(h, 1)
	audio(h, 1)

	if got := countAudio(nextChan); got != 0 {
		t.Fatalf("audio forwarded while suspended: %d", got)
	}
}

func TestFalsePositiveResumesCachedAudio(t *testing.T) {
	h, nextChan, _ := newTestHandler(t, ActivityControlConfig{ConfirmTimeout: 30 * time.Millisecond, CancelGraceTimeout: time.Hour})

	startTurn(h, 1)
	audio(h, 1)
	countAudio(nextChan)

	h.HandleEvent(core.NewEventPacket(&vadevents.VadInterruptionSuspectedEvent{}, core.EventRelayDestinationBroadcast, "test"))
	audio(h, 1)
	audio(h, 1)

	deadline := time.After(time.Second)
	got := 0
	for got < 2 {
		select {
		case p := <-nextChan:
			if _, ok := p.Event.(*ttsevents.TTSOutputEvent); ok {
				got++
			}
		case <-deadline:
			t.Fatalf("cached audio not resumed, got %d", got)
		}
	}

	// Playout continues normally after the dismissal.
	audio(h, 1)
	if countAudio(nextChan) != 1 {
		t.Fatal("audio not forwarded after resume")
	}
}

func TestConfirmedInterruptionFlushesAndAwaitsAcks(t *testing.T) {
	h, nextChan, topChan := newTestHandler(t, ActivityControlConfig{ConfirmTimeout: time.Hour, CancelGraceTimeout: time.Hour})

	startTurn(h, 3)
	audio(h, 3)
	countAudio(nextChan)

	h.HandleEvent(core.NewEventPacket(&vadevents.VadInterruptionSuspectedEvent{}, core.EventRelayDestinationBroadcast, "test"))
	h.HandleEvent(core.NewEventPacket(&vadevents.VadInterruptionDetectedEvent{}, core.EventRelayDestinationBroadcast, "test"))

	flush := expectTop[*transportevents.FlushPlayoutEvent](t, topChan)
	if flush.Turn != 3 {
		t.Fatalf("flush turn = %d, want 3", flush.Turn)
	}

	// Audio for the cancelled turn is dropped outright.
	audio(h, 3)
	if got := countAudio(nextChan); got != 0 {
		t.Fatalf("audio forwarded while interrupted: %d", got)
	}

	// One ack is not enough.
	h.HandleEvent(core.NewEventPacket(&core.TurnCancelledEvent{Turn: 3, Stage: "llm"}, core.EventRelayDestinationBroadcast, "test"))
	select {
	case p := <-topChan:
		if _, ok := p.Event.(*ttsevents.TTSSpeakingEndedEvent); ok {
			t.Fatal("gate went idle after a single ack")
		}
	case <-time.After(50 * time.Millisecond):
	}

	h.HandleEvent(core.NewEventPacket(&core.TurnCancelledEvent{Turn: 3, Stage: "tts"}, core.EventRelayDestinationBroadcast, "test"))
	ended := expectTop[*ttsevents.TTSSpeakingEndedEvent](t, topChan)
	if ended.Turn != 3 {
		t.Fatalf("ended turn = %d, want 3", ended.Turn)
	}

	// A new turn plays out normally afterwards.
	startTurn(h, 4)
	audio(h, 4)
	if countAudio(nextChan) != 1 {
		t.Fatal("audio not forwarded for the next turn")
	}
}

func TestResidualCancelledTurnAudioDroppedAfterAcks(t *testing.T) {
	h, nextChan, topChan := newTestHandler(t, ActivityControlConfig{ConfirmTimeout: time.Hour, CancelGraceTimeout: time.Hour})

	startTurn(h, 5)
	audio(h, 5)
	countAudio(nextChan)

	h.HandleEvent(core.NewEventPacket(&vadevents.VadInterruptionSuspectedEvent{}, core.EventRelayDestinationBroadcast, "test"))
	h.HandleEvent(core.NewEventPacket(&vadevents.VadInterruptionDetectedEvent{}, core.EventRelayDestinationBroadcast, "test"))
	expectTop[*transportevents.FlushPlayoutEvent](t, topChan)

	h.HandleEvent(core.NewEventPacket(&core.TurnCancelledEvent{Turn: 5, Stage: "llm"}, core.EventRelayDestinationBroadcast, "test"))
	h.HandleEvent(core.NewEventPacket(&core.TurnCancelledEvent{Turn: 5, Stage: "tts"}, core.EventRelayDestinationBroadcast, "test"))
	expectTop[*ttsevents.TTSSpeakingEndedEvent](t, topChan)

	// Chunks for the cancelled turn that were still queued when the acks
	// landed stay blocked even though the gate is idle again.
	audio(h, 5)
	audio(h, 5)
	if got := countAudio(nextChan); got != 0 {
		t.Fatalf("cancelled turn audio forwarded after acks: %d", got)
	}

	// The next turn is unaffected.
	startTurn(h, 6)
	audio(h, 6)
	if countAudio(nextChan) != 1 {
		t.Fatal("audio not forwarded for the next turn")
	}
}

func TestGraceTimeoutForcesIdle(t *testing.T) {
	h, nextChan, topChan := newTestHandler(t, ActivityControlConfig{ConfirmTimeout: time.Hour, CancelGraceTimeout: 30 * time.Millisecond})

	startTurn(h, 5)
	audio(h, 5)
	countAudio(nextChan)

	h.HandleEvent(core.NewEventPacket(&vadevents.VadInterruptionDetectedEvent{}, core.EventRelayDestinationBroadcast, "test"))
	expectTop[*transportevents.FlushPlayoutEvent](t, topChan)

	ended := expectTop[*ttsevents.TTSSpeakingEndedEvent](t, topChan)
	if ended.Turn != 5 {
		t.Fatalf("ended turn = %d, want 5", ended.Turn)
	}
}

func TestNewerTurnClearsInterruptedState(t *testing.T) {
	h, nextChan, topChan := newTestHandler(t, ActivityControlConfig{ConfirmTimeout: time.Hour, CancelGraceTimeout: time.Hour})

	startTurn(h, 1)
	audio(h, 1)
	countAudio(nextChan)
	h.HandleEvent(core.NewEventPacket(&vadevents.VadInterruptionDetectedEvent{}, core.EventRelayDestinationBroadcast, "test"))
	expectTop[*transportevents.FlushPlayoutEvent](t, topChan)

	startTurn(h, 2)
	audio(h, 2)
	if countAudio(nextChan) != 1 {
		t.Fatal("audio for the new turn was not forwarded")
	}
}
