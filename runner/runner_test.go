package runner

import (
	"context"
	"sync"
	"testing"
	"time"

	"senabot/core"
	transportevents "senabot/events/transport"
)

type recordingHandler struct {
	mu       sync.Mutex
	name     string
	received []string
	cleaned  bool
	relay    bool
	// ackTop makes the handler answer every flush broadcast with a warning
	// on the control channel, mimicking stages that ack from inside
	// broadcast delivery.
	ackTop bool

	inputChan      <-chan *core.EventPacket
	outputNextChan chan<- *core.EventPacket
	outputTopChan  chan<- *core.EventPacket
	ctx            context.Context
}

func newRecordingHandler(name string, relay bool) *recordingHandler {
	return &recordingHandler{name: name, relay: relay}
}

func (h *recordingHandler) Initialize(
	inputChan <-chan *core.EventPacket,
	outputNextChan chan<- *core.EventPacket,
	outputTopChan chan<- *core.EventPacket,
	ctx context.Context,
) error {
	h.inputChan = inputChan
	h.outputNextChan = outputNextChan
	h.outputTopChan = outputTopChan
	h.ctx = ctx
	return nil
}

func (h *recordingHandler) Start() error {
	go func() {
		for {
			select {
			case packet := <-h.inputChan:
				h.HandleEvent(packet)
			case <-h.ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (h *recordingHandler) HandleEvent(packet *core.EventPacket) error {
	h.mu.Lock()
	h.received = append(h.received, packet.Event.GetId())
	h.mu.Unlock()
	if h.ackTop {
		if _, ok := packet.Event.(*transportevents.FlushPlayoutEvent); ok {
			h.outputTopChan <- core.NewEventPacket(&core.WarningEvent{Error: "ack"}, core.EventRelayDestinationTopService, h.name)
		}
	}
	if h.relay && packet.Destination == core.EventRelayDestinationNextService {
		h.outputNextChan <- packet
	}
	return nil
}

func (h *recordingHandler) countOf(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, got := range h.received {
		if got == id {
			n++
		}
	}
	return n
}

func (h *recordingHandler) Cleanup() error {
	h.mu.Lock()
	h.cleaned = true
	h.mu.Unlock()
	return nil
}

func (h *recordingHandler) Reset() error { return nil }

func (h *recordingHandler) seen(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, got := range h.received {
		if got == id {
			return true
		}
	}
	return false
}

func waitUntil(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestControlEventsBroadcastToAllHandlers(t *testing.T) {
	first := newRecordingHandler("first", true)
	second := newRecordingHandler("second", true)
	third := newRecordingHandler("third", true)
	r := NewRunner([]core.IHandler{first, second, third}, core.GetLogger())
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()

	flush := &transportevents.FlushPlayoutEvent{Turn: 1}
	r.topQueue.in <- core.NewEventPacket(flush, core.EventRelayDestinationTopService, "test")

	for _, h := range []*recordingHandler{first, second, third} {
		handler := h
		waitUntil(t, func() bool { return handler.seen(flush.GetId()) }, handler.name+" never saw the control event")
	}
}

func TestNonControlTopEventsEchoToHead(t *testing.T) {
	first := newRecordingHandler("first", true)
	second := newRecordingHandler("second", true)
	r := NewRunner([]core.IHandler{first, second}, core.GetLogger())
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()

	// A data event surfacing on the control channel flows back down the
	// chain from the first handler, even when it was sent top-bound: the
	// runner rewrites the destination so the echo moves forward.
	audio := &transportevents.TransportAudioInputEvent{}
	r.topQueue.in <- core.NewEventPacket(audio, core.EventRelayDestinationTopService, "test")

	waitUntil(t, func() bool { return first.seen(audio.GetId()) }, "first handler never saw the echoed event")
	waitUntil(t, func() bool { return second.seen(audio.GetId()) }, "echoed event never flowed down the chain")
}

func TestControlPlaneAbsorbsAcksDuringBroadcast(t *testing.T) {
	first := newRecordingHandler("first", true)
	first.ackTop = true
	second := newRecordingHandler("second", true)
	r := NewRunner([]core.IHandler{first, second}, core.GetLogger())
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()

	// Every broadcast makes the first handler push another control packet
	// while the consumer is mid-delivery. Well past the channel capacity,
	// deliveries must keep flowing.
	total := 3 * queueSize
	flushId := (&transportevents.FlushPlayoutEvent{}).GetId()
	for i := 0; i < total; i++ {
		r.topQueue.in <- core.NewEventPacket(&transportevents.FlushPlayoutEvent{Turn: uint64(i)}, core.EventRelayDestinationTopService, "test")
	}

	waitUntil(t, func() bool { return second.countOf(flushId) == total }, "control deliveries stalled")
}

func TestEndCallStopsRunner(t *testing.T) {
	first := newRecordingHandler("first", true)
	r := NewRunner([]core.IHandler{first}, core.GetLogger())
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	r.topQueue.in <- core.NewEventPacket(&core.EndCallEvent{Reason: "done"}, core.EventRelayDestinationTopService, "test")

	select {
	case <-r.Finished:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop on end call")
	}
	if !first.cleaned {
		t.Fatal("handler not cleaned up")
	}
	if r.State() != StateClosed {
		t.Fatalf("state = %d, want closed", r.State())
	}
}

func TestClientDisconnectDrainsThenStops(t *testing.T) {
	first := newRecordingHandler("first", true)
	second := newRecordingHandler("second", true)
	r := NewRunner([]core.IHandler{first, second}, core.GetLogger())
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	disconnect := &transportevents.ClientDisconnectedEvent{Reason: "hangup"}
	r.topQueue.in <- core.NewEventPacket(disconnect, core.EventRelayDestinationTopService, "test")

	select {
	case <-r.Finished:
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop after disconnect")
	}
	if !first.seen(disconnect.GetId()) || !second.seen(disconnect.GetId()) {
		t.Fatal("disconnect not broadcast before teardown")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	first := newRecordingHandler("first", true)
	r := NewRunner([]core.IHandler{first}, core.GetLogger())
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	select {
	case <-r.Finished:
	default:
		t.Fatal("Finished not closed")
	}
}

func TestEmptyRunnerFinishesImmediately(t *testing.T) {
	r := NewRunner(nil, core.GetLogger())
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-r.Finished:
	default:
		t.Fatal("empty runner should finish immediately")
	}
}
