package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"senabot/core"
	transportevents "senabot/events/transport"
)

// SessionState tracks a runner's lifecycle.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateActive
	StateDraining
	StateClosed
)

const (
	// queueSize bounds every inter-handler queue. A full queue blocks the
	// producer, which propagates backpressure upstream to the transport.
	queueSize = 100

	// drainTimeout bounds how long a disconnecting session waits for queued
	// events to be consumed before tearing down.
	drainTimeout = 2 * time.Second
)

// controlQueue is an unbounded FIFO for control-channel packets. Handlers
// enqueue cancellation acks from inside broadcast delivery, while the same
// goroutine that performs broadcasts is the only consumer, so the control
// plane must never exert backpressure: the pump buffers instead of blocking.
type controlQueue struct {
	in      chan *core.EventPacket
	out     chan *core.EventPacket
	pending atomic.Int32
}

func newControlQueue(ctx context.Context) *controlQueue {
	q := &controlQueue{
		in:  make(chan *core.EventPacket, queueSize),
		out: make(chan *core.EventPacket),
	}
	go q.pump(ctx)
	return q
}

func (q *controlQueue) pump(ctx context.Context) {
	var buf []*core.EventPacket
	for {
		var out chan *core.EventPacket
		var next *core.EventPacket
		if len(buf) > 0 {
			out = q.out
			next = buf[0]
		}
		select {
		case packet := <-q.in:
			buf = append(buf, packet)
			q.pending.Add(1)
		case out <- next:
			buf = buf[1:]
			q.pending.Add(-1)
		case <-ctx.Done():
			return
		}
	}
}

// Len counts packets not yet handed to the consumer.
func (q *controlQueue) Len() int {
	return len(q.in) + int(q.pending.Load())
}

// Runner wires an ordered handler chain with bounded queues plus a shared
// control channel (the "top" channel). Data events flow handler to handler;
// control events go to the top channel and are broadcast to every handler
// directly so they never wait behind queued audio.
type Runner struct {
	Handlers []core.IHandler

	// Finished is closed once the runner has fully stopped.
	Finished chan struct{}

	logger         *core.Logger
	ctx            context.Context
	cancel         context.CancelFunc
	state          atomic.Int32
	topQueue       *controlQueue
	lastOutputChan chan *core.EventPacket
	inputChans     []chan *core.EventPacket
	initialized    int
	stopOnce       sync.Once
}

func NewRunner(handlers []core.IHandler, logger *core.Logger) *Runner {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Runner{
		Handlers: handlers,
		Finished: make(chan struct{}),
		logger:   logger.With(map[string]any{"component": "runner"}),
	}
}

// State returns the runner's current lifecycle state.
func (r *Runner) State() SessionState {
	return SessionState(r.state.Load())
}

func (r *Runner) Start() error {
	if len(r.Handlers) == 0 {
		close(r.Finished)
		return nil
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.topQueue = newControlQueue(r.ctx)
	r.lastOutputChan = make(chan *core.EventPacket, queueSize)

	r.inputChans = make([]chan *core.EventPacket, len(r.Handlers))
	for i := range r.inputChans {
		r.inputChans[i] = make(chan *core.EventPacket, queueSize)
	}

	for i, handler := range r.Handlers {
		var outputNextChan chan<- *core.EventPacket
		if i < len(r.Handlers)-1 {
			outputNextChan = r.inputChans[i+1]
		} else {
			// Last handler's output is captured and logged.
			outputNextChan = r.lastOutputChan
		}

		if err := handler.Initialize(r.inputChans[i], outputNextChan, r.topQueue.in, r.ctx); err != nil {
			r.teardownPartial(i)
			return err
		}
		r.initialized = i + 1

		if err := handler.Start(); err != nil {
			r.teardownPartial(i + 1)
			return err
		}
	}

	r.state.Store(int32(StateActive))
	go r.listenToOutputs()
	return nil
}

// teardownPartial unwinds a failed Start: handlers that made it through
// Initialize are cleaned up in reverse order.
func (r *Runner) teardownPartial(count int) {
	r.cancel()
	for i := count - 1; i >= 0; i-- {
		if err := r.Handlers[i].Cleanup(); err != nil {
			r.logger.With(map[string]any{"handler": i, "error": err}).Warn("cleanup after failed start")
		}
	}
	r.state.Store(int32(StateClosed))
	close(r.Finished)
}

func (r *Runner) listenToOutputs() {
	for {
		select {
		case packet := <-r.lastOutputChan:
			r.processFinalOutput(packet)
		case packet := <-r.topQueue.out:
			r.processTopOutput(packet)
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Runner) processFinalOutput(packet *core.EventPacket) {
	r.logger.With(map[string]any{"event": packet.Event.GetId(), "relayer": packet.Relayer}).Debug("end of chain")
}

// processTopOutput routes control-channel traffic. Session-ending events stop
// the runner; other control events are broadcast to every handler so they
// jump ahead of queued data; anything else is echoed back to the first
// handler and flows down the chain again.
func (r *Runner) processTopOutput(packet *core.EventPacket) {
	switch event := packet.Event.(type) {
	case *core.CriticalErrorEvent:
		r.logger.With(map[string]any{"error": event.Error}).Error("critical error, stopping session")
		go r.Stop()

	case *core.WarningEvent:
		r.logger.With(map[string]any{"error": event.Error}).Warn("pipeline warning")

	case *core.EndCallEvent:
		r.logger.With(map[string]any{"reason": event.Reason}).Info("end call requested, stopping session")
		go r.Stop()

	case *transportevents.ClientDisconnectedEvent:
		r.logger.With(map[string]any{"reason": event.Reason}).Info("client disconnected, draining session")
		r.broadcast(packet)
		go func() {
			r.Drain(drainTimeout)
			r.Stop()
		}()

	default:
		if _, ok := packet.Event.(core.IControlEvent); ok {
			r.broadcast(packet)
			return
		}
		// Echo back to the first handler so the event flows down the chain.
		// The destination is rewritten so relaying moves the packet forward
		// instead of bouncing it back to the top channel.
		echoed := &core.EventPacket{
			Event:       packet.Event,
			Destination: core.EventRelayDestinationNextService,
			Uid:         packet.Uid,
			Relayer:     packet.Relayer,
		}
		if err := r.Handlers[0].HandleEvent(echoed); err != nil {
			r.logger.With(map[string]any{"event": packet.Event.GetId(), "error": err}).Warn("echo to first handler failed")
		}
	}
}

// broadcast delivers a control packet to every handler directly. The copy is
// marked with the broadcast destination so relaying it is a no-op and the
// queues never see duplicates.
func (r *Runner) broadcast(packet *core.EventPacket) {
	delivered := &core.EventPacket{
		Event:       packet.Event,
		Destination: core.EventRelayDestinationBroadcast,
		Uid:         packet.Uid,
		Relayer:     packet.Relayer,
	}
	for i, handler := range r.Handlers {
		if err := handler.HandleEvent(delivered); err != nil {
			r.logger.With(map[string]any{"handler": i, "event": packet.Event.GetId(), "error": err}).Warn("broadcast delivery failed")
		}
	}
}

// Drain waits until every inter-handler queue is empty or the timeout
// elapses. Used on client disconnect so in-flight events get a chance to be
// processed before teardown.
func (r *Runner) Drain(timeout time.Duration) {
	r.state.Store(int32(StateDraining))
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if r.queuesEmpty() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	r.logger.Warn("drain timeout reached with events still queued")
}

func (r *Runner) queuesEmpty() bool {
	for _, ch := range r.inputChans {
		if len(ch) > 0 {
			return false
		}
	}
	return r.topQueue.Len() == 0 && len(r.lastOutputChan) == 0
}

// Stop cancels the session context and cleans up all handlers in reverse
// pipeline order, so downstream stages close before the stages feeding them.
func (r *Runner) Stop() error {
	var firstErr error
	r.stopOnce.Do(func() {
		r.state.Store(int32(StateDraining))
		if r.cancel != nil {
			r.cancel()
		}
		for i := len(r.Handlers) - 1; i >= 0; i-- {
			if err := r.Handlers[i].Cleanup(); err != nil {
				r.logger.With(map[string]any{"handler": i, "error": err}).Warn("handler cleanup failed")
				if firstErr == nil {
					firstErr = err
				}
			}
		}
		r.state.Store(int32(StateClosed))
		close(r.Finished)
	})
	return firstErr
}

func (r *Runner) Reset() error {
	var errs []error
	for _, handler := range r.Handlers {
		if err := handler.Reset(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
