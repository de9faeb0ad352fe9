package plivo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"senabot/core"
	"senabot/handlers/transport"
	"senabot/protocol"
	"senabot/utils/audio"

	"github.com/gorilla/websocket"
)

// PlivoTransportService implements transport.ITransportService over a Plivo
// bidirectional audio stream websocket. Inbound media is 8 kHz μ-law; outbound
// audio is sent as playAudio frames and flushed with clearAudio.
type PlivoTransportService struct {
	conn   *websocket.Conn
	config *Config
	logger *core.Logger

	streamID  string
	callID    string
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
}

// NewPlivoTransportService wraps an already-upgraded websocket connection.
func NewPlivoTransportService(conn *websocket.Conn, config *Config, logger *core.Logger) *PlivoTransportService {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &PlivoTransportService{
		conn:      conn,
		config:    config,
		logger:    logger,
		connected: true,
	}
}

func (t *PlivoTransportService) Initialize(_ context.Context) error {
	if t.conn == nil {
		return fmt.Errorf("plivo: no websocket connection")
	}
	return nil
}

func (t *PlivoTransportService) Cleanup() error {
	return t.Close()
}

func (t *PlivoTransportService) Reset() error {
	return nil
}

// Connect is a no-op: the connection arrives already established from the
// provider's websocket upgrade.
func (t *PlivoTransportService) Connect() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.connected {
		return fmt.Errorf("plivo: transport not connected")
	}
	return nil
}

// StartReceiving reads stream frames until the stream stops or the connection
// drops. Lifecycle transitions and fatal errors are reported on the given
// channels.
func (t *PlivoTransportService) StartReceiving(
	audioChan chan<- core.AudioChunk,
	lifecycleChan chan<- transport.LifecycleEvent,
	errorChan chan<- error,
) {
	go t.receiveLoop(audioChan, lifecycleChan, errorChan)
}

func (t *PlivoTransportService) receiveLoop(
	audioChan chan<- core.AudioChunk,
	lifecycleChan chan<- transport.LifecycleEvent,
	errorChan chan<- error,
) {
	defer t.Close()

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				errorChan <- fmt.Errorf("plivo: websocket error: %w", err)
			}
			lifecycleChan <- transport.LifecycleEvent{Kind: transport.LifecycleDisconnected, Reason: err.Error()}
			return
		}

		msg, err := protocol.ParseInbound(data)
		if err != nil {
			t.logger.With(map[string]any{"error": err}).Warn("skipping unparseable stream frame")
			continue
		}

		switch msg.Event {
		case protocol.EventStart:
			t.handleStart(msg, lifecycleChan)

		case protocol.EventMedia:
			t.handleMedia(msg, audioChan)

		case protocol.EventStop:
			t.mu.Lock()
			t.connected = false
			t.mu.Unlock()
			lifecycleChan <- transport.LifecycleEvent{Kind: transport.LifecycleDisconnected, Reason: "stream stopped"}
			return
		}
	}
}

func (t *PlivoTransportService) handleStart(msg *protocol.InboundMessage, lifecycleChan chan<- transport.LifecycleEvent) {
	if msg.Start == nil {
		t.logger.Warn("start frame without start payload")
		return
	}

	streamID := msg.Start.StreamID
	callID := msg.Start.CallID
	if callID == "" {
		// Plivo occasionally omits the call id; synthesize one so the
		// session stays traceable.
		callID = "call_" + streamID
		t.logger.With(map[string]any{"call_id": callID}).Warn("no callId in start frame, using default")
	}

	t.mu.Lock()
	t.streamID = streamID
	t.callID = callID
	t.mu.Unlock()

	lifecycleChan <- transport.LifecycleEvent{
		Kind:     transport.LifecycleConnected,
		StreamID: streamID,
		CallID:   callID,
	}
}

func (t *PlivoTransportService) handleMedia(msg *protocol.InboundMessage, audioChan chan<- core.AudioChunk) {
	if msg.Media == nil || msg.Media.Track != protocol.TrackInbound {
		return
	}
	raw, err := protocol.DecodeMediaPayload(msg.Media)
	if err != nil {
		t.logger.With(map[string]any{"error": err}).Warn("skipping undecodable media frame")
		return
	}

	audioChan <- core.AudioChunk{
		Data:       &raw,
		SampleRate: t.config.AudioSampleRate,
		Channels:   1,
		Format:     core.ULAW,
		Timestamp:  time.Now(),
	}
}

// SendAudio delivers one chunk to the caller as a playAudio frame. Chunks in
// other encodings are converted to the stream's μ-law format first.
func (t *PlivoTransportService) SendAudio(chunk core.AudioChunk) error {
	t.mu.RLock()
	connected := t.connected
	t.mu.RUnlock()
	if !connected {
		return fmt.Errorf("plivo: transport not connected")
	}

	if chunk.Format != core.ULAW || chunk.SampleRate != t.config.AudioSampleRate || chunk.Channels != 1 {
		converted, err := audio.ConvertAudioChunk(chunk, core.ULAW, 1, t.config.AudioSampleRate)
		if err != nil {
			return fmt.Errorf("plivo: convert outbound audio: %w", err)
		}
		chunk = converted
	}

	frame, err := protocol.MarshalPlayAudio(*chunk.Data, t.config.AudioSampleRate)
	if err != nil {
		return err
	}
	return t.writeMessage(frame)
}

// ClearPlayout discards everything queued in Plivo's playout buffer.
func (t *PlivoTransportService) ClearPlayout() error {
	t.mu.RLock()
	streamID := t.streamID
	connected := t.connected
	t.mu.RUnlock()
	if !connected {
		return fmt.Errorf("plivo: transport not connected")
	}

	frame, err := protocol.MarshalClearAudio(streamID)
	if err != nil {
		return err
	}
	t.logger.With(map[string]any{"stream_id": streamID}).Info("clearing Plivo playout buffer")
	return t.writeMessage(frame)
}

func (t *PlivoTransportService) writeMessage(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// Close closes the websocket connection.
func (t *PlivoTransportService) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return nil
	}
	t.connected = false
	return t.conn.Close()
}

// GetStreamID returns the current stream id.
func (t *PlivoTransportService) GetStreamID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.streamID
}

// GetCallID returns the current call id.
func (t *PlivoTransportService) GetCallID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.callID
}
