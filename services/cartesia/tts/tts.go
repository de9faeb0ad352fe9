package tts

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"senabot/core"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	websocketURL    = "wss://api.cartesia.ai/tts/websocket"
	cartesiaVersion = "2024-06-10"
)

type Config struct {
	APIKey     string `json:"api_key"`
	Model      string `json:"model"`
	VoiceID    string `json:"voice_id"`
	Language   string `json:"language"`
	SampleRate int    `json:"sample_rate"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() Config {
	return Config{
		Model:      "sonic-2",
		Language:   "en",
		SampleRate: 8000,
	}
}

// CartesiaTTSService streams text to Cartesia's websocket API and receives
// raw pcm_s16le audio back. Each reply runs under one context id; cancelling
// a context abandons its synthesis server-side, and a fresh context id keeps
// stale audio from bleeding into the next turn.
type CartesiaTTSService struct {
	config Config
	logger *core.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	ctx       context.Context
	cancel    context.CancelFunc
	closed    bool
	contextID string

	audioChan chan<- core.AudioChunk
	fatalChan chan<- error
	doneChan  chan<- bool
}

func NewCartesiaTTSService(config Config, logger *core.Logger) *CartesiaTTSService {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &CartesiaTTSService{
		config: config,
		logger: logger,
	}
}

func (s *CartesiaTTSService) Initialize(ctx context.Context) error {
	if s.config.APIKey == "" {
		return errors.New("cartesia: missing API key")
	}
	if s.config.VoiceID == "" {
		return errors.New("cartesia: missing voice id")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.contextID = uuid.NewString()
	return nil
}

func (s *CartesiaTTSService) Cleanup() error {
	s.mu.Lock()
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

// Reset cancels the active synthesis context and rotates to a fresh one, so
// audio still in flight for the abandoned context is dropped on receive.
func (s *CartesiaTTSService) Reset() error {
	s.mu.Lock()
	conn := s.conn
	oldContext := s.contextID
	s.contextID = uuid.NewString()
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	payload, err := sonic.Marshal(map[string]any{
		"context_id": oldContext,
		"cancel":     true,
	})
	if err != nil {
		return err
	}
	return s.write(payload)
}

func (s *CartesiaTTSService) StartTTSSession(
	audioChan chan<- core.AudioChunk,
	fatalChan chan<- error,
	doneChan chan<- bool,
) error {
	s.audioChan = audioChan
	s.fatalChan = fatalChan
	s.doneChan = doneChan

	dialURL := fmt.Sprintf("%s?api_key=%s&cartesia_version=%s", websocketURL, s.config.APIKey, cartesiaVersion)
	conn, _, err := websocket.DefaultDialer.DialContext(s.ctx, dialURL, nil)
	if err != nil {
		return fmt.Errorf("cartesia: dial: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.logger.Info("cartesia session opened")

	go s.readLoop()
	return nil
}

// BufferText streams one text fragment into the active context. The context
// stays open for more fragments until Flush.
func (s *CartesiaTTSService) BufferText(text string) error {
	return s.sendTranscript(text, true)
}

// Flush closes the active context; once Cartesia finishes synthesizing the
// buffered text it answers with done.
func (s *CartesiaTTSService) Flush() error {
	return s.sendTranscript("", false)
}

func (s *CartesiaTTSService) sendTranscript(text string, more bool) error {
	s.mu.Lock()
	contextID := s.contextID
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errors.New("cartesia: no open session")
	}

	payload, err := sonic.Marshal(map[string]any{
		"context_id": contextID,
		"model_id":   s.config.Model,
		"transcript": text,
		"continue":   more,
		"language":   s.config.Language,
		"voice": map[string]any{
			"mode": "id",
			"id":   s.config.VoiceID,
		},
		"output_format": map[string]any{
			"container":   "raw",
			"encoding":    "pcm_s16le",
			"sample_rate": s.config.SampleRate,
		},
	})
	if err != nil {
		return err
	}
	return s.write(payload)
}

func (s *CartesiaTTSService) write(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return errors.New("cartesia: no open session")
	}
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

type serverMessage struct {
	Type      string `json:"type"`
	ContextID string `json:"context_id"`
	Data      string `json:"data"`
	Error     string `json:"error"`
}

func (s *CartesiaTTSService) readLoop() {
	for {
		s.mu.Lock()
		conn := s.conn
		closed := s.closed
		s.mu.Unlock()
		if closed || conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.mu.Lock()
			closed = s.closed
			s.mu.Unlock()
			if !closed {
				s.fatalChan <- fmt.Errorf("cartesia: connection lost: %w", err)
			}
			return
		}

		var msg serverMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			s.logger.With(map[string]any{"error": err}).Warn("skipping unparseable cartesia message")
			continue
		}

		s.mu.Lock()
		current := s.contextID
		s.mu.Unlock()
		if msg.ContextID != "" && msg.ContextID != current {
			// Audio for a cancelled context.
			continue
		}

		switch msg.Type {
		case "chunk":
			raw, err := base64.StdEncoding.DecodeString(msg.Data)
			if err != nil {
				s.logger.With(map[string]any{"error": err}).Warn("skipping undecodable audio chunk")
				continue
			}
			s.audioChan <- core.AudioChunk{
				Data:       &raw,
				SampleRate: s.config.SampleRate,
				Channels:   1,
				Format:     core.PCM,
				Timestamp:  time.Now(),
			}

		case "done":
			s.doneChan <- true

		case "error":
			s.fatalChan <- fmt.Errorf("cartesia: server error: %s", msg.Error)
		}
	}
}
