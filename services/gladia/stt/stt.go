package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"senabot/core"
	stthandler "senabot/handlers/stt"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

const initiateURL = "https://api.gladia.io/v2/live"

type Config struct {
	APIKey     string `json:"api_key"`
	Model      string `json:"model"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() Config {
	return Config{
		Model:      "solaria-1",
		SampleRate: 16000,
		Channels:   1,
	}
}

// GladiaSTTService streams linear16 audio to a Gladia v2 live transcription
// session. The session is initiated over HTTP, which returns the websocket
// URL to stream against.
type GladiaSTTService struct {
	config Config
	logger *core.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	closed bool

	outChan   chan<- stthandler.TranscriptOutput
	fatalChan chan<- error
}

func NewGladiaSTTService(config Config, logger *core.Logger) *GladiaSTTService {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &GladiaSTTService{
		config: config,
		logger: logger,
	}
}

func (s *GladiaSTTService) Initialize(ctx context.Context) error {
	if s.config.APIKey == "" {
		return errors.New("gladia: missing API key")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	return nil
}

func (s *GladiaSTTService) Cleanup() error {
	s.mu.Lock()
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		payload, _ := sonic.Marshal(map[string]string{"type": "stop_recording"})
		conn.WriteMessage(websocket.TextMessage, payload)
		conn.Close()
	}
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

func (s *GladiaSTTService) Reset() error {
	return nil
}

func (s *GladiaSTTService) StartTranscriptionSession(
	outChan chan<- stthandler.TranscriptOutput,
	fatalChan chan<- error,
) error {
	s.outChan = outChan
	s.fatalChan = fatalChan

	wsURL, err := s.initiateSession()
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(s.ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("gladia: dial: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.logger.Info("gladia live session opened")

	go s.readLoop()
	return nil
}

// initiateSession asks the HTTP API for a live session and returns the
// websocket URL to stream audio to.
func (s *GladiaSTTService) initiateSession() (string, error) {
	body, err := sonic.Marshal(map[string]any{
		"encoding":    "wav/pcm",
		"bit_depth":   16,
		"sample_rate": s.config.SampleRate,
		"channels":    s.config.Channels,
		"model":       s.config.Model,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, initiateURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Gladia-Key", s.config.APIKey)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gladia: initiate session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("gladia: initiate session: status %d: %s", resp.StatusCode, data)
	}

	var session struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if err := sonic.Unmarshal(data, &session); err != nil {
		return "", fmt.Errorf("gladia: parse session response: %w", err)
	}
	if session.URL == "" {
		return "", errors.New("gladia: session response missing websocket url")
	}
	return session.URL, nil
}

func (s *GladiaSTTService) SendTranscriptionAudio(data []byte) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errors.New("gladia: no open session")
	}
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

// Flush is a no-op: Gladia endpoints utterances server-side and flags them
// with is_final.
func (s *GladiaSTTService) Flush() error {
	return nil
}

type liveMessage struct {
	Type string `json:"type"`
	Data struct {
		IsFinal   bool `json:"is_final"`
		Utterance struct {
			Text string `json:"text"`
		} `json:"utterance"`
	} `json:"data"`
}

func (s *GladiaSTTService) readLoop() {
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
				s.fatalChan <- fmt.Errorf("gladia: connection lost: %w", err)
			}
			return
		}

		var msg liveMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			s.logger.With(map[string]any{"error": err}).Warn("skipping unparseable gladia message")
			continue
		}
		if msg.Type != "transcript" {
			continue
		}
		text := strings.TrimSpace(msg.Data.Utterance.Text)
		if text == "" {
			continue
		}
		s.outChan <- stthandler.TranscriptOutput{Text: text, IsFinal: msg.Data.IsFinal}
	}
}
