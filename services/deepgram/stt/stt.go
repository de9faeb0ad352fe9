package stt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"senabot/core"
	stthandler "senabot/handlers/stt"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

const (
	liveListenURL     = "wss://api.deepgram.com/v1/listen"
	keepAliveInterval = 5 * time.Second
	maxReconnects     = 3
)

type Config struct {
	APIKey     string `json:"api_key"`
	Model      string `json:"model"`
	Language   string `json:"language"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	// Endpointing silence threshold in milliseconds.
	Endpointing int `json:"endpointing"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() Config {
	return Config{
		Model:       "nova-2",
		Language:    "en",
		SampleRate:  16000,
		Channels:    1,
		Endpointing: 300,
	}
}

// DeepgramSTTService streams linear16 audio to Deepgram's live listen
// websocket and reports transcription hypotheses.
type DeepgramSTTService struct {
	config Config
	logger *core.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	ctx     context.Context
	cancel  context.CancelFunc
	closed  bool
	partial strings.Builder

	outChan   chan<- stthandler.TranscriptOutput
	fatalChan chan<- error
}

func NewDeepgramSTTService(config Config, logger *core.Logger) *DeepgramSTTService {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &DeepgramSTTService{
		config: config,
		logger: logger,
	}
}

func (s *DeepgramSTTService) Initialize(ctx context.Context) error {
	if s.config.APIKey == "" {
		return errors.New("deepgram: missing API key")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	return nil
}

func (s *DeepgramSTTService) Cleanup() error {
	s.mu.Lock()
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		// Best effort: ask Deepgram to flush and close before dropping the
		// socket.
		s.sendControl("CloseStream")
		conn.Close()
	}
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

func (s *DeepgramSTTService) Reset() error {
	s.mu.Lock()
	s.partial.Reset()
	s.mu.Unlock()
	return nil
}

func (s *DeepgramSTTService) StartTranscriptionSession(
	outChan chan<- stthandler.TranscriptOutput,
	fatalChan chan<- error,
) error {
	s.outChan = outChan
	s.fatalChan = fatalChan

	if err := s.connect(); err != nil {
		return err
	}
	go s.readLoop()
	go s.keepAliveLoop()
	return nil
}

func (s *DeepgramSTTService) connect() error {
	params := url.Values{}
	params.Set("encoding", "linear16")
	params.Set("sample_rate", strconv.Itoa(s.config.SampleRate))
	params.Set("channels", strconv.Itoa(s.config.Channels))
	params.Set("model", s.config.Model)
	params.Set("language", s.config.Language)
	params.Set("interim_results", "true")
	params.Set("smart_format", "true")
	params.Set("endpointing", strconv.Itoa(s.config.Endpointing))

	header := http.Header{}
	header.Set("Authorization", "Token "+s.config.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(s.ctx, liveListenURL+"?"+params.Encode(), header)
	if err != nil {
		return fmt.Errorf("deepgram: dial: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.logger.Info("deepgram live session opened")
	return nil
}

func (s *DeepgramSTTService) SendTranscriptionAudio(data []byte) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errors.New("deepgram: no open session")
	}
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

// Flush forces Deepgram to finalize everything it has buffered. The
// finalized transcript comes back flagged from_finalize.
func (s *DeepgramSTTService) Flush() error {
	return s.sendControl("Finalize")
}

func (s *DeepgramSTTService) sendControl(messageType string) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errors.New("deepgram: no open session")
	}
	payload, _ := sonic.Marshal(map[string]string{"type": messageType})
	return conn.WriteMessage(websocket.TextMessage, payload)
}

type listenResponse struct {
	Type         string `json:"type"`
	IsFinal      bool   `json:"is_final"`
	SpeechFinal  bool   `json:"speech_final"`
	FromFinalize bool   `json:"from_finalize"`
	Channel      struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (s *DeepgramSTTService) readLoop() {
	reconnects := 0
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
			if closed {
				return
			}
			reconnects++
			if reconnects > maxReconnects {
				s.fatalChan <- fmt.Errorf("deepgram: connection lost: %w", err)
				return
			}
			s.logger.With(map[string]any{"attempt": reconnects, "error": err}).Warn("deepgram connection lost, reconnecting")
			if err := s.connect(); err != nil {
				s.fatalChan <- err
				return
			}
			continue
		}

		var response listenResponse
		if err := sonic.Unmarshal(data, &response); err != nil {
			s.logger.With(map[string]any{"error": err}).Warn("skipping unparseable deepgram message")
			continue
		}
		if response.Type != "Results" || len(response.Channel.Alternatives) == 0 {
			continue
		}
		s.handleResult(response)
	}
}

// handleResult stitches finalized segments together until the utterance
// endpoint, so one user turn becomes one final transcript.
func (s *DeepgramSTTService) handleResult(response listenResponse) {
	transcript := strings.TrimSpace(response.Channel.Alternatives[0].Transcript)

	if !response.IsFinal {
		if transcript != "" {
			s.outChan <- stthandler.TranscriptOutput{Text: transcript, IsFinal: false}
		}
		return
	}

	s.mu.Lock()
	if transcript != "" {
		if s.partial.Len() > 0 {
			s.partial.WriteString(" ")
		}
		s.partial.WriteString(transcript)
	}
	full := s.partial.String()
	endpoint := response.SpeechFinal || response.FromFinalize
	if endpoint {
		s.partial.Reset()
	}
	s.mu.Unlock()

	if endpoint && full != "" {
		s.outChan <- stthandler.TranscriptOutput{Text: full, IsFinal: true}
	}
}

func (s *DeepgramSTTService) keepAliveLoop() {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.sendControl("KeepAlive"); err != nil {
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}
