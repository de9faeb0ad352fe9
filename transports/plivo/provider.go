package plivo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"senabot/core"
	"senabot/handlers/transport"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// PlivoTransportProvider runs the HTTP server Plivo connects to. Every
// websocket upgrade on the stream path becomes one pipeline session, handed to
// the registered job handler.
type PlivoTransportProvider struct {
	config *Config
	logger *core.Logger

	server     *http.Server
	upgrader   websocket.Upgrader
	jobHandler func(svc transport.ITransportService, ctx context.Context) error

	sessions sync.WaitGroup
}

func NewPlivoTransportProvider(config *Config, logger *core.Logger) *PlivoTransportProvider {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &PlivoTransportProvider{
		config: config,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (p *PlivoTransportProvider) RegisterJobHandler(
	handler func(svc transport.ITransportService, ctx context.Context) error,
) error {
	if handler == nil {
		return fmt.Errorf("plivo: nil job handler")
	}
	p.jobHandler = handler
	return nil
}

// Start listens for Plivo stream connections. It blocks until the server
// shuts down.
func (p *PlivoTransportProvider) Start() error {
	if p.jobHandler == nil {
		return fmt.Errorf("plivo: no job handler registered")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", p.handleHealth)
	mux.HandleFunc(p.config.Path, p.handleStream)

	p.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", p.config.Port),
		Handler: mux,
	}

	p.logger.With(map[string]any{"port": p.config.Port, "path": p.config.Path}).Info("Plivo stream server listening")
	if err := p.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down and waits for in-flight sessions to finish.
func (p *PlivoTransportProvider) Stop() error {
	if p.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := p.server.Shutdown(shutdownCtx)
	p.sessions.Wait()
	return err
}

func (p *PlivoTransportProvider) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	body, _ := sonic.Marshal(map[string]string{"status": "ok", "service": "senabot"})
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func (p *PlivoTransportProvider) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.logger.With(map[string]any{"error": err}).Error("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(p.config.MaxMessageSize)

	sessionID := uuid.NewString()
	sessionLogger := p.logger.With(map[string]any{"session_id": sessionID})
	sessionLogger.Info("new Plivo stream connection")

	svc := NewPlivoTransportService(conn, p.config, sessionLogger)

	// The handler goroutine owns the session: returning would cancel the
	// request context out from under the pipeline.
	p.sessions.Add(1)
	defer p.sessions.Done()
	defer svc.Close()

	ctx := core.WithSessionLogger(r.Context(), sessionLogger)
	if err := p.jobHandler(svc, ctx); err != nil {
		sessionLogger.With(map[string]any{"error": err}).Error("session ended with error")
		return
	}
	sessionLogger.Info("session ended")
}
