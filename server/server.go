// Package server exposes the agent over a WebSocket chat endpoint plus a
// health probe. One connection serves one user; each inbound message runs
// one engine turn and streams nothing in between, so the protocol stays a
// strict request/response pair per turn.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/applymate/agent-go/checkpoint"
	"github.com/applymate/agent-go/checkpoint/inmem"
	"github.com/applymate/agent-go/engine"
	"github.com/applymate/agent-go/retriever"
	"github.com/applymate/agent-go/tools"
)

// Config wires the server together. AnthropicKey is required; everything
// else has a working default.
type Config struct {
	// AnthropicKey authenticates the Claude client.
	AnthropicKey string

	// SystemPrompt overrides the default assistant prompt.
	SystemPrompt string

	// Model selects the Claude model.
	Model string

	// MaxTokens caps each completion.
	MaxTokens int64

	// Store persists checkpoints. Defaults to the in-memory store.
	Store checkpoint.Store

	// Retriever enables background retrieval when set.
	Retriever retriever.Retriever

	// MaxIterations caps model decisions per turn.
	MaxIterations int

	// StepTimeout bounds each model call.
	StepTimeout time.Duration
}

// Server is the WebSocket front end over one engine.
type Server struct {
	registry *tools.Registry
	engine   *engine.Engine
	upgrader websocket.Upgrader
}

// New builds a server from the config.
func New(cfg Config) (*Server, error) {
	if strings.TrimSpace(cfg.AnthropicKey) == "" {
		return nil, errors.New("anthropic key is required")
	}

	registry, err := tools.NewRegistry()
	if err != nil {
		return nil, err
	}

	store := cfg.Store
	if store == nil {
		store = inmem.New()
	}

	var modelOpts []engine.AnthropicOption
	if cfg.Model != "" {
		modelOpts = append(modelOpts, engine.WithModel(cfg.Model))
	}
	if cfg.MaxTokens > 0 {
		modelOpts = append(modelOpts, engine.WithMaxTokens(cfg.MaxTokens))
	}
	model := engine.NewAnthropic(cfg.AnthropicKey, modelOpts...)

	engOpts := []engine.Option{}
	if cfg.SystemPrompt != "" {
		engOpts = append(engOpts, engine.WithSystemPrompt(cfg.SystemPrompt))
	}
	if cfg.Retriever != nil {
		engOpts = append(engOpts, engine.WithRetriever(cfg.Retriever))
	}
	if cfg.MaxIterations > 0 {
		engOpts = append(engOpts, engine.WithMaxIterations(cfg.MaxIterations))
	}
	if cfg.StepTimeout > 0 {
		engOpts = append(engOpts, engine.WithStepTimeout(cfg.StepTimeout))
	}

	return &Server{
		registry: registry,
		engine:   engine.New(store, model, registry, engOpts...),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect from app origins; auth happens at
			// the gateway in front of this server.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}, nil
}

// AddTools registers tools with the engine's registry. Call before Run.
func (s *Server) AddTools(ts ...*tools.Tool) error {
	for _, t := range ts {
		if err := s.registry.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// Run serves /ws and /health on addr until the listener fails.
func (s *Server) Run(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/health", s.handleHealth)

	log.Printf("[SERVER] listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"ok"}`)
}

// chatRequest is one inbound turn. ThreadID is optional: the first turn
// of a fresh conversation may omit it and use the server-assigned id
// from the response afterwards.
type chatRequest struct {
	ThreadID  string `json:"thread_id,omitempty"`
	Namespace string `json:"namespace"`
	Message   string `json:"message"`
}

type chatResponse struct {
	ThreadID   string `json:"thread_id"`
	Answer     string `json:"answer,omitempty"`
	Iterations int    `json:"iterations,omitempty"`
	Incomplete bool   `json:"incomplete,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[SERVER] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[SERVER] client connected: %s", r.RemoteAddr)
	for {
		var req chatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[SERVER] read failed: %v", err)
			}
			return
		}

		resp := s.runTurn(r.Context(), req)
		if err := conn.WriteJSON(resp); err != nil {
			log.Printf("[SERVER] write failed: %v", err)
			return
		}
	}
}

func (s *Server) runTurn(ctx context.Context, req chatRequest) chatResponse {
	threadID := strings.TrimSpace(req.ThreadID)
	if threadID == "" {
		threadID = uuid.NewString()
	}

	out, err := s.engine.Run(ctx, engine.Input{
		ThreadID:  threadID,
		Namespace: req.Namespace,
		Message:   req.Message,
	})
	if err != nil {
		log.Printf("[SERVER] turn failed on thread %s: %v", threadID, err)
		return chatResponse{ThreadID: threadID, Error: err.Error()}
	}

	return chatResponse{
		ThreadID:   threadID,
		Answer:     out.Answer,
		Iterations: out.Iterations,
		Incomplete: out.Incomplete,
	}
}
