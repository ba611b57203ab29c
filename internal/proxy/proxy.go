// Package proxy is a reference implementation of the chat-completion
// backend the web client talks to. It accepts the gateway wire format and
// forwards the conversation to an LLM provider.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"webchat/internal/gateway"
	"webchat/internal/history"
	"webchat/internal/llm"
	"webchat/internal/settings"
	"webchat/internal/storage"
)

const maxBodyBytes = 4 << 20

// ClientSource hands out LLM clients by provider name.
type ClientSource interface {
	CreateClient(provider string) (llm.Client, error)
}

type Server struct {
	clients  ClientSource
	provider string
	recorder storage.Recorder
	logger   *zap.Logger
	server   *http.Server
}

func NewServer(clients ClientSource, provider string, recorder storage.Recorder, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{clients: clients, provider: provider, recorder: recorder, logger: logger}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "provider": s.provider})
	})
	return mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.logger.Info("starting chat proxy", zap.String("addr", addr), zap.String("provider", s.provider))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req gateway.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request: "+err.Error())
		return
	}
	if err := validate(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	client, err := s.clients.CreateClient(s.provider)
	if err != nil {
		s.logger.Error("failed to create llm client", zap.String("provider", s.provider), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "llm client unavailable")
		return
	}

	msgs := make([]llm.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}

	start := time.Now()
	resp, err := client.Generate(r.Context(), llm.Request{
		Model:       req.Model,
		Temperature: req.Temperature,
		Messages:    msgs,
		APIKey:      req.APIKey,
	})
	if err != nil {
		s.logger.Error("completion failed",
			zap.String("model", req.Model),
			zap.Int("messages", len(msgs)),
			zap.Error(err))
		writeError(w, http.StatusBadGateway, "completion failed")
		return
	}

	s.logger.Info("completion served",
		zap.String("model", resp.Model),
		zap.Int("prompt_tokens", resp.PromptTokens),
		zap.Int("completion_tokens", resp.CompletionTokens),
		zap.Int("total_tokens", resp.TotalTokens),
		zap.Duration("elapsed", time.Since(start)))

	reply := history.BotMessage(resp.Content)
	if s.recorder != nil {
		ev := storage.Event{Timestamp: time.Now().UTC(), Sender: string(reply.Sender), Text: reply.Text, Model: resp.Model}
		if err := s.recorder.AppendEvent(ev); err != nil {
			s.logger.Warn("failed to record completion", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, reply)
}

func validate(req gateway.Request) error {
	if len(req.Messages) == 0 {
		return errors.New("messages must not be empty")
	}
	if req.Model == "" {
		return errors.New("model is required")
	}
	if _, err := settings.NormalizeTemperature(req.Temperature); err != nil {
		return err
	}
	for _, m := range req.Messages {
		switch m.Role {
		case gateway.RoleUser, gateway.RoleAssistant, "system":
		default:
			return errors.New("unknown role " + m.Role)
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
