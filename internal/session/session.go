// Package session owns the conversation state for a single UI: the
// transcript, the pending input buffer and the parameter panel, and drives
// completion requests when the user submits.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"webchat/internal/history"
	"webchat/internal/settings"
	"webchat/internal/storage"
)

// FailureText replaces the bot reply whenever a completion fails.
const FailureText = "Something went wrong! Check the console."

// Completer is the completion backend as the session sees it.
type Completer interface {
	Complete(ctx context.Context, prior []history.Message, prompt string, v settings.Values) (history.Message, error)
}

type Mode string

const (
	// ModeConcurrent sends every submit at once; replies land in completion order.
	ModeConcurrent Mode = "concurrent"
	// ModeSerial keeps one request in flight; replies land in submission order.
	ModeSerial Mode = "serial"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeConcurrent, ModeSerial:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown submit mode %q", s)
	}
}

// FailurePolicy decides which message the user sees when a request fails.
type FailurePolicy func(err error) history.Message

// Placeholder renders every failure as the fixed apology.
func Placeholder(error) history.Message {
	return history.BotMessage(FailureText)
}

type Option func(*Session)

func WithMode(m Mode) Option { return func(s *Session) { s.mode = m } }

func WithLogger(l *zap.Logger) Option { return func(s *Session) { s.logger = l } }

func WithRecorder(r storage.Recorder) Option { return func(s *Session) { s.recorder = r } }

func WithFailurePolicy(p FailurePolicy) Option { return func(s *Session) { s.onFailure = p } }

// OnAppend registers fn to be called after every transcript append, in
// append order.
func OnAppend(fn func(history.Message)) Option {
	return func(s *Session) { s.listeners = append(s.listeners, fn) }
}

type job struct {
	idx    int
	prompt string
	prior  []history.Message
}

type Session struct {
	id         string
	createdAt  time.Time
	ctx        context.Context
	transcript *history.Transcript
	panel      *settings.Panel
	completer  Completer

	mode      Mode
	logger    *zap.Logger
	recorder  storage.Recorder
	onFailure FailurePolicy
	listeners []func(history.Message)

	// appendMu serializes appends with listener notification so listeners
	// observe the transcript order. Listeners must not call Submit.
	appendMu sync.Mutex
	// submitMu makes a serial submit's append and enqueue atomic with
	// respect to the drain loop's context snapshot.
	submitMu sync.Mutex

	mu         sync.Mutex
	input      string
	pending    int
	lastActive time.Time
	idle     *sync.Cond
	queue    []job
	draining bool
}

// New creates a session. ctx bounds all of its completion requests.
func New(ctx context.Context, id string, completer Completer, panel *settings.Panel, opts ...Option) *Session {
	if panel == nil {
		panel = settings.NewPanel(settings.Defaults())
	}
	s := &Session{
		id:         id,
		createdAt:  time.Now().UTC(),
		ctx:        ctx,
		transcript: history.NewTranscript(),
		panel:      panel,
		completer:  completer,
		mode:       ModeConcurrent,
		logger:     zap.NewNop(),
		onFailure:  Placeholder,
	}
	s.lastActive = s.createdAt
	s.idle = sync.NewCond(&s.mu)
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Session) ID() string                  { return s.id }
func (s *Session) CreatedAt() time.Time        { return s.createdAt }
func (s *Session) Panel() *settings.Panel      { return s.panel }
func (s *Session) Mode() Mode                  { return s.mode }
func (s *Session) Messages() []history.Message { return s.transcript.Messages() }
func (s *Session) Len() int                    { return s.transcript.Len() }

func (s *Session) SetInput(text string) {
	s.mu.Lock()
	s.input = text
	s.lastActive = time.Now().UTC()
	s.mu.Unlock()
}

// Touch marks the session as used by its owner.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now().UTC()
	s.mu.Unlock()
}

// LastActive reports when the owner last used the session.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// Pending reports how many submits are still waiting for a reply.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Wait blocks until no submit is awaiting a reply.
func (s *Session) Wait() {
	s.mu.Lock()
	for s.pending > 0 {
		s.idle.Wait()
	}
	s.mu.Unlock()
}

// Submit appends text as a user message, clears the input buffer and starts
// a completion request. It never blocks on the backend and never fails;
// the reply (or the failure placeholder) is appended later via Receive.
func (s *Session) Submit(text string) {
	s.mu.Lock()
	s.input = ""
	s.pending++
	s.lastActive = time.Now().UTC()
	s.mu.Unlock()

	if s.mode == ModeSerial {
		s.submitMu.Lock()
		_, idx := s.append(history.UserMessage(text))
		s.enqueue(job{idx: idx, prompt: text})
		s.submitMu.Unlock()
		return
	}
	prior, _ := s.append(history.UserMessage(text))
	go s.run(job{prompt: text, prior: prior})
}

// Receive appends msg as-is.
func (s *Session) Receive(msg history.Message) {
	s.append(msg)
}

// ExportHistory renders the transcript for download.
func (s *Session) ExportHistory() string {
	return history.Export(s.transcript.Messages())
}

func (s *Session) append(msg history.Message) ([]history.Message, int) {
	s.appendMu.Lock()
	defer s.appendMu.Unlock()
	prior := s.transcript.Append(msg)
	if s.recorder != nil {
		ev := storage.Event{Timestamp: time.Now().UTC(), SessionID: s.id, Sender: string(msg.Sender), Text: msg.Text}
		if err := s.recorder.AppendEvent(ev); err != nil {
			s.logger.Warn("failed to record message", zap.String("session", s.id), zap.Error(err))
		}
	}
	for _, fn := range s.listeners {
		fn(msg)
	}
	return prior, len(prior)
}

func (s *Session) enqueue(j job) {
	s.mu.Lock()
	s.queue = append(s.queue, j)
	start := !s.draining
	s.draining = true
	s.mu.Unlock()
	if start {
		go s.drain()
	}
}

func (s *Session) drain() {
	for {
		s.submitMu.Lock()
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.draining = false
			s.mu.Unlock()
			s.submitMu.Unlock()
			return
		}
		j := s.queue[0]
		skip := make(map[int]bool, len(s.queue))
		for _, q := range s.queue {
			skip[q.idx] = true
		}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		// Replies to earlier jobs are in the transcript by now; queued user
		// messages (this one included) are not part of the context.
		all := s.transcript.Messages()
		s.submitMu.Unlock()
		prior := make([]history.Message, 0, len(all))
		for i, m := range all {
			if !skip[i] {
				prior = append(prior, m)
			}
		}
		j.prior = prior
		s.run(j)
	}
}

func (s *Session) run(j job) {
	values := s.panel.Values()
	s.logger.Debug("sending completion request",
		zap.String("session", s.id),
		zap.String("model", values.Model.BackendName()),
		zap.Float64("temperature", values.Temperature),
		zap.Int("context_messages", len(j.prior)))

	start := time.Now()
	reply, err := s.completer.Complete(s.ctx, j.prior, j.prompt, values)
	if err != nil {
		s.logger.Error("completion request failed",
			zap.String("session", s.id),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		reply = s.onFailure(err)
	} else {
		s.logger.Info("completion received",
			zap.String("session", s.id),
			zap.Duration("elapsed", time.Since(start)),
			zap.Int("reply_len", len(reply.Text)))
	}
	s.Receive(reply)

	s.mu.Lock()
	s.pending--
	if s.pending == 0 {
		s.idle.Broadcast()
	}
	s.mu.Unlock()
}
