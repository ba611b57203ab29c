package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"time"

	"go.uber.org/zap"

	"webchat/internal/history"
	"webchat/internal/session"
	"webchat/internal/settings"
)

const (
	sessionCookie = "webchat_session"
	maxBodyBytes  = 1 << 20
)

//go:embed templates/index.html
var templatesFS embed.FS

var indexTmpl = template.Must(template.ParseFS(templatesFS, "templates/index.html"))

// WebServer serves the chat page and its JSON API. Each browser gets its own
// session, identified by a cookie.
type WebServer struct {
	sessions  *session.Manager
	logger    *zap.Logger
	server    *http.Server
	addr      string
	startTime time.Time
}

func NewWebServer(addr string, sessions *session.Manager, logger *zap.Logger) *WebServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebServer{
		sessions:  sessions,
		logger:    logger,
		addr:      addr,
		startTime: time.Now(),
	}
}

func (ws *WebServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/messages", ws.handleMessages)
	mux.HandleFunc("/api/settings", ws.handleSettings)
	mux.HandleFunc("/api/export", ws.handleExport)
	mux.HandleFunc("/api/status", ws.handleStatus)
	mux.HandleFunc("/", ws.handleRoot)
	return mux
}

// Start blocks until the server stops. It returns nil after Stop.
func (ws *WebServer) Start() error {
	ws.server = &http.Server{
		Addr:         ws.addr,
		Handler:      ws.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	ws.logger.Info("starting web server", zap.String("addr", ws.addr))
	if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (ws *WebServer) Stop(ctx context.Context) error {
	if ws.server == nil {
		return nil
	}
	return ws.server.Shutdown(ctx)
}

type messagesView struct {
	Messages []history.Message `json:"messages"`
	Pending  int               `json:"pending"`
}

type settingsView struct {
	Model         settings.Model         `json:"model"`
	Temperature   float64                `json:"temperature"`
	CredentialSet bool                   `json:"credential_set"`
	Models        []settings.ModelOption `json:"models"`
}

type settingsUpdate struct {
	Model       *string  `json:"model"`
	Temperature *float64 `json:"temperature"`
	APIKey      *string  `json:"api_key"`
}

type pageData struct {
	Settings settingsView
	MinTemp  float64
	MaxTemp  float64
	Step     float64
}

// lookup returns the caller's session without creating one.
func (ws *WebServer) lookup(r *http.Request) (*session.Session, bool) {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil, false
	}
	s, ok := ws.sessions.Get(c.Value)
	if ok {
		s.Touch()
	}
	return s, ok
}

// sessionFor returns the caller's session, starting a new one when the cookie
// is missing or refers to a session this process does not know. Only the page
// and state-changing requests call it.
func (ws *WebServer) sessionFor(w http.ResponseWriter, r *http.Request) *session.Session {
	if s, ok := ws.lookup(r); ok {
		return s
	}
	s := ws.sessions.Create()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    s.ID(),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	ws.logger.Info("session started", zap.String("session", s.ID()))
	return s
}

func (ws *WebServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s := ws.sessionFor(w, r)
	data := pageData{
		Settings: viewSettings(s.Panel().Values()),
		MinTemp:  settings.MinTemperature,
		MaxTemp:  settings.MaxTemperature,
		Step:     settings.TemperatureStep,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(w, data); err != nil {
		ws.logger.Error("failed to render page", zap.Error(err))
	}
}

func (ws *WebServer) handleMessages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s, ok := ws.lookup(r)
		if !ok {
			writeJSON(w, http.StatusOK, messagesView{Messages: []history.Message{}})
			return
		}
		writeJSON(w, http.StatusOK, messagesView{Messages: s.Messages(), Pending: s.Pending()})
	case http.MethodPost:
		var req struct {
			Text string `json:"text"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		s := ws.sessionFor(w, r)
		s.Submit(req.Text)
		writeJSON(w, http.StatusAccepted, messagesView{Messages: s.Messages(), Pending: s.Pending()})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (ws *WebServer) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		values := ws.sessions.Defaults()
		if s, ok := ws.lookup(r); ok {
			values = s.Panel().Values()
		}
		writeJSON(w, http.StatusOK, viewSettings(values))
	case http.MethodPost:
		var upd settingsUpdate
		if !decodeBody(w, r, &upd) {
			return
		}
		s := ws.sessionFor(w, r)
		if err := applySettings(s.Panel(), upd); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, viewSettings(s.Panel().Values()))
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (ws *WebServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", history.ExportContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+history.ExportFilename+`"`)
	if s, ok := ws.lookup(r); ok {
		_, _ = w.Write([]byte(s.ExportHistory()))
	}
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"uptime":   time.Since(ws.startTime).Round(time.Second).String(),
		"sessions": ws.sessions.Len(),
	})
}

// applySettings validates every field before changing anything.
func applySettings(p *settings.Panel, upd settingsUpdate) error {
	var (
		model settings.Model
		temp  float64
		err   error
	)
	if upd.Model != nil {
		if model, err = settings.ParseModel(*upd.Model); err != nil {
			return err
		}
	}
	if upd.Temperature != nil {
		if temp, err = settings.NormalizeTemperature(*upd.Temperature); err != nil {
			return err
		}
	}
	if upd.Model != nil {
		_ = p.SetModel(model)
	}
	if upd.Temperature != nil {
		_ = p.SetTemperature(temp)
	}
	if upd.APIKey != nil {
		p.SetCredential(*upd.APIKey)
	}
	return nil
}

func viewSettings(v settings.Values) settingsView {
	return settingsView{
		Model:         v.Model,
		Temperature:   v.Temperature,
		CredentialSet: v.Credential != "",
		Models:        settings.Models(),
	}
}

// decodeBody reads a size-capped JSON body into v and writes the error
// response itself when that fails.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	writeError(w, http.StatusBadRequest, "invalid JSON request: "+err.Error())
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
