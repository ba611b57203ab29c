package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webchat/internal/history"
	"webchat/internal/session"
	"webchat/internal/settings"
)

type echoCompleter struct{ fail bool }

func (e echoCompleter) Complete(ctx context.Context, prior []history.Message, prompt string, v settings.Values) (history.Message, error) {
	if e.fail {
		return history.Message{}, errors.New("backend down")
	}
	return history.BotMessage("echo: " + prompt), nil
}

func newTestServer(t *testing.T, c session.Completer) (*httptest.Server, *http.Client, *session.Manager) {
	t.Helper()
	mgr := session.NewManager(c, settings.Defaults())
	t.Cleanup(mgr.Close)
	srv := httptest.NewServer(NewWebServer(":0", mgr, nil).Handler())
	t.Cleanup(srv.Close)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return srv, &http.Client{Jar: jar}, mgr
}

func postJSON(t *testing.T, c *http.Client, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := c.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func getMessages(t *testing.T, c *http.Client, base string) messagesView {
	t.Helper()
	resp, err := c.Get(base + "/api/messages")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var v messagesView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestIndexPage(t *testing.T) {
	srv, client, mgr := newTestServer(t, echoCompleter{})

	resp, err := client.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `id="model-select"`)
	assert.Contains(t, string(body), `type="password"`)
	assert.Contains(t, string(body), `step="0.1"`)
	assert.Equal(t, 1, mgr.Len())

	resp, err = client.Get(srv.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSubmitAndReceive(t *testing.T) {
	srv, client, _ := newTestServer(t, echoCompleter{})

	resp := postJSON(t, client, srv.URL+"/api/messages", map[string]string{"text": "hello"})
	var v messagesView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.NotEmpty(t, v.Messages)
	assert.Equal(t, history.UserMessage("hello"), v.Messages[0])

	require.Eventually(t, func() bool { return len(getMessages(t, client, srv.URL).Messages) == 2 }, time.Second, 10*time.Millisecond)
	v = getMessages(t, client, srv.URL)
	assert.Equal(t, history.BotMessage("echo: hello"), v.Messages[1])
	assert.Equal(t, 0, v.Pending)
}

func TestSubmit_EmptyTextAccepted(t *testing.T) {
	srv, client, _ := newTestServer(t, echoCompleter{})
	resp := postJSON(t, client, srv.URL+"/api/messages", map[string]string{"text": ""})
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestSubmit_GatewayFailureShowsPlaceholder(t *testing.T) {
	srv, client, _ := newTestServer(t, echoCompleter{fail: true})

	resp := postJSON(t, client, srv.URL+"/api/messages", map[string]string{"text": "hello"})
	resp.Body.Close()

	require.Eventually(t, func() bool { return len(getMessages(t, client, srv.URL).Messages) == 2 }, time.Second, 10*time.Millisecond)
	v := getMessages(t, client, srv.URL)
	assert.Equal(t, history.BotMessage(session.FailureText), v.Messages[1])
}

func TestSessionsAreIsolatedByCookie(t *testing.T) {
	srv, alice, mgr := newTestServer(t, echoCompleter{})
	bob := &http.Client{}

	resp := postJSON(t, alice, srv.URL+"/api/messages", map[string]string{"text": "secret"})
	resp.Body.Close()

	resp, err := bob.Get(srv.URL + "/api/messages")
	require.NoError(t, err)
	var v messagesView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	resp.Body.Close()
	assert.Empty(t, v.Messages)
	assert.Equal(t, 1, mgr.Len(), "reading without a cookie must not start a session")
}

func TestCookielessReadsDoNotCreateSessions(t *testing.T) {
	srv, _, mgr := newTestServer(t, echoCompleter{})
	anon := &http.Client{}

	for i := 0; i < 50; i++ {
		for _, path := range []string{"/api/messages", "/api/settings", "/api/export", "/api/status"} {
			resp, err := anon.Get(srv.URL + path)
			require.NoError(t, err)
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			require.Equal(t, http.StatusOK, resp.StatusCode, path)
			assert.Empty(t, resp.Cookies(), path)
		}
	}
	assert.Equal(t, 0, mgr.Len())

	resp, err := anon.Get(srv.URL + "/api/settings")
	require.NoError(t, err)
	var v settingsView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	resp.Body.Close()
	assert.Equal(t, settings.Defaults().Model, v.Model)
	assert.False(t, v.CredentialSet)

	resp, err = anon.Get(srv.URL + "/api/export")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Empty(t, body)
	assert.Equal(t, "text/csv;charset=utf-8", resp.Header.Get("Content-Type"))
}

func TestPrunedSessionStartsOverOnNextPost(t *testing.T) {
	srv, client, mgr := newTestServer(t, echoCompleter{})

	resp := postJSON(t, client, srv.URL+"/api/messages", map[string]string{"text": "hello"})
	resp.Body.Close()
	require.Eventually(t, func() bool { return getMessages(t, client, srv.URL).Pending == 0 }, time.Second, 10*time.Millisecond)
	require.Equal(t, 1, mgr.Len())

	time.Sleep(5 * time.Millisecond)
	require.Equal(t, 1, mgr.Prune(time.Millisecond))

	// the stale cookie reads as an empty chat without resurrecting anything
	assert.Empty(t, getMessages(t, client, srv.URL).Messages)
	assert.Equal(t, 0, mgr.Len())

	resp = postJSON(t, client, srv.URL+"/api/messages", map[string]string{"text": "again"})
	resp.Body.Close()
	assert.Equal(t, 1, mgr.Len())
	require.Eventually(t, func() bool { return len(getMessages(t, client, srv.URL).Messages) == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, history.UserMessage("again"), getMessages(t, client, srv.URL).Messages[0])
}

func TestOversizedBodyRejected(t *testing.T) {
	srv, client, mgr := newTestServer(t, echoCompleter{})
	big := strings.Repeat("a", maxBodyBytes+1)

	for _, path := range []string{"/api/messages", "/api/settings"} {
		resp := postJSON(t, client, srv.URL+path, map[string]string{"text": big, "api_key": big})
		resp.Body.Close()
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode, path)
	}
	assert.Equal(t, 0, mgr.Len())
}

func TestSettings(t *testing.T) {
	srv, client, _ := newTestServer(t, echoCompleter{})

	resp := postJSON(t, client, srv.URL+"/api/settings", map[string]any{"model": "gpt4", "temperature": 0.7, "api_key": "sk-secret"})
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, string(body), "sk-secret")

	var v settingsView
	require.NoError(t, json.Unmarshal(body, &v))
	assert.Equal(t, settings.ModelGPT4, v.Model)
	assert.InDelta(t, 0.7, v.Temperature, 1e-9)
	assert.True(t, v.CredentialSet)
	assert.Len(t, v.Models, 2)

	t.Run("invalid update changes nothing", func(t *testing.T) {
		resp := postJSON(t, client, srv.URL+"/api/settings", map[string]any{"model": "chatgpt", "temperature": 2.5})
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp, err := client.Get(srv.URL + "/api/settings")
		require.NoError(t, err)
		var v settingsView
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
		resp.Body.Close()
		assert.Equal(t, settings.ModelGPT4, v.Model)
	})

	t.Run("bad json", func(t *testing.T) {
		resp, err := client.Post(srv.URL+"/api/settings", "application/json", strings.NewReader("{"))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestExport(t *testing.T) {
	srv, client, _ := newTestServer(t, echoCompleter{})

	resp := postJSON(t, client, srv.URL+"/api/messages", map[string]string{"text": "line one\nline two"})
	resp.Body.Close()
	require.Eventually(t, func() bool { return len(getMessages(t, client, srv.URL).Messages) == 2 }, time.Second, 10*time.Millisecond)

	resp, err := client.Get(srv.URL + "/api/export")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, "text/csv;charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `filename="history.csv"`)
	assert.Equal(t, "user\tline one line two\nbot\techo: line one line two", string(body))
}

func TestMethodNotAllowed(t *testing.T) {
	srv, client, _ := newTestServer(t, echoCompleter{})
	for _, path := range []string{"/api/messages", "/api/settings", "/api/export", "/api/status"} {
		req, err := http.NewRequest(http.MethodDelete, srv.URL+path, nil)
		require.NoError(t, err)
		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, path)
	}
}

func TestStatus(t *testing.T) {
	srv, client, _ := newTestServer(t, echoCompleter{})
	resp, err := client.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	var v map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	assert.Equal(t, "ok", v["status"])
}
