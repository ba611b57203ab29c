package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webchat/internal/history"
	"webchat/internal/session"
	"webchat/internal/settings"
)

type nopCompleter struct{}

func (nopCompleter) Complete(context.Context, []history.Message, string, settings.Values) (history.Message, error) {
	return history.BotMessage("ok"), nil
}

func TestExportAll_WritesNonEmptySessions(t *testing.T) {
	mgr := session.NewManager(nopCompleter{}, settings.Defaults())
	defer mgr.Close()

	busy := mgr.Create()
	busy.Receive(history.UserMessage("hi\nthere"))
	busy.Receive(history.BotMessage("hello"))
	idle := mgr.Create()

	dir := t.TempDir()
	s := New(mgr, dir, nil)
	n, err := s.ExportAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := os.ReadFile(filepath.Join(dir, busy.ID(), "history.csv"))
	require.NoError(t, err)
	assert.Equal(t, "user\thi there\nbot\thello", string(data))

	_, err = os.Stat(filepath.Join(dir, idle.ID()))
	assert.True(t, os.IsNotExist(err))
}

func TestExportAll_CanceledContext(t *testing.T) {
	mgr := session.NewManager(nopCompleter{}, settings.Defaults())
	defer mgr.Close()
	mgr.Create().Receive(history.UserMessage("x"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := New(mgr, t.TempDir(), nil).ExportAll(ctx)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStart(t *testing.T) {
	mgr := session.NewManager(nopCompleter{}, settings.Defaults())
	defer mgr.Close()

	s := New(mgr, t.TempDir(), nil)
	require.NoError(t, s.Start(""))
	assert.False(t, s.IsRunning())

	require.Error(t, s.Start("every now and then"))

	require.NoError(t, s.Start("*/5 * * * *"))
	assert.True(t, s.IsRunning())
	s.Stop()
}

func TestStartPrune(t *testing.T) {
	mgr := session.NewManager(nopCompleter{}, settings.Defaults())
	defer mgr.Close()

	s := New(mgr, t.TempDir(), nil)
	require.NoError(t, s.StartPrune("", time.Hour))
	require.NoError(t, s.StartPrune("@every 1m", 0))
	assert.False(t, s.IsRunning())

	require.Error(t, s.StartPrune("whenever", time.Hour))

	require.NoError(t, s.StartPrune("@every 10m", time.Hour))
	assert.True(t, s.IsRunning())
	s.Stop()
}

func TestPrune_KeepsRecentSessions(t *testing.T) {
	mgr := session.NewManager(nopCompleter{}, settings.Defaults())
	defer mgr.Close()
	mgr.Create()

	s := New(mgr, t.TempDir(), nil)
	assert.Equal(t, 0, s.Prune(time.Hour))
	assert.Equal(t, 1, mgr.Len())

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, s.Prune(time.Millisecond))
	assert.Equal(t, 0, mgr.Len())
}
