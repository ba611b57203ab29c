package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"webchat/internal/analytics"
	"webchat/internal/auth"
	"webchat/internal/gateway"
	"webchat/internal/llm"
	"webchat/internal/proxy"
	"webchat/internal/scheduler"
	"webchat/internal/session"
	"webchat/internal/settings"
	"webchat/internal/storage"
	"webchat/internal/telegram"
	"webchat/internal/web"
)

const shutdownTimeout = 5 * time.Second

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func panelDefaults() (settings.Values, error) {
	model, err := settings.ParseModel(cfg.DefaultModel)
	if err != nil {
		return settings.Values{}, fmt.Errorf("DEFAULT_MODEL: %w", err)
	}
	temp, err := settings.NormalizeTemperature(cfg.DefaultTemperature)
	if err != nil {
		return settings.Values{}, fmt.Errorf("DEFAULT_TEMPERATURE: %w", err)
	}
	return settings.Values{Model: model, Temperature: temp, Credential: cfg.DefaultAPIKey}, nil
}

func newSessionManager() (*session.Manager, error) {
	mode, err := session.ParseMode(cfg.SubmitMode)
	if err != nil {
		return nil, fmt.Errorf("SUBMIT_MODE: %w", err)
	}
	defaults, err := panelDefaults()
	if err != nil {
		return nil, err
	}

	endpoint := cfg.GatewayURL
	if gatewayURL != "" {
		endpoint = gatewayURL
	}
	gw := gateway.New(endpoint, cfg.GatewayTimeout)

	opts := []session.Option{session.WithMode(mode), session.WithLogger(logger)}
	if cfg.LogFilePath != "" {
		rec, err := storage.NewFileRecorder(cfg.LogFilePath)
		if err != nil {
			logger.Warn("failed to init transcript log", zap.String("path", cfg.LogFilePath), zap.Error(err))
		} else {
			opts = append(opts, session.WithRecorder(rec))
		}
	}

	logger.Info("gateway configured",
		zap.String("endpoint", gw.Endpoint()),
		zap.Duration("timeout", cfg.GatewayTimeout),
		zap.String("mode", string(mode)))
	return session.NewManager(gw, defaults, opts...), nil
}

func startScheduler(mgr *session.Manager) (*scheduler.Scheduler, error) {
	sched := scheduler.New(mgr, cfg.ExportDir, logger)
	if err := sched.Start(cfg.ExportSchedule); err != nil {
		return nil, err
	}
	if err := sched.StartPrune(cfg.SessionPruneSchedule, cfg.SessionMaxIdle); err != nil {
		sched.Stop()
		return nil, err
	}
	return sched, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	mgr, err := newSessionManager()
	if err != nil {
		return err
	}
	defer mgr.Close()

	sched, err := startScheduler(mgr)
	if err != nil {
		return err
	}
	defer sched.Stop()

	addr := cfg.ListenAddr
	if listenAddr != "" {
		addr = listenAddr
	}
	ws := web.NewWebServer(addr, mgr, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- ws.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logger.Info("shutting down web server")
	return ws.Stop(shutdownCtx)
}

func runProxy(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	var rec storage.Recorder
	if cfg.ProxyLogFilePath != "" {
		fr, err := storage.NewFileRecorder(cfg.ProxyLogFilePath)
		if err != nil {
			logger.Warn("failed to init proxy log", zap.String("path", cfg.ProxyLogFilePath), zap.Error(err))
		} else {
			rec = fr
		}
	}

	addr := cfg.ProxyListenAddr
	if listenAddr != "" {
		addr = listenAddr
	}
	srv := proxy.NewServer(llm.NewFactory(cfg), string(cfg.LLMProvider), rec, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(addr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logger.Info("shutting down chat proxy")
	return srv.Shutdown(shutdownCtx)
}

// newAccessService returns nil, an open bot, unless an admin or an
// allowlist is configured.
func newAccessService() (*auth.Service, error) {
	if cfg.AdminUserID == 0 && len(cfg.AllowedUsers) == 0 {
		logger.Warn("no ADMIN_USER or ALLOWED_USERS set, the bot is open to everyone")
		return nil, nil
	}
	var allowed, pending auth.Repository
	if cfg.AllowlistFilePath != "" {
		repo, err := auth.NewFileRepository(cfg.AllowlistFilePath)
		if err != nil {
			return nil, fmt.Errorf("allowlist: %w", err)
		}
		allowed = repo
	}
	if cfg.PendingFilePath != "" {
		repo, err := auth.NewFileRepository(cfg.PendingFilePath)
		if err != nil {
			return nil, fmt.Errorf("pending list: %w", err)
		}
		pending = repo
	}
	return auth.NewWithRepo(allowed, pending, cfg.AdminUserID, cfg.AllowedUsers)
}

func runBot(cmd *cobra.Command, args []string) error {
	if cfg.TelegramBotToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	ctx, stop := signalContext(cmd)
	defer stop()

	mgr, err := newSessionManager()
	if err != nil {
		return err
	}
	defer mgr.Close()

	sched, err := startScheduler(mgr)
	if err != nil {
		return err
	}
	defer sched.Stop()

	access, err := newAccessService()
	if err != nil {
		return err
	}

	bot, err := telegram.New(cfg.TelegramBotToken, mgr, access, logger)
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}
	bot.Start(ctx)
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	day := time.Now()
	if statsDate != "" {
		d, err := time.ParseInLocation("2006-01-02", statsDate, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --date: %w", err)
		}
		day = d
	}
	if cfg.LogFilePath == "" {
		return errors.New("LOG_FILE_PATH is empty, no transcript to analyze")
	}
	rec, err := storage.NewFileRecorder(cfg.LogFilePath)
	if err != nil {
		return err
	}
	events, err := rec.LoadEvents()
	if err != nil {
		return fmt.Errorf("failed to load transcript log: %w", err)
	}

	stats := analytics.AnalyzeDailyLogs(events, day)
	out := cmd.OutOrStdout()
	if statsJSON {
		js, err := stats.ToJSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, js)
		return nil
	}
	fmt.Fprint(out, stats.GenerateReportSummary())
	return nil
}
