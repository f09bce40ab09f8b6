package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/chatrelay/internal/adapter"
	"github.com/dgnsrekt/chatrelay/internal/api"
	"github.com/dgnsrekt/chatrelay/internal/browser"
	"github.com/dgnsrekt/chatrelay/internal/capture"
	"github.com/dgnsrekt/chatrelay/internal/cdpcontrol"
	"github.com/dgnsrekt/chatrelay/internal/config"
	"github.com/dgnsrekt/chatrelay/internal/controller"
	"github.com/dgnsrekt/chatrelay/internal/coordinator"
	"github.com/dgnsrekt/chatrelay/internal/netutil"
	"github.com/dgnsrekt/chatrelay/internal/notify"
	"github.com/dgnsrekt/chatrelay/internal/orchestrator"
	"github.com/dgnsrekt/chatrelay/internal/queue"
	"github.com/dgnsrekt/chatrelay/internal/status"
	"github.com/dgnsrekt/chatrelay/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("chatrelay config loaded",
		"bind_addr", cfg.BindAddr,
		"cdp_url", cfg.CDPURL(),
		"target_patterns", cfg.TargetPatterns,
		"eval_timeout_ms", cfg.EvalTimeoutMS,
		"queue_dir", cfg.QueueDir,
		"settings_file", cfg.SettingsFile,
		"queue_max_attempts", cfg.QueueMaxAttempts,
		"capture_max_width", cfg.CaptureMaxWidth,
		"ntfy", cfg.NtfyURL != "",
		"history_dir", cfg.HistoryDir,
		"launch_browser", cfg.LaunchBrowser,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	settings, err := config.OpenSettings(cfg.SettingsFile)
	if err != nil {
		slog.Error("failed to open settings", "path", cfg.SettingsFile, "error", err)
		os.Exit(1)
	}
	watcher, err := config.WatchSettings(settings, 0)
	if err != nil {
		slog.Warn("settings watcher unavailable, external edits need a restart", "error", err)
	} else {
		defer func() {
			if err := watcher.Stop(); err != nil {
				slog.Debug("settings watcher stop failed", "error", err)
			}
		}()
	}

	if cfg.LaunchBrowser {
		launcher := browser.NewLauncher(browser.Config{
			CDPAddress:   cfg.CDPAddress,
			CDPPort:      cfg.CDPPort,
			StartURL:     settings.Get().TargetURL,
			ProfileDir:   cfg.ProfileDir,
			LogFileDir:   cfg.BrowserLogDir,
			CrashDumpDir: cfg.CrashDumpDir,
		})
		if err := launcher.Launch(ctx); err != nil {
			slog.Error("failed to launch browser", "error", err)
			os.Exit(1)
		}
		defer func() {
			if launcher.Running() {
				launcher.Stop()
			}
		}()
	}

	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	cdpClient := cdpcontrol.NewClient(cfg.CDPURL(), time.Duration(cfg.EvalTimeoutMS)*time.Millisecond)
	if err := cdpClient.Connect(ctx); err != nil {
		slog.Error("failed to connect CDP", "cdp_url", cfg.CDPURL(), "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := cdpClient.Close(); err != nil {
			slog.Debug("CDP client close failed", "error", err)
		}
	}()

	tracker := status.NewTracker(0)
	if cfg.HistoryDir != "" && cfg.HistoryDir != "off" {
		history := storage.NewJSONLWriter(cfg.HistoryDir, "deliveries", 256, 10)
		defer func() {
			if err := history.Close(); err != nil {
				slog.Debug("history close failed", "error", err)
			}
		}()
		tracker.WithSink(history)
	}
	notifier := notify.New(cfg.NtfyURL, nil)

	var svc *controller.Service
	hub := adapter.NewHub(ctx, cdpClient, adapter.HubConfig{
		QueueDir:    cfg.QueueDir,
		MaxAttempts: cfg.QueueMaxAttempts,
		OnDrop: func(ctx context.Context, origin string, item queue.Item, cause error) {
			svc.HandleDrop(ctx, origin, item, cause)
		},
	})
	orch := orchestrator.New(cdpClient, hub, orchestrator.Config{
		Patterns:    cfg.TargetPatterns,
		LoadTimeout: time.Duration(cfg.LoadTimeoutMS) * time.Millisecond,
	})
	capturer := capture.New(cdpClient, cfg.CaptureMaxWidth, time.Duration(cfg.EvalTimeoutMS)*time.Millisecond)
	coord := coordinator.New(cdpClient, capturer, orch, hub, tracker, notifier, coordinator.Options{})
	svc = controller.NewService(ctx, coord, settings, hub, tracker, notifier)

	srv := &http.Server{Addr: bindAddr, Handler: api.NewServer(svc)}

	go func() {
		slog.Info("chatrelay listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("chatrelay server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("chatrelay shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("chatrelay shutdown failed", "error", err)
	}
	svc.Wait()
	hub.Wait()
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
