// notifyd is the Classline notification daemon. It holds a push channel
// to the notification stream for one recipient, falls back to REST
// polling when the channel cannot be kept alive, and persists every
// notification to the local inbox database.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/classline/notify/internal/api"
	"github.com/classline/notify/internal/auth"
	"github.com/classline/notify/internal/config"
	"github.com/classline/notify/internal/dispatch"
	"github.com/classline/notify/internal/poller"
	"github.com/classline/notify/internal/realtime"
	"github.com/classline/notify/internal/store"
	"github.com/classline/notify/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/notifyd.local.yaml", "path to config file")
	healthAddr := flag.String("health-addr", ":8080", "health endpoint listen address")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting notifyd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"recipient", cfg.Instance.Recipient,
		"api_url", cfg.API.RestURL,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Load signing credentials
	creds, err := auth.LoadCredentials(cfg.API.KeyID, cfg.API.PrivateKeyPath)
	if err != nil {
		logger.Error("failed to load credentials", "error", err)
		os.Exit(1)
	}

	// Connect to the inbox database
	logger.Info("connecting to database",
		"host", cfg.Database.Postgres.Host,
		"port", cfg.Database.Postgres.Port,
		"database", cfg.Database.Postgres.Name,
	)

	pool, err := store.Connect(ctx, cfg.Database.Postgres)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger.Info("database connected")
	inbox := store.NewInbox(pool)

	// Create API client
	apiClient := api.NewClient(
		cfg.API.RestURL,
		creds,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
	)

	// Dispatcher routes envelopes into the inbox buffer and kind buffers.
	dispatcher := dispatch.New(dispatch.Config{
		InboxBufferSize: cfg.Inbox.BufferSize,
	}, logger)

	// Batched writer drains the inbox buffer into PostgreSQL.
	writer := store.NewWriter(cfg.Inbox, dispatcher.Buffers().Inbox, pool, logger)
	if err := writer.Start(ctx); err != nil {
		logger.Error("failed to start inbox writer", "error", err)
		os.Exit(1)
	}

	// Fallback poller. Seed its since watermark from the newest stored
	// notification so restarts do not re-fetch the whole inbox.
	refresher := poller.New(poller.Config{
		Timeout: cfg.API.Timeout,
		Ack:     true,
	}, apiClient, cfg.Instance.Recipient, dispatcher.Handle, logger)

	cursor, err := inbox.Cursor(ctx, cfg.Instance.Recipient)
	if err != nil {
		logger.Warn("failed to read inbox cursor, polling from scratch", "error", err)
	} else if !cursor.IsZero() {
		refresher.SetSince(cursor)
		logger.Info("poller cursor seeded", "since", cursor)
	}

	// Connection manager over the signed websocket stream.
	opener := realtime.NewWSOpener(realtime.OpenerConfig{
		URL:              cfg.API.WSURL,
		Credentials:      creds,
		SubscribeTimeout: cfg.Realtime.SubscribeTimeout,
		EventBufferSize:  cfg.Realtime.EventBufferSize,
	}, logger)

	mgr := realtime.NewManager(realtime.Config{
		MaxReconnectAttempts:    cfg.Realtime.MaxReconnectAttempts,
		ReconnectDelay:          cfg.Realtime.ReconnectDelay,
		FallbackPollingInterval: cfg.Realtime.FallbackPollingInterval,
		HeartbeatInterval:       cfg.Realtime.HeartbeatInterval,
	}, opener, logger)

	mgr.OnMessage(dispatcher.Handle)
	mgr.SetFallback(refresher.Refresh)
	mgr.OnStatusChange(func(s realtime.Status) {
		logger.Info("connection status changed",
			"state", s.State,
			"reconnect_attempts", s.ReconnectAttempts,
			"fallback_active", s.FallbackActive,
		)
	})

	g, gctx := errgroup.WithContext(ctx)

	// Health server
	healthServer := &http.Server{
		Addr:    *healthAddr,
		Handler: createHealthHandler(pool, mgr, dispatcher, writer),
	}
	g.Go(func() error {
		logger.Info("starting health server", "addr", *healthAddr)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	// Kind consumers surface routed notifications in the daemon log.
	// A desktop frontend would subscribe to these buffers instead.
	buffers := dispatcher.Buffers()
	g.Go(func() error {
		for {
			msg, ok := buffers.Sessions.Receive()
			if !ok {
				return nil
			}
			logger.Info("session notification",
				"session_id", msg.Payload.SessionID,
				"event", msg.Payload.Event,
				"starts_at", msg.Payload.StartsAt,
				"title", msg.Notification.Title,
			)
		}
	})
	g.Go(func() error {
		for {
			msg, ok := buffers.Assignments.Receive()
			if !ok {
				return nil
			}
			logger.Info("assignment notification",
				"assignment_id", msg.Payload.AssignmentID,
				"event", msg.Payload.Event,
				"due_at", msg.Payload.DueAt,
				"title", msg.Notification.Title,
			)
		}
	})
	g.Go(func() error {
		for {
			msg, ok := buffers.Attendance.Receive()
			if !ok {
				return nil
			}
			logger.Info("attendance notification",
				"session_id", msg.Payload.SessionID,
				"status", msg.Payload.Status,
			)
		}
	})
	g.Go(func() error {
		for {
			msg, ok := buffers.Interviews.Receive()
			if !ok {
				return nil
			}
			logger.Info("interview notification",
				"interview_id", msg.Payload.InterviewID,
				"scheduled_at", msg.Payload.ScheduledAt,
				"minutes", msg.Payload.Minutes,
			)
		}
	})
	g.Go(func() error {
		for {
			msg, ok := buffers.Announcements.Receive()
			if !ok {
				return nil
			}
			logger.Info("announcement",
				"course_id", msg.Payload.CourseID,
				"title", msg.Notification.Title,
			)
		}
	})

	// Bring up the push channel. A failed connect is not fatal: the
	// manager has already switched to fallback polling by the time
	// retries are exhausted.
	if err := mgr.Connect(gctx, cfg.Instance.Recipient); err != nil {
		if errors.Is(err, realtime.ErrMissingIdentity) {
			logger.Error("connect failed", "error", err)
			os.Exit(1)
		}
		logger.Warn("push channel unavailable, relying on fallback polling", "error", err)
	}

	logger.Info("notifyd running",
		"instance_id", cfg.Instance.ID,
		"recipient", cfg.Instance.Recipient,
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	mgr.Disconnect()

	// Closing the dispatcher unblocks the kind consumers.
	dispatcher.Close()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := writer.Stop(stopCtx); err != nil {
		logger.Warn("inbox writer stop failed", "error", err)
	}

	healthServer.Shutdown(stopCtx)

	if err := g.Wait(); err != nil {
		logger.Warn("shutdown error", "error", err)
	}

	logger.Info("notifyd stopped")
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(pool *pgxpool.Pool, mgr realtime.Manager, dispatcher dispatch.Dispatcher, writer *store.Writer) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		// Check database
		if err := pool.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["postgres"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["postgres"] = "connected"
		}

		// Check push channel
		status := mgr.Status()
		health.Components["realtime"] = map[string]interface{}{
			"state":              status.State.String(),
			"reconnect_attempts": status.ReconnectAttempts,
			"fallback_active":    status.FallbackActive,
		}
		if status.FallbackActive {
			health.Status = "degraded"
		}

		health.Components["dispatch"] = dispatcher.Stats()
		health.Components["writer"] = writer.Stats()

		// Set response
		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}
