// streamtap connects to the Classline notification stream and prints
// routed notifications to the console. No database required.
// Usage: go run ./cmd/streamtap --config configs/notifyd.local.yaml
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/classline/notify/internal/auth"
	"github.com/classline/notify/internal/config"
	"github.com/classline/notify/internal/dispatch"
	"github.com/classline/notify/internal/model"
	"github.com/classline/notify/internal/realtime"
)

func main() {
	configPath := flag.String("config", "configs/notifyd.local.yaml", "path to config file")
	recipient := flag.String("recipient", "", "recipient ID (overrides config)")
	verbose := flag.Bool("verbose", false, "print full envelope JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	who := cfg.Instance.Recipient
	if *recipient != "" {
		who = *recipient
	}
	if who == "" {
		logger.Error("no recipient configured, pass --recipient or set instance.recipient")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	// Load signing credentials for the stream handshake
	creds, err := auth.LoadCredentials(cfg.API.KeyID, cfg.API.PrivateKeyPath)
	if err != nil {
		logger.Error("failed to load credentials", "error", err)
		logger.Info("set api.key_id and api.private_key_path in the config file")
		os.Exit(1)
	}
	logger.Info("using API credentials", "key_id", creds.KeyID)

	// Dispatcher routes envelopes into kind buffers for printing
	dispatcher := dispatch.New(dispatch.Config{}, logger)

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
	mgr.OnStatusChange(func(s realtime.Status) {
		logger.Info("connection status",
			"state", s.State,
			"reconnect_attempts", s.ReconnectAttempts,
		)
	})

	logger.Info("connecting", "recipient", who, "ws_url", cfg.API.WSURL)
	if err := mgr.Connect(ctx, who); err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}

	// Console printers
	buffers := dispatcher.Buffers()
	go printInbox(ctx, buffers.Inbox, *verbose)
	go printSessions(ctx, buffers.Sessions)
	go printAssignments(ctx, buffers.Assignments)

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := dispatcher.Stats()
				logger.Info("stats",
					"received", stats.Received,
					"routed", stats.Routed,
					"parse_errors", stats.ParseErrors,
					"unknown_kinds", stats.UnknownKinds,
					"inbox_buf", stats.InboxBuffer.Count,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")
	mgr.Disconnect()
	dispatcher.Close()

	logger.Info("shutdown complete")
}

func printInbox(ctx context.Context, buf *dispatch.GrowableBuffer[model.Notification], verbose bool) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			n, ok := buf.TryReceive()
			if !ok {
				time.Sleep(10 * time.Millisecond)
				continue
			}

			if verbose {
				data, _ := json.MarshalIndent(n, "", "  ")
				fmt.Printf("[NOTIFICATION] %s\n", data)
			} else {
				fmt.Printf("[NOTIFICATION] id=%s kind=%s title=%q created=%s\n",
					n.ID, n.Kind, n.Title, n.CreatedAt.Format(time.RFC3339))
			}
		}
	}
}

func printSessions(ctx context.Context, buf *dispatch.GrowableBuffer[dispatch.SessionMsg]) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg, ok := buf.TryReceive()
			if !ok {
				time.Sleep(10 * time.Millisecond)
				continue
			}

			fmt.Printf("[SESSION] session=%s event=%s starts=%s room=%s\n",
				msg.Payload.SessionID, msg.Payload.Event,
				msg.Payload.StartsAt.Format(time.RFC3339), msg.Payload.Room)
		}
	}
}

func printAssignments(ctx context.Context, buf *dispatch.GrowableBuffer[dispatch.AssignmentMsg]) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg, ok := buf.TryReceive()
			if !ok {
				time.Sleep(10 * time.Millisecond)
				continue
			}

			fmt.Printf("[ASSIGNMENT] assignment=%s event=%s due=%s\n",
				msg.Payload.AssignmentID, msg.Payload.Event,
				msg.Payload.DueAt.Format(time.RFC3339))
		}
	}
}
