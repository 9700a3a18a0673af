// handlers.go contains the command handlers, including the composition root
// that wires the engine together for "run".
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atendo/inboxsync/internal/api"
	"github.com/atendo/inboxsync/internal/auth"
	"github.com/atendo/inboxsync/internal/backoff"
	"github.com/atendo/inboxsync/internal/config"
	"github.com/atendo/inboxsync/internal/datetime"
	"github.com/atendo/inboxsync/internal/events"
	"github.com/atendo/inboxsync/internal/gateway"
	"github.com/atendo/inboxsync/internal/inbox"
	"github.com/atendo/inboxsync/internal/observability"
	"github.com/atendo/inboxsync/internal/retry"
	appsync "github.com/atendo/inboxsync/internal/sync"
	"github.com/atendo/inboxsync/internal/transport"
	"github.com/atendo/inboxsync/pkg/models"
)

// runEngine is the composition root: every long-lived service is constructed
// once here and handed down by reference.
func runEngine(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := cfg.Logging.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	session, err := buildSession(cfg)
	if err != nil {
		return err
	}
	logger.Info("session established",
		"user", session.User.ID, "company", session.User.CompanyID, "role", session.User.Role)

	metrics := observability.NewMetrics(nil)

	svc, err := buildService(cfg, session, metrics, logger)
	if err != nil {
		return err
	}
	bus := svc.Bus()

	list := appsync.NewList(svc, bus, logger)
	defer list.Close()
	thread := appsync.NewThread(svc, bus, logger)
	defer thread.Close()

	// Keep the open thread's send guard in line with assignment changes.
	unsubscribe := bus.Subscribe(events.TypeConversationAssigned, func(_ context.Context, ev events.Event) error {
		if e, ok := ev.(events.ConversationAssigned); ok {
			thread.SetAssignment(e.ConversationID, e.UserID, e.UserName)
		}
		return nil
	})
	defer unsubscribe()

	adapter := transport.NewAdapter(transport.Config{
		URL:                  cfg.Push.URL,
		Backoff:              backoff.Policy{Base: cfg.Push.BackoffBase, Max: cfg.Push.BackoffMax},
		MaxReconnectAttempts: cfg.Push.MaxAttempts,
		Logger:               logger,
	})
	adapter.OnStateChange = func(s transport.State) {
		metrics.ConnectionStateChanged(s.String())
		logger.Info("connection state changed", "state", s)
	}
	adapter.OnReconnectAttempt = metrics.ReconnectScheduled
	adapter.OnFrameDropped = metrics.FrameDropped
	adapter.AddHandler(func(f transport.Frame) {
		if err := svc.ReceiveMessage(context.Background(), f.ConversationID, frameMessage(f)); err != nil {
			logger.Warn("inbound frame not applied", "conversation", f.ConversationID, "error", err)
		}
	})

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := list.Load(runCtx, appsync.TabAll); err != nil {
		return fmt.Errorf("initial conversation load: %w", err)
	}
	logger.Info("conversation list loaded", "conversations", len(list.Snapshot()))

	var metricsSrv *http.Server
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", "addr", cfg.Metrics.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	adapter.Connect()
	<-runCtx.Done()
	logger.Info("shutting down")

	adapter.Disconnect()
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}

// runStatus performs a one-shot identity and connectivity check.
func runStatus(ctx context.Context, out io.Writer, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := cfg.Logging.NewLogger(os.Stderr)

	session, err := buildSession(cfg)
	if err != nil {
		return err
	}

	svc, err := buildService(cfg, session, nil, logger)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "User:    %s (%s, %s)\n", session.User.Name, session.User.ID, session.User.Role)
	fmt.Fprintf(out, "Company: %s\n", session.User.CompanyID)

	conversations, err := svc.Conversations(ctx)
	if err != nil {
		return fmt.Errorf("backend check failed: %w", err)
	}
	fmt.Fprintf(out, "Backend: ok (%d conversations visible)\n", len(conversations))
	return nil
}

// buildSession derives the acting identity from the configured token, falling
// back to explicit identity fields when the token is opaque.
func buildSession(cfg *config.Config) (*auth.Session, error) {
	session, err := auth.SessionFromToken(cfg.Auth.Token)
	if err == nil {
		return session, nil
	}
	if cfg.Auth.UserID == "" {
		return nil, fmt.Errorf("auth token is not a parseable JWT and no auth.user_id fallback is set: %w", err)
	}
	return auth.StaticSession(cfg.Auth.UserID, cfg.Auth.CompanyID, cfg.Auth.Name, models.UserRole(cfg.Auth.Role))
}

// buildService constructs the HTTP client, gateways, bus, and use-case layer.
// metrics may be nil for one-shot commands.
func buildService(cfg *config.Config, session *auth.Session, metrics *observability.Metrics, logger *slog.Logger) (*inbox.Service, error) {
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.API.MaxRetries

	client, err := api.NewClient(api.ClientConfig{
		BaseURL: cfg.API.BaseURL,
		Token:   cfg.Auth.Token,
		Timeout: cfg.API.Timeout,
		Retry:   retryCfg,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	bus := events.NewBus(logger)
	if metrics != nil {
		client.Observe = metrics.HTTPRetry
		bus.Observe = func(t events.Type) { metrics.EventPublished(string(t)) }
	}

	conversations := gateway.NewConversations(client, logger)
	companies := gateway.NewCompanies(client, logger)
	return inbox.NewService(conversations, companies, bus, session, logger), nil
}

// frameMessage converts an inbound push frame into a domain message. An ISO
// timestamp becomes the display label used everywhere else.
func frameMessage(f transport.Frame) models.Message {
	msg := models.Message{ID: f.ID, Text: f.Text, Sender: models.SenderCustomer}
	if f.Sender == string(models.SenderAttendant) {
		msg.Sender = models.SenderAttendant
		msg.AttendantName = f.AttendantName
	}
	if f.Timestamp != "" {
		if ts := api.ParseTime(f.Timestamp); !ts.IsZero() {
			msg.Timestamp = datetime.MessageLabel(ts)
		}
	}
	return msg
}
