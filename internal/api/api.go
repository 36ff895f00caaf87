// Package api provides the HTTP server and main API wiring for ConciergePipe.
//
// It exposes the provider webhooks, a read-only conversation view, health and metrics.
// The API integrates with the webhook, store and metrics modules.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/BTreeMap/ConciergePipe/internal/messaging"
	"github.com/BTreeMap/ConciergePipe/internal/metrics"
	"github.com/BTreeMap/ConciergePipe/internal/store"
	"github.com/BTreeMap/ConciergePipe/internal/webhook"
)

// Default configuration constants
const (
	DefaultAddr              = ":8080"
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultReadHeaderTimeout = 5 * time.Second
)

// DefaultHistoryLimit is the number of log entries returned by the conversation view.
const DefaultHistoryLimit = store.DefaultMessageLimit

// Opts holds configuration for the API server.
type Opts struct {
	Addr              string
	SigningSecret     string
	TwilioAuthToken   string
	TwilioWebhookURL  string
	AdminToken        string
	ProcessingTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithSigningSecret sets the JSON webhook signing secret. Empty disables verification.
func WithSigningSecret(secret string) Option {
	return func(o *Opts) { o.SigningSecret = secret }
}

// WithTwilioValidation enables X-Twilio-Signature checks on the Twilio ingress.
// publicURL is the callback URL as configured in the Twilio console; it may be empty.
func WithTwilioValidation(authToken, publicURL string) Option {
	return func(o *Opts) {
		o.TwilioAuthToken = authToken
		o.TwilioWebhookURL = publicURL
	}
}

// WithAdminToken enables the operator routes, guarded by this bearer token.
func WithAdminToken(token string) Option {
	return func(o *Opts) { o.AdminToken = token }
}

// WithProcessingTimeout bounds handling of one inbound message.
func WithProcessingTimeout(d time.Duration) Option {
	return func(o *Opts) { o.ProcessingTimeout = d }
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Opts) { o.ShutdownTimeout = d }
}

// Deps are the modules the server routes to.
type Deps struct {
	Engine  webhook.Engine
	Sender  messaging.Sender
	Store   store.Store
	Metrics *metrics.Metrics
}

// Server is the ConciergePipe HTTP server.
type Server struct {
	opts    Opts
	store   store.Store
	metrics *metrics.Metrics
	mux     *http.ServeMux
	handler http.Handler
}

// NewServer wires the routes. The store doubles as the inbound delivery ledger when it
// implements store.InboundLedger.
func NewServer(deps Deps, opts ...Option) (*Server, error) {
	if deps.Engine == nil || deps.Sender == nil || deps.Store == nil {
		return nil, errors.New("api: engine, sender and store are required")
	}
	cfg := Opts{Addr: DefaultAddr, ShutdownTimeout: DefaultShutdownTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	ledger, _ := deps.Store.(store.InboundLedger)
	if ledger == nil {
		slog.Debug("Server: store has no inbound ledger, re-deliveries will not be detected")
	}

	s := &Server{opts: cfg, store: deps.Store, metrics: deps.Metrics, mux: http.NewServeMux()}

	hookOpts := []webhook.HandlerOption{
		webhook.WithSigningSecret(cfg.SigningSecret),
		webhook.WithMetrics(deps.Metrics),
		webhook.WithProcessingTimeout(cfg.ProcessingTimeout),
	}
	if ledger != nil {
		hookOpts = append(hookOpts, webhook.WithLedger(ledger))
	}
	s.mux.Handle("/webhook", webhook.NewHandler(deps.Engine, deps.Sender, hookOpts...))
	// Twilio callbacks are only accepted when they can be authenticated.
	if cfg.TwilioAuthToken != "" {
		s.mux.Handle("/webhook/twilio", webhook.NewTwilioHandler(deps.Engine, deps.Sender, webhook.TwilioHandlerOpts{
			AuthToken: cfg.TwilioAuthToken,
			PublicURL: cfg.TwilioWebhookURL,
			Ledger:    ledger,
			Metrics:   deps.Metrics,
			Timeout:   cfg.ProcessingTimeout,
		}))
	} else {
		slog.Info("Server: no Twilio auth token configured, /webhook/twilio not mounted")
	}
	if cfg.AdminToken != "" {
		s.mux.Handle("GET /conversations/{phone}", requireBearer(cfg.AdminToken, http.HandlerFunc(s.conversationHandler)))
	} else {
		slog.Info("Server: no admin token configured, /conversations not mounted")
	}
	s.mux.HandleFunc("GET /healthz", s.healthzHandler)
	s.mux.Handle("GET /metrics", deps.Metrics.Handler())

	s.handler = requestLogger(s.mux)
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.opts.Addr
}

// Serve accepts connections on l until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("ConciergePipe API server listening", "addr", l.Addr().String())
		errCh <- srv.Serve(l)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Server.Serve: shutting down", "timeout", s.opts.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server failed: %w", err)
	}
	slog.Info("Server.Serve: stopped")
	return nil
}

// Run builds the server, listens on the configured address and blocks until ctx is cancelled.
func Run(ctx context.Context, deps Deps, opts ...Option) error {
	s, err := NewServer(deps, opts...)
	if err != nil {
		return err
	}
	l, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Addr(), err)
	}
	return s.Serve(ctx, l)
}
