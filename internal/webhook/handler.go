package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/BTreeMap/ConciergePipe/internal/concierge"
	"github.com/BTreeMap/ConciergePipe/internal/messaging"
	"github.com/BTreeMap/ConciergePipe/internal/metrics"
	"github.com/BTreeMap/ConciergePipe/internal/models"
	"github.com/BTreeMap/ConciergePipe/internal/store"
	"github.com/BTreeMap/ConciergePipe/internal/util"
)

// MaxBodyBytes caps the size of a webhook body.
const MaxBodyBytes = 1 << 20

// DefaultProcessingTimeout bounds handling of one delivery, including the outbound send.
const DefaultProcessingTimeout = 14 * time.Second

// Engine answers one inbound message.
type Engine interface {
	Handle(ctx context.Context, phoneNumber, text string) (concierge.Result, error)
}

// Handler is the JSON webhook ingress.
type Handler struct {
	engine   Engine
	sender   messaging.Sender
	verifier *Verifier
	ledger   store.InboundLedger
	metrics  *metrics.Metrics
	timeout  time.Duration
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithSigningSecret enables signature verification. An empty secret disables it.
func WithSigningSecret(secret string) HandlerOption {
	return func(h *Handler) { h.verifier = NewVerifier(secret) }
}

// WithLedger records provider message ids of every delivery.
func WithLedger(l store.InboundLedger) HandlerOption {
	return func(h *Handler) { h.ledger = l }
}

// WithMetrics records request outcomes.
func WithMetrics(m *metrics.Metrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

// WithProcessingTimeout overrides DefaultProcessingTimeout.
func WithProcessingTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// NewHandler creates the JSON ingress.
func NewHandler(engine Engine, sender messaging.Sender, opts ...HandlerOption) *Handler {
	h := &Handler{engine: engine, sender: sender, timeout: DefaultProcessingTimeout}
	for _, opt := range opts {
		opt(h)
	}
	if h.verifier == nil {
		slog.Warn("Webhook: no signing secret configured, signature verification disabled (degraded)")
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	serveRecovered(w, r, "openphone", h.metrics, h.serve)
}

// serveRecovered runs serve and records its status. A panic becomes a logged 500.
func serveRecovered(w http.ResponseWriter, r *http.Request, provider string, m *metrics.Metrics, serve func(http.ResponseWriter, *http.Request) int) {
	status := http.StatusInternalServerError
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Webhook.ServeHTTP: panic while handling delivery", "provider", provider, "panic", rec, "stack", string(debug.Stack()))
			util.WriteJSONResponse(w, http.StatusInternalServerError, models.Error("Internal server error"))
			status = http.StatusInternalServerError
		}
		m.WebhookRequest(provider, status)
	}()
	status = serve(w, r)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request) int {
	if r.Body != nil {
		defer r.Body.Close()
	}
	switch r.Method {
	case http.MethodGet:
		util.WriteJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Webhook endpoint is live", map[string]string{"service": "concierge"}))
		return http.StatusOK
	case http.MethodPost:
	default:
		w.Header().Set("Allow", "GET, POST")
		slog.Warn("Webhook.serve: method not allowed", "method", r.Method)
		util.WriteJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return http.StatusMethodNotAllowed
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes))
	if err != nil {
		slog.Warn("Webhook.serve: failed to read body", "error", err)
		util.WriteJSONResponse(w, http.StatusBadRequest, models.Error("Unreadable body"))
		return http.StatusBadRequest
	}

	if h.verifier != nil {
		construction, err := h.verifier.Verify(body, r.Header.Get(SignatureHeader))
		if err != nil {
			slog.Warn("Webhook.serve: signature rejected", "error", err)
			util.WriteJSONResponse(w, http.StatusUnauthorized, models.Error("Invalid signature"))
			return http.StatusUnauthorized
		}
		slog.Debug("Webhook.serve: signature verified", "construction", construction)
	} else {
		slog.Warn("Webhook.serve: accepting unsigned delivery (no signing secret configured)")
	}

	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		slog.Warn("Webhook.serve: failed to decode JSON", "error", err)
		util.WriteJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return http.StatusBadRequest
	}

	if !event.IsInboundMessage() {
		slog.Debug("Webhook.serve: ignoring event", "type", event.Type, "direction", event.Data.Object.Direction)
		util.WriteJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Event ignored", nil))
		return http.StatusOK
	}

	msg := event.Data.Object
	text := msg.Content()
	if msg.From == "" || text == "" {
		slog.Info("Webhook.serve: inbound message without sender or text, ignoring", "message_id", msg.ID, "from", msg.From)
		util.WriteJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Event ignored", nil))
		return http.StatusOK
	}

	// The provider may disconnect once it has what it needs; finish the conversation turn regardless.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
	defer cancel()

	Deliver(ctx, DeliveryDeps{Engine: h.engine, Sender: h.sender, Ledger: h.ledger, Metrics: h.metrics}, Inbound{
		MessageID: msg.ID,
		From:      msg.From,
		To:        msg.To.First(),
		Text:      text,
	})

	util.WriteJSONResponse(w, http.StatusOK, models.Success(nil))
	return http.StatusOK
}

// Inbound is a provider-neutral inbound SMS.
type Inbound struct {
	MessageID string
	From      string
	To        string
	Text      string
}

// DeliveryDeps are the collaborators of Deliver.
type DeliveryDeps struct {
	Engine  Engine
	Sender  messaging.Sender
	Ledger  store.InboundLedger
	Metrics *metrics.Metrics
}

// Deliver runs one inbound message through the engine and sends the reply from the number
// the guest texted. Engine, send and ledger failures are logged, never returned: the
// provider has to be acknowledged either way.
func Deliver(ctx context.Context, deps DeliveryDeps, in Inbound) {
	if deps.Ledger != nil && in.MessageID != "" {
		first, err := deps.Ledger.RecordInbound(ctx, in.MessageID, in.From)
		switch {
		case err != nil:
			slog.Warn("Webhook.Deliver: failed to record delivery", "message_id", in.MessageID, "error", err)
		case !first:
			deps.Metrics.Redelivery()
			slog.Info("Webhook.Deliver: re-delivery of known message, processing again", "message_id", in.MessageID, "from", in.From)
		}
	}

	res, err := deps.Engine.Handle(ctx, in.From, in.Text)
	if err != nil {
		slog.Error("Webhook.Deliver: engine failed", "from", in.From, "error", err, "lock_timeout", concierge.IsLockTimeout(err))
	}
	if res.Reply != "" && deps.Sender != nil {
		if _, err := messaging.SendReply(ctx, deps.Sender, in.To, in.From, res.Reply); err != nil {
			deps.Metrics.OutboundSend(deps.Sender.Provider(), "error")
			slog.Error("Webhook.Deliver: reply not sent", "to", in.From, "error", err, "send_failed", errors.Is(err, messaging.ErrSendFailed))
		} else {
			deps.Metrics.OutboundSend(deps.Sender.Provider(), "ok")
		}
	}

	if deps.Ledger != nil && in.MessageID != "" {
		if err := deps.Ledger.MarkProcessed(ctx, in.MessageID); err != nil && !errors.Is(err, store.ErrNotFound) {
			slog.Warn("Webhook.Deliver: failed to mark delivery processed", "message_id", in.MessageID, "error", err)
		}
	}
	slog.Info("Webhook.Deliver: message handled", "from", in.From, "state_from", res.From, "state_to", res.To, "state_changed", res.StateChanged)
}
