package webhook

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/twilio/twilio-go/client"

	"github.com/BTreeMap/ConciergePipe/internal/messaging"
	"github.com/BTreeMap/ConciergePipe/internal/metrics"
	"github.com/BTreeMap/ConciergePipe/internal/models"
	"github.com/BTreeMap/ConciergePipe/internal/store"
	"github.com/BTreeMap/ConciergePipe/internal/util"
)

// TwilioSignatureHeader carries Twilio's request signature.
const TwilioSignatureHeader = "X-Twilio-Signature"

// TwilioHandler accepts Twilio's form-encoded inbound SMS callbacks.
type TwilioHandler struct {
	engine    Engine
	sender    messaging.Sender
	validator *client.RequestValidator
	publicURL string
	ledger    store.InboundLedger
	metrics   *metrics.Metrics
	timeout   time.Duration
}

// TwilioHandlerOpts configures a TwilioHandler.
type TwilioHandlerOpts struct {
	// AuthToken enables X-Twilio-Signature validation when set.
	AuthToken string
	// PublicURL is the externally visible callback URL Twilio signs. When empty the URL is
	// rebuilt from the request.
	PublicURL string
	Ledger    store.InboundLedger
	Metrics   *metrics.Metrics
	Timeout   time.Duration
}

// NewTwilioHandler creates the Twilio ingress.
func NewTwilioHandler(engine Engine, sender messaging.Sender, opts TwilioHandlerOpts) *TwilioHandler {
	h := &TwilioHandler{
		engine:    engine,
		sender:    sender,
		publicURL: opts.PublicURL,
		ledger:    opts.Ledger,
		metrics:   opts.Metrics,
		timeout:   opts.Timeout,
	}
	if h.timeout <= 0 {
		h.timeout = DefaultProcessingTimeout
	}
	if opts.AuthToken != "" {
		v := client.NewRequestValidator(opts.AuthToken)
		h.validator = &v
	} else {
		slog.Warn("TwilioHandler: no auth token configured, signature validation disabled (degraded)")
	}
	return h
}

func (h *TwilioHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	serveRecovered(w, r, "twilio", h.metrics, h.serve)
}

func (h *TwilioHandler) serve(w http.ResponseWriter, r *http.Request) int {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		util.WriteJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return http.StatusMethodNotAllowed
	}
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := r.ParseForm(); err != nil {
		slog.Warn("TwilioHandler.serve: failed to parse form", "error", err)
		util.WriteJSONResponse(w, http.StatusBadRequest, models.Error("Invalid form body"))
		return http.StatusBadRequest
	}

	params := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		params[k] = r.PostForm.Get(k)
	}

	if h.validator != nil {
		if !h.validator.Validate(h.callbackURL(r), params, r.Header.Get(TwilioSignatureHeader)) {
			slog.Warn("TwilioHandler.serve: signature rejected", "url", h.callbackURL(r))
			util.WriteJSONResponse(w, http.StatusUnauthorized, models.Error("Invalid signature"))
			return http.StatusUnauthorized
		}
	}

	in := Inbound{
		MessageID: params["MessageSid"],
		From:      params["From"],
		To:        params["To"],
		Text:      params["Body"],
	}
	if in.From == "" || in.Text == "" {
		slog.Info("TwilioHandler.serve: callback without sender or body, ignoring", "message_sid", in.MessageID)
		writeTwiML(w)
		return http.StatusOK
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
	defer cancel()
	Deliver(ctx, DeliveryDeps{Engine: h.engine, Sender: h.sender, Ledger: h.ledger, Metrics: h.metrics}, in)

	writeTwiML(w)
	return http.StatusOK
}

func (h *TwilioHandler) callbackURL(r *http.Request) string {
	if h.publicURL != "" {
		return h.publicURL
	}
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// writeTwiML acknowledges with an empty TwiML document; replies go out through the REST API.
func writeTwiML(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Response></Response>`))
}
