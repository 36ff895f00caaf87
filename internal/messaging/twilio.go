package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// messageCreator is the subset of the Twilio REST API used for sending.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioOpts holds Twilio credentials.
type TwilioOpts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// TwilioOption configures a TwilioSender.
type TwilioOption func(*TwilioOpts)

func WithAccountSID(sid string) TwilioOption {
	return func(o *TwilioOpts) { o.AccountSID = sid }
}

func WithAuthToken(token string) TwilioOption {
	return func(o *TwilioOpts) { o.AuthToken = token }
}

func WithTwilioFromNumber(from string) TwilioOption {
	return func(o *TwilioOpts) { o.FromNumber = from }
}

// TwilioSender sends SMS through the Twilio Messages API.
type TwilioSender struct {
	api  messageCreator
	from string
}

// NewTwilioSender creates a TwilioSender, falling back to TWILIO_* environment variables.
func NewTwilioSender(opts ...TwilioOption) (*TwilioSender, error) {
	var cfg TwilioOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"From_set", cfg.FromNumber != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioSender{api: client.Api, from: cfg.FromNumber}, nil
}

func (s *TwilioSender) Provider() string { return "twilio" }

// Send creates one outbound message. The Twilio SDK call does not take a context.
func (s *TwilioSender) Send(ctx context.Context, from, to, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if from == "" {
		from = s.from
	}
	if from == "" {
		return fmt.Errorf("twilio: no from number configured")
	}
	canonicalTo, err := CanonicalizePhone(to)
	if err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(canonicalTo)
	params.SetFrom(from)
	params.SetBody(text)

	msg, err := s.api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio SendMessage failed", "to", canonicalTo, "error", err)
		return fmt.Errorf("%w: twilio message to %s: %v", ErrSendFailed, canonicalTo, err)
	}
	if msg != nil && msg.Sid != nil {
		slog.Debug("Twilio message sent", "to", canonicalTo, "sid", *msg.Sid)
	}
	return nil
}
