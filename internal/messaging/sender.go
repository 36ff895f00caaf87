// Package messaging delivers outbound SMS replies through a telephony provider.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/BTreeMap/ConciergePipe/internal/sms"
)

// ErrSendFailed wraps provider rejections of an outbound message.
var ErrSendFailed = errors.New("outbound send failed")

// Sender delivers one SMS segment.
type Sender interface {
	// Send delivers text to the recipient. from may be empty to use the sender's default number.
	Send(ctx context.Context, from, to, text string) error
	// Provider names the backing provider for logs and metrics.
	Provider() string
}

var nonPhoneChars = regexp.MustCompile(`[^\d+]`)

// CanonicalizePhone strips formatting from a phone number, keeping a leading '+'.
func CanonicalizePhone(phone string) (string, error) {
	if phone == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := nonPhoneChars.ReplaceAllString(phone, "")
	plus := strings.HasPrefix(canonical, "+")
	digits := strings.ReplaceAll(canonical, "+", "")
	if len(digits) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", phone)
	}
	if plus {
		return "+" + digits, nil
	}
	return digits, nil
}

// SendReply splits text into SMS segments and sends them in order, stopping at the first failure.
// It returns the number of segments delivered.
func SendReply(ctx context.Context, s Sender, from, to, text string) (int, error) {
	chunks := sms.SplitIntoChunks(text)
	for i, chunk := range chunks {
		if err := s.Send(ctx, from, to, chunk); err != nil {
			slog.Error("SendReply: segment failed", "provider", s.Provider(), "to", to, "segment", i+1, "of", len(chunks), "error", err)
			return i, err
		}
	}
	slog.Debug("SendReply: reply delivered", "provider", s.Provider(), "to", to, "segments", len(chunks))
	return len(chunks), nil
}
