package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// SignatureHeader carries the provider's request signature.
const SignatureHeader = "openphone-signature"

var (
	// ErrMissingSignature is returned when a secret is configured but the header is absent.
	ErrMissingSignature = errors.New("missing webhook signature")
	// ErrMalformedSignature is returned for headers not shaped like hmac;version;timestamp;signature.
	ErrMalformedSignature = errors.New("malformed webhook signature")
	// ErrSignatureMismatch is returned when no candidate construction validates.
	ErrSignatureMismatch = errors.New("webhook signature mismatch")
)

// Signature is a parsed signature header.
type Signature struct {
	Scheme    string
	Version   string
	Timestamp string
	Digest    []byte
}

// ParseSignature parses "hmac;<version>;<timestamp>;<base64 digest>".
func ParseSignature(header string) (Signature, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Signature{}, ErrMissingSignature
	}
	parts := strings.Split(header, ";")
	if len(parts) != 4 {
		return Signature{}, fmt.Errorf("%w: expected 4 fields, got %d", ErrMalformedSignature, len(parts))
	}
	if !strings.EqualFold(parts[0], "hmac") {
		return Signature{}, fmt.Errorf("%w: unsupported scheme %q", ErrMalformedSignature, parts[0])
	}
	if parts[2] == "" || parts[3] == "" {
		return Signature{}, fmt.Errorf("%w: empty timestamp or digest", ErrMalformedSignature)
	}
	digest, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil {
		return Signature{}, fmt.Errorf("%w: digest is not base64: %v", ErrMalformedSignature, err)
	}
	return Signature{Scheme: parts[0], Version: parts[1], Timestamp: parts[2], Digest: digest}, nil
}

// Construction identifies which candidate validated a signature.
type Construction int

const (
	RawSecretBody Construction = iota + 1
	RawSecretTimestampBody
	DecodedSecretBody
	DecodedSecretTimestampBody
)

func (c Construction) String() string {
	switch c {
	case RawSecretBody:
		return "raw-secret/body"
	case RawSecretTimestampBody:
		return "raw-secret/timestamp+body"
	case DecodedSecretBody:
		return "decoded-secret/body"
	case DecodedSecretTimestampBody:
		return "decoded-secret/timestamp+body"
	default:
		return "none"
	}
}

// Verifier checks signatures against a shared secret whose encoding is not known up front.
type Verifier struct {
	raw     []byte
	decoded []byte
}

// NewVerifier returns nil when secret is empty, meaning verification is skipped.
func NewVerifier(secret string) *Verifier {
	if secret == "" {
		return nil
	}
	v := &Verifier{raw: []byte(secret)}
	if d, err := base64.StdEncoding.DecodeString(secret); err == nil && len(d) > 0 {
		v.decoded = d
	}
	return v
}

// Sign computes the base64 HMAC-SHA256 of payload under key.
func Sign(key, payload []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// SignatureHeaderValue builds a header value signing timestamp+body with the decoded secret
// when it is valid base64, else the raw secret.
func SignatureHeaderValue(secret, timestamp string, body []byte) string {
	key := []byte(secret)
	if d, err := base64.StdEncoding.DecodeString(secret); err == nil && len(d) > 0 {
		key = d
	}
	return fmt.Sprintf("hmac;1;%s;%s", timestamp, Sign(key, append([]byte(timestamp), body...)))
}

// Verify tries, in order: the body and timestamp+body under the raw secret, then the same
// two payloads under the base64-decoded secret. It returns the first construction that matches.
func (v *Verifier) Verify(body []byte, header string) (Construction, error) {
	sig, err := ParseSignature(header)
	if err != nil {
		return 0, err
	}
	withTimestamp := append([]byte(sig.Timestamp), body...)

	type candidate struct {
		c       Construction
		key     []byte
		payload []byte
	}
	candidates := []candidate{
		{RawSecretBody, v.raw, body},
		{RawSecretTimestampBody, v.raw, withTimestamp},
	}
	if v.decoded != nil {
		candidates = append(candidates,
			candidate{DecodedSecretBody, v.decoded, body},
			candidate{DecodedSecretTimestampBody, v.decoded, withTimestamp},
		)
	}
	for _, cand := range candidates {
		mac := hmac.New(sha256.New, cand.key)
		mac.Write(cand.payload)
		if hmac.Equal(mac.Sum(nil), sig.Digest) {
			return cand.c, nil
		}
	}
	return 0, ErrSignatureMismatch
}
