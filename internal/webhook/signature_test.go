package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func header(ts string, key, payload []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return "hmac;1;" + ts + ";" + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestParseSignature(t *testing.T) {
	sig, err := ParseSignature("hmac;1;1700000000;" + base64.StdEncoding.EncodeToString([]byte("digest")))
	require.NoError(t, err)
	assert.Equal(t, "hmac", sig.Scheme)
	assert.Equal(t, "1", sig.Version)
	assert.Equal(t, "1700000000", sig.Timestamp)
	assert.Equal(t, []byte("digest"), sig.Digest)

	_, err = ParseSignature("")
	assert.ErrorIs(t, err, ErrMissingSignature)

	for _, bad := range []string{"hmac;1;123", "sha1;1;123;ZGln", "hmac;1;;ZGln", "hmac;1;123;not base64!"} {
		_, err := ParseSignature(bad)
		assert.ErrorIs(t, err, ErrMalformedSignature, bad)
	}
}

func TestVerifierCandidates(t *testing.T) {
	body := []byte(`{"type":"message.received"}`)
	ts := "1700000000"
	decodedKey := []byte("0123456789abcdef")
	b64Secret := base64.StdEncoding.EncodeToString(decodedKey)
	rawSecret := "plain-secret!"

	tests := []struct {
		name   string
		secret string
		header string
		want   Construction
	}{
		{"raw secret over body", rawSecret, header(ts, []byte(rawSecret), body), RawSecretBody},
		{"raw secret over timestamp and body", rawSecret, header(ts, []byte(rawSecret), append([]byte(ts), body...)), RawSecretTimestampBody},
		{"decoded secret over body", b64Secret, header(ts, decodedKey, body), DecodedSecretBody},
		{"decoded secret over timestamp and body", b64Secret, header(ts, decodedKey, append([]byte(ts), body...)), DecodedSecretTimestampBody},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewVerifier(tt.secret).Verify(body, tt.header)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVerifierRejects(t *testing.T) {
	body := []byte(`{"a":1}`)
	v := NewVerifier("plain-secret!")

	_, err := v.Verify(body, header("1", []byte("other-secret"), body))
	assert.True(t, errors.Is(err, ErrSignatureMismatch))

	_, err = v.Verify([]byte(`{"a":2}`), header("1", []byte("plain-secret!"), body))
	assert.ErrorIs(t, err, ErrSignatureMismatch)

	_, err = v.Verify(body, "")
	assert.ErrorIs(t, err, ErrMissingSignature)
}

func TestNewVerifierEmptySecret(t *testing.T) {
	assert.Nil(t, NewVerifier(""))
}

func TestSignatureHeaderValueRoundTrip(t *testing.T) {
	body := []byte(`{"hello":"world"}`)
	b64Secret := base64.StdEncoding.EncodeToString([]byte("shared-key-bytes"))

	got, err := NewVerifier(b64Secret).Verify(body, SignatureHeaderValue(b64Secret, "42", body))
	require.NoError(t, err)
	assert.Equal(t, DecodedSecretTimestampBody, got)

	got, err = NewVerifier("not-base64?").Verify(body, SignatureHeaderValue("not-base64?", "42", body))
	require.NoError(t, err)
	assert.Equal(t, RawSecretTimestampBody, got)
}

func TestConstructionString(t *testing.T) {
	assert.Equal(t, "decoded-secret/timestamp+body", DecodedSecretTimestampBody.String())
	assert.Equal(t, "none", Construction(0).String())
}
