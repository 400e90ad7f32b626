package webhook

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testTwilioToken = "12345"
	testTwilioURL   = "https://mycompany.com/myapp.php?foo=1&bar=2"
)

func twilioForm() url.Values {
	return url.Values{
		"CallSid": {"CA1234567890ABCDE"},
		"Caller":  {"+12349013030"},
		"Digits":  {"1234"},
		"From":    {"+12349013030"},
		"To":      {"+18005551212"},
	}
}

func signedTwilioRequest(t *testing.T) Request {
	t.Helper()
	form := twilioForm()
	sig := TwilioSignature([]byte(testTwilioToken), testTwilioURL, form)
	return Request{
		URL:    testTwilioURL,
		Header: http.Header{"X-Twilio-Signature": {sig}},
		Body:   []byte(form.Encode()),
	}
}

func TestTwilioSignature_KnownVector(t *testing.T) {
	// Reference vector from Twilio's request validation documentation.
	got := TwilioSignature([]byte(testTwilioToken), testTwilioURL, twilioForm())
	assert.Equal(t, "0/KCTR6DLpKmkAf8muzZqo1nDgQ=", got)
}

func TestTwilioVerifier_Valid(t *testing.T) {
	v := NewTwilioVerifier(testTwilioToken)
	require.NoError(t, v.Verify(signedTwilioRequest(t)))
}

func TestTwilioVerifier_MissingHeader(t *testing.T) {
	v := NewTwilioVerifier(testTwilioToken)
	req := signedTwilioRequest(t)
	req.Header = http.Header{}

	assert.ErrorIs(t, v.Verify(req), ErrMissingSignature)
}

func TestTwilioVerifier_WrongURL(t *testing.T) {
	v := NewTwilioVerifier(testTwilioToken)
	req := signedTwilioRequest(t)
	req.URL = "https://mycompany.com/myapp.php?foo=1&bar=3"

	assert.ErrorIs(t, v.Verify(req), ErrInvalidSignature)
}

func TestTwilioVerifier_SingleByteMutations(t *testing.T) {
	v := NewTwilioVerifier(testTwilioToken)

	base := signedTwilioRequest(t)
	for i := range base.Body {
		req := signedTwilioRequest(t)
		mutated := append([]byte(nil), req.Body...)
		mutated[i] ^= 0x01
		req.Body = mutated
		ok, _ := VerifySignature(v, req)
		assert.False(t, ok, "body mutation at %d accepted", i)
	}

	sig := base.Header.Get("X-Twilio-Signature")
	for i := range sig {
		req := signedTwilioRequest(t)
		b := []byte(sig)
		b[i] ^= 0x01
		req.Header.Set("X-Twilio-Signature", string(b))
		ok, _ := VerifySignature(v, req)
		assert.False(t, ok, "signature mutation at %d accepted", i)
	}
}

func TestTwilioSignature_SortsByteOrder(t *testing.T) {
	// "B" sorts before "a" under byte ordering.
	params := url.Values{"a": {"1"}, "B": {"2"}}
	want := TwilioSignature([]byte("k"), "u", url.Values{"B": {"2"}, "a": {"1"}})
	assert.Equal(t, want, TwilioSignature([]byte("k"), "u", params))
}

func TestMetaVerifier(t *testing.T) {
	secret := "app-secret"
	body := []byte(`{"object":"page","entry":[]}`)
	sig := "sha256=" + MetaSignature([]byte(secret), body)

	tests := []struct {
		name    string
		header  string
		body    []byte
		wantErr error
	}{
		{"valid", sig, body, nil},
		{"missing header", "", body, ErrMissingSignature},
		{"missing prefix", MetaSignature([]byte(secret), body), body, ErrInvalidSignature},
		{"wrong secret", "sha256=" + MetaSignature([]byte("other"), body), body, ErrInvalidSignature},
		{"body changed", sig, []byte(`{"object":"page","entry":[{}]}`), ErrInvalidSignature},
		{"truncated", sig[:len(sig)-2], body, ErrInvalidSignature},
	}

	v := NewMetaVerifier(secret)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.header != "" {
				h.Set("X-Hub-Signature-256", tt.header)
			}
			err := v.Verify(Request{Header: h, Body: tt.body})
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestMetaVerifier_SingleByteBodyMutation(t *testing.T) {
	secret := "app-secret"
	body := []byte(`{"entry":[{"changes":[{"field":"leadgen"}]}]}`)
	h := http.Header{"X-Hub-Signature-256": {"sha256=" + MetaSignature([]byte(secret), body)}}
	v := NewMetaVerifier(secret)

	for i := range body {
		mutated := append([]byte(nil), body...)
		mutated[i]++
		ok, _ := VerifySignature(v, Request{Header: h, Body: mutated})
		assert.False(t, ok, "mutation at %d accepted", i)
	}
}

type panickingVerifier struct{}

func (panickingVerifier) Provider() string     { return "test" }
func (panickingVerifier) Verify(Request) error { panic("boom") }

func TestVerifySignature_PanicIsFailure(t *testing.T) {
	ok, reason := VerifySignature(panickingVerifier{}, Request{})
	assert.False(t, ok)
	assert.Contains(t, reason, "boom")
}

func TestConstantTimeEqual(t *testing.T) {
	assert.True(t, constantTimeEqual("abc", "abc"))
	assert.False(t, constantTimeEqual("abc", "abd"))
	assert.False(t, constantTimeEqual("abc", "abcd"))
	assert.True(t, constantTimeEqual("", ""))
}

func TestRequestURL(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio/messages?x=1", nil)
	req.Host = "internal:8080"

	assert.Equal(t, "https://hooks.example.com/webhooks/twilio/messages?x=1",
		RequestURL(req, "https://hooks.example.com/"))

	assert.Equal(t, "http://internal:8080/webhooks/twilio/messages?x=1", RequestURL(req, ""))

	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("X-Forwarded-Host", "hooks.example.com")
	assert.Equal(t, "https://hooks.example.com/webhooks/twilio/messages?x=1", RequestURL(req, ""))
}

func TestReadBody_Limit(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", stringsReader("0123456789"))
	_, err := ReadBody(req, 5)
	assert.ErrorIs(t, err, ErrBodyTooLarge)

	req = httptest.NewRequest(http.MethodPost, "/", stringsReader("01234"))
	body, err := ReadBody(req, 5)
	require.NoError(t, err)
	assert.Equal(t, "01234", string(body))
}
