package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	metaSignatureHeader = "X-Hub-Signature-256"
	metaSignaturePrefix = "sha256="
)

// MetaVerifier checks X-Hub-Signature-256 over the raw body, as sent by the
// WhatsApp Cloud API and Graph webhooks.
type MetaVerifier struct {
	appSecret []byte
}

func NewMetaVerifier(appSecret string) *MetaVerifier {
	return &MetaVerifier{appSecret: []byte(appSecret)}
}

func (v *MetaVerifier) Provider() string { return "meta" }

func (v *MetaVerifier) Verify(req Request) error {
	header := req.Header.Get(metaSignatureHeader)
	if header == "" {
		return ErrMissingSignature
	}
	signature, ok := strings.CutPrefix(header, metaSignaturePrefix)
	if !ok {
		return ErrInvalidSignature
	}

	if !constantTimeEqual(MetaSignature(v.appSecret, req.Body), signature) {
		return ErrInvalidSignature
	}
	return nil
}

// MetaSignature returns the lowercase hex HMAC-SHA256 of body.
func MetaSignature(appSecret, body []byte) string {
	mac := hmac.New(sha256.New, appSecret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
