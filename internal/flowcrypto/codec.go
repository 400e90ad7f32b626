// Package flowcrypto implements the WhatsApp Flows data-exchange encryption:
// an RSA-OAEP (SHA-256) wrapped AES key, AES-GCM request payloads, and
// responses sealed under the same key with the bitwise-inverted IV.
package flowcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDecrypt is the only error Decrypt reports; the cause is never exposed.
	ErrDecrypt    = errors.New("flow request could not be decrypted")
	ErrPrivateKey = errors.New("invalid flow private key")
)

// Envelope is the JSON body of a flow data-exchange POST.
type Envelope struct {
	EncryptedAESKey   string `json:"encrypted_aes_key"`
	EncryptedFlowData string `json:"encrypted_flow_data"`
	InitialVector     string `json:"initial_vector"`
}

// Session carries one decrypted exchange. AESKey and IV must stay in memory
// only; they are needed to seal the response.
type Session struct {
	Payload json.RawMessage
	AESKey  []byte
	IV      []byte
}

// Codec decrypts requests with a fixed private key.
type Codec struct {
	key *rsa.PrivateKey
}

// NewCodec parses a PEM private key (PKCS#8 or PKCS#1). Armor lines and
// surrounding whitespace may be missing or mangled.
func NewCodec(privateKeyPEM string) (*Codec, error) {
	key, err := ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, err
	}
	return &Codec{key: key}, nil
}

// ParsePrivateKey strips PEM armor and decodes the RSA key.
func ParsePrivateKey(privateKeyPEM string) (*rsa.PrivateKey, error) {
	der, err := stripArmor(privateKeyPEM)
	if err != nil {
		return nil, err
	}

	if parsed, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an RSA key", ErrPrivateKey)
		}
		return key, nil
	}
	key, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPrivateKey, err)
	}
	return key, nil
}

func stripArmor(privateKeyPEM string) ([]byte, error) {
	if block, _ := pem.Decode([]byte(privateKeyPEM)); block != nil {
		return block.Bytes, nil
	}

	var b strings.Builder
	for _, line := range strings.Split(privateKeyPEM, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "-----") {
			continue
		}
		b.WriteString(line)
	}
	if b.Len() == 0 {
		return nil, fmt.Errorf("%w: empty", ErrPrivateKey)
	}
	der, err := base64.StdEncoding.DecodeString(b.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPrivateKey, err)
	}
	return der, nil
}

// Decrypt opens a raw request body. Every failure is ErrDecrypt.
func (c *Codec) Decrypt(rawBody []byte) (*Session, error) {
	session, err := c.decrypt(rawBody)
	if err != nil {
		return nil, ErrDecrypt
	}
	return session, nil
}

// DecryptCause is Decrypt with the underlying reason kept, for server-side logs.
func (c *Codec) DecryptCause(rawBody []byte) (*Session, error) {
	session, err := c.decrypt(rawBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return session, nil
}

func (c *Codec) decrypt(rawBody []byte) (*Session, error) {
	var env Envelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		return nil, fmt.Errorf("parsing envelope: %w", err)
	}

	wrappedKey, err := base64.StdEncoding.DecodeString(env.EncryptedAESKey)
	if err != nil {
		return nil, fmt.Errorf("decoding aes key: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.EncryptedFlowData)
	if err != nil {
		return nil, fmt.Errorf("decoding flow data: %w", err)
	}
	iv, err := base64.StdEncoding.DecodeString(env.InitialVector)
	if err != nil {
		return nil, fmt.Errorf("decoding iv: %w", err)
	}

	aesKey, err := rsa.DecryptOAEP(sha256.New(), nil, c.key, wrappedKey, nil)
	if err != nil {
		return nil, fmt.Errorf("unwrapping aes key: %w", err)
	}

	gcm, err := newGCM(aesKey, len(iv))
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("opening flow data: %w", err)
	}
	if !json.Valid(plaintext) {
		return nil, errors.New("flow data is not json")
	}

	return &Session{Payload: plaintext, AESKey: aesKey, IV: iv}, nil
}

// EncryptResponse seals payload as JSON under aesKey with FlipIV(iv) and
// returns base64 ciphertext with the GCM tag appended.
func EncryptResponse(payload any, aesKey, iv []byte) (string, error) {
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling flow response: %w", err)
	}
	flipped := FlipIV(iv)
	gcm, err := newGCM(aesKey, len(flipped))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(gcm.Seal(nil, flipped, plaintext, nil)), nil
}

// Encrypt seals a response for this session.
func (s *Session) Encrypt(payload any) (string, error) {
	return EncryptResponse(payload, s.AESKey, s.IV)
}

// FlipIV returns a copy of iv with every bit inverted.
func FlipIV(iv []byte) []byte {
	out := make([]byte, len(iv))
	for i, b := range iv {
		out[i] = ^b
	}
	return out
}

func newGCM(key []byte, nonceSize int) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating aes cipher: %w", err)
	}
	if nonceSize == 0 {
		return nil, errors.New("empty iv")
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}
	return gcm, nil
}
