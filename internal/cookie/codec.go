package cookie

import (
	"encoding/base64"
	"fmt"

	"github.com/dgellow/bid-front/internal/crypto"
)

// Codec turns a session payload into a cookie-safe value and back.
type Codec interface {
	Encode(payload []byte) (string, error)
	Decode(value string) ([]byte, error)
}

// PlainCodec base64url-encodes the payload. Used when no encryption key is configured.
type PlainCodec struct{}

func (PlainCodec) Encode(payload []byte) (string, error) {
	return base64.RawURLEncoding.EncodeToString(payload), nil
}

func (PlainCodec) Decode(value string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decoding session cookie: %w", err)
	}
	return b, nil
}

// SealedCodec encrypts the payload so tokens are opaque to the browser.
type SealedCodec struct {
	enc crypto.Encryptor
}

func NewSealedCodec(enc crypto.Encryptor) SealedCodec {
	return SealedCodec{enc: enc}
}

func (c SealedCodec) Encode(payload []byte) (string, error) {
	v, err := c.enc.Encrypt(string(payload))
	if err != nil {
		return "", fmt.Errorf("sealing session cookie: %w", err)
	}
	return v, nil
}

func (c SealedCodec) Decode(value string) ([]byte, error) {
	v, err := c.enc.Decrypt(value)
	if err != nil {
		return nil, fmt.Errorf("opening session cookie: %w", err)
	}
	return []byte(v), nil
}
