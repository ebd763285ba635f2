package service

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidConfirmToken = errors.New("invalid or expired confirm token")
	ErrMissingSecret       = errors.New("confirm secret is not configured")
)

// ConfirmSigner mints short-lived HMAC tokens that tie a broadcast
// confirmation back to the exact proposal it approves. A stale or forged
// callback can never trigger a fan-out.
type ConfirmSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewConfirmSigner returns a signer issuing compact HMAC confirm tokens.
func NewConfirmSigner(secret []byte, ttl time.Duration) *ConfirmSigner {
	return &ConfirmSigner{
		secret: secret,
		ttl:    ttl,
	}
}

// Issue mints a confirm token bound to the given broadcast id.
func (s *ConfirmSigner) Issue(broadcastID string) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrMissingSecret
	}

	payload := make([]byte, 12) // 4 bytes expiry + 8 random bytes
	expires := uint32(time.Now().Add(s.ttl).Unix())
	binary.BigEndian.PutUint32(payload[:4], expires)
	if _, err := rand.Read(payload[4:]); err != nil {
		return "", err
	}

	payloadEnc := base64.RawURLEncoding.EncodeToString(payload)
	signature := s.sign(broadcastID, payload)
	sigEnc := base64.RawURLEncoding.EncodeToString(signature[:16])
	return fmt.Sprintf("%s.%s", payloadEnc, sigEnc), nil
}

// Validate checks signature integrity and TTL of the token.
func (s *ConfirmSigner) Validate(broadcastID, token string) error {
	if len(s.secret) == 0 {
		return ErrMissingSecret
	}

	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return ErrInvalidConfirmToken
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return ErrInvalidConfirmToken
	}

	sigProvided, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return ErrInvalidConfirmToken
	}
	if len(sigProvided) != 16 {
		return ErrInvalidConfirmToken
	}

	expected := s.sign(broadcastID, payload)
	if !hmac.Equal(sigProvided, expected[:16]) {
		return ErrInvalidConfirmToken
	}

	if len(payload) < 4 {
		return ErrInvalidConfirmToken
	}
	expires := binary.BigEndian.Uint32(payload[:4])
	if time.Now().Unix() > int64(expires) {
		return ErrInvalidConfirmToken
	}

	return nil
}

func (s *ConfirmSigner) sign(broadcastID string, payload []byte) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(broadcastID))
	mac.Write([]byte("|"))
	mac.Write(payload)
	return mac.Sum(nil)
}
