package service

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
)

const shortIDLength = 8

// NewToken mints a globally unique, URL-safe opaque token (128 bits of
// entropy, unpadded base64url) plus its human-displayable short alias.
//
// The short alias is a deterministic prefix of the token; alias collisions
// are tolerated because owner-scoped lookups disambiguate by pairing the
// alias with the owner id. Exhaustion of the randomness source is
// unrecoverable and panics.
func NewToken() (token, shortID string) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic("token: randomness source unavailable: " + err.Error())
	}
	token = base64.RawURLEncoding.EncodeToString(buf)
	shortID = strings.ToUpper(token[:shortIDLength])
	return token, shortID
}
