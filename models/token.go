package models

import (
	"crypto/rand"
	"fmt"
)

// TokenLength is the number of characters in a confirmation token.
const TokenLength = 25

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GenerateToken returns a confirmation token: TokenLength characters drawn
// uniformly from [A-Za-z0-9]. At 62^25 possibilities, collisions are not a
// practical concern.
func GenerateToken() (string, error) {
	token := make([]byte, 0, TokenLength)
	buf := make([]byte, TokenLength*2)
	for len(token) < TokenLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("reading from the system entropy source: %v", err)
		}
		for _, b := range buf {
			// Rejection sampling keeps the distribution uniform: 248 is
			// the largest multiple of 62 that fits in a byte.
			if b >= 248 {
				continue
			}
			token = append(token, tokenAlphabet[int(b)%len(tokenAlphabet)])
			if len(token) == TokenLength {
				break
			}
		}
	}
	return string(token), nil
}
