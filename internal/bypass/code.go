package bypass

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// Override codes avoid 0/O and 1/I so they can be read aloud. The prefix
// keeps a plain word typed as an answer from ever matching.
const (
	codeAlphabet  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	OneTimePrefix = "!OVR-"
	CodeLength    = 8
)

// GenerateCode returns a random one-time code such as "!OVR-K7MP2QXR".
func GenerateCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	// len(codeAlphabet) is 32, so b%32 is unbiased.
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return OneTimePrefix + string(buf), nil
}

// NormalizeCode upper-cases a typed code.
func NormalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// IsOneTimeShape reports whether s could be a generated override code.
func IsOneTimeShape(s string) bool {
	s = NormalizeCode(s)
	body, ok := strings.CutPrefix(s, OneTimePrefix)
	if !ok || len(body) != CodeLength {
		return false
	}
	for i := 0; i < len(body); i++ {
		if !strings.ContainsRune(codeAlphabet, rune(body[i])) {
			return false
		}
	}
	return true
}
