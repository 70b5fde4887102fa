package chat

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf16"

	"github.com/Azure/ai-gateway/pkg/domain/gateway"
	"golang.org/x/crypto/blake2b"
)

const hashVersion = "v1"

type canonicalMessage struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

// PromptHash fingerprints a conversation independent of message order,
// surrounding whitespace and role casing.
func PromptHash(messages []gateway.Message) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, canonicalJSON(canonicalMessage{
			Content: strings.TrimSpace(m.Content),
			Role:    strings.ToLower(strings.TrimSpace(m.Role)),
		}))
	}
	sort.Strings(parts)
	return digest(hashVersion + ":" + strings.Join(parts, ":"))
}

// CacheKey scopes a prompt hash to the model and sampling temperature.
func CacheKey(promptHash, model string, temperature float64) string {
	return digest(fmt.Sprintf("%s|%s|%.2f", promptHash, model, temperature))
}

func canonicalJSON(m canonicalMessage) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encoding a struct of two strings cannot fail.
	_ = enc.Encode(m)
	return asciiEscape(strings.TrimSuffix(buf.String(), "\n"))
}

// asciiEscape rewrites every rune outside printable ASCII as \uXXXX, using a
// surrogate pair above U+FFFF, so fingerprints match ensure_ascii encoders.
func asciiEscape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x7f {
			b.WriteRune(r)
			continue
		}
		if r > 0xffff {
			hi, lo := utf16.EncodeRune(r)
			fmt.Fprintf(&b, "\\u%04x\\u%04x", hi, lo)
			continue
		}
		fmt.Fprintf(&b, "\\u%04x", r)
	}
	return b.String()
}

func digest(s string) string {
	h, _ := blake2b.New(16, nil)
	h.Write([]byte(s))
	return hex.EncodeToString(h.Sum(nil))
}
