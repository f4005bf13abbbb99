// Package bridge carries messages between the page, the orchestrator and its
// observers. Delivery is fire-and-forget: senders never block on a receiver.
package bridge

import (
	"encoding/json"
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

var (
	bearerRe = regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9\-._~+/]+=*`)

	// Fallback for payloads that are not valid JSON.
	fieldRe = regexp.MustCompile(`(?i)("[^"]*(?:token|password|passwd|secret|authorization|cookie|session|api[_-]?key|credential)[^"]*"\s*:\s*)"(?:[^"\\]|\\.)*"`)
)

// sensitiveKeys are substrings that mark a field name as credential-like.
var sensitiveKeys = []string{
	"token", "password", "passwd", "secret", "authorization", "cookie",
	"session", "apikey", "api_key", "api-key", "credential",
}

// Redact masks bearer tokens and the values of credential-like fields in a
// payload before it is logged. The input is not modified.
func Redact(payload []byte) []byte {
	var v any
	if err := json.Unmarshal(payload, &v); err == nil {
		out, err := json.Marshal(redactValue(v))
		if err == nil {
			return out
		}
	}
	s := fieldRe.ReplaceAllString(string(payload), `$1"`+redacted+`"`)
	return []byte(RedactString(s))
}

// RedactString masks bearer tokens in free text.
func RedactString(s string) string {
	return bearerRe.ReplaceAllString(s, "${1}"+redacted)
}

func redactValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if sensitiveKey(k) {
				t[k] = redacted
				continue
			}
			t[k] = redactValue(val)
		}
		return t
	case []any:
		for i := range t {
			t[i] = redactValue(t[i])
		}
		return t
	case string:
		return RedactString(t)
	default:
		return v
	}
}

func sensitiveKey(k string) bool {
	k = strings.ToLower(k)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}
