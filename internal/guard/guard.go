// Package guard is the authorization and log-safety boundary between
// the agent loop and tool implementations. It owns the allow-list of
// invocable tool names and scrubs sensitive material from anything
// destined for a log line.
package guard

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultAllowedTools is the full set of tool names any persona may be
// granted. The allow-list is an authorization check only; whether a
// tool is actually implemented is the registry's concern.
var DefaultAllowedTools = []string{
	"get_current_time",
	"remember_fact",
	"recall_memories",
	"get_calendar_events",
	"generate_image",
	"generate_influencer",
	"generate_video",
	"generate_caption",
	"post_to_social",
	"dispatch_directive",
}

// sensitiveKeys are matched as case-insensitive substrings of field
// names. Any matching field's value is replaced wholesale.
var sensitiveKeys = []string{
	"password",
	"token",
	"secret",
	"api_key",
	"apikey",
	"authorization",
	"private_key",
	"client_secret",
}

const (
	redactedMarker = "[REDACTED]"
	maxLogLength   = 200
)

var (
	emailPattern  = regexp.MustCompile(`[\w.+-]+@[\w.-]+\.\w{2,}`)
	bearerPattern = regexp.MustCompile(`(?i)Bearer\s+[\w.-]+`)
)

// Guard holds the tool allow-list for one agent process.
type Guard struct {
	allowed map[string]struct{}
}

// New creates a guard from a list of allowed tool names. An empty list
// means the default set.
func New(allowed []string) *Guard {
	if len(allowed) == 0 {
		allowed = DefaultAllowedTools
	}
	g := &Guard{allowed: make(map[string]struct{}, len(allowed))}
	for _, name := range allowed {
		g.allowed[name] = struct{}{}
	}
	return g
}

// IsToolAllowed reports whether name is on the allow-list. This check
// runs before every tool dispatch, independent of whether the tool is
// defined.
func (g *Guard) IsToolAllowed(name string) bool {
	_, ok := g.allowed[name]
	return ok
}

// SanitizeForLog renders data as a log-safe string: sensitive fields
// are redacted recursively, emails and bearer tokens are masked inside
// strings, and the result is truncated. It never panics; unknown
// shapes degrade to a best-effort representation.
func SanitizeForLog(action string, data any) string {
	safe := redact(data)

	var summary string
	switch v := safe.(type) {
	case string:
		summary = v
	default:
		b, err := json.Marshal(safe)
		if err != nil {
			summary = fmt.Sprintf("%v", safe)
		} else {
			summary = string(b)
		}
	}

	if len(summary) > maxLogLength {
		// Back up to a rune boundary so the cut never emits a torn
		// multi-byte character.
		cut := maxLogLength
		for cut > 0 && !utf8.RuneStart(summary[cut]) {
			cut--
		}
		summary = summary[:cut]
	}
	return action + ": " + summary
}

// redact walks data and replaces sensitive field values and string
// patterns. Maps and slices are rebuilt; other types pass through a
// string scrub or unchanged.
func redact(data any) any {
	switch v := data.(type) {
	case nil:
		return nil
	case string:
		return redactString(v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			if isSensitiveKey(k) {
				out[k] = redactedMarker
			} else {
				out[k] = redact(val)
			}
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = redact(val)
		}
		return out
	default:
		// Structs and other shapes round-trip through JSON so nested
		// sensitive fields are still caught. Unmarshalable values fall
		// back to fmt.
		b, err := json.Marshal(v)
		if err != nil {
			return redactString(fmt.Sprintf("%v", v))
		}
		var generic any
		if err := json.Unmarshal(b, &generic); err != nil {
			return redactString(string(b))
		}
		switch generic.(type) {
		case map[string]any, []any, string:
			return redact(generic)
		default:
			return generic
		}
	}
}

func redactString(s string) string {
	s = emailPattern.ReplaceAllString(s, "[email-redacted]")
	s = bearerPattern.ReplaceAllString(s, "Bearer [redacted]")
	return s
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, frag := range sensitiveKeys {
		if strings.Contains(k, frag) {
			return true
		}
	}
	return false
}
