package gpsbuddy

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	uuidRe = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

	// Tried in order; the upstream has shipped all of these over time.
	jsonTokenKeys = []string{"success", "token", "sessionid", "session_id", "result"}
	xmlTokenTags  = []string{"token", "success", "sessionid", "string"}
)

// ExtractToken pulls a session token out of an InitializeSession response.
// The response shape is unpredictable: JSON with several possible key names,
// XML/plain text with several possible markers, or a bare token string.
// Returns "" when nothing usable is found.
func ExtractToken(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	// JSON object with one of the known key names.
	if strings.HasPrefix(s, "{") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(s), &obj); err == nil {
			lowered := make(map[string]any, len(obj))
			for k, v := range obj {
				lowered[strings.ToLower(k)] = v
			}
			for _, key := range jsonTokenKeys {
				if v, ok := lowered[key]; ok {
					if tok, ok := v.(string); ok && tok != "" {
						return tok
					}
				}
			}
		}
		return ""
	}

	// XML with one of the known tags, possibly nested.
	if strings.HasPrefix(s, "<") {
		for _, tag := range xmlTokenTags {
			re := regexp.MustCompile(`(?is)<` + tag + `[^>]*>([^<]+)</` + tag + `>`)
			if m := re.FindStringSubmatch(s); m != nil {
				if tok := strings.TrimSpace(m[1]); tok != "" {
					return tok
				}
			}
		}
		return ""
	}

	// Bare string: a UUID, or anything that looks like an opaque id.
	if uuidRe.MatchString(s) {
		return s
	}
	if len(s) >= 12 && !strings.ContainsAny(s[:1], "<{[") {
		return s
	}
	return ""
}
