package messaging

import (
	"strings"

	"github.com/porteroai/portero/internal/authorization"
)

var (
	approveTokens = map[string]struct{}{
		"si": {}, "sí": {}, "yes": {}, "ok": {}, "dale": {},
		"claro": {}, "autorizo": {}, "autorizado": {}, "1": {},
	}
	denyTokens = map[string]struct{}{
		"no": {}, "niego": {}, "negado": {}, "deny": {}, "2": {},
	}
)

// InterpretReply maps a resident's free-text reply onto an
// authorization status. Anything that is not a clear yes or no becomes
// a custom message for the visitor, with the original text preserved.
func InterpretReply(text string) (authorization.Status, string) {
	trimmed := strings.TrimSpace(text)
	token := strings.ToLower(strings.Trim(trimmed, ".,!¡¿? "))
	if _, ok := approveTokens[token]; ok {
		return authorization.StatusAuthorized, ""
	}
	if _, ok := denyTokens[token]; ok {
		return authorization.StatusDenied, ""
	}
	return authorization.StatusCustomMessage, trimmed
}
