package domain

import (
	"net/textproto"
	"strings"
)

// Redacted substitui qualquer valor de credencial.
const Redacted = "[REDACTED]"

var sensitiveHeaders = map[string]struct{}{
	"Authorization":       {},
	"Proxy-Authorization": {},
	"X-Api-Key":           {},
	"Cookie":              {},
	"Set-Cookie":          {},
}

var sensitiveQueryKeys = map[string]struct{}{
	"token":        {},
	"access_token": {},
	"api_key":      {},
	"apikey":       {},
	"password":     {},
	"secret":       {},
}

func isSensitiveHeader(name string) bool {
	_, ok := sensitiveHeaders[textproto.CanonicalMIMEHeaderKey(name)]
	return ok
}

// RedactHeaders achata os headers (valores múltiplos unidos por ", ") e troca
// os de credencial por Redacted.
func RedactHeaders(h map[string][]string) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		key := textproto.CanonicalMIMEHeaderKey(k)
		if isSensitiveHeader(key) {
			out[key] = Redacted
			continue
		}
		out[key] = strings.Join(v, ", ")
	}
	return out
}

// RedactQuery copia os parâmetros trocando os de nome de credencial.
func RedactQuery(q map[string][]string) map[string][]string {
	if len(q) == 0 {
		return nil
	}
	out := make(map[string][]string, len(q))
	for k, v := range q {
		if _, ok := sensitiveQueryKeys[strings.ToLower(k)]; ok {
			out[k] = []string{Redacted}
			continue
		}
		out[k] = append([]string(nil), v...)
	}
	return out
}

// DescribeAuth devolve o tipo de credencial presente, se houver.
func DescribeAuth(authorization, apiKey string) *AuthInfo {
	if scheme, _, ok := strings.Cut(strings.TrimSpace(authorization), " "); ok && strings.EqualFold(scheme, "Bearer") {
		return &AuthInfo{AuthType: "bearer_token"}
	}
	if strings.TrimSpace(apiKey) != "" {
		return &AuthInfo{AuthType: "api_key"}
	}
	return nil
}
