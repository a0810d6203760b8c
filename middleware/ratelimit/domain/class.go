package domain

import "strings"

// EndpointClass é o balde de política em que um path é classificado.
type EndpointClass string

const (
	ClassAuth    EndpointClass = "auth"
	ClassUpload  EndpointClass = "upload"
	ClassAPI     EndpointClass = "api"
	ClassDefault EndpointClass = "default"
)

// Classes lista as classes na ordem de precedência da classificação.
func Classes() []EndpointClass {
	return []EndpointClass{ClassAuth, ClassUpload, ClassAPI, ClassDefault}
}

var (
	authSegments   = []string{"/auth/", "/login", "/register"}
	uploadSegments = []string{"/upload", "/documents"}
)

// Classify mapeia o path para uma classe por substring, primeira regra vence:
// auth > upload > api > default.
func Classify(path string) EndpointClass {
	switch {
	case containsAny(path, authSegments):
		return ClassAuth
	case containsAny(path, uploadSegments):
		return ClassUpload
	case strings.Contains(path, "/api/"):
		return ClassAPI
	default:
		return ClassDefault
	}
}

// ParseClass aceita o nome de uma classe (ex.: vindo de arquivo de config).
func ParseClass(s string) (EndpointClass, bool) {
	c := EndpointClass(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Classes() {
		if c == known {
			return c, true
		}
	}
	return "", false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
