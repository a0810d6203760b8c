package domain

import (
	"net/http"
	"strings"
)

// DefaultSensitivePaths são os segmentos cujo acesso é sempre auditado.
var DefaultSensitivePaths = []string{
	"/auth/",
	"/admin/",
	"/api/v1/users/",
	"/api/v1/documents/",
	"/api/v1/risk-assessments/",
	"/api/v1/compliance/",
}

// PublicPaths não exigem autenticação.
var PublicPaths = []string{"/", "/health", "/docs", "/redoc", "/openapi.json"}

const (
	StaticPrefix = "/static/"
	AdminSegment = "/admin/"
)

// PathSet é o conjunto imutável de caminhos sensíveis (match por substring).
type PathSet struct {
	segments []string
}

func NewPathSet(segments ...string) PathSet {
	out := make([]string, 0, len(segments))
	for _, s := range segments {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return PathSet{segments: out}
}

func DefaultPathSet() PathSet { return NewPathSet(DefaultSensitivePaths...) }

// Segments devolve uma cópia, para inspeção.
func (p PathSet) Segments() []string {
	return append([]string(nil), p.segments...)
}

// IsSensitive informa se o path contém algum segmento sensível.
func (p PathSet) IsSensitive(path string) bool {
	for _, s := range p.segments {
		if strings.Contains(path, s) {
			return true
		}
	}
	return false
}

// IsSensitive usa o conjunto padrão.
func IsSensitive(path string) bool { return DefaultPathSet().IsSensitive(path) }

func RequiresAuthentication(path string) bool {
	for _, p := range PublicPaths {
		if path == p {
			return false
		}
	}
	return !strings.HasPrefix(path, StaticPrefix)
}

func IsDataModification(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func (p PathSet) Flags(method, path string) SecurityFlags {
	return SecurityFlags{
		AuthenticationRequired: RequiresAuthentication(path),
		SensitiveOperation:     p.IsSensitive(path),
		AdminOperation:         strings.Contains(path, AdminSegment),
		DataModification:       IsDataModification(method),
	}
}

func Flags(method, path string) SecurityFlags { return DefaultPathSet().Flags(method, path) }

// SeverityFor: falha (>= 400) tem precedência sobre operação sensível.
func SeverityFor(status int, flags SecurityFlags) Severity {
	switch {
	case status >= 400:
		return SeverityFailedRequest
	case flags.SensitiveOperation:
		return SeveritySensitiveOperation
	default:
		return SeverityInfo
	}
}
