package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrSinkClosed = errors.New("audit sink closed")
	ErrBufferFull = errors.New("audit buffer full")
)

// Severity é metadado consultivo; não muda o formato do registro.
type Severity string

const (
	SeverityFailedRequest      Severity = "FAILED_REQUEST"
	SeveritySensitiveOperation Severity = "SENSITIVE_OPERATION"
	SeverityInfo               Severity = "REQUEST"
)

// SecurityFlags é recalculado a partir do path e do método.
type SecurityFlags struct {
	AuthenticationRequired bool `json:"authentication_required"`
	SensitiveOperation     bool `json:"sensitive_operation"`
	AdminOperation         bool `json:"admin_operation"`
	DataModification       bool `json:"data_modification"`
}

// AuthInfo descreve só o tipo de credencial apresentada, nunca o valor.
type AuthInfo struct {
	AuthType string `json:"auth_type"`
}

// Record é imutável depois de construído; Seal devolve uma cópia selada.
type Record struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Severity  Severity  `json:"severity"`

	ClientIP    string              `json:"client_ip"`
	UserAgent   string              `json:"user_agent"`
	Method      string              `json:"method"`
	Path        string              `json:"path"`
	QueryParams map[string][]string `json:"query_params,omitempty"`
	Headers     map[string]string   `json:"headers,omitempty"`

	StatusCode   int       `json:"status_code"`
	DurationMS   float64   `json:"process_time_ms"`
	UserInfo     *AuthInfo `json:"user_info"`
	RequestSize  int64     `json:"request_size"`
	ResponseSize int64     `json:"response_size"`
	TraceID      string    `json:"trace_id,omitempty"`

	SecurityFlags SecurityFlags `json:"security_flags"`

	// preenchidos por Chain.Seal nos sinks verificáveis
	Seq      int64  `json:"seq,omitempty"`
	PrevHash string `json:"prev_hash,omitempty"`
	Hash     string `json:"hash,omitempty"`
}

// Sink recebe registros prontos. Implementações são append-only.
type Sink interface {
	Write(ctx context.Context, rec Record) error
}
