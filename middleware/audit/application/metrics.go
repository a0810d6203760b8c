package application

import (
	"errors"

	"risk-gateway/middleware/audit/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics são os contadores do recorder. Um *Metrics nil é válido e não conta.
type Metrics struct {
	Emitted  *prometheus.CounterVec
	Failures prometheus.Counter
	Skipped  prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "audit",
			Name:      "records_total",
			Help:      "Audit records delivered to the sink, by severity.",
		}, []string{"severity"}),
		Failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "audit",
			Name:      "sink_failures_total",
			Help:      "Audit records the sink failed to persist.",
		}),
		Skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "audit",
			Name:      "skipped_total",
			Help:      "Audit records skipped because the client went away.",
		}),
	}
	if reg == nil {
		return m, nil
	}

	var err error
	if m.Emitted, err = register(reg, m.Emitted); err != nil {
		return nil, err
	}
	if m.Failures, err = register(reg, m.Failures); err != nil {
		return nil, err
	}
	if m.Skipped, err = register(reg, m.Skipped); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return c, err
		}
		existing, ok := already.ExistingCollector.(C)
		if !ok {
			return c, err
		}
		return existing, nil
	}
	return c, nil
}

func (m *Metrics) emitted(s domain.Severity) {
	if m != nil {
		m.Emitted.WithLabelValues(string(s)).Inc()
	}
}

func (m *Metrics) failed() {
	if m != nil {
		m.Failures.Inc()
	}
}

func (m *Metrics) skipped() {
	if m != nil {
		m.Skipped.Inc()
	}
}
