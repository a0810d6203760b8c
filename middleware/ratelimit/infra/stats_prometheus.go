package infra

import (
	"context"
	"errors"
	"fmt"

	"risk-gateway/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusStatsStore conta decisões por classe e resultado.
// Identidade e path ficam fora dos labels para manter a cardinalidade fixa.
type PrometheusStatsStore struct {
	decisions *prometheus.CounterVec
}

func NewPrometheusStatsStore(reg prometheus.Registerer) (*PrometheusStatsStore, error) {
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "ratelimit",
		Name:      "decisions_total",
		Help:      "Rate limit decisions by endpoint class and outcome.",
	}, []string{"class", "outcome"})

	if reg != nil {
		var err error
		if decisions, err = register(reg, decisions); err != nil {
			return nil, err
		}
	}
	return &PrometheusStatsStore{decisions: decisions}, nil
}

// register reaproveita um collector já registrado do mesmo tipo; tipo
// diferente sob o mesmo nome é erro.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var already prometheus.AlreadyRegisteredError
	if !errors.As(err, &already) {
		return c, err
	}
	existing, ok := already.ExistingCollector.(C)
	if !ok {
		return c, fmt.Errorf("collector %T already registered under the same name: %w", already.ExistingCollector, err)
	}
	return existing, nil
}

func (s *PrometheusStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.decisions.WithLabelValues(string(ev.Key.Class), ev.Outcome()).Inc()
	return nil
}

// Decisions expõe o CounterVec (usado em testes).
func (s *PrometheusStatsStore) Decisions() *prometheus.CounterVec { return s.decisions }

// TeeStats repassa o evento para todos os stores e junta os erros.
type TeeStats []domain.StatsStore

func (t TeeStats) Record(ctx context.Context, ev domain.StatsEvent) error {
	var errs []error
	for _, s := range t {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
